package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolmonitor/internal/ledger/postgres"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg-dsn is required")
	}
	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.PGDSN)))

	status, _ := cmd.Flags().GetBool("status")
	if status {
		return postgres.MigrateStatus(ctx, cfg.PGDSN, logger)
	}
	return postgres.MigrateUp(ctx, cfg.PGDSN, logger)
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
