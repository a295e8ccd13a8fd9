package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// MigrateUp applies all pending ledger migrations.
func MigrateUp(ctx context.Context, dsn string, logger *zap.Logger) error {
	return migrate(ctx, dsn, logger, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, "migrations")
	})
}

// MigrateStatus logs the state of every ledger migration.
func MigrateStatus(ctx context.Context, dsn string, logger *zap.Logger) error {
	return migrate(ctx, dsn, logger, func(db *sql.DB) error {
		return goose.StatusContext(ctx, db, "migrations")
	})
}

func migrate(ctx context.Context, dsn string, logger *zap.Logger, run func(*sql.DB) error) error {
	if dsn == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	logger.Info("running ledger migrations")
	if err := run(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("ledger migrations completed")
	return nil
}
