package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolmonitor/internal/chain"
	"poolmonitor/internal/config"
	"poolmonitor/internal/distribution"
	"poolmonitor/internal/explorer"
	"poolmonitor/internal/fetch"
	"poolmonitor/internal/ledger"
	"poolmonitor/internal/ledger/pebbledb"
	"poolmonitor/internal/ledger/postgres"
	"poolmonitor/internal/pool"
	"poolmonitor/internal/transfer"
)

// app holds the wiring shared by every command.
type app struct {
	cfg         config.Config
	logger      *zap.Logger
	chain       *chain.Client
	ledger      ledger.Ledger
	coordinator *distribution.Coordinator
	closers     []func()
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// newApp connects the chain and ledger and builds the coordinator. When act
// is set it also wires the signing transfer service.
func newApp(ctx context.Context, cmd *cobra.Command, act bool) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	serveMetrics(cfg.MetricsAddr, logger)

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx, act); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, act bool) error {
	cfg := a.cfg
	token, err := config.ParseAddress(cfg.Token)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}

	pools := make([]pool.Pool, 0, len(cfg.Pools))
	for _, pc := range cfg.Pools {
		p, err := pool.FromConfig(pc)
		if err != nil {
			return err
		}
		pools = append(pools, p)
	}

	a.chain, err = chain.NewClient(ctx, cfg.RPCURL, chain.Options{
		RequestsPerSecond: cfg.RPCRate,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		Logger:            a.logger,
	})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.closers = append(a.closers, a.chain.Close)

	chainID, err := a.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() || chainID.Uint64() != cfg.ChainID {
		return fmt.Errorf("rpc chain id %s does not match configured %d", chainID, cfg.ChainID)
	}

	var logs fetch.LogSource
	if cfg.Mode == config.ModeExplorer {
		logs, err = explorer.NewClient(cfg.ExplorerURL, explorer.Options{
			APIKey:            cfg.ExplorerAPIKey,
			RequestsPerSecond: cfg.RPCRate,
			MaxRetries:        cfg.MaxRetries,
			RetryBackoff:      cfg.RetryBackoff,
			Logger:            a.logger,
		})
		if err != nil {
			return err
		}
		a.logger.Info("reading logs from explorer", zap.String("url", cfg.ExplorerURL))
	}

	if err := a.openLedger(ctx); err != nil {
		return err
	}

	author, err := cfg.ResolveAuthor()
	if err != nil {
		return err
	}
	a.cfg.Author = author

	var submitter distribution.Submitter
	if act {
		key, err := cfg.Key()
		if err != nil {
			return err
		}
		if key == nil {
			return fmt.Errorf("pkey is required to send transfers")
		}
		sender := crypto.PubkeyToAddress(key.PublicKey)
		service, err := transfer.NewTokenService(a.chain, transfer.NewSequencer(a.chain, sender), transfer.TokenOptions{
			Token:    token,
			ChainID:  new(big.Int).SetUint64(cfg.ChainID),
			Key:      key,
			Decimals: cfg.TokenDecimals,
			Logger:   a.logger,
		})
		if err != nil {
			return err
		}
		submitter = transfer.NewSubmitter(service, cfg.BatchSize, a.logger)
	}

	a.coordinator = distribution.NewCoordinator(distribution.Config{
		Token:          token,
		RewardPerBlock: cfg.RewardPerBlock,
		RewardStart:    cfg.RewardStart,
		ChainID:        cfg.ChainID,
		Author:         author,
		Channel:        cfg.Channel,
		Fetch: fetch.Config{
			BigStride:   cfg.BigBlockRange,
			SmallStride: cfg.SmallBlockRange,
		},
		Logs: logs,
	}, a.chain, pools, a.ledger, submitter, a.logger)
	return nil
}

func (a *app) openLedger(ctx context.Context) error {
	switch a.cfg.Ledger {
	case config.LedgerPostgres:
		l, err := postgres.NewLedger(ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.ledger = l
		a.closers = append(a.closers, l.Close)
	case config.LedgerPebble:
		l, err := pebbledb.Open(a.cfg.LedgerPath)
		if err != nil {
			return err
		}
		a.ledger = l
		a.closers = append(a.closers, func() {
			if err := l.Close(); err != nil {
				a.logger.Warn("close pebble ledger", zap.Error(err))
			}
		})
	default:
		a.ledger = ledger.NewFileLedger(a.cfg.LedgerPath)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
