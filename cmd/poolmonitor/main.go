package main

import (
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "poolmonitor",
		Short:        "Liquidity incentive distribution",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("metrics-addr", "", "serve prometheus metrics on this address")
	root.PersistentFlags().String("ledger", "file", "ledger backend (file, postgres, pebble)")
	root.PersistentFlags().String("ledger-path", "./data/distributions.jsonl", "file or pebble ledger path")

	distributeCmd := &cobra.Command{
		Use:   "distribute",
		Short: "Compute rewards for the next window and optionally pay them",
		RunE:  runDistribute,
	}
	distributeCmd.Flags().Uint64P("start-height", "s", 0, "first height of the window (default: resume from ledger)")
	distributeCmd.Flags().Uint64P("end-height", "e", 0, "last height of the window (default: latest)")
	distributeCmd.Flags().BoolP("act", "a", false, "send the batch transfers")
	distributeCmd.Flags().Int("batch-size", 40, "recipients per transfer")
	root.AddCommand(distributeCmd)

	root.AddCommand(&cobra.Command{
		Use:   "weights",
		Short: "Print each pool's normalized share of the reward",
		RunE:  runWeights,
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the height the next distribution resumes from",
		RunE:  runStatus,
	})

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply postgres ledger migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().Bool("status", false, "print migration status instead of applying")
	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func serveMetrics(addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	go func() {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("metrics listener failed", zap.Error(err))
			return
		}
		logger.Info("metrics server listening", zap.String("address", listener.Addr().String()))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.Serve(listener, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}
