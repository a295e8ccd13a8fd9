package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"poolmonitor/internal/model"
)

const sampleConfig = `
rpc: http://localhost:8545
chain-id: 1
token: "0x27702a26126e0B3702af63Ee09aC4d1A084EF628"
reward-per-block: 1.5
reward-start: 11000000
ledger: pebble
ledger-path: /tmp/ledger
batch-size: 25
pools:
  - address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
    start_height: 10000000
  - address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
    type: balancer
    start_height: 10500000
    weight: 2
    exclude:
      - "0xcccccccccccccccccccccccccccccccccccccccc"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t), nil)
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8545", cfg.RPCURL)
	require.True(t, cfg.RewardPerBlock.Equal(decimal.RequireFromString("1.5")))
	require.Equal(t, uint64(11000000), cfg.RewardStart)
	require.Equal(t, LedgerPebble, cfg.Ledger)
	require.Equal(t, 25, cfg.BatchSize)
	require.Equal(t, uint64(50000), cfg.BigBlockRange)
	require.Equal(t, uint64(1000), cfg.SmallBlockRange)
	require.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	require.Equal(t, ModeRPC, cfg.Mode)

	require.Len(t, cfg.Pools, 2)
	require.Equal(t, uint64(10000000), cfg.Pools[0].StartHeight)
	require.Equal(t, "", cfg.Pools[0].Type)
	require.Equal(t, "balancer", cfg.Pools[1].Type)
	require.Equal(t, 2.0, cfg.Pools[1].Weight)
	require.Equal(t, []string{"0xcccccccccccccccccccccccccccccccccccccccc"}, cfg.Pools[1].Exclude)

	require.NoError(t, cfg.Validate())
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("POOLMONITOR_BATCH_SIZE", "30")
	t.Setenv("POOLMONITOR_RPC", "http://env:8545")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("batch-size", 40, "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--batch-size=12"}))

	cfg, err := Load(writeConfig(t), flags)
	require.NoError(t, err)
	require.Equal(t, 12, cfg.BatchSize)
	require.Equal(t, "http://env:8545", cfg.RPCURL)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t), nil)
	require.NoError(t, err)

	bad := cfg
	bad.Token = "nope"
	require.ErrorContains(t, bad.Validate(), "token")

	bad = cfg
	bad.Ledger = "redis"
	require.ErrorContains(t, bad.Validate(), "unsupported ledger")

	bad = cfg
	bad.Ledger = LedgerPostgres
	require.ErrorContains(t, bad.Validate(), "pg-dsn")

	bad = cfg
	bad.Pools = nil
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Mode = "graphql"
	require.ErrorContains(t, bad.Validate(), "unsupported mode")

	explorerMode := cfg
	explorerMode.Mode = ModeExplorer
	require.NoError(t, explorerMode.Validate())
	explorerMode.ExplorerURL = ""
	require.ErrorContains(t, explorerMode.Validate(), "explorer-url")

	bad = cfg
	bad.Pools = append([]model.PoolConfig{}, cfg.Pools...)
	bad.Pools[1].Address = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	require.ErrorContains(t, bad.Validate(), "duplicates pool 0")

	bad = cfg
	bad.Pools = append([]model.PoolConfig{}, cfg.Pools...)
	bad.Pools[0].Address = "not-an-address"
	require.ErrorContains(t, bad.Validate(), "pool 0")
}

func TestLoadExplorerMode(t *testing.T) {
	t.Setenv("POOLMONITOR_MODE", "Explorer")
	t.Setenv("POOLMONITOR_EXPLORER_API_KEY", "k")

	cfg, err := Load(writeConfig(t), nil)
	require.NoError(t, err)
	require.Equal(t, ModeExplorer, cfg.Mode)
	require.Equal(t, "k", cfg.ExplorerAPIKey)
	require.Equal(t, "https://api.etherscan.io/api", cfg.ExplorerURL)
}

func TestKeyAndAuthor(t *testing.T) {
	cfg := Config{}
	key, err := cfg.Key()
	require.NoError(t, err)
	require.Nil(t, key)

	author, err := cfg.ResolveAuthor()
	require.NoError(t, err)
	require.Empty(t, author)

	// Well-known test key; its address is fixed.
	cfg.PrivateKey = "0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	author, err = cfg.ResolveAuthor()
	require.NoError(t, err)
	require.Equal(t, "0x71562b71999873DB5b286dF957af199Ec94617F7", author)

	cfg.Author = "0xexplicit"
	author, err = cfg.ResolveAuthor()
	require.NoError(t, err)
	require.Equal(t, "0xexplicit", author)

	cfg.PrivateKey = "zz"
	_, err = cfg.Key()
	require.Error(t, err)
}
