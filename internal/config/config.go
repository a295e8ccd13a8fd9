package config

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"poolmonitor/internal/model"
)

const (
	LedgerFile     = "file"
	LedgerPostgres = "postgres"
	LedgerPebble   = "pebble"

	ModeRPC      = "rpc"
	ModeExplorer = "explorer"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	Mode            string
	ExplorerURL     string
	ExplorerAPIKey  string
	ChainID         uint64
	PrivateKey      string
	Token           string
	TokenDecimals   uint8
	RewardPerBlock  decimal.Decimal
	RewardStart     uint64
	BigBlockRange   uint64
	SmallBlockRange uint64
	RPCRate         float64
	MaxRetries      int
	RetryBackoff    time.Duration
	BatchSize       int
	Ledger          string
	LedgerPath      string
	PGDSN           string
	Channel         string
	Author          string
	Pools           []model.PoolConfig
	LogLevel        string
	MetricsAddr     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("mode", ModeRPC)
	v.SetDefault("explorer-url", "https://api.etherscan.io/api")
	v.SetDefault("reward-per-block", "0")
	v.SetDefault("big-block-range", uint64(50000))
	v.SetDefault("small-block-range", uint64(1000))
	v.SetDefault("rpc-rate", 0)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("batch-size", 40)
	v.SetDefault("ledger", LedgerFile)
	v.SetDefault("ledger-path", "./data/distributions.jsonl")
	v.SetDefault("channel", "poolmonitor")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	perBlock, err := decimal.NewFromString(strings.TrimSpace(v.GetString("reward-per-block")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid reward-per-block: %w", err)
	}
	decimals := v.GetUint("token-decimals")
	if decimals > 255 {
		return Config{}, fmt.Errorf("token-decimals out of range: %d", decimals)
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		Mode:            strings.ToLower(v.GetString("mode")),
		ExplorerURL:     v.GetString("explorer-url"),
		ExplorerAPIKey:  v.GetString("explorer-api-key"),
		ChainID:         v.GetUint64("chain-id"),
		PrivateKey:      v.GetString("pkey"),
		Token:           v.GetString("token"),
		TokenDecimals:   uint8(decimals),
		RewardPerBlock:  perBlock,
		RewardStart:     v.GetUint64("reward-start"),
		BigBlockRange:   v.GetUint64("big-block-range"),
		SmallBlockRange: v.GetUint64("small-block-range"),
		RPCRate:         v.GetFloat64("rpc-rate"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		BatchSize:       v.GetInt("batch-size"),
		Ledger:          strings.ToLower(v.GetString("ledger")),
		LedgerPath:      v.GetString("ledger-path"),
		PGDSN:           v.GetString("pg-dsn"),
		Channel:         v.GetString("channel"),
		Author:          v.GetString("author"),
		LogLevel:        v.GetString("log-level"),
		MetricsAddr:     v.GetString("metrics-addr"),
	}
	if err := v.UnmarshalKey("pools", &cfg.Pools); err != nil {
		return Config{}, fmt.Errorf("decode pools: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings every distribution run needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	switch c.Mode {
	case ModeRPC:
	case ModeExplorer:
		if c.ExplorerURL == "" {
			return fmt.Errorf("explorer-url is required in explorer mode")
		}
	default:
		return fmt.Errorf("unsupported mode: %s", c.Mode)
	}
	if _, err := ParseAddress(c.Token); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool is required")
	}
	seen := make(map[common.Address]int, len(c.Pools))
	for i, p := range c.Pools {
		addr, err := ParseAddress(p.Address)
		if err != nil {
			return fmt.Errorf("pool %d: %w", i, err)
		}
		if first, ok := seen[addr]; ok {
			return fmt.Errorf("pool %d duplicates pool %d (%s)", i, first, addr.Hex())
		}
		seen[addr] = i
	}
	if c.RewardPerBlock.IsNegative() {
		return fmt.Errorf("reward-per-block must not be negative")
	}
	if c.BigBlockRange == 0 || c.SmallBlockRange == 0 {
		return fmt.Errorf("block ranges must be greater than zero")
	}
	switch c.Ledger {
	case LedgerFile, LedgerPebble:
		if c.LedgerPath == "" {
			return fmt.Errorf("ledger-path is required for the %s ledger", c.Ledger)
		}
	case LedgerPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unsupported ledger: %s", c.Ledger)
	}
	return nil
}

// Key parses the signing key. It returns nil when no key is configured.
func (c Config) Key() (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(c.PrivateKey), "0x")
	if raw == "" {
		return nil, nil
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid pkey: %w", err)
	}
	return key, nil
}

// ResolveAuthor returns the configured ledger author, falling back to the
// address of the signing key.
func (c Config) ResolveAuthor() (string, error) {
	if c.Author != "" {
		return c.Author, nil
	}
	key, err := c.Key()
	if err != nil {
		return "", err
	}
	if key == nil {
		return "", nil
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}
