package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolmonitor/internal/model"
)

// Pool is a configured liquidity pool with its strategy bound.
type Pool struct {
	Address     common.Address
	Kind        Kind
	StartHeight uint64
	Multiplier  decimal.Decimal
	Exclude     []common.Address
}

// FromConfig validates a pool entry and binds its kind.
func FromConfig(cfg model.PoolConfig) (Pool, error) {
	if !common.IsHexAddress(cfg.Address) {
		return Pool{}, fmt.Errorf("invalid pool address: %s", cfg.Address)
	}
	kind, err := KindByName(cfg.Type)
	if err != nil {
		return Pool{}, fmt.Errorf("pool %s: %w", cfg.Address, err)
	}
	if cfg.Weight < 0 {
		return Pool{}, fmt.Errorf("pool %s: negative weight %v", cfg.Address, cfg.Weight)
	}

	multiplier := decimal.NewFromInt(1)
	if cfg.Weight > 0 {
		multiplier = decimal.NewFromFloat(cfg.Weight)
	}

	exclude := make([]common.Address, 0, len(cfg.Exclude))
	for _, raw := range cfg.Exclude {
		if !common.IsHexAddress(raw) {
			return Pool{}, fmt.Errorf("pool %s: invalid excluded address: %s", cfg.Address, raw)
		}
		exclude = append(exclude, common.HexToAddress(raw))
	}

	return Pool{
		Address:     common.HexToAddress(cfg.Address),
		Kind:        kind,
		StartHeight: cfg.StartHeight,
		Multiplier:  multiplier,
		Exclude:     exclude,
	}, nil
}

// Type returns the configured kind name.
func (p Pool) Type() string {
	if p.Kind == nil {
		return KindUniswapV2
	}
	return p.Kind.Name()
}

// Weight returns the pool's reward token value scaled by its multiplier.
func (p Pool) Weight(ctx context.Context, caller Caller, token common.Address) (decimal.Decimal, error) {
	if p.Kind == nil {
		return decimal.Zero, fmt.Errorf("pool %s has no kind", p.Address.Hex())
	}
	reserve, err := p.Kind.Reserve(ctx, caller, p.Address, token)
	if err != nil {
		return decimal.Zero, err
	}
	return reserve.Mul(p.Multiplier), nil
}
