package pool

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	KindUniswapV2 = "uniswap"
	KindBalancer  = "balancer"
)

// MismatchError reports a pool that does not hold the reward token.
type MismatchError struct {
	Pool  common.Address
	Token common.Address
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("pool %s not in pair with reward token %s", e.Pool.Hex(), e.Token.Hex())
}

// Kind measures how much of the reward token a pool holds, expressed in the
// token's base units.
type Kind interface {
	Name() string
	Reserve(ctx context.Context, caller Caller, pool, token common.Address) (decimal.Decimal, error)
}

// KindByName resolves a configured pool type. An empty name is uniswap.
func KindByName(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", KindUniswapV2:
		return UniswapV2{}, nil
	case KindBalancer:
		return Balancer{}, nil
	default:
		return nil, fmt.Errorf("unsupported pool type: %s", name)
	}
}

// UniswapV2 is a constant product pair. Its value in reward token is twice the
// reward token reserve.
type UniswapV2 struct{}

func (UniswapV2) Name() string { return KindUniswapV2 }

func (UniswapV2) Reserve(ctx context.Context, caller Caller, pool, token common.Address) (decimal.Decimal, error) {
	parsed, err := PairABI()
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := callMethod(ctx, caller, pool, parsed, "getReserves")
	if err != nil {
		return decimal.Zero, err
	}
	if len(values) < 2 {
		return decimal.Zero, fmt.Errorf("unexpected reserves values: %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return decimal.Zero, fmt.Errorf("reserve1: %w", err)
	}

	var reserve *big.Int
	for i, method := range []string{"token0", "token1"} {
		values, err := callMethod(ctx, caller, pool, parsed, method)
		if err != nil {
			return decimal.Zero, err
		}
		addr, err := asAddress(values[0])
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", method, err)
		}
		if sameAddress(addr, token) {
			reserve = reserve0
			if i == 1 {
				reserve = reserve1
			}
			break
		}
	}
	if reserve == nil {
		return decimal.Zero, &MismatchError{Pool: pool, Token: token}
	}

	return decimal.NewFromBigInt(new(big.Int).Lsh(reserve, 1), 0), nil
}

// Balancer is a weighted pool. Its value in reward token is the token balance
// divided by the token's normalized weight.
type Balancer struct{}

var normalizedWeightOne = decimal.New(1, 18)

func (Balancer) Name() string { return KindBalancer }

func (Balancer) Reserve(ctx context.Context, caller Caller, pool, token common.Address) (decimal.Decimal, error) {
	parsed, err := BPoolABI()
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse bpool abi: %w", err)
	}

	values, err := callMethod(ctx, caller, pool, parsed, "getCurrentTokens")
	if err != nil {
		return decimal.Zero, err
	}
	tokens, err := asAddresses(values[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("current tokens: %w", err)
	}
	var bound common.Address
	found := false
	for _, addr := range tokens {
		if sameAddress(addr, token) {
			bound, found = addr, true
			break
		}
	}
	if !found {
		return decimal.Zero, &MismatchError{Pool: pool, Token: token}
	}

	values, err = callMethod(ctx, caller, pool, parsed, "getBalance", bound)
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := asBigInt(values[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, parsed, "getNormalizedWeight", bound)
	if err != nil {
		return decimal.Zero, err
	}
	weight, err := asBigInt(values[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("normalized weight: %w", err)
	}
	if weight.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("pool %s reports zero weight for %s", pool.Hex(), token.Hex())
	}

	// Normalized weights are 18 decimal fixed point.
	return decimal.NewFromBigInt(balance, 0).
		Mul(normalizedWeightOne).
		DivRound(decimal.NewFromBigInt(weight, 0), 0), nil
}

func sameAddress(a, b common.Address) bool {
	return strings.EqualFold(a.Hex(), b.Hex())
}
