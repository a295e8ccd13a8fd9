package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolmonitor/internal/chain"
)

// Caller performs read-only contract calls.
type Caller = chain.ContractCaller

func callMethod(ctx context.Context, caller Caller, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	return chain.CallMethod(ctx, caller, contract, parsed, method, args...)
}

func asAddress(value interface{}) (common.Address, error) {
	v, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
	return v, nil
}

func asAddresses(value interface{}) ([]common.Address, error) {
	v, ok := value.([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unsupported address list type %T", value)
	}
	return v, nil
}

// asBigInt copies a uint256-family output; abi decodes every width above 64
// bits as *big.Int.
func asBigInt(value interface{}) (*big.Int, error) {
	v, ok := value.(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
	return new(big.Int).Set(v), nil
}
