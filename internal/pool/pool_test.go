package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"poolmonitor/internal/model"
)

var (
	poolAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	rewardTkn = common.HexToAddress("0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa")
	otherTkn  = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

// fakeCaller answers eth_call with ABI-packed canned outputs keyed by method.
type fakeCaller struct {
	parsed  abi.ABI
	outputs map[string][]interface{}
	calls   []string
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := f.parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, method.Name)
	out, ok := f.outputs[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s", method.Name)
	}
	return method.Outputs.Pack(out...)
}

func pairCaller(t *testing.T, reserve0, reserve1 int64, token0, token1 common.Address) *fakeCaller {
	t.Helper()
	parsed, err := PairABI()
	require.NoError(t, err)
	return &fakeCaller{parsed: parsed, outputs: map[string][]interface{}{
		"getReserves": {big.NewInt(reserve0), big.NewInt(reserve1), uint32(1700000000)},
		"token0":      {token0},
		"token1":      {token1},
	}}
}

func TestUniswapV2ReserveDoublesRewardSide(t *testing.T) {
	caller := pairCaller(t, 500, 900, otherTkn, rewardTkn)
	reserve, err := UniswapV2{}.Reserve(context.Background(), caller, poolAddr, rewardTkn)
	require.NoError(t, err)
	require.True(t, reserve.Equal(decimal.NewFromInt(1800)), reserve.String())

	caller = pairCaller(t, 500, 900, rewardTkn, otherTkn)
	reserve, err = UniswapV2{}.Reserve(context.Background(), caller, poolAddr, rewardTkn)
	require.NoError(t, err)
	require.True(t, reserve.Equal(decimal.NewFromInt(1000)), reserve.String())
}

func TestUniswapV2Mismatch(t *testing.T) {
	caller := pairCaller(t, 1, 1, otherTkn, otherTkn)
	_, err := UniswapV2{}.Reserve(context.Background(), caller, poolAddr, rewardTkn)

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, poolAddr, mismatch.Pool)
	require.Equal(t, rewardTkn, mismatch.Token)
}

func balancerCaller(t *testing.T, tokens []common.Address, balance, weight *big.Int) *fakeCaller {
	t.Helper()
	parsed, err := BPoolABI()
	require.NoError(t, err)
	return &fakeCaller{parsed: parsed, outputs: map[string][]interface{}{
		"getCurrentTokens":    {tokens},
		"getBalance":          {balance},
		"getNormalizedWeight": {weight},
	}}
}

func TestBalancerReserveScalesByWeight(t *testing.T) {
	quarter := new(big.Int).Div(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), big.NewInt(4))
	caller := balancerCaller(t, []common.Address{otherTkn, rewardTkn}, big.NewInt(250), quarter)

	reserve, err := Balancer{}.Reserve(context.Background(), caller, poolAddr, rewardTkn)
	require.NoError(t, err)
	require.True(t, reserve.Equal(decimal.NewFromInt(1000)), reserve.String())
	require.Equal(t, []string{"getCurrentTokens", "getBalance", "getNormalizedWeight"}, caller.calls)
}

func TestBalancerMismatch(t *testing.T) {
	caller := balancerCaller(t, []common.Address{otherTkn}, big.NewInt(1), big.NewInt(1))
	_, err := Balancer{}.Reserve(context.Background(), caller, poolAddr, rewardTkn)

	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, []string{"getCurrentTokens"}, caller.calls)
}

func TestFromConfig(t *testing.T) {
	p, err := FromConfig(model.PoolConfig{
		Address:     poolAddr.Hex(),
		StartHeight: 42,
		Weight:      1.5,
		Exclude:     []string{otherTkn.Hex()},
	})
	require.NoError(t, err)
	require.Equal(t, KindUniswapV2, p.Type())
	require.Equal(t, uint64(42), p.StartHeight)
	require.Equal(t, []common.Address{otherTkn}, p.Exclude)

	caller := pairCaller(t, 100, 0, rewardTkn, otherTkn)
	weight, err := p.Weight(context.Background(), caller, rewardTkn)
	require.NoError(t, err)
	require.True(t, weight.Equal(decimal.NewFromInt(300)), weight.String())

	p, err = FromConfig(model.PoolConfig{Address: poolAddr.Hex(), Type: "Balancer"})
	require.NoError(t, err)
	require.Equal(t, KindBalancer, p.Type())
	require.True(t, p.Multiplier.Equal(decimal.NewFromInt(1)))

	_, err = FromConfig(model.PoolConfig{Address: poolAddr.Hex(), Type: "curve"})
	require.ErrorContains(t, err, "unsupported pool type")
	_, err = FromConfig(model.PoolConfig{Address: "nope"})
	require.Error(t, err)
}

func TestDecodeTransfer(t *testing.T) {
	parsed, err := PairABI()
	require.NoError(t, err)
	event := parsed.Events["Transfer"]

	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(12345))
	require.NoError(t, err)

	topic, err := TransferTopic()
	require.NoError(t, err)
	require.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", topic.Hex())

	ev, err := DecodeTransfer(types.Log{
		BlockNumber: 77,
		Index:       3,
		Topics:      []common.Hash{topic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        data,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(77), ev.BlockNumber)
	require.Equal(t, uint(3), ev.LogIndex)
	require.Equal(t, from, ev.From)
	require.Equal(t, to, ev.To)
	require.Equal(t, big.NewInt(12345), ev.Amount)

	_, err = DecodeTransfer(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	require.Error(t, err)
	_, err = DecodeTransfer(types.Log{Topics: []common.Hash{topic}})
	require.ErrorContains(t, err, "expected 3 topics")
}
