package reward

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStartHeightTakesLatest(t *testing.T) {
	require.Equal(t, uint64(30), StartHeight(10, 20, 30))
	require.Equal(t, uint64(25), StartHeight(25, 20, 0))
	require.Equal(t, uint64(20), StartHeight(0, 20, 5))
}

func TestTotalBlocks(t *testing.T) {
	require.Equal(t, uint64(20), TotalBlocks(10, 30))
	require.Equal(t, uint64(0), TotalBlocks(30, 30))
	require.Equal(t, uint64(0), TotalBlocks(40, 30))
}

func TestNormalizePoolWeights(t *testing.T) {
	shares, err := NormalizePoolWeights(map[string]decimal.Decimal{
		"0xa": decimal.NewFromInt(300),
		"0xb": decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.True(t, shares["0xa"].Equal(decimal.RequireFromString("0.75")))
	require.True(t, shares["0xb"].Equal(decimal.RequireFromString("0.25")))

	_, err = NormalizePoolWeights(map[string]decimal.Decimal{"0xa": decimal.Zero})
	require.ErrorIs(t, err, ErrNoPoolWeight)
}

func TestMergeSumsAcrossPools(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	b := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	merged := Merge(
		map[common.Address]decimal.Decimal{a: decimal.NewFromInt(5), b: decimal.NewFromInt(1)},
		map[common.Address]decimal.Decimal{a: decimal.RequireFromString("2.5")},
	)
	require.Len(t, merged, 2)
	require.True(t, merged[a.Hex()].Equal(decimal.RequireFromString("7.5")))
	require.True(t, merged[b.Hex()].Equal(decimal.NewFromInt(1)))
}
