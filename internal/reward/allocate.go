package reward

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrNoPoolWeight is returned when every configured pool weighs zero.
var ErrNoPoolWeight = errors.New("total pool weight is zero")

// Allocation is the reward owed per holder for one pool window.
type Allocation struct {
	Amounts map[common.Address]decimal.Decimal
	Start   uint64
	End     uint64
}

// Total returns the sum of all amounts.
func (a Allocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range a.Amounts {
		total = total.Add(amount)
	}
	return total
}

// StartHeight returns the height weights accrue from: the latest of the pool
// start, the program reward start and the window start.
func StartHeight(poolStart, programStart, windowStart uint64) uint64 {
	start := poolStart
	if programStart > start {
		start = programStart
	}
	if windowStart > start {
		start = windowStart
	}
	return start
}

// TotalBlocks returns the number of rewarded blocks, end - rewardStart.
func TotalBlocks(rewardStart, end uint64) uint64 {
	if end <= rewardStart {
		return 0
	}
	return end - rewardStart
}

// Allocate converts shares into token amounts: share × perBlock × totalBlocks.
func Allocate(shares Shares, perBlock decimal.Decimal, totalBlocks uint64) map[common.Address]decimal.Decimal {
	budget := perBlock.Mul(decimal.NewFromInt(int64(totalBlocks)))
	out := make(map[common.Address]decimal.Decimal, len(shares))
	for addr, share := range shares {
		amount := share.Mul(budget)
		if amount.IsPositive() {
			out[addr] = amount
		}
	}
	return out
}

// NormalizePoolWeights returns each pool's fraction of the summed weight.
func NormalizePoolWeights(weights map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	total := decimal.Zero
	for _, w := range weights {
		if w.IsPositive() {
			total = total.Add(w)
		}
	}
	if !total.IsPositive() {
		return nil, ErrNoPoolWeight
	}

	out := make(map[string]decimal.Decimal, len(weights))
	for pool, w := range weights {
		if !w.IsPositive() {
			out[pool] = decimal.Zero
			continue
		}
		out[pool] = w.DivRound(total, sharePrecision)
	}
	return out, nil
}

// Merge sums allocations into one recipient map keyed by checksummed address.
func Merge(allocations ...map[common.Address]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, alloc := range allocations {
		for addr, amount := range alloc {
			key := addr.Hex()
			out[key] = out[key].Add(amount)
		}
	}
	return out
}
