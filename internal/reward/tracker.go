package reward

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"poolmonitor/internal/model"
)

// sharePrecision is the number of decimal places kept when dividing weights.
const sharePrecision int32 = 36

// Weights maps a holder to its accumulated balance × blocks.
type Weights map[common.Address]*big.Int

// Shares maps a holder to its fraction of the total weight.
type Shares map[common.Address]decimal.Decimal

// LogIterator is a pull sequence of raw logs ordered by height.
type LogIterator interface {
	Next(ctx context.Context) bool
	Log() types.Log
	Err() error
}

// Decoder turns a raw pool log into a transfer event.
type Decoder func(types.Log) (model.TransferEvent, error)

// Tracker replays transfers and accumulates time-weighted balances over
// [rewardStart, windowEnd]. A Tracker is single use and not safe for
// concurrent use.
type Tracker struct {
	rewardStart uint64
	windowEnd   uint64
	last        uint64

	balances map[common.Address]*big.Int
	weights  Weights
	excluded map[common.Address]struct{}
	done     bool
}

// NewTracker returns a tracker for the given reward window. The zero address
// is always excluded from weights; extra addresses may be passed in.
func NewTracker(rewardStart, windowEnd uint64, excluded ...common.Address) *Tracker {
	ex := map[common.Address]struct{}{common.Address{}: {}}
	for _, addr := range excluded {
		ex[addr] = struct{}{}
	}
	return &Tracker{
		rewardStart: rewardStart,
		windowEnd:   windowEnd,
		last:        rewardStart,
		balances:    make(map[common.Address]*big.Int),
		weights:     make(Weights),
		excluded:    ex,
	}
}

// RewardStart returns the height weights start accruing from.
func (t *Tracker) RewardStart() uint64 {
	return t.rewardStart
}

// Apply folds one event into the tracker. It returns false once the event is
// beyond the window end; later events are ignored.
func (t *Tracker) Apply(ev model.TransferEvent) bool {
	if t.done {
		return false
	}
	if ev.BlockNumber > t.windowEnd {
		t.done = true
		return false
	}

	// Events at or before the reward start only move balances.
	if ev.BlockNumber > t.rewardStart {
		t.accrue(ev.BlockNumber)
		t.last = ev.BlockNumber
	}

	amount := ev.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	t.balance(ev.From).Sub(t.balance(ev.From), amount)
	t.balance(ev.To).Add(t.balance(ev.To), amount)
	return true
}

// Finish closes the interval up to the window end and returns the weights.
func (t *Tracker) Finish() Weights {
	t.done = true
	if t.windowEnd > t.last {
		t.accrue(t.windowEnd)
		t.last = t.windowEnd
	}

	out := make(Weights, len(t.weights))
	for addr, w := range t.weights {
		out[addr] = new(big.Int).Set(w)
	}
	return out
}

// Balance returns the current reconstructed balance of addr.
func (t *Tracker) Balance(addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Accumulate drains it through decode into the tracker and returns the number
// of events applied.
func (t *Tracker) Accumulate(ctx context.Context, it LogIterator, decode Decoder) (int, error) {
	applied := 0
	for it.Next(ctx) {
		ev, err := decode(it.Log())
		if err != nil {
			return applied, fmt.Errorf("decode transfer: %w", err)
		}
		if !t.Apply(ev) {
			break
		}
		applied++
	}
	if err := it.Err(); err != nil {
		return applied, err
	}
	return applied, nil
}

func (t *Tracker) balance(addr common.Address) *big.Int {
	b, ok := t.balances[addr]
	if !ok {
		b = new(big.Int)
		t.balances[addr] = b
	}
	return b
}

func (t *Tracker) accrue(current uint64) {
	if current <= t.last {
		return
	}
	span := new(big.Int).SetUint64(current - t.last)
	for addr, bal := range t.balances {
		if bal.Sign() <= 0 {
			continue
		}
		if _, skip := t.excluded[addr]; skip {
			continue
		}
		w, ok := t.weights[addr]
		if !ok {
			w = new(big.Int)
			t.weights[addr] = w
		}
		w.Add(w, new(big.Int).Mul(bal, span))
	}
}

// Normalize divides each positive weight by the sum of positive weights.
// Zero weights are dropped; an all-zero input yields empty shares.
func Normalize(weights Weights) Shares {
	total := new(big.Int)
	for _, w := range weights {
		if w.Sign() > 0 {
			total.Add(total, w)
		}
	}
	shares := make(Shares)
	if total.Sign() == 0 {
		return shares
	}

	denom := decimal.NewFromBigInt(total, 0)
	for addr, w := range weights {
		if w.Sign() <= 0 {
			continue
		}
		shares[addr] = decimal.NewFromBigInt(w, 0).DivRound(denom, sharePrecision)
	}
	return shares
}
