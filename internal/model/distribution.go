package model

import (
	"github.com/shopspring/decimal"
)

const (
	// IncentiveLiquidity is the incentive kind written on liquidity reward records.
	IncentiveLiquidity = "liquidity"
	// PostType is the ledger post type carrying distribution records.
	PostType = "incentive-distribution"
)

// Status is the lifecycle stage of a Distribution.
type Status string

const (
	StatusCalculation  Status = "calculation"
	StatusDistribution Status = "distribution"
)

// AttemptStatus is the outcome recorded on a TransferAttempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptFailed  AttemptStatus = "failed"
)

// Distribution is the durable record of one reward run.
type Distribution struct {
	Incentive   string                     `json:"incentive"`
	Status      Status                     `json:"status"`
	PoolWeights map[string]decimal.Decimal `json:"pool_weights"`
	Chain       string                     `json:"chain"`
	ChainID     uint64                     `json:"chain_id"`
	Pools       []PoolInfo                 `json:"pools"`
	Targets     []TransferAttempt          `json:"targets,omitempty"`
}

// PoolInfo is the per-pool section of a Distribution.
type PoolInfo struct {
	Address      string                     `json:"address"`
	Type         string                     `json:"type"`
	PerBlock     decimal.Decimal            `json:"per_block"`
	Distribution map[string]decimal.Decimal `json:"distribution"`
	Start        uint64                     `json:"start"`
	End          uint64                     `json:"end"`
}

// TransferAttempt records one batch submission.
type TransferAttempt struct {
	Success       bool                       `json:"success"`
	Status        AttemptStatus              `json:"status"`
	TxHash        *string                    `json:"tx"`
	Chain         string                     `json:"chain"`
	Sender        string                     `json:"sender"`
	Targets       map[string]decimal.Decimal `json:"targets"`
	Total         decimal.Decimal            `json:"total"`
	ContractTotal string                     `json:"contract_total"`
}

// HasSuccessfulTransfer reports whether at least one attempt succeeded.
func (d Distribution) HasSuccessfulTransfer() bool {
	for _, target := range d.Targets {
		if target.Success {
			return true
		}
	}
	return false
}

// MaxEnd returns the highest pool end height, or false when there are no pools.
func (d Distribution) MaxEnd() (uint64, bool) {
	if len(d.Pools) == 0 {
		return 0, false
	}
	var max uint64
	for _, pool := range d.Pools {
		if pool.End > max {
			max = pool.End
		}
	}
	return max, true
}

// Post wraps a Distribution with the ledger envelope.
type Post struct {
	ID      string       `json:"id,omitempty"`
	Type    string       `json:"type"`
	Author  string       `json:"author"`
	Channel string       `json:"channel"`
	Time    int64        `json:"time"`
	Content Distribution `json:"content"`
}
