package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Records carry amounts as JSON numbers. decimal.Decimal decodes both quoted
// and bare numbers, so only encoding is customised.

// Number renders d as a JSON number.
func Number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// Numbers renders every amount in m as a JSON number. A nil map stays nil.
func Numbers(m map[string]decimal.Decimal) map[string]json.Number {
	if m == nil {
		return nil
	}
	out := make(map[string]json.Number, len(m))
	for k, v := range m {
		out[k] = Number(v)
	}
	return out
}

func (d Distribution) MarshalJSON() ([]byte, error) {
	type alias Distribution
	return json.Marshal(struct {
		alias
		PoolWeights map[string]json.Number `json:"pool_weights"`
	}{alias(d), Numbers(d.PoolWeights)})
}

func (p PoolInfo) MarshalJSON() ([]byte, error) {
	type alias PoolInfo
	return json.Marshal(struct {
		alias
		PerBlock     json.Number            `json:"per_block"`
		Distribution map[string]json.Number `json:"distribution"`
	}{alias(p), Number(p.PerBlock), Numbers(p.Distribution)})
}

func (a TransferAttempt) MarshalJSON() ([]byte, error) {
	type alias TransferAttempt
	return json.Marshal(struct {
		alias
		Targets map[string]json.Number `json:"targets"`
		Total   json.Number            `json:"total"`
	}{alias(a), Numbers(a.Targets), Number(a.Total)})
}
