package transfer

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolmonitor/internal/metrics"
	"poolmonitor/internal/model"
)

const (
	DefaultBatchSize = 40
	// ChainETH is the chain label written on every attempt.
	ChainETH = "ETH"
)

// Submitter splits a recipient map into bounded batches and pays them one
// after the other through a Service.
type Submitter struct {
	service   Service
	batchSize int
	logger    *zap.Logger
}

// NewSubmitter builds a Submitter. A non-positive batchSize uses the default.
func NewSubmitter(service Service, batchSize int, logger *zap.Logger) *Submitter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{service: service, batchSize: batchSize, logger: logger}
}

// Submit pays recipients in address order, producing exactly one attempt per
// batch. Failures are recorded on the attempt and never returned.
func (s *Submitter) Submit(ctx context.Context, recipients map[string]decimal.Decimal) []model.TransferAttempt {
	batches := Batches(recipients, s.batchSize)
	attempts := make([]model.TransferAttempt, 0, len(batches))
	for i, batch := range batches {
		attempt := s.submitBatch(ctx, batch)
		metrics.TransferAttemptsTotal.WithLabelValues(string(attempt.Status)).Inc()
		if !attempt.Success {
			s.logger.Warn("batch transfer failed",
				zap.Int("batch", i),
				zap.Int("recipients", len(batch)),
				zap.String("total", attempt.Total.String()),
			)
		}
		attempts = append(attempts, attempt)
	}
	return attempts
}

func (s *Submitter) submitBatch(ctx context.Context, batch map[string]decimal.Decimal) model.TransferAttempt {
	total := decimal.Zero
	for _, amount := range batch {
		total = total.Add(amount)
	}
	attempt := model.TransferAttempt{
		Status:        model.AttemptFailed,
		Chain:         ChainETH,
		Targets:       batch,
		Total:         total,
		ContractTotal: "0",
	}

	if s.service == nil {
		s.logger.Error("transfer service is nil")
		return attempt
	}
	res, err := s.service.Transfer(ctx, batch)
	attempt.Sender = res.Sender
	if res.ContractTotal != nil {
		attempt.ContractTotal = res.ContractTotal.String()
	}
	if err != nil {
		s.logger.Error("transfer error", zap.Error(err))
		return attempt
	}

	attempt.Success = true
	attempt.Status = model.AttemptPending
	attempt.TxHash = res.TxHash
	return attempt
}

// Batches partitions recipients into address-ordered chunks of at most size
// entries.
func Batches(recipients map[string]decimal.Decimal, size int) []map[string]decimal.Decimal {
	if size <= 0 {
		size = DefaultBatchSize
	}
	keys := make([]string, 0, len(recipients))
	for k := range recipients {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []map[string]decimal.Decimal
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		batch := make(map[string]decimal.Decimal, end-start)
		for _, k := range keys[start:end] {
			batch[k] = recipients[k]
		}
		out = append(out, batch)
	}
	return out
}
