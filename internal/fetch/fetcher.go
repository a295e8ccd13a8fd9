package fetch

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"poolmonitor/internal/chain"
	"poolmonitor/internal/metrics"
)

const (
	DefaultBigStride   uint64 = 50000
	DefaultSmallStride uint64 = 1000
)

// LogSource is the subset of the chain provider the fetcher needs.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Config holds pagination strides.
type Config struct {
	BigStride   uint64
	SmallStride uint64
}

// Request selects the logs of one contract.
type Request struct {
	Address common.Address
	Topics  []common.Hash
	// StartHeight is exclusive: logs are returned from StartHeight+1.
	StartHeight uint64
	// EndHeight is inclusive; zero means the provider head.
	EndHeight uint64
}

// Fetcher streams contract logs with adaptive pagination.
type Fetcher struct {
	source LogSource
	cfg    Config
	logger *zap.Logger
}

// NewFetcher builds a Fetcher with its dependencies.
func NewFetcher(source LogSource, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BigStride == 0 {
		cfg.BigStride = DefaultBigStride
	}
	if cfg.SmallStride == 0 {
		cfg.SmallStride = DefaultSmallStride
	}
	if cfg.SmallStride > cfg.BigStride {
		cfg.SmallStride = cfg.BigStride
	}
	return &Fetcher{source: source, cfg: cfg, logger: logger}
}

// Fetch reads the provider head once, clamps the window end to it and returns
// a lazy iterator over the window together with the clamped end height.
// Fetch holds no state between calls; re-invoking it restarts from scratch.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Iterator, uint64, error) {
	if f.source == nil {
		return nil, 0, fmt.Errorf("log source is nil")
	}

	head, err := f.source.LatestBlockNumber(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("get latest block: %w", err)
	}
	end := head
	if req.EndHeight > 0 && req.EndHeight < head {
		end = req.EndHeight
	}

	it := &Iterator{
		fetcher:  f,
		req:      req,
		next:     req.StartHeight + 1,
		end:      end,
		fastPath: true,
	}
	if it.next > it.end {
		it.done = true
	}
	return it, end, nil
}

type pageOutcome int

const (
	pageOK pageOutcome = iota
	// pageNarrow means the provider rejected the window as too large.
	pageNarrow
	pageFatal
)

func (o pageOutcome) String() string {
	switch o {
	case pageOK:
		return "ok"
	case pageNarrow:
		return "narrow"
	default:
		return "fatal"
	}
}

type pageResult struct {
	outcome pageOutcome
	logs    []types.Log
	err     error
}

func (f *Fetcher) page(ctx context.Context, req Request, r BlockRange) pageResult {
	logs, err := f.source.FilterLogs(ctx, r.From, r.To, []common.Address{req.Address}, req.Topics)
	var res pageResult
	switch {
	case err == nil:
		sort.SliceStable(logs, func(i, j int) bool {
			return logs[i].BlockNumber < logs[j].BlockNumber
		})
		res = pageResult{outcome: pageOK, logs: logs}
	case chain.IsRangeLimitError(err):
		res = pageResult{outcome: pageNarrow, err: err}
	default:
		res = pageResult{outcome: pageFatal, err: fmt.Errorf("get logs %d-%d: %w", r.From, r.To, err)}
	}
	metrics.FetchPagesTotal.WithLabelValues(res.outcome.String()).Inc()
	return res
}

// Iterator is a finite pull sequence of logs ordered by block height.
// It is not restartable; call Fetch again to replay a window.
type Iterator struct {
	fetcher  *Fetcher
	req      Request
	next     uint64
	end      uint64
	fastPath bool

	buf  []types.Log
	pos  int
	cur  types.Log
	err  error
	done bool
}

// Next advances to the next log, fetching pages on demand.
func (it *Iterator) Next(ctx context.Context) bool {
	for {
		if it.err != nil {
			return false
		}
		if it.pos < len(it.buf) {
			it.cur = it.buf[it.pos]
			it.pos++
			return true
		}
		if it.done {
			return false
		}
		if err := ctx.Err(); err != nil {
			it.err = err
			return false
		}
		if err := it.fill(ctx); err != nil {
			it.err = err
			return false
		}
	}
}

// Log returns the current log.
func (it *Iterator) Log() types.Log {
	return it.cur
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) load(logs []types.Log) {
	it.buf = logs
	it.pos = 0
}

func (it *Iterator) fill(ctx context.Context) error {
	f := it.fetcher
	logger := f.logger.With(zap.String("address", it.req.Address.Hex()))

	if it.fastPath {
		it.fastPath = false
		full := BlockRange{From: it.next, To: it.end}
		res := f.page(ctx, it.req, full)
		switch res.outcome {
		case pageOK:
			it.load(res.logs)
			it.done = true
			return nil
		case pageNarrow:
			logger.Info("log query too large, paginating",
				zap.Uint64("from", full.From),
				zap.Uint64("to", full.To),
				zap.Error(res.err),
			)
			return nil
		default:
			return res.err
		}
	}

	stride := f.cfg.BigStride
	for {
		r := window(it.next, stride, it.end)
		res := f.page(ctx, it.req, r)
		switch res.outcome {
		case pageOK:
			logger.Debug("fetched logs",
				zap.Uint64("from", r.From),
				zap.Uint64("to", r.To),
				zap.Uint64("blocks", r.Blocks()),
				zap.Int("logs", len(res.logs)),
			)
			it.load(res.logs)
			if r.To >= it.end {
				it.done = true
			} else {
				it.next = r.To + 1
			}
			return nil
		case pageNarrow:
			next, ok := narrower(stride, f.cfg.SmallStride)
			if !ok {
				return fmt.Errorf("block %d exceeds provider log limit: %w", r.From, res.err)
			}
			logger.Info("narrowing log window",
				zap.Uint64("from", r.From),
				zap.Uint64("to", r.To),
				zap.Uint64("blocks", r.Blocks()),
				zap.Uint64("stride", next),
			)
			stride = next
		default:
			return res.err
		}
	}
}
