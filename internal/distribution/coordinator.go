package distribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolmonitor/internal/fetch"
	"poolmonitor/internal/ledger"
	"poolmonitor/internal/metrics"
	"poolmonitor/internal/model"
	"poolmonitor/internal/pool"
	"poolmonitor/internal/reward"
)

// ChainName is the chain label written on distribution records.
const ChainName = "ETH"

// ErrNothingToDistribute is returned when the resolved window is empty.
var ErrNothingToDistribute = errors.New("nothing to distribute")

// Chain is the provider access a run needs.
type Chain interface {
	fetch.LogSource
	pool.Caller
}

// Submitter pays a recipient map and reports one attempt per batch.
type Submitter interface {
	Submit(ctx context.Context, recipients map[string]decimal.Decimal) []model.TransferAttempt
}

// Config holds the reward program settings.
type Config struct {
	Token          common.Address
	RewardPerBlock decimal.Decimal
	RewardStart    uint64
	ChainID        uint64
	Author         string
	Channel        string
	Fetch          fetch.Config
	// Logs replaces the chain as the source of pool logs and of the head
	// height that bounds the window.
	Logs  fetch.LogSource
	Clock clockwork.Clock
}

// RunOptions selects the window and whether to pay.
type RunOptions struct {
	// StartHeight defaults to the ledger resumption cursor.
	StartHeight *uint64
	// EndHeight defaults to the provider head.
	EndHeight *uint64
	// Act executes transfers; otherwise the run is a dry calculation.
	Act bool
}

// Coordinator computes one distribution across all pools and records it.
type Coordinator struct {
	cfg       Config
	chain     Chain
	pools     []pool.Pool
	ledger    ledger.Ledger
	submitter Submitter
	logs      fetch.LogSource
	fetcher   *fetch.Fetcher
	logger    *zap.Logger
}

// NewCoordinator builds a Coordinator with its dependencies. submitter may be
// nil when the caller never acts.
func NewCoordinator(cfg Config, chain Chain, pools []pool.Pool, l ledger.Ledger, submitter Submitter, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	var logs fetch.LogSource = chain
	if cfg.Logs != nil {
		logs = cfg.Logs
	}
	return &Coordinator{
		cfg:       cfg,
		chain:     chain,
		pools:     pools,
		ledger:    l,
		submitter: submitter,
		logs:      logs,
		fetcher:   fetch.NewFetcher(logs, cfg.Fetch, logger),
		logger:    logger,
	}
}

// Cursor returns the height the next run resumes from.
func (c *Coordinator) Cursor(ctx context.Context) (uint64, error) {
	if c.ledger == nil {
		return 0, fmt.Errorf("ledger is nil")
	}
	posts, err := c.ledger.QueryLatest(ctx, model.PostType, c.cfg.Author)
	if err != nil {
		return 0, fmt.Errorf("query ledger: %w", err)
	}
	return ledger.ResumeHeight(posts), nil
}

// PoolWeights returns each pool's normalized share of the per-block reward.
func (c *Coordinator) PoolWeights(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw := make(map[string]decimal.Decimal, len(c.pools))
	for _, p := range c.pools {
		w, err := p.Weight(ctx, c.chain, c.cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("pool %s weight: %w", p.Address.Hex(), err)
		}
		raw[p.Address.Hex()] = w
	}
	return reward.NormalizePoolWeights(raw)
}

// Run resolves the window, computes every pool's allocation, optionally pays
// the merged recipients and appends the record to the ledger. Any pool error
// aborts the run before anything is paid or recorded.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions) (*model.Distribution, error) {
	if c.chain == nil {
		return nil, fmt.Errorf("chain is nil")
	}
	if c.ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if len(c.pools) == 0 {
		return nil, fmt.Errorf("at least one pool is required")
	}
	seen := make(map[common.Address]struct{}, len(c.pools))
	for _, p := range c.pools {
		if _, ok := seen[p.Address]; ok {
			return nil, fmt.Errorf("pool %s configured more than once", p.Address.Hex())
		}
		seen[p.Address] = struct{}{}
	}
	if opts.Act && c.submitter == nil {
		return nil, fmt.Errorf("transfers requested without a submitter")
	}

	start, end, err := c.window(ctx, opts)
	if err != nil {
		return nil, err
	}
	if start > end {
		c.logger.Info("nothing to distribute", zap.Uint64("start", start), zap.Uint64("end", end))
		return nil, ErrNothingToDistribute
	}
	c.logger.Info("distribution window", zap.Uint64("start", start), zap.Uint64("end", end), zap.Bool("act", opts.Act))

	poolWeights, err := c.PoolWeights(ctx)
	if err != nil {
		return nil, err
	}

	dist := &model.Distribution{
		Incentive:   model.IncentiveLiquidity,
		Status:      model.StatusCalculation,
		PoolWeights: poolWeights,
		Chain:       ChainName,
		ChainID:     c.cfg.ChainID,
		Pools:       make([]model.PoolInfo, 0, len(c.pools)),
	}

	allocations := make([]map[common.Address]decimal.Decimal, 0, len(c.pools))
	for _, p := range c.pools {
		perBlock := c.cfg.RewardPerBlock.Mul(poolWeights[p.Address.Hex()])
		alloc, err := c.processPool(ctx, p, perBlock, start, end)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", p.Address.Hex(), err)
		}
		allocations = append(allocations, alloc.Amounts)

		amounts := make(map[string]decimal.Decimal, len(alloc.Amounts))
		for addr, amount := range alloc.Amounts {
			amounts[addr.Hex()] = amount
		}
		dist.Pools = append(dist.Pools, model.PoolInfo{
			Address:      p.Address.Hex(),
			Type:         p.Type(),
			PerBlock:     perBlock,
			Distribution: amounts,
			Start:        alloc.Start,
			End:          alloc.End,
		})
	}
	recipients := reward.Merge(allocations...)
	metrics.WindowEndHeight.Set(float64(end))

	// Paid batches are recorded even if ctx is cancelled mid-submission.
	appendCtx := ctx
	if opts.Act {
		dist.Status = model.StatusDistribution
		c.logger.Info("submitting transfers", zap.Int("recipients", len(recipients)))
		dist.Targets = c.submitter.Submit(ctx, recipients)
		appendCtx = context.WithoutCancel(ctx)
	}

	post := model.Post{
		Type:    model.PostType,
		Author:  c.cfg.Author,
		Channel: c.cfg.Channel,
		Time:    c.cfg.Clock.Now().Unix(),
		Content: *dist,
	}
	id, err := c.ledger.Append(appendCtx, post)
	if err != nil {
		return dist, fmt.Errorf("append distribution: %w", err)
	}
	metrics.DistributionsTotal.WithLabelValues(string(dist.Status)).Inc()
	c.logger.Info("distribution recorded",
		zap.String("id", id),
		zap.String("status", string(dist.Status)),
		zap.Int("recipients", len(recipients)),
		zap.Int("attempts", len(dist.Targets)),
	)
	return dist, nil
}

func (c *Coordinator) window(ctx context.Context, opts RunOptions) (uint64, uint64, error) {
	var start uint64
	if opts.StartHeight != nil {
		start = *opts.StartHeight
	} else {
		cursor, err := c.Cursor(ctx)
		if err != nil {
			return 0, 0, err
		}
		start = cursor
		c.logger.Info("resume from ledger", zap.Uint64("start", start))
	}

	head, err := c.logs.LatestBlockNumber(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("get latest block: %w", err)
	}
	end := head
	if opts.EndHeight != nil && *opts.EndHeight < head {
		end = *opts.EndHeight
	}
	return start, end, nil
}

func (c *Coordinator) processPool(ctx context.Context, p pool.Pool, perBlock decimal.Decimal, start, end uint64) (reward.Allocation, error) {
	rewardStart := reward.StartHeight(p.StartHeight, c.cfg.RewardStart, start)
	tracker := reward.NewTracker(rewardStart, end, p.Exclude...)

	// Replay from the pool start; transfers before rewardStart only seed balances.
	applied := 0
	if end > p.StartHeight {
		topic, err := pool.TransferTopic()
		if err != nil {
			return reward.Allocation{}, err
		}
		it, fetchedEnd, err := c.fetcher.Fetch(ctx, fetch.Request{
			Address:     p.Address,
			Topics:      []common.Hash{topic},
			StartHeight: p.StartHeight,
			EndHeight:   end,
		})
		if err != nil {
			return reward.Allocation{}, err
		}
		if fetchedEnd != end {
			return reward.Allocation{}, fmt.Errorf("provider head %d below window end %d", fetchedEnd, end)
		}
		applied, err = tracker.Accumulate(ctx, it, pool.DecodeTransfer)
		if err != nil {
			return reward.Allocation{}, err
		}
		metrics.FetchedLogsTotal.WithLabelValues(p.Address.Hex()).Add(float64(applied))
	}

	shares := reward.Normalize(tracker.Finish())
	blocks := reward.TotalBlocks(rewardStart, end)
	alloc := reward.Allocation{Amounts: reward.Allocate(shares, perBlock, blocks), Start: start, End: end}
	c.logger.Info("pool processed",
		zap.String("pool", p.Address.Hex()),
		zap.Int("events", applied),
		zap.Uint64("reward_start", rewardStart),
		zap.Uint64("blocks", blocks),
		zap.Int("holders", len(alloc.Amounts)),
		zap.String("total", alloc.Total().String()),
	)
	return alloc, nil
}
