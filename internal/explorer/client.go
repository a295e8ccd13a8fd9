package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"poolmonitor/internal/chain"
)

const (
	DefaultURL = "https://api.etherscan.io/api"
	// MaxResults is the number of logs after which getLogs truncates its answer.
	MaxResults = 1000

	noRecords = "No records found"
)

// Options tunes the explorer client.
type Options struct {
	APIKey     string
	HTTPClient *http.Client
	// RequestsPerSecond limits outgoing calls; zero disables the limiter.
	RequestsPerSecond float64
	MaxRetries        int
	RetryBackoff      time.Duration
	Clock             clockwork.Clock
	Logger            *zap.Logger
}

// Client reads contract logs from an Etherscan-compatible HTTP API.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	limiter      *rate.Limiter
	clock        clockwork.Clock
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
}

// NewClient builds a Client for the API at baseURL.
func NewClient(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse explorer url: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       opts.APIKey,
		http:         opts.HTTPClient,
		limiter:      limiter,
		clock:        opts.Clock,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		logger:       opts.Logger,
	}, nil
}

// APIError is a status "0" answer other than an empty result.
type APIError struct {
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("explorer: %s: %s", e.Message, e.Detail)
}

// LimitError reports a getLogs answer that hit MaxResults and may be
// truncated. It carries the provider size-limit code so the fetcher narrows
// the window.
type LimitError struct {
	From, To uint64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("explorer: getLogs %d-%d hit the %d result page size", e.From, e.To, MaxResults)
}

func (e *LimitError) ErrorCode() int { return -32005 }

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type jsonError struct {
	code int
	msg  string
}

func (e jsonError) Error() string  { return e.msg }
func (e jsonError) ErrorCode() int { return e.code }

var _ rpc.Error = jsonError{}

type logEntry struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      string   `json:"blockNumber"`
	LogIndex         string   `json:"logIndex"`
	TransactionHash  string   `json:"transactionHash"`
	TransactionIndex string   `json:"transactionIndex"`
}

// LatestBlockNumber returns the explorer's view of the chain head.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	q := url.Values{}
	q.Set("module", "proxy")
	q.Set("action", "eth_blockNumber")

	var head uint64
	err := c.call(ctx, "block_number", q, func(env envelope) error {
		var raw string
		if err := json.Unmarshal(env.Result, &raw); err != nil {
			return fmt.Errorf("decode block number: %w", err)
		}
		n, err := parseQuantity(raw)
		if err != nil {
			return fmt.Errorf("decode block number: %w", err)
		}
		head = n
		return nil
	})
	return head, err
}

// FilterLogs queries getLogs for one contract. The API takes a single value
// per topic position, so at most one topic0 is accepted.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	if len(addresses) != 1 {
		return nil, fmt.Errorf("explorer getLogs needs exactly one address, got %d", len(addresses))
	}
	if len(topic0) > 1 {
		return nil, fmt.Errorf("explorer getLogs accepts one topic0, got %d", len(topic0))
	}

	q := url.Values{}
	q.Set("module", "logs")
	q.Set("action", "getLogs")
	q.Set("fromBlock", strconv.FormatUint(fromBlock, 10))
	q.Set("toBlock", strconv.FormatUint(toBlock, 10))
	q.Set("address", addresses[0].Hex())
	if len(topic0) == 1 {
		q.Set("topic0", topic0[0].Hex())
	}

	var logs []types.Log
	err := c.call(ctx, "get_logs", q, func(env envelope) error {
		if env.Status == "0" && env.Message == noRecords {
			logs = nil
			return nil
		}
		var entries []logEntry
		if err := json.Unmarshal(env.Result, &entries); err != nil {
			return fmt.Errorf("decode logs: %w", err)
		}
		if len(entries) >= MaxResults {
			return &LimitError{From: fromBlock, To: toBlock}
		}
		logs = make([]types.Log, 0, len(entries))
		for i, entry := range entries {
			l, err := entry.toLog()
			if err != nil {
				return fmt.Errorf("decode log %d: %w", i, err)
			}
			logs = append(logs, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// call sends one GET through the limiter, retrying transient failures, and
// hands the decoded envelope to handle.
func (c *Client) call(ctx context.Context, op string, q url.Values, handle func(envelope) error) error {
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	endpoint := c.baseURL + "?" + q.Encode()

	return chain.WithRetry(ctx, c.clock, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		env, err := c.get(ctx, endpoint)
		if err == nil {
			err = checkEnvelope(env)
		}
		if err == nil {
			err = handle(env)
		}
		if err != nil && chain.IsRetryable(err) {
			c.logger.Warn("explorer call failed", zap.String("op", op), zap.Error(err))
		}
		return err
	})
}

func (c *Client) get(ctx context.Context, endpoint string) (envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return envelope{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return envelope{}, rpc.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("decode explorer response: %w", err)
	}
	return env, nil
}

func checkEnvelope(env envelope) error {
	if env.Error != nil {
		return jsonError{code: env.Error.Code, msg: env.Error.Message}
	}
	if env.Status != "0" || env.Message == noRecords {
		return nil
	}
	// Failures carry their reason as a string result.
	var detail string
	if err := json.Unmarshal(env.Result, &detail); err != nil {
		detail = string(env.Result)
	}
	return &APIError{Message: env.Message, Detail: detail}
}

func (e logEntry) toLog() (types.Log, error) {
	if !common.IsHexAddress(e.Address) {
		return types.Log{}, fmt.Errorf("invalid address %q", e.Address)
	}
	height, err := parseQuantity(e.BlockNumber)
	if err != nil {
		return types.Log{}, fmt.Errorf("block number: %w", err)
	}
	index, err := parseQuantity(e.LogIndex)
	if err != nil {
		return types.Log{}, fmt.Errorf("log index: %w", err)
	}
	txIndex, err := parseQuantity(e.TransactionIndex)
	if err != nil {
		return types.Log{}, fmt.Errorf("transaction index: %w", err)
	}
	data := []byte{}
	if e.Data != "" && e.Data != "0x" {
		data, err = hexutil.Decode(e.Data)
		if err != nil {
			return types.Log{}, fmt.Errorf("data: %w", err)
		}
	}

	topics := make([]common.Hash, 0, len(e.Topics))
	for _, topic := range e.Topics {
		if topic == "" {
			continue
		}
		topics = append(topics, common.HexToHash(topic))
	}

	return types.Log{
		Address:     common.HexToAddress(e.Address),
		Topics:      topics,
		Data:        data,
		BlockNumber: height,
		TxHash:      common.HexToHash(e.TransactionHash),
		TxIndex:     uint(txIndex),
		Index:       uint(index),
	}, nil
}

// parseQuantity reads a hex quantity; the API writes zero as "0x".
func parseQuantity(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}
