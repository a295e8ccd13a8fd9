package transfer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolmonitor/internal/chain"
)

const (
	baseGas         uint64 = 20000
	gasPerRecipient uint64 = 20000
)

// ErrInsufficientBalance is returned before broadcasting when the sender
// cannot cover a batch.
var ErrInsufficientBalance = errors.New("insufficient token balance")

// Result describes a transfer as far as it progressed. It is populated even
// when Transfer returns an error.
type Result struct {
	TxHash        *string
	Sender        string
	ContractTotal *big.Int
}

// Service pays a batch of recipients in one call.
type Service interface {
	Transfer(ctx context.Context, targets map[string]decimal.Decimal) (Result, error)
}

// Backend is the chain access TokenService needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TokenOptions configures a TokenService.
type TokenOptions struct {
	Token   common.Address
	ChainID *big.Int
	Key     *ecdsa.PrivateKey
	// Decimals overrides the token's decimals(); zero queries the contract.
	Decimals uint8
	Logger   *zap.Logger
}

// TokenService pays rewards through the token's batchTransfer method.
type TokenService struct {
	backend   Backend
	sequencer *Sequencer
	token     common.Address
	chainID   *big.Int
	key       *ecdsa.PrivateKey
	sender    common.Address
	logger    *zap.Logger

	mu            sync.Mutex
	decimals      uint8
	decimalsKnown bool
}

// NewTokenService builds a TokenService signing with opts.Key.
func NewTokenService(backend Backend, sequencer *Sequencer, opts TokenOptions) (*TokenService, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is nil")
	}
	if sequencer == nil {
		return nil, fmt.Errorf("sequencer is nil")
	}
	if opts.Key == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if opts.ChainID == nil || opts.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &TokenService{
		backend:   backend,
		sequencer: sequencer,
		token:     opts.Token,
		chainID:   new(big.Int).Set(opts.ChainID),
		key:       opts.Key,
		sender:    crypto.PubkeyToAddress(opts.Key.PublicKey),
		logger:    opts.Logger,
	}
	if opts.Decimals > 0 {
		s.decimals, s.decimalsKnown = opts.Decimals, true
	}
	return s, nil
}

// Sender returns the address rewards are paid from.
func (s *TokenService) Sender() common.Address {
	return s.sender
}

// Decimals returns the token decimals, querying the contract until it answers.
func (s *TokenService) Decimals(ctx context.Context) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decimalsKnown {
		return s.decimals, nil
	}

	values, err := s.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unsupported decimals type %T", values[0])
	}
	s.decimals, s.decimalsKnown = d, true
	return d, nil
}

// BalanceOf returns the token balance of account in base units.
func (s *TokenService) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	values, err := s.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unsupported balance type %T", values[0])
	}
	return balance, nil
}

// Transfer signs and broadcasts one batchTransfer call for targets.
func (s *TokenService) Transfer(ctx context.Context, targets map[string]decimal.Decimal) (Result, error) {
	res := Result{Sender: s.sender.Hex()}

	decimals, err := s.Decimals(ctx)
	if err != nil {
		return res, fmt.Errorf("token decimals: %w", err)
	}

	recipients, amounts, total, err := toBaseUnits(targets, decimals)
	if err != nil {
		return res, err
	}
	res.ContractTotal = total

	balance, err := s.BalanceOf(ctx, s.sender)
	if err != nil {
		return res, fmt.Errorf("sender balance: %w", err)
	}
	if balance.Cmp(total) < 0 {
		return res, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, total, balance)
	}

	parsed, err := TokenABI()
	if err != nil {
		return res, fmt.Errorf("parse token abi: %w", err)
	}
	data, err := parsed.Pack("batchTransfer", recipients, amounts)
	if err != nil {
		return res, fmt.Errorf("pack batchTransfer: %w", err)
	}

	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return res, fmt.Errorf("gas price: %w", err)
	}
	gas := baseGas + gasPerRecipient*uint64(len(recipients))
	signer := types.LatestSignerForChainID(s.chainID)

	err = s.sequencer.Do(ctx, func(nonce uint64) error {
		tx, err := types.SignNewTx(s.key, signer, &types.LegacyTx{
			Nonce:    nonce,
			To:       &s.token,
			Value:    new(big.Int),
			Gas:      gas,
			GasPrice: gasPrice,
			Data:     data,
		})
		if err != nil {
			return fmt.Errorf("sign tx: %w", err)
		}
		if err := s.backend.SendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("send tx: %w", err)
		}
		hash := tx.Hash().Hex()
		res.TxHash = &hash
		s.logger.Info("batch transfer sent",
			zap.String("tx", hash),
			zap.Uint64("nonce", nonce),
			zap.Int("recipients", len(recipients)),
			zap.String("total", total.String()),
		)
		return nil
	})
	return res, err
}

func (s *TokenService) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := TokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	return chain.CallMethod(ctx, s.backend, s.token, parsed, method, args...)
}

// toBaseUnits orders targets by address and scales amounts by 10^decimals,
// truncating any remainder.
func toBaseUnits(targets map[string]decimal.Decimal, decimals uint8) ([]common.Address, []*big.Int, *big.Int, error) {
	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	recipients := make([]common.Address, 0, len(keys))
	amounts := make([]*big.Int, 0, len(keys))
	total := new(big.Int)
	for _, k := range keys {
		if !common.IsHexAddress(k) {
			return nil, nil, nil, fmt.Errorf("invalid recipient address: %s", k)
		}
		amount := targets[k].Shift(int32(decimals)).BigInt()
		if amount.Sign() < 0 {
			return nil, nil, nil, fmt.Errorf("negative amount for %s", k)
		}
		recipients = append(recipients, common.HexToAddress(k))
		amounts = append(amounts, amount)
		total.Add(total, amount)
	}
	return recipients, amounts, total, nil
}
