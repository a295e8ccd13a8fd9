package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource reports the next usable nonce of an account.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Sequencer hands out transaction nonces for one sender. The first use seeds
// it from the provider; afterwards it only advances after a successful send.
type Sequencer struct {
	mu      sync.Mutex
	source  NonceSource
	account common.Address
	next    uint64
	seeded  bool
}

// NewSequencer builds a Sequencer for account.
func NewSequencer(source NonceSource, account common.Address) *Sequencer {
	return &Sequencer{source: source, account: account}
}

// Do runs fn with the next nonce while holding the sequencer. The nonce is
// consumed only when fn returns nil.
func (s *Sequencer) Do(ctx context.Context, fn func(nonce uint64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		if s.source == nil {
			return fmt.Errorf("nonce source is nil")
		}
		nonce, err := s.source.PendingNonceAt(ctx, s.account)
		if err != nil {
			return fmt.Errorf("pending nonce: %w", err)
		}
		s.next = nonce
		s.seeded = true
	}

	if err := fn(s.next); err != nil {
		return err
	}
	s.next++
	return nil
}

// Next returns the nonce the next send will use, and whether it is known yet.
func (s *Sequencer) Next() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next, s.seeded
}
