package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type fakeNonceSource struct {
	nonce uint64
	calls int
}

func (f *fakeNonceSource) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.calls++
	return f.nonce, nil
}

func TestSequencerAdvancesOnlyOnSuccess(t *testing.T) {
	src := &fakeNonceSource{nonce: 7}
	seq := NewSequencer(src, common.Address{})
	ctx := context.Background()

	_, known := seq.Next()
	require.False(t, known)

	var used []uint64
	record := func(n uint64) error { used = append(used, n); return nil }

	require.NoError(t, seq.Do(ctx, record))
	sendErr := errors.New("nonce too low")
	require.ErrorIs(t, seq.Do(ctx, func(n uint64) error { used = append(used, n); return sendErr }), sendErr)
	require.NoError(t, seq.Do(ctx, record))

	require.Equal(t, []uint64{7, 8, 8}, used)
	next, known := seq.Next()
	require.True(t, known)
	require.Equal(t, uint64(9), next)
	require.Equal(t, 1, src.calls)
}

func TestSequencerSerializesConcurrentUse(t *testing.T) {
	seq := NewSequencer(&fakeNonceSource{}, common.Address{})

	var mu sync.Mutex
	seen := make(map[uint64]int)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = seq.Do(context.Background(), func(n uint64) error {
				mu.Lock()
				seen[n]++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, seen, 32)
	for n, count := range seen {
		require.Less(t, n, uint64(32))
		require.Equal(t, 1, count)
	}
}
