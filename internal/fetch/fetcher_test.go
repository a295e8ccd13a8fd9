package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type limitError struct{}

func (limitError) Error() string  { return "query returned more than 10000 results" }
func (limitError) ErrorCode() int { return -32005 }

// fakeSource serves logs from memory and rejects windows wider than maxBlocks.
type fakeSource struct {
	head      uint64
	logs      []types.Log
	maxBlocks uint64
	failAt    uint64
	calls     []BlockRange
}

func (s *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	return s.head, nil
}

func (s *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	s.calls = append(s.calls, BlockRange{From: from, To: to})
	if s.maxBlocks > 0 && to-from+1 > s.maxBlocks {
		return nil, limitError{}
	}
	if s.failAt != 0 && from <= s.failAt && s.failAt <= to {
		return nil, errors.New("upstream exploded")
	}
	var out []types.Log
	for _, l := range s.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func makeLogs(heights ...uint64) []types.Log {
	logs := make([]types.Log, 0, len(heights))
	for i, h := range heights {
		logs = append(logs, types.Log{BlockNumber: h, Index: uint(i)})
	}
	return logs
}

func drain(t *testing.T, it *Iterator) []types.Log {
	t.Helper()
	ctx := context.Background()
	var out []types.Log
	for it.Next(ctx) {
		out = append(out, it.Log())
	}
	require.NoError(t, it.Err())
	return out
}

func TestFetchFastPath(t *testing.T) {
	src := &fakeSource{head: 1000, logs: makeLogs(5, 10, 10, 500, 999)}
	f := NewFetcher(src, Config{BigStride: 100, SmallStride: 10}, zap.NewNop())

	it, end, err := f.Fetch(context.Background(), Request{StartHeight: 5})
	require.NoError(t, err)
	require.Equal(t, uint64(1000), end)

	got := drain(t, it)
	require.Equal(t, []uint64{10, 10, 500, 999}, heights(got))
	require.Equal(t, []BlockRange{{From: 6, To: 1000}}, src.calls)
}

func TestFetchClampsEndToHead(t *testing.T) {
	src := &fakeSource{head: 50, logs: makeLogs(40, 60)}
	f := NewFetcher(src, Config{}, nil)

	it, end, err := f.Fetch(context.Background(), Request{StartHeight: 0, EndHeight: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(50), end)
	require.Equal(t, []uint64{40}, heights(drain(t, it)))

	it, end, err = f.Fetch(context.Background(), Request{StartHeight: 0, EndHeight: 45})
	require.NoError(t, err)
	require.Equal(t, uint64(45), end)
	require.Equal(t, []uint64{40}, heights(drain(t, it)))
}

func TestFetchEmptyWindow(t *testing.T) {
	src := &fakeSource{head: 10}
	f := NewFetcher(src, Config{}, nil)

	it, end, err := f.Fetch(context.Background(), Request{StartHeight: 10})
	require.NoError(t, err)
	require.Equal(t, uint64(10), end)
	require.Empty(t, drain(t, it))
	require.Empty(t, src.calls)
}

func TestFetchPaginatesAfterSizeLimit(t *testing.T) {
	src := &fakeSource{head: 350, logs: makeLogs(1, 99, 100, 101, 250, 350), maxBlocks: 100}
	f := NewFetcher(src, Config{BigStride: 100, SmallStride: 10}, nil)

	it, _, err := f.Fetch(context.Background(), Request{StartHeight: 0})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 99, 100, 101, 250, 350}, heights(drain(t, it)))

	require.Equal(t, []BlockRange{
		{From: 1, To: 350},
		{From: 1, To: 100},
		{From: 101, To: 200},
		{From: 201, To: 300},
		{From: 301, To: 350},
	}, src.calls)
}

func TestFetchNarrowsWithinStride(t *testing.T) {
	src := &fakeSource{head: 120, logs: makeLogs(3, 15, 40, 120), maxBlocks: 20}
	f := NewFetcher(src, Config{BigStride: 100, SmallStride: 20}, nil)

	it, _, err := f.Fetch(context.Background(), Request{StartHeight: 0})
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 15, 40, 120}, heights(drain(t, it)))

	// The rejected sub-window is retried narrower, never skipped, and the
	// stride returns to big after each narrowed success.
	require.Equal(t, []BlockRange{
		{From: 1, To: 120},
		{From: 1, To: 100},
		{From: 1, To: 20},
		{From: 21, To: 120},
		{From: 21, To: 40},
		{From: 41, To: 120},
		{From: 41, To: 60},
		{From: 61, To: 120},
		{From: 61, To: 80},
		{From: 81, To: 120},
		{From: 81, To: 100},
		{From: 101, To: 120},
	}, src.calls)
}

func TestFetchHalvesBelowSmallStride(t *testing.T) {
	src := &fakeSource{head: 8, logs: makeLogs(2, 8), maxBlocks: 2}
	f := NewFetcher(src, Config{BigStride: 8, SmallStride: 4}, nil)

	it, _, err := f.Fetch(context.Background(), Request{StartHeight: 0})
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 8}, heights(drain(t, it)))
}

func TestFetchSingleBlockOverLimitIsFatal(t *testing.T) {
	src := &fakeSource{head: 8}
	f := NewFetcher(&alwaysLimited{src}, Config{BigStride: 4, SmallStride: 2}, nil)

	it, _, err := f.Fetch(context.Background(), Request{StartHeight: 0})
	require.NoError(t, err)
	require.False(t, it.Next(context.Background()))
	require.Error(t, it.Err())
	require.Contains(t, it.Err().Error(), "exceeds provider log limit")
}

type alwaysLimited struct{ *fakeSource }

func (a *alwaysLimited) FilterLogs(context.Context, uint64, uint64, []common.Address, []common.Hash) ([]types.Log, error) {
	return nil, limitError{}
}

func TestFetchFatalErrorAborts(t *testing.T) {
	src := &fakeSource{head: 300, logs: makeLogs(10, 250), maxBlocks: 100, failAt: 250}
	f := NewFetcher(src, Config{BigStride: 100, SmallStride: 10}, nil)

	it, _, err := f.Fetch(context.Background(), Request{StartHeight: 0})
	require.NoError(t, err)

	var got []uint64
	for it.Next(context.Background()) {
		got = append(got, it.Log().BlockNumber)
	}
	require.Equal(t, []uint64{10}, got)
	require.ErrorContains(t, it.Err(), "upstream exploded")
}

func TestFetchPaginationEquivalence(t *testing.T) {
	var all []uint64
	for h := uint64(1); h <= 997; h += 7 {
		all = append(all, h, h)
	}

	for _, n := range []uint64{0, 1, 13, 100, 500, 996} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			start := uint64(1)

			direct := &fakeSource{head: 2000, logs: makeLogs(all...)}
			it, _, err := NewFetcher(direct, Config{}, nil).Fetch(context.Background(), Request{StartHeight: start, EndHeight: start + n})
			require.NoError(t, err)
			want := drain(t, it)

			paged := &fakeSource{head: 2000, logs: makeLogs(all...), maxBlocks: 9}
			it, _, err = NewFetcher(paged, Config{BigStride: 50, SmallStride: 9}, nil).Fetch(context.Background(), Request{StartHeight: start, EndHeight: start + n})
			require.NoError(t, err)
			got := drain(t, it)

			require.Equal(t, want, got)
		})
	}
}

func heights(logs []types.Log) []uint64 {
	out := make([]uint64, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.BlockNumber)
	}
	return out
}
