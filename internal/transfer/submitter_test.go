package transfer

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"poolmonitor/internal/model"
)

type fakeService struct {
	failOn  map[int]error
	batches []map[string]decimal.Decimal
}

func (f *fakeService) Transfer(_ context.Context, targets map[string]decimal.Decimal) (Result, error) {
	idx := len(f.batches)
	f.batches = append(f.batches, targets)
	res := Result{Sender: "0xSender", ContractTotal: big.NewInt(int64(len(targets)))}
	if err := f.failOn[idx]; err != nil {
		return res, err
	}
	hash := fmt.Sprintf("0x%02d", idx)
	res.TxHash = &hash
	return res, nil
}

func recipients(n int) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("0x%040x", i+1)] = decimal.NewFromInt(int64(i + 1))
	}
	return out
}

func TestBatchesPartitionRecipients(t *testing.T) {
	for _, tc := range []struct{ r, b int }{{0, 40}, {1, 40}, {40, 40}, {41, 40}, {100, 7}, {5, 1}} {
		t.Run(fmt.Sprintf("r=%d,b=%d", tc.r, tc.b), func(t *testing.T) {
			all := recipients(tc.r)
			batches := Batches(all, tc.b)
			require.Len(t, batches, (tc.r+tc.b-1)/tc.b)

			seen := make(map[string]decimal.Decimal)
			for _, batch := range batches {
				require.LessOrEqual(t, len(batch), tc.b)
				for addr, amount := range batch {
					_, dup := seen[addr]
					require.False(t, dup, addr)
					seen[addr] = amount
				}
			}
			require.Equal(t, all, seen)
		})
	}
}

func TestBatchesAreAddressOrdered(t *testing.T) {
	batches := Batches(recipients(5), 2)
	require.Len(t, batches, 3)
	require.Contains(t, batches[0], fmt.Sprintf("0x%040x", 1))
	require.Contains(t, batches[0], fmt.Sprintf("0x%040x", 2))
	require.Contains(t, batches[2], fmt.Sprintf("0x%040x", 5))
}

func TestSubmitCapturesFailures(t *testing.T) {
	svc := &fakeService{failOn: map[int]error{1: fmt.Errorf("%w: need 10, have 1", ErrInsufficientBalance)}}
	attempts := NewSubmitter(svc, 2, nil).Submit(context.Background(), recipients(5))

	require.Len(t, attempts, 3)
	require.Len(t, svc.batches, 3)

	require.True(t, attempts[0].Success)
	require.Equal(t, model.AttemptPending, attempts[0].Status)
	require.Equal(t, "0x00", *attempts[0].TxHash)
	require.Equal(t, ChainETH, attempts[0].Chain)
	require.Equal(t, "0xSender", attempts[0].Sender)
	require.True(t, attempts[0].Total.Equal(decimal.NewFromInt(3)))
	require.Equal(t, "2", attempts[0].ContractTotal)

	require.False(t, attempts[1].Success)
	require.Equal(t, model.AttemptFailed, attempts[1].Status)
	require.Nil(t, attempts[1].TxHash)
	require.True(t, attempts[1].Total.Equal(decimal.NewFromInt(7)))

	require.True(t, attempts[2].Success)
	require.Len(t, attempts[2].Targets, 1)
}

func TestSubmitDefaultsBatchSize(t *testing.T) {
	svc := &fakeService{}
	attempts := NewSubmitter(svc, 0, nil).Submit(context.Background(), recipients(81))
	require.Len(t, attempts, 3)
	require.Len(t, svc.batches[0], DefaultBatchSize)
	require.Len(t, svc.batches[2], 1)
}

func TestSubmitWithoutServiceFailsEveryBatch(t *testing.T) {
	attempts := NewSubmitter(nil, 2, nil).Submit(context.Background(), recipients(3))
	require.Len(t, attempts, 2)
	for _, a := range attempts {
		require.False(t, a.Success)
		require.Equal(t, model.AttemptFailed, a.Status)
	}
}
