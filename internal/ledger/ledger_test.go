package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"poolmonitor/internal/model"
)

func post(status model.Status, success bool, ends ...uint64) model.Post {
	dist := model.Distribution{Incentive: model.IncentiveLiquidity, Status: status}
	for _, end := range ends {
		dist.Pools = append(dist.Pools, model.PoolInfo{End: end})
	}
	if status == model.StatusDistribution {
		dist.Targets = []model.TransferAttempt{{Success: success}}
	}
	return model.Post{Type: model.PostType, Author: "0xAbC", Content: dist}
}

func TestResumeHeight(t *testing.T) {
	require.Equal(t, uint64(0), ResumeHeight(nil))

	posts := []model.Post{
		post(model.StatusCalculation, false, 900),
		post(model.StatusDistribution, false, 800),
		post(model.StatusDistribution, true, 500, 510),
		post(model.StatusDistribution, true, 300),
	}
	require.Equal(t, uint64(511), ResumeHeight(posts))

	require.Equal(t, uint64(0), ResumeHeight(posts[:2]))
}

func TestMatches(t *testing.T) {
	p := post(model.StatusCalculation, false, 1)
	require.True(t, Matches(p, model.PostType, "0xabc"))
	require.True(t, Matches(p, model.PostType, ""))
	require.False(t, Matches(p, model.PostType, "0xdef"))
	require.False(t, Matches(p, "other", "0xabc"))
}
