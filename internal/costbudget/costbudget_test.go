package costbudget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

func TestManager_RecordAccumulatesAndReports(t *testing.T) {
	m := New(Config{}, nil)

	require.NoError(t, m.Record("classifier", rlmtypes.Usage{Input: 100, Output: 50}, 0.01))
	require.NoError(t, m.Record("predict", rlmtypes.Usage{Input: 200, Output: 80}, 0.02))

	summary := m.Summary()
	assert.Equal(t, int64(300), summary.InputTokens)
	assert.Equal(t, int64(130), summary.OutputTokens)
	assert.InDelta(t, 0.03, summary.TotalCostUSD, 1e-9)
	assert.Equal(t, int64(1), summary.ByComponent["classifier"].RequestCount)
}

func TestManager_RejectsOnceCostCeilingExceeded(t *testing.T) {
	m := New(Config{MaxCostUSD: 0.05}, nil)

	require.NoError(t, m.Record("predict", rlmtypes.Usage{Input: 10, Output: 10}, 0.03))
	err := m.Record("predict", rlmtypes.Usage{Input: 10, Output: 10}, 0.03)

	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindBudgetExhausted, kind)
}

func TestManager_RejectsOnceTokenCeilingExceeded(t *testing.T) {
	m := New(Config{MaxTokens: 100}, nil)

	require.NoError(t, m.Record("predict", rlmtypes.Usage{Input: 60, Output: 30}, 0))
	err := m.Record("predict", rlmtypes.Usage{Input: 20, Output: 0}, 0)

	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindBudgetExhausted, kind)
}

func TestManager_RemainingReportsUnlimitedAsNegativeOne(t *testing.T) {
	m := New(Config{}, nil)
	tokens, cost := m.Remaining()
	assert.Equal(t, int64(-1), tokens)
	assert.Equal(t, -1.0, cost)
}

func TestManager_SequentialRecordsAccumulateTotals(t *testing.T) {
	m := New(Config{}, nil)

	require.NoError(t, m.Record("predict", rlmtypes.Usage{Input: 1000, Output: 500}, 0.01))
	require.NoError(t, m.Record("predict", rlmtypes.Usage{Input: 2000, Output: 1000}, 0.02))

	summary := m.Summary()
	assert.Equal(t, int64(3000), summary.InputTokens)
	assert.Equal(t, int64(1500), summary.OutputTokens)
	assert.InDelta(t, 0.03, summary.TotalCostUSD, 1e-9)
	assert.Equal(t, int64(2), summary.ByComponent["predict"].RequestCount)
}

func TestManager_RemainingTracksCeiling(t *testing.T) {
	m := New(Config{MaxTokens: 1000, MaxCostUSD: 1.0}, nil)
	require.NoError(t, m.Record("predict", rlmtypes.Usage{Input: 100, Output: 100}, 0.1))

	tokens, cost := m.Remaining()
	assert.Equal(t, int64(800), tokens)
	assert.InDelta(t, 0.9, cost, 1e-9)
}
