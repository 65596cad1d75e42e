package render

import (
	"testing"
	"time"

	"github.com/dgallion1/treegest/internal/visualtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWindow_LatencyNearestRank(t *testing.T) {
	w := NewBuildWindow(time.Hour)
	for _, ms := range []int{100, 200, 300, 400, 500} {
		w.add(buildRecord{elapsed: time.Duration(ms) * time.Millisecond})
	}

	lat := w.Latency()
	require.Equal(t, 5, lat.Count)
	assert.Equal(t, 100.0, lat.MinMs)
	assert.Equal(t, 500.0, lat.MaxMs)
	assert.Equal(t, 300.0, lat.AvgMs)
	assert.Equal(t, 300.0, lat.P50Ms)
	assert.Equal(t, 500.0, lat.P95Ms)
	assert.Equal(t, 500.0, lat.P99Ms)
}

func TestBuildWindow_GroupsByDetailLevel(t *testing.T) {
	w := NewBuildWindow(time.Hour)
	w.add(buildRecord{detail: visualtree.Compact, limit: 100, visited: 10, rendered: 6, tokens: 80})
	w.add(buildRecord{detail: visualtree.Compact, limit: 100, visited: 20, rendered: 10, tokens: 40})
	w.add(buildRecord{detail: visualtree.Detailed, limit: 50, visited: 4, rendered: 4, tokens: 50})

	levels := w.Levels()
	require.Len(t, levels, 2)

	compact := levels["compact"]
	assert.Equal(t, 2, compact.Builds)
	assert.Equal(t, 15.0, compact.AvgVisited)
	assert.Equal(t, 8.0, compact.AvgRendered)
	assert.Equal(t, 14, compact.Pruned)
	assert.Equal(t, 60.0, compact.AvgTokens)
	assert.Equal(t, 80, compact.MaxTokens)
	assert.InDelta(t, 0.6, compact.BudgetUse, 1e-9)
	assert.Equal(t, 2, compact.Latency.Count)

	detailed := levels["detailed"]
	assert.Zero(t, detailed.Pruned)
	assert.InDelta(t, 1.0, detailed.BudgetUse, 1e-9)
}

func TestBuildWindow_ExpiresOldBuilds(t *testing.T) {
	w := NewBuildWindow(time.Minute)
	w.add(buildRecord{at: time.Now().Add(-2 * time.Minute), elapsed: time.Second})
	w.add(buildRecord{elapsed: 2 * time.Millisecond})

	lat := w.Latency()
	require.Equal(t, 1, lat.Count)
	assert.Equal(t, 2.0, lat.MinMs)
	assert.Len(t, w.Levels(), 1)
}

func TestBuildWindow_ClampsNegativeElapsed(t *testing.T) {
	w := NewBuildWindow(0)
	w.add(buildRecord{elapsed: -time.Second})
	assert.Zero(t, w.Latency().MaxMs)
	assert.Empty(t, NewBuildWindow(time.Hour).Levels())
}
