package render

import (
	"slices"
	"sync"
	"time"

	"github.com/dgallion1/treegest/internal/visualtree"
)

// buildRecord is one completed build.
type buildRecord struct {
	at       time.Time
	detail   visualtree.DetailLevel
	elapsed  time.Duration
	limit    int
	visited  int
	rendered int
	tokens   int
}

// LatencySummary aggregates build times in milliseconds. Percentiles use the
// nearest-rank method.
type LatencySummary struct {
	Count int     `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// LevelStats aggregates the builds made at one detail level.
type LevelStats struct {
	Builds      int     `json:"builds"`
	AvgVisited  float64 `json:"avg_visited"`
	AvgRendered float64 `json:"avg_rendered"`
	// Pruned counts visited elements the classifier left out of the XML.
	Pruned    int     `json:"pruned"`
	AvgTokens float64 `json:"avg_tokens"`
	MaxTokens int     `json:"max_tokens"`
	// BudgetUse is the mean of tokens spent over token limit.
	BudgetUse float64        `json:"budget_use"`
	Latency   LatencySummary `json:"latency"`
}

// BuildWindow keeps the builds of a rolling time window.
type BuildWindow struct {
	mu      sync.Mutex
	window  time.Duration
	records []buildRecord
}

// NewBuildWindow keeps builds younger than window; zero or less means an hour.
func NewBuildWindow(window time.Duration) *BuildWindow {
	if window <= 0 {
		window = time.Hour
	}
	return &BuildWindow{window: window}
}

func (w *BuildWindow) add(r buildRecord) {
	if r.elapsed < 0 {
		r.elapsed = 0
	}
	if r.at.IsZero() {
		r.at = time.Now()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expire(r.at)
	w.records = append(w.records, r)
}

// current returns the live records, oldest first.
func (w *BuildWindow) current() []buildRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expire(time.Now())
	return slices.Clone(w.records)
}

func (w *BuildWindow) expire(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.records) && w.records[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.records = slices.Delete(w.records, 0, i)
	}
}

// Latency summarizes every build in the window.
func (w *BuildWindow) Latency() LatencySummary {
	return summarize(w.current())
}

// Levels groups the window by detail level name.
func (w *BuildWindow) Levels() map[string]LevelStats {
	byLevel := make(map[visualtree.DetailLevel][]buildRecord)
	for _, r := range w.current() {
		byLevel[r.detail] = append(byLevel[r.detail], r)
	}
	out := make(map[string]LevelStats, len(byLevel))
	for level, recs := range byLevel {
		ls := LevelStats{Builds: len(recs), Latency: summarize(recs)}
		var visited, rendered, spent int
		var use float64
		for _, r := range recs {
			visited += r.visited
			rendered += r.rendered
			spent += r.tokens
			ls.MaxTokens = max(ls.MaxTokens, r.tokens)
			if r.limit > 0 {
				use += float64(r.tokens) / float64(r.limit)
			}
		}
		n := float64(len(recs))
		ls.AvgVisited = float64(visited) / n
		ls.AvgRendered = float64(rendered) / n
		ls.Pruned = visited - rendered
		ls.AvgTokens = float64(spent) / n
		ls.BudgetUse = use / n
		out[level.String()] = ls
	}
	return out
}

func summarize(recs []buildRecord) LatencySummary {
	if len(recs) == 0 {
		return LatencySummary{}
	}
	ms := make([]float64, len(recs))
	var total float64
	for i, r := range recs {
		ms[i] = float64(r.elapsed) / float64(time.Millisecond)
		total += ms[i]
	}
	slices.Sort(ms)
	return LatencySummary{
		Count: len(ms),
		MinMs: ms[0],
		MaxMs: ms[len(ms)-1],
		AvgMs: total / float64(len(ms)),
		P50Ms: nearestRank(ms, 50),
		P95Ms: nearestRank(ms, 95),
		P99Ms: nearestRank(ms, 99),
	}
}

func nearestRank(sorted []float64, pct int) float64 {
	rank := (pct*len(sorted) + 99) / 100
	return sorted[max(rank, 1)-1]
}
