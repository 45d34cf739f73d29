package observability

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// Answer-path stages tracked in the rolling latency window.
const (
	StageStoreAppend  = "store_append"
	StagePublish      = "bus_publish"
	StageSubmitTotal  = "submit_total"
	StageSnapshotLoad = "snapshot_load"
	StageReconcile    = "reconcile"
)

// stageBudgets holds the p95 latency target of each stage in milliseconds.
// Every sample above its budget is counted as a <stage>_over_budget indicator.
var stageBudgets = map[string]float64{
	StageStoreAppend:  50,
	StagePublish:      20,
	StageSubmitTotal:  100,
	StageSnapshotLoad: 250,
	StageReconcile:    500,
}

// StageBudgetMS returns the latency budget of a stage, or 0 when it has none.
func StageBudgetMS(stage string) float64 {
	return stageBudgets[stage]
}

type StageStats struct {
	Stage        string  `json:"stage"`
	Samples      int     `json:"samples"`
	LastMS       float64 `json:"last_ms"`
	AvgMS        float64 `json:"avg_ms"`
	P50MS        float64 `json:"p50_ms"`
	P95MS        float64 `json:"p95_ms"`
	P99MS        float64 `json:"p99_ms"`
	BudgetMS     float64 `json:"budget_ms,omitempty"`
	WithinBudget bool    `json:"within_budget"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StageSnapshot is the payload of /v1/perf/latency.
type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// stageRing keeps the most recent samples of one stage.
type stageRing struct {
	samples []float64
	pos     int
	count   int
	last    float64
}

func (r *stageRing) add(ms float64) {
	r.samples[r.pos] = ms
	r.pos = (r.pos + 1) % len(r.samples)
	r.count = min(r.count+1, len(r.samples))
	r.last = ms
}

func (r *stageRing) stats(stage string) StageStats {
	sorted := slices.Clone(r.samples[:r.count])
	slices.Sort(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	st := StageStats{
		Stage:    stage,
		Samples:  r.count,
		LastMS:   round2(r.last),
		AvgMS:    round2(sum / float64(r.count)),
		P50MS:    round2(percentile(sorted, 50)),
		P95MS:    round2(percentile(sorted, 95)),
		P99MS:    round2(percentile(sorted, 99)),
		BudgetMS: StageBudgetMS(stage),
	}
	st.WithinBudget = st.BudgetMS == 0 || st.P95MS <= st.BudgetMS
	return st
}

type stageWindow struct {
	mu         sync.Mutex
	size       int
	rings      map[string]*stageRing
	indicators map[string]int
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	return &stageWindow{
		size:       size,
		rings:      make(map[string]*stageRing),
		indicators: make(map[string]int),
	}
}

func (w *stageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	r := w.rings[stage]
	if r == nil {
		r = &stageRing{samples: make([]float64, w.size)}
		w.rings[stage] = r
	}
	r.add(ms)
	if budget := stageBudgets[stage]; budget > 0 && ms > budget {
		w.indicators[stage+"_over_budget"]++
	}
}

func (w *stageWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(w.rings)),
	}
	for _, stage := range sortedKeys(w.rings) {
		snap.Stages = append(snap.Stages, w.rings[stage].stats(stage))
	}
	for _, name := range sortedKeys(w.indicators) {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// percentile uses the nearest-rank method on ascending samples.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	return sorted[max(rank-1, 0)]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
