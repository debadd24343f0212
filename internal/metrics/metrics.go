package metrics

import (
	"sync"
	"time"
)

// Run is the metrics snapshot of one pipeline run. It is stored as the run
// record's blob and served by the monitoring endpoint.
type Run struct {
	SourceCount         int               `json:"source_count"`
	RawCount            int               `json:"raw_count"`
	NormalizedCount     int               `json:"normalized_count"`
	DedupedCount        int               `json:"deduped_count"`
	SelectedCount       int               `json:"selected_count"`
	SourceErrors        map[string]string `json:"source_errors"`
	SourceRawCounts     map[string]int    `json:"source_raw_counts"`
	SourceWindowHits    map[string]int    `json:"source_window_hits"`
	Rejected            map[string]int    `json:"rejected"`
	LedgerFilteredCount int               `json:"ledger_filtered_count"`
	LedgerRelaxed       bool              `json:"ledger_relaxed"`
	DeliveryEnabled     bool              `json:"delivery_enabled"`
	Classification      map[string]int    `json:"classification"`
}

// NewRun returns a snapshot with every map allocated.
func NewRun(sourceCount int, deliveryEnabled bool) *Run {
	return &Run{
		SourceCount:      sourceCount,
		DeliveryEnabled:  deliveryEnabled,
		SourceErrors:     map[string]string{},
		SourceRawCounts:  map[string]int{},
		SourceWindowHits: map[string]int{},
		Rejected:         map[string]int{},
		Classification:   map[string]int{},
	}
}

// Health tracks process-level state across runs.
type Health struct {
	mu sync.RWMutex

	RunsTotal  int64
	RunsFailed int64

	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration

	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool

	last      *Run
	providers map[string]StatsFunc
}

// StatsFunc reports the counters of a long-lived component.
type StatsFunc func() map[string]interface{}

func NewHealth() *Health {
	return &Health{IsHealthy: true, providers: make(map[string]StatsFunc)}
}

// Register adds a component whose counters GetStats reports under name.
func (h *Health) Register(name string, fn StatsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.providers[name] = fn
}

// RecordRun folds a finished run into the process state. err is the run's
// failure, if any.
func (h *Health) RecordRun(run *Run, duration time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.RunsTotal++
	h.LastRunTime = time.Now()
	h.LastProcessingTime = duration
	h.TotalProcessingTime += duration
	h.AverageProcessingTime = h.TotalProcessingTime / time.Duration(h.RunsTotal)
	h.last = run

	if err != nil {
		h.RunsFailed++
		h.LastError = err.Error()
		h.LastErrorTime = h.LastRunTime
		h.IsHealthy = false
		return
	}
	h.IsHealthy = true
}

func (h *Health) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.IsHealthy
}

func (h *Health) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := map[string]interface{}{
		"runs_total":                 h.RunsTotal,
		"runs_failed":                h.RunsFailed,
		"last_processing_time_ms":    h.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": h.AverageProcessingTime.Milliseconds(),
		"last_run_time":              h.LastRunTime.Format(time.RFC3339),
		"last_error_time":            h.LastErrorTime.Format(time.RFC3339),
		"last_error":                 h.LastError,
		"is_healthy":                 h.IsHealthy,
	}
	if h.last != nil {
		stats["last_run"] = h.last
	}
	for name, fn := range h.providers {
		stats[name] = fn()
	}
	return stats
}
