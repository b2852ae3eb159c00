package autosave

import (
	"sync"
	"time"
)

// Metrics counts save outcomes across all projects handled by one engine.
type Metrics struct {
	mu           sync.Mutex
	attempts     int64
	successes    int64
	failures     int64
	conflicts    int64
	totalLatency time.Duration
}

type MetricsSnapshot struct {
	Attempts     int64 `json:"attempts"`
	Successes    int64 `json:"successes"`
	Failures     int64 `json:"failures"`
	Conflicts    int64 `json:"conflicts"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

func (m *Metrics) recordAttempt() {
	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()
}

func (m *Metrics) recordSuccess(latency time.Duration) {
	m.mu.Lock()
	m.successes++
	m.totalLatency += latency
	m.mu.Unlock()
}

func (m *Metrics) recordFailure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

func (m *Metrics) recordConflict() {
	m.mu.Lock()
	m.conflicts++
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Attempts:  m.attempts,
		Successes: m.successes,
		Failures:  m.failures,
		Conflicts: m.conflicts,
	}
	if m.successes > 0 {
		snap.AvgLatencyMs = (m.totalLatency / time.Duration(m.successes)).Milliseconds()
	}
	return snap
}
