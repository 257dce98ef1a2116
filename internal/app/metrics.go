package app

import (
	"sync/atomic"
	"time"
)

// Metrics counts debug sessions.
type Metrics struct {
	started   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	active    atomic.Int64

	totalNs atomic.Int64
	maxNs   atomic.Int64

	// Start time for uptime calculation
	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// SessionStarted records a new session.
func (m *Metrics) SessionStarted() {
	m.started.Add(1)
	m.active.Add(1)
}

// SessionEnded records the end of a session and how long it ran.
func (m *Metrics) SessionEnded(duration time.Duration, failed bool) {
	ns := duration.Nanoseconds()

	m.active.Add(-1)
	if failed {
		m.failed.Add(1)
	} else {
		m.completed.Add(1)
	}
	m.totalNs.Add(ns)

	// Update max (atomic compare-and-swap loop)
	for {
		old := m.maxNs.Load()
		if ns <= old {
			break
		}
		if m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	completed := m.completed.Load()
	failed := m.failed.Load()

	var avg time.Duration
	if ended := completed + failed; ended > 0 {
		avg = time.Duration(m.totalNs.Load() / int64(ended))
	}

	return MetricsSnapshot{
		Uptime:            time.Since(m.startTime),
		SessionsStarted:   m.started.Load(),
		SessionsActive:    m.active.Load(),
		SessionsCompleted: completed,
		SessionsFailed:    failed,
		AvgSessionTime:    avg,
		MaxSessionTime:    time.Duration(m.maxNs.Load()),
	}
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime            time.Duration
	SessionsStarted   uint64
	SessionsActive    int64
	SessionsCompleted uint64
	SessionsFailed    uint64
	AvgSessionTime    time.Duration
	MaxSessionTime    time.Duration
}

// FailureRate returns the percentage of ended sessions that failed.
func (s MetricsSnapshot) FailureRate() float64 {
	ended := s.SessionsCompleted + s.SessionsFailed
	if ended == 0 {
		return 0
	}
	return float64(s.SessionsFailed) / float64(ended) * 100
}
