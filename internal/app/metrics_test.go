package app

import (
	"sync"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}

	snapshot := m.Snapshot()
	if snapshot.SessionsStarted != 0 || snapshot.SessionsActive != 0 {
		t.Errorf("expected empty counters, got %+v", snapshot)
	}
	if snapshot.AvgSessionTime != 0 {
		t.Errorf("expected zero average with no sessions, got %v", snapshot.AvgSessionTime)
	}
	if snapshot.FailureRate() != 0 {
		t.Errorf("expected zero failure rate, got %v", snapshot.FailureRate())
	}
}

func TestMetrics_Sessions(t *testing.T) {
	m := NewMetrics()

	m.SessionStarted()
	m.SessionStarted()
	m.SessionStarted()
	if got := m.Snapshot().SessionsActive; got != 3 {
		t.Errorf("SessionsActive = %d, want 3", got)
	}

	m.SessionEnded(10*time.Millisecond, false)
	m.SessionEnded(30*time.Millisecond, true)

	snapshot := m.Snapshot()
	if snapshot.SessionsStarted != 3 {
		t.Errorf("SessionsStarted = %d, want 3", snapshot.SessionsStarted)
	}
	if snapshot.SessionsActive != 1 {
		t.Errorf("SessionsActive = %d, want 1", snapshot.SessionsActive)
	}
	if snapshot.SessionsCompleted != 1 || snapshot.SessionsFailed != 1 {
		t.Errorf("completed/failed = %d/%d, want 1/1", snapshot.SessionsCompleted, snapshot.SessionsFailed)
	}
	if snapshot.AvgSessionTime != 20*time.Millisecond {
		t.Errorf("AvgSessionTime = %v, want 20ms", snapshot.AvgSessionTime)
	}
	if snapshot.MaxSessionTime != 30*time.Millisecond {
		t.Errorf("MaxSessionTime = %v, want 30ms", snapshot.MaxSessionTime)
	}
	if snapshot.FailureRate() != 50 {
		t.Errorf("FailureRate() = %v, want 50", snapshot.FailureRate())
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.SessionStarted()
			m.SessionEnded(time.Duration(i)*time.Millisecond, false)
		}(i)
	}
	wg.Wait()

	snapshot := m.Snapshot()
	if snapshot.SessionsStarted != 50 || snapshot.SessionsCompleted != 50 {
		t.Errorf("unexpected counters %+v", snapshot)
	}
	if snapshot.SessionsActive != 0 {
		t.Errorf("SessionsActive = %d, want 0", snapshot.SessionsActive)
	}
	if snapshot.MaxSessionTime != 49*time.Millisecond {
		t.Errorf("MaxSessionTime = %v, want 49ms", snapshot.MaxSessionTime)
	}
}
