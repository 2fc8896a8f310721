// Package traffic keeps sliding windows of request outcomes for health evaluation.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies a served request.
type Outcome int

const (
	// Success is a weather request answered with data.
	Success Outcome = iota
	// Failure is a weather request that failed upstream.
	Failure
	// Denied is a request rejected by the inbound rate limiter.
	Denied
)

// DefaultRetention bounds how far back any window can look.
const DefaultRetention = 5 * time.Minute

var defaultTracker = NewTracker(DefaultRetention)

// RecordSuccess records a weather request answered with data.
func RecordSuccess() { defaultTracker.Record(Success) }

// RecordError records a weather request that failed upstream.
func RecordError() { defaultTracker.Record(Failure) }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.Record(Denied) }

// RequestCount returns all outcomes (success, failure, denied) within window.
func RequestCount(window time.Duration) int { return defaultTracker.Stats(window).Total() }

// DenialCount returns the denials within window.
func DenialCount(window time.Duration) int { return defaultTracker.Stats(window).Denied }

// ErrorRate returns (failures, successes+failures) within window. Denials are excluded.
func ErrorRate(window time.Duration) (errors, total int) {
	s := defaultTracker.Stats(window)
	return s.Failures, s.Successes + s.Failures
}

// Reset clears all recorded outcomes. For tests only.
func Reset() { defaultTracker.Reset() }

// Stats counts outcomes inside one window.
type Stats struct {
	Successes int
	Failures  int
	Denied    int
}

// Total is every outcome in the window.
func (s Stats) Total() int { return s.Successes + s.Failures + s.Denied }

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker is a time-ordered log of outcomes, pruned to its retention.
type Tracker struct {
	mu        sync.Mutex
	events    []event
	retention time.Duration
	now       func() time.Time
}

// NewTracker returns a Tracker that forgets outcomes older than retention.
func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{retention: retention, now: time.Now}
}

// Record appends an outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Stats counts outcomes no older than window.
func (t *Tracker) Stats(window time.Duration) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	var s Stats
	// Events are appended in time order; walk back until the cutoff.
	for i := len(t.events) - 1; i >= 0 && !t.events[i].at.Before(cutoff); i-- {
		switch t.events[i].outcome {
		case Success:
			s.Successes++
		case Failure:
			s.Failures++
		case Denied:
			s.Denied++
		}
	}
	return s
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events older than the retention. Caller holds t.mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
