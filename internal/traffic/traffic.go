// Package traffic keeps sliding windows of request outcomes. /health reads it
// to decide whether the assistant is degraded.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies a finished /api request.
type Outcome int

const (
	// Success is a generated reply or a weather lookup that returned data.
	Success Outcome = iota
	// Fallback is a chat answered with the deterministic reply after generation failed.
	Fallback
	// Failure is a request that ended in a 5xx.
	Failure
	// Denied is a rate-limit rejection (429).
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Fallback:
		return "fallback"
	case Failure:
		return "failure"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

const outcomeKinds = int(Denied) + 1

// DefaultRetention bounds how long outcomes are kept regardless of the query window.
const DefaultRetention = 5 * time.Minute

// Counts is a windowed snapshot.
type Counts struct {
	Success  int
	Fallback int
	Failure  int
	Denied   int
}

// Total counts every outcome except denials.
func (c Counts) Total() int {
	return c.Success + c.Fallback + c.Failure
}

// ImpairedRate is the share of non-denied requests that did not get a
// generated answer. Zero when there is no traffic.
func (c Counts) ImpairedRate() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.Fallback+c.Failure) / float64(total)
}

// Tracker maintains sliding windows of outcome timestamps. The zero value is
// ready to use.
type Tracker struct {
	mu        sync.Mutex
	times     [outcomeKinds][]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewTracker returns a Tracker that keeps outcomes for retention (DefaultRetention when <= 0).
func NewTracker(retention time.Duration) *Tracker {
	return &Tracker{retention: retention}
}

// Record adds one outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	if o < 0 || int(o) >= outcomeKinds {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// Counts returns the outcomes recorded within window ending now.
func (t *Tracker) Counts(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	return Counts{
		Success:  countInWindow(t.times[Success], cutoff),
		Fallback: countInWindow(t.times[Fallback], cutoff),
		Failure:  countInWindow(t.times[Failure], cutoff),
		Denied:   countInWindow(t.times[Denied], cutoff),
	}
}

// Degraded reports whether at least minRequests were seen in window and the
// impaired rate reached threshold.
func (t *Tracker) Degraded(window time.Duration, threshold float64, minRequests int) bool {
	c := t.Counts(window)
	if c.Total() < minRequests || c.Total() == 0 {
		return false
	}
	return c.ImpairedRate() >= threshold
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.times {
		t.times[i] = nil
	}
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	retention := t.retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := now.Add(-retention)
	for k := range t.times {
		times := t.times[k]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[k] = append(times[:0], times[i:]...)
		}
	}
}
