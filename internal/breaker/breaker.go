// Package breaker provides a sliding-window failure tracker that halts new
// dispatch after a burst of failures and requires explicit acknowledgment to
// clear.
package breaker

import (
	"sync"
	"time"
)

// DefaultThreshold is the failure count inside the window that trips the
// breaker.
const DefaultThreshold = 3

// DefaultWindow is the trailing duration over which failures are counted.
const DefaultWindow = 60 * time.Second

// Record is a single failure event inside the tracking window.
type Record struct {
	// Timestamp is when the failure was recorded.
	Timestamp time.Time
	// UnitID is the task that failed.
	UnitID string
	// Reason is the free-form failure description.
	Reason string
}

// Breaker tracks failures over a sliding time window. It has two states,
// normal and tripped. Tripped clears only via an explicit Reset — never by
// time passing — so a human must acknowledge the failure burst.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	records   []Record
	tripped   bool
}

// New creates a breaker with the given threshold and window. Non-positive
// values fall back to the defaults.
func New(threshold int, window time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Breaker{threshold: threshold, window: window}
}

// RecordFailure appends a failure record, evicts records older than the
// window, and trips the breaker if the surviving count reaches the
// threshold. Returns true if this call tripped the breaker.
func (b *Breaker) RecordFailure(now time.Time, unitID, reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, Record{Timestamp: now, UnitID: unitID, Reason: reason})
	b.evictLocked(now)

	if len(b.records) >= b.threshold && !b.tripped {
		b.tripped = true
		return true
	}
	return false
}

// RecordSuccess clears all failure records. It does not close a tripped
// breaker; that requires Reset.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
}

// IsTripped returns true if the breaker is open.
func (b *Breaker) IsTripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// FailureCount returns the number of records inside the trailing window,
// evicting expired records first.
func (b *Breaker) FailureCount(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictLocked(now)
	return len(b.records)
}

// Reset closes the breaker and clears all records. Called on an operator
// resume signal to give the breaker a fresh window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
	b.tripped = false
}

// Threshold returns the configured trip threshold.
func (b *Breaker) Threshold() int {
	return b.threshold
}

// Window returns the configured trailing window.
func (b *Breaker) Window() time.Duration {
	return b.window
}

// evictLocked drops records older than the window. Caller must hold b.mu.
func (b *Breaker) evictLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.records[:0]
	for _, r := range b.records {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	b.records = kept
}
