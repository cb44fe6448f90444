// Package clock provides an injectable time source.
//
// Every time-dependent computation in the engine (sliding windows, token
// bucket refill, blacklist expiry, alert deduplication, log retention) reads
// the current time through a Clock rather than calling time.Now directly.
// Production code uses System; tests use a Fake that can be advanced
// deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// systemClock reads the wall clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by time.Now.
func System() Clock { return systemClock{} }

// Fake is a manually advanced Clock for deterministic tests.
// It is safe for concurrent use.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a Fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set sets the fake time to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
