// Package ratelimit bounds outbound upstream queries with a sliding-window
// admission limiter. Callers that would exceed the ceiling are delayed until a
// slot frees, never rejected.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter admits at most maxRequests calls per trailing window.
type Limiter struct {
	maxRequests int
	window      time.Duration

	mu         sync.Mutex
	admissions []time.Time

	// now is swappable in tests.
	now func() time.Time
}

// New builds a Limiter. maxRequests and window must be positive.
func New(maxRequests int, window time.Duration) (*Limiter, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be > 0")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be > 0")
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}, nil
}

// Wait blocks until an admission slot is available or ctx is done. The slot is
// recorded before returning.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait, ok := l.tryAdmit()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAdmit prunes expired admissions and either records a new one or returns
// the delay until the oldest admission leaves the window.
func (l *Limiter) tryAdmit() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.admissions[:0]
	for _, ts := range l.admissions {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.admissions = kept

	if len(l.admissions) < l.maxRequests {
		l.admissions = append(l.admissions, now)
		return 0, true
	}

	wait := l.admissions[0].Sub(cutoff)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// InFlight returns the count of admissions inside the current window.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, ts := range l.admissions {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
