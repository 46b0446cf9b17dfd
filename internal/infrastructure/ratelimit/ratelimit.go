// Package ratelimit implements a sliding-window counter keyed by an opaque
// string. Cleanup is lazy, done on each check, so there is no background
// goroutine to manage.
package ratelimit

import (
	"sync"
	"time"
)

// Result is the outcome of a limiter check.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetMs is how long until the oldest recorded event leaves the window.
	// Zero when the check was allowed.
	ResetMs int64
}

// SlidingWindow allows up to Max events per Window per key.
type SlidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	events map[string][]time.Time
	now    func() time.Time
}

// NewSlidingWindow creates a limiter of max events per window.
func NewSlidingWindow(max int, window time.Duration) *SlidingWindow {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		max:    max,
		window: window,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Check records an event for key if the window has room. When blocked, the
// result carries the wait until a slot frees up.
func (l *SlidingWindow) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.events[key][:0]
	for _, ts := range l.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) < l.max {
		kept = append(kept, now)
		l.events[key] = kept
		return Result{Allowed: true, Remaining: l.max - len(kept)}
	}

	l.events[key] = kept
	resetMs := kept[0].Add(l.window).Sub(now).Milliseconds()
	if resetMs < 1 {
		resetMs = 1
	}
	return Result{Allowed: false, Remaining: 0, ResetMs: resetMs}
}

// Clear drops all recorded events for a key.
func (l *SlidingWindow) Clear(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, key)
}

// Pending returns the live event count for a key, dropping expired entries.
func (l *SlidingWindow) Pending(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	count := 0
	for _, ts := range l.events[key] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}
