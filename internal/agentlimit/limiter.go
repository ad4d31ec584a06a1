// Package agentlimit implements the per-agent sliding-hour reasoning-cycle
// rate limiter. It is named apart from the teacher's token-bucket
// internal/ratelimit and internal/infra.PerKeyLimiter/SlidingWindowLimiter
// packages: this is a {count, windowStart} fixed-window-reset counter keyed
// by agent ID, grounded on the same mutex+map-of-per-key-state idiom those
// packages use but with the spec's simpler reset-on-expiry semantics in
// place of a rolling timestamp log.
package agentlimit

import (
	"sync"
	"time"
)

// DefaultMaxPerHour is the default cap on reasoning cycles per agent per
// rolling hour.
const DefaultMaxPerHour = 20

type entry struct {
	count       int
	windowStart time.Time
}

// Limiter is a per-agent sliding-1-hour-window counter.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	max     int
	window  time.Duration
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMax overrides the default max-per-window cap.
func WithMax(max int) Option {
	return func(l *Limiter) { l.max = max }
}

// WithWindow overrides the default 1-hour window.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New constructs a Limiter with the spec defaults (20/hour) unless
// overridden.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		max:     DefaultMaxPerHour,
		window:  time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether agentID may start another reasoning cycle, and
// records the attempt if so.
func (l *Limiter) Allow(agentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[agentID]
	if !ok || now.Sub(e.windowStart) >= l.window {
		l.entries[agentID] = &entry{count: 1, windowStart: now}
		return true
	}
	if e.count >= l.max {
		return false
	}
	e.count++
	return true
}

// Status is the read-only view returned by getRateLimitStatus.
type Status struct {
	Used     int
	Max      int
	ResetsAt time.Time
}

// Status returns the current window usage for an agent without consuming
// a slot.
func (l *Limiter) Status(agentID string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[agentID]
	if !ok || now.Sub(e.windowStart) >= l.window {
		return Status{Used: 0, Max: l.max, ResetsAt: now.Add(l.window)}
	}
	return Status{Used: e.count, Max: l.max, ResetsAt: e.windowStart.Add(l.window)}
}

// Reset clears an agent's window, e.g. for tests or administrative override.
func (l *Limiter) Reset(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, agentID)
}
