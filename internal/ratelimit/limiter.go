// Package ratelimit implements fixed-window request counters keyed by caller and action.
package ratelimit

import (
	"sync"
	"time"
)

// Rule is the budget for one action
type Rule struct {
	Max    int
	Window time.Duration
}

// Result describes the outcome of one Check
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter keeps one fixed-window counter per key
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a limiter on the wall clock
func New() *Limiter {
	return NewWithNow(time.Now)
}

// NewWithNow creates a limiter with an injectable clock
func NewWithNow(now func() time.Time) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     now,
	}
}

// Check counts one request against key and reports whether it is allowed.
func (l *Limiter) Check(key string, rule Rule) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(rule.Window)}
		l.sweepLocked(now)
		return Result{Allowed: true, Remaining: rule.Max - 1, RetryAfter: rule.Window}
	}

	if b.count >= rule.Max {
		return Result{Allowed: false, Remaining: 0, RetryAfter: b.resetAt.Sub(now)}
	}

	b.count++
	return Result{Allowed: true, Remaining: max(rule.Max-b.count, 0), RetryAfter: b.resetAt.Sub(now)}
}

// Clear drops every counter
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buckets = make(map[string]*bucket)
}

// sweepLocked drops windows that have ended so idle keys do not accumulate
func (l *Limiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}
