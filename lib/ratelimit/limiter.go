// Package ratelimit provides a token bucket rate limiter. The admin server
// uses it to keep scrapers and health checks from hammering pool statistics.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket rate limiter.
type Limiter struct {
	mu       sync.Mutex
	now      func() time.Time
	rate     float64   // tokens per second
	capacity float64   // max tokens
	tokens   float64   // current tokens
	lastTime time.Time // last refill time
}

// New creates a new rate limiter.
// rate is tokens per second, capacity is the maximum burst size.
func New(rate float64, capacity int) *Limiter {
	return newLimiter(rate, capacity, time.Now)
}

func newLimiter(rate float64, capacity int, now func() time.Time) *Limiter {
	return &Limiter{
		now:      now,
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		lastTime: now(),
	}
}

// Allow reports whether one more event may happen now, consuming a token
// if so.
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

// AllowN reports whether n events may happen now.
func (l *Limiter) AllowN(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	needed := float64(n)
	if l.tokens >= needed {
		l.tokens -= needed
		return true
	}
	return false
}

// refill adds tokens based on elapsed time. Must be called with lock held.
func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastTime).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.rate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
	}
	l.lastTime = now
}

// Tokens returns the current number of available tokens.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// full reports whether the bucket has been idle for at least d and is full.
func (l *Limiter) full(now time.Time, d time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return now.Sub(l.lastTime) >= d && l.tokens+now.Sub(l.lastTime).Seconds()*l.rate >= l.capacity
}

// KeyedLimiter provides per-key rate limiting, typically keyed by client
// address. Buckets idle for longer than the sweep interval are dropped
// lazily on the next Allow after the interval.
type KeyedLimiter struct {
	mu        sync.Mutex
	now       func() time.Time
	limiters  map[string]*Limiter
	rate      float64
	capacity  int
	sweep     time.Duration
	lastSweep time.Time
}

// NewKeyed creates a per-key rate limiter.
func NewKeyed(rate float64, capacity int, sweep time.Duration) *KeyedLimiter {
	return newKeyed(rate, capacity, sweep, time.Now)
}

func newKeyed(rate float64, capacity int, sweep time.Duration, now func() time.Time) *KeyedLimiter {
	return &KeyedLimiter{
		now:       now,
		limiters:  make(map[string]*Limiter),
		rate:      rate,
		capacity:  capacity,
		sweep:     sweep,
		lastSweep: now(),
	}
}

// Allow checks if a request for the given key is allowed.
func (kl *KeyedLimiter) Allow(key string) bool {
	kl.mu.Lock()
	now := kl.now()
	if kl.sweep > 0 && now.Sub(kl.lastSweep) >= kl.sweep {
		for k, l := range kl.limiters {
			if l.full(now, kl.sweep) {
				delete(kl.limiters, k)
			}
		}
		kl.lastSweep = now
	}
	limiter, ok := kl.limiters[key]
	if !ok {
		limiter = newLimiter(kl.rate, kl.capacity, kl.now)
		kl.limiters[key] = limiter
	}
	kl.mu.Unlock()

	return limiter.Allow()
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}
