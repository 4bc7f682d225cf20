package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeNow is a settable time source.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func TestLimiterAllow(t *testing.T) {
	// 10 tokens/sec, capacity 5
	limiter := New(10, 5)

	for i := 0; i < 5; i++ {
		if !limiter.Allow() {
			t.Errorf("request %d should be allowed", i)
		}
	}

	if limiter.Allow() {
		t.Error("6th request should be denied")
	}
}

func TestLimiterRefill(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	limiter := newLimiter(100, 10, clock.now)

	if !limiter.AllowN(10) {
		t.Fatal("should allow a full burst")
	}
	if limiter.Allow() {
		t.Error("should be empty")
	}

	clock.advance(50 * time.Millisecond)
	if got := limiter.Tokens(); got < 4.99 || got > 5.01 {
		t.Errorf("tokens after 50ms = %v, want 5", got)
	}

	clock.advance(time.Hour)
	if got := limiter.Tokens(); got != 10 {
		t.Errorf("tokens should cap at capacity, got %v", got)
	}
}

func TestLimiterAllowN(t *testing.T) {
	limiter := New(10, 10)

	if !limiter.AllowN(5) {
		t.Error("should allow 5 requests")
	}
	if !limiter.AllowN(5) {
		t.Error("should allow 5 more requests")
	}
	if limiter.AllowN(1) {
		t.Error("should deny after capacity reached")
	}
}

func TestLimiterConcurrent(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	limiter := newLimiter(1000, 100, clock.now)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- limiter.Allow()
		}()
	}

	wg.Wait()
	close(allowed)

	count := 0
	for a := range allowed {
		if a {
			count++
		}
	}
	if count != 100 {
		t.Errorf("expected 100 allowed, got %d", count)
	}
}

func TestKeyedLimiter(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	kl := newKeyed(1, 2, time.Minute, clock.now)

	if !kl.Allow("10.0.0.1") || !kl.Allow("10.0.0.1") {
		t.Fatal("burst should be allowed")
	}
	if kl.Allow("10.0.0.1") {
		t.Error("third request should be denied")
	}
	if !kl.Allow("10.0.0.2") {
		t.Error("keys should be limited independently")
	}
	if kl.Len() != 2 {
		t.Errorf("Len() = %d, want 2", kl.Len())
	}

	clock.advance(2 * time.Minute)
	if !kl.Allow("10.0.0.3") {
		t.Error("new key should be allowed")
	}
	if kl.Len() != 1 {
		t.Errorf("idle keys should be swept, Len() = %d", kl.Len())
	}
}
