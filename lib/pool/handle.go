package pool

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle is a lease on one raw resource. It is created by Pool.Acquire and
// stays leased until it is released, either explicitly through Pool.Release
// or by the idle reclaimer. After that every operation fails with
// ErrReleased; IsValid keeps working and reports false.
type Handle struct {
	pool *Pool

	mu    sync.Mutex
	raw   Resource
	timer Timer

	released    atomic.Bool
	lastTouched atomic.Int64 // unix nanoseconds
	acquiredAt  time.Time

	listeners listenerSet
}

func newHandle(p *Pool, raw Resource) *Handle {
	now := p.clock.Now()
	h := &Handle{
		pool:       p,
		raw:        raw,
		acquiredAt: now,
	}
	h.lastTouched.Store(now.UnixNano())
	return h
}

// Pool returns the pool the handle was leased from.
func (h *Handle) Pool() *Pool {
	return h.pool
}

// Raw touches the handle and returns the leased resource, or ErrReleased.
func (h *Handle) Raw() (Resource, error) {
	h.Touch()
	if h.released.Load() {
		return nil, ErrReleased
	}

	h.mu.Lock()
	raw := h.raw
	h.mu.Unlock()

	if raw == nil {
		return nil, ErrReleased
	}
	return raw, nil
}

// Do forwards an operation to the leased resource.
func (h *Handle) Do(fn func(Resource) error) error {
	raw, err := h.Raw()
	if err != nil {
		return err
	}
	return fn(raw)
}

// Call forwards an operation that yields a value to the leased resource.
func Call[T any](h *Handle, fn func(Resource) (T, error)) (T, error) {
	raw, err := h.Raw()
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(raw)
}

// Touch records activity on the handle, postponing idle reclamation.
func (h *Handle) Touch() {
	h.lastTouched.Store(h.pool.clock.Now().UnixNano())
}

// LastTouched returns the time of the most recent operation.
func (h *Handle) LastTouched() time.Time {
	return time.Unix(0, h.lastTouched.Load())
}

// AcquiredAt returns when the lease started.
func (h *Handle) AcquiredAt() time.Time {
	return h.acquiredAt
}

// Released reports whether the lease has ended.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// IsValid reports whether the handle is still leased and its resource
// reports itself usable. It does not count as activity.
func (h *Handle) IsValid() bool {
	if h.released.Load() {
		return false
	}

	h.mu.Lock()
	raw := h.raw
	h.mu.Unlock()

	return raw != nil && raw.IsValid()
}

// AddListener registers fn to run when the lease ends. The returned
// function unregisters it. If the lease has already ended, fn runs
// before AddListener returns.
func (h *Handle) AddListener(fn func()) (remove func()) {
	return h.listeners.add(fn)
}

// Release returns the handle to its pool. It is shorthand for
// h.Pool().Release(h).
func (h *Handle) Release() error {
	return h.pool.Release(h)
}

// armTimer schedules the first idle check.
func (h *Handle) armTimer(timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released.Load() {
		return
	}
	h.timer = h.pool.clock.AfterFunc(timeout, h.checkIdle)
}

// checkIdle runs when the idle timer fires. The deadline is recomputed from
// the last touch: a handle touched since the timer was set gets a new timer
// for the remaining time, otherwise it is reclaimed.
func (h *Handle) checkIdle() {
	h.mu.Lock()
	if h.released.Load() {
		h.timer = nil
		h.mu.Unlock()
		return
	}

	idle := h.pool.clock.Now().Sub(h.LastTouched())
	remaining := h.pool.config.IdleTimeout - idle
	if remaining > 0 {
		h.timer = h.pool.clock.AfterFunc(remaining, h.checkIdle)
		h.mu.Unlock()
		return
	}
	h.timer = nil
	h.mu.Unlock()

	h.pool.reclaim(h)
}

// release ends the lease. Only the first caller gets the resource back;
// later calls return nil. Listeners have all been notified by the time the
// resource is returned.
func (h *Handle) release() Resource {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}

	h.mu.Lock()
	raw := h.raw
	h.raw = nil
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()

	h.listeners.fire()
	return raw
}
