package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-i2p/sqlpool/lib/pool"
)

// Resource is a fake pooled resource that records how it was used.
type Resource struct {
	id       int
	invalid  atomic.Bool
	closes   atomic.Int32
	closeErr error
}

// NewResource returns a valid resource with the given id.
func NewResource(id int) *Resource {
	return &Resource{id: id}
}

// ID returns the creation order of the resource, starting at 1.
func (r *Resource) ID() int { return r.id }

// IsValid reports false once the resource is invalidated or closed.
func (r *Resource) IsValid() bool {
	return !r.invalid.Load() && r.closes.Load() == 0
}

// Invalidate makes IsValid report false.
func (r *Resource) Invalidate() { r.invalid.Store(true) }

// Close records the call and returns the configured close error.
func (r *Resource) Close() error {
	r.closes.Add(1)
	return r.closeErr
}

// Closed reports whether Close has been called at least once.
func (r *Resource) Closed() bool { return r.closes.Load() > 0 }

// Closes returns how many times Close has been called.
func (r *Resource) Closes() int { return int(r.closes.Load()) }

// Factory creates Resources and counts calls. It can be switched into a
// failing mode.
type Factory struct {
	mu       sync.Mutex
	created  []*Resource
	calls    int
	err      error
	closeErr error
	nilNext  bool
}

// NewFactory returns a factory that always succeeds.
func NewFactory() *Factory {
	return &Factory{}
}

// New is a pool.Factory.
func (f *Factory) New(ctx context.Context) (pool.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.nilNext {
		f.nilNext = false
		return nil, nil
	}
	r := NewResource(len(f.created) + 1)
	r.closeErr = f.closeErr
	f.created = append(f.created, r)
	return r, nil
}

// FailWith makes every later call return err. A nil err restores success.
func (f *Factory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// CloseErr makes resources created from now on return err from Close.
func (f *Factory) CloseErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr = err
}

// ReturnNilOnce makes the next call return a nil resource and a nil error.
func (f *Factory) ReturnNilOnce() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nilNext = true
}

// Calls returns how many times New has been called.
func (f *Factory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Created returns the resources created so far, oldest first.
func (f *Factory) Created() []*Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Resource, len(f.created))
	copy(out, f.created)
	return out
}
