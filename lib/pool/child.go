package pool

import (
	"io"
	"sync/atomic"
)

// Parent is anything a Child can depend on: a Handle, or another Child.
type Parent interface {
	AddListener(fn func()) (remove func())
}

// Child ties a dependent resource (a prepared statement, a result cursor)
// to the lifetime of its parent. When the parent is released or closed the
// child closes its resource, ignoring any error. A Child can itself be the
// parent of further children.
//
// The parent only keeps the child's close callback; it does not own the
// child, and an explicitly closed child unregisters itself.
type Child struct {
	closer     io.Closer
	closed     atomic.Bool
	unregister func()
	listeners  listenerSet
}

// NewChild registers c on parent. If parent has already been released, c is
// closed before NewChild returns and the Child reports Closed.
func NewChild(parent Parent, c io.Closer) *Child {
	ch := &Child{closer: c}
	ch.unregister = parent.AddListener(ch.parentClosed)
	return ch
}

// Close closes the child and every child registered on it. It is safe to
// call more than once; only the first call closes the resource.
func (ch *Child) Close() error {
	if !ch.closed.CompareAndSwap(false, true) {
		return nil
	}
	ch.unregister()
	ch.listeners.fire()
	return ch.closer.Close()
}

// Closed reports whether the child has been closed, either explicitly or
// because its parent went away.
func (ch *Child) Closed() bool {
	return ch.closed.Load()
}

// AddListener registers fn to run when the child closes.
func (ch *Child) AddListener(fn func()) (remove func()) {
	return ch.listeners.add(fn)
}

// parentClosed is the release callback. The parent's listener set is being
// torn down, so there is nothing to unregister from.
func (ch *Child) parentClosed() {
	if !ch.closed.CompareAndSwap(false, true) {
		return
	}
	ch.listeners.fire()
	if err := ch.closer.Close(); err != nil {
		log.WithError(err).Debug("closing child after parent release")
	}
}
