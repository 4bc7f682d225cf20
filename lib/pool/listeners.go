package pool

import "sync"

// listenerSet holds release callbacks. It fires at most once; callbacks
// added after it has fired are run immediately by add.
type listenerSet struct {
	mu    sync.Mutex
	fired bool
	next  uint64
	fns   map[uint64]func()
}

// add registers fn and returns a function that unregisters it. If the set
// has already fired, fn runs before add returns.
func (s *listenerSet) add(fn func()) (remove func()) {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		notify(fn)
		return func() {}
	}
	if s.fns == nil {
		s.fns = make(map[uint64]func())
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

// fire runs every registered callback once, in no particular order.
func (s *listenerSet) fire() {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return
	}
	s.fired = true
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()

	for _, fn := range fns {
		notify(fn)
	}
}

func (s *listenerSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// notify runs fn, recovering a panic so one misbehaving listener cannot
// stop the others or keep a resource from returning to the pool.
func notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Debug("release listener panicked")
		}
	}()
	fn()
}
