package pool

import "sync"

// idleQueue is an unbounded FIFO of resources that are not leased.
// Once closed, pushes are refused.
type idleQueue struct {
	mu     sync.Mutex
	items  []Resource
	closed bool
}

// push appends r. It reports false if the queue has been closed.
func (q *idleQueue) push(r Resource) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, r)
	return true
}

// pop removes the oldest resource.
func (q *idleQueue) pop() (Resource, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	r := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return r, true
}

func (q *idleQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close refuses further pushes and hands back whatever was queued.
func (q *idleQueue) close() []Resource {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	items := q.items
	q.items = nil
	return items
}
