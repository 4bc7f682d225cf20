package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResource int

func (stubResource) IsValid() bool { return true }
func (stubResource) Close() error  { return nil }

func TestIdleQueue(t *testing.T) {
	var q idleQueue

	_, ok := q.pop()
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		require.True(t, q.push(stubResource(i)))
	}
	assert.Equal(t, 3, q.len())

	r, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, stubResource(1), r)

	rest := q.close()
	assert.Equal(t, []Resource{stubResource(2), stubResource(3)}, rest)
	assert.Equal(t, 0, q.len())
	assert.False(t, q.push(stubResource(4)))
}

func TestListenerSet(t *testing.T) {
	var s listenerSet
	var n int

	s.add(func() { n++ })
	remove := s.add(func() { n += 10 })
	s.add(func() { panic("boom") })
	assert.Equal(t, 3, s.len())

	remove()
	remove()
	assert.Equal(t, 2, s.len())

	s.fire()
	s.fire()
	assert.Equal(t, 1, n)

	s.add(func() { n += 100 })
	assert.Equal(t, 101, n)
	assert.Equal(t, 0, s.len())
}
