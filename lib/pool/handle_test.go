package pool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/sqlpool/lib/pool"
	"github.com/go-i2p/sqlpool/lib/testutil"
)

func TestHandleForwarding(t *testing.T) {
	p := newPool(t, testutil.NewFactory(), pool.Config{MaxSize: 1})
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	id, err := pool.Call(h, func(r pool.Resource) (int, error) {
		return r.(*testutil.Resource).ID(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	boom := errors.New("query failed")
	assert.ErrorIs(t, h.Do(func(pool.Resource) error { return boom }), boom)
	assert.False(t, h.Released(), "an operation error does not end the lease")

	require.NoError(t, h.Release())

	_, err = h.Raw()
	assert.ErrorIs(t, err, pool.ErrReleased)
	_, err = pool.Call(h, func(r pool.Resource) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, pool.ErrReleased)
}

func TestHandleIsValid(t *testing.T) {
	p := newPool(t, testutil.NewFactory(), pool.Config{MaxSize: 1})
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	assert.True(t, h.IsValid())

	raw, _ := h.Raw()
	raw.(*testutil.Resource).Invalidate()
	assert.False(t, h.IsValid())
	assert.False(t, h.Released())

	require.NoError(t, h.Release())
	assert.False(t, h.IsValid())
}

func TestHandleIsValidDoesNotTouch(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(0, 0))
	p := newPool(t, testutil.NewFactory(), pool.Config{MaxSize: 1, IdleTimeout: time.Second, Clock: clock})

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, h.AcquiredAt().Equal(time.Unix(0, 0)))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, h.IsValid())
	assert.True(t, h.LastTouched().Equal(time.Unix(0, 0)))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, h.Released())
}

func TestHandleTouch(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(0, 0))
	p := newPool(t, testutil.NewFactory(), pool.Config{MaxSize: 1, IdleTimeout: time.Second, Clock: clock})

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	clock.Advance(900 * time.Millisecond)
	h.Touch()
	assert.True(t, h.LastTouched().Equal(time.Unix(0, 0).Add(900*time.Millisecond)))

	clock.Advance(900 * time.Millisecond)
	assert.False(t, h.Released())

	clock.Advance(100 * time.Millisecond)
	assert.True(t, h.Released())
}

func TestHandleListeners(t *testing.T) {
	p := newPool(t, testutil.NewFactory(), pool.Config{MaxSize: 1})
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	var calls []string
	h.AddListener(func() { calls = append(calls, "a") })
	remove := h.AddListener(func() { calls = append(calls, "removed") })
	h.AddListener(func() { panic("listener failure") })
	h.AddListener(func() { calls = append(calls, "b") })
	remove()

	require.NoError(t, h.Release())
	assert.ElementsMatch(t, []string{"a", "b"}, calls)
	assert.Equal(t, 1, p.Idle(), "a panicking listener does not stop the release")

	h.AddListener(func() { calls = append(calls, "late") })
	assert.Contains(t, calls, "late")
}
