package testutil

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClockAdvance(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewManualClock(start)

	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() { order = append(order, "a") })
	late := c.AfterFunc(10*time.Second, func() { order = append(order, "late") })

	c.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.True(t, c.Now().Equal(start.Add(3*time.Second)))
	assert.Equal(t, 1, c.Pending())

	assert.True(t, late.Stop())
	assert.False(t, late.Stop())
	c.Advance(time.Minute)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestManualClockRescheduleWithinAdvance(t *testing.T) {
	c := NewManualClock(time.Unix(0, 0))

	var fired []time.Time
	var tick func()
	tick = func() {
		fired = append(fired, c.Now())
		if len(fired) < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(5 * time.Second)
	require.Len(t, fired, 3)
	assert.True(t, fired[2].Equal(time.Unix(3, 0)))
	assert.Equal(t, 0, c.Pending())
}

func TestFactory(t *testing.T) {
	f := NewFactory()

	r, err := f.New(context.Background())
	require.NoError(t, err)
	assert.True(t, r.IsValid())

	res := r.(*Resource)
	assert.Equal(t, 1, res.ID())
	res.Invalidate()
	assert.False(t, res.IsValid())

	boom := errors.New("boom")
	f.FailWith(boom)
	_, err = f.New(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, f.Calls())
	assert.Len(t, f.Created(), 1)
}

func TestMockRedis(t *testing.T) {
	m, err := NewMockRedis()
	require.NoError(t, err)
	defer m.Close()

	conn, err := net.DialTimeout("tcp", m.Addr(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	send := func(cmd string) string {
		_, err := conn.Write([]byte(cmd))
		require.NoError(t, err)
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return line
	}

	assert.Equal(t, "+PONG\r\n", send("*1\r\n$4\r\nPING\r\n"))
	assert.Equal(t, "+OK\r\n", send("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"))
	assert.Equal(t, "$1\r\n", send("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"))

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "v\r\n", line)

	assert.Equal(t, "-ERR unknown command 'HELLO'\r\n", send("*2\r\n$5\r\nHELLO\r\n$1\r\n3\r\n"))

	v, ok := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, 4, m.Commands())
	assert.Equal(t, 1, m.Clients())
}
