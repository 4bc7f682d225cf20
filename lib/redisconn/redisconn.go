// Package redisconn pools dedicated Redis connections. Each pooled resource
// owns its own single-connection go-redis client, so commands that depend
// on connection state (SELECT, CLIENT SETNAME, WATCH) stay on the lease and
// closing a resource really closes its socket.
package redisconn

import (
	"context"
	"errors"

	"github.com/go-i2p/logger"
	"github.com/redis/go-redis/v9"

	"github.com/go-i2p/sqlpool/lib/pool"
	"github.com/go-i2p/sqlpool/lib/resilience"
)

var log = logger.GetGoI2PLogger()

// Option configures a Pool.
type Option func(*Pool)

// WithBreaker routes every dial through b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(p *Pool) {
		p.breaker = b
	}
}

// Pool is a pool of Redis connections.
type Pool struct {
	opts    redis.Options
	pool    *pool.Pool
	breaker *resilience.Breaker
}

// New creates a pool of connections to the server described by opts.
// Pool sizing in opts is ignored: every resource gets a client of its own
// holding exactly one connection, and cfg alone bounds how many exist.
func New(opts *redis.Options, cfg pool.Config, options ...Option) (*Pool, error) {
	p := &Pool{opts: *opts}
	p.opts.PoolSize = 1
	p.opts.MinIdleConns = 0
	p.opts.MaxIdleConns = 1

	for _, opt := range options {
		opt(p)
	}
	factory := pool.Factory(p.dial)
	if p.breaker != nil {
		factory = resilience.Factory(p.breaker, factory)
	}
	rp, err := pool.New(factory, cfg)
	if err != nil {
		return nil, err
	}
	p.pool = rp
	return p, nil
}

func (p *Pool) dial(ctx context.Context) (pool.Resource, error) {
	o := p.opts
	client := redis.NewClient(&o)
	raw := &rawConn{client: client, conn: client.Conn()}
	if err := raw.conn.Ping(ctx).Err(); err != nil {
		raw.Close()
		return nil, err
	}
	log.WithField("addr", o.Addr).Debug("opened redis connection")
	return raw, nil
}

// Conn leases a connection.
func (p *Pool) Conn(ctx context.Context) (*Conn, error) {
	h, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{p: p, h: h}, nil
}

// Release returns a connection to the pool.
func (p *Pool) Release(c *Conn) error {
	if c == nil || c.p != p {
		return pool.ErrInvalidHandle
	}
	return p.pool.Release(c.h)
}

// Pool returns the underlying resource pool.
func (p *Pool) Pool() *pool.Pool {
	return p.pool
}

// Stats returns pool statistics.
func (p *Pool) Stats() pool.Stats {
	return p.pool.Stats()
}

// Close closes every pooled connection.
func (p *Pool) Close() error {
	return p.pool.Close()
}

type rawConn struct {
	client *redis.Client
	conn   *redis.Conn
}

func (r *rawConn) IsValid() bool {
	if err := r.conn.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).Debug("redis connection failed validation")
		return false
	}
	return true
}

func (r *rawConn) Close() error {
	return errors.Join(r.conn.Close(), r.client.Close())
}

// Conn is a leased Redis connection. Once the lease ends, commands fail
// with pool.ErrReleased and open pipelines are discarded.
type Conn struct {
	p *Pool
	h *pool.Handle
}

func (c *Conn) conn() (*redis.Conn, error) {
	raw, err := c.h.Raw()
	if err != nil {
		return nil, err
	}
	return raw.(*rawConn).conn, nil
}

// Handle returns the pool lease behind the connection.
func (c *Conn) Handle() *pool.Handle {
	return c.h
}

// Do runs a single command and returns its reply. A missing key is
// reported as redis.Nil.
func (c *Conn) Do(ctx context.Context, args ...any) (any, error) {
	conn, err := c.conn()
	if err != nil {
		return nil, err
	}
	cmd := redis.NewCmd(ctx, args...)
	_ = conn.Process(ctx, cmd)
	return cmd.Result()
}

// Ping checks that the server still answers.
func (c *Conn) Ping(ctx context.Context) error {
	conn, err := c.conn()
	if err != nil {
		return err
	}
	return conn.Ping(ctx).Err()
}

// Pipeline starts a pipeline on this connection. Commands queued on it are
// discarded if the lease ends before Exec.
func (c *Conn) Pipeline() (*Pipeline, error) {
	conn, err := c.conn()
	if err != nil {
		return nil, err
	}
	pipe := conn.Pipeline()
	return &Pipeline{
		h:     c.h,
		pipe:  pipe,
		child: pool.NewChild(c.h, pipelineCloser{pipe}),
	}, nil
}

// IsValid reports whether the connection is still leased and answers a
// ping. It does not count as activity.
func (c *Conn) IsValid() bool {
	return c.h.IsValid()
}

// Release returns the connection to its pool.
func (c *Conn) Release() error {
	return c.p.Release(c)
}

// Pipeline buffers commands for a single round trip.
type Pipeline struct {
	h     *pool.Handle
	pipe  redis.Pipeliner
	child *pool.Child
}

// Do queues a command.
func (p *Pipeline) Do(ctx context.Context, args ...any) error {
	if _, err := p.h.Raw(); err != nil {
		return err
	}
	if p.child.Closed() {
		return errPipelineClosed
	}
	p.pipe.Do(ctx, args...)
	return nil
}

// Len returns the number of queued commands.
func (p *Pipeline) Len() int {
	return p.pipe.Len()
}

// Exec sends the queued commands and returns their replies in order.
// The pipeline can be reused afterwards.
func (p *Pipeline) Exec(ctx context.Context) ([]any, error) {
	if _, err := p.h.Raw(); err != nil {
		return nil, err
	}
	if p.child.Closed() {
		return nil, errPipelineClosed
	}
	cmds, err := p.pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]any, len(cmds))
	for i, cmd := range cmds {
		if c, ok := cmd.(*redis.Cmd); ok {
			out[i] = c.Val()
		}
	}
	return out, nil
}

// Closed reports whether the pipeline has been closed.
func (p *Pipeline) Closed() bool {
	return p.child.Closed()
}

// Close discards queued commands and closes the pipeline.
func (p *Pipeline) Close() error {
	return p.child.Close()
}

var errPipelineClosed = errors.New("redisconn: pipeline is closed")

// pipelineCloser drops whatever is still queued.
type pipelineCloser struct{ pipe redis.Pipeliner }

func (c pipelineCloser) Close() error {
	c.pipe.Discard()
	return nil
}
