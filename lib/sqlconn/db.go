// Package sqlconn pools database/sql connections. Each pooled resource is
// one pinned *sql.Conn; the *sql.DB underneath only dials.
package sqlconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-i2p/logger"

	"github.com/go-i2p/sqlpool/lib/pool"
	"github.com/go-i2p/sqlpool/lib/resilience"
)

var log = logger.GetGoI2PLogger()

// DefaultValidationTimeout bounds the ping used to check a connection.
const DefaultValidationTimeout = 2 * time.Second

// Option configures a DB.
type Option func(*DB)

// WithValidationTimeout sets how long a connection ping may take before the
// connection is treated as broken. Zero means no bound.
func WithValidationTimeout(d time.Duration) Option {
	return func(db *DB) {
		db.validationTimeout = d
	}
}

// WithBreaker routes every dial through b, so an unreachable database
// fails Acquire fast once b has opened.
func WithBreaker(b *resilience.Breaker) Option {
	return func(db *DB) {
		db.breaker = b
	}
}

// DB is a pool of database connections.
type DB struct {
	db                *sql.DB
	pool              *pool.Pool
	breaker           *resilience.Breaker
	validationTimeout time.Duration
}

// Open opens a database with the named driver and pools connections to it.
func Open(driverName, dsn string, cfg pool.Config, opts ...Option) (*DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driverName, err)
	}
	d, err := NewDB(db, cfg, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// NewDB pools connections from an existing *sql.DB. The DB's own idle
// connection cache is disabled so closing a pooled connection really closes
// it. The returned DB owns db and closes it on Close.
func NewDB(db *sql.DB, cfg pool.Config, opts ...Option) (*DB, error) {
	db.SetMaxIdleConns(0)

	d := &DB{
		db:                db,
		validationTimeout: DefaultValidationTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	factory := pool.Factory(d.dial)
	if d.breaker != nil {
		factory = resilience.Factory(d.breaker, factory)
	}
	p, err := pool.New(factory, cfg)
	if err != nil {
		return nil, err
	}
	d.pool = p
	return d, nil
}

// dial is the pool factory: it pins a fresh connection and checks it once.
func (d *DB) dial(ctx context.Context) (pool.Resource, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	raw := &rawConn{conn: conn, timeout: d.validationTimeout}
	if err := raw.ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	log.Debug("opened database connection")
	return raw, nil
}

// Conn leases a connection.
func (d *DB) Conn(ctx context.Context) (*Conn, error) {
	h, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{db: d, h: h}, nil
}

// Release returns a connection to the pool. Connections leased from
// another DB are rejected with pool.ErrInvalidHandle.
func (d *DB) Release(c *Conn) error {
	if c == nil || c.db != d {
		return pool.ErrInvalidHandle
	}
	return d.pool.Release(c.h)
}

// Pool returns the underlying resource pool.
func (d *DB) Pool() *pool.Pool {
	return d.pool
}

// Stats returns pool statistics.
func (d *DB) Stats() pool.Stats {
	return d.pool.Stats()
}

// Close closes every pooled connection and then the database.
func (d *DB) Close() error {
	return errors.Join(d.pool.Close(), d.db.Close())
}

// rawConn is the pooled resource.
type rawConn struct {
	conn    *sql.Conn
	timeout time.Duration
}

func (r *rawConn) ping(ctx context.Context) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.conn.PingContext(ctx)
}

func (r *rawConn) IsValid() bool {
	if err := r.ping(context.Background()); err != nil {
		log.WithError(err).Debug("database connection failed validation")
		return false
	}
	return true
}

func (r *rawConn) Close() error {
	return r.conn.Close()
}
