package sqlconn

import (
	"context"
	"database/sql"

	"github.com/go-i2p/sqlpool/lib/pool"
)

// Conn is a leased database connection. Every operation counts as
// activity for idle reclamation. Once the lease ends, operations fail with
// pool.ErrReleased and open statements and result sets are closed.
type Conn struct {
	db *DB
	h  *pool.Handle
}

func (c *Conn) conn() (*sql.Conn, error) {
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

// ExecContext executes a query without returning any rows.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, err := c.conn()
	if err != nil {
		return nil, err
	}
	return conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows. The rows are closed
// when the connection is released.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*Rows, error) {
	conn, err := c.conn()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return newRows(c.h, c.h, rows), nil
}

// QueryRowContext executes a query that is expected to return at most one
// row. Errors are deferred until Row's Scan method is called.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *Row {
	rows, err := c.QueryContext(ctx, query, args...)
	return &Row{rows: rows, err: err}
}

// PrepareContext creates a prepared statement bound to this connection.
// The statement is closed when the connection is released.
func (c *Conn) PrepareContext(ctx context.Context, query string) (*Stmt, error) {
	conn, err := c.conn()
	if err != nil {
		return nil, err
	}
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Stmt{
		h:     c.h,
		stmt:  stmt,
		child: pool.NewChild(c.h, stmt),
	}, nil
}

// PingContext verifies the connection is still alive.
func (c *Conn) PingContext(ctx context.Context) error {
	conn, err := c.conn()
	if err != nil {
		return err
	}
	return conn.PingContext(ctx)
}

// IsValid reports whether the connection is still leased and answers a
// ping. It does not count as activity.
func (c *Conn) IsValid() bool {
	return c.h.IsValid()
}

// Release returns the connection to its pool.
func (c *Conn) Release() error {
	return c.db.Release(c)
}

// Stmt is a prepared statement on a leased connection.
type Stmt struct {
	h     *pool.Handle
	stmt  *sql.Stmt
	child *pool.Child
}

func (s *Stmt) check() error {
	if _, err := s.h.Raw(); err != nil {
		return err
	}
	return nil
}

// ExecContext executes the statement.
func (s *Stmt) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.stmt.ExecContext(ctx, args...)
}

// QueryContext executes the statement and returns its rows. The rows are
// closed when the statement is closed.
func (s *Stmt) QueryContext(ctx context.Context, args ...any) (*Rows, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return newRows(s.h, s.child, rows), nil
}

// Closed reports whether the statement has been closed.
func (s *Stmt) Closed() bool {
	return s.child.Closed()
}

// Close closes the statement and any rows it returned.
func (s *Stmt) Close() error {
	return s.child.Close()
}

// Rows is a result set on a leased connection.
type Rows struct {
	h         *pool.Handle
	rows      *sql.Rows
	child     *pool.Child
	exhausted bool
}

func newRows(h *pool.Handle, parent pool.Parent, rows *sql.Rows) *Rows {
	return &Rows{
		h:     h,
		rows:  rows,
		child: pool.NewChild(parent, rows),
	}
}

// Next prepares the next row for Scan.
func (r *Rows) Next() bool {
	if r.child.Closed() {
		return false
	}
	r.h.Touch()
	if r.rows.Next() {
		return true
	}
	r.exhausted = true
	return false
}

// Scan copies the columns of the current row into dest.
func (r *Rows) Scan(dest ...any) error {
	if _, err := r.h.Raw(); err != nil {
		return err
	}
	return r.rows.Scan(dest...)
}

// Columns returns the column names.
func (r *Rows) Columns() ([]string, error) {
	if _, err := r.h.Raw(); err != nil {
		return nil, err
	}
	return r.rows.Columns()
}

// Err returns the error, if any, that stopped iteration. A result set cut
// short by the end of the lease reports pool.ErrReleased.
func (r *Rows) Err() error {
	if err := r.rows.Err(); err != nil {
		return err
	}
	if !r.exhausted && r.h.Released() {
		return pool.ErrReleased
	}
	return nil
}

// Closed reports whether the rows have been closed.
func (r *Rows) Closed() bool {
	return r.child.Closed()
}

// Close closes the rows.
func (r *Rows) Close() error {
	return r.child.Close()
}

// Row is the result of QueryRowContext.
type Row struct {
	rows *Rows
	err  error
}

// Err returns the error, if any, from running the query.
func (r *Row) Err() error {
	return r.err
}

// Scan copies the columns of the first row into dest and closes the
// result. It returns sql.ErrNoRows if the query matched nothing.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := r.rows.Scan(dest...); err != nil {
		return err
	}
	return r.rows.Close()
}
