package sqlconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

const fakeDriverName = "sqlconn-fake"

func init() {
	sql.Register(fakeDriverName, fakeDriver{})
}

var (
	serversMu sync.Mutex
	servers   = map[string]*fakeServer{}
)

// fakeServer is the shared state behind every connection opened with a
// given DSN.
type fakeServer struct {
	mu         sync.Mutex
	opens      int
	closes     int
	stmtCloses int
	execs      []string
	down       bool
	refuse     bool

	columns []string
	rows    [][]driver.Value
}

// newFakeServer registers a server under the test's name and returns it
// with its DSN.
func newFakeServer(t *testing.T) (*fakeServer, string) {
	t.Helper()
	dsn := strings.ReplaceAll(t.Name(), "/", "_")
	s := &fakeServer{
		columns: []string{"id", "name"},
		rows: [][]driver.Value{
			{int64(1), "alpha"},
			{int64(2), "beta"},
		},
	}

	serversMu.Lock()
	servers[dsn] = s
	serversMu.Unlock()
	t.Cleanup(func() {
		serversMu.Lock()
		delete(servers, dsn)
		serversMu.Unlock()
	})
	return s, dsn
}

func (s *fakeServer) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *fakeServer) setRefuse(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

func (s *fakeServer) setRows(rows [][]driver.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

func (s *fakeServer) counts() (opens, closes, stmtCloses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes, s.stmtCloses
}

func (s *fakeServer) open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens - s.closes
}

type fakeDriver struct{}

func (fakeDriver) Open(dsn string) (driver.Conn, error) {
	serversMu.Lock()
	s, ok := servers[dsn]
	serversMu.Unlock()
	if !ok {
		return nil, errors.New("unknown fake server " + dsn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse {
		return nil, errors.New("connection refused")
	}
	s.opens++
	return &fakeConn{server: s}, nil
}

type fakeConn struct {
	server *fakeServer
}

var (
	_ driver.Pinger         = (*fakeConn)(nil)
	_ driver.ExecerContext  = (*fakeConn)(nil)
	_ driver.QueryerContext = (*fakeConn)(nil)
)

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeStmt{conn: c, query: query}, nil
}

func (c *fakeConn) Close() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.closes++
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions are not supported")
}

func (c *fakeConn) Ping(ctx context.Context) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if c.server.down {
		return errors.New("server is down")
	}
	return nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if c.server.down {
		return nil, errors.New("server is down")
	}
	c.server.execs = append(c.server.execs, query)
	return driver.RowsAffected(1), nil
}

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if c.server.down {
		return nil, errors.New("server is down")
	}
	return &fakeRows{columns: c.server.columns, rows: c.server.rows}, nil
}

type fakeStmt struct {
	conn  *fakeConn
	query string
}

func (s *fakeStmt) Close() error {
	s.conn.server.mu.Lock()
	defer s.conn.server.mu.Unlock()
	s.conn.server.stmtCloses++
	return nil
}

func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.conn.ExecContext(context.Background(), s.query, nil)
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.conn.QueryContext(context.Background(), s.query, nil)
}

type fakeRows struct {
	columns []string
	rows    [][]driver.Value
	pos     int
}

func (r *fakeRows) Columns() []string { return r.columns }

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
