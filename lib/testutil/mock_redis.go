package testutil

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

// MockRedis is a minimal RESP2 server for testing Redis clients without a
// real Redis. It understands PING, ECHO, GET, SET, DEL, INCR, SELECT,
// CLIENT and QUIT. HELLO is rejected so clients fall back to RESP2.
type MockRedis struct {
	mu       sync.Mutex
	listener net.Listener
	data     map[string]string
	conns    map[net.Conn]struct{}
	commands int
	addr     string
}

// NewMockRedis starts a mock server listening on a random local port.
func NewMockRedis() (*MockRedis, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	m := &MockRedis{
		listener: ln,
		data:     make(map[string]string),
		conns:    make(map[net.Conn]struct{}),
		addr:     ln.Addr().String(),
	}

	go m.acceptLoop()

	return m, nil
}

// Addr returns the host:port the server listens on.
func (m *MockRedis) Addr() string {
	return m.addr
}

// Commands returns how many commands the server has handled.
func (m *MockRedis) Commands() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands
}

// Clients returns the number of open client connections.
func (m *MockRedis) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Get returns a stored value.
func (m *MockRedis) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// DropClients closes every open client connection. The listener keeps
// accepting new ones.
func (m *MockRedis) DropClients() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.conns {
		c.Close()
		delete(m.conns, c)
	}
}

// Close stops the server and drops every client.
func (m *MockRedis) Close() error {
	err := m.listener.Close()
	m.DropClients()
	return err
}

func (m *MockRedis) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conns[conn] = struct{}{}
		m.mu.Unlock()
		go m.handleConnection(conn)
	}
}

func (m *MockRedis) handleConnection(conn net.Conn) {
	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		quit := m.exec(w, args)
		if err := w.Flush(); err != nil || quit {
			return
		}
	}
}

// readCommand reads one RESP array of bulk strings.
func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		// Inline command.
		return strings.Fields(line), nil
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		hdr, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if len(hdr) == 0 || hdr[0] != '$' {
			return nil, fmt.Errorf("unexpected %q", hdr)
		}
		size, err := strconv.Atoi(hdr[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (m *MockRedis) exec(w *bufio.Writer, args []string) (quit bool) {
	if len(args) == 0 {
		writeError(w, "ERR empty command")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands++

	switch cmd := strings.ToUpper(args[0]); cmd {
	case "PING":
		if len(args) > 1 {
			writeBulk(w, args[1])
		} else {
			fmt.Fprint(w, "+PONG\r\n")
		}
	case "ECHO":
		if len(args) != 2 {
			writeArity(w, cmd)
			return false
		}
		writeBulk(w, args[1])
	case "GET":
		if len(args) != 2 {
			writeArity(w, cmd)
			return false
		}
		v, ok := m.data[args[1]]
		if !ok {
			fmt.Fprint(w, "$-1\r\n")
			return false
		}
		writeBulk(w, v)
	case "SET":
		if len(args) < 3 {
			writeArity(w, cmd)
			return false
		}
		m.data[args[1]] = args[2]
		fmt.Fprint(w, "+OK\r\n")
	case "DEL":
		var n int
		for _, k := range args[1:] {
			if _, ok := m.data[k]; ok {
				delete(m.data, k)
				n++
			}
		}
		fmt.Fprintf(w, ":%d\r\n", n)
	case "INCR":
		if len(args) != 2 {
			writeArity(w, cmd)
			return false
		}
		n, err := strconv.ParseInt(m.data[args[1]], 10, 64)
		if err != nil && m.data[args[1]] != "" {
			writeError(w, "ERR value is not an integer or out of range")
			return false
		}
		n++
		m.data[args[1]] = strconv.FormatInt(n, 10)
		fmt.Fprintf(w, ":%d\r\n", n)
	case "SELECT", "CLIENT", "AUTH":
		fmt.Fprint(w, "+OK\r\n")
	case "QUIT":
		fmt.Fprint(w, "+OK\r\n")
		return true
	default:
		writeError(w, fmt.Sprintf("ERR unknown command '%s'", args[0]))
	}
	return false
}

func writeBulk(w *bufio.Writer, s string) {
	fmt.Fprintf(w, "$%d\r\n%s\r\n", len(s), s)
}

func writeError(w *bufio.Writer, msg string) {
	fmt.Fprintf(w, "-%s\r\n", msg)
}

func writeArity(w *bufio.Writer, cmd string) {
	writeError(w, fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd)))
}
