package testutil

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// PoolHandler serves one client connection. n is the 1-based connection
// number. The connection is closed when the handler returns.
type PoolHandler func(n int, c *PoolConn)

// FakePool is a loopback TCP pool server.
type FakePool struct {
	ln      net.Listener
	handler PoolHandler
	conns   atomic.Int32
	wg      sync.WaitGroup

	mu    sync.Mutex
	lines []string
	open  []net.Conn
}

// NewFakePool starts a pool server that runs handler for each connection.
// It is shut down when the test ends.
func NewFakePool(t *testing.T, handler PoolHandler) *FakePool {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	p := &FakePool{ln: ln, handler: handler}
	p.wg.Add(1)
	go p.accept()
	t.Cleanup(p.Close)
	return p
}

// Endpoint returns the server's host:port.
func (p *FakePool) Endpoint() string {
	return p.ln.Addr().String()
}

// Connections returns how many connections were accepted.
func (p *FakePool) Connections() int {
	return int(p.conns.Load())
}

// Lines returns every line received from clients, in arrival order.
func (p *FakePool) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

// Close stops accepting, closes open connections and waits for handlers.
func (p *FakePool) Close() {
	p.ln.Close()
	p.mu.Lock()
	for _, c := range p.open {
		c.Close()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *FakePool) accept() {
	defer p.wg.Done()
	for {
		nc, err := p.ln.Accept()
		if err != nil {
			return
		}
		n := int(p.conns.Add(1))
		p.mu.Lock()
		p.open = append(p.open, nc)
		p.mu.Unlock()

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer nc.Close()
			p.handler(n, &PoolConn{nc: nc, r: bufio.NewReader(nc), pool: p})
		}()
	}
}

// PoolConn is the server side of one client connection.
type PoolConn struct {
	nc   net.Conn
	r    *bufio.Reader
	pool *FakePool
}

// Send writes s verbatim.
func (c *PoolConn) Send(s string) bool {
	_ = c.nc.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := c.nc.Write([]byte(s))
	return err == nil
}

// ReadLine reads one line from the client without its terminator.
func (c *PoolConn) ReadLine() (string, bool) {
	_ = c.nc.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", false
	}
	line = strings.TrimSuffix(line, "\n")
	c.pool.mu.Lock()
	c.pool.lines = append(c.pool.lines, line)
	c.pool.mu.Unlock()
	return line, true
}

// Expect reads one line and reports whether it starts with prefix.
func (c *PoolConn) Expect(prefix string) bool {
	line, ok := c.ReadLine()
	return ok && strings.HasPrefix(line, prefix)
}

// Hold blocks until the client closes the connection.
func (c *PoolConn) Hold() {
	_ = c.nc.SetReadDeadline(time.Time{})
	for {
		if _, err := c.r.ReadByte(); err != nil {
			return
		}
	}
}
