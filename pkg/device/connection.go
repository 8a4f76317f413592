package device

import (
	"fmt"
	"net"
	"sync"
	"time"

	"printbridge/pkg/errors"
)

// Connection represents one TCP session to a printer
type Connection struct {
	addr string
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

// Connect opens a TCP connection to the printer with a dial timeout.
// Timeout expiry maps to ErrConnectTimeout; refusal, unreachable hosts
// and DNS failures map to ErrConnectFailed.
func Connect(host string, port int, timeout time.Duration) (*Connection, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %s after %v", errors.ErrConnectTimeout, addr, timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrConnectFailed, addr, err)
	}

	return &Connection{addr: addr, conn: conn}, nil
}

// Addr returns the remote printer address
func (c *Connection) Addr() string {
	return c.addr
}

// Send writes the full buffer to the printer. The write either completes
// entirely or fails; partial writes are never reported as success.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrNotConnected
	}

	written := 0
	for written < len(data) {
		n, err := c.conn.Write(data[written:])
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errors.ErrWriteFailed, c.addr, err)
		}
		written += n
	}

	return nil
}

// Close releases the socket. Safe to call multiple times.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}

// IsHealthy reports whether the connection is open and still writable.
// A zero-deadline read probe detects a peer that has closed the socket:
// EOF or a reset means dead, a read timeout means no pending data and a
// live connection.
func (c *Connection) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if err := c.conn.SetReadDeadline(time.Now()); err != nil {
		return false
	}

	one := make([]byte, 1)
	_, err := c.conn.Read(one)
	// Clear the probe deadline so later reads are unaffected
	_ = c.conn.SetReadDeadline(time.Time{})

	if err == nil {
		// Printers do not push unsolicited data on this path; stray
		// bytes are drained by the probe and the socket stays usable
		return true
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return false
}
