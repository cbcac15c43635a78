// Package network owns every socket of the arena server: the single
// controller connection and the HTTP/WebSocket monitor.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultReceiveBuffer matches the usual platform socket receive size.
const DefaultReceiveBuffer = 64 * 1024

// ErrNotListening is returned by Accept after the listener has been used or closed.
var ErrNotListening = errors.New("network: listener closed")

// Listener accepts exactly one controller for its lifetime.
type Listener struct {
	ln       net.Listener
	mu       sync.Mutex
	accepted bool
}

// Listen binds addr. A bind failure is returned immediately so the caller can fail fast.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind controller listener on %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Addr is the bound address (useful when listening on port 0).
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept blocks until the controller connects or ctx is cancelled, then closes
// the listener. Further calls return ErrNotListening.
func (l *Listener) Accept(ctx context.Context, bufferSize int) (*Conn, error) {
	l.mu.Lock()
	if l.accepted {
		l.mu.Unlock()
		return nil, ErrNotListening
	}
	l.accepted = true
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()

	c, err := l.ln.Accept()
	l.ln.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to accept controller: %w", err)
	}
	if tcp, ok := c.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return NewConn(c, bufferSize), nil
}

// Close releases the listening socket. Safe to call after Accept.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.accepted = true
	l.mu.Unlock()
	if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Conn is the controller socket. Send and Receive block; Close is idempotent.
type Conn struct {
	conn    net.Conn
	buf     []byte
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established connection.
func NewConn(c net.Conn, bufferSize int) *Conn {
	if bufferSize <= 0 {
		bufferSize = DefaultReceiveBuffer
	}
	return &Conn{conn: c, buf: make([]byte, bufferSize)}
}

// SetReceiveTimeout bounds each following Receive. Zero blocks forever.
func (c *Conn) SetReceiveTimeout(d time.Duration) {
	c.timeout = d
}

// Send writes the whole payload.
func (c *Conn) Send(payload []byte) error {
	for len(payload) > 0 {
		n, err := c.conn.Write(payload)
		if err != nil {
			return fmt.Errorf("failed to send to controller: %w", err)
		}
		payload = payload[n:]
	}
	return nil
}

// Receive performs one read into the bounded buffer and returns a copy of the
// bytes read. Zero bytes with a nil error means no message this call.
func (c *Conn) Receive() ([]byte, error) {
	if c.timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to receive from controller: %w", err)
	}
	return nil, nil
}

// Close shuts the socket down once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr is the controller's address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
