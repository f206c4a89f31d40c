// Package channeltest provides in-memory connections for channel tests.
package channeltest

import (
	"context"
	"errors"
	"sync"

	"github.com/coder/websocket"

	"github.com/Rrens/agent-handoff/internal/channel"
)

var errClosed = errors.New("connection closed")

type event struct {
	data []byte
	err  error
}

// Conn is a scripted channel.Conn. Inbound frames and remote closes are
// delivered to Read in the order they were pushed.
type Conn struct {
	URL string

	in   chan event
	done chan struct{}

	mu        sync.Mutex
	sent      [][]byte
	closed    bool
	closeCode websocket.StatusCode
	writeErr  error
	onClose   func(*Conn)
}

// NewConn creates an open connection
func NewConn() *Conn {
	return &Conn{
		in:   make(chan event, 256),
		done: make(chan struct{}),
	}
}

// Push queues an inbound text frame
func (c *Conn) Push(data string) {
	c.in <- event{data: []byte(data)}
}

// RemoteClose makes the peer close the connection with code
func (c *Conn) RemoteClose(code websocket.StatusCode, reason string) {
	c.in <- event{err: websocket.CloseError{Code: code, Reason: reason}}
}

// Fail makes the next Read return err
func (c *Conn) Fail(err error) {
	c.in <- event{err: err}
}

// FailWrites makes every subsequent Write return err
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Read implements channel.Conn
func (c *Conn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case ev := <-c.in:
		if ev.err != nil {
			return 0, nil, ev.err
		}
		return websocket.MessageText, ev.data, nil
	case <-c.done:
		return 0, nil, websocket.CloseError{Code: c.CloseCode()}
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Write implements channel.Conn
func (c *Conn) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.sent = append(c.sent, append([]byte(nil), p...))
	return nil
}

// Close implements channel.Conn
func (c *Conn) Close(code websocket.StatusCode, _ string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	c.closed = true
	c.closeCode = code
	close(c.done)
	hook := c.onClose
	c.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	return nil
}

// Sent returns every frame written so far
func (c *Conn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.sent))
	for i, p := range c.sent {
		out[i] = string(p)
	}
	return out
}

// Closed reports whether Close was called
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCode returns the status passed to Close
func (c *Conn) CloseCode() websocket.StatusCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// Dialer hands out a new Conn per Dial and remembers them
type Dialer struct {
	// Prepare, if set, runs on each new Conn before it is returned
	Prepare func(*Conn)

	mu     sync.Mutex
	conns  []*Conn
	closed []string
	err    error
}

// FailDials makes subsequent dials return err, or succeed again when nil
func (d *Dialer) FailDials(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dial implements channel.Dialer
func (d *Dialer) Dial(_ context.Context, url string) (channel.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	c := NewConn()
	c.URL = url
	c.onClose = d.recordClose
	if d.Prepare != nil {
		d.Prepare(c)
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *Dialer) recordClose(c *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = append(d.closed, c.URL)
}

// ClosedURLs returns the URLs of closed connections in close order
func (d *Dialer) ClosedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.closed...)
}

// Conns returns every connection dialed so far
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Last returns the most recent connection or nil
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Find returns the most recent connection dialed to url or nil
func (d *Dialer) Find(url string) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := len(d.conns) - 1; i >= 0; i-- {
		if d.conns[i].URL == url {
			return d.conns[i]
		}
	}
	return nil
}
