package hub

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

type outbound struct {
	data   []byte
	close  bool
	code   websocket.StatusCode
	reason string
}

// client is one accepted socket. Frames are queued and written by a single
// pump goroutine; a full queue drops the client.
type client struct {
	conn         *websocket.Conn
	agentID      string
	send         chan outbound
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	logger       zerolog.Logger
}

func newClient(conn *websocket.Conn, agentID string, buffer int, writeTimeout time.Duration, logger zerolog.Logger) *client {
	if buffer <= 0 {
		buffer = 64
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &client{
		conn:         conn,
		agentID:      agentID,
		send:         make(chan outbound, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// enqueue queues a frame without blocking
func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- outbound{data: frame}:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn().Msg("Send buffer full, dropping client")
		c.close(websocket.StatusPolicyViolation, "backpressure")
		return false
	}
}

// shutdown closes the socket after every frame queued so far is written
func (c *client) shutdown(code websocket.StatusCode, reason string) {
	select {
	case c.send <- outbound{close: true, code: code, reason: reason}:
	case <-c.done:
	default:
		c.close(code, reason)
	}
}

// close closes the socket immediately
func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		go c.conn.Close(code, reason)
	})
}

// closed is done once the client is closed
func (c *client) closed() <-chan struct{} {
	return c.done
}

func (c *client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case out := <-c.send:
			if out.close {
				c.close(out.code, out.reason)
				return
			}
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, out.data)
			cancel()
			if err != nil {
				c.logger.Debug().Err(err).Msg("Write failed")
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}
