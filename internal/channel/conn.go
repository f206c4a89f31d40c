// Package channel implements the agent side of the two WebSocket channels:
// the per-agent notifier channel and the per-ticket chat channel.
package channel

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
)

// ErrNotOpen is returned when sending on a channel that is not open
var ErrNotOpen = errors.New("channel is not open")

// Conn is the subset of *websocket.Conn the channels use
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a Conn to a WebSocket URL
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials real WebSocket connections
type WebSocketDialer struct {
	Header     http.Header
	HTTPClient *http.Client
	ReadLimit  int64
}

// Dial implements Dialer
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: d.Header,
		HTTPClient: d.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return c, nil
}

// BearerHeader returns a header carrying token as a bearer credential
func BearerHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
