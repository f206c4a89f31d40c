package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/agent-handoff/internal/protocol"
)

// State is the lifecycle state of a channel
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers receive channel events. All of them are optional and are called
// from the channel's read goroutine.
type Handlers struct {
	OnFrame func(protocol.Frame)
	// OnError reports a transport failure on an open channel. A separate
	// OnClose always follows.
	OnError func(error)
	// OnClose fires exactly once when the channel has closed for any reason.
	OnClose func()
}

const defaultWriteTimeout = 10 * time.Second

// Option configures a channel
type Option func(*link)

// WithWriteTimeout bounds each outbound write
func WithWriteTimeout(d time.Duration) Option {
	return func(l *link) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

// link is the connection machinery shared by both channel kinds
type link struct {
	conn         Conn
	decode       func([]byte) protocol.Frame
	handlers     Handlers
	writeTimeout time.Duration
	logger       zerolog.Logger

	state     atomic.Int32
	writeMu   sync.Mutex
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

func newLink(conn Conn, decode func([]byte) protocol.Frame, h Handlers, logger zerolog.Logger, opts []Option) *link {
	l := &link{
		conn:         conn,
		decode:       decode,
		handlers:     h,
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.state.Store(int32(StateConnecting))
	return l
}

func (l *link) State() State {
	return State(l.state.Load())
}

// start marks the link open and begins delivering inbound frames
func (l *link) start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.state.Store(int32(StateOpen))
	go l.readLoop(ctx)
}

func (l *link) readLoop(ctx context.Context) {
	defer close(l.done)
	defer l.finish()

	for {
		_, data, err := l.conn.Read(ctx)
		if err != nil {
			if l.State() == StateOpen && ctx.Err() == nil && !normalClosure(err) {
				l.logger.Warn().Err(err).Msg("Channel transport error")
				if l.handlers.OnError != nil {
					l.handlers.OnError(err)
				}
			}
			return
		}
		if l.handlers.OnFrame != nil {
			l.handlers.OnFrame(l.decode(data))
		}
	}
}

func (l *link) finish() {
	l.closeOnce.Do(func() {
		_ = l.conn.Close(websocket.StatusNormalClosure, "")
	})
	l.cancel()
	l.state.Store(int32(StateClosed))
	l.logger.Debug().Msg("Channel closed")
	if l.handlers.OnClose != nil {
		l.handlers.OnClose()
	}
}

// write sends one text frame. Writing on a link that is not open is a
// local no-op reported as ErrNotOpen.
func (l *link) write(ctx context.Context, data []byte) error {
	if l.State() != StateOpen {
		l.logger.Warn().Str("state", l.State().String()).Msg("Send on channel that is not open, dropped")
		return ErrNotOpen
	}
	return l.writeRaw(ctx, data)
}

func (l *link) writeRaw(ctx context.Context, data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.writeTimeout)
	defer cancel()

	if err := l.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// close starts a local close. It is safe to call more than once and does
// not wait for the read goroutine.
func (l *link) close(code websocket.StatusCode, reason string) {
	l.closeOnce.Do(func() {
		l.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		l.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing))
		_ = l.conn.Close(code, reason)
		if l.cancel != nil {
			l.cancel()
		}
	})
}

// wait blocks until the read goroutine has exited
func (l *link) wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func normalClosure(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

func channelLogger(kind string) zerolog.Logger {
	return log.With().Str("channel", kind).Logger()
}
