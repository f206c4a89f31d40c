package channel

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coder/websocket"

	"github.com/Rrens/agent-handoff/internal/protocol"
)

// NotifierURL returns the notifier address for an agent
func NotifierURL(base, agentID string) (string, error) {
	return url.JoinPath(base, "ws", "agents", agentID)
}

// Notifier is one agent's broadcast channel. It receives ticket events and
// carries the agent's claim requests. It never reconnects by itself.
type Notifier struct {
	*link
	agentID string
}

// OpenNotifier connects the notifier channel for agentID. No handshake
// payload is sent; the server knows the agent from the address.
func OpenNotifier(ctx context.Context, d Dialer, base, agentID string, h Handlers, opts ...Option) (*Notifier, error) {
	u, err := NotifierURL(base, agentID)
	if err != nil {
		return nil, fmt.Errorf("invalid notifier url: %w", err)
	}

	conn, err := d.Dial(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to dial notifier: %w", err)
	}

	logger := channelLogger("notifier").With().Str("agent_id", agentID).Logger()
	n := &Notifier{
		link:    newLink(conn, protocol.DecodeNotifier, h, logger, opts),
		agentID: agentID,
	}
	n.start()
	logger.Info().Msg("Notifier channel open")
	return n, nil
}

// AgentID returns the agent the channel is addressed to
func (n *Notifier) AgentID() string {
	return n.agentID
}

// SendClaim asks the server to assign ticket id to this agent
func (n *Notifier) SendClaim(ctx context.Context, id protocol.TicketID) error {
	if n.State() != StateOpen {
		n.logger.Warn().Str("ticket_id", id.String()).Msg("Claim on closed notifier channel, not sent")
		return ErrNotOpen
	}
	return n.write(ctx, protocol.EncodeClaim(id))
}

// Close closes the channel. Safe to call more than once.
func (n *Notifier) Close() {
	n.close(websocket.StatusNormalClosure, "logout")
}

// Wait blocks until the notifier's read goroutine has finished
func (n *Notifier) Wait(ctx context.Context) error {
	return n.wait(ctx)
}
