package channel

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coder/websocket"

	"github.com/Rrens/agent-handoff/internal/protocol"
)

// ChatURL returns the agent-side chat address for a ticket
func ChatURL(base string, id protocol.TicketID) (string, error) {
	return url.JoinPath(base, "ws", "tickets", id.String(), "agent")
}

// Chat is the conversation channel for one ticket
type Chat struct {
	*link
	ticketID protocol.TicketID
}

// OpenChat connects the chat channel for ticket id and sends the init frame
// before the channel is reported open, so no content can precede it.
func OpenChat(ctx context.Context, d Dialer, base string, id protocol.TicketID, agentID, agentName string, h Handlers, opts ...Option) (*Chat, error) {
	u, err := ChatURL(base, id)
	if err != nil {
		return nil, fmt.Errorf("invalid chat url: %w", err)
	}

	conn, err := d.Dial(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chat: %w", err)
	}

	logger := channelLogger("chat").With().
		Str("ticket_id", id.String()).
		Str("agent_id", agentID).
		Logger()
	c := &Chat{
		link:     newLink(conn, protocol.DecodeChat, h, logger, opts),
		ticketID: id,
	}

	if err := c.writeRaw(ctx, protocol.EncodeInit(agentID, agentName)); err != nil {
		c.close(websocket.StatusInternalError, "init failed")
		return nil, fmt.Errorf("failed to send init: %w", err)
	}

	c.start()
	logger.Info().Msg("Chat channel open")
	return c, nil
}

// TicketID returns the ticket the channel is bound to
func (c *Chat) TicketID() protocol.TicketID {
	return c.ticketID
}

// Send writes conversation text as a bare text frame
func (c *Chat) Send(ctx context.Context, text string) error {
	return c.write(ctx, []byte(text))
}

// Release sends the release request and closes the channel without waiting
// for an acknowledgement. The channel is closed even if the send fails.
func (c *Chat) Release(ctx context.Context) error {
	defer c.close(websocket.StatusNormalClosure, "released")
	return c.write(ctx, protocol.EncodeRelease(c.ticketID))
}

// Close closes the channel without a release. Safe to call more than once.
func (c *Chat) Close() {
	c.close(websocket.StatusNormalClosure, "")
}

// Wait blocks until the chat's read goroutine has finished
func (c *Chat) Wait(ctx context.Context) error {
	return c.wait(ctx)
}
