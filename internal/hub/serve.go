package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/protocol"
	"github.com/Rrens/agent-handoff/internal/service"
)

const initTimeout = 10 * time.Second

// Tickets is the ticket lifecycle the hub drives
type Tickets interface {
	Get(ctx context.Context, ticketID string) (*domain.Ticket, error)
	Claim(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error)
	Release(ctx context.Context, ticketID, agentID string) error
	AddMessage(ctx context.Context, ticketID string, sender domain.Sender, agentID, text string) (*domain.Message, error)
}

// Server serves the notifier and chat sockets
type Server struct {
	hub     *Hub
	tickets Tickets
}

// NewServer creates the socket endpoints over h
func NewServer(h *Hub, tickets Tickets) *Server {
	return &Server{hub: h, tickets: tickets}
}

// Hub returns the connection tables
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	// Sockets outlive the server's request deadlines.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.hub.cfg.AllowedOrigins,
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Server) newClient(conn *websocket.Conn, agentID, kind, ticketID string) *client {
	logger := log.With().Str("socket", kind).Str("agent_id", agentID).Str("ticket_id", ticketID).Logger()
	return newClient(conn, agentID, s.hub.cfg.SendBuffer, s.hub.cfg.WriteTimeout, logger)
}

// ServeNotifier handles an agent's notifier socket. agentID is the
// authenticated agent.
func (s *Server) ServeNotifier(w http.ResponseWriter, r *http.Request, agentID string) {
	conn, err := s.accept(w, r)
	if err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("Notifier accept failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := s.newClient(conn, agentID, "notifier", "")
	s.hub.addNotifier(c)
	go c.writePump(ctx)
	c.logger.Info().Msg("Notifier connected")

	defer func() {
		s.hub.removeNotifier(c)
		c.close(websocket.StatusNormalClosure, "")
		c.logger.Info().Msg("Notifier disconnected")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		ctl, ok := protocol.DecodeControl(data)
		if !ok || ctl.Action != protocol.ActionClaim {
			c.logger.Debug().Str("frame", string(data)).Msg("Ignoring notifier frame")
			continue
		}
		s.claimFromNotifier(ctx, c, string(ctl.TicketID))
	}
}

func (s *Server) claimFromNotifier(ctx context.Context, c *client, ticketID string) {
	_, err := s.tickets.Claim(ctx, ticketID, c.agentID)
	if err == nil {
		return
	}
	if holder, ok := service.IsConflict(err); ok {
		c.enqueue(protocol.EncodeClaimRejected(protocol.TicketID(ticketID), holder))
		return
	}

	c.logger.Warn().Err(err).Str("claim", ticketID).Msg("Claim refused")
	if t, gerr := s.tickets.Get(ctx, ticketID); gerr == nil && t.Status == domain.TicketStatusClosed {
		c.enqueue(protocol.EncodeTicketClosed(protocol.TicketID(ticketID)))
		return
	}
	c.enqueue(protocol.EncodeClaimRejected(protocol.TicketID(ticketID), ""))
}

// ServeAgentChat handles an agent's chat socket for one ticket. The first
// frame must be init; it claims the ticket for the agent it names, which
// must match authAgentID when that is set.
func (s *Server) ServeAgentChat(w http.ResponseWriter, r *http.Request, ticketID, authAgentID string) {
	conn, err := s.accept(w, r)
	if err != nil {
		log.Warn().Err(err).Str("ticket_id", ticketID).Msg("Chat accept failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ctl, err := readInit(ctx, conn)
	if err != nil {
		log.Warn().Err(err).Str("ticket_id", ticketID).Msg("Chat init failed")
		conn.Close(websocket.StatusPolicyViolation, "init required")
		return
	}
	if authAgentID != "" && ctl.AgentID != authAgentID {
		conn.Close(websocket.StatusPolicyViolation, "agent mismatch")
		return
	}

	c := s.newClient(conn, ctl.AgentID, "chat", ticketID)
	go c.writePump(ctx)
	defer c.close(websocket.StatusNormalClosure, "")

	if _, err := s.tickets.Claim(ctx, ticketID, ctl.AgentID); err != nil {
		s.rejectChat(ctx, c, ticketID, err)
		<-c.closed()
		return
	}

	if old := s.hub.bindAgent(ticketID, c, ctl.AgentName); old != nil && old != c {
		old.shutdown(websocket.StatusNormalClosure, "replaced")
	}
	defer s.hub.unbindAgent(ticketID, c)

	c.enqueue(protocol.EncodeAgentJoined(ctl.AgentID, ctl.AgentName))
	s.hub.toCustomers(ticketID, protocol.EncodeSystem(agentLabel(ctl.AgentName)+" joined the conversation."))
	c.logger.Info().Str("agent_name", ctl.AgentName).Msg("Agent joined chat")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if ctl, ok := protocol.DecodeControl(data); ok {
			if ctl.Action == protocol.ActionRelease {
				s.releaseChat(ctx, c, ticketID)
				return
			}
			continue
		}

		text := string(data)
		if _, err := s.tickets.AddMessage(ctx, ticketID, domain.SenderAgent, c.agentID, text); err != nil {
			c.logger.Error().Err(err).Msg("Failed to save agent message")
		}
		s.hub.toCustomers(ticketID, protocol.EncodeText(domain.SenderAgent, text))
	}
}

func (s *Server) rejectChat(ctx context.Context, c *client, ticketID string, err error) {
	if holder, ok := service.IsConflict(err); ok {
		c.logger.Info().Str("holder", holder).Msg("Chat claim rejected")
		c.enqueue(protocol.EncodeClaimRejected(protocol.TicketID(ticketID), holder))
		c.enqueue(protocol.EncodeSystem("This ticket is already handled by another agent."))
		c.shutdown(websocket.StatusPolicyViolation, "claimed by another agent")
		return
	}

	c.logger.Warn().Err(err).Msg("Chat claim refused")
	reason := "ticket not available"
	if errors.Is(err, domain.ErrTicketNotFound) {
		reason = "ticket not found"
	}
	c.shutdown(websocket.StatusPolicyViolation, reason)
}

func (s *Server) releaseChat(ctx context.Context, c *client, ticketID string) {
	if err := s.tickets.Release(ctx, ticketID, c.agentID); err != nil {
		c.logger.Warn().Err(err).Msg("Release refused")
		return
	}
	s.hub.unbindAgent(ticketID, c)
	s.hub.toCustomers(ticketID, protocol.EncodeSystem("The agent has left. You are back with the assistant."))
	c.logger.Info().Msg("Agent released chat")
}

// ServeCustomerChat handles the customer side of a ticket's chat
func (s *Server) ServeCustomerChat(w http.ResponseWriter, r *http.Request, ticketID string) {
	t, err := s.tickets.Get(r.Context(), ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			http.Error(w, "ticket not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if t.Status == domain.TicketStatusClosed {
		http.Error(w, "ticket closed", http.StatusGone)
		return
	}

	conn, err := s.accept(w, r)
	if err != nil {
		log.Warn().Err(err).Str("ticket_id", ticketID).Msg("Customer accept failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := s.newClient(conn, "", "customer", ticketID)
	s.hub.addCustomer(ticketID, c)
	go c.writePump(ctx)
	defer func() {
		s.hub.removeCustomer(ticketID, c)
		c.close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		text := string(data)
		if _, err := s.tickets.AddMessage(ctx, ticketID, domain.SenderUser, "", text); err != nil {
			c.logger.Error().Err(err).Msg("Failed to save customer message")
		}
		s.hub.toAgent(ticketID, protocol.EncodeText(domain.SenderUser, text))
	}
}

func readInit(ctx context.Context, conn *websocket.Conn) (protocol.Control, error) {
	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return protocol.Control{}, fmt.Errorf("failed to read init: %w", err)
	}
	ctl, ok := protocol.DecodeControl(data)
	if !ok || ctl.Type != protocol.TypeInit {
		return protocol.Control{}, errors.New("first frame is not init")
	}
	return ctl, nil
}

func agentLabel(name string) string {
	if name == "" {
		return "An agent"
	}
	return name
}
