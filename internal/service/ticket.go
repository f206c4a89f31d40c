package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/agent-handoff/internal/arbiter"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/events"
)

// ClaimConflict reports that another agent holds the ticket
type ClaimConflict struct {
	TicketID string
	Holder   string
}

func (e *ClaimConflict) Error() string {
	return fmt.Sprintf("ticket %s already claimed by %s", e.TicketID, e.Holder)
}

func (e *ClaimConflict) Unwrap() error {
	return domain.ErrAlreadyClaimed
}

// TicketService owns ticket lifecycle: creation, claiming, release, close
// and the transcript.
type TicketService struct {
	tickets      domain.TicketRepository
	messages     domain.MessageRepository
	arbiter      arbiter.Arbiter
	publisher    events.Publisher
	broadcaster  Broadcaster
	historyLimit int
}

// NewTicketService creates a new ticket service
func NewTicketService(
	tickets domain.TicketRepository,
	messages domain.MessageRepository,
	arb arbiter.Arbiter,
	publisher events.Publisher,
	broadcaster Broadcaster,
	historyLimit int,
) *TicketService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &TicketService{
		tickets:      tickets,
		messages:     messages,
		arbiter:      arb,
		publisher:    publisher,
		broadcaster:  broadcaster,
		historyLimit: historyLimit,
	}
}

// Get returns a ticket by id
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.tickets.GetByID(ctx, ticketID)
}

// Create opens a ticket in the waiting queue and announces it
func (s *TicketService) Create(ctx context.Context, input domain.TicketCreate) (*domain.Ticket, error) {
	now := time.Now().UTC()
	t := &domain.Ticket{
		ID:        uuid.NewString(),
		UserName:  input.UserName,
		UserEmail: input.UserEmail,
		Category:  input.Category,
		Status:    domain.TicketStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tickets.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	log.Info().Str("ticket_id", t.ID).Str("category", t.Category).Msg("Ticket created")
	s.broadcaster.NewTicket(t)
	s.publish(ctx, events.TicketCreated, t.ID, "", map[string]any{"user_name": t.UserName, "category": t.Category})
	return t, nil
}

// Escalate hands a ticket from the bot back to the waiting queue
func (s *TicketService) Escalate(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case domain.TicketStatusWaiting:
		return t, nil
	case domain.TicketStatusBot:
	default:
		return nil, domain.ErrInvalidTransition
	}

	if err := s.arbiter.Forget(ctx, ticketID); err != nil {
		return nil, fmt.Errorf("failed to clear claim: %w", err)
	}
	if err := s.tickets.UpdateStatus(ctx, ticketID, domain.TicketStatusWaiting, ""); err != nil {
		return nil, fmt.Errorf("failed to escalate ticket: %w", err)
	}
	t.Status = domain.TicketStatusWaiting
	t.AgentID = ""

	log.Info().Str("ticket_id", t.ID).Msg("Ticket escalated")
	s.broadcaster.NewTicket(t)
	s.publish(ctx, events.TicketEscalated, t.ID, "", nil)
	return t, nil
}

// Claim grants the ticket to agentID if nobody else holds it. The stored
// holder wins over the arbiter, so a lost hold never reopens an assigned
// ticket. A repeated claim by the holder retakes the hold and succeeds
// without a second broadcast.
func (s *TicketService) Claim(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !t.Claimable() {
		return nil, domain.ErrInvalidTransition
	}
	if t.Status == domain.TicketStatusAssigned && t.AgentID != "" && t.AgentID != agentID {
		return nil, &ClaimConflict{TicketID: ticketID, Holder: t.AgentID}
	}

	holder, won, err := s.arbiter.Claim(ctx, ticketID, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to arbitrate claim: %w", err)
	}
	if !won {
		return nil, &ClaimConflict{TicketID: ticketID, Holder: holder}
	}

	if t.Status == domain.TicketStatusAssigned && t.AgentID == agentID {
		return t, nil
	}

	assigned, err := s.tickets.Assign(ctx, ticketID, agentID)
	if err != nil {
		s.undoClaim(ctx, ticketID, agentID)
		return nil, fmt.Errorf("failed to assign ticket: %w", err)
	}
	if !assigned {
		return s.lostAssign(ctx, ticketID, agentID)
	}
	t.Status = domain.TicketStatusAssigned
	t.AgentID = agentID

	log.Info().Str("ticket_id", ticketID).Str("agent_id", agentID).Msg("Ticket claimed")
	s.broadcaster.TicketClaimed(ticketID, agentID)
	s.publish(ctx, events.TicketClaimed, ticketID, agentID, nil)
	return t, nil
}

// lostAssign resolves a claim whose store write matched nothing. A concurrent
// claim by the same agent already did the work and broadcast it.
func (s *TicketService) lostAssign(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if err == nil && t.Status == domain.TicketStatusAssigned && t.AgentID == agentID {
		return t, nil
	}
	s.undoClaim(ctx, ticketID, agentID)
	switch {
	case err != nil:
		return nil, err
	case t.Status == domain.TicketStatusAssigned && t.AgentID != "":
		return nil, &ClaimConflict{TicketID: ticketID, Holder: t.AgentID}
	default:
		return nil, domain.ErrInvalidTransition
	}
}

func (s *TicketService) undoClaim(ctx context.Context, ticketID, agentID string) {
	if _, err := s.arbiter.Release(ctx, ticketID, agentID); err != nil {
		log.Warn().Err(err).Str("ticket_id", ticketID).Msg("Failed to undo claim")
	}
}

// Release hands a ticket held by agentID back to the bot
func (s *TicketService) Release(ctx context.Context, ticketID, agentID string) error {
	released, err := s.arbiter.Release(ctx, ticketID, agentID)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	if !released {
		return domain.ErrNotClaimHolder
	}

	if err := s.tickets.UpdateStatus(ctx, ticketID, domain.TicketStatusBot, ""); err != nil {
		return fmt.Errorf("failed to release ticket: %w", err)
	}

	log.Info().Str("ticket_id", ticketID).Str("agent_id", agentID).Msg("Ticket released")
	s.publish(ctx, events.TicketReleased, ticketID, agentID, nil)
	return nil
}

// Close ends a ticket for good. Closing a closed ticket is a no-op.
func (s *TicketService) Close(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Status == domain.TicketStatusClosed {
		return t, nil
	}

	if err := s.tickets.UpdateStatus(ctx, ticketID, domain.TicketStatusClosed, t.AgentID); err != nil {
		return nil, fmt.Errorf("failed to close ticket: %w", err)
	}
	if err := s.arbiter.Forget(ctx, ticketID); err != nil {
		log.Warn().Err(err).Str("ticket_id", ticketID).Msg("Failed to clear claim")
	}
	t.Status = domain.TicketStatusClosed

	log.Info().Str("ticket_id", ticketID).Str("agent_id", t.AgentID).Msg("Ticket closed")
	s.broadcaster.TicketClosed(ticketID)
	s.publish(ctx, events.TicketClosed, ticketID, t.AgentID, nil)
	return t, nil
}

// AddMessage appends a conversation turn to the transcript
func (s *TicketService) AddMessage(ctx context.Context, ticketID string, sender domain.Sender, agentID, text string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.New(),
		TicketID:  ticketID,
		Sender:    sender,
		AgentID:   agentID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	s.publish(ctx, events.MessageAdded, ticketID, agentID, map[string]any{"sender": string(sender)})
	return m, nil
}

// Messages returns the most recent transcript of a ticket
func (s *TicketService) Messages(ctx context.Context, ticketID string, limit int) ([]domain.Message, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	messages, err := s.messages.ListByTicket(ctx, ticketID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// ActiveRooms returns waiting and assigned tickets oldest first
func (s *TicketService) ActiveRooms(ctx context.Context) ([]domain.ActiveRoom, error) {
	tickets, err := s.tickets.ListByStatus(ctx, domain.TicketStatusWaiting, domain.TicketStatusAssigned)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rooms: %w", err)
	}
	rooms := make([]domain.ActiveRoom, 0, len(tickets))
	for i := range tickets {
		rooms = append(rooms, tickets[i].ToRoom())
	}
	return rooms, nil
}

// IsConflict reports whether err is a lost claim and returns the holder
func IsConflict(err error) (string, bool) {
	var conflict *ClaimConflict
	if errors.As(err, &conflict) {
		return conflict.Holder, true
	}
	return "", false
}

func (s *TicketService) publish(ctx context.Context, typ, ticketID, agentID string, payload map[string]any) {
	s.publisher.Publish(ctx, events.NewEvent(typ, ticketID, agentID, payload))
}
