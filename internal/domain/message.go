package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a transcript entry
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
	SenderSystem Sender = "system"
	SenderBot    Sender = "bot"
)

// Message is one conversation turn on a ticket
type Message struct {
	ID        uuid.UUID `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Sender    Sender    `json:"sender"`
	AgentID   string    `json:"agent_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	ListByTicket(ctx context.Context, ticketID string, limit int) ([]Message, error)
}
