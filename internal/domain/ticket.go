package domain

import (
	"context"
	"time"
)

// TicketStatus is the server-side ownership state of a ticket
type TicketStatus string

const (
	TicketStatusBot      TicketStatus = "bot"
	TicketStatusWaiting  TicketStatus = "waiting"
	TicketStatusAssigned TicketStatus = "assigned"
	TicketStatusClosed   TicketStatus = "closed"
)

// Ticket represents a customer support request
type Ticket struct {
	ID        string       `json:"id"`
	UserName  string       `json:"user_name"`
	UserEmail string       `json:"user_email,omitempty"`
	Category  string       `json:"category,omitempty"`
	Status    TicketStatus `json:"status"`
	AgentID   string       `json:"agent_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
}

// TicketCreate represents an escalation from the bot layer
type TicketCreate struct {
	UserName  string `json:"user_name" validate:"required,max=255"`
	UserEmail string `json:"user_email" validate:"omitempty,email,max=255"`
	Category  string `json:"category" validate:"omitempty,max=64"`
}

// Claimable reports whether an agent may take the ticket
func (t *Ticket) Claimable() bool {
	return t.Status == TicketStatusWaiting || t.Status == TicketStatusAssigned
}

// ToRoom converts a ticket to its active-room snapshot entry
func (t *Ticket) ToRoom() ActiveRoom {
	return ActiveRoom{
		TicketID:  t.ID,
		Status:    t.Status,
		UserName:  t.UserName,
		UserEmail: t.UserEmail,
		Category:  t.Category,
		AgentID:   t.AgentID,
	}
}

// TicketRepository defines the interface for ticket storage
type TicketRepository interface {
	Create(ctx context.Context, ticket *Ticket) error
	GetByID(ctx context.Context, id string) (*Ticket, error)
	ListByStatus(ctx context.Context, statuses ...TicketStatus) ([]Ticket, error)
	UpdateStatus(ctx context.Context, id string, status TicketStatus, agentID string) error
	// Assign hands an unheld claimable ticket to agentID. It reports false
	// when the ticket was already held, gone, or not claimable.
	Assign(ctx context.Context, id, agentID string) (bool, error)
}
