package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	db *sql.DB
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO ticket_messages (id, ticket_id, sender, agent_id, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID.String(), m.TicketID, string(m.Sender), m.AgentID, m.Text, toUnix(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByTicket returns the latest limit messages of a ticket in chronological order
func (r *MessageRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, ticket_id, sender, agent_id, text, created_at FROM (
			SELECT id, ticket_id, sender, agent_id, text, created_at, rowid AS seq
			FROM ticket_messages
			WHERE ticket_id = ?
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, ticketID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			id      string
			sender  string
			created int64
		)
		if err := rows.Scan(&id, &m.TicketID, &sender, &m.AgentID, &m.Text, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse message id: %w", err)
		}
		m.Sender = domain.Sender(sender)
		m.CreatedAt = fromUnix(created)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
