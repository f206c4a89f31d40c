package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO ticket_messages (id, ticket_id, sender, agent_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, m.ID, m.TicketID, m.Sender, m.AgentID, m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByTicket returns the latest limit messages of a ticket in chronological order
func (r *MessageRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, ticket_id, sender, agent_id, text, created_at FROM (
			SELECT id, ticket_id, sender, agent_id, text, created_at
			FROM ticket_messages
			WHERE ticket_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) latest
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, ticketID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Sender, &m.AgentID, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
