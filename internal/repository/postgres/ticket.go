package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// TicketRepository implements domain.TicketRepository
type TicketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

const ticketColumns = `id, user_name, user_email, category, status, COALESCE(agent_id, ''), created_at, updated_at, closed_at`

// Create creates a new ticket
func (r *TicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	query := `
		INSERT INTO tickets (id, user_name, user_email, category, status, agent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		t.ID, t.UserName, t.UserEmail, t.Category, t.Status, t.AgentID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetByID retrieves a ticket by ID
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

	t, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// ListByStatus returns tickets in any of the given statuses, oldest first
func (r *TicketRepository) ListByStatus(ctx context.Context, statuses ...domain.TicketStatus) ([]domain.Ticket, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status = ANY($1) ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

// UpdateStatus moves a ticket to status and records its holder
func (r *TicketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, agentID string) error {
	query := `
		UPDATE tickets
		SET status = $2,
		    agent_id = NULLIF($3, ''),
		    updated_at = $4,
		    closed_at = CASE WHEN $2 = 'closed' THEN $4 ELSE NULL END
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, status, agentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

// Assign moves an unheld waiting or assigned ticket to agentID
func (r *TicketRepository) Assign(ctx context.Context, id, agentID string) (bool, error) {
	query := `
		UPDATE tickets
		SET status = 'assigned', agent_id = $2, updated_at = $3
		WHERE id = $1
		  AND (status = 'waiting' OR (status = 'assigned' AND COALESCE(agent_id, '') = ''))
	`
	tag, err := r.pool.Exec(ctx, query, id, agentID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to assign ticket: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(
		&t.ID, &t.UserName, &t.UserEmail, &t.Category, &t.Status, &t.AgentID,
		&t.CreatedAt, &t.UpdatedAt, &t.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
