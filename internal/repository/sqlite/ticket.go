package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// TicketRepository implements domain.TicketRepository
type TicketRepository struct {
	db *sql.DB
}

const ticketColumns = `id, user_name, user_email, category, status, agent_id, created_at, updated_at, closed_at`

// Create creates a new ticket
func (r *TicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	query := `
		INSERT INTO tickets (id, user_name, user_email, category, status, agent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserName, t.UserEmail, t.Category, string(t.Status), t.AgentID,
		toUnix(t.CreatedAt), toUnix(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetByID retrieves a ticket by ID
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`

	t, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// ListByStatus returns tickets in any of the given statuses, oldest first
func (r *TicketRepository) ListByStatus(ctx context.Context, statuses ...domain.TicketStatus) ([]domain.Ticket, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status IN (` + placeholders + `) ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	now := toUnix(time.Now())
	var closedAt sql.NullInt64
	if status == domain.TicketStatusClosed {
		closedAt = sql.NullInt64{Int64: now, Valid: true}
	}

	query := `UPDATE tickets SET status = ?, agent_id = ?, updated_at = ?, closed_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, string(status), agentID, now, closedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	if n == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

// Assign moves an unheld waiting or assigned ticket to agentID
func (r *TicketRepository) Assign(ctx context.Context, id, agentID string) (bool, error) {
	query := `
		UPDATE tickets SET status = ?, agent_id = ?, updated_at = ?
		WHERE id = ?
		  AND (status = 'waiting' OR (status = 'assigned' AND COALESCE(agent_id, '') = ''))
	`
	res, err := r.db.ExecContext(ctx, query, string(domain.TicketStatusAssigned), agentID, toUnix(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to assign ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to assign ticket: %w", err)
	}
	return n == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*domain.Ticket, error) {
	var (
		t                domain.Ticket
		status           string
		created, updated int64
		closed           sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.UserName, &t.UserEmail, &t.Category, &status, &t.AgentID, &created, &updated, &closed)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	t.CreatedAt = fromUnix(created)
	t.UpdatedAt = fromUnix(updated)
	if closed.Valid {
		at := fromUnix(closed.Int64)
		t.ClosedAt = &at
	}
	return &t, nil
}
