package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// AgentRepository implements domain.AgentRepository
type AgentRepository struct {
	db *sql.DB
}

const agentColumns = `id, name, email, password_hash, status, created_at, updated_at`

// Create creates a new agent
func (r *AgentRepository) Create(ctx context.Context, a *domain.Agent) error {
	query := `
		INSERT INTO agents (id, name, email, password_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Email, a.PasswordHash, string(a.Status), toUnix(a.CreatedAt), toUnix(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// GetByID retrieves an agent by ID
func (r *AgentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	return r.get(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
}

// GetByEmail retrieves an agent by email
func (r *AgentRepository) GetByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	return r.get(ctx, `SELECT `+agentColumns+` FROM agents WHERE email = ?`, email)
}

func (r *AgentRepository) get(ctx context.Context, query, arg string) (*domain.Agent, error) {
	a, err := scanAgent(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return a, nil
}

// UpdateStatus updates an agent's availability
func (r *AgentRepository) UpdateStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	query := `UPDATE agents SET status = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, string(status), toUnix(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if n == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

// ListByStatus lists agents with the given status ordered by name
func (r *AgentRepository) ListByStatus(ctx context.Context, status domain.AgentStatus) ([]domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE status = ? ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func scanAgent(row scanner) (*domain.Agent, error) {
	var (
		a                domain.Agent
		status           string
		created, updated int64
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &status, &created, &updated); err != nil {
		return nil, err
	}
	a.Status = domain.AgentStatus(status)
	a.CreatedAt = fromUnix(created)
	a.UpdatedAt = fromUnix(updated)
	return &a, nil
}
