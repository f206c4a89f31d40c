package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rrens/agent-handoff/internal/domain"
)

const uniqueViolation = "23505"

// AgentRepository implements domain.AgentRepository
type AgentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

const agentColumns = `id, name, email, password_hash, status, created_at, updated_at`

// Create creates a new agent
func (r *AgentRepository) Create(ctx context.Context, a *domain.Agent) error {
	query := `
		INSERT INTO agents (id, name, email, password_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query, a.ID, a.Name, a.Email, a.PasswordHash, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// GetByID retrieves an agent by ID
func (r *AgentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetByEmail retrieves an agent by email
func (r *AgentRepository) GetByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE email = $1`
	return r.get(ctx, query, email)
}

func (r *AgentRepository) get(ctx context.Context, query string, arg string) (*domain.Agent, error) {
	var a domain.Agent
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &a, nil
}

// UpdateStatus updates an agent's availability
func (r *AgentRepository) UpdateStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	query := `UPDATE agents SET status = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

// ListByStatus lists agents with the given status ordered by name
func (r *AgentRepository) ListByStatus(ctx context.Context, status domain.AgentStatus) ([]domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE status = $1 ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
