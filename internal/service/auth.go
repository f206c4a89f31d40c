package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/security"
)

// AuthService handles agent registration and login
type AuthService struct {
	agents     domain.AgentRepository
	jwtManager *security.JWTManager
}

// NewAuthService creates a new auth service
func NewAuthService(agents domain.AgentRepository, jwtManager *security.JWTManager) *AuthService {
	return &AuthService{
		agents:     agents,
		jwtManager: jwtManager,
	}
}

// Register creates a new agent account. New agents start offline.
func (s *AuthService) Register(ctx context.Context, input domain.AgentCreate) (*domain.Agent, error) {
	hashed, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	agent := &domain.Agent{
		ID:           uuid.NewString(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hashed,
		Status:       domain.AgentOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.agents.Create(ctx, agent); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return agent, nil
}

// Login authenticates an agent and issues an access token
func (s *AuthService) Login(ctx context.Context, input domain.AgentLogin) (*domain.LoginResult, error) {
	agent, err := s.agents.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	if !security.CheckPassword(agent.PasswordHash, input.Password) {
		return nil, domain.ErrInvalidCredentials
	}

	token, expiresIn, err := s.jwtManager.GenerateAccessToken(agent.ID, agent.Name, agent.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &domain.LoginResult{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		Agent:       *agent,
	}, nil
}

// ValidateToken returns the agent id carried by a valid access token
func (s *AuthService) ValidateToken(token string) (*security.Claims, error) {
	return s.jwtManager.ValidateAccessToken(token)
}
