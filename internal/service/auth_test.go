package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/security"
)

func TestAuthService_RegisterAndLogin(t *testing.T) {
	repo := new(MockAgentRepository)
	jwtManager := security.NewJWTManager("test-secret", time.Hour)
	svc := NewAuthService(repo, jwtManager)
	ctx := context.Background()

	var stored *domain.Agent
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Agent")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.Agent) }).
		Return(nil)

	agent, err := svc.Register(ctx, domain.AgentCreate{Name: "Ana", Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOffline, agent.Status)
	assert.NotEqual(t, "password123", agent.PasswordHash)

	repo.On("GetByEmail", ctx, "ana@example.com").Return(stored, nil)
	repo.On("GetByEmail", ctx, "nobody@example.com").Return(nil, domain.ErrAgentNotFound)

	result, err := svc.Login(ctx, domain.AgentLogin{Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, agent.ID, result.Agent.ID)
	assert.Equal(t, int64(3600), result.ExpiresIn)

	claims, err := svc.ValidateToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, claims.AgentID())

	_, err = svc.Login(ctx, domain.AgentLogin{Email: "ana@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, domain.AgentLogin{Email: "nobody@example.com", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	repo := new(MockAgentRepository)
	svc := NewAuthService(repo, security.NewJWTManager("s", time.Hour))
	ctx := context.Background()
	repo.On("Create", ctx, mock.Anything).Return(domain.ErrEmailTaken)

	_, err := svc.Register(ctx, domain.AgentCreate{Name: "Ana", Email: "ana@example.com", Password: "password123"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestAgentService_UpdateStatus(t *testing.T) {
	repo := new(MockAgentRepository)
	bc := new(MockBroadcaster)
	svc := NewAgentService(repo, bc)
	ctx := context.Background()

	repo.On("UpdateStatus", ctx, "A1", domain.AgentAway).Return(nil)
	repo.On("UpdateStatus", ctx, "A404", domain.AgentAway).Return(domain.ErrAgentNotFound)
	bc.On("AgentStatus", "A1", domain.AgentAway).Return().Once()

	require.NoError(t, svc.UpdateStatus(ctx, "A1", domain.AgentAway))
	assert.ErrorIs(t, svc.UpdateStatus(ctx, "A404", domain.AgentAway), domain.ErrAgentNotFound)
	assert.ErrorIs(t, svc.UpdateStatus(ctx, "A1", domain.AgentStatus("sleeping")), domain.ErrInvalidStatus)

	bc.AssertExpectations(t)
}

func TestAgentService_Online(t *testing.T) {
	repo := new(MockAgentRepository)
	svc := NewAgentService(repo, nil)
	ctx := context.Background()
	repo.On("ListByStatus", ctx, domain.AgentOnline).Return([]domain.Agent{{ID: "A1"}}, nil)

	agents, err := svc.Online(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}
