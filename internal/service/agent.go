package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// AgentService manages agent availability
type AgentService struct {
	agents      domain.AgentRepository
	broadcaster Broadcaster
}

// NewAgentService creates a new agent service
func NewAgentService(agents domain.AgentRepository, broadcaster Broadcaster) *AgentService {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	return &AgentService{agents: agents, broadcaster: broadcaster}
}

// Get returns an agent by id
func (s *AgentService) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	return s.agents.GetByID(ctx, agentID)
}

// UpdateStatus stores an agent's availability and tells the other agents
func (s *AgentService) UpdateStatus(ctx context.Context, agentID string, status domain.AgentStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}
	if err := s.agents.UpdateStatus(ctx, agentID, status); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	log.Info().Str("agent_id", agentID).Str("status", string(status)).Msg("Agent status changed")
	s.broadcaster.AgentStatus(agentID, status)
	return nil
}

// Online lists agents currently online
func (s *AgentService) Online(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.agents.ListByStatus(ctx, domain.AgentOnline)
	if err != nil {
		return nil, fmt.Errorf("failed to list online agents: %w", err)
	}
	return agents, nil
}
