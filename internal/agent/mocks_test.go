package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// MockBackend mocks the Backend interface
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) ActiveRooms(ctx context.Context) ([]domain.ActiveRoom, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ActiveRoom), args.Error(1)
}

func (m *MockBackend) UpdateStatus(ctx context.Context, agentID string, status domain.AgentStatus) error {
	args := m.Called(ctx, agentID, status)
	return args.Error(0)
}

func (m *MockBackend) CloseTicket(ctx context.Context, ticketID string) error {
	args := m.Called(ctx, ticketID)
	return args.Error(0)
}
