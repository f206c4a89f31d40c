package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/events"
)

// MockTicketRepository mocks the TicketRepository interface
type MockTicketRepository struct {
	mock.Mock
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// copy so the service cannot mutate the fixture
	t := *args.Get(0).(*domain.Ticket)
	return &t, args.Error(1)
}

func (m *MockTicketRepository) ListByStatus(ctx context.Context, statuses ...domain.TicketStatus) ([]domain.Ticket, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, agentID string) error {
	args := m.Called(ctx, id, status, agentID)
	return args.Error(0)
}

func (m *MockTicketRepository) Assign(ctx context.Context, id, agentID string) (bool, error) {
	args := m.Called(ctx, id, agentID)
	return args.Bool(0), args.Error(1)
}

// MockMessageRepository mocks the MessageRepository interface
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockMessageRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, ticketID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

// MockAgentRepository mocks the AgentRepository interface
type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	args := m.Called(ctx, agent)
	return args.Error(0)
}

func (m *MockAgentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agent), args.Error(1)
}

func (m *MockAgentRepository) GetByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agent), args.Error(1)
}

func (m *MockAgentRepository) UpdateStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockAgentRepository) ListByStatus(ctx context.Context, status domain.AgentStatus) ([]domain.Agent, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]domain.Agent), args.Error(1)
}

// MockBroadcaster mocks the Broadcaster interface
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) NewTicket(t *domain.Ticket) {
	m.Called(t.ID)
}

func (m *MockBroadcaster) TicketClaimed(ticketID, agentID string) {
	m.Called(ticketID, agentID)
}

func (m *MockBroadcaster) TicketClosed(ticketID string) {
	m.Called(ticketID)
}

func (m *MockBroadcaster) AgentStatus(agentID string, status domain.AgentStatus) {
	m.Called(agentID, status)
}

// recordingPublisher keeps published event types in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
