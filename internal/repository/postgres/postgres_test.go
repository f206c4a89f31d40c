package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// openTestDB connects to TEST_POSTGRES_DSN and applies migrations.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	require.NoError(t, RunMigrations(dsn))

	db, err := Open(context.Background(), dsn, 4, 0)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestTicketLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	agents := NewAgentRepository(db.Pool)
	tickets := NewTicketRepository(db.Pool)
	messages := NewMessageRepository(db.Pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	agent := &domain.Agent{
		ID:           uuid.NewString(),
		Name:         "Ana",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		Status:       domain.AgentOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, agents.Create(ctx, agent))
	assert.ErrorIs(t, agents.Create(ctx, &domain.Agent{
		ID: uuid.NewString(), Name: "Dup", Email: agent.Email, PasswordHash: "x",
		Status: domain.AgentOffline, CreatedAt: now, UpdatedAt: now,
	}), domain.ErrEmailTaken)

	ticket := &domain.Ticket{
		ID:        uuid.NewString(),
		UserName:  "Budi",
		Status:    domain.TicketStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, tickets.Create(ctx, ticket))
	assigned, err := tickets.Assign(ctx, ticket.ID, agent.ID)
	require.NoError(t, err)
	assert.True(t, assigned)
	assigned, err = tickets.Assign(ctx, ticket.ID, agent.ID)
	require.NoError(t, err)
	assert.False(t, assigned)

	got, err := tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, got.Status)
	assert.Equal(t, agent.ID, got.AgentID)
	assert.Nil(t, got.ClosedAt)

	require.NoError(t, messages.Create(ctx, &domain.Message{
		ID: uuid.New(), TicketID: ticket.ID, Sender: domain.SenderUser, Text: "hi", CreatedAt: now,
	}))
	require.NoError(t, messages.Create(ctx, &domain.Message{
		ID: uuid.New(), TicketID: ticket.ID, Sender: domain.SenderAgent, AgentID: agent.ID,
		Text: "hello", CreatedAt: now.Add(time.Second),
	}))
	history, err := messages.ListByTicket(ctx, ticket.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Text)

	require.NoError(t, tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusClosed, ""))
	got, err = tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ClosedAt)
	assert.Empty(t, got.AgentID)

	_, err = tickets.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
	assert.ErrorIs(t, tickets.UpdateStatus(ctx, "missing", domain.TicketStatusClosed, ""), domain.ErrTicketNotFound)
}
