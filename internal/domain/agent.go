package domain

import (
	"context"
	"time"
)

// AgentStatus is an agent's availability. It never transitions a session.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentAway    AgentStatus = "away"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
)

// Valid reports whether s is a known status
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentOnline, AgentAway, AgentBusy, AgentOffline:
		return true
	}
	return false
}

// Agent represents a support agent account
type Agent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Status       AgentStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// AgentCreate represents agent registration data
type AgentCreate struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// AgentLogin represents login credentials
type AgentLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AgentStatusUpdate is the body of a status change
type AgentStatusUpdate struct {
	Status AgentStatus `json:"status" validate:"required,oneof=online away busy offline"`
}

// LoginResult is returned by a successful login
type LoginResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Agent       Agent  `json:"agent"`
}

// AgentRepository defines the interface for agent storage
type AgentRepository interface {
	Create(ctx context.Context, agent *Agent) error
	GetByID(ctx context.Context, id string) (*Agent, error)
	GetByEmail(ctx context.Context, email string) (*Agent, error)
	UpdateStatus(ctx context.Context, id string, status AgentStatus) error
	ListByStatus(ctx context.Context, status AgentStatus) ([]Agent, error)
}
