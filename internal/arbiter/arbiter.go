// Package arbiter decides which agent owns a ticket when several claim it.
package arbiter

import (
	"context"
	"sync"
	"time"
)

// Arbiter grants a ticket to at most one agent at a time. Claim is
// idempotent for the current holder.
type Arbiter interface {
	// Claim returns the holder after the attempt and whether agentID holds it
	Claim(ctx context.Context, ticketID, agentID string) (holder string, won bool, err error)
	// Release frees the ticket if agentID holds it and reports whether it did
	Release(ctx context.Context, ticketID, agentID string) (bool, error)
	// Holder returns the current holder or ""
	Holder(ctx context.Context, ticketID string) (string, error)
	// Forget drops any hold on the ticket regardless of holder
	Forget(ctx context.Context, ticketID string) error
}

type hold struct {
	agentID string
	expires time.Time
}

// Memory is an in-process Arbiter
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	holds map[string]hold
}

// NewMemory creates an in-process arbiter. Holds expire after ttl unless
// ttl is zero.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:   ttl,
		now:   time.Now,
		holds: make(map[string]hold),
	}
}

func (m *Memory) current(ticketID string) (hold, bool) {
	h, ok := m.holds[ticketID]
	if ok && m.ttl > 0 && m.now().After(h.expires) {
		delete(m.holds, ticketID)
		return hold{}, false
	}
	return h, ok
}

// Claim implements Arbiter
func (m *Memory) Claim(_ context.Context, ticketID, agentID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.current(ticketID); ok && h.agentID != agentID {
		return h.agentID, false, nil
	}
	m.holds[ticketID] = hold{agentID: agentID, expires: m.now().Add(m.ttl)}
	return agentID, true, nil
}

// Release implements Arbiter
func (m *Memory) Release(_ context.Context, ticketID, agentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.current(ticketID)
	if !ok || h.agentID != agentID {
		return false, nil
	}
	delete(m.holds, ticketID)
	return true, nil
}

// Holder implements Arbiter
func (m *Memory) Holder(_ context.Context, ticketID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, _ := m.current(ticketID)
	return h.agentID, nil
}

// Forget implements Arbiter
func (m *Memory) Forget(_ context.Context, ticketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.holds, ticketID)
	return nil
}
