// Package agent is the agent workspace: one logged-in agent's notifier
// channel, its at most one chat channel, and the session registry both
// channels feed.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/agent-handoff/internal/channel"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/protocol"
	"github.com/Rrens/agent-handoff/internal/registry"
)

var (
	ErrNotifierNotOpen = errors.New("notifier channel is not open")
	ErrNoActiveChat    = errors.New("no active chat channel")
	ErrClaimLost       = errors.New("ticket was claimed by another agent")
	ErrLoggedOut       = errors.New("workspace is logged out")
)

// RoomLister fetches the active rooms snapshot
type RoomLister interface {
	ActiveRooms(ctx context.Context) ([]domain.ActiveRoom, error)
}

// StatusSyncer confirms an agent status change remotely
type StatusSyncer interface {
	UpdateStatus(ctx context.Context, agentID string, status domain.AgentStatus) error
}

// TicketCloser ends a ticket for good
type TicketCloser interface {
	CloseTicket(ctx context.Context, ticketID string) error
}

// Backend is the REST side the workspace depends on
type Backend interface {
	RoomLister
	StatusSyncer
	TicketCloser
}

// Identity is the logged-in agent
type Identity struct {
	ID   string
	Name string
}

// Config holds workspace dependencies
type Config struct {
	// BaseURL is the WebSocket base, e.g. ws://localhost:8080
	BaseURL  string
	Identity Identity
	Dialer   channel.Dialer
	// Backend is required
	Backend       Backend
	Reconnect     ReconnectPolicy
	InitialStatus domain.AgentStatus
	WriteTimeout  time.Duration
}

type claimState uint8

const (
	claimPending claimState = iota + 1
	claimWon
	claimLost
)

// Option configures a Workspace
type Option func(*Workspace)

// WithOnChange registers a callback fired after every state change
func WithOnChange(fn func()) Option {
	return func(w *Workspace) { w.onChange = fn }
}

// WithOnAlert registers a callback for operator-facing warnings
func WithOnAlert(fn func(msg string)) Option {
	return func(w *Workspace) { w.onAlert = fn }
}

// WithOnRaw registers a callback for notifier payloads that matched no
// known frame
func WithOnRaw(fn func(text string)) Option {
	return func(w *Workspace) { w.onRaw = fn }
}

// Workspace is safe for concurrent use. Channel callbacks run on the
// channels' read goroutines.
type Workspace struct {
	cfg    Config
	self   Identity
	reg    *registry.Registry
	slot   channel.ChatSlot
	logger zerolog.Logger

	onChange func()
	onAlert  func(string)
	onRaw    func(string)

	mu          sync.Mutex
	notifier    *channel.Notifier
	notifierGen uint64
	status      domain.AgentStatus
	claims      map[protocol.TicketID]claimState
	online      map[string]domain.AgentStatus
	stop        chan struct{}
	loggedOut   bool
}

// New creates a workspace. Nothing is dialed until Connect.
func New(cfg Config, opts ...Option) *Workspace {
	if cfg.Dialer == nil {
		cfg.Dialer = channel.WebSocketDialer{}
	}
	if cfg.Reconnect == nil {
		cfg.Reconnect = NoReconnect{}
	}
	if cfg.InitialStatus == "" {
		cfg.InitialStatus = domain.AgentOnline
	}

	w := &Workspace{
		cfg:    cfg,
		self:   cfg.Identity,
		reg:    registry.New(),
		logger: log.With().Str("agent_id", cfg.Identity.ID).Logger(),
		status: cfg.InitialStatus,
		claims: make(map[protocol.TicketID]claimState),
		online: make(map[string]domain.AgentStatus),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workspace) channelOpts() []channel.Option {
	return []channel.Option{channel.WithWriteTimeout(w.cfg.WriteTimeout)}
}

func (w *Workspace) changed() {
	if w.onChange != nil {
		w.onChange()
	}
}

func (w *Workspace) alert(msg string) {
	if w.onAlert != nil {
		w.onAlert(msg)
	}
}

// Self returns the agent identity
func (w *Workspace) Self() Identity {
	return w.self
}

// Sessions returns every known session
func (w *Workspace) Sessions() []domain.Session {
	return w.reg.All()
}

// Waiting returns sessions that can still be claimed
func (w *Workspace) Waiting() []domain.Session {
	return w.reg.Waiting()
}

// Mine returns sessions assigned to this agent
func (w *Workspace) Mine() []domain.Session {
	return w.reg.Mine()
}

// Session returns one session
func (w *Workspace) Session(id protocol.TicketID) (domain.Session, bool) {
	return w.reg.Get(id.String())
}

// ActiveChat returns the ticket bound to the chat channel, or ""
func (w *Workspace) ActiveChat() protocol.TicketID {
	return w.slot.TicketID()
}

// MarkRead clears a session's unread counter
func (w *Workspace) MarkRead(id protocol.TicketID) {
	w.reg.MarkRead(id.String())
	w.changed()
}

// Status returns the local agent status
func (w *Workspace) Status() domain.AgentStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// OnlineAgents returns the last status seen for each agent on the notifier
func (w *Workspace) OnlineAgents() map[string]domain.AgentStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]domain.AgentStatus, len(w.online))
	for id, st := range w.online {
		out[id] = st
	}
	return out
}

// NotifierState returns the notifier channel state, StateClosed when none
func (w *Workspace) NotifierState() channel.State {
	w.mu.Lock()
	n := w.notifier
	w.mu.Unlock()

	if n == nil {
		return channel.StateClosed
	}
	return n.State()
}
