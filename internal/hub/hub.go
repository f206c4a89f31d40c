// Package hub is the server side of the handoff protocol. It fans ticket
// events out to agent notifier sockets and binds each ticket's chat room to
// the agent that claimed it.
package hub

import (
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/agent-handoff/internal/config"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/protocol"
)

type room struct {
	agent     *client
	agentName string
	customers map[*client]struct{}
}

func (r *room) empty() bool {
	return r.agent == nil && len(r.customers) == 0
}

// Hub holds the connection tables. It implements service.Broadcaster.
type Hub struct {
	cfg config.HubConfig

	mu        sync.RWMutex
	notifiers map[string]map[*client]struct{}
	rooms     map[string]*room
}

// New creates an empty hub
func New(cfg config.HubConfig) *Hub {
	return &Hub{
		cfg:       cfg,
		notifiers: make(map[string]map[*client]struct{}),
		rooms:     make(map[string]*room),
	}
}

func (h *Hub) addNotifier(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.notifiers[c.agentID]
	if !ok {
		set = make(map[*client]struct{})
		h.notifiers[c.agentID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) removeNotifier(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.notifiers[c.agentID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.notifiers, c.agentID)
	}
}

// ConnectedAgents returns how many agents have an open notifier
func (h *Hub) ConnectedAgents() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.notifiers)
}

// Customers returns how many customer sockets ticketID has
func (h *Hub) Customers(ticketID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[ticketID]; ok {
		return len(r.customers)
	}
	return 0
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.notifiers))
	for _, set := range h.notifiers {
		for c := range set {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

// bindAgent makes c the agent socket of ticketID and returns the socket it replaced
func (h *Hub) bindAgent(ticketID string, c *client, agentName string) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.roomLocked(ticketID)
	old := r.agent
	r.agent = c
	r.agentName = agentName
	return old
}

// unbindAgent clears the room's agent if it is still c
func (h *Hub) unbindAgent(ticketID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[ticketID]
	if !ok || r.agent != c {
		return
	}
	r.agent = nil
	if r.empty() {
		delete(h.rooms, ticketID)
	}
}

func (h *Hub) addCustomer(ticketID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roomLocked(ticketID).customers[c] = struct{}{}
}

func (h *Hub) removeCustomer(ticketID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[ticketID]
	if !ok {
		return
	}
	delete(r.customers, c)
	if r.empty() {
		delete(h.rooms, ticketID)
	}
}

func (h *Hub) roomLocked(ticketID string) *room {
	r, ok := h.rooms[ticketID]
	if !ok {
		r = &room{customers: make(map[*client]struct{})}
		h.rooms[ticketID] = r
	}
	return r
}

// toAgent sends a frame to the agent bound to ticketID, if any
func (h *Hub) toAgent(ticketID string, frame []byte) bool {
	h.mu.RLock()
	var target *client
	if r, ok := h.rooms[ticketID]; ok {
		target = r.agent
	}
	h.mu.RUnlock()
	if target == nil {
		return false
	}
	return target.enqueue(frame)
}

// toCustomers sends a frame to every customer socket of ticketID
func (h *Hub) toCustomers(ticketID string, frame []byte) {
	h.mu.RLock()
	var targets []*client
	if r, ok := h.rooms[ticketID]; ok {
		for c := range r.customers {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(frame)
	}
}

// NewTicket announces a waiting ticket to every agent
func (h *Hub) NewTicket(t *domain.Ticket) {
	h.broadcast(protocol.EncodeNewTicket(t))
}

// TicketClaimed announces the winner of a claim to every agent
func (h *Hub) TicketClaimed(ticketID, agentID string) {
	h.broadcast(protocol.EncodeTicketClaimed(protocol.TicketID(ticketID), agentID))
}

// TicketClosed announces the close and shuts the ticket's chat room
func (h *Hub) TicketClosed(ticketID string) {
	h.broadcast(protocol.EncodeTicketClosed(protocol.TicketID(ticketID)))

	h.mu.Lock()
	r, ok := h.rooms[ticketID]
	delete(h.rooms, ticketID)
	h.mu.Unlock()
	if !ok {
		return
	}

	notice := protocol.EncodeSystem("This conversation has been closed.")
	for c := range r.customers {
		c.enqueue(notice)
		c.shutdown(websocket.StatusNormalClosure, "ticket closed")
	}
	if r.agent != nil {
		r.agent.shutdown(websocket.StatusNormalClosure, "ticket closed")
	}
	log.Debug().Str("ticket_id", ticketID).Msg("Chat room closed")
}

// AgentStatus announces an availability change to every agent
func (h *Hub) AgentStatus(agentID string, status domain.AgentStatus) {
	h.broadcast(protocol.EncodeAgentStatus(agentID, status))
}
