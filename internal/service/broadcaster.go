package service

import "github.com/Rrens/agent-handoff/internal/domain"

// Broadcaster pushes ticket and agent changes to connected agents
type Broadcaster interface {
	NewTicket(t *domain.Ticket)
	TicketClaimed(ticketID, agentID string)
	TicketClosed(ticketID string)
	AgentStatus(agentID string, status domain.AgentStatus)
}

// NopBroadcaster discards every notification
type NopBroadcaster struct{}

func (NopBroadcaster) NewTicket(*domain.Ticket)               {}
func (NopBroadcaster) TicketClaimed(string, string)           {}
func (NopBroadcaster) TicketClosed(string)                    {}
func (NopBroadcaster) AgentStatus(string, domain.AgentStatus) {}
