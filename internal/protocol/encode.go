package protocol

import (
	"encoding/json"

	"github.com/Rrens/agent-handoff/internal/domain"
)

type actionFrame struct {
	Action   string   `json:"action"`
	TicketID TicketID `json:"ticket_id"`
}

type initFrame struct {
	Type      string `json:"type"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

// NewTicket is the broadcast announcing a waiting ticket
type NewTicket struct {
	Type      string   `json:"type"`
	TicketID  TicketID `json:"ticket_id"`
	UserName  string   `json:"user_name,omitempty"`
	UserEmail string   `json:"user_email,omitempty"`
	Category  string   `json:"category,omitempty"`
}

type ticketEvent struct {
	Type      string   `json:"type"`
	TicketID  TicketID `json:"ticket_id"`
	ClaimedBy string   `json:"claimed_by,omitempty"`
}

type agentEvent struct {
	Type      string `json:"type"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name,omitempty"`
	Status    string `json:"status,omitempty"`
}

type textFrame struct {
	Type   string        `json:"type"`
	Sender domain.Sender `json:"sender,omitempty"`
	Text   string        `json:"text"`
}

// marshal is only used on the fixed shapes above, which cannot fail to encode
func marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("protocol: " + err.Error())
	}
	return b
}

// EncodeClaim builds the claim request sent on the notifier channel
func EncodeClaim(id TicketID) []byte {
	return marshal(actionFrame{Action: ActionClaim, TicketID: id})
}

// EncodeRelease builds the release request sent on the chat channel
func EncodeRelease(id TicketID) []byte {
	return marshal(actionFrame{Action: ActionRelease, TicketID: id})
}

// EncodeInit builds the handshake that binds an agent to a chat channel
func EncodeInit(agentID, agentName string) []byte {
	return marshal(initFrame{Type: TypeInit, AgentID: agentID, AgentName: agentName})
}

// EncodeNewTicket builds the new_ticket broadcast for t
func EncodeNewTicket(t *domain.Ticket) []byte {
	return marshal(NewTicket{
		Type:      TypeNewTicket,
		TicketID:  TicketID(t.ID),
		UserName:  t.UserName,
		UserEmail: t.UserEmail,
		Category:  t.Category,
	})
}

// EncodeTicketClaimed builds the ticket_claimed broadcast
func EncodeTicketClaimed(id TicketID, claimedBy string) []byte {
	return marshal(ticketEvent{Type: TypeTicketClaimed, TicketID: id, ClaimedBy: claimedBy})
}

// EncodeClaimRejected tells a losing claimant who holds the ticket
func EncodeClaimRejected(id TicketID, claimedBy string) []byte {
	return marshal(ticketEvent{Type: TypeClaimRejected, TicketID: id, ClaimedBy: claimedBy})
}

// EncodeTicketClosed builds the ticket_closed broadcast
func EncodeTicketClosed(id TicketID) []byte {
	return marshal(ticketEvent{Type: TypeTicketClosed, TicketID: id})
}

// EncodeAgentStatus builds the agent_status broadcast
func EncodeAgentStatus(agentID string, status domain.AgentStatus) []byte {
	return marshal(agentEvent{Type: TypeAgentStatus, AgentID: agentID, Status: string(status)})
}

// EncodeAgentJoined acknowledges init on the chat channel
func EncodeAgentJoined(agentID, agentName string) []byte {
	return marshal(agentEvent{Type: TypeAgentJoined, AgentID: agentID, AgentName: agentName})
}

// EncodeText relays a conversation turn to the other side of a chat
func EncodeText(sender domain.Sender, text string) []byte {
	return marshal(textFrame{Type: TypeText, Sender: sender, Text: text})
}

// EncodeSystem builds a system notice for the transcript
func EncodeSystem(text string) []byte {
	return marshal(textFrame{Type: TypeSystem, Sender: domain.SenderSystem, Text: text})
}
