package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// Frame types and actions on the wire
const (
	TypeNewTicket     = "new_ticket"
	TypeTicketClaimed = "ticket_claimed"
	TypeClaimRejected = "claim_rejected"
	TypeTicketClosed  = "ticket_closed"
	TypeAgentStatus   = "agent_status"
	TypeRaw           = "raw"

	TypeInit         = "init"
	TypeAgentJoined  = "agent_joined"
	TypeAgentClaimed = "agent_claimed"
	TypeText         = "text"
	TypeSystem       = "system"

	ActionClaim   = "claim"
	ActionRelease = "release"
)

// Kind tags the variant of a decoded frame
type Kind uint8

const (
	// KindStructured is a JSON object with a recognized shape
	KindStructured Kind = iota
	// KindRaw wraps a notifier payload that was not understood
	KindRaw
	// KindText is a chat payload that was not JSON at all
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindRaw:
		return "raw"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Frame is a decoded inbound frame. Decoding never fails: payloads that do
// not match a known shape come back as KindRaw or KindText with the original
// text preserved.
type Frame struct {
	Kind      Kind
	Type      string
	TicketID  TicketID
	UserName  string
	UserEmail string
	Category  string
	ClaimedBy string
	AgentID   string
	AgentName string
	Status    string
	Sender    domain.Sender
	Text      string
}

// Visible reports whether a chat frame belongs in the transcript.
// agent_joined and agent_claimed are structural acks.
func (f Frame) Visible() bool {
	if f.Kind != KindStructured {
		return true
	}
	return f.Type != TypeAgentJoined && f.Type != TypeAgentClaimed
}

// envelope is the union of every field any frame may carry
type envelope struct {
	Type      string   `json:"type"`
	Action    string   `json:"action"`
	TicketID  TicketID `json:"ticket_id"`
	UserName  string   `json:"user_name"`
	UserEmail string   `json:"user_email"`
	Category  string   `json:"category"`
	ClaimedBy string   `json:"claimed_by"`
	AgentID   string   `json:"agent_id"`
	AgentName string   `json:"agent_name"`
	Status    string   `json:"status"`
	Text      string   `json:"text"`
	Message   string   `json:"message"`
}

func decodeObject(data []byte) (envelope, bool) {
	var env envelope
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, false
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, false
	}
	return env, true
}

func (e envelope) frame() Frame {
	return Frame{
		Kind:      KindStructured,
		Type:      e.Type,
		TicketID:  e.TicketID,
		UserName:  e.UserName,
		UserEmail: e.UserEmail,
		Category:  e.Category,
		ClaimedBy: e.ClaimedBy,
		AgentID:   e.AgentID,
		AgentName: e.AgentName,
		Status:    e.Status,
		Text:      e.Text,
	}
}

func rawFrame(data []byte) Frame {
	return Frame{Kind: KindRaw, Type: TypeRaw, Text: string(data)}
}

// DecodeNotifier decodes a frame received on the notifier channel
func DecodeNotifier(data []byte) Frame {
	env, ok := decodeObject(data)
	if !ok {
		return rawFrame(data)
	}
	switch env.Type {
	case TypeNewTicket, TypeTicketClaimed, TypeClaimRejected, TypeTicketClosed:
		if env.TicketID == "" {
			return rawFrame(data)
		}
		return env.frame()
	case TypeAgentStatus:
		if env.AgentID == "" {
			return rawFrame(data)
		}
		return env.frame()
	}
	return rawFrame(data)
}

// DecodeChat decodes a frame received on the chat channel. Non-JSON payloads
// are plain customer text, and visible objects without text keep their raw
// payload as text.
func DecodeChat(data []byte) Frame {
	env, ok := decodeObject(data)
	if !ok {
		return Frame{Kind: KindText, Type: TypeText, Sender: domain.SenderUser, Text: string(data)}
	}
	f := env.frame()
	switch env.Type {
	case "", TypeText:
		f.Type = TypeText
		f.Sender = domain.SenderUser
	default:
		f.Sender = domain.SenderSystem
	}
	if f.Text == "" {
		f.Text = env.Message
	}
	if f.Text == "" && f.Visible() {
		f.Text = string(data)
	}
	return f
}

// Control is a structured request sent by a client
type Control struct {
	Type      string
	Action    string
	TicketID  TicketID
	AgentID   string
	AgentName string
}

// DecodeControl recognizes init, claim and release frames. Anything else is
// conversation content and reports false.
func DecodeControl(data []byte) (Control, bool) {
	env, ok := decodeObject(data)
	if !ok {
		return Control{}, false
	}
	c := Control{
		Type:      env.Type,
		Action:    env.Action,
		TicketID:  env.TicketID,
		AgentID:   env.AgentID,
		AgentName: env.AgentName,
	}
	switch {
	case env.Type == TypeInit && env.AgentID != "":
		return c, true
	case env.Action == ActionClaim || env.Action == ActionRelease:
		return c, true
	}
	return Control{}, false
}
