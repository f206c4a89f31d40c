package domain

// SessionStatus is the client-side projection of a ticket's status
type SessionStatus string

const (
	SessionWaiting  SessionStatus = "waiting"
	SessionAssigned SessionStatus = "assigned"
	SessionClosed   SessionStatus = "closed"
)

// UserInfo is denormalized customer identity, informational only
type UserInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Category string `json:"category,omitempty"`
}

// Session is one agent client's view of a ticket
type Session struct {
	ID          string        `json:"id"`
	Status      SessionStatus `json:"status"`
	User        UserInfo      `json:"user"`
	ClaimedBy   string        `json:"claimed_by,omitempty"`
	ClaimedByMe bool          `json:"claimed_by_me"`
	Messages    []Message     `json:"messages"`
	UnreadCount int           `json:"unread_count"`
}

// Clone returns a copy that shares no message storage with s
func (s *Session) Clone() Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	return c
}

// ActiveRoom is one entry of the active rooms snapshot served at connect time
type ActiveRoom struct {
	TicketID  string       `json:"ticket_id"`
	Status    TicketStatus `json:"status"`
	UserName  string       `json:"user_name"`
	UserEmail string       `json:"user_email,omitempty"`
	Category  string       `json:"category,omitempty"`
	AgentID   string       `json:"agent_id,omitempty"`
}

// Session converts a snapshot entry to a session as seen by agent self
func (r ActiveRoom) Session(self string) Session {
	s := Session{
		ID:     r.TicketID,
		Status: SessionWaiting,
		User: UserInfo{
			Name:     r.UserName,
			Email:    r.UserEmail,
			Category: r.Category,
		},
	}
	switch r.Status {
	case TicketStatusAssigned:
		s.Status = SessionAssigned
		s.ClaimedBy = r.AgentID
		s.ClaimedByMe = r.AgentID != "" && r.AgentID == self
	case TicketStatusClosed, TicketStatusBot:
		s.Status = SessionClosed
	}
	return s
}
