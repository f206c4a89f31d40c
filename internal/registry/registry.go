// Package registry holds one agent client's sessions keyed by ticket id.
//
// Effects from the notifier channel, the chat channel and the active rooms
// snapshot arrive in no particular relative order, so every mutation here is
// an idempotent merge by ticket id: status is last-write-wins, messages are
// append-only and the snapshot only adds sessions that are absent.
package registry

import (
	"sync"

	"github.com/Rrens/agent-handoff/internal/domain"
)

// Registry is safe for concurrent use
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	order    []string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{sessions: make(map[string]*domain.Session)}
}

// get returns the session for id, creating it with status if absent.
// Callers hold mu.
func (r *Registry) get(id string, status domain.SessionStatus) (*domain.Session, bool) {
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := &domain.Session{ID: id, Status: status}
	r.sessions[id] = s
	r.order = append(r.order, id)
	return s, true
}

// UpsertWaiting applies a new_ticket event. A known session gets its user
// info refreshed and goes back to waiting, unless it is the ticket bound to
// this client's chat channel.
func (r *Registry) UpsertWaiting(id string, user domain.UserInfo, bound string) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, created := r.get(id, domain.SessionWaiting)
	mergeUser(&s.User, user)
	if !created && id != bound {
		s.Status = domain.SessionWaiting
		s.ClaimedBy = ""
		s.ClaimedByMe = false
	}
	return created
}

// MergeSnapshot adds sessions that are not present yet and returns how many
// were added. Sessions already known, from live events or an earlier
// snapshot, are never replaced.
func (r *Registry) MergeSnapshot(sessions []domain.Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for i := range sessions {
		in := sessions[i]
		if in.ID == "" {
			continue
		}
		if _, ok := r.sessions[in.ID]; ok {
			continue
		}
		s := in.Clone()
		r.sessions[in.ID] = &s
		r.order = append(r.order, in.ID)
		added++
	}
	return added
}

// MarkClaimed records that a ticket was claimed. An unknown ticket is kept
// as an assigned placeholder so a later, stale snapshot cannot resurrect it
// as waiting.
func (r *Registry) MarkClaimed(id, claimedBy string, mine bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, _ := r.get(id, domain.SessionAssigned)
	s.Status = domain.SessionAssigned
	s.ClaimedBy = claimedBy
	s.ClaimedByMe = mine
}

// SetStatus overwrites the status of a ticket
func (r *Registry) SetStatus(id string, status domain.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, _ := r.get(id, status)
	s.Status = status
}

// Append adds a message to a ticket's transcript. Messages for a ticket
// that is not being viewed bump its unread counter.
func (r *Registry) Append(id string, msg domain.Message, viewing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, _ := r.get(id, domain.SessionAssigned)
	if msg.TicketID == "" {
		msg.TicketID = id
	}
	s.Messages = append(s.Messages, msg)
	if !viewing {
		s.UnreadCount++
	}
}

// MarkRead clears the unread counter
func (r *Registry) MarkRead(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.UnreadCount = 0
	}
}

// Get returns a copy of the session for id
func (r *Registry) Get(id string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return s.Clone(), true
}

// All returns copies of every session in first-seen order
func (r *Registry) All() []domain.Session {
	return r.filter(func(*domain.Session) bool { return true })
}

// Waiting returns the sessions still available to claim
func (r *Registry) Waiting() []domain.Session {
	return r.filter(func(s *domain.Session) bool { return s.Status == domain.SessionWaiting })
}

// Mine returns the assigned sessions this agent holds
func (r *Registry) Mine() []domain.Session {
	return r.filter(func(s *domain.Session) bool {
		return s.Status == domain.SessionAssigned && s.ClaimedByMe
	})
}

func (r *Registry) filter(keep func(*domain.Session) bool) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Session, 0, len(r.order))
	for _, id := range r.order {
		if s := r.sessions[id]; keep(s) {
			out = append(out, s.Clone())
		}
	}
	return out
}

// Len returns the number of sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Clear drops every session. Used on logout.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[string]*domain.Session)
	r.order = nil
}

func mergeUser(dst *domain.UserInfo, src domain.UserInfo) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Email != "" {
		dst.Email = src.Email
	}
	if src.Category != "" {
		dst.Category = src.Category
	}
}
