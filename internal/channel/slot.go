package channel

import (
	"sync"

	"github.com/Rrens/agent-handoff/internal/protocol"
)

// ChatSlot holds the at most one chat channel bound to an agent client.
// Every bind gets a new generation so callbacks from a replaced chat can be
// told apart from callbacks of the current one.
type ChatSlot struct {
	mu   sync.Mutex
	chat *Chat
	gen  uint64
}

// Bind closes the bound chat, if any, and binds the one returned by open,
// as a single step. open receives the generation of the new binding. On
// error the slot is left empty.
func (s *ChatSlot) Bind(open func(gen uint64) (*Chat, error)) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chat != nil {
		s.chat.Close()
		s.chat = nil
	}
	s.gen++

	c, err := open(s.gen)
	if err != nil {
		return nil, err
	}
	s.chat = c
	return c, nil
}

// Release clears the slot if gen is still the current binding. It reports
// whether anything was cleared.
func (s *ChatSlot) Release(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.chat == nil {
		return false
	}
	s.chat = nil
	return true
}

// Unbind detaches the bound chat and returns it, or nil when the slot is
// empty. The caller owns closing it.
func (s *ChatSlot) Unbind() *Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.chat
	s.chat = nil
	s.gen++
	return c
}

// Current returns the bound chat or nil
func (s *ChatSlot) Current() *Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat
}

// TicketID returns the ticket of the bound chat, or "" when none is bound
func (s *ChatSlot) TicketID() protocol.TicketID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chat == nil {
		return ""
	}
	return s.chat.ticketID
}

// Generation returns the current binding generation
func (s *ChatSlot) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}
