package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/agent-handoff/internal/channel"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/protocol"
)

// Connect opens the notifier channel and merges the active rooms snapshot.
// A failed snapshot fetch is reported as an alert; the notifier stays open
// and live events keep flowing. Connect on an open workspace is a no-op.
func (w *Workspace) Connect(ctx context.Context) error {
	if w.NotifierState() == channel.StateOpen {
		return nil
	}
	if err := w.dialNotifier(ctx); err != nil {
		return err
	}
	w.syncRooms(ctx)
	return nil
}

func (w *Workspace) dialNotifier(ctx context.Context) error {
	w.mu.Lock()
	if w.loggedOut {
		w.mu.Unlock()
		return ErrLoggedOut
	}
	w.notifierGen++
	gen := w.notifierGen
	w.mu.Unlock()

	n, err := channel.OpenNotifier(ctx, w.cfg.Dialer, w.cfg.BaseURL, w.self.ID, w.notifierHandlers(gen), w.channelOpts()...)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.loggedOut || gen != w.notifierGen {
		w.mu.Unlock()
		n.Close()
		return ErrLoggedOut
	}
	w.notifier = n
	w.mu.Unlock()

	w.changed()
	return nil
}

func (w *Workspace) syncRooms(ctx context.Context) {
	rooms, err := w.cfg.Backend.ActiveRooms(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to fetch active rooms")
		w.alert(fmt.Sprintf("could not load active rooms: %v", err))
		return
	}

	sessions := make([]domain.Session, 0, len(rooms))
	for _, r := range rooms {
		sessions = append(sessions, r.Session(w.self.ID))
	}
	added := w.reg.MergeSnapshot(sessions)
	w.logger.Debug().Int("rooms", len(rooms)).Int("added", added).Msg("Merged active rooms")
	w.changed()
}

func (w *Workspace) notifierHandlers(gen uint64) channel.Handlers {
	return channel.Handlers{
		OnFrame: w.handleNotifier,
		OnError: func(err error) {
			w.alert(fmt.Sprintf("notifier channel error: %v", err))
		},
		OnClose: func() { w.notifierClosed(gen) },
	}
}

func (w *Workspace) handleNotifier(f protocol.Frame) {
	if f.Kind != protocol.KindStructured {
		w.logger.Debug().Str("text", f.Text).Msg("Raw notifier payload")
		if w.onRaw != nil {
			w.onRaw(f.Text)
		}
		return
	}

	id := f.TicketID
	switch f.Type {
	case protocol.TypeNewTicket:
		w.mu.Lock()
		if w.claims[id] != claimPending {
			delete(w.claims, id)
		}
		w.mu.Unlock()
		user := domain.UserInfo{Name: f.UserName, Email: f.UserEmail, Category: f.Category}
		w.reg.UpsertWaiting(id.String(), user, w.slot.TicketID().String())

	case protocol.TypeTicketClaimed:
		mine := w.resolveClaim(id, f.ClaimedBy)
		claimedBy := f.ClaimedBy
		if claimedBy == "" && mine {
			claimedBy = w.self.ID
		}
		w.reg.MarkClaimed(id.String(), claimedBy, mine)

	case protocol.TypeClaimRejected:
		w.claimRejected(id, f.ClaimedBy)

	case protocol.TypeTicketClosed:
		w.mu.Lock()
		delete(w.claims, id)
		w.mu.Unlock()
		w.reg.SetStatus(id.String(), domain.SessionClosed)

	case protocol.TypeAgentStatus:
		w.mu.Lock()
		w.online[f.AgentID] = domain.AgentStatus(f.Status)
		w.mu.Unlock()

	default:
		return
	}
	w.changed()
}

// resolveClaim decides whether a ticket_claimed event is this agent's win.
// claimed_by decides when present. Without it the event is ours only if we
// have an outstanding claim for the ticket.
func (w *Workspace) resolveClaim(id protocol.TicketID, claimedBy string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.claims[id]
	var mine bool
	if claimedBy != "" {
		mine = claimedBy == w.self.ID
	} else {
		mine = ok && st != claimLost
	}

	switch {
	case mine && ok:
		w.claims[id] = claimWon
	case !mine && ok:
		w.claims[id] = claimLost
	}
	return mine
}

func (w *Workspace) notifierClosed(gen uint64) {
	w.mu.Lock()
	if gen != w.notifierGen || w.loggedOut {
		w.mu.Unlock()
		return
	}
	w.notifier = nil
	w.mu.Unlock()

	w.logger.Warn().Msg("Notifier channel closed")
	w.changed()

	if _, ok := w.cfg.Reconnect.Next(0); ok {
		go w.reconnect(gen)
	}
}

func (w *Workspace) reconnect(gen uint64) {
	for attempt := 0; ; attempt++ {
		delay, ok := w.cfg.Reconnect.Next(attempt)
		if !ok {
			w.logger.Warn().Int("attempts", attempt).Msg("Notifier reconnect gave up")
			w.alert("notifier channel lost, reconnect gave up")
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-w.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		w.mu.Lock()
		current := w.notifierGen
		w.mu.Unlock()
		if current != gen || w.NotifierState() == channel.StateOpen {
			// connected by hand in the meantime
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.dialNotifier(ctx)
		if err == nil {
			w.logger.Info().Int("attempt", attempt+1).Msg("Notifier reconnected")
			w.syncRooms(ctx)
			cancel()
			return
		}
		cancel()
		if errors.Is(err, ErrLoggedOut) {
			return
		}
		w.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Notifier reconnect failed")

		w.mu.Lock()
		gen = w.notifierGen
		w.mu.Unlock()
	}
}

func (w *Workspace) claimRejected(id protocol.TicketID, claimedBy string) {
	w.mu.Lock()
	if _, ok := w.claims[id]; ok {
		w.claims[id] = claimLost
	}
	w.reg.MarkClaimed(id.String(), claimedBy, false)
	w.mu.Unlock()
	w.logger.Info().Str("ticket_id", id.String()).Str("claimed_by", claimedBy).Msg("Claim rejected")
}
