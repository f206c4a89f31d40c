package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Rrens/agent-handoff/internal/channel"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/protocol"
)

// Claim requests ticket id on the notifier channel and binds a chat channel
// for it, closing any chat bound before. The server arbitrates; a claim that
// loses the race returns ErrClaimLost once the loss is visible.
func (w *Workspace) Claim(ctx context.Context, id protocol.TicketID) error {
	w.mu.Lock()
	n := w.notifier
	w.mu.Unlock()

	if n == nil || n.State() != channel.StateOpen {
		w.logger.Warn().Str("ticket_id", id.String()).Msg("Claim while notifier channel is not open")
		w.alert(fmt.Sprintf("cannot claim %s: not connected", id))
		return ErrNotifierNotOpen
	}

	w.mu.Lock()
	w.claims[id] = claimPending
	w.mu.Unlock()

	if err := n.SendClaim(ctx, id); err != nil {
		w.forgetClaim(id)
		if errors.Is(err, channel.ErrNotOpen) {
			return ErrNotifierNotOpen
		}
		return fmt.Errorf("failed to send claim: %w", err)
	}

	chat, err := w.slot.Bind(func(gen uint64) (*channel.Chat, error) {
		return channel.OpenChat(ctx, w.cfg.Dialer, w.cfg.BaseURL, id, w.self.ID, w.self.Name,
			w.chatHandlers(id, gen), w.channelOpts()...)
	})
	if err != nil {
		w.forgetClaim(id)
		w.logger.Warn().Err(err).Str("ticket_id", id.String()).Msg("Failed to open chat channel")
		w.changed()
		return fmt.Errorf("failed to open chat for ticket %s: %w", id, err)
	}

	// A rejection racing this point marks the claim under the same lock.
	w.mu.Lock()
	lost := w.claims[id] == claimLost || chat.State() != channel.StateOpen
	if !lost {
		w.claims[id] = claimWon
		w.reg.MarkClaimed(id.String(), w.self.ID, true)
	}
	w.mu.Unlock()

	if lost {
		if w.slot.Current() == chat {
			w.slot.Unbind()
		}
		chat.Close()
		w.changed()
		return ErrClaimLost
	}

	w.reg.MarkRead(id.String())
	w.logger.Info().Str("ticket_id", id.String()).Msg("Ticket claimed")
	w.changed()
	return nil
}

func (w *Workspace) forgetClaim(id protocol.TicketID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.claims, id)
}

func (w *Workspace) chatHandlers(id protocol.TicketID, gen uint64) channel.Handlers {
	return channel.Handlers{
		OnFrame: func(f protocol.Frame) { w.handleChat(id, f) },
		OnError: func(err error) {
			w.logger.Warn().Err(err).Str("ticket_id", id.String()).Msg("Chat channel error")
			w.alert(fmt.Sprintf("chat %s error: %v", id, err))
		},
		OnClose: func() {
			if w.slot.Release(gen) {
				w.logger.Info().Str("ticket_id", id.String()).Msg("Chat channel closed by server")
				w.changed()
			}
		},
	}
}

func (w *Workspace) handleChat(id protocol.TicketID, f protocol.Frame) {
	if f.Kind == protocol.KindStructured && f.Type == protocol.TypeClaimRejected {
		w.claimRejected(id, f.ClaimedBy)
		w.changed()
		return
	}
	if !f.Visible() {
		if f.AgentID == "" || f.AgentID == w.self.ID {
			w.mu.Lock()
			lost := w.claims[id] == claimLost
			if !lost {
				w.reg.MarkClaimed(id.String(), w.self.ID, true)
			}
			w.mu.Unlock()
			if !lost {
				w.changed()
			}
		}
		return
	}

	msg := domain.Message{
		ID:        uuid.New(),
		TicketID:  id.String(),
		Sender:    f.Sender,
		AgentID:   f.AgentID,
		Text:      f.Text,
		CreatedAt: time.Now(),
	}
	w.reg.Append(id.String(), msg, w.slot.TicketID() == id)
	w.changed()
}

// Send writes conversation text on the active chat channel
func (w *Workspace) Send(ctx context.Context, text string) error {
	chat := w.slot.Current()
	if chat == nil {
		w.logger.Warn().Msg("Send with no active chat channel")
		w.alert("no active chat")
		return ErrNoActiveChat
	}

	if err := chat.Send(ctx, text); err != nil {
		return err
	}

	id := chat.TicketID()
	w.reg.Append(id.String(), domain.Message{
		ID:        uuid.New(),
		TicketID:  id.String(),
		Sender:    domain.SenderAgent,
		AgentID:   w.self.ID,
		Text:      text,
		CreatedAt: time.Now(),
	}, true)
	w.changed()
	return nil
}

// Release hands the active ticket back to automation. The release request
// is fire-and-forget and the chat channel is closed locally either way.
// The session status is left to the server's broadcasts.
func (w *Workspace) Release(ctx context.Context) error {
	chat := w.slot.Unbind()
	if chat == nil {
		w.logger.Warn().Msg("Release with no active chat channel")
		w.alert("nothing to release")
		return ErrNoActiveChat
	}

	id := chat.TicketID()
	w.forgetClaim(id)
	err := chat.Release(ctx)
	w.changed()
	if err != nil {
		w.logger.Warn().Err(err).Str("ticket_id", id.String()).Msg("Release request not delivered")
		return err
	}
	w.logger.Info().Str("ticket_id", id.String()).Msg("Ticket released")
	return nil
}

// End closes the active ticket and its chat channel
func (w *Workspace) End(ctx context.Context) error {
	chat := w.slot.Unbind()
	if chat == nil {
		w.logger.Warn().Msg("End with no active chat channel")
		w.alert("nothing to end")
		return ErrNoActiveChat
	}
	defer chat.Close()

	id := chat.TicketID()
	w.forgetClaim(id)
	defer w.changed()

	if err := w.cfg.Backend.CloseTicket(ctx, id.String()); err != nil {
		w.logger.Warn().Err(err).Str("ticket_id", id.String()).Msg("Failed to close ticket")
		w.alert(fmt.Sprintf("could not close %s: %v", id, err))
		return fmt.Errorf("failed to close ticket: %w", err)
	}
	w.logger.Info().Str("ticket_id", id.String()).Msg("Ticket ended")
	return nil
}

// SetStatus applies status locally, then confirms it remotely. If the
// remote call fails the previous status is restored, unless another change
// landed in between.
func (w *Workspace) SetStatus(ctx context.Context, status domain.AgentStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}

	w.mu.Lock()
	prev := w.status
	w.status = status
	w.mu.Unlock()
	w.changed()

	if err := w.cfg.Backend.UpdateStatus(ctx, w.self.ID, status); err != nil {
		w.mu.Lock()
		if w.status == status {
			w.status = prev
		}
		w.mu.Unlock()

		w.logger.Warn().Err(err).
			Str("status", string(status)).
			Str("restored", string(prev)).
			Msg("Status update rejected, rolled back")
		w.alert(fmt.Sprintf("status change to %s failed: %v", status, err))
		w.changed()
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// Logout closes the chat channel, then the notifier, and clears the
// registry. Calling it again does nothing.
func (w *Workspace) Logout() {
	w.mu.Lock()
	if w.loggedOut {
		w.mu.Unlock()
		return
	}
	w.loggedOut = true
	close(w.stop)
	w.notifierGen++
	n := w.notifier
	w.notifier = nil
	w.claims = make(map[protocol.TicketID]claimState)
	w.online = make(map[string]domain.AgentStatus)
	w.mu.Unlock()

	if chat := w.slot.Unbind(); chat != nil {
		chat.Close()
	}
	if n != nil {
		n.Close()
	}
	w.reg.Clear()
	w.logger.Info().Msg("Logged out")
	w.changed()
}
