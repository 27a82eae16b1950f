package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/model"
	"go.uber.org/zap"
)

// LoadConversations fetches the conversation list and merges it by contact id.
// A held conversation whose last activity is newer than the server's copy
// keeps its local state; conversations missing from the response are kept.
func (s *Store) LoadConversations(ctx context.Context) error {
	s.mu.Lock()
	s.loadingConvs = true
	s.mu.Unlock()
	s.emit(bus.KindConversations)

	list, err := s.api.ListConversations(ctx)

	s.mu.Lock()
	s.loadingConvs = false
	if err != nil {
		s.setErrorLocked(CategoryConversations, err)
		s.mu.Unlock()
		s.log.Warn("load conversations failed", zap.Error(err))
		s.emit(bus.KindConversations, bus.KindError)
		return fmt.Errorf("load conversations: %w", err)
	}
	for _, c := range list {
		if c.Contact.ID == "" {
			continue
		}
		if held := s.convs[c.Contact.ID]; held != nil {
			s.mergeConversationLocked(held, c)
			continue
		}
		cp := c.Clone()
		s.putConversationLocked(&cp)
	}
	s.clearErrorLocked(CategoryConversations)
	s.regroupLocked()
	total := len(s.convs)
	s.mu.Unlock()

	if s.local != nil {
		if err := s.local.SetTimeCheckpoint(checkpointConversations, s.now()); err != nil {
			s.log.Warn("failed to store checkpoint", zap.String("key", checkpointConversations), zap.Error(err))
		}
	}
	s.log.Debug("conversations loaded", zap.Int("received", len(list)), zap.Int("total", total))
	s.emit(bus.KindConversations)
	return nil
}

// putConversationLocked inserts a conversation under its contact id.
func (s *Store) putConversationLocked(c *model.Conversation) {
	s.convs[c.Contact.ID] = c
	if c.ID != "" && c.ID != c.Contact.ID {
		s.aliases[c.ID] = c.Contact.ID
	}
}

// mergeConversationLocked folds a server copy into a held conversation.
func (s *Store) mergeConversationLocked(held *model.Conversation, fresh model.Conversation) {
	if fresh.ID != "" && fresh.ID != held.Contact.ID {
		held.ID = fresh.ID
		s.aliases[fresh.ID] = held.Contact.ID
	}
	contact := fresh.Contact
	if contact.Name == "" {
		contact.Name = held.Contact.Name
	}
	if contact.Phone == "" {
		contact.Phone = held.Contact.Phone
	}
	if contact.AvatarURL == "" {
		contact.AvatarURL = held.Contact.AvatarURL
	}
	contact.Labels = slices.Clone(contact.Labels)

	if held.LastActivity.After(fresh.LastActivity) {
		held.Contact = contact
		if held.Ticket == nil && fresh.Ticket != nil {
			t := *fresh.Ticket
			held.Ticket = &t
		}
		return
	}
	next := fresh.Clone()
	next.Contact = contact
	if next.Ticket == nil && held.Ticket != nil && held.Ticket.IsOpen() {
		next.Ticket = held.Ticket
	}
	if next.LastMessage != nil {
		if m := s.messages[next.LastMessage.ID]; m != nil {
			cp := m.Clone()
			next.LastMessage = &cp
		}
	}
	*held = next
}

// SelectConversation makes a contact's conversation active. The previous
// room is left, per-selection state is cleared, the current ticket is
// resolved, the first page of messages is loaded and the room is joined.
func (s *Store) SelectConversation(ctx context.Context, contactID string) error {
	if contactID == "" {
		return ErrNoActiveConversation
	}
	s.mu.Lock()
	prev := s.active
	sel := &Selection{ContactID: contactID, Key: model.ContactKey(contactID)}
	var ticket *model.Ticket
	if c := s.convs[contactID]; c != nil && c.Ticket != nil && c.Ticket.IsOpen() {
		t := *c.Ticket
		ticket = &t
	}
	if ticket != nil {
		sel.Ticket = ticket
		if s.mode == model.KindTicket {
			sel.Key = model.TicketKey(ticket.ID)
		}
	}
	if prev != nil && prev.ContactID == contactID {
		sel.Ticket = prev.Ticket
		sel.Key = prev.Key
	}
	s.active = sel
	// sel is shared from here on; transport handlers may update it.
	leave := prev != nil && prev.Key != sel.Key
	var prevKey model.Key
	if prev != nil {
		prevKey = prev.Key
	}
	hasTicket := sel.Ticket != nil
	s.mu.Unlock()
	s.emit(bus.KindSelection)

	if leave {
		s.leaveRoom(prevKey)
	}

	if !hasTicket {
		if t := s.resolveTicket(ctx, contactID); t != nil {
			s.mu.Lock()
			if s.active != sel {
				s.mu.Unlock()
				return nil
			}
			sel.Ticket = t
			if s.mode == model.KindTicket {
				sel.Key = model.TicketKey(t.ID)
			}
			if c := s.convs[contactID]; c != nil {
				cp := *t
				c.Ticket = &cp
			}
			s.mu.Unlock()
			s.emit(bus.KindSelection)
		}
	}

	s.mu.RLock()
	stale := s.active != sel
	key := sel.Key
	s.mu.RUnlock()
	if stale {
		return nil
	}

	err := s.LoadMessages(ctx, key, 1, false)
	if s.tr != nil {
		if jerr := s.tr.JoinRoom(key.Room()); jerr != nil {
			s.fail(CategoryTransport, jerr)
			s.log.Warn("join room failed", zap.String("key", key.String()), zap.Error(jerr))
		}
	}
	return err
}

// resolveTicket finds the contact's open ticket, creating one when enabled.
// Failures are recorded and swallowed.
func (s *Store) resolveTicket(ctx context.Context, contactID string) *model.Ticket {
	t, err := s.api.CurrentTicket(ctx, contactID)
	if err != nil {
		s.log.Warn("current ticket lookup failed", zap.String("contact_id", contactID), zap.Error(err))
		s.fail(CategoryTicket, err)
		return nil
	}
	if t != nil && t.IsOpen() {
		return t
	}
	if !s.autoTicket {
		return nil
	}
	created, err := s.api.CreateTicket(ctx, contactID)
	if err != nil {
		s.log.Warn("ticket auto-creation failed", zap.String("contact_id", contactID), zap.Error(err))
		s.fail(CategoryTicket, err)
		return nil
	}
	s.log.Info("ticket created", zap.String("contact_id", contactID), zap.String("ticket_id", created.ID))
	s.mu.Lock()
	s.tickets[contactID] = append(s.tickets[contactID], created)
	s.clearErrorLocked(CategoryTicket)
	s.mu.Unlock()
	return &created
}

func (s *Store) leaveRoom(key model.Key) {
	if s.tr == nil || key.IsZero() {
		return
	}
	if err := s.tr.LeaveRoom(key.Room()); err != nil {
		s.log.Warn("leave room failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// ClearSelection deselects the active conversation and leaves its room.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.mu.Unlock()
	if prev == nil {
		return
	}
	s.leaveRoom(prev.Key)
	s.emit(bus.KindSelection)
}

func (s *Store) updateSelection(fn func(sel *Selection)) bool {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return false
	}
	fn(s.active)
	s.mu.Unlock()
	s.emit(bus.KindSelection)
	return true
}

// SetSearchText sets the in-conversation search text of the selection.
func (s *Store) SetSearchText(text string) bool {
	return s.updateSelection(func(sel *Selection) { sel.SearchText = text })
}

// SetReplyTo sets the message the composer replies to. An empty id clears it.
func (s *Store) SetReplyTo(messageID string) bool {
	return s.updateSelection(func(sel *Selection) { sel.ReplyTo = messageID })
}

// SetRecording toggles the audio recording flag of the selection.
func (s *Store) SetRecording(on bool) bool {
	return s.updateSelection(func(sel *Selection) { sel.Recording = on })
}
