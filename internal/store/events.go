package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/wire"
	"go.uber.org/zap"
)

func (s *Store) parseMessage(data json.RawMessage, dir model.Direction) (model.Message, error) {
	var raw wire.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Message{}, fmt.Errorf("decode message: %w", err)
	}
	m, err := wire.ParseMessage(raw, wire.Defaults{Direction: dir, Now: s.now()})
	if err != nil {
		return model.Message{}, err
	}
	for _, a := range wire.Anomalies(m) {
		s.log.Warn("message anomaly", zap.String("msg_id", m.ID), zap.String("contact_id", m.ContactID), zap.String("anomaly", a))
	}
	return m, nil
}

func parseTyping(data json.RawMessage) (wire.Typing, error) {
	return wire.ParseTyping(data)
}

func parsePatch(data json.RawMessage) (wire.ConversationPatch, error) {
	return wire.ParseConversationPatch(data)
}

func (s *Store) applyStatusPayload(event string, data json.RawMessage) {
	u, err := wire.ParseStatusUpdate(data)
	if err != nil {
		s.log.Warn("dropping malformed status update", zap.String("event", event), zap.Error(err))
		return
	}
	s.applyStatus(u.MessageID, u.Status, u.ReadAt)
}

// HandleIncomingMessage ingests a pushed message. When its conversation is
// not yet known the detail is fetched and inserted before returning; if that
// fetch fails a minimal conversation is built from the message.
func (s *Store) HandleIncomingMessage(ctx context.Context, data json.RawMessage) error {
	m, err := s.parseMessage(data, model.Incoming)
	if err != nil {
		s.log.Warn("dropping malformed message", zap.Error(err))
		return err
	}
	if s.ingest(m) {
		s.attachConversation(ctx, m)
	}
	return nil
}

// ingest inserts a pushed message and updates its conversation. It reports
// true when the message was new and its conversation is not yet known.
func (s *Store) ingest(m model.Message) bool {
	s.mu.Lock()
	if !s.insertLocked(m, "transport") {
		s.mu.Unlock()
		return false
	}
	stored := s.messages[m.ID]
	c := s.convs[m.ContactID]
	if c != nil {
		s.noteMessageLocked(c, stored, true)
		s.regroupLocked()
	}
	s.mu.Unlock()

	s.log.Debug("message ingested", zap.String("msg_id", m.ID), zap.String("contact_id", m.ContactID))
	s.emit(bus.KindMessages)
	if c != nil {
		s.emit(bus.KindConversations)
		return false
	}
	return true
}

// attachConversation makes sure the contact of m has a conversation.
func (s *Store) attachConversation(ctx context.Context, m model.Message) {
	detail, err := s.conversationDetail(ctx, m.ContactID)

	s.mu.Lock()
	stored := s.messages[m.ID]
	if stored == nil {
		stored = &m
	}
	if c := s.convs[m.ContactID]; c != nil {
		// Created while the fetch was in flight.
		counted := c.LastMessage != nil && c.LastMessage.ID == stored.ID
		s.noteMessageLocked(c, stored, !counted)
	} else {
		var c model.Conversation
		if err != nil {
			s.setErrorLocked(CategoryConversations, err)
			c = minimalConversation(stored)
		} else {
			c = detail
			c.Contact.ID = m.ContactID
			if c.LastActivity.Before(stored.CreatedAt) && (c.LastMessage == nil || c.LastMessage.ID != stored.ID) {
				s.noteMessageLocked(&c, stored, true)
			}
		}
		s.putConversationLocked(&c)
	}
	s.regroupLocked()
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("conversation detail fetch failed", zap.String("contact_id", m.ContactID), zap.Error(err))
		s.emit(bus.KindError)
	}
	s.emit(bus.KindConversations)
}

// fetchConversation inserts or refreshes a conversation from its detail.
func (s *Store) fetchConversation(ctx context.Context, contactID string) {
	detail, err := s.conversationDetail(ctx, contactID)
	if err != nil {
		s.log.Warn("conversation detail fetch failed", zap.String("contact_id", contactID), zap.Error(err))
		s.fail(CategoryConversations, err)
		return
	}
	s.mu.Lock()
	detail.Contact.ID = contactID
	if c := s.convs[contactID]; c != nil {
		s.mergeConversationLocked(c, detail)
	} else {
		s.putConversationLocked(&detail)
	}
	s.regroupLocked()
	s.mu.Unlock()
	s.emit(bus.KindConversations)
}

// conversationDetail coalesces concurrent detail fetches of one contact.
func (s *Store) conversationDetail(ctx context.Context, contactID string) (model.Conversation, error) {
	v, err, _ := s.sf.Do("conv:"+contactID, func() (any, error) {
		return s.api.GetConversation(ctx, contactID)
	})
	if err != nil {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", contactID, err)
	}
	return v.(model.Conversation).Clone(), nil
}

func minimalConversation(m *model.Message) model.Conversation {
	c := model.Conversation{
		Contact: model.Contact{ID: m.ContactID},
		Status:  model.StatusActive,
	}
	if m.TicketID != "" {
		c.Ticket = &model.Ticket{ID: m.TicketID, ContactID: m.ContactID, Status: model.StatusActive, OpenedAt: m.CreatedAt}
	}
	c.LastActivity = m.CreatedAt
	cp := m.Clone()
	c.LastMessage = &cp
	if m.Direction == model.Incoming {
		c.UnreadCount = 1
	}
	return c
}

// HandleConversationUpdated applies a pushed conversation change. Unknown
// conversations are fetched and inserted.
func (s *Store) HandleConversationUpdated(ctx context.Context, data json.RawMessage) error {
	p, err := parsePatch(data)
	if err != nil {
		s.log.Warn("dropping malformed conversation update", zap.Error(err))
		return err
	}
	if !s.applyPatch(p) {
		s.fetchConversation(ctx, p.ContactID)
	}
	return nil
}

// applyPatch reports false when no conversation matches the patch.
func (s *Store) applyPatch(p wire.ConversationPatch) bool {
	s.mu.Lock()
	c := s.lookupLocked(p.ContactID)
	if c == nil {
		s.mu.Unlock()
		return false
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.AssignedAgent != nil {
		c.AssignedAgent = *p.AssignedAgent
	}
	if p.Labels != nil {
		c.Labels = slices.Clone(*p.Labels)
	}
	if p.Ticket != nil {
		t := *p.Ticket
		c.Ticket = &t
		if s.active != nil && s.active.ContactID == c.Contact.ID {
			at := t
			s.active.Ticket = &at
		}
	}
	if p.LastActivity != nil && p.LastActivity.After(c.LastActivity) {
		c.LastActivity = *p.LastActivity
	}
	if p.UnreadCount != nil && *p.UnreadCount != c.UnreadCount {
		s.log.Debug("ignoring pushed unread count",
			zap.String("contact_id", c.Contact.ID), zap.Int("pushed", *p.UnreadCount), zap.Int("local", c.UnreadCount))
	}
	s.regroupLocked()
	s.mu.Unlock()
	s.emit(bus.KindConversations)
	return true
}

// lookupLocked finds a conversation by contact id or conversation id.
func (s *Store) lookupLocked(id string) *model.Conversation {
	if c := s.convs[id]; c != nil {
		return c
	}
	if contactID, ok := s.aliases[id]; ok {
		return s.convs[contactID]
	}
	return nil
}

// HandleTypingStart adds user to the key's typing set.
func (s *Store) HandleTypingStart(key model.Key, user string) {
	s.mu.Lock()
	users := slices.DeleteFunc(slices.Clone(s.typing[key]), func(u string) bool { return u == user })
	s.typing[key] = append(users, user)
	s.mu.Unlock()
	s.emit(bus.KindTyping)
}

// HandleTypingStop removes user from the key's typing set.
func (s *Store) HandleTypingStop(key model.Key, user string) {
	s.mu.Lock()
	users := slices.DeleteFunc(slices.Clone(s.typing[key]), func(u string) bool { return u == user })
	if len(users) == 0 {
		delete(s.typing, key)
	} else {
		s.typing[key] = users
	}
	s.mu.Unlock()
	s.emit(bus.KindTyping)
}
