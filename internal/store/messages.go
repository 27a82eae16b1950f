package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/rest"
	"go.uber.org/zap"
)

// MessagePatch is a partial update of a message. Nil fields are left alone.
type MessagePatch struct {
	Status   *model.DeliveryStatus
	ReadAt   *time.Time
	Content  *string
	MediaURL *string
	TicketID *string
}

// LoadMessages fetches one page of a key's messages and merges it by id.
// A page that was already loaded is not fetched again unless force is set;
// identical concurrent loads share one request.
func (s *Store) LoadMessages(ctx context.Context, key model.Key, page int, force bool) error {
	if key.IsZero() {
		return fmt.Errorf("load messages: empty key")
	}
	page = max(page, 1)
	if !force && s.PageLoaded(key, page) {
		return nil
	}
	sfKey := "page:" + key.String() + ":" + strconv.Itoa(page)
	_, err, _ := s.sf.Do(sfKey, func() (any, error) {
		if !force && s.PageLoaded(key, page) {
			return nil, nil
		}
		return nil, s.fetchPage(ctx, key, page, force)
	})
	return err
}

// AppendMessages loads an additional page and merges it without duplicating ids.
func (s *Store) AppendMessages(ctx context.Context, key model.Key, page int) error {
	return s.LoadMessages(ctx, key, page, false)
}

// LoadOlderMessages loads the page after the key's cursor. It is a no-op when
// the server reported no more pages.
func (s *Store) LoadOlderMessages(ctx context.Context, key model.Key) error {
	c := s.Cursor(key)
	if c.Page == 0 {
		return s.LoadMessages(ctx, key, 1, false)
	}
	if !c.HasMore {
		return nil
	}
	return s.AppendMessages(ctx, key, c.Page+1)
}

func (s *Store) fetchPage(ctx context.Context, key model.Key, page int, force bool) error {
	s.mu.Lock()
	s.loading[key]++
	contactID := s.contactForKeyLocked(key)
	s.mu.Unlock()
	s.emit(bus.KindMessages)

	res, err := s.api.ListMessages(ctx, rest.MessageQuery{
		Key:       key,
		Page:      page,
		Limit:     s.pageSize,
		ContactID: contactID,
	})

	s.mu.Lock()
	s.loading[key]--
	if s.loading[key] <= 0 {
		delete(s.loading, key)
	}
	if err != nil {
		s.setErrorLocked(CategoryMessages, err)
		s.mu.Unlock()
		s.log.Warn("load messages failed", zap.String("key", key.String()), zap.Int("page", page), zap.Error(err))
		s.emit(bus.KindMessages, bus.KindError)
		return fmt.Errorf("load messages %s page %d: %w", key, page, err)
	}

	convChanged := false
	for _, m := range res.Messages {
		if key.Kind == model.KindTicket && m.TicketID == "" {
			m.TicketID = key.ID
		}
		if existing := s.messages[m.ID]; existing != nil {
			if force {
				s.mergeServerLocked(existing, m)
			} else {
				s.metrics.Duplicate("rest")
			}
			continue
		}
		s.insertLocked(m, "rest")
		if c := s.convs[m.ContactID]; c != nil {
			before := c.LastActivity
			s.noteMessageLocked(c, s.messages[m.ID], false)
			convChanged = convChanged || !c.LastActivity.Equal(before)
		}
	}

	if s.pages[key] == nil {
		s.pages[key] = make(map[int]bool)
	}
	s.pages[key][page] = true
	cur := s.cursors[key]
	if page >= cur.Page {
		cur.Page = page
		cur.HasMore = res.HasMore
	}
	if res.Total > 0 {
		cur.Total = res.Total
	}
	s.cursors[key] = cur
	s.clearErrorLocked(CategoryMessages)
	if convChanged {
		s.regroupLocked()
	}
	s.mu.Unlock()

	s.log.Debug("messages loaded", zap.String("key", key.String()), zap.Int("page", page), zap.Int("count", len(res.Messages)))
	s.emit(bus.KindMessages)
	if convChanged {
		s.emit(bus.KindConversations)
	}
	return nil
}

// mergeServerLocked refreshes a held message from an authoritative copy
// without moving its status backwards.
func (s *Store) mergeServerLocked(dst *model.Message, src model.Message) {
	s.advanceLocked(dst, src.Status, src.ReadAt)
	if src.Content != "" {
		dst.Content = src.Content
	}
	if src.Media != nil && src.Media.URL != "" {
		media := *src.Media
		dst.Media = &media
	}
	if dst.ExternalID == "" {
		dst.ExternalID = src.ExternalID
	}
	if src.TicketID != "" {
		s.setTicketLocked(dst.ID, src.TicketID)
	}
	s.refreshLastMessageLocked(dst)
}

// contactForKeyLocked resolves the contact that owns a key, or "".
func (s *Store) contactForKeyLocked(key model.Key) string {
	if key.Kind != model.KindTicket {
		return key.ID
	}
	if s.active != nil && s.active.Ticket != nil && s.active.Ticket.ID == key.ID {
		return s.active.ContactID
	}
	for id, c := range s.convs {
		if c.Ticket != nil && c.Ticket.ID == key.ID {
			return id
		}
	}
	for contactID, tickets := range s.tickets {
		for _, t := range tickets {
			if t.ID == key.ID {
				return contactID
			}
		}
	}
	if ids := s.index[key]; len(ids) > 0 {
		return s.messages[ids[0]].ContactID
	}
	return ""
}

// AddMessage inserts a single message if its id is new. It reports whether
// the message was inserted; a known id changes nothing.
func (s *Store) AddMessage(m model.Message) bool {
	s.mu.Lock()
	if !s.insertLocked(m, "local") {
		s.mu.Unlock()
		return false
	}
	convChanged := false
	if c := s.convs[m.ContactID]; c != nil {
		s.noteMessageLocked(c, s.messages[m.ID], false)
		s.regroupLocked()
		convChanged = true
	}
	s.mu.Unlock()
	s.emit(bus.KindMessages)
	if convChanged {
		s.emit(bus.KindConversations)
	}
	return true
}

// UpdateMessage patches a message. Every keyed view of the id sees the change.
func (s *Store) UpdateMessage(id string, p MessagePatch) error {
	s.mu.Lock()
	m := s.messages[id]
	if m == nil {
		s.mu.Unlock()
		return fmt.Errorf("update message %s: %w", id, ErrUnknownMessage)
	}
	if p.Status != nil || p.ReadAt != nil {
		var to model.DeliveryStatus
		if p.Status != nil {
			to = *p.Status
		}
		s.advanceLocked(m, to, p.ReadAt)
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.MediaURL != nil {
		if m.Media == nil {
			m.Media = &model.Media{}
		}
		m.Media.URL = *p.MediaURL
	}
	if p.TicketID != nil {
		s.setTicketLocked(id, *p.TicketID)
	}
	m.UpdatedAt = s.now()
	s.refreshLastMessageLocked(m)
	s.mu.Unlock()
	s.emit(bus.KindMessages)
	return nil
}

// MarkMessagesAsRead asks the server to mark a key as read. Only after the
// server confirms are the incoming messages stamped and the owning
// conversation's unread count reset.
func (s *Store) MarkMessagesAsRead(ctx context.Context, key model.Key) error {
	if key.IsZero() {
		sel, ok := s.Active()
		if !ok {
			return ErrNoActiveConversation
		}
		key = sel.Key
	}
	if err := s.api.MarkRead(ctx, key); err != nil {
		s.fail(CategoryMarkRead, err)
		s.log.Warn("mark read failed", zap.String("key", key.String()), zap.Error(err))
		return fmt.Errorf("mark %s read: %w", key, err)
	}

	now := s.now()
	s.mu.Lock()
	for _, id := range s.index[key] {
		m := s.messages[id]
		if m.Direction != model.Incoming || m.ReadAt != nil {
			continue
		}
		s.advanceLocked(m, model.StatusRead, &now)
	}
	if c := s.convs[s.contactForKeyLocked(key)]; c != nil {
		c.UnreadCount = 0
	}
	s.clearErrorLocked(CategoryMarkRead)
	s.regroupLocked()
	s.mu.Unlock()
	s.emit(bus.KindMessages, bus.KindConversations)
	return nil
}

// applyStatus applies a delivery receipt, or buffers it until the id is known.
func (s *Store) applyStatus(id string, status model.DeliveryStatus, readAt *time.Time) bool {
	s.mu.Lock()
	m := s.messages[id]
	if m == nil {
		s.bufferStatusLocked(id, status, readAt)
		s.mu.Unlock()
		s.log.Debug("buffered status for unknown message", zap.String("msg_id", id), zap.String("status", string(status)))
		return false
	}
	changed := s.advanceLocked(m, status, readAt)
	s.mu.Unlock()
	if changed {
		s.emit(bus.KindMessages)
	}
	return changed
}

// HandleMessageStatusUpdate applies a delivery receipt to every view of the
// message. Receipts for ids not yet held are kept and applied on arrival.
func (s *Store) HandleMessageStatusUpdate(id string, status model.DeliveryStatus, readAt *time.Time) {
	s.applyStatus(id, status, readAt)
}
