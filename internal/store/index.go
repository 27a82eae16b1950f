package store

import (
	"slices"
	"sort"
	"time"

	"github.com/matheus3301/inbox/internal/model"
	"go.uber.org/zap"
)

// keysOf returns every keyed collection a message belongs to.
func keysOf(m *model.Message) []model.Key {
	keys := []model.Key{model.ContactKey(m.ContactID)}
	if m.TicketID != "" {
		keys = append(keys, model.TicketKey(m.TicketID))
	}
	return keys
}

// insertLocked adds m to the canonical table and its keyed indexes. It
// reports false, leaving the store untouched, when the id is already held.
func (s *Store) insertLocked(m model.Message, source string) bool {
	if _, ok := s.messages[m.ID]; ok {
		s.metrics.Duplicate(source)
		s.log.Debug("duplicate message dropped", zap.String("msg_id", m.ID), zap.String("source", source))
		return false
	}
	msg := m.Clone()
	s.applyPendingLocked(&msg)
	s.messages[msg.ID] = &msg
	for _, k := range keysOf(&msg) {
		s.indexLocked(k, msg.ID)
	}
	return true
}

// indexLocked places id in the key's ordered index. Equal timestamps keep
// arrival order.
func (s *Store) indexLocked(k model.Key, id string) {
	ids := s.index[k]
	at := s.messages[id].CreatedAt
	i := sort.Search(len(ids), func(i int) bool {
		return s.messages[ids[i]].CreatedAt.After(at)
	})
	s.index[k] = slices.Insert(ids, i, id)
}

func (s *Store) unindexLocked(k model.Key, id string) {
	ids := s.index[k]
	if i := slices.Index(ids, id); i >= 0 {
		s.index[k] = slices.Delete(ids, i, i+1)
	}
}

// removeLocked drops a message from the table and every index.
func (s *Store) removeLocked(id string) {
	m := s.messages[id]
	if m == nil {
		return
	}
	for _, k := range keysOf(m) {
		s.unindexLocked(k, id)
	}
	delete(s.messages, id)
}

// renameLocked moves a message to a new id, keeping its index positions.
func (s *Store) renameLocked(oldID, newID string) {
	m := s.messages[oldID]
	if m == nil {
		return
	}
	for _, k := range keysOf(m) {
		if i := slices.Index(s.index[k], oldID); i >= 0 {
			s.index[k][i] = newID
		}
	}
	delete(s.messages, oldID)
	m.ID = newID
	s.messages[newID] = m
}

// retimeLocked changes a message's creation time and restores ordering.
func (s *Store) retimeLocked(id string, at time.Time) {
	m := s.messages[id]
	if m == nil || at.IsZero() || m.CreatedAt.Equal(at) {
		return
	}
	keys := keysOf(m)
	for _, k := range keys {
		s.unindexLocked(k, id)
	}
	m.CreatedAt = at
	for _, k := range keys {
		s.indexLocked(k, id)
	}
}

// setTicketLocked moves a message between ticket indexes.
func (s *Store) setTicketLocked(id, ticketID string) {
	m := s.messages[id]
	if m == nil || m.TicketID == ticketID {
		return
	}
	if m.TicketID != "" {
		s.unindexLocked(model.TicketKey(m.TicketID), id)
	}
	m.TicketID = ticketID
	if ticketID != "" {
		s.indexLocked(model.TicketKey(ticketID), id)
	}
}

// advanceLocked moves a message forward in the delivery state machine.
// Regressions and unknown transitions are ignored.
func (s *Store) advanceLocked(m *model.Message, to model.DeliveryStatus, readAt *time.Time) bool {
	changed := false
	if to != "" && to != m.Status {
		if model.CanTransition(m.Status, to) {
			m.Status = to
			changed = true
		} else {
			s.log.Debug("ignoring status regression",
				zap.String("msg_id", m.ID), zap.String("from", string(m.Status)), zap.String("to", string(to)))
		}
	}
	if readAt != nil && m.ReadAt == nil && m.Status == model.StatusRead {
		t := *readAt
		m.ReadAt = &t
		changed = true
	}
	if changed {
		m.UpdatedAt = s.now()
		s.refreshLastMessageLocked(m)
	}
	return changed
}

// refreshLastMessageLocked keeps a conversation's last-message copy in step
// with the canonical entry.
func (s *Store) refreshLastMessageLocked(m *model.Message) {
	c := s.convs[m.ContactID]
	if c == nil || c.LastMessage == nil {
		return
	}
	if c.LastMessage.ID == m.ID || (m.TempID != "" && c.LastMessage.ID == m.TempID) {
		cp := m.Clone()
		c.LastMessage = &cp
	}
}

// bufferStatusLocked holds a status for an id the store has not seen yet.
func (s *Store) bufferStatusLocked(id string, status model.DeliveryStatus, readAt *time.Time) {
	if p, ok := s.pending[id]; ok {
		if status == "" || !model.CanTransition(p.status, status) {
			status = p.status
		}
		if readAt == nil {
			readAt = p.readAt
		}
	} else {
		s.queue = append(s.queue, id)
	}
	s.pending[id] = pendingStatus{status: status, readAt: readAt}
	for len(s.queue) > pendingStatusCap {
		delete(s.pending, s.queue[0])
		s.queue = s.queue[1:]
	}
}

func (s *Store) applyPendingLocked(m *model.Message) {
	p, ok := s.pending[m.ID]
	if !ok {
		return
	}
	delete(s.pending, m.ID)
	if i := slices.Index(s.queue, m.ID); i >= 0 {
		s.queue = slices.Delete(s.queue, i, i+1)
	}
	if p.status != "" && model.CanTransition(m.Status, p.status) {
		m.Status = p.status
	}
	if p.readAt != nil && m.ReadAt == nil && m.Status == model.StatusRead {
		t := *p.readAt
		m.ReadAt = &t
	}
}

// noteMessageLocked updates the owning conversation's last message and
// activity. countUnread adds one unread for a newly inserted incoming message.
func (s *Store) noteMessageLocked(c *model.Conversation, m *model.Message, countUnread bool) {
	if c.LastMessage == nil || c.LastMessage.ID == m.ID || !m.CreatedAt.Before(c.LastMessage.CreatedAt) {
		cp := m.Clone()
		c.LastMessage = &cp
	}
	if m.CreatedAt.After(c.LastActivity) {
		c.LastActivity = m.CreatedAt
	}
	if countUnread && m.Direction == model.Incoming {
		c.UnreadCount++
	}
}
