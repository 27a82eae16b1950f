package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/localdb"
	"github.com/matheus3301/inbox/internal/model"
	"go.uber.org/zap"
)

// LoadTickets fetches a contact's tickets.
func (s *Store) LoadTickets(ctx context.Context, contactID string) ([]model.Ticket, error) {
	tickets, err := s.api.ListTickets(ctx, contactID)
	if err != nil {
		s.fail(CategoryTicket, err)
		return nil, fmt.Errorf("load tickets %s: %w", contactID, err)
	}
	s.mu.Lock()
	s.tickets[contactID] = slices.Clone(tickets)
	s.clearErrorLocked(CategoryTicket)
	s.mu.Unlock()
	s.emit(bus.KindConversations)
	return tickets, nil
}

// Episodes derives the ticket episodes of a contact from the loaded tickets
// and the contact's held messages.
func (s *Store) Episodes(contactID string) []model.Episode {
	s.mu.RLock()
	tickets := slices.Clone(s.tickets[contactID])
	if len(tickets) == 0 {
		if c := s.convs[contactID]; c != nil && c.Ticket != nil {
			tickets = []model.Ticket{*c.Ticket}
		}
	}
	s.mu.RUnlock()
	return classify.Episodes(tickets, s.Messages(model.ContactKey(contactID)), s.now())
}

// Search runs a server-side message search. Results are not merged into the store.
func (s *Store) Search(ctx context.Context, q string) ([]model.Message, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	res, err := s.api.SearchMessages(ctx, q, searchResultLimit)
	if err != nil {
		s.fail(CategoryExtras, err)
		return nil, fmt.Errorf("search: %w", err)
	}
	s.ClearError(CategoryExtras)
	return res, nil
}

// LoadQuickReplies fetches the canned responses.
func (s *Store) LoadQuickReplies(ctx context.Context) error {
	list, err := s.api.ListQuickReplies(ctx)
	if err != nil {
		s.fail(CategoryExtras, err)
		return fmt.Errorf("load quick replies: %w", err)
	}
	s.mu.Lock()
	s.quickReplies = slices.Clone(list)
	s.clearErrorLocked(CategoryExtras)
	s.mu.Unlock()
	return nil
}

// QuickReplies returns the loaded canned responses.
func (s *Store) QuickReplies() []model.QuickReply {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.quickReplies)
}

// SaveQuickReply creates or updates a canned response.
func (s *Store) SaveQuickReply(ctx context.Context, qr model.QuickReply) (model.QuickReply, error) {
	saved, err := s.api.SaveQuickReply(ctx, qr)
	if err != nil {
		s.fail(CategoryExtras, err)
		return model.QuickReply{}, fmt.Errorf("save quick reply: %w", err)
	}
	s.mu.Lock()
	if i := slices.IndexFunc(s.quickReplies, func(q model.QuickReply) bool { return q.ID == saved.ID }); i >= 0 {
		s.quickReplies[i] = saved
	} else {
		s.quickReplies = append(s.quickReplies, saved)
	}
	s.clearErrorLocked(CategoryExtras)
	s.mu.Unlock()
	return saved, nil
}

// DeleteQuickReply removes a canned response.
func (s *Store) DeleteQuickReply(ctx context.Context, id string) error {
	if err := s.api.DeleteQuickReply(ctx, id); err != nil {
		s.fail(CategoryExtras, err)
		return fmt.Errorf("delete quick reply %s: %w", id, err)
	}
	s.mu.Lock()
	s.quickReplies = slices.DeleteFunc(s.quickReplies, func(q model.QuickReply) bool { return q.ID == id })
	s.clearErrorLocked(CategoryExtras)
	s.mu.Unlock()
	return nil
}

// ExpandQuickReply returns the content of the quick reply whose shortcut
// matches text (with or without a leading slash).
func (s *Store) ExpandQuickReply(text string) (string, bool) {
	shortcut := strings.TrimPrefix(strings.TrimSpace(text), "/")
	if shortcut == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.quickReplies {
		if strings.EqualFold(strings.TrimPrefix(q.Shortcut, "/"), shortcut) {
			return q.Content, true
		}
	}
	return "", false
}

// LoadNotes fetches the internal notes of a contact.
func (s *Store) LoadNotes(ctx context.Context, contactID string) ([]model.Note, error) {
	notes, err := s.api.ListNotes(ctx, contactID)
	if err != nil {
		s.fail(CategoryExtras, err)
		return nil, fmt.Errorf("load notes %s: %w", contactID, err)
	}
	s.mu.Lock()
	s.notes[contactID] = slices.Clone(notes)
	s.clearErrorLocked(CategoryExtras)
	s.mu.Unlock()
	return notes, nil
}

// Notes returns the loaded notes of a contact.
func (s *Store) Notes(contactID string) []model.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notes[contactID])
}

// AddNote creates an internal note on a contact.
func (s *Store) AddNote(ctx context.Context, contactID, content string) (model.Note, error) {
	if strings.TrimSpace(content) == "" {
		return model.Note{}, ErrEmptyMessage
	}
	n, err := s.api.CreateNote(ctx, contactID, content)
	if err != nil {
		s.fail(CategoryExtras, err)
		return model.Note{}, fmt.Errorf("add note %s: %w", contactID, err)
	}
	s.mu.Lock()
	s.notes[contactID] = append(s.notes[contactID], n)
	s.clearErrorLocked(CategoryExtras)
	s.mu.Unlock()
	return n, nil
}

// DeleteNote removes an internal note.
func (s *Store) DeleteNote(ctx context.Context, contactID, noteID string) error {
	if err := s.api.DeleteNote(ctx, contactID, noteID); err != nil {
		s.fail(CategoryExtras, err)
		return fmt.Errorf("delete note %s: %w", noteID, err)
	}
	s.mu.Lock()
	s.notes[contactID] = slices.DeleteFunc(s.notes[contactID], func(n model.Note) bool { return n.ID == noteID })
	s.clearErrorLocked(CategoryExtras)
	s.mu.Unlock()
	return nil
}

// SaveDraft stores the composer text of a contact locally, then on the
// server. Only the local write can fail the call; an empty body deletes.
func (s *Store) SaveDraft(ctx context.Context, contactID, body string) error {
	if s.local != nil {
		if err := s.local.PutDraft(contactID, body); err != nil {
			return fmt.Errorf("save draft %s: %w", contactID, err)
		}
	}
	var err error
	if strings.TrimSpace(body) == "" {
		err = s.api.DeleteDraft(ctx, contactID)
	} else {
		err = s.api.PutDraft(ctx, contactID, body)
	}
	if err != nil {
		s.log.Warn("remote draft sync failed", zap.String("contact_id", contactID), zap.Error(err))
		if s.local == nil {
			return fmt.Errorf("save draft %s: %w", contactID, err)
		}
	}
	return nil
}

// Draft returns the draft of a contact, preferring the local copy.
func (s *Store) Draft(ctx context.Context, contactID string) (string, error) {
	if s.local != nil {
		d, ok, err := s.local.GetDraft(contactID)
		if err != nil {
			return "", fmt.Errorf("read draft %s: %w", contactID, err)
		}
		if ok {
			return d.Body, nil
		}
	}
	body, err := s.api.GetDraft(ctx, contactID)
	if err != nil {
		s.log.Warn("remote draft fetch failed", zap.String("contact_id", contactID), zap.Error(err))
		return "", nil
	}
	return body, nil
}

// FailedSends lists sends that ended in failure for a contact ("" for all).
// With local persistence the list survives restarts; otherwise it is built
// from the held messages.
func (s *Store) FailedSends(contactID string) ([]localdb.JournalEntry, error) {
	if s.local != nil {
		entries, err := s.local.FailedSends(contactID)
		if err != nil {
			return nil, fmt.Errorf("failed sends: %w", err)
		}
		return entries, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []localdb.JournalEntry
	for _, m := range s.messages {
		if m.Direction != model.Outgoing || m.Status != model.StatusFailed {
			continue
		}
		if contactID != "" && m.ContactID != contactID {
			continue
		}
		out = append(out, localdb.JournalEntry{
			TempID:    m.TempID,
			ContactID: m.ContactID,
			TicketID:  m.TicketID,
			Body:      m.Content,
			Status:    localdb.JournalStatusFailed,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		})
	}
	slices.SortFunc(out, func(a, b localdb.JournalEntry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}
