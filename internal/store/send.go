package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/model"
	"go.uber.org/zap"
)

const tempIDPrefix = "tmp-"

// NewTempID returns a client-generated message id.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// SendMessage inserts an optimistic message, sends it and reconciles the
// entry in place with the server acknowledgement. On failure the entry stays
// visible with status failed and the error is returned; nothing is retried.
func (s *Store) SendMessage(ctx context.Context, out model.OutgoingMessage) (model.Message, error) {
	if strings.TrimSpace(out.Content) == "" && out.Attachment == nil {
		return model.Message{}, ErrEmptyMessage
	}
	sel, hasSel := s.Active()
	if out.ContactID == "" {
		if !hasSel {
			return model.Message{}, ErrNoActiveConversation
		}
		out.ContactID = sel.ContactID
	}
	if out.TicketID == "" && hasSel && sel.ContactID == out.ContactID && sel.Ticket != nil {
		out.TicketID = sel.Ticket.ID
	}
	if out.TicketID == "" {
		out.TicketID = s.ensureTicket(ctx, out.ContactID)
	}
	if out.ReplyToID == "" && hasSel && sel.ContactID == out.ContactID {
		out.ReplyToID = sel.ReplyTo
	}
	if out.TempID == "" {
		out.TempID = NewTempID()
	}
	if out.Type == "" {
		out.Type = model.TypeText
	}

	now := s.now()
	opt := model.Message{
		ID:        out.TempID,
		TempID:    out.TempID,
		ContactID: out.ContactID,
		TicketID:  out.TicketID,
		Direction: model.Outgoing,
		Type:      out.Type,
		Content:   out.Content,
		Status:    model.StatusSent,
		CreatedAt: now,
		UpdatedAt: now,
		ReplyToID: out.ReplyToID,
	}
	if a := out.Attachment; a != nil {
		opt.Media = &model.Media{FileName: a.FileName, MimeType: a.MimeType, Size: a.Size}
	}

	s.mu.Lock()
	s.insertLocked(opt, "local")
	if c := s.convs[out.ContactID]; c != nil {
		s.noteMessageLocked(c, s.messages[opt.ID], false)
		s.regroupLocked()
	}
	if out.Attachment != nil {
		s.uploads[out.TempID] = Upload{TempID: out.TempID, Total: out.Attachment.Size}
	}
	if s.active != nil && s.active.ContactID == out.ContactID && s.active.ReplyTo != "" {
		s.active.ReplyTo = ""
	}
	s.sending++
	s.mu.Unlock()
	s.emit(bus.KindMessages, bus.KindConversations)

	if s.local != nil {
		if err := s.local.JournalQueued(out.TempID, out.ContactID, out.TicketID, out.Content); err != nil {
			s.log.Warn("journal write failed", zap.String("temp_id", out.TempID), zap.Error(err))
		}
	}

	var progress func(sent, total int64)
	if out.Attachment != nil {
		progress = func(sent, total int64) { s.setUpload(out.TempID, sent, total) }
	}
	receipt, err := s.api.SendMessage(ctx, out, progress)
	if err != nil {
		return s.sendFailed(out, err)
	}

	s.mu.Lock()
	s.sending--
	delete(s.uploads, out.TempID)
	id := s.reconcileLocked(out.TempID, receipt)
	s.clearErrorLocked(CategorySend)
	s.regroupLocked()
	var msg model.Message
	if m := s.messages[id]; m != nil {
		msg = m.Clone()
	}
	s.mu.Unlock()

	s.metrics.Send("ok")
	if s.local != nil {
		if err := s.local.JournalSent(out.TempID, receipt.ID); err != nil {
			s.log.Warn("journal write failed", zap.String("temp_id", out.TempID), zap.Error(err))
		}
	}
	s.log.Info("message sent", zap.String("temp_id", out.TempID), zap.String("msg_id", receipt.ID), zap.String("contact_id", out.ContactID))
	s.emit(bus.KindMessages, bus.KindConversations, bus.KindUpload)
	return msg, nil
}

func (s *Store) sendFailed(out model.OutgoingMessage, err error) (model.Message, error) {
	s.mu.Lock()
	s.sending--
	delete(s.uploads, out.TempID)
	var msg model.Message
	if m := s.messages[out.TempID]; m != nil {
		s.advanceLocked(m, model.StatusFailed, nil)
		msg = m.Clone()
	}
	s.setErrorLocked(CategorySend, err)
	s.mu.Unlock()

	s.metrics.Send("failed")
	if s.local != nil {
		if jerr := s.local.JournalFailed(out.TempID, err.Error()); jerr != nil {
			s.log.Warn("journal write failed", zap.String("temp_id", out.TempID), zap.Error(jerr))
		}
	}
	s.log.Warn("send failed", zap.String("temp_id", out.TempID), zap.String("contact_id", out.ContactID), zap.Error(err))
	s.emit(bus.KindMessages, bus.KindUpload, bus.KindError)
	return msg, fmt.Errorf("send message: %w", err)
}

// reconcileLocked replaces a temporary message with its server identity and
// returns the id the message now lives under. When the server id already
// arrived through the transport the two entries are merged.
func (s *Store) reconcileLocked(tempID string, r model.SendReceipt) string {
	tmp := s.messages[tempID]
	if tmp == nil {
		return r.ID
	}
	if r.ID == "" || r.ID == tempID {
		s.advanceLocked(tmp, r.Status, nil)
		return tempID
	}

	if existing := s.messages[r.ID]; existing != nil {
		existing.TempID = tempID
		if existing.Content == "" {
			existing.Content = tmp.Content
		}
		if existing.Media == nil && tmp.Media != nil {
			media := *tmp.Media
			existing.Media = &media
		}
		if existing.ReplyToID == "" {
			existing.ReplyToID = tmp.ReplyToID
		}
		s.advanceLocked(existing, r.Status, nil)
		s.removeLocked(tempID)
		s.replaceLastMessageLocked(tempID, existing)
		return r.ID
	}

	s.renameLocked(tempID, r.ID)
	s.applyPendingLocked(tmp)
	s.advanceLocked(tmp, r.Status, nil)
	if r.MediaURL != "" {
		if tmp.Media == nil {
			tmp.Media = &model.Media{}
		}
		tmp.Media.URL = r.MediaURL
	}
	s.retimeLocked(r.ID, r.CreatedAt)
	s.replaceLastMessageLocked(tempID, tmp)
	return r.ID
}

func (s *Store) replaceLastMessageLocked(oldID string, m *model.Message) {
	c := s.convs[m.ContactID]
	if c == nil || c.LastMessage == nil {
		return
	}
	if c.LastMessage.ID == oldID || c.LastMessage.ID == m.ID {
		cp := m.Clone()
		c.LastMessage = &cp
	}
}

func (s *Store) setUpload(tempID string, sent, total int64) {
	s.mu.Lock()
	if _, ok := s.uploads[tempID]; !ok {
		s.mu.Unlock()
		return
	}
	s.uploads[tempID] = Upload{TempID: tempID, Sent: sent, Total: total}
	s.mu.Unlock()
	s.emit(bus.KindUpload)
}

// ensureTicket returns the contact's open ticket id, creating a ticket when
// auto-creation is enabled. Failures are logged and swallowed.
func (s *Store) ensureTicket(ctx context.Context, contactID string) string {
	s.mu.RLock()
	c := s.convs[contactID]
	var held string
	if c != nil && c.Ticket != nil && c.Ticket.IsOpen() {
		held = c.Ticket.ID
	}
	s.mu.RUnlock()
	if held != "" || !s.autoTicket {
		return held
	}
	t := s.resolveTicket(ctx, contactID)
	if t == nil {
		return ""
	}
	s.mu.Lock()
	if c := s.convs[contactID]; c != nil {
		cp := *t
		c.Ticket = &cp
	}
	s.mu.Unlock()
	return t.ID
}

// ErrNotResendable is returned by Resend for messages that cannot be sent again.
var ErrNotResendable = errors.New("message cannot be resent")

// Resend sends the content of a failed message as a brand-new message. The
// failed entry is left in place.
func (s *Store) Resend(ctx context.Context, id string) (model.Message, error) {
	m, ok := s.Message(id)
	if !ok {
		return model.Message{}, fmt.Errorf("resend %s: %w", id, ErrUnknownMessage)
	}
	if m.Direction != model.Outgoing || m.Status != model.StatusFailed || m.Media != nil {
		return model.Message{}, fmt.Errorf("resend %s: %w", id, ErrNotResendable)
	}
	return s.SendMessage(ctx, model.OutgoingMessage{
		ContactID: m.ContactID,
		TicketID:  m.TicketID,
		Type:      m.Type,
		Content:   m.Content,
		ReplyToID: m.ReplyToID,
	})
}
