package store

import (
	"errors"
	"fmt"

	"github.com/matheus3301/inbox/internal/bus"
	"go.uber.org/zap"
)

var (
	// ErrNoActiveConversation is returned when an action needs a selected conversation.
	ErrNoActiveConversation = errors.New("no active conversation")
	// ErrEmptyMessage is returned when sending neither text nor an attachment.
	ErrEmptyMessage = errors.New("message has no content")
	// ErrUnknownMessage is returned when updating a message id the store does not hold.
	ErrUnknownMessage = errors.New("unknown message")
)

// ErrorCategory scopes an error in the store's error state. A successful
// operation clears the error of its own category.
type ErrorCategory string

const (
	CategoryConversations ErrorCategory = "conversations"
	CategoryMessages      ErrorCategory = "messages"
	CategorySend          ErrorCategory = "send"
	CategoryMarkRead      ErrorCategory = "mark_read"
	CategoryTicket        ErrorCategory = "ticket"
	CategoryTransport     ErrorCategory = "transport"
	CategoryExtras        ErrorCategory = "extras"
)

// fail records err under cat and notifies subscribers.
func (s *Store) fail(cat ErrorCategory, err error) {
	s.mu.Lock()
	s.setErrorLocked(cat, err)
	s.mu.Unlock()
	s.emit(bus.KindError)
}

func (s *Store) setErrorLocked(cat ErrorCategory, err error) {
	if err == nil {
		return
	}
	s.errs[cat] = err.Error()
	s.lastErr = fmt.Sprintf("%s: %v", cat, err)
	s.lastErrCat = cat
	s.log.Debug("store error", zap.String("category", string(cat)), zap.Error(err))
}

// clearErrorLocked reports whether anything was cleared.
func (s *Store) clearErrorLocked(cat ErrorCategory) bool {
	if _, ok := s.errs[cat]; !ok {
		return false
	}
	delete(s.errs, cat)
	if s.lastErrCat == cat {
		s.lastErr = ""
		s.lastErrCat = ""
	}
	return true
}

// ClearError clears one error category.
func (s *Store) ClearError(cat ErrorCategory) {
	s.mu.Lock()
	changed := s.clearErrorLocked(cat)
	s.mu.Unlock()
	if changed {
		s.emit(bus.KindError)
	}
}

// ClearErrors clears every error category and the last error.
func (s *Store) ClearErrors() {
	s.mu.Lock()
	clear(s.errs)
	s.lastErr = ""
	s.lastErrCat = ""
	s.mu.Unlock()
	s.emit(bus.KindError)
}

// Err returns the current error of a category, or "".
func (s *Store) Err(cat ErrorCategory) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errs[cat]
}
