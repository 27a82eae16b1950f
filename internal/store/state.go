package store

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/model"
)

// Selection is the active conversation and its ephemeral per-selection state.
type Selection struct {
	ContactID  string
	Key        model.Key
	Ticket     *model.Ticket
	SearchText string
	ReplyTo    string
	Recording  bool
}

func (s Selection) clone() Selection {
	if s.Ticket != nil {
		t := *s.Ticket
		s.Ticket = &t
	}
	return s
}

// Cursor is the pagination state of one keyed message collection.
type Cursor struct {
	Page    int
	HasMore bool
	Total   int
}

// Upload is the progress of an attachment being sent.
type Upload struct {
	TempID string
	Sent   int64
	Total  int64
}

// Fraction returns progress in [0,1], or 0 when the size is unknown.
func (u Upload) Fraction() float64 {
	if u.Total <= 0 {
		return 0
	}
	return min(float64(u.Sent)/float64(u.Total), 1)
}

// Loading reports in-flight requests.
type Loading struct {
	Conversations bool
	Messages      []model.Key
	Sending       int
}

// State is a deep copy of the store contents at one instant.
type State struct {
	Conversations []model.Conversation
	Groups        classify.Groups
	Counts        map[classify.Bucket]int
	Active        *Selection
	Loading       Loading
	Errors        map[ErrorCategory]string
	LastError     string
	Typing        map[model.Key][]string
	Uploads       map[string]Upload
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Conversations: s.sortedConversationsLocked(),
		Groups:        cloneGroups(s.groups),
		Counts:        s.groups.Counts(),
		Loading:       Loading{Conversations: s.loadingConvs, Sending: s.sending},
		Errors:        maps.Clone(s.errs),
		LastError:     s.lastErr,
		Typing:        make(map[model.Key][]string, len(s.typing)),
		Uploads:       maps.Clone(s.uploads),
	}
	if s.active != nil {
		sel := s.active.clone()
		st.Active = &sel
	}
	for k, n := range s.loading {
		if n > 0 {
			st.Loading.Messages = append(st.Loading.Messages, k)
		}
	}
	sort.Slice(st.Loading.Messages, func(i, j int) bool {
		return st.Loading.Messages[i].String() < st.Loading.Messages[j].String()
	})
	for k, users := range s.typing {
		st.Typing[k] = slices.Clone(users)
	}
	return st
}

// Conversations returns every conversation, most recent activity first.
func (s *Store) Conversations() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedConversationsLocked()
}

func (s *Store) sortedConversationsLocked() []model.Conversation {
	out := make([]model.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].Contact.ID < out[j].Contact.ID
	})
	return out
}

// Conversation returns the conversation of a contact.
func (s *Store) Conversation(contactID string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.convs[contactID]
	if c == nil {
		return model.Conversation{}, false
	}
	return c.Clone(), true
}

// Messages returns the messages of a key in ascending creation order.
func (s *Store) Messages(key model.Key) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.index[key]
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if m := s.messages[id]; m != nil {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Message returns one message by id.
func (s *Store) Message(id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.messages[id]
	if m == nil {
		return model.Message{}, false
	}
	return m.Clone(), true
}

// Cursor returns the pagination state of a key.
func (s *Store) Cursor(key model.Key) Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[key]
}

// PageLoaded reports whether a page of a key has been loaded.
func (s *Store) PageLoaded(key model.Key, page int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages[key][page]
}

// Active returns a copy of the current selection.
func (s *Store) Active() (Selection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return Selection{}, false
	}
	return s.active.clone(), true
}

// Typing returns who is typing on a key, in arrival order.
func (s *Store) Typing(key model.Key) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.typing[key])
}

// Groups returns the current routing buckets.
func (s *Store) Groups() classify.Groups {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGroups(s.groups)
}

// GroupConversations re-derives the routing buckets from the current
// conversations and returns them.
func (s *Store) GroupConversations() classify.Groups {
	s.mu.Lock()
	s.regroupLocked()
	g := cloneGroups(s.groups)
	s.mu.Unlock()
	return g
}

func (s *Store) regroupLocked() {
	list := make([]model.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		list = append(list, *c)
	}
	s.groups = classify.Group(list, s.now(), s.th)
	counts := make(map[string]int, len(s.groups))
	for b, n := range s.groups.Counts() {
		counts[string(b)] = n
	}
	s.metrics.SetBucketCounts(counts)
}

func cloneGroups(g classify.Groups) classify.Groups {
	out := make(classify.Groups, len(g))
	for b, convs := range g {
		cp := make([]model.Conversation, len(convs))
		for i, c := range convs {
			cp[i] = c.Clone()
		}
		out[b] = cp
	}
	return out
}

// Now returns the store clock.
func (s *Store) Now() time.Time { return s.now() }

// Thresholds returns the bucket thresholds the store classifies with.
func (s *Store) Thresholds() classify.Thresholds { return s.th }
