package view

import (
	"sort"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/model"
)

// SortKey orders a projection.
type SortKey string

const (
	SortTime   SortKey = "time"
	SortUnread SortKey = "unread"
	SortName   SortKey = "name"
)

// ParseSort returns the sort key for s, defaulting to SortTime.
func ParseSort(s string) SortKey {
	switch SortKey(strings.ToLower(s)) {
	case SortUnread:
		return SortUnread
	case SortName:
		return SortName
	default:
		return SortTime
	}
}

// Filter selects and orders conversations for presentation.
type Filter struct {
	Search string
	Labels []string                 // OR semantics; empty means any
	Status model.ConversationStatus // empty means any
	Bucket classify.Bucket          // empty means any; needs Now
	Sort   SortKey

	Now        time.Time
	Thresholds classify.Thresholds
}

// UIState holds ephemeral presentation toggles.
type UIState struct {
	Search          string
	FilterPanelOpen bool
}

// Filter builds a projection filter from the toggles.
func (u UIState) Filter(sortKey SortKey) Filter {
	return Filter{Search: u.Search, Sort: sortKey}
}

// Project filters, sorts and deduplicates conversations. The input is not modified.
func Project(convs []model.Conversation, f Filter) []model.Conversation {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	labels := make(map[string]struct{}, len(f.Labels))
	for _, l := range f.Labels {
		labels[strings.ToLower(l)] = struct{}{}
	}

	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if search != "" && !matchesSearch(c, search) {
			continue
		}
		if len(labels) > 0 && !hasAnyLabel(c, labels) {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Bucket != classify.BucketNone && f.Thresholds.Classify(c, f.Now) != f.Bucket {
			continue
		}
		out = append(out, c)
	}

	sortConversations(out, f.Sort)
	return Dedup(out)
}

// Dedup drops later entries that repeat a conversation id, or the contact id
// when the conversation id is empty. Order is preserved.
func Dedup(convs []model.Conversation) []model.Conversation {
	seen := make(map[string]struct{}, len(convs))
	out := convs[:0:0]
	for _, c := range convs {
		key := "conv:" + c.ID
		if c.ID == "" {
			key = "contact:" + c.Contact.ID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func matchesSearch(c model.Conversation, q string) bool {
	if strings.Contains(strings.ToLower(c.Contact.Name), q) {
		return true
	}
	if strings.Contains(strings.ToLower(c.Contact.Phone), q) {
		return true
	}
	return c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Content), q)
}

func hasAnyLabel(c model.Conversation, want map[string]struct{}) bool {
	for _, l := range c.AllLabels() {
		if _, ok := want[strings.ToLower(l.Name)]; ok {
			return true
		}
	}
	return false
}

func sortConversations(convs []model.Conversation, key SortKey) {
	switch key {
	case SortUnread:
		sort.SliceStable(convs, func(i, j int) bool {
			return convs[i].UnreadCount > convs[j].UnreadCount
		})
	case SortName:
		sort.SliceStable(convs, func(i, j int) bool {
			return strings.ToLower(convs[i].Contact.DisplayName()) < strings.ToLower(convs[j].Contact.DisplayName())
		})
	default:
		sort.SliceStable(convs, func(i, j int) bool {
			return convs[i].LastActivity.After(convs[j].LastActivity)
		})
	}
}
