package classify

import (
	"sort"
	"time"

	"github.com/matheus3301/inbox/internal/model"
)

// Bucket is a routing bucket. The zero value is BucketNone.
type Bucket string

const (
	BucketNone      Bucket = ""
	BucketUrgent    Bucket = "needs_reply/urgent"
	BucketNormal    Bucket = "needs_reply/normal"
	BucketOverdue   Bucket = "needs_reply/overdue"
	BucketAutomated Bucket = "automated"
	BucketResolved  Bucket = "completed/resolved"
	BucketClosed    Bucket = "completed/closed"
	BucketArchived  Bucket = "completed/archived"
)

// Top-level bucket groups.
const (
	GroupNeedsReply = "needs_reply"
	GroupAutomated  = "automated"
	GroupCompleted  = "completed"
)

// Order lists every bucket in presentation order.
var Order = []Bucket{
	BucketOverdue,
	BucketUrgent,
	BucketNormal,
	BucketAutomated,
	BucketResolved,
	BucketClosed,
	BucketArchived,
}

// Group returns the top-level group of the bucket, or "" for BucketNone.
func (b Bucket) Group() string {
	switch b {
	case BucketUrgent, BucketNormal, BucketOverdue:
		return GroupNeedsReply
	case BucketAutomated:
		return GroupAutomated
	case BucketResolved, BucketClosed, BucketArchived:
		return GroupCompleted
	default:
		return ""
	}
}

func (b Bucket) String() string {
	if b == BucketNone {
		return "none"
	}
	return string(b)
}

// Thresholds control the needs-reply sub-buckets. A conversation waiting
// longer than UrgentAfter is urgent, longer than OverdueAfter is overdue.
type Thresholds struct {
	UrgentAfter  time.Duration
	OverdueAfter time.Duration
}

// DefaultThresholds are 30 minutes to urgent and 2 hours to overdue.
var DefaultThresholds = Thresholds{
	UrgentAfter:  30 * time.Minute,
	OverdueAfter: 120 * time.Minute,
}

func (th Thresholds) orDefault() Thresholds {
	if th.UrgentAfter <= 0 {
		th.UrgentAfter = DefaultThresholds.UrgentAfter
	}
	if th.OverdueAfter <= 0 {
		th.OverdueAfter = DefaultThresholds.OverdueAfter
	}
	return th
}

// Classify buckets a conversation using the default thresholds.
func Classify(c model.Conversation, now time.Time) Bucket {
	return DefaultThresholds.Classify(c, now)
}

// Classify buckets a conversation.
func (th Thresholds) Classify(c model.Conversation, now time.Time) Bucket {
	return th.bucket(c.Status, c.UnreadCount, c.LastActivity, now)
}

// ClassifyEpisode buckets a ticket episode with the same rules as a conversation.
func (th Thresholds) ClassifyEpisode(e model.Episode, now time.Time) Bucket {
	return th.bucket(e.Status, e.UnreadCount, e.EndedAt, now)
}

func (th Thresholds) bucket(status model.ConversationStatus, unread int, lastActivity, now time.Time) Bucket {
	switch status {
	case model.StatusResolved:
		return BucketResolved
	case model.StatusClosed:
		return BucketClosed
	case model.StatusArchived:
		return BucketArchived
	case model.StatusPending:
		return BucketAutomated
	case model.StatusActive:
	default:
		return BucketNone
	}
	if unread <= 0 {
		return BucketNone
	}
	th = th.orDefault()
	waiting := now.Sub(lastActivity)
	switch {
	case waiting > th.OverdueAfter:
		return BucketOverdue
	case waiting > th.UrgentAfter:
		return BucketUrgent
	default:
		return BucketNormal
	}
}

// Groups maps each bucket to its conversations, most recent activity first.
type Groups map[Bucket][]model.Conversation

// Group partitions conversations into buckets. Conversations without a
// bucket are omitted.
func Group(convs []model.Conversation, now time.Time, th Thresholds) Groups {
	g := make(Groups)
	for _, c := range convs {
		b := th.Classify(c, now)
		if b == BucketNone {
			continue
		}
		g[b] = append(g[b], c)
	}
	for _, list := range g {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].LastActivity.Equal(list[j].LastActivity) {
				return list[i].LastActivity.After(list[j].LastActivity)
			}
			return list[i].Contact.ID < list[j].Contact.ID
		})
	}
	return g
}

// Counts returns the number of conversations per bucket.
func (g Groups) Counts() map[Bucket]int {
	out := make(map[Bucket]int, len(g))
	for b, list := range g {
		out[b] = len(list)
	}
	return out
}

// Total returns the number of bucketed conversations.
func (g Groups) Total() int {
	n := 0
	for _, list := range g {
		n += len(list)
	}
	return n
}

// Of returns the bucket holding the given contact, or BucketNone.
func (g Groups) Of(contactID string) Bucket {
	for b, list := range g {
		for _, c := range list {
			if c.Contact.ID == contactID {
				return b
			}
		}
	}
	return BucketNone
}
