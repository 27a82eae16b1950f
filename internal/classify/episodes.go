package classify

import (
	"sort"
	"time"

	"github.com/matheus3301/inbox/internal/model"
)

// Episodes derives one episode per ticket from a contact's messages. Episodes
// are ordered by start time. At most one episode is current: the open ticket
// with the latest activity.
func Episodes(tickets []model.Ticket, msgs []model.Message, now time.Time) []model.Episode {
	if len(tickets) == 0 {
		return nil
	}
	byTicket := make(map[string][]model.Message, len(tickets))
	for _, m := range msgs {
		if m.TicketID == "" {
			continue
		}
		byTicket[m.TicketID] = append(byTicket[m.TicketID], m)
	}

	out := make([]model.Episode, 0, len(tickets))
	seen := make(map[string]bool, len(tickets))
	for _, t := range tickets {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, episode(t, byTicket[t.ID], now))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	current := -1
	for i, e := range out {
		if !e.Ticket.IsOpen() {
			continue
		}
		if current < 0 || !e.EndedAt.Before(out[current].EndedAt) {
			current = i
		}
	}
	if current >= 0 {
		out[current].Current = true
	}
	return out
}

func episode(t model.Ticket, msgs []model.Message, now time.Time) model.Episode {
	e := model.Episode{
		Ticket:       t,
		MessageCount: len(msgs),
		Status:       t.Status,
		Category:     t.Category,
		StartedAt:    t.OpenedAt,
	}
	for i := range msgs {
		m := msgs[i]
		if e.StartedAt.IsZero() || m.CreatedAt.Before(e.StartedAt) {
			e.StartedAt = m.CreatedAt
		}
		if m.CreatedAt.After(e.EndedAt) {
			e.EndedAt = m.CreatedAt
			last := m.Clone()
			e.LastMessage = &last
		}
		if m.Direction == model.Incoming && m.ReadAt == nil {
			e.UnreadCount++
		}
	}
	if t.ClosedAt != nil && t.ClosedAt.After(e.EndedAt) {
		e.EndedAt = *t.ClosedAt
	}
	if e.EndedAt.IsZero() {
		e.EndedAt = e.StartedAt
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = now
		e.EndedAt = now
	}
	return e
}
