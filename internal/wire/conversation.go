package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/model"
)

// RawLabel accepts either a bare label name or a label object.
type RawLabel struct {
	ID    FlexString `json:"id"`
	Name  string     `json:"name"`
	Title string     `json:"title"`
	Color string     `json:"color"`
}

func (l *RawLabel) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*l = RawLabel{Name: name}
		return nil
	}
	type plain RawLabel
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*l = RawLabel(p)
	return nil
}

// RawContact is a contact payload.
type RawContact struct {
	ID          FlexString `json:"id"`
	Name        string     `json:"name"`
	PushName    string     `json:"push_name"`
	Phone       string     `json:"phone"`
	PhoneNumber string     `json:"phone_number"`
	AvatarURL   string     `json:"avatar_url"`
	ProfilePic  string     `json:"profile_pic_url"`
	LastSeen    FlexTime   `json:"last_seen"`
	Blocked     bool       `json:"blocked"`
	IsBlocked   bool       `json:"is_blocked"`
	Labels      []RawLabel `json:"labels"`
}

// RawTicket is a ticket payload.
type RawTicket struct {
	ID              FlexString `json:"id"`
	ContactID       FlexString `json:"contact_id"`
	Status          string     `json:"status"`
	Category        string     `json:"category"`
	RoutingCategory string     `json:"routing_category"`
	OpenedAt        FlexTime   `json:"opened_at"`
	CreatedAt       FlexTime   `json:"created_at"`
	ClosedAt        FlexTime   `json:"closed_at"`
}

// RawConversation is a conversation payload from the list or detail endpoints.
type RawConversation struct {
	ID            FlexString  `json:"id"`
	ContactID     FlexString  `json:"contact_id"`
	Contact       *RawContact `json:"contact"`
	Ticket        *RawTicket  `json:"ticket"`
	CurrentTicket *RawTicket  `json:"current_ticket"`
	LastMessage   *RawMessage `json:"last_message"`
	LastActivity  FlexTime    `json:"last_activity"`
	LastMessageAt FlexTime    `json:"last_message_at"`
	UpdatedAt     FlexTime    `json:"updated_at"`
	UnreadCount   *int        `json:"unread_count"`
	Unread        *int        `json:"unread"`
	Status        string      `json:"status"`
	TicketStatus  string      `json:"ticket_status"`
	AssignedAgent FlexString  `json:"assigned_agent"`
	AssignedTo    FlexString  `json:"assigned_to"`
	Labels        []RawLabel  `json:"labels"`
	Name          string      `json:"name"`
	Phone         string      `json:"phone"`
}

// ParseStatus maps ticket and conversation status names onto a conversation status.
func ParseStatus(s string) model.ConversationStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "waiting", "bot", "automated", "snoozed":
		return model.StatusPending
	case "resolved", "solved":
		return model.StatusResolved
	case "closed":
		return model.StatusClosed
	case "archived":
		return model.StatusArchived
	default:
		return model.StatusActive
	}
}

// ParseLabels normalizes raw labels, dropping unnamed ones.
func ParseLabels(raw []RawLabel) []model.Label {
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.Label, 0, len(raw))
	for _, l := range raw {
		name := firstString(l.Name, l.Title)
		if name == "" {
			continue
		}
		id := string(l.ID)
		if id == "" {
			id = name
		}
		out = append(out, model.Label{ID: id, Name: name, Color: l.Color})
	}
	return out
}

// ParseContact normalizes a raw contact. fallbackID is used when the payload omits the id.
func ParseContact(raw RawContact, fallbackID string) (model.Contact, error) {
	id := firstString(string(raw.ID), fallbackID)
	if id == "" {
		return model.Contact{}, fmt.Errorf("contact: %w: id", ErrMissingField)
	}
	return model.Contact{
		ID:        id,
		Name:      firstString(raw.Name, raw.PushName),
		Phone:     firstString(raw.Phone, raw.PhoneNumber),
		AvatarURL: firstString(raw.AvatarURL, raw.ProfilePic),
		LastSeen:  raw.LastSeen.Ptr(),
		Blocked:   raw.Blocked || raw.IsBlocked,
		Labels:    ParseLabels(raw.Labels),
	}, nil
}

// ParseTicket normalizes a raw ticket.
func ParseTicket(raw RawTicket, fallbackContactID string) (model.Ticket, error) {
	if raw.ID == "" {
		return model.Ticket{}, fmt.Errorf("ticket: %w: id", ErrMissingField)
	}
	return model.Ticket{
		ID:        string(raw.ID),
		ContactID: firstString(string(raw.ContactID), fallbackContactID),
		Status:    ParseStatus(raw.Status),
		Category:  firstString(raw.Category, raw.RoutingCategory),
		OpenedAt:  firstTime(raw.OpenedAt, raw.CreatedAt),
		ClosedAt:  raw.ClosedAt.Ptr(),
	}, nil
}

// ParseConversation normalizes a raw conversation. now is used for the last
// message timestamp when the payload carries none.
func ParseConversation(raw RawConversation, now time.Time) (model.Conversation, error) {
	var contact model.Contact
	var err error
	if raw.Contact != nil {
		contact, err = ParseContact(*raw.Contact, string(raw.ContactID))
	} else {
		contact, err = ParseContact(RawContact{ID: raw.ContactID, Name: raw.Name, Phone: raw.Phone}, "")
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("conversation %s: %w", raw.ID, err)
	}

	c := model.Conversation{
		ID:            string(raw.ID),
		Contact:       contact,
		AssignedAgent: firstFlex(raw.AssignedAgent, raw.AssignedTo),
		Labels:        ParseLabels(raw.Labels),
	}

	rawTicket := raw.CurrentTicket
	if rawTicket == nil {
		rawTicket = raw.Ticket
	}
	if rawTicket != nil && rawTicket.ID != "" {
		t, err := ParseTicket(*rawTicket, contact.ID)
		if err == nil {
			c.Ticket = &t
		}
	}

	switch {
	case raw.Status != "":
		c.Status = ParseStatus(raw.Status)
	case raw.TicketStatus != "":
		c.Status = ParseStatus(raw.TicketStatus)
	case c.Ticket != nil:
		c.Status = c.Ticket.Status
	default:
		c.Status = model.StatusActive
	}

	if raw.LastMessage != nil {
		m, err := ParseMessage(*raw.LastMessage, Defaults{Direction: model.Incoming, ContactID: contact.ID, Now: now})
		if err == nil {
			c.LastMessage = &m
		}
	}

	c.LastActivity = firstTime(raw.LastActivity, raw.LastMessageAt)
	if c.LastActivity.IsZero() && c.LastMessage != nil {
		c.LastActivity = c.LastMessage.CreatedAt
	}
	if c.LastActivity.IsZero() {
		c.LastActivity = raw.UpdatedAt.Time
	}

	switch {
	case raw.UnreadCount != nil:
		c.UnreadCount = max(*raw.UnreadCount, 0)
	case raw.Unread != nil:
		c.UnreadCount = max(*raw.Unread, 0)
	}
	return c, nil
}
