package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/inbox/internal/model"
)

// StatusUpdate is a delivery receipt pushed by the transport.
type StatusUpdate struct {
	MessageID string
	Status    model.DeliveryStatus
	ReadAt    *time.Time
}

type rawStatusUpdate struct {
	ID         FlexString `json:"id"`
	MessageID  FlexString `json:"message_id"`
	MessageIDC FlexString `json:"messageId"`
	Status     string     `json:"status"`
	Ack        string     `json:"ack"`
	ReadAt     FlexTime   `json:"read_at"`
	Timestamp  FlexTime   `json:"timestamp"`
}

// ParseStatusUpdate decodes a message_status_update payload.
func ParseStatusUpdate(data []byte) (StatusUpdate, error) {
	var raw rawStatusUpdate
	if err := json.Unmarshal(data, &raw); err != nil {
		return StatusUpdate{}, fmt.Errorf("decode status update: %w", err)
	}
	id := firstFlex(raw.MessageID, raw.MessageIDC, raw.ID)
	if id == "" {
		return StatusUpdate{}, fmt.Errorf("status update: %w: message_id", ErrMissingField)
	}
	name := firstString(raw.Status, raw.Ack)
	if name == "" {
		return StatusUpdate{}, fmt.Errorf("status update %s: %w: status", id, ErrMissingField)
	}
	u := StatusUpdate{
		MessageID: id,
		Status:    ParseDeliveryStatus(name, model.Outgoing),
		ReadAt:    raw.ReadAt.Ptr(),
	}
	if u.Status == model.StatusRead && u.ReadAt == nil {
		u.ReadAt = raw.Timestamp.Ptr()
	}
	return u, nil
}

// Typing is a typing_start or typing_stop payload.
type Typing struct {
	Key  model.Key   // primary key: the ticket when named, else the contact
	Keys []model.Key // every key the payload names, primary first
	User string
}

type rawTyping struct {
	ContactID FlexString `json:"contact_id"`
	ContactC  FlexString `json:"contactId"`
	TicketID  FlexString `json:"ticket_id"`
	TicketC   FlexString `json:"ticketId"`
	User      FlexString `json:"user"`
	UserName  string     `json:"user_name"`
	UserID    FlexString `json:"user_id"`
}

// ParseTyping decodes a typing payload. A ticket id takes precedence over the
// contact id for the primary key; both are listed in Keys.
func ParseTyping(data []byte) (Typing, error) {
	var raw rawTyping
	if err := json.Unmarshal(data, &raw); err != nil {
		return Typing{}, fmt.Errorf("decode typing: %w", err)
	}
	var keys []model.Key
	if id := firstFlex(raw.TicketID, raw.TicketC); id != "" {
		keys = append(keys, model.TicketKey(id))
	}
	if id := firstFlex(raw.ContactID, raw.ContactC); id != "" {
		keys = append(keys, model.ContactKey(id))
	}
	if len(keys) == 0 {
		return Typing{}, fmt.Errorf("typing: %w: contact_id", ErrMissingField)
	}
	user := firstString(string(raw.User), raw.UserName, string(raw.UserID))
	if user == "" {
		user = "unknown"
	}
	return Typing{Key: keys[0], Keys: keys, User: user}, nil
}

// ConversationPatch is a partial conversation update. Nil fields were absent
// from the payload.
type ConversationPatch struct {
	ContactID     string
	Status        *model.ConversationStatus
	UnreadCount   *int
	AssignedAgent *string
	Labels        *[]model.Label
	Ticket        *model.Ticket
	LastActivity  *time.Time
}

type rawConversationPatch struct {
	ID            FlexString  `json:"id"`
	ContactID     FlexString  `json:"contact_id"`
	Contact       *RawContact `json:"contact"`
	Status        *string     `json:"status"`
	UnreadCount   *int        `json:"unread_count"`
	AssignedAgent *FlexString `json:"assigned_agent"`
	Labels        *[]RawLabel `json:"labels"`
	Ticket        *RawTicket  `json:"ticket"`
	CurrentTicket *RawTicket  `json:"current_ticket"`
	LastActivity  FlexTime    `json:"last_activity"`
}

// ParseConversationPatch decodes a conversation_updated payload.
func ParseConversationPatch(data []byte) (ConversationPatch, error) {
	var raw rawConversationPatch
	if err := json.Unmarshal(data, &raw); err != nil {
		return ConversationPatch{}, fmt.Errorf("decode conversation update: %w", err)
	}
	contactID := string(raw.ContactID)
	if contactID == "" && raw.Contact != nil {
		contactID = string(raw.Contact.ID)
	}
	if contactID == "" {
		contactID = string(raw.ID)
	}
	if contactID == "" {
		return ConversationPatch{}, fmt.Errorf("conversation update: %w: contact_id", ErrMissingField)
	}

	p := ConversationPatch{ContactID: contactID, LastActivity: raw.LastActivity.Ptr()}
	if raw.Status != nil {
		s := ParseStatus(*raw.Status)
		p.Status = &s
	}
	if raw.UnreadCount != nil {
		n := max(*raw.UnreadCount, 0)
		p.UnreadCount = &n
	}
	if raw.AssignedAgent != nil {
		a := string(*raw.AssignedAgent)
		p.AssignedAgent = &a
	}
	if raw.Labels != nil {
		labels := ParseLabels(*raw.Labels)
		p.Labels = &labels
	}
	rawTicket := raw.CurrentTicket
	if rawTicket == nil {
		rawTicket = raw.Ticket
	}
	if rawTicket != nil {
		if t, err := ParseTicket(*rawTicket, contactID); err == nil {
			p.Ticket = &t
		}
	}
	return p, nil
}
