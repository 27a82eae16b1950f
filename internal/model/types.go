package model

import (
	"io"
	"strings"
	"time"
)

// Direction tells whether a message came from the contact or from an agent.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// MessageType is the content kind of a message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
)

// ConversationStatus is the lifecycle status of a conversation or ticket.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusPending  ConversationStatus = "pending"
	StatusResolved ConversationStatus = "resolved"
	StatusArchived ConversationStatus = "archived"
	StatusClosed   ConversationStatus = "closed"
)

// Label is a tag attached to a contact or conversation.
type Label struct {
	ID    string
	Name  string
	Color string
}

// Contact is a messaging counterpart.
type Contact struct {
	ID        string
	Name      string
	Phone     string
	AvatarURL string
	LastSeen  *time.Time
	Blocked   bool
	Labels    []Label
}

// DisplayName returns the name, falling back to phone and then id.
func (c Contact) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Phone != "":
		return c.Phone
	default:
		return c.ID
	}
}

// Media references an attachment stored by the backend.
type Media struct {
	URL      string
	MimeType string
	FileName string
	Size     int64
}

// Message is a single unit of conversation content.
type Message struct {
	ID         string
	TempID     string // client-generated id, kept after reconciliation
	ContactID  string
	TicketID   string
	Direction  Direction
	Type       MessageType
	Content    string
	Status     DeliveryStatus
	Media      *Media
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ReadAt     *time.Time
	ExternalID string
	ReplyToID  string
}

// IsTemporary reports whether the message still carries its client-generated id.
func (m Message) IsTemporary() bool {
	return m.TempID != "" && m.ID == m.TempID
}

// Preview returns a short single-line representation of the message.
func (m Message) Preview(maxLen int) string {
	s := strings.Join(strings.Fields(m.Content), " ")
	if s == "" && m.Type != TypeText && m.Type != "" {
		s = "[" + string(m.Type) + "]"
	}
	if maxLen > 0 && len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.Media != nil {
		media := *m.Media
		m.Media = &media
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		m.ReadAt = &t
	}
	return m
}

// Ticket is a backend case spanning part of a contact's history.
type Ticket struct {
	ID        string
	ContactID string
	Status    ConversationStatus
	Category  string
	OpenedAt  time.Time
	ClosedAt  *time.Time
}

// IsOpen reports whether the ticket can still receive messages.
func (t Ticket) IsOpen() bool {
	if t.ClosedAt != nil {
		return false
	}
	switch t.Status {
	case StatusResolved, StatusArchived, StatusClosed:
		return false
	}
	return true
}

// Conversation is one contact's aggregate chat state.
type Conversation struct {
	ID            string
	Contact       Contact
	Ticket        *Ticket
	LastMessage   *Message
	LastActivity  time.Time
	UnreadCount   int
	Status        ConversationStatus
	AssignedAgent string
	Labels        []Label
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	if c.Ticket != nil {
		t := *c.Ticket
		c.Ticket = &t
	}
	if c.LastMessage != nil {
		m := c.LastMessage.Clone()
		c.LastMessage = &m
	}
	if c.Contact.LastSeen != nil {
		t := *c.Contact.LastSeen
		c.Contact.LastSeen = &t
	}
	c.Contact.Labels = append([]Label(nil), c.Contact.Labels...)
	c.Labels = append([]Label(nil), c.Labels...)
	return c
}

// AllLabels returns conversation labels followed by contact labels.
func (c Conversation) AllLabels() []Label {
	out := make([]Label, 0, len(c.Labels)+len(c.Contact.Labels))
	out = append(out, c.Labels...)
	return append(out, c.Contact.Labels...)
}

// Episode is the slice of a contact's history that belongs to one ticket.
type Episode struct {
	Ticket       Ticket
	MessageCount int
	StartedAt    time.Time
	EndedAt      time.Time
	Status       ConversationStatus
	Category     string
	UnreadCount  int
	LastMessage  *Message
	Current      bool
}

// MessagePage is one page of a paginated message listing.
type MessagePage struct {
	Messages []Message
	Page     int
	HasMore  bool
	Total    int
}

// Attachment is a file to upload alongside an outgoing message.
type Attachment struct {
	FileName string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// OutgoingMessage is what an agent asks to send.
type OutgoingMessage struct {
	TempID     string
	ContactID  string
	TicketID   string
	Type       MessageType
	Content    string
	ReplyToID  string
	Attachment *Attachment
}

// SendReceipt is the backend acknowledgement of a sent message.
type SendReceipt struct {
	ID        string
	Status    DeliveryStatus
	MediaURL  string
	CreatedAt time.Time
}

// QuickReply is a canned response template.
type QuickReply struct {
	ID       string
	Shortcut string
	Content  string
}

// Note is an internal annotation on a contact.
type Note struct {
	ID        string
	ContactID string
	Author    string
	Content   string
	CreatedAt time.Time
}
