package wire

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/model"
)

// ErrMissingField is returned when a payload lacks a required field.
var ErrMissingField = errors.New("missing required field")

// RawMessage is a message as sent by the REST API or the live transport.
// Field names vary between endpoints; every known variant is accepted.
type RawMessage struct {
	ID             FlexString `json:"id"`
	MessageID      FlexString `json:"message_id"`
	ObjectID       FlexString `json:"_id"`
	ContactID      FlexString `json:"contact_id"`
	ContactIDCamel FlexString `json:"contactId"`
	ChatID         FlexString `json:"chat_id"`
	TicketID       FlexString `json:"ticket_id"`
	TicketIDCamel  FlexString `json:"ticketId"`
	Body           string     `json:"body"`
	Content        string     `json:"content"`
	Text           string     `json:"text"`
	MessageType    string     `json:"message_type"`
	Type           string     `json:"type"`
	Direction      string     `json:"direction"`
	FromMe         *bool      `json:"from_me"`
	Status         string     `json:"status"`
	Timestamp      FlexTime   `json:"timestamp"`
	CreatedAt      FlexTime   `json:"created_at"`
	CreatedAtCamel FlexTime   `json:"createdAt"`
	UpdatedAt      FlexTime   `json:"updated_at"`
	ReadAt         FlexTime   `json:"read_at"`
	MediaURL       string     `json:"media_url"`
	MediaURLCamel  string     `json:"mediaUrl"`
	MimeType       string     `json:"mime_type"`
	FileName       string     `json:"file_name"`
	FileSize       int64      `json:"file_size"`
	WAMessageID    string     `json:"wa_message_id"`
	ReplyTo        FlexString `json:"reply_to"`
	SessionName    string     `json:"session_name"`
}

// Defaults fills in what a payload leaves out.
type Defaults struct {
	Direction model.Direction
	ContactID string
	Now       time.Time
}

// ParseMessage normalizes a raw payload into a canonical message.
func ParseMessage(raw RawMessage, d Defaults) (model.Message, error) {
	id := firstFlex(raw.ID, raw.MessageID, raw.ObjectID)
	if id == "" {
		return model.Message{}, fmt.Errorf("message: %w: id", ErrMissingField)
	}
	contactID := firstString(firstFlex(raw.ContactID, raw.ContactIDCamel, raw.ChatID), d.ContactID)
	if contactID == "" {
		return model.Message{}, fmt.Errorf("message %s: %w: contact_id", id, ErrMissingField)
	}

	dir := parseDirection(raw.Direction, raw.FromMe, d.Direction)
	created := firstTime(raw.Timestamp, raw.CreatedAt, raw.CreatedAtCamel)
	if created.IsZero() {
		created = d.Now
	}
	updated := raw.UpdatedAt.Time
	if updated.IsZero() {
		updated = created
	}

	m := model.Message{
		ID:         id,
		ContactID:  contactID,
		TicketID:   firstFlex(raw.TicketID, raw.TicketIDCamel),
		Direction:  dir,
		Type:       ParseMessageType(firstString(raw.MessageType, raw.Type)),
		Content:    firstString(raw.Body, raw.Content, raw.Text),
		Status:     ParseDeliveryStatus(raw.Status, dir),
		CreatedAt:  created,
		UpdatedAt:  updated,
		ReadAt:     raw.ReadAt.Ptr(),
		ExternalID: raw.WAMessageID,
		ReplyToID:  string(raw.ReplyTo),
	}
	if url := firstString(raw.MediaURL, raw.MediaURLCamel); url != "" {
		m.Media = &model.Media{
			URL:      url,
			MimeType: raw.MimeType,
			FileName: raw.FileName,
			Size:     raw.FileSize,
		}
	}
	return m, nil
}

// Anomalies lists non-fatal problems worth logging for a parsed message.
func Anomalies(m model.Message) []string {
	var out []string
	if m.Type == model.TypeText && strings.TrimSpace(m.Content) == "" {
		out = append(out, "text message without content")
	}
	if m.Type != model.TypeText && m.Media == nil {
		out = append(out, fmt.Sprintf("%s message without media", m.Type))
	}
	if m.CreatedAt.IsZero() {
		out = append(out, "message without timestamp")
	}
	return out
}

// ParseMessageType maps backend type names onto the canonical set.
func ParseMessageType(s string) model.MessageType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image", "sticker", "photo":
		return model.TypeImage
	case "video", "gif":
		return model.TypeVideo
	case "audio", "ptt", "voice":
		return model.TypeAudio
	case "document", "file", "pdf":
		return model.TypeDocument
	default:
		return model.TypeText
	}
}

// ParseDeliveryStatus maps backend status names onto delivery statuses.
// An empty or unknown status falls back to the direction's initial status.
func ParseDeliveryStatus(s string, dir model.Direction) model.DeliveryStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sent", "pending", "queued", "server_ack":
		return model.StatusSent
	case "delivered", "delivery_ack":
		return model.StatusDelivered
	case "read", "seen", "played":
		return model.StatusRead
	case "failed", "error":
		return model.StatusFailed
	case "received":
		return model.StatusReceived
	}
	if dir == model.Outgoing {
		return model.StatusSent
	}
	return model.StatusReceived
}

func parseDirection(s string, fromMe *bool, fallback model.Direction) model.Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incoming", "inbound", "in":
		return model.Incoming
	case "outgoing", "outbound", "out":
		return model.Outgoing
	}
	if fromMe != nil {
		if *fromMe {
			return model.Outgoing
		}
		return model.Incoming
	}
	if fallback != "" {
		return fallback
	}
	return model.Incoming
}

// ParseReceipt normalizes the acknowledgement returned by a send request.
// A missing status is treated as sent.
func ParseReceipt(raw RawMessage) (model.SendReceipt, error) {
	id := firstFlex(raw.ID, raw.MessageID, raw.ObjectID)
	if id == "" {
		return model.SendReceipt{}, fmt.Errorf("send receipt: %w: id", ErrMissingField)
	}
	return model.SendReceipt{
		ID:        id,
		Status:    ParseDeliveryStatus(raw.Status, model.Outgoing),
		MediaURL:  firstString(raw.MediaURL, raw.MediaURLCamel),
		CreatedAt: firstTime(raw.Timestamp, raw.CreatedAt, raw.CreatedAtCamel),
	}, nil
}
