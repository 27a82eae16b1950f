package wire

import (
	"fmt"

	"github.com/matheus3301/inbox/internal/model"
)

// RawQuickReply is a quick reply template payload.
type RawQuickReply struct {
	ID        FlexString `json:"id"`
	Shortcut  string     `json:"shortcut"`
	Shortcode string     `json:"shortcode"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Message   string     `json:"message"`
	Body      string     `json:"body"`
}

// ParseQuickReply normalizes a quick reply.
func ParseQuickReply(raw RawQuickReply) (model.QuickReply, error) {
	if raw.ID == "" {
		return model.QuickReply{}, fmt.Errorf("quick reply: %w: id", ErrMissingField)
	}
	return model.QuickReply{
		ID:       string(raw.ID),
		Shortcut: firstString(raw.Shortcut, raw.Shortcode, raw.Title),
		Content:  firstString(raw.Content, raw.Message, raw.Body),
	}, nil
}

// RawNote is a contact note payload.
type RawNote struct {
	ID         FlexString `json:"id"`
	ContactID  FlexString `json:"contact_id"`
	Author     string     `json:"author"`
	AuthorName string     `json:"author_name"`
	Content    string     `json:"content"`
	Body       string     `json:"body"`
	Note       string     `json:"note"`
	CreatedAt  FlexTime   `json:"created_at"`
}

// ParseNote normalizes a note. fallbackContactID fills a missing contact id.
func ParseNote(raw RawNote, fallbackContactID string) (model.Note, error) {
	if raw.ID == "" {
		return model.Note{}, fmt.Errorf("note: %w: id", ErrMissingField)
	}
	return model.Note{
		ID:        string(raw.ID),
		ContactID: firstString(string(raw.ContactID), fallbackContactID),
		Author:    firstString(raw.Author, raw.AuthorName),
		Content:   firstString(raw.Content, raw.Body, raw.Note),
		CreatedAt: raw.CreatedAt.Time,
	}, nil
}

// RawDraft is a server-side draft payload.
type RawDraft struct {
	Body    string `json:"body"`
	Content string `json:"content"`
	Draft   string `json:"draft"`
}

// Text returns the draft text.
func (d RawDraft) Text() string {
	return firstString(d.Body, d.Content, d.Draft)
}
