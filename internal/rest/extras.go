package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/wire"
)

// ListQuickReplies returns the agent's quick reply templates.
func (c *Client) ListQuickReplies(ctx context.Context) ([]model.QuickReply, error) {
	data, err := c.do(ctx, request{op: "list_quick_replies", method: http.MethodGet, path: "/api/quick-replies"})
	if err != nil {
		return nil, err
	}
	raws, _, err := wire.DecodeList[wire.RawQuickReply](data)
	if err != nil {
		return nil, fmt.Errorf("list_quick_replies: %w", err)
	}
	out := make([]model.QuickReply, 0, len(raws))
	for _, raw := range raws {
		if qr, err := wire.ParseQuickReply(raw); err == nil {
			out = append(out, qr)
		}
	}
	return out, nil
}

// SaveQuickReply creates the template when ID is empty and updates it otherwise.
func (c *Client) SaveQuickReply(ctx context.Context, qr model.QuickReply) (model.QuickReply, error) {
	req := request{
		op:     "create_quick_reply",
		method: http.MethodPost,
		path:   "/api/quick-replies",
		body:   map[string]string{"shortcut": qr.Shortcut, "content": qr.Content},
	}
	if qr.ID != "" {
		req.op = "update_quick_reply"
		req.method = http.MethodPut
		req.path += "/" + pathID(qr.ID)
	}
	data, err := c.do(ctx, req)
	if err != nil {
		return model.QuickReply{}, err
	}
	var raw wire.RawQuickReply
	if err := decodeObject(data, &raw); err != nil {
		return model.QuickReply{}, fmt.Errorf("%s: decode: %w", req.op, err)
	}
	if raw.ID == "" {
		raw.ID = wire.FlexString(qr.ID)
	}
	saved, err := wire.ParseQuickReply(raw)
	if err != nil {
		return model.QuickReply{}, fmt.Errorf("%s: %w", req.op, err)
	}
	return saved, nil
}

// DeleteQuickReply removes a template.
func (c *Client) DeleteQuickReply(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{op: "delete_quick_reply", method: http.MethodDelete, path: "/api/quick-replies/" + pathID(id)})
	return err
}

// ListNotes returns a contact's internal notes.
func (c *Client) ListNotes(ctx context.Context, contactID string) ([]model.Note, error) {
	data, err := c.do(ctx, request{op: "list_notes", method: http.MethodGet, path: "/api/contacts/" + pathID(contactID) + "/notes"})
	if err != nil {
		return nil, err
	}
	raws, _, err := wire.DecodeList[wire.RawNote](data)
	if err != nil {
		return nil, fmt.Errorf("list_notes: %w", err)
	}
	out := make([]model.Note, 0, len(raws))
	for _, raw := range raws {
		if n, err := wire.ParseNote(raw, contactID); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// CreateNote adds a note to a contact.
func (c *Client) CreateNote(ctx context.Context, contactID, content string) (model.Note, error) {
	data, err := c.do(ctx, request{
		op:     "create_note",
		method: http.MethodPost,
		path:   "/api/contacts/" + pathID(contactID) + "/notes",
		body:   map[string]string{"content": content},
	})
	if err != nil {
		return model.Note{}, err
	}
	var raw wire.RawNote
	if err := decodeObject(data, &raw); err != nil {
		return model.Note{}, fmt.Errorf("create_note: decode: %w", err)
	}
	n, err := wire.ParseNote(raw, contactID)
	if err != nil {
		return model.Note{}, fmt.Errorf("create_note: %w", err)
	}
	return n, nil
}

// DeleteNote removes a note.
func (c *Client) DeleteNote(ctx context.Context, contactID, noteID string) error {
	_, err := c.do(ctx, request{
		op:     "delete_note",
		method: http.MethodDelete,
		path:   "/api/contacts/" + pathID(contactID) + "/notes/" + pathID(noteID),
	})
	return err
}

// GetDraft returns the server-side draft of a contact, or "" when none exists.
func (c *Client) GetDraft(ctx context.Context, contactID string) (string, error) {
	data, err := c.do(ctx, request{op: "get_draft", method: http.MethodGet, path: "/api/contacts/" + pathID(contactID) + "/draft"})
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	var raw wire.RawDraft
	if err := decodeObject(data, &raw); err != nil {
		return "", fmt.Errorf("get_draft: decode: %w", err)
	}
	return raw.Text(), nil
}

// PutDraft stores a contact's draft on the server.
func (c *Client) PutDraft(ctx context.Context, contactID, body string) error {
	_, err := c.do(ctx, request{
		op:     "put_draft",
		method: http.MethodPut,
		path:   "/api/contacts/" + pathID(contactID) + "/draft",
		body:   map[string]string{"body": body},
	})
	return err
}

// DeleteDraft removes a contact's server-side draft.
func (c *Client) DeleteDraft(ctx context.Context, contactID string) error {
	_, err := c.do(ctx, request{op: "delete_draft", method: http.MethodDelete, path: "/api/contacts/" + pathID(contactID) + "/draft"})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
