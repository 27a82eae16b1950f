package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/wire"
	"go.uber.org/zap"
)

// ListConversations returns every conversation visible to the agent.
// Malformed entries are skipped and logged.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	data, err := c.do(ctx, request{op: "list_conversations", method: http.MethodGet, path: "/api/conversations"})
	if err != nil {
		return nil, err
	}
	raws, _, err := wire.DecodeList[wire.RawConversation](data)
	if err != nil {
		return nil, fmt.Errorf("list_conversations: %w", err)
	}
	now := c.now()
	out := make([]model.Conversation, 0, len(raws))
	for _, raw := range raws {
		conv, err := wire.ParseConversation(raw, now)
		if err != nil {
			c.log.Warn("skipping malformed conversation", zap.Error(err))
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

// GetConversation returns the unified conversation detail for a contact.
func (c *Client) GetConversation(ctx context.Context, contactID string) (model.Conversation, error) {
	data, err := c.do(ctx, request{
		op:     "get_conversation",
		method: http.MethodGet,
		path:   "/api/conversations/" + pathID(contactID),
		query:  url.Values{"unified": {"true"}},
	})
	if err != nil {
		return model.Conversation{}, err
	}
	var raw wire.RawConversation
	if err := decodeObject(data, &raw); err != nil {
		return model.Conversation{}, fmt.Errorf("get_conversation: decode: %w", err)
	}
	if raw.ContactID == "" && (raw.Contact == nil || raw.Contact.ID == "") {
		raw.ContactID = wire.FlexString(contactID)
	}
	conv, err := wire.ParseConversation(raw, c.now())
	if err != nil {
		return model.Conversation{}, fmt.Errorf("get_conversation: %w", err)
	}
	return conv, nil
}
