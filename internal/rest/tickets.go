package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/wire"
)

// ListTickets returns every ticket of a contact.
func (c *Client) ListTickets(ctx context.Context, contactID string) ([]model.Ticket, error) {
	data, err := c.do(ctx, request{op: "list_tickets", method: http.MethodGet, path: "/api/contacts/" + pathID(contactID) + "/tickets"})
	if err != nil {
		return nil, err
	}
	raws, _, err := wire.DecodeList[wire.RawTicket](data)
	if err != nil {
		return nil, fmt.Errorf("list_tickets: %w", err)
	}
	out := make([]model.Ticket, 0, len(raws))
	for _, raw := range raws {
		t, err := wire.ParseTicket(raw, contactID)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// CurrentTicket returns the open ticket of a contact, or nil when there is none.
func (c *Client) CurrentTicket(ctx context.Context, contactID string) (*model.Ticket, error) {
	data, err := c.do(ctx, request{op: "current_ticket", method: http.MethodGet, path: "/api/contacts/" + pathID(contactID) + "/tickets/current"})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw wire.RawTicket
	if err := decodeObject(data, &raw); err != nil {
		return nil, fmt.Errorf("current_ticket: decode: %w", err)
	}
	if raw.ID == "" {
		return nil, nil
	}
	t, err := wire.ParseTicket(raw, contactID)
	if err != nil {
		return nil, fmt.Errorf("current_ticket: %w", err)
	}
	return &t, nil
}

// CreateTicket opens a new ticket for a contact.
func (c *Client) CreateTicket(ctx context.Context, contactID string) (model.Ticket, error) {
	data, err := c.do(ctx, request{
		op:     "create_ticket",
		method: http.MethodPost,
		path:   "/api/tickets",
		body:   map[string]string{"contact_id": contactID},
	})
	if err != nil {
		return model.Ticket{}, err
	}
	var raw wire.RawTicket
	if err := decodeObject(data, &raw); err != nil {
		return model.Ticket{}, fmt.Errorf("create_ticket: decode: %w", err)
	}
	t, err := wire.ParseTicket(raw, contactID)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("create_ticket: %w", err)
	}
	return t, nil
}
