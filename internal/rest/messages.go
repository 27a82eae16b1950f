package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/wire"
	"go.uber.org/zap"
)

// MessageQuery selects one page of a keyed message collection.
type MessageQuery struct {
	Key   model.Key
	Page  int
	Limit int
	// ContactID fills messages that omit their contact id.
	ContactID string
}

// ListMessages fetches one page, newest first on the wire. The returned
// messages keep server order; callers sort them.
func (c *Client) ListMessages(ctx context.Context, q MessageQuery) (model.MessagePage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	var path string
	switch q.Key.Kind {
	case model.KindTicket:
		path = "/api/tickets/" + pathID(q.Key.ID) + "/messages"
	default:
		path = "/api/contacts/" + pathID(q.Key.ID) + "/messages"
		if q.ContactID == "" {
			q.ContactID = q.Key.ID
		}
	}
	query := url.Values{
		"page":  {strconv.Itoa(q.Page)},
		"order": {"desc"},
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	data, err := c.do(ctx, request{op: "list_messages", method: http.MethodGet, path: path, query: query})
	if err != nil {
		return model.MessagePage{}, err
	}
	raws, meta, err := wire.DecodeList[wire.RawMessage](data)
	if err != nil {
		return model.MessagePage{}, fmt.Errorf("list_messages: %w", err)
	}
	page, skipped := wire.ParseMessagePage(raws, meta, q.Page, q.Limit, wire.Defaults{
		Direction: model.Incoming,
		ContactID: q.ContactID,
		Now:       c.now(),
	})
	if skipped > 0 {
		c.log.Warn("skipped malformed messages", zap.String("key", q.Key.String()), zap.Int("count", skipped))
	}
	if q.Key.Kind == model.KindTicket {
		for i := range page.Messages {
			if page.Messages[i].TicketID == "" {
				page.Messages[i].TicketID = q.Key.ID
			}
		}
	}
	return page, nil
}

type sendBody struct {
	ClientID    string `json:"client_id,omitempty"`
	ContactID   string `json:"contact_id"`
	TicketID    string `json:"ticket_id,omitempty"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	ReplyTo     string `json:"reply_to,omitempty"`
}

// ProgressFunc receives upload progress in bytes.
type ProgressFunc func(sent, total int64)

// SendMessage posts a message. Messages with an attachment are sent as
// multipart with the file in the "media" part; progress may be nil.
func (c *Client) SendMessage(ctx context.Context, out model.OutgoingMessage, progress ProgressFunc) (model.SendReceipt, error) {
	msgType := out.Type
	if msgType == "" {
		msgType = model.TypeText
	}
	body := sendBody{
		ClientID:    out.TempID,
		ContactID:   out.ContactID,
		TicketID:    out.TicketID,
		Content:     out.Content,
		MessageType: string(msgType),
		ReplyTo:     out.ReplyToID,
	}

	req := request{op: "send_message", method: http.MethodPost, path: "/api/messages", body: body}
	if out.Attachment != nil {
		payload, contentType, err := multipartBody(body, out.Attachment)
		if err != nil {
			return model.SendReceipt{}, fmt.Errorf("send_message: %w", err)
		}
		req.body = &progressReader{r: bytes.NewReader(payload), total: int64(len(payload)), fn: progress}
		req.contentType = contentType
		req.size = int64(len(payload))
	}

	data, err := c.do(ctx, req)
	if err != nil {
		return model.SendReceipt{}, err
	}
	var raw wire.RawMessage
	if err := decodeObject(data, &raw); err != nil {
		return model.SendReceipt{}, fmt.Errorf("send_message: decode: %w", err)
	}
	receipt, err := wire.ParseReceipt(raw)
	if err != nil {
		return model.SendReceipt{}, fmt.Errorf("send_message: %w", err)
	}
	return receipt, nil
}

func multipartBody(body sendBody, att *model.Attachment) ([]byte, string, error) {
	if att.Open == nil {
		return nil, "", fmt.Errorf("attachment %q has no content", att.FileName)
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"client_id", body.ClientID},
		{"contact_id", body.ContactID},
		{"ticket_id", body.TicketID},
		{"content", body.Content},
		{"message_type", body.MessageType},
		{"reply_to", body.ReplyTo},
		{"mime_type", att.MimeType},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("media", att.FileName)
	if err != nil {
		return nil, "", err
	}
	src, err := att.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open attachment: %w", err)
	}
	_, copyErr := io.Copy(part, src)
	_ = src.Close()
	if copyErr != nil {
		return nil, "", fmt.Errorf("read attachment: %w", copyErr)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}

// MarkRead marks every incoming message under the key as read.
func (c *Client) MarkRead(ctx context.Context, key model.Key) error {
	body := map[string]string{}
	switch key.Kind {
	case model.KindTicket:
		body["ticket_id"] = key.ID
	default:
		body["contact_id"] = key.ID
	}
	_, err := c.do(ctx, request{op: "mark_read", method: http.MethodPost, path: "/api/messages/read", body: body})
	return err
}

// SearchMessages runs a full-text message search.
func (c *Client) SearchMessages(ctx context.Context, q string, limit int) ([]model.Message, error) {
	query := url.Values{"q": {q}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, request{op: "search_messages", method: http.MethodGet, path: "/api/messages/search", query: query})
	if err != nil {
		return nil, err
	}
	raws, _, err := wire.DecodeList[wire.RawMessage](data)
	if err != nil {
		return nil, fmt.Errorf("search_messages: %w", err)
	}
	now := c.now()
	out := make([]model.Message, 0, len(raws))
	for _, raw := range raws {
		m, err := wire.ParseMessage(raw, wire.Defaults{Direction: model.Incoming, Now: now})
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
