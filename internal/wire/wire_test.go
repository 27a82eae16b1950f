package wire

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/model"
)

func decodeMessage(t *testing.T, s string) RawMessage {
	t.Helper()
	var raw RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		t.Fatalf("unmarshal %s: %v", s, err)
	}
	return raw
}

func TestParseMessageFieldVariants(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		payload string
		wantID  string
		wantCID string
		wantDir model.Direction
		wantSt  model.DeliveryStatus
		wantTxt string
	}{
		{
			name:    "snake case",
			payload: `{"id":"m1","contact_id":"1","body":"hi","direction":"incoming"}`,
			wantID:  "m1", wantCID: "1", wantDir: model.Incoming, wantSt: model.StatusReceived, wantTxt: "hi",
		},
		{
			name:    "numeric ids and camel case",
			payload: `{"message_id":42,"contactId":7,"content":"yo","from_me":true}`,
			wantID:  "42", wantCID: "7", wantDir: model.Outgoing, wantSt: model.StatusSent, wantTxt: "yo",
		},
		{
			name:    "mongo id and chat id",
			payload: `{"_id":"abc","chat_id":"9","text":"t","status":"delivery_ack","direction":"outbound"}`,
			wantID:  "abc", wantCID: "9", wantDir: model.Outgoing, wantSt: model.StatusDelivered, wantTxt: "t",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMessage(decodeMessage(t, tt.payload), Defaults{Now: now})
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if m.ID != tt.wantID || m.ContactID != tt.wantCID {
				t.Errorf("ids = %s/%s, want %s/%s", m.ID, m.ContactID, tt.wantID, tt.wantCID)
			}
			if m.Direction != tt.wantDir {
				t.Errorf("direction = %s, want %s", m.Direction, tt.wantDir)
			}
			if m.Status != tt.wantSt {
				t.Errorf("status = %s, want %s", m.Status, tt.wantSt)
			}
			if m.Content != tt.wantTxt {
				t.Errorf("content = %q, want %q", m.Content, tt.wantTxt)
			}
			if m.Type != model.TypeText {
				t.Errorf("type = %s, want text", m.Type)
			}
			if !m.CreatedAt.Equal(now) {
				t.Errorf("created = %v, want default %v", m.CreatedAt, now)
			}
		})
	}
}

func TestParseMessageMissingFields(t *testing.T) {
	tests := []string{
		`{"contact_id":"1","body":"no id"}`,
		`{"id":"m1","body":"no contact"}`,
	}
	for _, payload := range tests {
		_, err := ParseMessage(decodeMessage(t, payload), Defaults{})
		if !errors.Is(err, ErrMissingField) {
			t.Errorf("ParseMessage(%s) error = %v, want ErrMissingField", payload, err)
		}
	}
}

func TestParseMessageDefaultContact(t *testing.T) {
	m, err := ParseMessage(decodeMessage(t, `{"id":"m1"}`), Defaults{ContactID: "5", Direction: model.Outgoing})
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if m.ContactID != "5" || m.Direction != model.Outgoing {
		t.Errorf("got contact %s direction %s, want 5 outgoing", m.ContactID, m.Direction)
	}
}

func TestFlexTime(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"seconds", `1772366400`, want},
		{"millis", `1772366400000`, want},
		{"numeric string", `"1772366400"`, want},
		{"rfc3339", `"2026-03-01T12:00:00Z"`, want},
		{"offset", `"2026-03-01T09:00:00-03:00"`, want},
		{"space layout", `"2026-03-01 12:00:00"`, want},
		{"null", `null`, time.Time{}},
		{"garbage", `"yesterday"`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexTime
			if err := json.Unmarshal([]byte(tt.input), &f); err != nil {
				t.Fatalf("unmarshal error = %v", err)
			}
			if !f.Time.Equal(tt.want) {
				t.Errorf("got %v, want %v", f.Time, tt.want)
			}
		})
	}
}

func TestParseMessageTypeAndMedia(t *testing.T) {
	m, err := ParseMessage(decodeMessage(t,
		`{"id":"m1","contact_id":"1","type":"ptt","media_url":"https://x/a.ogg","mime_type":"audio/ogg"}`),
		Defaults{Now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if m.Type != model.TypeAudio {
		t.Errorf("type = %s, want audio", m.Type)
	}
	if m.Media == nil || m.Media.URL != "https://x/a.ogg" {
		t.Errorf("media = %+v, want url set", m.Media)
	}
	if len(Anomalies(m)) != 0 {
		t.Errorf("Anomalies() = %v, want none", Anomalies(m))
	}

	empty, _ := ParseMessage(decodeMessage(t, `{"id":"m2","contact_id":"1","created_at":1}`), Defaults{})
	if len(Anomalies(empty)) == 0 {
		t.Errorf("expected an anomaly for empty text message")
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]model.ConversationStatus{
		"open":        model.StatusActive,
		"in_progress": model.StatusActive,
		"assigned":    model.StatusActive,
		"waiting":     model.StatusPending,
		"BOT":         model.StatusPending,
		"automated":   model.StatusPending,
		"solved":      model.StatusResolved,
		"closed":      model.StatusClosed,
		"archived":    model.StatusArchived,
		"weird":       model.StatusActive,
		"":            model.StatusActive,
	}
	for in, want := range tests {
		if got := ParseStatus(in); got != want {
			t.Errorf("ParseStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseConversation(t *testing.T) {
	payload := `{
		"id": 10,
		"contact": {"id": 1, "push_name": "Ana", "phone_number": "+5511", "labels": ["vip", {"id": 3, "name": "b2b"}]},
		"current_ticket": {"id": "t1", "status": "waiting", "routing_category": "sales"},
		"last_message": {"id": "m9", "body": "hello", "timestamp": 1772366400},
		"unread_count": 2
	}`
	var raw RawConversation
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	c, err := ParseConversation(raw, time.Now())
	if err != nil {
		t.Fatalf("ParseConversation() error = %v", err)
	}
	if c.ID != "10" || c.Contact.ID != "1" || c.Contact.Name != "Ana" || c.Contact.Phone != "+5511" {
		t.Errorf("unexpected identity %+v", c)
	}
	if len(c.Contact.Labels) != 2 || c.Contact.Labels[0].Name != "vip" || c.Contact.Labels[1].ID != "3" {
		t.Errorf("labels = %+v", c.Contact.Labels)
	}
	if c.Ticket == nil || c.Ticket.ID != "t1" || c.Ticket.Category != "sales" || c.Ticket.ContactID != "1" {
		t.Errorf("ticket = %+v", c.Ticket)
	}
	if c.Status != model.StatusPending {
		t.Errorf("status = %s, want pending from ticket", c.Status)
	}
	if c.LastMessage == nil || c.LastMessage.ContactID != "1" {
		t.Fatalf("last message = %+v", c.LastMessage)
	}
	if !c.LastActivity.Equal(c.LastMessage.CreatedAt) {
		t.Errorf("last activity = %v, want last message time", c.LastActivity)
	}
	if c.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", c.UnreadCount)
	}
}

func TestParseConversationRequiresContact(t *testing.T) {
	_, err := ParseConversation(RawConversation{ID: "1"}, time.Now())
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("error = %v, want ErrMissingField", err)
	}
}

func TestParseConversationNegativeUnread(t *testing.T) {
	n := -3
	c, err := ParseConversation(RawConversation{ContactID: "1", UnreadCount: &n}, time.Now())
	if err != nil {
		t.Fatalf("ParseConversation() error = %v", err)
	}
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want clamped to 0", c.UnreadCount)
	}
}

func TestParseStatusUpdate(t *testing.T) {
	u, err := ParseStatusUpdate([]byte(`{"message_id": 999, "status": "read", "timestamp": 1772366400}`))
	if err != nil {
		t.Fatalf("ParseStatusUpdate() error = %v", err)
	}
	if u.MessageID != "999" || u.Status != model.StatusRead {
		t.Errorf("got %+v", u)
	}
	if u.ReadAt == nil {
		t.Errorf("read_at should default to timestamp for read receipts")
	}

	if _, err := ParseStatusUpdate([]byte(`{"status":"read"}`)); !errors.Is(err, ErrMissingField) {
		t.Errorf("missing id error = %v", err)
	}
	if _, err := ParseStatusUpdate([]byte(`not json`)); err == nil {
		t.Errorf("expected decode error")
	}
}

func TestParseTyping(t *testing.T) {
	tests := []struct {
		payload string
		want    []model.Key
		user    string
	}{
		{`{"contact_id": 1, "user": "ana"}`, []model.Key{model.ContactKey("1")}, "ana"},
		{`{"contact_id": "1", "ticket_id": "t1", "user_name": "bob"}`,
			[]model.Key{model.TicketKey("t1"), model.ContactKey("1")}, "bob"},
		{`{"ticketId": "t2"}`, []model.Key{model.TicketKey("t2")}, "unknown"},
		{`{"contactId": "2"}`, []model.Key{model.ContactKey("2")}, "unknown"},
	}
	for _, tt := range tests {
		got, err := ParseTyping([]byte(tt.payload))
		if err != nil {
			t.Fatalf("ParseTyping(%s) error = %v", tt.payload, err)
		}
		if !slices.Equal(got.Keys, tt.want) || got.Key != tt.want[0] || got.User != tt.user {
			t.Errorf("ParseTyping(%s) = %+v, want %v/%s", tt.payload, got, tt.want, tt.user)
		}
	}
	if _, err := ParseTyping([]byte(`{"user":"x"}`)); !errors.Is(err, ErrMissingField) {
		t.Errorf("error = %v, want ErrMissingField", err)
	}
}

func TestParseConversationPatchTicketVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"ticket", `{"contact_id":"1","ticket":{"id":"t1","status":"open"}}`, "t1"},
		{"current_ticket", `{"contact_id":"1","current_ticket":{"id":"t2","status":"open"}}`, "t2"},
		{"current wins", `{"contact_id":"1","ticket":{"id":"t1"},"current_ticket":{"id":"t2"}}`, "t2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseConversationPatch([]byte(tt.payload))
			if err != nil {
				t.Fatalf("ParseConversationPatch() error = %v", err)
			}
			if p.Ticket == nil || p.Ticket.ID != tt.want {
				t.Errorf("ticket = %+v, want %s", p.Ticket, tt.want)
			}
		})
	}
}

func TestParseConversationPatch(t *testing.T) {
	p, err := ParseConversationPatch([]byte(`{"contact_id":"1","status":"resolved","labels":[]}`))
	if err != nil {
		t.Fatalf("ParseConversationPatch() error = %v", err)
	}
	if p.Status == nil || *p.Status != model.StatusResolved {
		t.Errorf("status = %v, want resolved", p.Status)
	}
	if p.Labels == nil || len(*p.Labels) != 0 {
		t.Errorf("labels should be present and empty, got %v", p.Labels)
	}
	if p.UnreadCount != nil || p.AssignedAgent != nil || p.Ticket != nil {
		t.Errorf("absent fields should stay nil: %+v", p)
	}
}

func TestDecodeList(t *testing.T) {
	bare, _, err := DecodeList[RawMessage]([]byte(`[{"id":"1"},{"id":"2"}]`))
	if err != nil || len(bare) != 2 {
		t.Fatalf("bare array: %d items, err %v", len(bare), err)
	}

	env, meta, err := DecodeList[RawMessage]([]byte(`{"data":[{"id":"1"}],"pagination":{"page":2,"total":120}}`))
	if err != nil || len(env) != 1 {
		t.Fatalf("envelope: %d items, err %v", len(env), err)
	}
	if meta.Page != 2 || meta.Total != 120 {
		t.Errorf("meta = %+v", meta)
	}

	flat, meta, err := DecodeList[RawMessage]([]byte(`{"items":[{"id":"1"}],"has_more":true}`))
	if err != nil || len(flat) != 1 || meta.HasMore == nil || !*meta.HasMore {
		t.Errorf("flat envelope: items %d meta %+v err %v", len(flat), meta, err)
	}
}

func TestParseMessagePageHasMore(t *testing.T) {
	items := []RawMessage{{ID: "1", ContactID: "c"}, {ID: "2", ContactID: "c"}, {ContactID: "c"}}
	page, skipped := ParseMessagePage(items, Page{}, 1, 3, Defaults{})
	if skipped != 1 || len(page.Messages) != 2 {
		t.Errorf("messages %d skipped %d, want 2/1", len(page.Messages), skipped)
	}
	if !page.HasMore {
		t.Errorf("full page should report more")
	}
	page, _ = ParseMessagePage(items, Page{Total: 3}, 1, 3, Defaults{})
	if page.HasMore {
		t.Errorf("total reached, should not report more")
	}
}
