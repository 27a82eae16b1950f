package store

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/transport"
)

func incoming(id, contactID string, at time.Time) string {
	return fmt.Sprintf(`{"id":%q,"contact_id":%q,"body":"hello %s","timestamp":%d}`, id, contactID, id, at.Unix())
}

func TestIncomingMessageForUnknownContactCreatesOneConversation(t *testing.T) {
	f := newFixture(t)
	detail := conv("2", time.Time{}, 0)
	detail.Contact.Name = "Bruna"
	f.api.details["2"] = detail
	ctx := context.Background()

	if err := f.store.HandleIncomingMessage(ctx, []byte(incoming("m1", "2", baseTime))); err != nil {
		t.Fatal(err)
	}
	if _, err := f.tr.Emit(transport.EventMessageReceived, incoming("m2", "2", baseTime.Add(time.Second))); err != nil {
		t.Fatal(err)
	}
	f.store.Wait()

	convs := f.store.Conversations()
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	c := convs[0]
	if c.Contact.ID != "2" || c.Contact.Name != "Bruna" {
		t.Errorf("conversation = %+v, want detail of contact 2", c.Contact)
	}
	if c.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", c.UnreadCount)
	}
	if c.LastMessage == nil || c.LastMessage.ID != "m2" {
		t.Errorf("last message = %+v, want m2", c.LastMessage)
	}
	if n := f.api.count("GetConversation"); n != 1 {
		t.Errorf("detail fetches = %d, want 1", n)
	}
}

func TestIncomingBurstForUnknownContact(t *testing.T) {
	f := newFixture(t)
	f.api.details["4"] = conv("4", time.Time{}, 0)

	for i := range 3 {
		id := fmt.Sprintf("m%d", i)
		if _, err := f.tr.Emit(transport.EventMessageReceived, incoming(id, "4", baseTime.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}
	f.store.Wait()

	convs := f.store.Conversations()
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	if convs[0].UnreadCount != 3 {
		t.Errorf("unread = %d, want 3", convs[0].UnreadCount)
	}
	if convs[0].LastMessage == nil || convs[0].LastMessage.ID != "m2" {
		t.Errorf("last message = %+v, want m2", convs[0].LastMessage)
	}
}

func TestIncomingMessageDetailFailureSynthesizesConversation(t *testing.T) {
	f := newFixture(t)
	f.api.detailErr = errBoom

	if _, err := f.tr.Emit(transport.EventMessageReceived, incoming("m1", "3", baseTime)); err != nil {
		t.Fatal(err)
	}
	f.store.Wait()

	c, ok := f.store.Conversation("3")
	if !ok {
		t.Fatal("conversation 3 missing")
	}
	if c.UnreadCount != 1 || c.LastMessage == nil || c.LastMessage.ID != "m1" || !c.LastActivity.Equal(baseTime) {
		t.Errorf("conversation = %+v", c)
	}
	if f.store.Err(CategoryConversations) == "" {
		t.Error("conversations error not recorded")
	}
}

func TestDuplicateIncomingMessageIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.loadConversations(t, conv("1", baseTime.Add(-time.Hour), 0))

	for range 2 {
		if _, err := f.tr.Emit(transport.EventMessageReceived, incoming("m1", "1", baseTime)); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(f.store.Messages(model.ContactKey("1"))); n != 1 {
		t.Errorf("messages = %d, want 1", n)
	}
	c, _ := f.store.Conversation("1")
	if c.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", c.UnreadCount)
	}
}

func TestMalformedPayloadsAreDropped(t *testing.T) {
	f := newFixture(t)
	events := map[string]string{
		transport.EventMessageReceived:     `{"body":"no id"}`,
		transport.EventMessageSent:         `not json`,
		transport.EventMessageStatusUpdate: `{"status":"read"}`,
		transport.EventTypingStart:         `{"user":"ana"}`,
		transport.EventConversationUpdated: `[]`,
	}
	for event, payload := range events {
		if n, err := f.tr.Emit(event, payload); err != nil || n != 1 {
			t.Errorf("%s: handled by %d handlers, err %v", event, n, err)
		}
	}
	f.store.Wait()
	if n := len(f.store.Conversations()); n != 0 {
		t.Errorf("conversations = %d, want 0", n)
	}
	if err := f.store.HandleIncomingMessage(context.Background(), []byte(`{}`)); err == nil {
		t.Error("HandleIncomingMessage accepted a payload without id")
	}
}

func TestStatusUpdateFromTransport(t *testing.T) {
	f := newFixture(t)
	m := msg("42", "1", baseTime, model.Outgoing)
	m.TicketID = "t1"
	f.store.AddMessage(m)

	if _, err := f.tr.Emit(transport.EventMessageStatusUpdate, `{"message_id":42,"status":"delivered"}`); err != nil {
		t.Fatal(err)
	}
	for _, key := range []model.Key{model.ContactKey("1"), model.TicketKey("t1")} {
		if got := f.store.Messages(key); len(got) != 1 || got[0].Status != model.StatusDelivered {
			t.Errorf("%s = %+v, want delivered", key, got)
		}
	}
}

func TestConversationUpdated(t *testing.T) {
	f := newFixture(t)
	f.loadConversations(t, conv("1", baseTime.Add(-time.Hour), 2))
	f.api.details["5"] = conv("5", baseTime, 0)

	if _, err := f.tr.Emit(transport.EventConversationUpdated,
		`{"contact_id":"1","status":"resolved","labels":["vip"],"unread_count":9,"assigned_agent":"ana"}`); err != nil {
		t.Fatal(err)
	}
	c, _ := f.store.Conversation("1")
	if c.Status != model.StatusResolved || c.AssignedAgent != "ana" {
		t.Errorf("conversation = %+v", c)
	}
	if len(c.Labels) != 1 || c.Labels[0].Name != "vip" {
		t.Errorf("labels = %+v, want [vip]", c.Labels)
	}
	if c.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2 (pushed counts are not applied)", c.UnreadCount)
	}

	// Conversation ids resolve through the alias index.
	if err := f.store.HandleConversationUpdated(context.Background(), []byte(`{"id":"c1","status":"closed"}`)); err != nil {
		t.Fatal(err)
	}
	if c, _ := f.store.Conversation("1"); c.Status != model.StatusClosed {
		t.Errorf("status = %s, want closed", c.Status)
	}

	if _, err := f.tr.Emit(transport.EventConversationUpdated, `{"contact_id":"5","status":"active"}`); err != nil {
		t.Fatal(err)
	}
	f.store.Wait()
	if _, ok := f.store.Conversation("5"); !ok {
		t.Error("unknown conversation was not fetched")
	}
	if n := len(f.store.Conversations()); n != 2 {
		t.Errorf("conversations = %d, want 2", n)
	}
}

func TestTypingSets(t *testing.T) {
	f := newFixture(t)
	key := model.ContactKey("1")

	f.store.HandleTypingStart(key, "ana")
	f.store.HandleTypingStart(key, "bia")
	f.store.HandleTypingStart(key, "ana")
	if got := f.store.Typing(key); !slices.Equal(got, []string{"bia", "ana"}) {
		t.Errorf("typing = %v, want [bia ana]", got)
	}
	f.store.HandleTypingStop(key, "bia")
	if got := f.store.Typing(key); !slices.Equal(got, []string{"ana"}) {
		t.Errorf("typing = %v, want [ana]", got)
	}

	if _, err := f.tr.Emit(transport.EventTypingStop, `{"contact_id":"1","user":"ana"}`); err != nil {
		t.Fatal(err)
	}
	if got := f.store.Typing(key); len(got) != 0 {
		t.Errorf("typing = %v, want empty", got)
	}

	if _, err := f.tr.Emit(transport.EventTypingStart, `{"contact_id":"1","ticket_id":"t9"}`); err != nil {
		t.Fatal(err)
	}
	if got := f.store.Snapshot().Typing[model.TicketKey("t9")]; !slices.Equal(got, []string{"unknown"}) {
		t.Errorf("ticket typing = %v, want [unknown]", got)
	}
}

func TestTypingWithTicketReachesContactSelection(t *testing.T) {
	f := newFixture(t)
	f.loadConversations(t, conv("1", baseTime, 0))
	if err := f.store.SelectConversation(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	sel, _ := f.store.Active()
	if sel.Key != model.ContactKey("1") {
		t.Fatalf("selection key = %s, want contact:1", sel.Key)
	}

	if _, err := f.tr.Emit(transport.EventTypingStart, `{"ticket_id":"t9","contact_id":"1","user_name":"ana"}`); err != nil {
		t.Fatal(err)
	}
	snap := f.store.Snapshot()
	if got := snap.Typing[sel.Key]; !slices.Equal(got, []string{"ana"}) {
		t.Errorf("typing on selection = %v, want [ana]", got)
	}
	if got := snap.Typing[model.TicketKey("t9")]; !slices.Equal(got, []string{"ana"}) {
		t.Errorf("typing on ticket = %v, want [ana]", got)
	}

	if _, err := f.tr.Emit(transport.EventTypingStop, `{"ticket_id":"t9","contact_id":"1","user_name":"ana"}`); err != nil {
		t.Fatal(err)
	}
	if got := f.store.Snapshot().Typing; len(got) != 0 {
		t.Errorf("typing = %v, want empty after stop", got)
	}
}

func TestConversationUpdatedTicketVariant(t *testing.T) {
	f := newFixture(t)
	f.loadConversations(t, conv("1", baseTime, 0))
	if err := f.store.SelectConversation(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.tr.Emit(transport.EventConversationUpdated,
		`{"contact_id":"1","ticket":{"id":"t3","status":"open"}}`); err != nil {
		t.Fatal(err)
	}
	if c, _ := f.store.Conversation("1"); c.Ticket == nil || c.Ticket.ID != "t3" {
		t.Errorf("conversation ticket = %+v, want t3", c.Ticket)
	}
	if sel, _ := f.store.Active(); sel.Ticket == nil || sel.Ticket.ID != "t3" {
		t.Errorf("selection ticket = %+v, want t3", sel.Ticket)
	}
}
