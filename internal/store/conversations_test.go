package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/rest"
	"github.com/matheus3301/inbox/internal/transport"
)

func TestLoadConversationsMergesByID(t *testing.T) {
	f := newFixture(t)
	f.loadConversations(t, conv("1", baseTime.Add(-time.Hour), 0), conv("2", baseTime.Add(-2*time.Hour), 3))

	// A live message makes the local copy of 1 newer than the next snapshot.
	if err := f.store.HandleIncomingMessage(context.Background(), []byte(`{"id":"m1","contact_id":"1","body":"hey","timestamp":"2026-05-01T12:00:00Z"}`)); err != nil {
		t.Fatal(err)
	}

	stale := conv("1", baseTime.Add(-time.Hour), 0)
	stale.Contact.Name = "Renamed"
	fresh := conv("2", baseTime.Add(-time.Minute), 5)
	f.loadConversations(t, stale, fresh, conv("3", baseTime.Add(-3*time.Hour), 0))

	c1, _ := f.store.Conversation("1")
	if c1.UnreadCount != 1 || !c1.LastActivity.Equal(baseTime) {
		t.Errorf("conversation 1 = unread %d activity %v, want local state kept", c1.UnreadCount, c1.LastActivity)
	}
	if c1.Contact.Name != "Renamed" {
		t.Errorf("contact name = %q, want refreshed from server", c1.Contact.Name)
	}
	c2, _ := f.store.Conversation("2")
	if c2.UnreadCount != 5 {
		t.Errorf("conversation 2 unread = %d, want server value 5", c2.UnreadCount)
	}

	// Conversations missing from a later snapshot stay.
	f.loadConversations(t, conv("1", baseTime.Add(-time.Hour), 0))
	if n := len(f.store.Conversations()); n != 3 {
		t.Errorf("conversations = %d, want 3", n)
	}
	if f.api.count("GetConversation") != 0 {
		t.Error("known conversation triggered a detail fetch")
	}
}

func TestLoadConversationsError(t *testing.T) {
	f := newFixture(t)
	f.api.listErr = errBoom
	if err := f.store.LoadConversations(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}
	st := f.store.Snapshot()
	if st.Errors[CategoryConversations] == "" || st.Loading.Conversations {
		t.Errorf("state = %+v, want error recorded and loading cleared", st)
	}
}

func TestSnapshotIsSortedDeepCopy(t *testing.T) {
	f := newFixture(t)
	f.loadConversations(t, conv("old", baseTime.Add(-time.Hour), 0), conv("new", baseTime, 0))

	st := f.store.Snapshot()
	if len(st.Conversations) != 2 || st.Conversations[0].Contact.ID != "new" {
		t.Fatalf("conversations = %+v, want most recent first", st.Conversations)
	}
	st.Conversations[0].Contact.Name = "mutated"
	if c, _ := f.store.Conversation("new"); c.Contact.Name == "mutated" {
		t.Error("snapshot shares memory with the store")
	}
}

func TestGroupConversationsClassifies(t *testing.T) {
	f := newFixture(t)
	resolved := conv("r", baseTime, 0)
	resolved.Status = model.StatusResolved
	f.loadConversations(t,
		conv("overdue", baseTime.Add(-150*time.Minute), 1),
		conv("urgent", baseTime.Add(-45*time.Minute), 1),
		conv("edge", baseTime.Add(-30*time.Minute), 1),
		conv("quiet", baseTime.Add(-time.Minute), 0),
		resolved,
	)

	g := f.store.GroupConversations()
	tests := []struct {
		contact string
		want    classify.Bucket
	}{
		{"overdue", classify.BucketOverdue},
		{"urgent", classify.BucketUrgent},
		{"edge", classify.BucketNormal},
		{"quiet", classify.BucketNone},
		{"r", classify.BucketResolved},
	}
	for _, tt := range tests {
		if got := g.Of(tt.contact); got != tt.want {
			t.Errorf("%s: bucket = %s, want %s", tt.contact, got, tt.want)
		}
	}

	// Time passing moves a conversation between buckets on regroup.
	f.clock.Set(baseTime.Add(time.Hour))
	if got := f.store.GroupConversations().Of("edge"); got != classify.BucketUrgent {
		t.Errorf("edge after an hour = %s, want %s", got, classify.BucketUrgent)
	}
}

func TestSelectConversationSwitchesRoomsAndClearsEphemeralState(t *testing.T) {
	f := newFixture(t)
	f.loadConversations(t, conv("1", baseTime, 0), conv("2", baseTime, 0))
	ctx := context.Background()

	if err := f.store.SelectConversation(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if got := f.tr.Rooms(); !slices.Equal(got, []string{"contact:1", transport.GlobalRoom}) {
		t.Errorf("rooms = %v", got)
	}
	f.store.SetSearchText("invoice")
	f.store.SetReplyTo("m1")
	f.store.SetRecording(true)

	if err := f.store.SelectConversation(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	sel, ok := f.store.Active()
	if !ok || sel.ContactID != "2" || sel.Key != model.ContactKey("2") {
		t.Fatalf("selection = %+v", sel)
	}
	if sel.SearchText != "" || sel.ReplyTo != "" || sel.Recording {
		t.Errorf("ephemeral state not cleared: %+v", sel)
	}
	if got := f.tr.Rooms(); !slices.Equal(got, []string{"contact:2", transport.GlobalRoom}) {
		t.Errorf("rooms = %v, want contact:1 left", got)
	}

	calls := f.api.count("ListMessages")
	if err := f.store.SelectConversation(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	if got := f.api.count("ListMessages"); got != calls {
		t.Errorf("reselecting reloaded messages: %d calls, want %d", got, calls)
	}
	if got := f.tr.Rooms(); !slices.Equal(got, []string{"contact:2", transport.GlobalRoom}) {
		t.Errorf("rooms after reselect = %v", got)
	}

	f.store.ClearSelection()
	if _, ok := f.store.Active(); ok {
		t.Error("selection not cleared")
	}
	if got := f.tr.Rooms(); !slices.Equal(got, []string{transport.GlobalRoom}) {
		t.Errorf("rooms after clear = %v", got)
	}
	if f.store.SetSearchText("x") {
		t.Error("SetSearchText without a selection = true")
	}
}

// TestSelectWhileTicketPushed switches conversations while transport pushes
// ticket updates for the selected one. Run with -race.
func TestSelectWhileTicketPushed(t *testing.T) {
	f := newFixture(t)
	f.loadConversations(t, conv("1", baseTime, 0), conv("2", baseTime, 0))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 200 {
			if err := f.store.SelectConversation(ctx, []string{"1", "2"}[i%2]); err != nil {
				t.Errorf("SelectConversation() error = %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 200 {
			payload := fmt.Sprintf(`{"contact_id":"%d","current_ticket":{"id":"t%d","status":"open"}}`, i%2+1, i)
			if err := f.store.HandleConversationUpdated(ctx, []byte(payload)); err != nil {
				t.Errorf("HandleConversationUpdated() error = %v", err)
				return
			}
		}
	}()
	wg.Wait()

	sel, ok := f.store.Active()
	if !ok || sel.ContactID != "2" {
		t.Fatalf("selection = %+v, want contact 2", sel)
	}
	if got := f.tr.Rooms(); !slices.Equal(got, []string{"contact:2", transport.GlobalRoom}) {
		t.Errorf("rooms = %v, want only contact:2 and global", got)
	}
}

func TestSelectConversationTicketMode(t *testing.T) {
	tests := []struct {
		name      string
		createErr error
		wantKey   model.Key
	}{
		{"ticket created", nil, model.TicketKey("t-1")},
		{"creation fails", errBoom, model.ContactKey("1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(o *Options) {
				o.Mode = model.KindTicket
				o.AutoCreateTicket = true
			})
			f.loadConversations(t, conv("1", baseTime, 0))
			f.api.createErr = tt.createErr
			var queried rest.MessageQuery
			f.api.onListMessages = func(q rest.MessageQuery) { queried = q }

			if err := f.store.SelectConversation(context.Background(), "1"); err != nil {
				t.Fatalf("select should succeed, got %v", err)
			}
			sel, _ := f.store.Active()
			if sel.Key != tt.wantKey {
				t.Errorf("key = %v, want %v", sel.Key, tt.wantKey)
			}
			if queried.Key != tt.wantKey || queried.ContactID != "1" {
				t.Errorf("query = %+v", queried)
			}
			if !slices.Contains(f.tr.Rooms(), tt.wantKey.Room()) {
				t.Errorf("rooms = %v, want %s joined", f.tr.Rooms(), tt.wantKey.Room())
			}
			if tt.createErr != nil && f.store.Err(CategoryTicket) == "" {
				t.Error("ticket error not recorded")
			}
			if tt.createErr == nil {
				if c, _ := f.store.Conversation("1"); c.Ticket == nil || c.Ticket.ID != "t-1" {
					t.Errorf("conversation ticket = %+v", c.Ticket)
				}
			}
		})
	}
}

func TestSelectConversationJoinFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.tr.FailJoin("contact:1", errBoom)
	if err := f.store.SelectConversation(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	if f.store.Err(CategoryTransport) == "" {
		t.Error("transport error not recorded")
	}
}

func TestSubscribeReceivesChangeEvents(t *testing.T) {
	f := newFixture(t)
	ch, unsub := f.store.Subscribe(16)
	defer unsub()

	f.loadConversations(t, conv("1", baseTime, 0))
	select {
	case evt := <-ch:
		if evt.Kind != bus.KindConversations {
			t.Errorf("kind = %q, want %q", evt.Kind, bus.KindConversations)
		}
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestStartJoinsGlobalRoomAndCloseUnregisters(t *testing.T) {
	tr := transport.NewMemory(nil)
	tr.FailJoin(transport.GlobalRoom, errBoom)
	s := New(Options{API: newFakeAPI(), Transport: tr})
	if err := s.Start(); !errors.Is(err, errBoom) {
		t.Fatalf("Start() = %v, want %v", err, errBoom)
	}
	if s.Err(CategoryTransport) == "" {
		t.Error("transport error not recorded")
	}

	tr.FailJoin(transport.GlobalRoom, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if n := tr.HandlerCount(transport.EventMessageReceived); n != 1 {
		t.Errorf("handlers = %d, want 1 after two starts", n)
	}
	s.Close()
	s.Close()
	if n := tr.HandlerCount(transport.EventMessageReceived); n != 0 {
		t.Errorf("handlers after close = %d, want 0", n)
	}
}
