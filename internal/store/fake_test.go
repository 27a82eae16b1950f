package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/rest"
	"github.com/matheus3301/inbox/internal/transport"
)

var (
	baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	errBoom  = errors.New("boom")
)

// fakeAPI is an in-memory backend. Hooks override the default behavior.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	conversations []model.Conversation
	details       map[string]model.Conversation
	pages         map[string]model.MessagePage // key.String()+"#"+page
	current       map[string]*model.Ticket
	tickets       map[string][]model.Ticket
	drafts        map[string]string
	quickReplies  []model.QuickReply
	notes         map[string][]model.Note

	listErr    error
	detailErr  error
	messageErr error
	markErr    error
	createErr  error
	draftErr   error

	onListMessages func(q rest.MessageQuery)
	onSend         func(out model.OutgoingMessage, progress rest.ProgressFunc) (model.SendReceipt, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:   make(map[string]int),
		details: make(map[string]model.Conversation),
		pages:   make(map[string]model.MessagePage),
		current: make(map[string]*model.Ticket),
		tickets: make(map[string][]model.Ticket),
		drafts:  make(map[string]string),
		notes:   make(map[string][]model.Note),
	}
}

func (f *fakeAPI) hit(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func pageKey(k model.Key, page int) string {
	return k.String() + "#" + strconv.Itoa(page)
}

func (f *fakeAPI) setPage(k model.Key, page int, p model.MessagePage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Page = page
	f.pages[pageKey(k, page)] = p
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	f.hit("ListConversations")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Conversation, len(f.conversations))
	for i, c := range f.conversations {
		out[i] = c.Clone()
	}
	return out, nil
}

func (f *fakeAPI) GetConversation(ctx context.Context, contactID string) (model.Conversation, error) {
	f.hit("GetConversation")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return model.Conversation{}, f.detailErr
	}
	c, ok := f.details[contactID]
	if !ok {
		return model.Conversation{}, rest.ErrNotFound
	}
	return c.Clone(), nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, q rest.MessageQuery) (model.MessagePage, error) {
	f.hit("ListMessages")
	if f.onListMessages != nil {
		f.onListMessages(q)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messageErr != nil {
		return model.MessagePage{}, f.messageErr
	}
	p := f.pages[pageKey(q.Key, q.Page)]
	p.Page = q.Page
	p.Messages = append([]model.Message(nil), p.Messages...)
	return p, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, out model.OutgoingMessage, progress rest.ProgressFunc) (model.SendReceipt, error) {
	f.hit("SendMessage")
	if f.onSend != nil {
		return f.onSend(out, progress)
	}
	return model.SendReceipt{ID: "srv-" + out.TempID, Status: model.StatusSent}, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, key model.Key) error {
	f.hit("MarkRead")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markErr
}

func (f *fakeAPI) SearchMessages(ctx context.Context, q string, limit int) ([]model.Message, error) {
	f.hit("SearchMessages")
	return []model.Message{{ID: "found", ContactID: "1", Content: q}}, nil
}

func (f *fakeAPI) ListTickets(ctx context.Context, contactID string) ([]model.Ticket, error) {
	f.hit("ListTickets")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Ticket(nil), f.tickets[contactID]...), nil
}

func (f *fakeAPI) CurrentTicket(ctx context.Context, contactID string) (*model.Ticket, error) {
	f.hit("CurrentTicket")
	f.mu.Lock()
	defer f.mu.Unlock()
	if t := f.current[contactID]; t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeAPI) CreateTicket(ctx context.Context, contactID string) (model.Ticket, error) {
	f.hit("CreateTicket")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return model.Ticket{}, f.createErr
	}
	t := model.Ticket{ID: "t-" + contactID, ContactID: contactID, Status: model.StatusActive, OpenedAt: baseTime}
	f.current[contactID] = &t
	return t, nil
}

func (f *fakeAPI) ListQuickReplies(ctx context.Context) ([]model.QuickReply, error) {
	f.hit("ListQuickReplies")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.QuickReply(nil), f.quickReplies...), nil
}

func (f *fakeAPI) SaveQuickReply(ctx context.Context, qr model.QuickReply) (model.QuickReply, error) {
	f.hit("SaveQuickReply")
	if qr.ID == "" {
		qr.ID = "qr-" + qr.Shortcut
	}
	return qr, nil
}

func (f *fakeAPI) DeleteQuickReply(ctx context.Context, id string) error {
	f.hit("DeleteQuickReply")
	return nil
}

func (f *fakeAPI) ListNotes(ctx context.Context, contactID string) ([]model.Note, error) {
	f.hit("ListNotes")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Note(nil), f.notes[contactID]...), nil
}

func (f *fakeAPI) CreateNote(ctx context.Context, contactID, content string) (model.Note, error) {
	f.hit("CreateNote")
	return model.Note{ID: "n-" + content, ContactID: contactID, Content: content, CreatedAt: baseTime}, nil
}

func (f *fakeAPI) DeleteNote(ctx context.Context, contactID, noteID string) error {
	f.hit("DeleteNote")
	return nil
}

func (f *fakeAPI) GetDraft(ctx context.Context, contactID string) (string, error) {
	f.hit("GetDraft")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draftErr != nil {
		return "", f.draftErr
	}
	return f.drafts[contactID], nil
}

func (f *fakeAPI) PutDraft(ctx context.Context, contactID, body string) error {
	f.hit("PutDraft")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draftErr != nil {
		return f.draftErr
	}
	f.drafts[contactID] = body
	return nil
}

func (f *fakeAPI) DeleteDraft(ctx context.Context, contactID string) error {
	f.hit("DeleteDraft")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draftErr != nil {
		return f.draftErr
	}
	delete(f.drafts, contactID)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	api   *fakeAPI
	tr    *transport.Memory
	clock *clock
	store *Store
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		api:   newFakeAPI(),
		tr:    transport.NewMemory(nil),
		clock: &clock{now: baseTime},
	}
	opts := Options{
		API:        f.api,
		Transport:  f.tr,
		Now:        f.clock.Now,
		PageSize:   2,
		Thresholds: classify.DefaultThresholds,
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.store = New(opts)
	if err := f.store.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.store.Close)
	return f
}

func conv(contactID string, lastActivity time.Time, unread int) model.Conversation {
	return model.Conversation{
		ID:           "c" + contactID,
		Contact:      model.Contact{ID: contactID, Name: "Contact " + contactID},
		LastActivity: lastActivity,
		UnreadCount:  unread,
		Status:       model.StatusActive,
	}
}

func msg(id, contactID string, at time.Time, dir model.Direction) model.Message {
	status := model.StatusReceived
	if dir == model.Outgoing {
		status = model.StatusSent
	}
	return model.Message{
		ID:        id,
		ContactID: contactID,
		Direction: dir,
		Type:      model.TypeText,
		Content:   "body " + id,
		Status:    status,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// loadConversations seeds the fake and loads it into the store.
func (f *fixture) loadConversations(t *testing.T, convs ...model.Conversation) {
	t.Helper()
	f.api.mu.Lock()
	f.api.conversations = convs
	f.api.mu.Unlock()
	if err := f.store.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}
}
