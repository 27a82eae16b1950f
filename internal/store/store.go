package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/localdb"
	"github.com/matheus3301/inbox/internal/metrics"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/rest"
	"github.com/matheus3301/inbox/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// API is the subset of the REST client the store depends on.
type API interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	GetConversation(ctx context.Context, contactID string) (model.Conversation, error)
	ListMessages(ctx context.Context, q rest.MessageQuery) (model.MessagePage, error)
	SendMessage(ctx context.Context, out model.OutgoingMessage, progress rest.ProgressFunc) (model.SendReceipt, error)
	MarkRead(ctx context.Context, key model.Key) error
	SearchMessages(ctx context.Context, q string, limit int) ([]model.Message, error)

	ListTickets(ctx context.Context, contactID string) ([]model.Ticket, error)
	CurrentTicket(ctx context.Context, contactID string) (*model.Ticket, error)
	CreateTicket(ctx context.Context, contactID string) (model.Ticket, error)

	ListQuickReplies(ctx context.Context) ([]model.QuickReply, error)
	SaveQuickReply(ctx context.Context, qr model.QuickReply) (model.QuickReply, error)
	DeleteQuickReply(ctx context.Context, id string) error
	ListNotes(ctx context.Context, contactID string) ([]model.Note, error)
	CreateNote(ctx context.Context, contactID, content string) (model.Note, error)
	DeleteNote(ctx context.Context, contactID, noteID string) error
	GetDraft(ctx context.Context, contactID string) (string, error)
	PutDraft(ctx context.Context, contactID, body string) error
	DeleteDraft(ctx context.Context, contactID string) error
}

// LocalStore is the client-local persistence used for drafts, the send
// journal and sync checkpoints.
type LocalStore interface {
	GetDraft(contactID string) (localdb.Draft, bool, error)
	PutDraft(contactID, body string) error
	JournalQueued(tempID, contactID, ticketID, body string) error
	JournalSent(tempID, serverID string) error
	JournalFailed(tempID, errMsg string) error
	FailedSends(contactID string) ([]localdb.JournalEntry, error)
	SetTimeCheckpoint(key string, t time.Time) error
}

var (
	_ API        = (*rest.Client)(nil)
	_ LocalStore = (*localdb.DB)(nil)
)

// Options configures a Store. API is required; everything else is optional.
type Options struct {
	API              API
	Transport        transport.Transport
	Bus              *bus.Bus
	Local            LocalStore
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
	Now              func() time.Time
	PageSize         int
	Mode             model.KeyKind
	AutoCreateTicket bool
	Thresholds       classify.Thresholds
}

const (
	defaultPageSize   = 50
	pendingStatusCap  = 512
	searchResultLimit = 50

	checkpointConversations = "conversations.loaded_at"
)

// Store is the single source of truth for conversations, messages, the
// active selection and the loading and error state.
type Store struct {
	api        API
	tr         transport.Transport
	bus        *bus.Bus
	local      LocalStore
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	pageSize   int
	mode       model.KeyKind
	autoTicket bool
	th         classify.Thresholds

	mu       sync.RWMutex
	messages map[string]*model.Message
	index    map[model.Key][]string
	pages    map[model.Key]map[int]bool
	cursors  map[model.Key]Cursor
	loading  map[model.Key]int
	convs    map[string]*model.Conversation
	aliases  map[string]string
	groups   classify.Groups
	active   *Selection

	typing  map[model.Key][]string
	uploads map[string]Upload
	pending map[string]pendingStatus
	queue   []string

	loadingConvs bool
	sending      int
	errs         map[ErrorCategory]string
	lastErr      string
	lastErrCat   ErrorCategory

	tickets      map[string][]model.Ticket
	notes        map[string][]model.Note
	quickReplies []model.QuickReply

	sf       singleflight.Group
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
	handlers map[string]transport.HandlerID
}

type pendingStatus struct {
	status model.DeliveryStatus
	readAt *time.Time
}

// New creates a store. Call Start to attach it to the live transport.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = bus.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Mode == "" {
		opts.Mode = model.KindContact
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		api:        opts.API,
		tr:         opts.Transport,
		bus:        opts.Bus,
		local:      opts.Local,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
		pageSize:   opts.PageSize,
		mode:       opts.Mode,
		autoTicket: opts.AutoCreateTicket,
		th:         opts.Thresholds,
		messages:   make(map[string]*model.Message),
		index:      make(map[model.Key][]string),
		pages:      make(map[model.Key]map[int]bool),
		cursors:    make(map[model.Key]Cursor),
		loading:    make(map[model.Key]int),
		convs:      make(map[string]*model.Conversation),
		aliases:    make(map[string]string),
		groups:     classify.Groups{},
		typing:     make(map[model.Key][]string),
		uploads:    make(map[string]Upload),
		pending:    make(map[string]pendingStatus),
		errs:       make(map[ErrorCategory]string),
		tickets:    make(map[string][]model.Ticket),
		notes:      make(map[string][]model.Note),
		ctx:        ctx,
		cancel:     cancel,
		handlers:   make(map[string]transport.HandlerID),
	}
}

// Mode returns the message grouping mode.
func (s *Store) Mode() model.KeyKind { return s.mode }

// Bus returns the bus the store publishes change events on.
func (s *Store) Bus() *bus.Bus { return s.bus }

// Subscribe returns a channel of store change events. Events are
// notifications only; read the new state with Snapshot or the selectors.
func (s *Store) Subscribe(bufSize int) (<-chan bus.Event, func()) {
	return s.bus.Subscribe("store.", bufSize)
}

// Start registers the transport handlers and joins the global room.
func (s *Store) Start() error {
	if s.tr == nil {
		return nil
	}
	on := map[string]transport.Handler{
		transport.EventMessageReceived:     s.onMessageReceived,
		transport.EventMessageSent:         s.onMessageSent,
		transport.EventMessageStatusUpdate: s.onStatusUpdate,
		transport.EventTypingStart:         s.onTypingStart,
		transport.EventTypingStop:          s.onTypingStop,
		transport.EventConversationUpdated: s.onConversationUpdated,
	}
	s.mu.Lock()
	for event, h := range on {
		if _, ok := s.handlers[event]; ok {
			continue
		}
		s.handlers[event] = s.tr.On(event, h)
	}
	s.mu.Unlock()

	if err := s.tr.JoinRoom(transport.GlobalRoom); err != nil {
		s.fail(CategoryTransport, err)
		return err
	}
	return nil
}

// Close unregisters transport handlers and waits for background fetches.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handlers := s.handlers
	s.handlers = make(map[string]transport.HandlerID)
	s.mu.Unlock()

	if s.tr != nil {
		for event, id := range handlers {
			s.tr.Off(event, id)
		}
	}
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until background work started by transport events finishes.
func (s *Store) Wait() {
	s.wg.Wait()
}

// background runs fn on its own goroutine, tracked for Close and Wait.
func (s *Store) background(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Store) emit(kinds ...string) {
	for _, k := range kinds {
		s.bus.Emit(k, nil)
	}
}

func (s *Store) onMessageReceived(data json.RawMessage) {
	s.metrics.TransportEvent(transport.EventMessageReceived)
	m, err := s.parseMessage(data, model.Incoming)
	if err != nil {
		s.log.Warn("dropping malformed message", zap.String("event", transport.EventMessageReceived), zap.Error(err))
		return
	}
	if s.ingest(m) {
		s.background(func(ctx context.Context) { s.attachConversation(ctx, m) })
	}
}

// onMessageSent handles echoes of agent messages. The payload is either the
// full message or a bare status receipt.
func (s *Store) onMessageSent(data json.RawMessage) {
	s.metrics.TransportEvent(transport.EventMessageSent)
	if m, err := s.parseMessage(data, model.Outgoing); err == nil {
		if s.ingest(m) {
			s.background(func(ctx context.Context) { s.attachConversation(ctx, m) })
		}
		return
	}
	s.applyStatusPayload(transport.EventMessageSent, data)
}

func (s *Store) onStatusUpdate(data json.RawMessage) {
	s.metrics.TransportEvent(transport.EventMessageStatusUpdate)
	s.applyStatusPayload(transport.EventMessageStatusUpdate, data)
}

func (s *Store) onTypingStart(data json.RawMessage) {
	s.metrics.TransportEvent(transport.EventTypingStart)
	t, err := parseTyping(data)
	if err != nil {
		s.log.Warn("dropping malformed typing event", zap.String("event", transport.EventTypingStart), zap.Error(err))
		return
	}
	for _, k := range t.Keys {
		s.HandleTypingStart(k, t.User)
	}
}

func (s *Store) onTypingStop(data json.RawMessage) {
	s.metrics.TransportEvent(transport.EventTypingStop)
	t, err := parseTyping(data)
	if err != nil {
		s.log.Warn("dropping malformed typing event", zap.String("event", transport.EventTypingStop), zap.Error(err))
		return
	}
	for _, k := range t.Keys {
		s.HandleTypingStop(k, t.User)
	}
}

func (s *Store) onConversationUpdated(data json.RawMessage) {
	s.metrics.TransportEvent(transport.EventConversationUpdated)
	p, err := parsePatch(data)
	if err != nil {
		s.log.Warn("dropping malformed conversation update", zap.String("event", transport.EventConversationUpdated), zap.Error(err))
		return
	}
	if !s.applyPatch(p) {
		s.background(func(ctx context.Context) { s.fetchConversation(ctx, p.ContactID) })
	}
}
