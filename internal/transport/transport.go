package transport

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Events pushed by the server.
const (
	EventMessageReceived     = "message_received"
	EventMessageSent         = "message_sent"
	EventMessageStatusUpdate = "message_status_update"
	EventTypingStart         = "typing_start"
	EventTypingStop          = "typing_stop"
	EventConversationUpdated = "conversation_updated"
)

// Control frames sent to the server.
const (
	controlJoinRoom  = "join_room"
	controlLeaveRoom = "leave_room"
)

// GlobalRoom carries broadcast notifications.
const GlobalRoom = "global"

// Handler receives the data object of one event.
type Handler func(data json.RawMessage)

// HandlerID identifies a registered handler for Off.
type HandlerID uint64

// Transport is a live event connection organised in rooms.
type Transport interface {
	On(event string, h Handler) HandlerID
	// Off removes the given handlers, or every handler of the event when no id is given.
	Off(event string, ids ...HandlerID)
	JoinRoom(room string) error
	LeaveRoom(room string) error
}

// Frame is one message on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	TS    int64           `json:"ts"`
}

type roomRequest struct {
	Room string `json:"room"`
}

// registry holds handlers and joined rooms; both adapters embed it.
type registry struct {
	mu       sync.RWMutex
	next     HandlerID
	handlers map[string]map[HandlerID]Handler
	rooms    map[string]struct{}
	log      *zap.Logger
}

func (r *registry) init(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	r.handlers = make(map[string]map[HandlerID]Handler)
	r.rooms = make(map[string]struct{})
	r.log = log
}

func (r *registry) On(event string, h Handler) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	if r.handlers[event] == nil {
		r.handlers[event] = make(map[HandlerID]Handler)
	}
	r.handlers[event][id] = h
	return id
}

func (r *registry) Off(event string, ids ...HandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(ids) == 0 {
		delete(r.handlers, event)
		return
	}
	for _, id := range ids {
		delete(r.handlers[event], id)
	}
	if len(r.handlers[event]) == 0 {
		delete(r.handlers, event)
	}
}

// HandlerCount returns the number of handlers registered for an event.
func (r *registry) HandlerCount(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Rooms returns the joined rooms in sorted order.
func (r *registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// addRoom records a room and reports whether it was new.
func (r *registry) addRoom(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room]; ok {
		return false
	}
	r.rooms[room] = struct{}{}
	return true
}

// removeRoom forgets a room and reports whether it was joined.
func (r *registry) removeRoom(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room]; !ok {
		return false
	}
	delete(r.rooms, room)
	return true
}

// dispatch calls every handler of the event in registration order. A panicking
// handler is logged and does not stop the others.
func (r *registry) dispatch(event string, data json.RawMessage) int {
	r.mu.RLock()
	hs := r.handlers[event]
	ids := make([]HandlerID, 0, len(hs))
	for id := range hs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	calls := make([]Handler, len(ids))
	for i, id := range ids {
		calls[i] = hs[id]
	}
	r.mu.RUnlock()

	for _, h := range calls {
		r.safeCall(event, h, data)
	}
	return len(calls)
}

func (r *registry) safeCall(event string, h Handler, data json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("transport handler panicked", zap.String("event", event), zap.String("panic", fmt.Sprint(rec)))
		}
	}()
	h(data)
}
