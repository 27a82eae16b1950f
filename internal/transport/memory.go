package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Memory is an in-process transport. Emit delivers events synchronously.
type Memory struct {
	registry

	mu      sync.Mutex
	joins   map[string]int
	failFor map[string]error
}

var _ Transport = (*Memory)(nil)

// NewMemory creates an in-process transport.
func NewMemory(log *zap.Logger) *Memory {
	m := &Memory{
		joins:   make(map[string]int),
		failFor: make(map[string]error),
	}
	m.registry.init(log)
	return m
}

// Emit delivers payload to the handlers of event. payload may be raw JSON
// bytes, a json.RawMessage, a string of JSON or any value to marshal.
// It returns the number of handlers called.
func (m *Memory) Emit(event string, payload any) (int, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	case string:
		data = json.RawMessage(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return 0, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		data = b
	}
	return m.dispatch(event, data), nil
}

func (m *Memory) JoinRoom(room string) error {
	m.mu.Lock()
	err := m.failFor[room]
	if err == nil {
		m.joins[room]++
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.addRoom(room)
	return nil
}

func (m *Memory) LeaveRoom(room string) error {
	m.removeRoom(room)
	return nil
}

// JoinCount returns how many times JoinRoom was called for room.
func (m *Memory) JoinCount(room string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joins[room]
}

// FailJoin makes JoinRoom return err for room. A nil err clears it.
func (m *Memory) FailJoin(room string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failFor, room)
		return
	}
	m.failFor[room] = err
}
