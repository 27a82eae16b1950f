package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/inbox/internal/bus"
)

// State is the state of the live event link.
type State string

const (
	Offline      State = "OFFLINE"
	Connecting   State = "CONNECTING"
	Online       State = "ONLINE"
	Reconnecting State = "RECONNECTING"
	Stopped      State = "STOPPED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Offline:      {Connecting, Stopped},
	Connecting:   {Online, Reconnecting, Stopped},
	Online:       {Reconnecting, Stopped},
	Reconnecting: {Connecting, Stopped},
	Stopped:      {Connecting},
}

// Machine tracks and enforces link state transitions.
type Machine struct {
	mu       sync.RWMutex
	current  State
	since    time.Time
	attempts int
	bus      *bus.Bus
	now      func() time.Time
}

// NewMachine creates a new state machine starting in Offline state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Offline,
		since:   time.Now(),
		bus:     b,
		now:     time.Now,
	}
}

// Current returns the current state. A nil machine is always Offline.
func (m *Machine) Current() State {
	if m == nil {
		return Offline
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current state, when it was entered and the number of
// connection attempts since the link was last online.
func (m *Machine) Snapshot() Link {
	if m == nil {
		return Link{State: Offline}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Link{State: m.current, Since: m.since, Attempts: m.attempts}
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.since = m.now()
	switch to {
	case Connecting:
		m.attempts++
	case Online, Stopped:
		m.attempts = 0
	}
	change := Change{From: from, To: to, Attempts: m.attempts}
	m.mu.Unlock()

	m.bus.Publish(bus.Event{
		Kind:      bus.KindLinkChanged,
		Timestamp: time.Now(),
		Payload:   change,
	})
	return nil
}

// Link is a point-in-time view of the machine.
type Link struct {
	State    State
	Since    time.Time
	Attempts int
}

// Change is the payload for link change events.
type Change struct {
	From     State
	To       State
	Attempts int
}
