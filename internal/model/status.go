package model

import (
	"fmt"
	"slices"
)

// DeliveryStatus is the delivery state of a message.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
	StatusReceived  DeliveryStatus = "received"
)

// validTransitions defines allowed delivery status transitions.
// read and failed are terminal.
var validTransitions = map[DeliveryStatus][]DeliveryStatus{
	StatusSent:      {StatusDelivered, StatusRead, StatusFailed},
	StatusDelivered: {StatusRead},
	StatusReceived:  {StatusRead},
	StatusRead:      {},
	StatusFailed:    {},
}

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusRead || s == StatusFailed
}

// CanTransition reports whether a message may move from one status to another.
func CanTransition(from, to DeliveryStatus) bool {
	return slices.Contains(validTransitions[from], to)
}

// Transition validates a status change. A same-status change is not an error.
func Transition(from, to DeliveryStatus) (DeliveryStatus, error) {
	if from == to {
		return from, nil
	}
	if !CanTransition(from, to) {
		return from, fmt.Errorf("invalid delivery transition from %s to %s", from, to)
	}
	return to, nil
}
