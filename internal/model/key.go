package model

import (
	"fmt"
	"strings"
)

// KeyKind selects how messages are grouped: per contact or per ticket.
type KeyKind string

const (
	KindContact KeyKind = "contact"
	KindTicket  KeyKind = "ticket"
)

// Key identifies a keyed message collection.
type Key struct {
	Kind KeyKind
	ID   string
}

// ContactKey returns the key of a contact's full history.
func ContactKey(id string) Key { return Key{Kind: KindContact, ID: id} }

// TicketKey returns the key of a single ticket's messages.
func TicketKey(id string) Key { return Key{Kind: KindTicket, ID: id} }

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool { return k.ID == "" }

func (k Key) String() string { return string(k.Kind) + ":" + k.ID }

// Room returns the transport room that carries events for this key.
func (k Key) Room() string { return k.String() }

// ParseKey parses "contact:<id>" or "ticket:<id>". A bare id is a contact key.
func ParseKey(s string) (Key, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		if s == "" {
			return Key{}, fmt.Errorf("empty key")
		}
		return ContactKey(s), nil
	}
	switch KeyKind(kind) {
	case KindContact, KindTicket:
	default:
		return Key{}, fmt.Errorf("unknown key kind %q", kind)
	}
	if id == "" {
		return Key{}, fmt.Errorf("key %q has empty id", s)
	}
	return Key{Kind: KeyKind(kind), ID: id}, nil
}
