package tui

import (
	"strings"
	"testing"

	"github.com/matheus3301/inbox/internal/model"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"quit", Command{Name: "quit"}},
		{"q", Command{Name: "quit"}},
		{":search  refund policy ", Command{Name: "search", Args: "refund policy"}},
		{"S invoice", Command{Name: "search", Args: "invoice"}},
		{"open Ana Souza", Command{Name: "open", Args: "Ana Souza"}},
		{"resend tmp-1", Command{Name: "resend", Args: "tmp-1"}},
		{"sort unread", Command{Name: "sort", Args: "unread"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.input); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestFindContact(t *testing.T) {
	convs := conversations("1:Ana Souza", "2:Bruno", "3:anabela")
	tests := []struct {
		query string
		want  string
	}{
		{"2", "2"},
		{"bruno", "2"},
		{"ana souza", "1"},
		{"anab", "3"},
		{"ana", "1"},
		{"zed", ""},
	}
	for _, tt := range tests {
		if got := findContact(convs, tt.query); got != tt.want {
			t.Errorf("findContact(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func conversations(specs ...string) []model.Conversation {
	out := make([]model.Conversation, 0, len(specs))
	for _, s := range specs {
		id, name, _ := strings.Cut(s, ":")
		out = append(out, model.Conversation{Contact: model.Contact{ID: id, Name: name}})
	}
	return out
}
