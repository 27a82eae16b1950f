package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/view"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// listAPI serves a fixed conversation list; other calls are not expected.
type listAPI struct {
	store.API
	convs []model.Conversation
}

func (f *listAPI) ListConversations(context.Context) ([]model.Conversation, error) {
	return f.convs, nil
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	convs := conversations("1:Ana Souza", "2:Bruno", "3:Carla")
	for i := range convs {
		convs[i].ID = "c" + convs[i].Contact.ID
		convs[i].LastActivity = now.Add(-time.Duration(i) * time.Minute)
	}
	st := store.New(store.Options{API: &listAPI{convs: convs}, Now: func() time.Time { return now }})
	if err := st.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}
	a := NewApp(Options{Store: st, Profile: "test", Agent: "ops"})
	t.Cleanup(func() {
		a.cancel()
		st.Close()
	})
	a.refresh()
	return a
}

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestListFilterAndSort(t *testing.T) {
	a := newTestApp(t)
	if got := a.list.ContactAt(1); got != "1" {
		t.Fatalf("first row = %q, want most recent contact 1", got)
	}

	a.applyFilter("bru")
	if got, rest := a.list.ContactAt(1), a.list.ContactAt(2); got != "2" || rest != "" {
		t.Errorf("filtered rows = %q,%q, want only 2", got, rest)
	}
	a.back()
	if a.uiState.Search != "" || a.list.ContactAt(3) == "" {
		t.Errorf("back on the list did not clear the filter")
	}

	a.execute(ParseCommand("sort name"))
	if a.sortKey != view.SortName {
		t.Errorf("sort = %s, want name", a.sortKey)
	}
	a.cycleSort()
	if a.sortKey != view.SortTime {
		t.Errorf("sort after cycle = %s, want time", a.sortKey)
	}
}

func TestKeysOpenPrompts(t *testing.T) {
	a := newTestApp(t)

	if ev := a.capture(key('/')); ev != nil {
		t.Fatal("'/' not handled on the list")
	}
	if a.prompt.Mode() != ui.PromptFilter || !a.prompt.HasFocus() {
		t.Errorf("filter prompt not active")
	}
	if ev := a.capture(key('x')); ev == nil {
		t.Error("typing into the prompt was swallowed")
	}
	a.hidePrompt()

	a.capture(key(':'))
	if a.prompt.Mode() != ui.PromptCommand {
		t.Errorf("prompt mode = %v, want command", a.prompt.Mode())
	}
	a.hidePrompt()
}

func TestCommandsNavigate(t *testing.T) {
	a := newTestApp(t)

	a.execute(ParseCommand("help"))
	if got := a.pages.Current(); got != pageHelp {
		t.Fatalf("page = %q, want help", got)
	}
	a.back()
	if got := a.pages.Current(); got != pageList {
		t.Errorf("page after back = %q, want list", got)
	}

	a.execute(ParseCommand("open nobody"))
	if f := a.flash.Current(); f == nil || !strings.Contains(f.Text, "nobody") {
		t.Errorf("flash = %+v, want a no-match warning", f)
	}

	a.execute(ParseCommand("frobnicate"))
	if f := a.flash.Current(); f == nil || f.Level != ui.FlashWarn {
		t.Errorf("flash = %+v, want unknown command warning", f)
	}

	a.execute(ParseCommand("note"))
	if a.prompt.Mode() != ui.PromptNote {
		t.Errorf("prompt mode = %v, want note", a.prompt.Mode())
	}
}
