package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/tui/ui"
)

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string // key as shown in the menu, e.g. "Enter"
	Description string
	Handler     func()
	Hidden      bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

func (a *Action) hint() ui.MenuHint {
	label := a.Label
	if label == "" {
		if a.Key == tcell.KeyRune {
			label = string(a.Rune)
		} else {
			label = tcell.KeyNames[a.Key]
		}
	}
	return ui.MenuHint{Key: label, Description: a.Description}
}

// Registry holds keybindings per page plus global ones, in registration order.
type Registry struct {
	global []*Action
	pages  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{pages: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(a *Action) {
	r.global = append(r.global, a)
}

// Add registers a binding for one page.
func (r *Registry) Add(page string, a *Action) {
	r.pages[page] = append(r.pages[page], a)
}

// Hints returns the visible bindings of page followed by the global ones.
func (r *Registry) Hints(page string) []ui.MenuHint {
	return append(r.PageHints(page), r.GlobalHints()...)
}

// PageHints returns the visible bindings registered for page only.
func (r *Registry) PageHints(page string) []ui.MenuHint {
	return visible(r.pages[page])
}

// GlobalHints returns the visible global bindings.
func (r *Registry) GlobalHints() []ui.MenuHint {
	return visible(r.global)
}

func visible(list []*Action) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, a := range list {
		if !a.Hidden {
			hints = append(hints, a.hint())
		}
	}
	return hints
}

// HandleEvent runs the first binding of page, then of the global set, that
// matches ev. Returns true if a handler ran.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	for _, list := range [][]*Action{r.pages[page], r.global} {
		for _, a := range list {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}
