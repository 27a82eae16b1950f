package tui

import (
	"context"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/tui/keys"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/view"
)

var sortCycle = []view.SortKey{view.SortTime, view.SortUnread, view.SortName}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "Command",
		Handler: func() { a.showPrompt(ui.PromptCommand, "") },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "Help",
		Handler: a.showHelp,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "Back/Quit",
		Handler: func() {
			if a.pages.Current() == pageList {
				a.Stop()
				return
			}
			a.back()
		},
	})

	a.registry.Add(pageList, &keys.Action{
		Key: tcell.KeyEnter, Label: "Enter", Description: "Open",
		Handler: func() { a.openConversation(a.list.SelectedContact()) },
	})
	a.registry.Add(pageList, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Filter",
		Handler: func() { a.showPrompt(ui.PromptFilter, a.uiState.Search) },
	})
	a.registry.Add(pageList, &keys.Action{
		Key: tcell.KeyRune, Rune: 's', Description: "Search",
		Handler: func() { a.pages.Push(pageSearch) },
	})
	a.registry.Add(pageList, &keys.Action{
		Key: tcell.KeyRune, Rune: 'o', Description: "Order",
		Handler: a.cycleSort,
	})
	a.registry.Add(pageList, &keys.Action{
		Key: tcell.KeyRune, Rune: 'R', Description: "Reload",
		Handler: a.reload,
	})

	a.registry.Add(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "Compose",
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.Add(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "Mark read",
		Handler: func() {
			a.async("mark read", func(ctx context.Context) error {
				return a.st.MarkMessagesAsRead(ctx, model.Key{})
			})
		},
	})
	a.registry.Add(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'o', Description: "Older",
		Handler: a.loadOlder,
	})
	a.registry.Add(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Find",
		Handler: func() {
			sel, _ := a.st.Active()
			a.showPrompt(ui.PromptFilter, sel.SearchText)
		},
	})
	a.registry.Add(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd', Description: "Details",
		Handler: a.showDetails,
	})
	a.registry.Add(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'n', Description: "Note",
		Handler: func() { a.showPrompt(ui.PromptNote, "") },
	})

	a.registry.Add(pageInfo, &keys.Action{
		Key: tcell.KeyRune, Rune: 'n', Description: "Note",
		Handler: func() { a.showPrompt(ui.PromptNote, "") },
	})

	a.registry.Add(pageSearch, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Query",
		Handler: func() { a.app.SetFocus(a.search.Input()) },
	})
}

func (a *App) cycleSort() {
	next := sortCycle[0]
	for i, k := range sortCycle {
		if k == a.sortKey {
			next = sortCycle[(i+1)%len(sortCycle)]
			break
		}
	}
	a.setSort(next)
}

func (a *App) setSort(k view.SortKey) {
	a.sortKey = k
	a.flash.Info("sorted by " + string(k))
	a.refresh()
}

func (a *App) reload() {
	a.async("reload conversations", a.st.LoadConversations)
	if sel, ok := a.st.Active(); ok {
		a.async("reload messages", func(ctx context.Context) error {
			return a.st.LoadMessages(ctx, sel.Key, 1, true)
		})
	}
}

func (a *App) loadOlder() {
	sel, ok := a.st.Active()
	if !ok {
		return
	}
	if !a.st.Cursor(sel.Key).HasMore {
		a.flash.Info("no older messages")
		a.refresh()
		return
	}
	a.async("load older messages", func(ctx context.Context) error {
		return a.st.LoadOlderMessages(ctx, sel.Key)
	})
}
