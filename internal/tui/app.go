package tui

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/tui/keys"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/tui/views"
	"github.com/matheus3301/inbox/internal/view"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageList   = "conversations"
	pageThread = "thread"
	pageInfo   = "details"
	pageSearch = "search"
	pageHelp   = "help"
)

const clockTick = 30 * time.Second

// Options configures the TUI.
type Options struct {
	Store   *store.Store
	Profile string
	Agent   string
	Link    *status.Machine // nil shows the link as offline
	Logger  *zap.Logger
}

// App is the main TUI application shell. It renders the store and turns
// keys and commands into store operations.
type App struct {
	app     *tview.Application
	st      *store.Store
	link    *status.Machine
	log     *zap.Logger
	theme   *ui.Theme
	profile string
	agent   string

	pages    *ui.Pages
	registry *keys.Registry
	flash    *ui.FlashModel
	root     *tview.Flex

	header   *ui.ProfileInfo
	crumbs   *ui.Crumbs
	menu     *ui.Menu
	flashBar *ui.FlashBar
	prompt   *ui.Prompt

	list       *views.ConversationList
	thread     *views.MessageThread
	search     *views.SearchView
	info       *views.ConversationInfo
	help       *views.HelpView
	status     *views.StatusBar
	components map[string]ui.Component

	uiState view.UIState
	sortKey view.SortKey

	// activeContact is the conversation shown on the thread page. Only
	// touched from the UI goroutine.
	activeContact string

	pending atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
}

// NewApp creates the TUI application.
func NewApp(opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		st:       opts.Store,
		link:     opts.Link,
		log:      opts.Logger,
		theme:    theme,
		profile:  opts.Profile,
		agent:    opts.Agent,
		pages:    ui.NewPages(),
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(),
		header:   ui.NewProfileInfo(theme),
		crumbs:   ui.NewCrumbs(theme),
		menu:     ui.NewMenu(theme),
		flashBar: ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		list:     views.NewConversationList(theme),
		thread:   views.NewMessageThread(theme),
		info:     views.NewConversationInfo(theme),
		help:     views.NewHelpView(theme),
		status:   views.NewStatusBar(theme),
		sortKey:  view.SortTime,
		ctx:      ctx,
		cancel:   cancel,
	}
	a.search = views.NewSearchView(theme, a.contactName)
	a.startedAt = a.st.Now()
	a.components = map[string]ui.Component{
		pageList:   a.list,
		pageThread: a.thread,
		pageSearch: a.search,
		pageInfo:   a.info,
		pageHelp:   a.help,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

// Run starts the event watcher and blocks until the UI exits.
func (a *App) Run() error {
	defer a.cancel()
	go a.watch()
	a.async("load quick replies", a.st.LoadQuickReplies)
	a.refresh()
	return a.app.Run()
}

// Stop exits the UI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(int, int) {
		a.openConversation(a.list.SelectedContact())
	})
	a.thread.SetOnSend(a.send)
	a.search.SetOnQuery(a.runSearch)
	a.search.SetOnOpen(func(contactID, _ string) {
		a.openConversation(contactID)
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.execute(ParseCommand(text))
		case ui.PromptFilter:
			a.applyFilter(text)
		case ui.PromptNote:
			a.addNote(text)
		}
	})
	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if mode == ui.PromptFilter {
			a.applyFilter(text)
		}
	})
	a.prompt.SetOnCancel(func(mode ui.PromptMode) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.applyFilter("")
		}
	})

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		a.refresh()
		a.focusPage()
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageList, a.list, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageInfo, a.info, true, false)
	a.pages.AddPage(pageSearch, a.search, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.menu, 1, 0, false).
		AddItem(a.status, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.capture)
	a.pages.Reset(pageList)
}

func (a *App) capture(ev *tcell.EventKey) *tcell.EventKey {
	if a.prompt.HasFocus() {
		return ev
	}
	page := a.pages.Current()

	if a.thread.Composer().HasFocus() || a.search.Input().HasFocus() {
		if ev.Key() != tcell.KeyEscape {
			return ev
		}
		if page == pageSearch {
			a.back()
		} else {
			a.focusPage()
		}
		return nil
	}

	if ev.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}
	if page == pageList && ev.Key() == tcell.KeyRune && ev.Rune() >= '1' && ev.Rune() <= '9' {
		a.openConversation(a.list.ContactAt(int(ev.Rune() - '0')))
		return nil
	}
	if a.registry.HandleEvent(page, ev) {
		return nil
	}
	return ev
}

func (a *App) focusPage() {
	switch a.pages.Current() {
	case pageList:
		a.app.SetFocus(a.list)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageInfo:
		a.app.SetFocus(a.info)
	case pageSearch:
		a.app.SetFocus(a.search.Input())
	case pageHelp:
		a.app.SetFocus(a.help)
	}
}

func (a *App) showPrompt(mode ui.PromptMode, text string) {
	a.prompt.Activate(mode, text)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusPage()
}

// back leaves the current page. On the root page it clears the filter.
func (a *App) back() {
	switch a.pages.Current() {
	case pageList:
		if a.uiState.Search != "" {
			a.applyFilter("")
		}
		return
	case pageThread:
		a.leaveThread()
	}
	a.pages.Pop()
}

func (a *App) openConversation(contactID string) {
	if contactID == "" {
		return
	}
	if a.activeContact != "" && a.activeContact != contactID {
		a.saveDraft()
	}
	a.activeContact = contactID
	a.thread.Composer().SetText("")
	a.pages.Push(pageThread)

	a.async("open conversation", func(ctx context.Context) error {
		if err := a.st.SelectConversation(ctx, contactID); err != nil {
			return err
		}
		draft, err := a.st.Draft(ctx, contactID)
		if err != nil {
			a.log.Debug("draft lookup failed", zap.String("contact", contactID), zap.Error(err))
			return nil
		}
		if draft != "" {
			a.app.QueueUpdateDraw(func() {
				if a.activeContact == contactID && a.thread.Composer().GetText() == "" {
					a.thread.Composer().SetText(draft)
				}
			})
		}
		return nil
	})
}

func (a *App) leaveThread() {
	a.saveDraft()
	a.thread.Composer().SetText("")
	a.activeContact = ""
	a.st.ClearSelection()
}

func (a *App) saveDraft() {
	contactID, body := a.activeContact, a.thread.Composer().GetText()
	if contactID == "" {
		return
	}
	a.async("save draft", func(ctx context.Context) error {
		return a.st.SaveDraft(ctx, contactID, body)
	})
}

// send is the composer callback. A leading "/shortcut" that names a quick
// reply is expanded in place instead of sent.
func (a *App) send(text string) {
	composer := a.thread.Composer()
	if strings.HasPrefix(text, "/") {
		if expanded, ok := a.st.ExpandQuickReply(text); ok {
			composer.SetText(expanded)
			return
		}
	}
	composer.SetText("")
	contactID := a.activeContact
	a.async("send", func(ctx context.Context) error {
		if _, err := a.st.SendMessage(ctx, model.OutgoingMessage{Type: model.TypeText, Content: text}); err != nil {
			return err
		}
		return a.st.SaveDraft(ctx, contactID, "")
	})
}

func (a *App) runSearch(query string) {
	a.async("search", func(ctx context.Context) error {
		results, err := a.st.Search(ctx, query)
		if err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() {
			a.search.Update(results, a.st.Now())
			if len(results) > 0 {
				a.app.SetFocus(a.search.Results())
			}
		})
		return nil
	})
}

func (a *App) applyFilter(text string) {
	if a.pages.Current() == pageThread {
		a.st.SetSearchText(text)
	} else {
		a.uiState.Search = text
	}
	a.refresh()
}

func (a *App) addNote(text string) {
	contactID := a.activeContact
	if contactID == "" {
		a.flash.Warn("no conversation open")
		a.refresh()
		return
	}
	a.async("add note", func(ctx context.Context) error {
		if _, err := a.st.AddNote(ctx, contactID, text); err != nil {
			return err
		}
		a.flash.Info("note added")
		a.scheduleRefresh()
		return nil
	})
}

func (a *App) showDetails() {
	contactID := a.activeContact
	if contactID == "" {
		return
	}
	a.pages.Push(pageInfo)
	a.async("load details", func(ctx context.Context) error {
		if _, err := a.st.LoadTickets(ctx, contactID); err != nil {
			return err
		}
		if _, err := a.st.LoadNotes(ctx, contactID); err != nil {
			return err
		}
		a.scheduleRefresh()
		return nil
	})
}

func (a *App) showHelp() {
	a.help.Update(a.helpSections())
	a.pages.Push(pageHelp)
}

// async runs fn off the UI goroutine and flashes its error.
func (a *App) async(what string, fn func(ctx context.Context) error) {
	go func() {
		err := fn(a.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		a.log.Warn(what+" failed", zap.Error(err))
		a.flash.Err(what, err)
		a.scheduleRefresh()
	}()
}

// watch redraws on store and connection events, and on a clock tick so
// time-based buckets and the flash bar age out.
func (a *App) watch() {
	events, unsub := a.st.Subscribe(64)
	defer unsub()
	conn, unsubConn := a.st.Bus().Subscribe("transport.", 8)
	defer unsubConn()
	tick := time.NewTicker(clockTick)
	defer tick.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
		case _, ok := <-conn:
			if !ok {
				return
			}
		case <-tick.C:
		}
		a.scheduleRefresh()
	}
}

// scheduleRefresh queues one redraw; bursts of events collapse into it.
func (a *App) scheduleRefresh() {
	if !a.pending.CompareAndSwap(false, true) {
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.pending.Store(false)
		a.refresh()
	})
}

// refresh re-renders every visible widget from the store. UI goroutine only.
func (a *App) refresh() {
	snap := a.st.Snapshot()
	now := a.st.Now()
	groups := a.st.GroupConversations()

	f := a.uiState.Filter(a.sortKey)
	f.Now, f.Thresholds = now, a.st.Thresholds()
	a.list.Update(views.BuildRows(snap.Conversations, groups, f), len(snap.Conversations), a.uiState.Search)

	a.header.Update(ui.ProfileData{
		Profile:   a.profile,
		Agent:     a.agent,
		Mode:      string(a.st.Mode()),
		Link:      a.link.Current(),
		Counts:    groups.Counts(),
		Sending:   snap.Loading.Sending,
		StartedAt: a.startedAt,
		Now:       now,
	})

	var typing []string
	if sel := snap.Active; sel != nil {
		typing = snap.Typing[sel.Key]
		a.thread.Update(a.threadData(snap, *sel, now))
	}
	if a.pages.Current() == pageInfo && a.activeContact != "" {
		a.info.Update(a.infoData(a.activeContact, now))
	}

	a.status.Update(views.StatusData{
		Loading:   snap.Loading.Conversations || len(snap.Loading.Messages) > 0,
		Sending:   snap.Loading.Sending,
		Uploads:   len(snap.Uploads),
		Typing:    typing,
		LastError: snap.LastError,
		Now:       now,
	})
	a.flashBar.Update(a.flash.Current())
	a.updateMenu()
}

func (a *App) threadData(snap store.State, sel store.Selection, now time.Time) views.ThreadData {
	title := a.contactName(sel.ContactID)
	if sel.Ticket != nil {
		title += " #" + sel.Ticket.ID
	}
	if sel.SearchText != "" {
		title += " /" + sel.SearchText
	}
	if sel.Recording {
		title += " (recording)"
	}
	var replyTo *model.Message
	if sel.ReplyTo != "" {
		if m, ok := a.st.Message(sel.ReplyTo); ok {
			replyTo = &m
		}
	}
	return views.ThreadData{
		Title:    title,
		Messages: views.FilterMessages(a.st.Messages(sel.Key), sel.SearchText),
		Cursor:   a.st.Cursor(sel.Key),
		Loading:  slices.Contains(snap.Loading.Messages, sel.Key),
		Typing:   snap.Typing[sel.Key],
		ReplyTo:  replyTo,
		Uploads:  snap.Uploads,
		Now:      now,
	}
}

func (a *App) infoData(contactID string, now time.Time) views.InfoData {
	c, ok := a.st.Conversation(contactID)
	if !ok {
		c = model.Conversation{Contact: model.Contact{ID: contactID}}
	}
	failed, err := a.st.FailedSends(contactID)
	if err != nil {
		a.log.Debug("failed sends lookup", zap.String("contact", contactID), zap.Error(err))
	}
	return views.InfoData{
		Conversation: c,
		Bucket:       a.st.Thresholds().Classify(c, now),
		Episodes:     a.st.Episodes(contactID),
		Notes:        a.st.Notes(contactID),
		FailedSends:  failed,
		Now:          now,
	}
}

func (a *App) updateMenu() {
	page := a.pages.Current()
	var hints []ui.MenuHint
	if c, ok := a.components[page]; ok {
		hints = append(hints, c.Hints()...)
	}
	a.menu.Update(append(hints, a.registry.Hints(page)...))
}

func (a *App) contactName(contactID string) string {
	if c, ok := a.st.Conversation(contactID); ok {
		return c.Contact.DisplayName()
	}
	return contactID
}
