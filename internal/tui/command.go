package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/tui/views"
	"github.com/matheus3301/inbox/internal/view"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"q": "quit",
	"h": "help",
	"s": "search",
	"o": "open",
	"n": "note",
	"r": "reply",
}

var commandHelp = []ui.MenuHint{
	{Key: ":open <name|id>", Description: "Open a conversation"},
	{Key: ":search <text>", Description: "Search all messages"},
	{Key: ":reply [id]", Description: "Reply to a message, or stop replying"},
	{Key: ":attach <path>", Description: "Send a file"},
	{Key: ":resend <id>", Description: "Send a failed message again"},
	{Key: ":note <text>", Description: "Add an internal note"},
	{Key: ":record", Description: "Toggle the recording indicator"},
	{Key: ":sort time|unread|name", Description: "Order the conversation list"},
	{Key: ":reload", Description: "Refetch conversations and messages"},
	{Key: ":quit", Description: "Exit"},
}

// ParseCommand parses a command string (without the leading ':'). Aliases
// are resolved to the full command name.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	name, args, _ := strings.Cut(input, " ")
	name = strings.ToLower(name)
	if full, ok := commandAliases[name]; ok {
		name = full
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}
}

func (a *App) execute(cmd Command) {
	switch cmd.Name {
	case "":
		return
	case "quit":
		a.Stop()
		return
	case "help":
		a.showHelp()
	case "search":
		a.pages.Push(pageSearch)
		if cmd.Args != "" {
			a.search.Input().SetText(cmd.Args)
			a.runSearch(cmd.Args)
		}
	case "open":
		contactID := findContact(a.st.Conversations(), cmd.Args)
		if contactID == "" {
			a.flash.Warn(fmt.Sprintf("no conversation matches %q", cmd.Args))
			break
		}
		a.openConversation(contactID)
	case "resend":
		if cmd.Args == "" {
			a.flash.Warn("usage: resend <message id>")
			break
		}
		a.async("resend", func(ctx context.Context) error {
			_, err := a.st.Resend(ctx, cmd.Args)
			return err
		})
	case "note":
		if cmd.Args == "" {
			a.showPrompt(ui.PromptNote, "")
			return
		}
		a.addNote(cmd.Args)
	case "reply":
		if !a.st.SetReplyTo(cmd.Args) {
			a.flash.Warn("no conversation open")
		}
	case "record":
		sel, ok := a.st.Active()
		if !ok || !a.st.SetRecording(!sel.Recording) {
			a.flash.Warn("no conversation open")
		}
	case "attach":
		a.attach(cmd.Args)
	case "sort":
		a.setSort(view.ParseSort(cmd.Args))
	case "reload":
		a.reload()
	default:
		a.flash.Warn("unknown command: " + cmd.Name)
	}
	a.refresh()
}

func (a *App) attach(path string) {
	if a.activeContact == "" {
		a.flash.Warn("no conversation open")
		return
	}
	if path == "" {
		a.flash.Warn("usage: attach <path>")
		return
	}
	att, typ, err := model.AttachmentFromFile(path)
	if err != nil {
		a.flash.Err("attach", err)
		return
	}
	a.async("send attachment", func(ctx context.Context) error {
		_, err := a.st.SendMessage(ctx, model.OutgoingMessage{Type: typ, Attachment: att})
		return err
	})
}

func (a *App) helpSections() []views.HelpSection {
	return []views.HelpSection{
		{Title: "Global", Hints: a.registry.GlobalHints()},
		{Title: "Conversations", Hints: append(a.list.Hints(), a.registry.PageHints(pageList)...)},
		{Title: "Thread", Hints: append(a.thread.Hints(), a.registry.PageHints(pageThread)...)},
		{Title: "Details", Hints: a.registry.PageHints(pageInfo)},
		{Title: "Search", Hints: append(a.search.Hints(), a.registry.PageHints(pageSearch)...)},
		{Title: "Commands", Hints: commandHelp},
	}
}

// findContact resolves a contact id or name. Matches are tried from the
// strictest: exact id, exact name, name prefix, then name substring. Ties go
// to the earliest conversation.
func findContact(convs []model.Conversation, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	for _, c := range convs {
		if c.Contact.ID == query {
			return c.Contact.ID
		}
	}
	q := strings.ToLower(query)
	matchers := []func(name string) bool{
		func(name string) bool { return name == q },
		func(name string) bool { return strings.HasPrefix(name, q) },
		func(name string) bool { return strings.Contains(name, q) },
	}
	for _, match := range matchers {
		for _, c := range convs {
			if match(strings.ToLower(c.Contact.DisplayName())) {
				return c.Contact.ID
			}
		}
	}
	return ""
}
