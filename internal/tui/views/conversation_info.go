package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/localdb"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// InfoData is the detail panel content for one conversation.
type InfoData struct {
	Conversation model.Conversation
	Bucket       classify.Bucket
	Episodes     []model.Episode
	Notes        []model.Note
	FailedSends  []localdb.JournalEntry
	Now          time.Time
}

// ConversationInfo displays contact, ticket history and notes.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)
	return &ConversationInfo{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Hints implements ui.Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint { return nil }

// Update renders d.
func (ci *ConversationInfo) Update(d InfoData) {
	ci.Clear()
	c := d.Conversation
	label := ui.Tag(ci.theme.TitleColor)
	value := ui.Tag(ci.theme.FgColor)
	field := func(name, v string) {
		if v == "" {
			v = "-"
		}
		_, _ = fmt.Fprintf(ci, "[%s::b]%-10s[-:-:-] [%s]%s[-]\n", label, name+":", value, text(v))
	}

	field("Name", c.Contact.DisplayName())
	field("Phone", c.Contact.Phone)
	field("Contact", c.Contact.ID)
	field("Status", string(c.Status))
	_, _ = fmt.Fprintf(ci, "[%s::b]%-10s[-:-:-] [%s]%s[-]\n", label, "Bucket:", ui.Tag(ci.theme.BucketColor(d.Bucket)), d.Bucket)
	field("Agent", c.AssignedAgent)
	field("Unread", fmt.Sprint(c.UnreadCount))
	if !c.LastActivity.IsZero() {
		field("Activity", c.LastActivity.Local().Format(time.DateTime))
	}
	var labels []string
	for _, l := range c.AllLabels() {
		labels = append(labels, l.Name)
	}
	field("Labels", strings.Join(labels, ", "))
	if c.Ticket != nil {
		field("Ticket", fmt.Sprintf("%s (%s)", c.Ticket.ID, c.Ticket.Status))
	}

	if len(d.Episodes) > 0 {
		_, _ = fmt.Fprintf(ci, "\n[%s::b]Tickets[-:-:-]\n", label)
		for _, e := range d.Episodes {
			marker := " "
			if e.Current {
				marker = "*"
			}
			_, _ = fmt.Fprintf(ci, " %s %s  %s  %d msgs  %s - %s\n", marker, text(e.Ticket.ID), e.Status, e.MessageCount,
				formatTimestamp(e.StartedAt, d.Now), formatTimestamp(e.EndedAt, d.Now))
		}
	}

	if len(d.Notes) > 0 {
		_, _ = fmt.Fprintf(ci, "\n[%s::b]Notes[-:-:-]\n", label)
		for _, n := range d.Notes {
			author := n.Author
			if author == "" {
				author = "agent"
			}
			_, _ = fmt.Fprintf(ci, " [%s]%s %s[-] %s\n", ui.Tag(ci.theme.MutedColor), text(author), formatTimestamp(n.CreatedAt, d.Now), oneLine(n.Content))
		}
	}

	if len(d.FailedSends) > 0 {
		_, _ = fmt.Fprintf(ci, "\n[%s::b]Failed sends[-:-:-]\n", ui.Tag(ci.theme.FailedColor))
		for _, f := range d.FailedSends {
			_, _ = fmt.Fprintf(ci, " %s  %s  [%s]%s[-]\n", text(f.TempID), oneLine(f.Body), ui.Tag(ci.theme.FailedColor), oneLine(f.Error))
		}
	}
}
