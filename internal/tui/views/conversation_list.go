package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/matheus3301/inbox/internal/view"
	"github.com/rivo/tview"
)

// Row is one line of the conversation list: a bucket header or a conversation.
type Row struct {
	Header       bool
	Bucket       classify.Bucket
	Count        int // conversations under a header
	Conversation model.Conversation
}

// sections lists the buckets in display order; conversations outside every
// routing bucket come last.
var sections = append(append([]classify.Bucket(nil), classify.Order...), classify.BucketNone)

// BuildRows projects convs through f and lays them out under bucket headers.
// Empty buckets are skipped.
func BuildRows(convs []model.Conversation, groups classify.Groups, f view.Filter) []Row {
	bucketOf := make(map[string]classify.Bucket, groups.Total())
	for b, list := range groups {
		for _, c := range list {
			bucketOf[c.Contact.ID] = b
		}
	}
	bySection := make(map[classify.Bucket][]model.Conversation)
	for _, c := range view.Project(convs, f) {
		b := bucketOf[c.Contact.ID]
		bySection[b] = append(bySection[b], c)
	}

	var rows []Row
	for _, b := range sections {
		list := bySection[b]
		if len(list) == 0 {
			continue
		}
		rows = append(rows, Row{Header: true, Bucket: b, Count: len(list)})
		for _, c := range list {
			rows = append(rows, Row{Bucket: b, Conversation: c})
		}
	}
	return rows
}

// ConversationList is the bucketed conversation table.
type ConversationList struct {
	*tview.Table
	theme  *ui.Theme
	rows   []Row
	total  int
	filter string
	now    func() time.Time
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{Table: table, theme: theme, now: time.Now}
}

// Name implements ui.Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Hints implements ui.Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "1-9", Description: "Jump", Numeric: true}}
}

// Update replaces the rows. total is the unfiltered conversation count and
// filter the active search text, both shown in the title.
func (cl *ConversationList) Update(rows []Row, total int, filter string) {
	selected := cl.SelectedContact()
	cl.rows, cl.total, cl.filter = rows, total, filter
	cl.render()
	cl.selectContact(selected)
}

func (cl *ConversationList) render() {
	cl.Clear()
	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 2},
		{" LAST MESSAGE", 3},
		{" AGENT", 1},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	now := cl.now()
	shown := 0
	for i, r := range cl.rows {
		row := i + 1
		if r.Header {
			cl.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf(" %s (%d)", sectionTitle(r.Bucket), r.Count)).
				SetSelectable(false).
				SetTextColor(cl.theme.BucketColor(r.Bucket)).
				SetAttributes(tcell.AttrBold))
			for col := 1; col < len(headers); col++ {
				cl.SetCell(row, col, tview.NewTableCell("").SetSelectable(false))
			}
			continue
		}
		shown++
		c := r.Conversation
		name := oneLine(c.Contact.DisplayName())
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("(%d) %s", c.UnreadCount, name)
		}
		preview := ""
		if c.LastMessage != nil {
			preview = c.LastMessage.Preview(80)
			if c.LastMessage.Direction == model.Outgoing {
				preview = "you: " + preview
			}
		}
		color := cl.theme.FgColor
		if c.UnreadCount > 0 {
			color = cl.theme.BucketColor(r.Bucket)
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetExpansion(2).SetTextColor(color))
		cl.SetCell(row, 1, tview.NewTableCell(" "+oneLine(preview)).SetExpansion(3).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(" "+oneLine(c.AssignedAgent)).SetExpansion(1).SetTextColor(cl.theme.MutedColor))
		cl.SetCell(row, 3, tview.NewTableCell(formatTimestamp(c.LastActivity, now)).SetAlign(tview.AlignRight).SetTextColor(cl.theme.FgColor))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", shown, cl.total, tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", cl.total))
	}
}

func sectionTitle(b classify.Bucket) string {
	if b == classify.BucketNone {
		return "other"
	}
	return string(b)
}

// SelectedContact returns the contact id under the cursor, or "".
func (cl *ConversationList) SelectedContact() string {
	row, _ := cl.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(cl.rows) || cl.rows[idx].Header {
		return ""
	}
	return cl.rows[idx].Conversation.Contact.ID
}

// ContactAt returns the contact id of the nth visible conversation (1-based).
func (cl *ConversationList) ContactAt(n int) string {
	for _, r := range cl.rows {
		if r.Header {
			continue
		}
		n--
		if n == 0 {
			return r.Conversation.Contact.ID
		}
	}
	return ""
}

// selectContact moves the cursor to contactID, or to the first conversation.
func (cl *ConversationList) selectContact(contactID string) {
	first := -1
	for i, r := range cl.rows {
		if r.Header {
			continue
		}
		if first < 0 {
			first = i
		}
		if contactID != "" && r.Conversation.Contact.ID == contactID {
			cl.Select(i+1, 0)
			return
		}
	}
	if first >= 0 {
		cl.Select(first+1, 0)
	}
}
