package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// ThreadData is everything the thread renders for the selected conversation.
type ThreadData struct {
	Title    string
	Messages []model.Message
	Cursor   store.Cursor
	Loading  bool
	Typing   []string
	ReplyTo  *model.Message
	Uploads  map[string]store.Upload
	Now      time.Time
}

// MessageThread displays the messages of one conversation and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	title    string
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, /shortcut expands) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		if text := composer.GetText(); strings.TrimSpace(text) != "" {
			mt.onSend(text)
		}
	})
	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Enter", Description: "Send (in composer)"}}
}

// SetOnSend sets the callback for Enter in the composer. The callback
// decides whether to clear the composer.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update re-renders the thread, keeping the scroll position at the end.
func (mt *MessageThread) Update(d ThreadData) {
	mt.title = d.Title
	title := " " + text(d.Title) + " "
	if d.Loading {
		title += "[loading] "
	}
	mt.messages.SetTitle(title)

	mt.messages.Clear()
	switch {
	case d.Cursor.HasMore:
		_, _ = fmt.Fprintf(mt.messages, "[%s]-- older messages available, press o --[-]\n\n", ui.Tag(mt.theme.MutedColor))
	case d.Cursor.Page > 0 && len(d.Messages) > 0:
		_, _ = fmt.Fprintf(mt.messages, "[%s]-- start of conversation --[-]\n\n", ui.Tag(mt.theme.MutedColor))
	}
	for _, m := range d.Messages {
		_, _ = fmt.Fprint(mt.messages, FormatMessage(mt.theme, m, d.Uploads[m.TempID], d.Now))
	}
	if len(d.Typing) > 0 {
		_, _ = fmt.Fprintf(mt.messages, "[%s::i]%s typing...[-:-:-]\n", ui.Tag(mt.theme.MutedColor), text(strings.Join(d.Typing, ", ")))
	}
	mt.messages.ScrollToEnd()

	label := " > "
	if d.ReplyTo != nil {
		label = fmt.Sprintf(" reply to %q > ", d.ReplyTo.Preview(24))
	}
	mt.composer.SetLabel(label)
}

// FormatMessage renders one message block: a header line with sender, time
// and delivery mark, then the body.
func FormatMessage(theme *ui.Theme, m model.Message, up store.Upload, now time.Time) string {
	sender, color := "contact", theme.IncomingColor
	if m.Direction == model.Outgoing {
		sender, color = "you", theme.OutgoingColor
	}

	var header strings.Builder
	fmt.Fprintf(&header, "[%s::b]%s[-:-:-] [%s]%s[-]", ui.Tag(color), sender, ui.Tag(theme.MutedColor), formatTimestamp(m.CreatedAt, now))
	if m.Direction == model.Outgoing {
		fmt.Fprintf(&header, " [%s]%s[-]", ui.Tag(theme.StatusColor(m.Status)), statusMark(m))
	}
	if up.Total > 0 && up.Sent < up.Total {
		fmt.Fprintf(&header, " [%s]uploading %d%%[-]", ui.Tag(theme.FlashWarnColor), int(up.Fraction()*100))
	}
	if m.TicketID != "" {
		fmt.Fprintf(&header, " [%s]#%s[-]", ui.Tag(theme.MutedColor), text(m.TicketID))
	}

	body := text(m.Content)
	if m.Media != nil && m.Type != model.TypeText {
		body = strings.TrimSpace(fmt.Sprintf("[%s]%s[-] %s", ui.Tag(theme.MutedColor), tview.Escape("["+string(m.Type)+"]"), body))
	}
	if body == "" {
		body = text(m.Preview(0))
	}
	return header.String() + "\n" + body + "\n\n"
}

func statusMark(m model.Message) string {
	switch {
	case m.Status == model.StatusFailed:
		return "! failed (:resend " + m.ID + ")"
	case m.IsTemporary():
		return "..."
	case m.Status == model.StatusRead:
		return "read"
	case m.Status == model.StatusDelivered:
		return "delivered"
	default:
		return "sent"
	}
}

// Composer returns the composer input field.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

// Messages returns the messages text view.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// FilterMessages keeps the messages whose content contains q, ignoring case.
// An empty q keeps everything.
func FilterMessages(msgs []model.Message, q string) []model.Message {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return msgs
	}
	var out []model.Message
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, m)
		}
	}
	return out
}
