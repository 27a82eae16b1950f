package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusData is the bottom status line content.
type StatusData struct {
	Loading   bool
	Sending   int
	Uploads   int
	Typing    []string
	LastError string
	Now       time.Time
}

// StatusBar displays loading, typing and the latest store error.
type StatusBar struct {
	*tview.TextView
	theme *ui.Theme
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv, theme: theme}
}

// Update renders d.
func (sb *StatusBar) Update(d StatusData) {
	sb.Clear()
	_, _ = fmt.Fprint(sb, FormatStatus(sb.theme, d))
}

// FormatStatus builds the status line.
func FormatStatus(theme *ui.Theme, d StatusData) string {
	parts := []string{" " + d.Now.Format("15:04")}
	if d.Loading {
		parts = append(parts, fmt.Sprintf("[%s]~ loading[-]", ui.Tag(theme.OutgoingColor)))
	}
	if d.Sending > 0 {
		parts = append(parts, fmt.Sprintf("sending %d", d.Sending))
	}
	if d.Uploads > 0 {
		parts = append(parts, fmt.Sprintf("uploads %d", d.Uploads))
	}
	if len(d.Typing) > 0 {
		parts = append(parts, fmt.Sprintf("[::i]%s typing[::-]", text(strings.Join(d.Typing, ", "))))
	}
	if d.LastError != "" {
		parts = append(parts, fmt.Sprintf("[%s]error: %s[-]", ui.Tag(theme.FlashErrColor), oneLine(d.LastError)))
	}
	return strings.Join(parts, " | ")
}
