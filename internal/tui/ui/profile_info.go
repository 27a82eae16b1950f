package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/rivo/tview"
)

// ProfileData is the header summary.
type ProfileData struct {
	Profile   string
	Agent     string
	Mode      string
	Link      status.State
	Counts    map[classify.Bucket]int
	Sending   int
	StartedAt time.Time
	Now       time.Time
}

// ProfileInfo displays the profile, connection and bucket counts.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates the header panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)
	return &ProfileInfo{TextView: tv, theme: theme}
}

// Update renders d.
func (pi *ProfileInfo) Update(d ProfileData) {
	pi.Clear()
	label := Tag(pi.theme.FgColor)
	value := Tag(pi.theme.CounterColor)

	linkColor := pi.theme.FlashErrColor
	switch d.Link {
	case status.Online:
		linkColor = pi.theme.OutgoingColor
	case status.Connecting, status.Reconnecting:
		linkColor = pi.theme.FlashWarnColor
	}
	link := d.Link
	if link == "" {
		link = status.Offline
	}
	online := fmt.Sprintf("[%s]%s[-]", Tag(linkColor), strings.ToLower(string(link)))
	agent := d.Agent
	if agent == "" {
		agent = "-"
	}

	_, _ = fmt.Fprintf(pi,
		"[%s::b]Profile:[-:-:-] [%s]%s[-]  [%s::b]Agent:[-:-:-] [%s]%s[-]  [%s::b]View:[-:-:-] [%s]%s[-]  %s  [%s::b]Up:[-:-:-] [%s]%s[-]\n",
		label, value, tview.Escape(d.Profile),
		label, value, tview.Escape(agent),
		label, value, d.Mode,
		online,
		label, value, FormatDuration(d.Now.Sub(d.StartedAt)),
	)

	for _, b := range classify.Order {
		n := d.Counts[b]
		if n == 0 {
			continue
		}
		_, _ = fmt.Fprintf(pi, "[%s]%s[-] [%s]%d[-]  ", Tag(pi.theme.BucketColor(b)), b, value, n)
	}
	if d.Sending > 0 {
		_, _ = fmt.Fprintf(pi, "[%s]sending %d[-]", Tag(pi.theme.FlashWarnColor), d.Sending)
	}
}

// FormatDuration renders d as "1h5m" or "5m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
