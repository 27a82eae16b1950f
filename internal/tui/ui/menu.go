package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu displays keyboard shortcut hints in a single row.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 0)
	return &Menu{TextView: tv, theme: theme}
}

// Update renders the hints of the current page.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, FormatHints(m.theme, hints))
}

// FormatHints renders hints as "<key> description" pairs.
func FormatHints(theme *Theme, hints []MenuHint) string {
	keyColor := Tag(theme.MenuKeyColor)
	numColor := Tag(theme.NumericKeyColor)
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		kc := keyColor
		if h.Numeric {
			kc = numColor
		}
		parts = append(parts, fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", kc, tview.Escape(h.Key), h.Description))
	}
	return strings.Join(parts, "  ")
}
