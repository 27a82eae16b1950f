package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/model"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	MutedColor       tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color
	CounterColor     tcell.Color

	TableHeaderFg tcell.Color
	TableCursorFg tcell.Color
	TableCursorBg tcell.Color
	SectionFg     tcell.Color

	CrumbActiveFg   tcell.Color
	CrumbActiveBg   tcell.Color
	CrumbInactiveFg tcell.Color
	CrumbInactiveBg tcell.Color

	MenuKeyColor    tcell.Color
	NumericKeyColor tcell.Color

	FlashInfoColor tcell.Color
	FlashWarnColor tcell.Color
	FlashErrColor  tcell.Color

	OverdueColor   tcell.Color
	UrgentColor    tcell.Color
	NeedsReply     tcell.Color
	AutomatedColor tcell.Color
	DoneColor      tcell.Color

	OutgoingColor tcell.Color
	IncomingColor tcell.Color
	FailedColor   tcell.Color
	ReadColor     tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		MutedColor:       tcell.ColorGray,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TitleColor:       tcell.ColorFuchsia,
		CounterColor:     tcell.ColorPapayaWhip,

		TableHeaderFg: tcell.ColorWhite,
		TableCursorFg: tcell.ColorBlack,
		TableCursorBg: tcell.ColorAqua,
		SectionFg:     tcell.ColorOrange,

		CrumbActiveFg:   tcell.ColorBlack,
		CrumbActiveBg:   tcell.ColorOrange,
		CrumbInactiveFg: tcell.ColorBlack,
		CrumbInactiveBg: tcell.ColorAqua,

		MenuKeyColor:    tcell.ColorDodgerBlue,
		NumericKeyColor: tcell.ColorFuchsia,

		FlashInfoColor: tcell.ColorNavajoWhite,
		FlashWarnColor: tcell.ColorOrange,
		FlashErrColor:  tcell.ColorOrangeRed,

		OverdueColor:   tcell.ColorOrangeRed,
		UrgentColor:    tcell.ColorOrange,
		NeedsReply:     tcell.ColorYellow,
		AutomatedColor: tcell.ColorMediumPurple,
		DoneColor:      tcell.ColorGray,

		OutgoingColor: tcell.ColorLightGreen,
		IncomingColor: tcell.ColorLightSkyBlue,
		FailedColor:   tcell.ColorOrangeRed,
		ReadColor:     tcell.ColorAqua,
	}
}

// BucketColor returns the color used for a routing bucket.
func (t *Theme) BucketColor(b classify.Bucket) tcell.Color {
	switch b {
	case classify.BucketOverdue:
		return t.OverdueColor
	case classify.BucketUrgent:
		return t.UrgentColor
	case classify.BucketNormal:
		return t.NeedsReply
	case classify.BucketAutomated:
		return t.AutomatedColor
	case classify.BucketResolved, classify.BucketClosed, classify.BucketArchived:
		return t.DoneColor
	default:
		return t.FgColor
	}
}

// StatusColor returns the color for a delivery status mark.
func (t *Theme) StatusColor(s model.DeliveryStatus) tcell.Color {
	switch s {
	case model.StatusFailed:
		return t.FailedColor
	case model.StatusRead:
		return t.ReadColor
	default:
		return t.MutedColor
	}
}

// Tag returns a tview color tag name for c.
func Tag(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
