package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView runs full-text message searches and lists the hits.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	data    []model.Message
	names   func(contactID string) string
}

// NewSearchView creates a new search view. names resolves contact ids to
// display names for the result table.
func NewSearchView(theme *ui.Theme, names func(contactID string) string) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	return &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
		names:   names,
	}
}

// Name implements ui.Component.
func (sv *SearchView) Name() string { return "Search" }

// Hints implements ui.Component.
func (sv *SearchView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Enter", Description: "Search / Open"}}
}

// SetOnQuery sets the callback when a query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			fn(sv.input.GetText())
		}
	})
}

// SetOnOpen sets the callback when a result is chosen.
func (sv *SearchView) SetOnOpen(fn func(contactID, messageID string)) {
	sv.results.SetSelectedFunc(func(row, _ int) {
		if idx := row - 1; idx >= 0 && idx < len(sv.data) {
			fn(sv.data[idx].ContactID, sv.data[idx].ID)
		}
	})
}

// Update replaces the results.
func (sv *SearchView) Update(results []model.Message, now time.Time) {
	sv.data = results
	sv.results.Clear()
	for col, h := range []string{" CONTACT", " MESSAGE", " TIME"} {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold))
	}
	for i, m := range results {
		row := i + 1
		name := m.ContactID
		if sv.names != nil {
			name = sv.names(m.ContactID)
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+oneLine(name)).SetMaxWidth(25).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+oneLine(m.Preview(120))).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(m.CreatedAt, now)).SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(fmt.Sprintf(" Results (%d) ", len(results)))
}

// Input returns the query field.
func (sv *SearchView) Input() *tview.InputField { return sv.input }

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table { return sv.results }
