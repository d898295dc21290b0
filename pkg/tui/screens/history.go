// Package screens provides TUI screen implementations for the standings viewer.
// This file implements the rating history screen for a single player.
package screens

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/tui/components"
)

// historyApp is what the history screen needs from the application
type historyApp interface {
	SelectedPlayer() (id, name string)
	CurrentScope() components.Scope
	PlayerHistory(playerID string) ([]data.RatingChange, error)
	GoBack() error
}

// HistoryScreen lists the rating changes of the selected player in the current scope
type HistoryScreen struct {
	container *tview.Flex
	table     *tview.Table
	summary   *tview.TextView
	helpBar   *tview.TextView

	playerID   string
	playerName string
	scope      components.Scope
	changes    []data.RatingChange

	app historyApp
}

// NewHistoryScreen creates a new history screen
func NewHistoryScreen() *HistoryScreen {
	hs := &HistoryScreen{
		container: tview.NewFlex(),
		table:     tview.NewTable(),
		summary:   tview.NewTextView(),
		helpBar:   tview.NewTextView(),
	}
	hs.setupUI()
	return hs
}

// GetPrimitive returns the main primitive for the history screen
func (hs *HistoryScreen) GetPrimitive() tview.Primitive {
	return hs.container
}

// OnEnter loads the history of the app's selected player
func (hs *HistoryScreen) OnEnter(app any) error {
	a, ok := app.(historyApp)
	if !ok {
		return fmt.Errorf("history screen: unsupported app %T", app)
	}
	hs.app = a

	hs.playerID, hs.playerName = a.SelectedPlayer()
	if hs.playerID == "" {
		return fmt.Errorf("no player selected")
	}
	hs.scope = a.CurrentScope()

	changes, err := a.PlayerHistory(hs.playerID)
	if err != nil {
		return fmt.Errorf("failed to load history of %s: %w", hs.playerID, err)
	}
	hs.changes = changes

	hs.updateDisplay()
	return nil
}

// OnExit is called when leaving the history screen
func (hs *HistoryScreen) OnExit(app any) error {
	return nil
}

// GetTitle returns the screen title
func (hs *HistoryScreen) GetTitle() string {
	return fmt.Sprintf("History: %s (%s)", hs.displayName(), hs.scopeLabel())
}

func (hs *HistoryScreen) displayName() string {
	if hs.playerName != "" {
		return hs.playerName
	}
	return hs.playerID
}

func (hs *HistoryScreen) scopeLabel() string {
	if hs.scope.Label != "" {
		return hs.scope.Label
	}
	return hs.scope.ID
}

func (hs *HistoryScreen) setupUI() {
	hs.table.SetBorder(true).
		SetTitle(" Rating History ").
		SetTitleAlign(tview.AlignLeft)
	hs.table.SetSelectable(true, false).
		SetFixed(1, 0)

	hs.summary.SetBorder(true).
		SetTitle(" Summary ").
		SetTitleAlign(tview.AlignLeft)
	hs.summary.SetDynamicColors(true)

	hs.helpBar.SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]Esc/Q:Back[white]")

	hs.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc || (event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q')) {
			if hs.app != nil {
				_ = hs.app.GoBack()
			}
			return nil
		}
		return event
	})

	hs.container.SetDirection(tview.FlexRow).
		AddItem(hs.table, 0, 1, true).
		AddItem(hs.summary, 6, 0, false).
		AddItem(hs.helpBar, 1, 0, false)
}

func (hs *HistoryScreen) updateDisplay() {
	hs.table.Clear()
	for col, header := range []string{"#", "Match", "When", "Before", "After", "Change"} {
		hs.table.SetCell(0, col, tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetAlign(tview.AlignCenter).
			SetSelectable(false).
			SetExpansion(1))
	}

	for i, change := range hs.changes {
		row := i + 1
		delta := change.Delta()
		deltaColor := tcell.ColorGreen
		if delta < 0 {
			deltaColor = tcell.ColorRed
		}
		hs.table.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("%d", row)).SetAlign(tview.AlignRight))
		hs.table.SetCell(row, 1, tview.NewTableCell(change.MatchID))
		hs.table.SetCell(row, 2, tview.NewTableCell(change.OccurredAt.Format("2006-01-02 15:04")))
		hs.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%.1f", change.Before)).SetAlign(tview.AlignRight))
		hs.table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%.1f", change.After)).SetAlign(tview.AlignRight))
		hs.table.SetCell(row, 5, tview.NewTableCell(fmt.Sprintf("%+.1f", delta)).SetAlign(tview.AlignRight).SetTextColor(deltaColor))
	}
	if len(hs.changes) > 0 {
		hs.table.Select(len(hs.changes), 0)
	}

	hs.updateSummary()
}

func (hs *HistoryScreen) updateSummary() {
	if len(hs.changes) == 0 {
		hs.summary.SetText(fmt.Sprintf("[gray]%s has no rated matches in %s[white]", hs.displayName(), hs.scopeLabel()))
		return
	}

	first, last := hs.changes[0], hs.changes[len(hs.changes)-1]
	best, worst := first.Delta(), first.Delta()
	peak := first.After
	for _, c := range hs.changes {
		best = max(best, c.Delta())
		worst = min(worst, c.Delta())
		peak = max(peak, c.After)
	}

	hs.summary.SetText(fmt.Sprintf(
		"Matches: [yellow]%d[white]  Start: %.1f  Current: [green]%.1f[white]  Net: %+.1f\nPeak: %.1f  Best match: %+.1f  Worst match: %+.1f",
		len(hs.changes), first.Before, last.After, last.After-first.Before, peak, best, worst))
}
