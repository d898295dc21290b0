// Package tui provides the terminal standings viewer.
// This file implements the help screen that displays keyboard shortcuts and how tables are scored.
package tui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// HelpScreen provides help and keyboard shortcut information
type HelpScreen struct {
	root     *tview.Flex
	textView *tview.TextView
	app      interface{ GoBack() error }
}

// NewHelpScreen creates a new help screen
func NewHelpScreen() *HelpScreen {
	hs := &HelpScreen{
		root:     tview.NewFlex(),
		textView: tview.NewTextView(),
	}

	hs.setupLayout()
	return hs
}

// GetPrimitive returns the root primitive for this screen
func (hs *HelpScreen) GetPrimitive() tview.Primitive {
	return hs.root
}

// OnEnter is called when the help screen becomes active
func (hs *HelpScreen) OnEnter(app any) error {
	hs.app, _ = app.(interface{ GoBack() error })
	hs.updateContent()
	return nil
}

// OnExit is called when leaving the help screen
func (hs *HelpScreen) OnExit(app any) error {
	return nil
}

// GetTitle returns the screen title
func (hs *HelpScreen) GetTitle() string {
	return "Help"
}

func (hs *HelpScreen) setupLayout() {
	hs.textView.
		SetBorder(true).
		SetTitle("Help - Beach Kings Standings").
		SetTitleAlign(tview.AlignCenter)

	hs.textView.SetWrap(true).
		SetDynamicColors(true).
		SetScrollable(true)

	hs.textView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		back := event.Key() == tcell.KeyEsc ||
			(event.Key() == tcell.KeyRune && (event.Rune() == 'q' || event.Rune() == 'Q'))
		if !back {
			return event
		}
		if hs.app != nil {
			_ = hs.app.GoBack()
		}
		return nil
	})

	hs.root.AddItem(hs.textView, 0, 1, true)
}

func (hs *HelpScreen) updateContent() {
	var content strings.Builder

	content.WriteString("[yellow]Beach Kings Standings[-]\n\n")
	content.WriteString("Browse the global doubles ratings and each season's table.\n")
	content.WriteString("Only ranked matches count: the match must be marked ranked and all four players known.\n\n")

	content.WriteString("[green]Global Keyboard Shortcuts[-]\n")
	content.WriteString("═════════════════════════════\n")
	for _, binding := range globalKeyBindings {
		content.WriteString("[white]")
		content.WriteString(bindingKey(binding))
		content.WriteString("[-]  - ")
		content.WriteString(binding.Description)
		content.WriteString("\n")
	}
	content.WriteString("[white]1-9[-]  - Jump to a table\n")

	content.WriteString("\n[green]Screens[-]\n")
	content.WriteString("═══════\n")
	content.WriteString("[white]Standings[-] - Ranked table, Enter opens a player's history\n")
	content.WriteString("[white]History[-]   - Rating before and after every match of a player\n")
	content.WriteString("[white]Help[-]      - This help screen\n")

	content.WriteString("\n[green]Scoring[-]\n")
	content.WriteString("═══════\n")
	content.WriteString("Global ratings start at 1200 and move with K=40, shared by both partners.\n")
	content.WriteString("points_system seasons award 3 points for a win and 1 for a loss.\n")
	content.WriteString("season_rating seasons keep a separate rating per season with K=10.\n")
	content.WriteString("Players level on score and wins share a rank.\n")

	hs.textView.SetText(content.String())
}
