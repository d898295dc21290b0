// Package screens provides TUI screen implementations for the standings viewer.
// This file implements the standings screen where users browse the current table,
// filter and sort players, and drill into a player's rating history.
package screens

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pschwagler/beach-kings-sub002/pkg/journal"
	"github.com/pschwagler/beach-kings-sub002/pkg/season"
	"github.com/pschwagler/beach-kings-sub002/pkg/tui/components"
)

// SortOrder represents the sorting direction for standings
type SortOrder int

const (
	SortAsc SortOrder = iota
	SortDesc
)

// SortField represents the field to sort standings by
type SortField int

const (
	SortByRank SortField = iota
	SortByScore
	SortByWins
	SortByWinRate
	SortByName
	sortFieldCount
)

var sortFieldNames = []string{"Rank", "Score", "Wins", "Win %", "Name"}

// String returns the display name of the sort field
func (f SortField) String() string {
	if f < 0 || f >= sortFieldCount {
		return "unknown"
	}
	return sortFieldNames[f]
}

// FilterCriteria holds the current filtering settings
type FilterCriteria struct {
	SearchText string // Matched against player ID and name
	MinMatches int
}

// standingsApp is what the standings screen needs from the application
type standingsApp interface {
	CurrentReport() (*journal.StandingsReport, error)
	ShowHistory(playerID string) error
	GoBack() error
}

// StandingsScreen shows the standings table of the selected scope
type StandingsScreen struct {
	container     *tview.Flex
	mainLayout    *tview.Flex
	sidebarLayout *tview.Flex

	table           *tview.Table
	filterForm      *tview.Form
	statisticsPanel *tview.TextView
	progress        *components.Progress

	statusBar *tview.TextView
	helpBar   *tview.TextView

	report    *journal.StandingsReport
	rows      []season.Standing
	sortField SortField
	sortOrder SortOrder
	filter    FilterCriteria

	now func() time.Time
	app standingsApp
}

// NewStandingsScreen creates a new standings screen
func NewStandingsScreen() *StandingsScreen {
	ss := &StandingsScreen{
		container:       tview.NewFlex(),
		mainLayout:      tview.NewFlex(),
		sidebarLayout:   tview.NewFlex(),
		table:           tview.NewTable(),
		filterForm:      tview.NewForm(),
		statisticsPanel: tview.NewTextView(),
		progress:        components.NewProgress(components.DefaultProgressConfig()),
		statusBar:       tview.NewTextView(),
		helpBar:         tview.NewTextView(),
		sortField:       SortByRank,
		sortOrder:       SortAsc,
		now:             time.Now,
	}

	ss.setupUI()
	ss.setupKeyBindings()
	return ss
}

// GetPrimitive returns the main primitive for the standings screen
func (ss *StandingsScreen) GetPrimitive() tview.Primitive {
	return ss.container
}

// OnEnter loads the report of the current scope
func (ss *StandingsScreen) OnEnter(app any) error {
	a, ok := app.(standingsApp)
	if !ok {
		return fmt.Errorf("standings screen: unsupported app %T", app)
	}
	ss.app = a
	return ss.Reload()
}

// OnExit is called when leaving the standings screen
func (ss *StandingsScreen) OnExit(app any) error {
	return nil
}

// GetTitle returns the screen title
func (ss *StandingsScreen) GetTitle() string {
	if ss.report == nil {
		return "Standings"
	}
	name := "Global Ratings"
	if ss.report.Scope != journal.GlobalScope {
		name = ss.report.SeasonName
		if name == "" {
			name = ss.report.Scope
		}
	}
	if len(ss.rows) != len(ss.report.Standings) {
		return fmt.Sprintf("%s (%d/%d players)", name, len(ss.rows), len(ss.report.Standings))
	}
	return fmt.Sprintf("%s (%d players)", name, len(ss.report.Standings))
}

// GetHelpText returns help text for the standings screen
func (ss *StandingsScreen) GetHelpText() []string {
	return []string{
		"Arrow Keys: Navigate standings",
		"Enter: Rating history of the selected player",
		"S: Change sort field",
		"O: Toggle sort order",
		"F: Focus filter panel",
		"C: Clear all filters",
		"R: Reload standings",
	}
}

// Reload fetches the report again and redraws the screen
func (ss *StandingsScreen) Reload() error {
	report, err := ss.app.CurrentReport()
	if err != nil {
		return fmt.Errorf("failed to load standings: %w", err)
	}
	ss.report = report
	ss.progress.Update(report, ss.now())

	ss.applyFilterAndSort()
	ss.updateDisplay()
	ss.updateStatistics()
	return nil
}

func (ss *StandingsScreen) setupUI() {
	ss.table.SetBorder(true).
		SetTitle(" Standings ").
		SetTitleAlign(tview.AlignLeft)
	ss.table.SetSelectable(true, false).
		SetFixed(1, 0)
	ss.table.SetSelectedFunc(func(row, column int) {
		ss.openHistory(row)
	})

	ss.setupTableHeaders()
	ss.setupFilterForm()

	ss.statisticsPanel.SetBorder(true).
		SetTitle(" Statistics ").
		SetTitleAlign(tview.AlignLeft)
	ss.statisticsPanel.SetDynamicColors(true)

	ss.statusBar.SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)

	ss.helpBar.SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]Enter:History  S:Sort  O:Order  F:Filter  C:Clear  R:Reload[white]")

	ss.sidebarLayout.SetDirection(tview.FlexRow).
		AddItem(ss.filterForm, 7, 0, false).
		AddItem(ss.progress.GetContainer(), 0, 2, false).
		AddItem(ss.statisticsPanel, 0, 1, false)

	ss.mainLayout.SetDirection(tview.FlexColumn).
		AddItem(ss.table, 0, 3, true).
		AddItem(ss.sidebarLayout, 40, 1, false)

	ss.container.SetDirection(tview.FlexRow).
		AddItem(ss.mainLayout, 0, 1, true).
		AddItem(ss.statusBar, 1, 1, false).
		AddItem(ss.helpBar, 1, 1, false)
}

func (ss *StandingsScreen) setupTableHeaders() {
	scoreColumn := "Rating"
	if ss.report != nil && ss.report.ByPoints() {
		scoreColumn = "Points"
	}
	headers := []string{"Rank", "Player", scoreColumn, "W", "L", "Played", "Win %"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetAlign(tview.AlignCenter).
			SetSelectable(false).
			SetExpansion(1)
		if col == 1 {
			cell.SetExpansion(3)
		}
		ss.table.SetCell(0, col, cell)
	}
}

func (ss *StandingsScreen) setupFilterForm() {
	ss.filterForm.SetBorder(true).
		SetTitle(" Filters ").
		SetTitleAlign(tview.AlignLeft)

	ss.filterForm.AddInputField("Search:", "", 20, nil, func(text string) {
		ss.filter.SearchText = text
		ss.refresh()
	})

	ss.filterForm.AddInputField("Min Matches:", "0", 6, tview.InputFieldInteger, func(text string) {
		if n, err := strconv.Atoi(text); err == nil && n >= 0 {
			ss.filter.MinMatches = n
			ss.refresh()
		}
	})
}

func (ss *StandingsScreen) setupKeyBindings() {
	ss.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			ss.goBack()
			return nil
		case tcell.KeyRune:
		default:
			return event
		}

		switch event.Rune() {
		case 's', 'S':
			ss.cycleSortField()
			return nil
		case 'o', 'O':
			ss.toggleSortOrder()
			return nil
		case 'f', 'F':
			ss.focusFilterForm()
			return nil
		case 'c', 'C':
			ss.clearFilters()
			return nil
		case 'r', 'R':
			ss.reloadWithStatus()
			return nil
		}
		return event
	})

	ss.filterForm.SetCancelFunc(func() {
		ss.focusTable()
	})
}

func (ss *StandingsScreen) refresh() {
	ss.applyFilterAndSort()
	ss.updateDisplay()
	ss.updateStatistics()
}

func (ss *StandingsScreen) applyFilterAndSort() {
	ss.rows = ss.rows[:0]
	if ss.report == nil {
		return
	}
	for _, row := range ss.report.Standings {
		if ss.matchesFilter(row) {
			ss.rows = append(ss.rows, row)
		}
	}
	ss.sortRows()
}

func (ss *StandingsScreen) matchesFilter(row season.Standing) bool {
	if row.MatchesPlayed < ss.filter.MinMatches {
		return false
	}
	if ss.filter.SearchText != "" {
		search := strings.ToLower(ss.filter.SearchText)
		if !strings.Contains(strings.ToLower(row.PlayerID), search) &&
			!strings.Contains(strings.ToLower(ss.report.Name(row.PlayerID)), search) {
			return false
		}
	}
	return true
}

func (ss *StandingsScreen) score(row season.Standing) float64 {
	if ss.report.ByPoints() {
		return float64(row.Points)
	}
	return row.Rating
}

// sortRows orders by the sort field with table order as the tie-break
func (ss *StandingsScreen) sortRows() {
	sort.SliceStable(ss.rows, func(i, j int) bool {
		a, b := ss.rows[i], ss.rows[j]
		var less, equal bool

		switch ss.sortField {
		case SortByRank:
			less, equal = a.Rank < b.Rank, a.Rank == b.Rank
		case SortByScore:
			less, equal = ss.score(a) > ss.score(b), ss.score(a) == ss.score(b)
		case SortByWins:
			less, equal = a.Wins > b.Wins, a.Wins == b.Wins
		case SortByWinRate:
			less, equal = a.WinRate() > b.WinRate(), a.WinRate() == b.WinRate()
		case SortByName:
			na, nb := strings.ToLower(ss.report.Name(a.PlayerID)), strings.ToLower(ss.report.Name(b.PlayerID))
			less, equal = na < nb, na == nb
		}

		if equal {
			return false
		}
		if ss.sortOrder == SortDesc {
			return !less
		}
		return less
	})
}

func (ss *StandingsScreen) updateDisplay() {
	selected, _ := ss.table.GetSelection()

	ss.table.Clear()
	ss.setupTableHeaders()
	for i, row := range ss.rows {
		ss.addStandingRow(i+1, row)
	}
	ss.updateStatusBar()

	if len(ss.rows) == 0 {
		return
	}
	if selected < 1 {
		selected = 1
	}
	if selected > len(ss.rows) {
		selected = len(ss.rows)
	}
	ss.table.Select(selected, 0)
}

func (ss *StandingsScreen) addStandingRow(row int, standing season.Standing) {
	ss.table.SetCell(row, 0,
		tview.NewTableCell(strconv.Itoa(standing.Rank)).
			SetAlign(tview.AlignCenter).
			SetTextColor(rankColor(standing.Rank)).
			SetReference(standing.PlayerID))

	name := ss.report.Name(standing.PlayerID)
	if len(name) > 28 {
		name = name[:25] + "..."
	}
	ss.table.SetCell(row, 1,
		tview.NewTableCell(name).
			SetAlign(tview.AlignLeft).
			SetTextColor(tcell.ColorWhite).
			SetExpansion(3))

	scoreText := fmt.Sprintf("%.1f", standing.Rating)
	if ss.report.ByPoints() {
		scoreText = strconv.Itoa(standing.Points)
	}
	ss.table.SetCell(row, 2, tview.NewTableCell(scoreText).SetAlign(tview.AlignRight))
	ss.table.SetCell(row, 3, tview.NewTableCell(strconv.Itoa(standing.Wins)).SetAlign(tview.AlignRight).SetTextColor(tcell.ColorGreen))
	ss.table.SetCell(row, 4, tview.NewTableCell(strconv.Itoa(standing.Losses)).SetAlign(tview.AlignRight).SetTextColor(tcell.ColorRed))
	ss.table.SetCell(row, 5, tview.NewTableCell(strconv.Itoa(standing.MatchesPlayed)).SetAlign(tview.AlignRight))
	ss.table.SetCell(row, 6, tview.NewTableCell(fmt.Sprintf("%.0f%%", standing.WinRate()*100)).SetAlign(tview.AlignRight))
}

func rankColor(rank int) tcell.Color {
	switch rank {
	case 1:
		return tcell.ColorGold
	case 2:
		return tcell.ColorSilver
	case 3:
		return tcell.ColorOrange
	default:
		return tcell.ColorWhite
	}
}

func (ss *StandingsScreen) updateStatusBar() {
	total := 0
	if ss.report != nil {
		total = len(ss.report.Standings)
	}
	order := map[SortOrder]string{SortAsc: "↑", SortDesc: "↓"}[ss.sortOrder]

	status := fmt.Sprintf("[blue]Showing %d/%d players | Sort: %s %s | ", len(ss.rows), total, ss.sortField, order)
	if ss.filter.SearchText != "" {
		status += fmt.Sprintf("Search: '%s' | ", ss.filter.SearchText)
	}
	if ss.filter.MinMatches > 0 {
		status += fmt.Sprintf("Min matches: %d | ", ss.filter.MinMatches)
	}
	status += "Enter for history[white]"
	ss.statusBar.SetText(status)
}

func (ss *StandingsScreen) updateStatistics() {
	if len(ss.rows) == 0 {
		ss.statisticsPanel.SetText("[gray]No players to show[white]")
		return
	}

	var total, lo, hi float64
	var wins, played int
	for i, row := range ss.rows {
		score := ss.score(row)
		total += score
		if i == 0 || score < lo {
			lo = score
		}
		if i == 0 || score > hi {
			hi = score
		}
		wins += row.Wins
		played += row.MatchesPlayed
	}

	label := "Rating"
	if ss.report.ByPoints() {
		label = "Points"
	}
	text := fmt.Sprintf(`[yellow]%s:[white]
Average: %.1f
Range: %.1f - %.1f

[yellow]Players:[white]
Displayed: %d
Total: %d
Appearances: %d (%d wins)`,
		label, total/float64(len(ss.rows)), lo, hi,
		len(ss.rows), len(ss.report.Standings), played, wins)
	ss.statisticsPanel.SetText(text)
}

func (ss *StandingsScreen) cycleSortField() {
	ss.sortField = (ss.sortField + 1) % sortFieldCount
	ss.refresh()
}

func (ss *StandingsScreen) toggleSortOrder() {
	if ss.sortOrder == SortAsc {
		ss.sortOrder = SortDesc
	} else {
		ss.sortOrder = SortAsc
	}
	ss.refresh()
}

func (ss *StandingsScreen) focusFilterForm() {
	if focuser, ok := ss.app.(interface{ SetFocus(p tview.Primitive) }); ok {
		focuser.SetFocus(ss.filterForm)
	}
}

func (ss *StandingsScreen) focusTable() {
	if focuser, ok := ss.app.(interface{ SetFocus(p tview.Primitive) }); ok {
		focuser.SetFocus(ss.table)
	}
}

func (ss *StandingsScreen) clearFilters() {
	ss.filter = FilterCriteria{}
	ss.filterForm.GetFormItemByLabel("Search:").(*tview.InputField).SetText("")
	ss.filterForm.GetFormItemByLabel("Min Matches:").(*tview.InputField).SetText("0")
	ss.refresh()
}

func (ss *StandingsScreen) reloadWithStatus() {
	if err := ss.Reload(); err != nil {
		ss.statusBar.SetText(fmt.Sprintf("[red]Error loading standings: %v[white]", err))
		return
	}
	ss.statusBar.SetText("[green]Standings reloaded[white]")
}

// selectedPlayer returns the player on a table row, "" for the header or an empty table
func (ss *StandingsScreen) selectedPlayer(row int) string {
	if row < 1 || row > len(ss.rows) {
		return ""
	}
	id, _ := ss.table.GetCell(row, 0).GetReference().(string)
	return id
}

func (ss *StandingsScreen) openHistory(row int) {
	id := ss.selectedPlayer(row)
	if id == "" || ss.app == nil {
		return
	}
	if err := ss.app.ShowHistory(id); err != nil {
		ss.statusBar.SetText(fmt.Sprintf("[red]%v[white]", err))
	}
}

func (ss *StandingsScreen) goBack() {
	if ss.app != nil {
		_ = ss.app.GoBack()
	}
}
