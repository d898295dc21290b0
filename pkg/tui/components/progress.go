// Package components provides reusable TUI components for the standings viewer.
// This file implements the season progress panel: how far the season has run and a
// summary of the table's score column.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/journal"
)

// SeasonMetrics is what the progress panel derived from the last report
type SeasonMetrics struct {
	Elapsed     float64 // Fraction of the season's days that have passed, 0 for the global table
	DaysLeft    int
	Finished    bool
	Active      bool // Today falls within the season window
	Matches     int
	Players     int
	Leader      string
	LeaderScore string
	Spread      float64 // Leader's score minus last place
}

// Progress displays season progress bars and table metrics
type Progress struct {
	container   *tview.Flex
	elapsedBar  *tview.TextView
	metricsText *tview.TextView
	statusText  *tview.TextView

	report  *journal.StandingsReport
	metrics *SeasonMetrics

	showBars    bool
	showMetrics bool

	progressColor tcell.Color
	completeColor tcell.Color
	textColor     tcell.Color
	borderColor   tcell.Color

	onUpdate func(metrics *SeasonMetrics)
}

// ProgressConfig holds configuration options for the progress panel
type ProgressConfig struct {
	ShowBars      bool
	ShowMetrics   bool
	ProgressColor tcell.Color
	CompleteColor tcell.Color
	TextColor     tcell.Color
	BorderColor   tcell.Color
	OnUpdate      func(metrics *SeasonMetrics)
}

// NewProgress creates a new progress panel
func NewProgress(config ProgressConfig) *Progress {
	p := &Progress{
		container:     tview.NewFlex(),
		elapsedBar:    tview.NewTextView(),
		metricsText:   tview.NewTextView(),
		statusText:    tview.NewTextView(),
		showBars:      config.ShowBars,
		showMetrics:   config.ShowMetrics,
		progressColor: config.ProgressColor,
		completeColor: config.CompleteColor,
		textColor:     config.TextColor,
		borderColor:   config.BorderColor,
		onUpdate:      config.OnUpdate,
	}

	if p.progressColor == 0 {
		p.progressColor = tcell.ColorBlue
	}
	if p.completeColor == 0 {
		p.completeColor = tcell.ColorGreen
	}
	if p.textColor == 0 {
		p.textColor = tcell.ColorWhite
	}
	if p.borderColor == 0 {
		p.borderColor = tcell.ColorDarkGray
	}

	p.initializeUI()
	return p
}

// DefaultProgressConfig returns the panel defaults
func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{
		ShowBars:      true,
		ShowMetrics:   true,
		ProgressColor: tcell.ColorBlue,
		CompleteColor: tcell.ColorGreen,
		TextColor:     tcell.ColorWhite,
		BorderColor:   tcell.ColorDarkGray,
	}
}

func (p *Progress) initializeUI() {
	p.elapsedBar.SetBorder(true).SetTitle("Season Progress")
	p.elapsedBar.SetBorderColor(p.borderColor)
	p.elapsedBar.SetTextColor(p.textColor)
	p.elapsedBar.SetDynamicColors(true)
	p.elapsedBar.SetTextAlign(tview.AlignCenter)

	p.metricsText.SetBorder(true).SetTitle("Metrics")
	p.metricsText.SetBorderColor(p.borderColor)
	p.metricsText.SetTextColor(p.textColor)
	p.metricsText.SetDynamicColors(true)

	p.statusText.SetBorder(true).SetTitle("Status")
	p.statusText.SetBorderColor(p.borderColor)
	p.statusText.SetTextColor(p.textColor)
	p.statusText.SetDynamicColors(true)

	p.container.SetDirection(tview.FlexRow)
	if p.showBars {
		p.container.AddItem(p.elapsedBar, 4, 0, false)
	}
	if p.showMetrics {
		p.container.AddItem(p.metricsText, 0, 1, false)
		p.container.AddItem(p.statusText, 4, 0, false)
	}
}

// Update recomputes the metrics from report as of today and redraws the panel
func (p *Progress) Update(report *journal.StandingsReport, today time.Time) {
	p.report = report
	p.metrics = ComputeMetrics(report, today)

	if p.showBars {
		p.updateProgressBar()
	}
	if p.showMetrics {
		p.updateMetricsDisplay()
		p.updateStatusDisplay()
	}

	if p.onUpdate != nil {
		p.onUpdate(p.metrics)
	}
}

// ComputeMetrics derives the panel metrics from a report. Dates are compared as calendar days.
func ComputeMetrics(report *journal.StandingsReport, today time.Time) *SeasonMetrics {
	m := &SeasonMetrics{}
	if report == nil {
		return m
	}
	m.Matches = report.Matches
	m.Players = len(report.Standings)

	if len(report.Standings) > 0 {
		first, last := report.Standings[0], report.Standings[len(report.Standings)-1]
		m.Leader = report.Name(first.PlayerID)
		if report.ByPoints() {
			m.LeaderScore = fmt.Sprintf("%d pts", first.Points)
			m.Spread = float64(first.Points - last.Points)
		} else {
			m.LeaderScore = fmt.Sprintf("%.1f", first.Rating)
			m.Spread = first.Rating - last.Rating
		}
	}

	if report.Scope == journal.GlobalScope {
		return m
	}
	start, errStart := data.ParseDate(report.StartDate)
	end, errEnd := data.ParseDate(report.EndDate)
	if errStart != nil || errEnd != nil {
		return m
	}

	window := data.Season{StartDate: start, EndDate: end}
	day, _ := data.ParseDate(data.FormatDate(today))
	total := end.Sub(start).Hours()/24 + 1
	passed := day.Sub(start).Hours()/24 + 1
	switch {
	case passed <= 0:
		m.Elapsed = 0
	case passed >= total:
		m.Elapsed = 1
	default:
		m.Elapsed = passed / total
	}
	m.Active = window.Active(today)
	m.Finished = !m.Active && day.After(end)
	if !m.Finished {
		m.DaysLeft = int(end.Sub(day).Hours() / 24)
	}
	return m
}

func (p *Progress) updateProgressBar() {
	if p.report == nil || p.report.Scope == journal.GlobalScope {
		p.elapsedBar.SetText("[gray]All seasons[white]")
		return
	}
	text := p.createProgressBar(p.metrics.Elapsed, p.metrics.Finished)
	text += fmt.Sprintf("\n[white]%s to %s", p.report.StartDate, p.report.EndDate)
	p.elapsedBar.SetText(text)
}

func (p *Progress) updateMetricsDisplay() {
	if p.report == nil {
		p.metricsText.SetText("No data available")
		return
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Ranked Matches: [yellow]%d[white]\n", p.metrics.Matches))
	builder.WriteString(fmt.Sprintf("Players: [green]%d[white]\n", p.metrics.Players))
	if p.metrics.Leader != "" {
		builder.WriteString(fmt.Sprintf("Leader: [cyan]%s[white] (%s)\n", truncateID(p.metrics.Leader, 16), p.metrics.LeaderScore))
		builder.WriteString(fmt.Sprintf("Spread: [blue]%.1f[white]\n", p.metrics.Spread))
	}
	p.metricsText.SetText(builder.String())
}

func (p *Progress) updateStatusDisplay() {
	p.statusText.SetText(p.statusLine())
}

func (p *Progress) statusLine() string {
	switch {
	case p.report == nil:
		return "[gray]Unknown[white]"
	case p.report.Scope == journal.GlobalScope:
		return "[blue]Global ratings[white]"
	case p.metrics.Finished:
		return "[green]Season complete[white]"
	case !p.metrics.Active:
		return "[yellow]Not started[white]"
	default:
		return fmt.Sprintf("[yellow]In progress[white], %d days left", p.metrics.DaysLeft)
	}
}

// GetContainer returns the main container for embedding in other views
func (p *Progress) GetContainer() tview.Primitive {
	return p.container
}

// GetMetrics returns the metrics of the last update
func (p *Progress) GetMetrics() *SeasonMetrics {
	return p.metrics
}

func truncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen-3] + "..."
}

func (p *Progress) createProgressBar(progress float64, isComplete bool) string {
	const barWidth = 30
	filledWidth := int(progress * barWidth)

	color := "[blue]"
	if isComplete {
		color = "[green]"
	}
	return color + strings.Repeat("█", filledWidth) + "[gray]" + strings.Repeat("░", barWidth-filledWidth) + "[white]"
}
