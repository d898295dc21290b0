package components

import (
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/journal"
	"github.com/pschwagler/beach-kings-sub002/pkg/season"
)

func testReport(mode data.ScoringMode) *journal.StandingsReport {
	stats := []data.SeasonStats{
		{PlayerID: "alice", Points: 9, Rating: 1230, Wins: 3, MatchesPlayed: 3},
		{PlayerID: "bob", Points: 5, Rating: 1200, Wins: 1, Losses: 2, MatchesPlayed: 3},
		{PlayerID: "carol", Points: 2, Rating: 1170, Losses: 2, MatchesPlayed: 2},
	}
	var system season.ScoringSystem = season.DefaultPointsSystem()
	if mode == data.ModeSeasonRating {
		system = season.SeasonRating{}
	}
	return &journal.StandingsReport{
		Scope:     "s1",
		Mode:      mode,
		StartDate: "2025-06-01",
		EndDate:   "2025-06-10",
		Matches:   4,
		Standings: season.BuildStandings(stats, system),
		Names:     map[string]string{"alice": "Alice"},
	}
}

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNewProgress(t *testing.T) {
	progress := NewProgress(ProgressConfig{})

	require.NotNil(t, progress)
	assert.Equal(t, tcell.ColorBlue, progress.progressColor)
	assert.Equal(t, tcell.ColorGreen, progress.completeColor)
	assert.NotNil(t, progress.GetContainer())
	assert.Nil(t, progress.GetMetrics())
}

func TestComputeMetrics(t *testing.T) {
	tests := []struct {
		name     string
		today    time.Time
		elapsed  float64
		daysLeft int
		finished bool
		active   bool
	}{
		{"before start", day("2025-05-20 09:00"), 0, 21, false, false},
		{"first day", day("2025-06-01 18:30"), 0.1, 9, false, true},
		{"midway", day("2025-06-05 00:00"), 0.5, 5, false, true},
		{"last day", day("2025-06-10 23:59"), 1, 0, false, true},
		{"after end", day("2025-07-01 12:00"), 1, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ComputeMetrics(testReport(data.ModePointsSystem), tt.today)
			assert.InDelta(t, tt.elapsed, m.Elapsed, 1e-9)
			assert.Equal(t, tt.daysLeft, m.DaysLeft)
			assert.Equal(t, tt.finished, m.Finished)
			assert.Equal(t, tt.active, m.Active)
		})
	}
}

func TestComputeMetricsScores(t *testing.T) {
	points := ComputeMetrics(testReport(data.ModePointsSystem), day("2025-06-05 00:00"))
	assert.Equal(t, "Alice", points.Leader)
	assert.Equal(t, "9 pts", points.LeaderScore)
	assert.Equal(t, 7.0, points.Spread)
	assert.Equal(t, 4, points.Matches)
	assert.Equal(t, 3, points.Players)

	rating := ComputeMetrics(testReport(data.ModeSeasonRating), day("2025-06-05 00:00"))
	assert.Equal(t, "1230.0", rating.LeaderScore)
	assert.Equal(t, 60.0, rating.Spread)

	assert.Equal(t, &SeasonMetrics{}, ComputeMetrics(nil, time.Now()))
}

func TestProgressUpdate(t *testing.T) {
	var notified *SeasonMetrics
	config := DefaultProgressConfig()
	config.OnUpdate = func(m *SeasonMetrics) { notified = m }
	progress := NewProgress(config)

	progress.Update(testReport(data.ModePointsSystem), day("2025-06-05 00:00"))

	require.NotNil(t, notified)
	assert.Same(t, progress.GetMetrics(), notified)
	assert.Contains(t, progress.elapsedBar.GetText(true), "2025-06-01 to 2025-06-10")
	assert.Contains(t, progress.metricsText.GetText(true), "Ranked Matches: 4")
	assert.Contains(t, progress.metricsText.GetText(true), "Leader: Alice (9 pts)")
	assert.Equal(t, "In progress, 5 days left", strings.TrimSpace(progress.statusText.GetText(true)))

	progress.Update(testReport(data.ModePointsSystem), day("2025-08-01 00:00"))
	assert.Equal(t, "Season complete", strings.TrimSpace(progress.statusText.GetText(true)))

	progress.Update(testReport(data.ModePointsSystem), day("2025-01-01 00:00"))
	assert.Equal(t, "Not started", strings.TrimSpace(progress.statusText.GetText(true)))

	progress.Update(testReport(data.ModePointsSystem), day("2025-06-01 08:00"))
	assert.Equal(t, "In progress, 9 days left", strings.TrimSpace(progress.statusText.GetText(true)), "the first day counts as running")
}

func TestProgressGlobalScope(t *testing.T) {
	report := testReport(data.ModeSeasonRating)
	report.Scope = journal.GlobalScope
	report.StartDate, report.EndDate = "", ""

	progress := NewProgress(DefaultProgressConfig())
	progress.Update(report, time.Now())

	assert.Equal(t, "All seasons", strings.TrimSpace(progress.elapsedBar.GetText(true)))
	assert.Equal(t, "Global ratings", strings.TrimSpace(progress.statusText.GetText(true)))
	assert.Zero(t, progress.GetMetrics().Elapsed)
}

func TestProgressNilReport(t *testing.T) {
	progress := NewProgress(DefaultProgressConfig())
	progress.Update(nil, time.Now())

	assert.Equal(t, "No data available", strings.TrimSpace(progress.metricsText.GetText(true)))
	assert.Equal(t, "Unknown", strings.TrimSpace(progress.statusText.GetText(true)))
}

func TestCreateProgressBar(t *testing.T) {
	progress := NewProgress(DefaultProgressConfig())

	bar := progress.createProgressBar(0.5, false)
	assert.Contains(t, bar, "[blue]")
	assert.Equal(t, 15, strings.Count(bar, "█"))
	assert.Equal(t, 15, strings.Count(bar, "░"))

	assert.Contains(t, progress.createProgressBar(1, true), "[green]")
	assert.Equal(t, "abc", truncateID("abc", 16))
	assert.Equal(t, "abcdefghijklm...", truncateID("abcdefghijklmnopqrstuvwxyz", 16))
}
