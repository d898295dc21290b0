package journal

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/rank"
	"github.com/pschwagler/beach-kings-sub002/pkg/season"
	"github.com/pschwagler/beach-kings-sub002/pkg/store"
)

// ExportFormat represents the format for exporting standings
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatText ExportFormat = "text"
)

// GlobalScope labels a report built from global ratings rather than a season
const GlobalScope = "global"

// ExportOptions configures export behavior
type ExportOptions struct {
	Format        ExportFormat `json:"format"`
	RoundDecimals int          `json:"round_decimals"` // Decimals kept for ratings and win rates
	IncludeStats  bool         `json:"include_stats"`  // Append summary statistics
}

// OptionsFromConfig converts the export configuration section
func OptionsFromConfig(config data.ExportConfig) ExportOptions {
	return ExportOptions{
		Format:        ExportFormat(config.Format),
		RoundDecimals: config.RoundDecimals,
		IncludeStats:  true,
	}
}

// ExportTemplate defines custom export formatting
type ExportTemplate struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	HeaderFormat string `json:"header"`
	RowFormat    string `json:"row"`
	FooterFormat string `json:"footer"`
}

// StandingsReport is a ranked table of players for a season, or for the global rating
type StandingsReport struct {
	Scope       string            `json:"scope"` // Season ID or GlobalScope
	SeasonName  string            `json:"season_name,omitempty"`
	LeagueID    string            `json:"league_id,omitempty"`
	Mode        data.ScoringMode  `json:"mode,omitempty"`
	StartDate   string            `json:"start_date,omitempty"`
	EndDate     string            `json:"end_date,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Matches     int               `json:"matches"` // Applied ranked matches behind the table
	Standings   []season.Standing `json:"standings"`
	Names       map[string]string `json:"names,omitempty"`
	Statistics  *ExportStatistics `json:"statistics,omitempty"`
}

// ByPoints reports whether the table is ordered by season points
func (r *StandingsReport) ByPoints() bool {
	return r.Mode == data.ModePointsSystem
}

// Name returns the display name of a player, falling back to the ID
func (r *StandingsReport) Name(playerID string) string {
	if name := r.Names[playerID]; name != "" {
		return name
	}
	return playerID
}

// ExportStatistics summarizes the standings' score column
type ExportStatistics struct {
	TotalPlayers      int     `json:"total_players"`
	TotalMatches      int     `json:"total_matches"`
	AverageScore      float64 `json:"average_score"`
	ScoreRange        float64 `json:"score_range"`
	StandardDeviation float64 `json:"standard_deviation"`
}

// BuildSeasonReport reads a season's standings from repo
func BuildSeasonReport(ctx context.Context, repo store.Repository, seasonID string) (*StandingsReport, error) {
	s, err := repo.GetSeason(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	system, err := season.FromSeason(s)
	if err != nil {
		return nil, err
	}
	records, err := repo.ListSeasonStats(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	matches, err := repo.ListMatchesForSeason(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	names, err := playerNames(ctx, repo)
	if err != nil {
		return nil, err
	}

	return &StandingsReport{
		Scope:       s.ID,
		SeasonName:  s.Name,
		LeagueID:    s.LeagueID,
		Mode:        system.Mode(),
		StartDate:   data.FormatDate(s.StartDate),
		EndDate:     data.FormatDate(s.EndDate),
		GeneratedAt: time.Now().UTC(),
		Matches:     countRanked(matches),
		Standings:   season.BuildStandings(records, system),
		Names:       names,
	}, nil
}

// BuildGlobalReport reads the global rating table from repo
func BuildGlobalReport(ctx context.Context, repo store.Repository) (*StandingsReport, error) {
	global, err := repo.ListGlobalStats(ctx)
	if err != nil {
		return nil, err
	}
	seasons, err := repo.ListSeasons(ctx)
	if err != nil {
		return nil, err
	}
	names, err := playerNames(ctx, repo)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, s := range seasons {
		matches, err := repo.ListMatchesForSeason(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		total += countRanked(matches)
	}

	// global records rank like a season_rating table
	records := make([]data.SeasonStats, 0, len(global))
	for _, g := range global {
		records = append(records, data.SeasonStats{
			PlayerID:      g.PlayerID,
			Mode:          data.ModeSeasonRating,
			Rating:        g.CurrentRating,
			Wins:          g.Wins,
			Losses:        g.Losses,
			MatchesPlayed: g.Wins + g.Losses,
		})
	}

	return &StandingsReport{
		Scope:       GlobalScope,
		GeneratedAt: time.Now().UTC(),
		Matches:     total,
		Standings:   season.BuildStandings(records, season.SeasonRating{}),
		Names:       names,
	}, nil
}

func playerNames(ctx context.Context, repo store.Repository) (map[string]string, error) {
	players, err := repo.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}
	return names, nil
}

func countRanked(matches []data.Match) int {
	n := 0
	for _, m := range matches {
		if m.StatsApplied && rank.ResolveMatch(m) == rank.Ranked {
			n++
		}
	}
	return n
}

// Exporter writes standings reports
type Exporter struct{}

// NewExporter creates a new exporter instance
func NewExporter() *Exporter {
	return &Exporter{}
}

// ExportToFile writes report to filePath through a temporary file and rename
func (e *Exporter) ExportToFile(report *StandingsReport, filePath string, options ExportOptions) error {
	dir := filepath.Dir(filePath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	tempFile := filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if err := e.Export(report, file, options); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("export failed: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tempFile, filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to replace target file: %w", err)
	}

	return nil
}

// ExportFileName names an export of scope taken at the given time
func ExportFileName(scope string, format ExportFormat, at time.Time) string {
	ext := string(format)
	if format == FormatText {
		ext = "txt"
	}
	return fmt.Sprintf("standings_%s_%s.%s", scope, at.Format("20060102_150405"), ext)
}

// Export writes report to writer in the configured format
func (e *Exporter) Export(report *StandingsReport, writer io.Writer, options ExportOptions) error {
	switch options.Format {
	case FormatCSV:
		return e.ExportCSV(report, writer, options)
	case FormatJSON:
		return e.ExportJSON(report, writer, options)
	case FormatText:
		return e.ExportText(report, writer, options)
	default:
		return fmt.Errorf("unsupported export format: %s", options.Format)
	}
}

// ExportCSV writes one row per player in rank order
func (e *Exporter) ExportCSV(report *StandingsReport, writer io.Writer, options ExportOptions) error {
	csvWriter := csv.NewWriter(writer)

	scoreColumn := "rating"
	if report.ByPoints() {
		scoreColumn = "points"
	}
	headers := []string{"rank", "player_id", "name", scoreColumn, "wins", "losses", "matches_played", "win_rate"}
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range report.Standings {
		record := []string{
			strconv.Itoa(row.Rank),
			row.PlayerID,
			report.Name(row.PlayerID),
			e.formatScore(report, row, options.RoundDecimals),
			strconv.Itoa(row.Wins),
			strconv.Itoa(row.Losses),
			strconv.Itoa(row.MatchesPlayed),
			formatFloat(row.WinRate(), options.RoundDecimals+2),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record for player %s: %w", row.PlayerID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportJSON writes the report as indented JSON with ratings rounded
func (e *Exporter) ExportJSON(report *StandingsReport, writer io.Writer, options ExportOptions) error {
	out := *report
	out.Standings = make([]season.Standing, len(report.Standings))
	for i, row := range report.Standings {
		row.Rating = roundTo(row.Rating, options.RoundDecimals)
		out.Standings[i] = row
	}
	if options.IncludeStats {
		out.Statistics = e.calculateExportStatistics(report)
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportText writes a human-readable standings table
func (e *Exporter) ExportText(report *StandingsReport, writer io.Writer, options ExportOptions) error {
	title := "Global Ratings"
	if report.Scope != GlobalScope {
		title = fmt.Sprintf("Season Standings: %s", report.Scope)
		if report.SeasonName != "" {
			title = fmt.Sprintf("Season Standings: %s (%s)", report.SeasonName, report.Scope)
		}
	}

	fmt.Fprintf(writer, "%s\n", title)
	fmt.Fprintf(writer, "=====================================\n\n")
	if report.Scope != GlobalScope {
		fmt.Fprintf(writer, "Dates: %s to %s\n", report.StartDate, report.EndDate)
		fmt.Fprintf(writer, "Scoring: %s\n", report.Mode)
	}
	fmt.Fprintf(writer, "Ranked matches: %d\n", report.Matches)
	fmt.Fprintf(writer, "Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))

	scoreColumn := "Rating"
	if report.ByPoints() {
		scoreColumn = "Points"
	}
	fmt.Fprintf(writer, "%-5s %-24s %10s %5s %5s %8s\n", "Rank", "Player", scoreColumn, "W", "L", "Win %")
	for _, row := range report.Standings {
		fmt.Fprintf(writer, "%-5d %-24s %10s %5d %5d %7.1f%%\n",
			row.Rank,
			truncate(report.Name(row.PlayerID), 24),
			e.formatScore(report, row, options.RoundDecimals),
			row.Wins,
			row.Losses,
			row.WinRate()*100)
	}

	if options.IncludeStats {
		if summary := e.calculateExportStatistics(report); summary != nil {
			fmt.Fprintf(writer, "\nStatistics\n")
			fmt.Fprintf(writer, "----------\n")
			fmt.Fprintf(writer, "Players: %d\n", summary.TotalPlayers)
			fmt.Fprintf(writer, "Average %s: %s\n", scoreColumn, formatFloat(summary.AverageScore, options.RoundDecimals))
			fmt.Fprintf(writer, "Range: %s\n", formatFloat(summary.ScoreRange, options.RoundDecimals))
			fmt.Fprintf(writer, "Standard Deviation: %s\n", formatFloat(summary.StandardDeviation, options.RoundDecimals))
		}
	}

	return nil
}

// ExportWithTemplate renders the header once, the row template per standing and the footer
func (e *Exporter) ExportWithTemplate(report *StandingsReport, writer io.Writer, template ExportTemplate) error {
	if template.HeaderFormat != "" {
		tmpl, err := texttemplate.New("header").Parse(template.HeaderFormat)
		if err != nil {
			return fmt.Errorf("failed to parse header template: %w", err)
		}
		if err := tmpl.Execute(writer, report); err != nil {
			return fmt.Errorf("failed to execute header template: %w", err)
		}
	}

	if template.RowFormat != "" {
		tmpl, err := texttemplate.New("row").Parse(template.RowFormat)
		if err != nil {
			return fmt.Errorf("failed to parse row template: %w", err)
		}
		for i, row := range report.Standings {
			rowData := struct {
				season.Standing
				Name  string
				Index int
			}{
				Standing: row,
				Name:     report.Name(row.PlayerID),
				Index:    i,
			}
			if err := tmpl.Execute(writer, rowData); err != nil {
				return fmt.Errorf("failed to execute row template for player %s: %w", row.PlayerID, err)
			}
		}
	}

	if template.FooterFormat != "" {
		tmpl, err := texttemplate.New("footer").Parse(template.FooterFormat)
		if err != nil {
			return fmt.Errorf("failed to parse footer template: %w", err)
		}
		if err := tmpl.Execute(writer, report); err != nil {
			return fmt.Errorf("failed to execute footer template: %w", err)
		}
	}

	return nil
}

func (e *Exporter) formatScore(report *StandingsReport, row season.Standing, decimals int) string {
	if report.ByPoints() {
		return strconv.Itoa(row.Points)
	}
	return formatFloat(row.Rating, decimals)
}

// calculateExportStatistics computes mean, spread and deviation of the score column
func (e *Exporter) calculateExportStatistics(report *StandingsReport) *ExportStatistics {
	if len(report.Standings) == 0 {
		return nil
	}

	var sum, lo, hi float64
	scores := make([]float64, len(report.Standings))
	for i, row := range report.Standings {
		score := row.Rating
		if report.ByPoints() {
			score = float64(row.Points)
		}
		scores[i] = score
		sum += score
		if i == 0 || score < lo {
			lo = score
		}
		if i == 0 || score > hi {
			hi = score
		}
	}

	average := sum / float64(len(scores))
	var variance float64
	for _, score := range scores {
		diff := score - average
		variance += diff * diff
	}
	variance /= float64(len(scores))

	return &ExportStatistics{
		TotalPlayers:      len(report.Standings),
		TotalMatches:      report.Matches,
		AverageScore:      average,
		ScoreRange:        hi - lo,
		StandardDeviation: math.Sqrt(variance),
	}
}

func roundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

func formatFloat(f float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(roundTo(f, decimals), 'f', decimals, 64)
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
