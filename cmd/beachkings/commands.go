package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/journal"
	"github.com/pschwagler/beach-kings-sub002/pkg/rank"
	"github.com/pschwagler/beach-kings-sub002/pkg/season"
	"github.com/pschwagler/beach-kings-sub002/pkg/store"
	"github.com/pschwagler/beach-kings-sub002/pkg/tui"
)

// AddPlayerCommand handles 'beachkings add-player'
type AddPlayerCommand struct {
	ID   string `long:"id" description:"Player identifier (generated when empty)"`
	Name string `long:"name" short:"n" description:"Display name" required:"true"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for AddPlayerCommand
func (c *AddPlayerCommand) Execute(args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	player := data.Player{ID: c.ID, Name: c.Name, CreatedAt: time.Now().UTC()}
	if player.ID == "" {
		player.ID = uuid.NewString()
	}

	err = e.store.RunInTx(ctx, func(repo store.Repository) error {
		if err := player.Validate(); err != nil {
			return err
		}
		return repo.CreatePlayer(ctx, player)
	})
	if err != nil {
		return engineError("Failed to add player", err, map[string]interface{}{"player_id": player.ID})
	}

	fmt.Fprintf(stdout, "Added player: %s (%s)\n", player.Name, player.ID)
	return nil
}

// AddSeasonCommand handles 'beachkings add-season'
type AddSeasonCommand struct {
	ID         string `long:"id" description:"Season identifier (generated when empty)"`
	Name       string `long:"name" short:"n" description:"Season name" required:"true"`
	League     string `long:"league" description:"League the season belongs to"`
	Start      string `long:"start" description:"First day (YYYY-MM-DD)" required:"true"`
	End        string `long:"end" description:"Last day (YYYY-MM-DD)" required:"true"`
	Scoring    string `long:"scoring" description:"Scoring system" choice:"points_system" choice:"season_rating" default:"points_system"`
	WinPoints  int    `long:"win-points" description:"Points per win in points_system seasons" default:"3"`
	LossPoints int    `long:"loss-points" description:"Points per loss in points_system seasons" default:"1"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for AddSeasonCommand
func (c *AddSeasonCommand) Execute(args []string) error {
	start, err := data.ParseDate(c.Start)
	if err != nil {
		return &CLIError{Code: ExitValidationError, Message: fmt.Sprintf("Invalid start date %q: %v", c.Start, err)}
	}
	end, err := data.ParseDate(c.End)
	if err != nil {
		return &CLIError{Code: ExitValidationError, Message: fmt.Sprintf("Invalid end date %q: %v", c.End, err)}
	}

	system, err := scoringSystem(c.Scoring, c.WinPoints, c.LossPoints)
	if err != nil {
		return engineError("Invalid scoring system", err, map[string]interface{}{"scoring": c.Scoring})
	}

	s := data.Season{
		ID:        c.ID,
		LeagueID:  c.League,
		Name:      c.Name,
		StartDate: start,
		EndDate:   end,
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := season.ApplyToSeason(&s, system); err != nil {
		return engineError("Invalid scoring system", err, nil)
	}
	if err := s.Validate(); err != nil {
		return engineError("Invalid season", err, map[string]interface{}{"season_id": s.ID})
	}

	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	err = e.store.RunInTx(ctx, func(repo store.Repository) error {
		return repo.CreateSeason(ctx, s)
	})
	if err != nil {
		return engineError("Failed to add season", err, map[string]interface{}{"season_id": s.ID})
	}

	fmt.Fprintf(stdout, "Added season: %s (%s, %s)\n", s.Name, s.ID, s.ScoringSystem)
	return nil
}

// ImportCommand handles 'beachkings import'
type ImportCommand struct {
	Input  string `long:"input" short:"i" description:"Path to CSV file containing matches" required:"true"`
	Season string `long:"season" short:"s" description:"Season for rows without a season_id column"`
	DryRun bool   `long:"dry-run" description:"Parse and report without applying"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for ImportCommand
func (c *ImportCommand) Execute(args []string) error {
	if _, err := os.Stat(c.Input); os.IsNotExist(err) {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Input file not found: %s", c.Input),
			Details: map[string]interface{}{
				"file": c.Input,
			},
			Suggestions: []string{
				"Check file path and name",
				"Use absolute path if needed",
			},
		}
	}

	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	result, err := data.LoadMatchesFromCSV(c.Input, c.Season, e.config.Import)
	if err != nil {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Failed to load CSV file: %v", err),
			Details: map[string]interface{}{
				"file": c.Input,
			},
			Suggestions: []string{
				"Required columns are occurred_at, a1, a2, b1, b2, score_a and score_b",
				"Check the import delimiter in the configuration",
				"Ensure file encoding is UTF-8",
			},
		}
	}

	fmt.Fprintf(stdout, "Parsed %d matches from %s\n", result.SuccessfulRows, c.Input)
	outputImportIssues(stdout, result)

	if c.DryRun || len(result.Matches) == 0 {
		return nil
	}

	batch, err := e.agg.ApplyMatches(ctx, result.Matches)
	if err != nil {
		return engineError("Import stopped", err, map[string]interface{}{
			"file":    c.Input,
			"applied": batch.Applied(),
		})
	}

	outputBatch(stdout, batch, c.Global.Verbose)
	return nil
}

// SeedCommand handles 'beachkings seed'
type SeedCommand struct {
	Fixture string `long:"fixture" short:"f" description:"Path to YAML fixture" required:"true"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for SeedCommand. Players and seasons that
// already exist are left as they are.
func (c *SeedCommand) Execute(args []string) error {
	fixture, err := data.LoadFixture(c.Fixture)
	if err != nil {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Failed to load fixture: %v", err),
			Details: map[string]interface{}{
				"file": c.Fixture,
			},
		}
	}
	seasons, err := fixture.SeasonModels()
	if err != nil {
		return engineError("Invalid fixture season", err, map[string]interface{}{"file": c.Fixture})
	}
	matches, err := fixture.MatchModels()
	if err != nil {
		return engineError("Invalid fixture match", err, map[string]interface{}{"file": c.Fixture})
	}

	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	created := 0
	err = e.store.RunInTx(ctx, func(repo store.Repository) error {
		for _, player := range fixture.Players {
			if player.CreatedAt.IsZero() {
				player.CreatedAt = time.Now().UTC()
			}
			_, err := repo.GetPlayer(ctx, player.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err := repo.CreatePlayer(ctx, player); err != nil {
				return err
			}
			created++
		}
		for _, s := range seasons {
			_, err := repo.GetSeason(ctx, s.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err := repo.CreateSeason(ctx, s); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return engineError("Failed to seed players and seasons", err, map[string]interface{}{"file": c.Fixture})
	}
	e.logger.Debug().Int("created", created).Msg("fixture players and seasons stored")

	batch, err := e.agg.ApplyMatches(ctx, matches)
	if err != nil {
		return engineError("Seeding stopped", err, map[string]interface{}{
			"file":    c.Fixture,
			"applied": batch.Applied(),
		})
	}

	fmt.Fprintf(stdout, "Seeded %d players, %d seasons and %d matches from %s\n",
		len(fixture.Players), len(seasons), len(matches), c.Fixture)
	outputBatch(stdout, batch, c.Global.Verbose)
	return nil
}

// ApplyCommand handles 'beachkings apply'
type ApplyCommand struct {
	Match string `long:"match" short:"m" description:"Identifier of a stored match" required:"true"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for ApplyCommand
func (c *ApplyCommand) Execute(args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	var match data.Match
	err = e.store.View(ctx, func(repo store.Repository) error {
		var err error
		match, err = repo.GetMatch(ctx, c.Match)
		return err
	})
	if err != nil {
		return engineError("Failed to load match", err, map[string]interface{}{"match_id": c.Match})
	}

	result, err := e.agg.ApplyMatch(ctx, match)
	if err != nil {
		return engineError("Failed to apply match", err, map[string]interface{}{"match_id": c.Match})
	}

	if !result.Applied {
		fmt.Fprintf(stdout, "Match %s skipped: %s\n", result.MatchID, result.SkipReason)
		return nil
	}
	fmt.Fprintf(stdout, "Match %s applied\n", result.MatchID)
	if len(result.Replayed) > 0 {
		fmt.Fprintf(stdout, "Replayed %d later matches\n", len(result.Replayed))
	}
	for _, change := range result.Global {
		fmt.Fprintf(stdout, "  %-20s %8.1f -> %8.1f (%+.1f)\n", change.PlayerID, change.Before, change.After, change.Delta())
	}
	return nil
}

// ClaimCommand handles 'beachkings claim'
type ClaimCommand struct {
	Slot   string `long:"slot" description:"Placeholder slot identifier" required:"true"`
	Player string `long:"player" short:"p" description:"Registered player taking the slot" required:"true"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for ClaimCommand
func (c *ClaimCommand) Execute(args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	result, err := e.agg.OnPlaceholderClaimed(ctx, rank.Claim{SlotID: c.Slot, PlayerID: c.Player})
	if err != nil {
		return engineError("Failed to claim slot", err, map[string]interface{}{
			"slot_id":   c.Slot,
			"player_id": c.Player,
		})
	}

	fmt.Fprintf(stdout, "Slot %s claimed by %s: %d roster positions bound, %d matches applied, %d pending\n",
		result.SlotID, result.PlayerID, result.Bound, len(result.Applied), len(result.Pending))
	if c.Global.Verbose {
		for _, applied := range result.Applied {
			fmt.Fprintf(stdout, "  + %s (%s)\n", applied.MatchID, applied.SeasonID)
		}
		for _, pending := range result.Pending {
			fmt.Fprintf(stdout, "  ~ %s\n", pending)
		}
	}
	return nil
}

// RecomputeCommand handles 'beachkings recompute-season'
type RecomputeCommand struct {
	Season string `long:"season" short:"s" description:"Season to rebuild" required:"true"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for RecomputeCommand
func (c *RecomputeCommand) Execute(args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	result, err := e.agg.RecomputeSeason(ctx, c.Season)
	if err != nil {
		return engineError("Failed to recompute season", err, map[string]interface{}{"season_id": c.Season})
	}

	fmt.Fprintf(stdout, "Recomputed season %s (%s) from %d matches for %d players\n",
		result.SeasonID, result.Mode, len(result.Matches), len(result.Stats))
	return nil
}

// SetScoringCommand handles 'beachkings set-scoring'
type SetScoringCommand struct {
	Season     string `long:"season" short:"s" description:"Season to change" required:"true"`
	Scoring    string `long:"scoring" description:"New scoring system" choice:"points_system" choice:"season_rating" required:"true"`
	WinPoints  int    `long:"win-points" description:"Points per win in points_system seasons" default:"3"`
	LossPoints int    `long:"loss-points" description:"Points per loss in points_system seasons" default:"1"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for SetScoringCommand
func (c *SetScoringCommand) Execute(args []string) error {
	system, err := scoringSystem(c.Scoring, c.WinPoints, c.LossPoints)
	if err != nil {
		return engineError("Invalid scoring system", err, map[string]interface{}{"scoring": c.Scoring})
	}

	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	result, err := e.agg.ChangeScoringSystem(ctx, c.Season, system)
	if err != nil {
		return engineError("Failed to change scoring system", err, map[string]interface{}{"season_id": c.Season})
	}

	fmt.Fprintf(stdout, "Season %s now uses %s, recomputed from %d matches\n",
		result.SeasonID, result.Mode, len(result.Matches))
	return nil
}

// StandingsCommand handles 'beachkings standings'
type StandingsCommand struct {
	Season      string `long:"season" short:"s" description:"Season to show (global ratings when empty)"`
	Format      string `long:"format" description:"Output format" choice:"table" choice:"json" choice:"csv" default:"table"`
	Interactive bool   `long:"interactive" short:"i" description:"Browse standings in the terminal UI"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for StandingsCommand
func (c *StandingsCommand) Execute(args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	source := tui.StoreSource{Store: e.store}

	if c.Interactive {
		return c.runInteractive(e, source)
	}

	report, err := source.Report(ctx, scopeID(c.Season))
	if err != nil {
		return engineError("Failed to build standings", err, map[string]interface{}{"season_id": c.Season})
	}

	options := journal.OptionsFromConfig(e.config.Export)
	exporter := journal.NewExporter()

	switch c.Format {
	case "json":
		options.Format = journal.FormatJSON
		options.IncludeStats = true
		err = exporter.ExportJSON(report, stdout, options)
	case "csv":
		options.Format = journal.FormatCSV
		err = exporter.ExportCSV(report, stdout, options)
	default:
		outputStandingsTable(stdout, report, options.RoundDecimals)
	}
	if err != nil {
		return &CLIError{
			Code:    ExitExportError,
			Message: fmt.Sprintf("Failed to write standings: %v", err),
		}
	}
	return nil
}

func (c *StandingsCommand) runInteractive(e *engine, source tui.Source) error {
	exportDir, err := os.Getwd()
	if err != nil {
		exportDir = "."
	}

	app, err := tui.NewApp(source, e.config.Export, exportDir)
	if err != nil {
		return &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Failed to start standings viewer: %v", err),
		}
	}

	// Log lines would tear the terminal UI
	log.Logger = zerolog.Nop()

	if err := app.Run(); err != nil {
		return &CLIError{
			Code:    ExitStoreError,
			Message: fmt.Sprintf("Standings viewer failed: %v", err),
		}
	}
	return nil
}

// HistoryCommand handles 'beachkings history'
type HistoryCommand struct {
	Player string `long:"player" short:"p" description:"Player to show" required:"true"`
	Season string `long:"season" short:"s" description:"Season rating history (global when empty)"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for HistoryCommand
func (c *HistoryCommand) Execute(args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	changes, err := tui.StoreSource{Store: e.store}.History(ctx, c.Player, scopeID(c.Season))
	if err != nil {
		return engineError("Failed to load rating history", err, map[string]interface{}{"player_id": c.Player})
	}

	if len(changes) == 0 {
		fmt.Fprintf(stdout, "%s has no rated matches in %s\n", c.Player, scopeID(c.Season))
		return nil
	}

	fmt.Fprintf(stdout, "%-20s %-16s %8s %8s %7s\n", "MATCH", "WHEN", "BEFORE", "AFTER", "CHANGE")
	for _, change := range changes {
		fmt.Fprintf(stdout, "%-20s %-16s %8.1f %8.1f %+7.1f\n",
			change.MatchID, change.OccurredAt.Format("2006-01-02 15:04"), change.Before, change.After, change.Delta())
	}
	return nil
}

// ExportCommand handles 'beachkings export'
type ExportCommand struct {
	Season       string `long:"season" short:"s" description:"Season to export (global ratings when empty)"`
	Output       string `long:"output" short:"o" description:"Output file path"`
	Format       string `long:"format" description:"Export format (csv/json/text, configuration default when empty)"`
	IncludeStats bool   `long:"include-stats" description:"Include standings statistics"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for ExportCommand
func (c *ExportCommand) Execute(args []string) error {
	ctx := context.Background()
	e, err := openEngine(ctx, c.Global)
	if err != nil {
		return err
	}
	defer e.close()

	options := journal.OptionsFromConfig(e.config.Export)
	if c.Format != "" {
		options.Format = journal.ExportFormat(c.Format)
	}
	options.IncludeStats = c.IncludeStats

	// Generate output filename if not specified
	scope := scopeID(c.Season)
	outputFile := c.Output
	if outputFile == "" {
		outputFile = journal.ExportFileName(scope, options.Format, time.Now())
	}
	if _, err := os.Stat(filepath.Dir(outputFile)); err == nil {
		if err := data.CheckWritable(outputFile); err != nil {
			return &CLIError{
				Code:    ExitExportError,
				Message: fmt.Sprintf("Cannot write to output file %s: %v", outputFile, err),
				Details: map[string]interface{}{
					"output_file": outputFile,
				},
				Suggestions: []string{
					"Check output directory permissions",
				},
			}
		}
	}

	report, err := tui.StoreSource{Store: e.store}.Report(ctx, scope)
	if err != nil {
		return engineError("Failed to build standings", err, map[string]interface{}{"season_id": c.Season})
	}

	if err := journal.NewExporter().ExportToFile(report, outputFile, options); err != nil {
		return &CLIError{
			Code:    ExitExportError,
			Message: fmt.Sprintf("Export failed: %v", err),
			Details: map[string]interface{}{
				"output_file": outputFile,
				"format":      options.Format,
			},
			Suggestions: []string{
				"Check output directory permissions",
				"Ensure sufficient disk space",
				"Try different output format",
			},
		}
	}

	fmt.Fprintf(stdout, "Exported standings to: %s\n", outputFile)
	if c.Global.Verbose {
		fmt.Fprintf(stdout, "Format: %s\n", options.Format)
		fmt.Fprintf(stdout, "Players: %d\n", len(report.Standings))
	}
	return nil
}

// VerifyJournalCommand handles 'beachkings verify-journal'
type VerifyJournalCommand struct {
	Directory string `long:"directory" short:"d" description:"Ledger directory (configured journal directory when empty)"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for VerifyJournalCommand
func (c *VerifyJournalCommand) Execute(args []string) error {
	config, err := loadConfiguration(c.Global)
	if err != nil {
		return err
	}
	setupLogger(config.Log, c.Global.Verbose)

	directory := c.Directory
	if directory == "" {
		directory = config.Journal.Directory
	}
	path := filepath.Join(directory, journal.LedgerFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Ledger not found: %s", path),
			Details: map[string]interface{}{
				"file": path,
			},
			Suggestions: []string{
				"Enable the journal with --journal <directory> or journal.enabled in the configuration",
			},
		}
	}

	ledger, err := journal.NewLedger(directory)
	if err == nil {
		defer ledger.Close()
		err = ledger.VerifyIntegrity()
	}
	if err != nil {
		return &CLIError{
			Code:    ExitJournalError,
			Message: fmt.Sprintf("Ledger verification failed: %v", err),
			Details: map[string]interface{}{
				"file": path,
			},
		}
	}

	statistics, err := ledger.Statistics()
	if err != nil {
		return &CLIError{
			Code:    ExitJournalError,
			Message: fmt.Sprintf("Failed to read ledger: %v", err),
		}
	}

	fmt.Fprintf(stdout, "Ledger OK: %s\n", path)
	fmt.Fprintf(stdout, "  Entries: %d\n", statistics.TotalEntries)
	fmt.Fprintf(stdout, "  Matches: %d\n", statistics.Matches)
	fmt.Fprintf(stdout, "  Players: %d\n", statistics.Players)
	if c.Global.Verbose {
		for eventType, count := range statistics.EventCounts {
			fmt.Fprintf(stdout, "  %s: %d\n", eventType, count)
		}
	}
	return nil
}

// MigrateCommand handles 'beachkings migrate'
type MigrateCommand struct {
	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for MigrateCommand. SQL stores apply their
// migrations when opened.
func (c *MigrateCommand) Execute(args []string) error {
	config, err := loadConfiguration(c.Global)
	if err != nil {
		return err
	}
	setupLogger(config.Log, c.Global.Verbose)

	switch config.Database.Driver {
	case data.DriverSQLite, data.DriverPostgres:
	default:
		fmt.Fprintf(stdout, "Driver %s has no schema to migrate\n", config.Database.Driver)
		return nil
	}

	s, err := openStore(context.Background(), config.Database)
	if err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return &CLIError{
			Code:    ExitStoreError,
			Message: fmt.Sprintf("Failed to close store: %v", err),
		}
	}

	fmt.Fprintf(stdout, "Database schema is up to date (%s)\n", config.Database.Driver)
	return nil
}

// InitConfigCommand handles 'beachkings init-config'
type InitConfigCommand struct {
	Output string `long:"output" short:"o" description:"Configuration file to write" default:"beachkings.yaml"`
	Force  bool   `long:"force" description:"Overwrite an existing file"`

	Global *GlobalOptions `no-flag:"true"`
}

// Execute implements the Command interface for InitConfigCommand
func (c *InitConfigCommand) Execute(args []string) error {
	if _, err := os.Stat(c.Output); err == nil && !c.Force {
		return &CLIError{
			Code:    ExitFileError,
			Message: fmt.Sprintf("Configuration file already exists: %s", c.Output),
			Suggestions: []string{
				"Use --force to overwrite it",
			},
		}
	}

	if err := data.CreateDefaultConfig(c.Output); err != nil {
		return &CLIError{
			Code:    ExitFileError,
			Message: err.Error(),
			Details: map[string]interface{}{
				"file": c.Output,
			},
		}
	}

	fmt.Fprintf(stdout, "Wrote default configuration to: %s\n", c.Output)
	return nil
}
