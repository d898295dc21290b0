// Package main provides the command-line interface of the beach volleyball rating engine.
// It implements subcommands for registering players and seasons, ingesting matches, claiming
// placeholder slots, recomputing seasons and reporting standings, with an interactive
// standings viewer on top.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/journal"
	"github.com/pschwagler/beach-kings-sub002/pkg/rank"
	"github.com/pschwagler/beach-kings-sub002/pkg/season"
	"github.com/pschwagler/beach-kings-sub002/pkg/stats"
	"github.com/pschwagler/beach-kings-sub002/pkg/store"
)

// Version information - set by build process
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Output streams of the commands, swapped in tests
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// GlobalOptions defines global CLI flags
type GlobalOptions struct {
	Config  string `long:"config" short:"c" description:"Configuration file path (beachkings.yaml is searched when empty)"`
	Verbose bool   `long:"verbose" short:"v" description:"Enable verbose logging"`
	Version bool   `long:"version" description:"Show version information"`

	Overrides data.ConfigOverrides `group:"Configuration Overrides"`
}

// ErrorCode represents CLI exit codes
type ErrorCode int

const (
	ExitSuccess ErrorCode = iota
	ExitFileError
	ExitConfigError
	ExitStoreError
	ExitRatingError
	ExitExportError
	ExitValidationError
	ExitJournalError
)

// CLIError represents a CLI error with exit code
type CLIError struct {
	Code        ErrorCode
	Message     string
	Details     map[string]interface{}
	Suggestions []string
}

func (e *CLIError) Error() string {
	return e.Message
}

// formatErrorJSON formats error as JSON for structured output
func formatErrorJSON(err *CLIError) string {
	errorObj := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    err.Code,
			"message": err.Message,
		},
	}

	if err.Details != nil {
		errorObj["error"].(map[string]interface{})["details"] = err.Details
	}

	if err.Suggestions != nil {
		errorObj["error"].(map[string]interface{})["suggestions"] = err.Suggestions
	}

	jsonBytes, _ := json.MarshalIndent(errorObj, "", "  ")
	return string(jsonBytes)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) {
			fmt.Fprintln(os.Stderr, formatErrorJSON(cliErr))
			os.Exit(int(cliErr.Code))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	globals := &GlobalOptions{}
	parser := flags.NewParser(globals, flags.Default)
	parser.Usage = "[OPTIONS] COMMAND [COMMAND-OPTIONS]"

	commands := []struct {
		name, short, long string
		command           interface{}
	}{
		{"add-player", "Register a player", "", &AddPlayerCommand{Global: globals}},
		{"add-season", "Create a season with its scoring system", "", &AddSeasonCommand{Global: globals}},
		{"import", "Ingest matches from a CSV file", "Rows without a season_id column use --season. Roster cells starting with ~ name a placeholder slot.", &ImportCommand{Global: globals}},
		{"seed", "Load players, seasons and matches from a YAML fixture", "", &SeedCommand{Global: globals}},
		{"apply", "Apply a stored match", "", &ApplyCommand{Global: globals}},
		{"claim", "Bind a placeholder slot to a registered player", "", &ClaimCommand{Global: globals}},
		{"recompute-season", "Rebuild a season's statistics from its matches", "", &RecomputeCommand{Global: globals}},
		{"set-scoring", "Change a season's scoring system and recompute it", "", &SetScoringCommand{Global: globals}},
		{"standings", "Show global or season standings", "", &StandingsCommand{Global: globals}},
		{"history", "Show a player's rating history", "", &HistoryCommand{Global: globals}},
		{"export", "Export standings to a file", "", &ExportCommand{Global: globals}},
		{"verify-journal", "Verify the rating ledger hash chain", "", &VerifyJournalCommand{Global: globals}},
		{"migrate", "Apply database schema migrations", "", &MigrateCommand{Global: globals}},
		{"init-config", "Write a default configuration file", "", &InitConfigCommand{Global: globals}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.command); err != nil {
			return err
		}
	}

	parser.CommandHandler = func(command flags.Commander, args []string) error {
		if globals.Version {
			return showVersion()
		}
		if command == nil {
			return nil
		}
		return command.Execute(args)
	}

	_, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			switch flagsErr.Type {
			case flags.ErrHelp:
				return nil
			case flags.ErrCommandRequired:
				if globals.Version {
					return showVersion()
				}
				fmt.Fprintln(stderr, "Error: No command specified")
				parser.WriteHelp(stderr)
				return &CLIError{
					Code:    ExitConfigError,
					Message: "No command specified",
					Suggestions: []string{
						"Use 'beachkings import --input matches.csv --season <id>' to ingest matches",
						"Use 'beachkings --help' to see all available commands",
					},
				}
			default:
				return &CLIError{
					Code:    ExitConfigError,
					Message: fmt.Sprintf("Invalid arguments: %v", err),
				}
			}
		}
		return err
	}

	return nil
}

// Helper functions

func showVersion() error {
	fmt.Fprintf(stdout, "beachkings version %s\n", Version)
	fmt.Fprintf(stdout, "Build date: %s\n", BuildDate)
	fmt.Fprintf(stdout, "Git commit: %s\n", GitCommit)
	return nil
}

func loadConfiguration(global *GlobalOptions) (*data.AppConfig, error) {
	config, err := data.LoadWithOverrides(global.Config, &global.Overrides)
	if err != nil {
		return nil, &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Failed to load configuration: %v", err),
			Details: map[string]interface{}{
				"config": global.Config,
			},
			Suggestions: []string{
				"Check configuration file syntax",
				"Check BEACHKINGS_ environment variables",
				"Use 'beachkings init-config' to write a default configuration",
			},
		}
	}
	return config, nil
}

// setupLogger configures the global zerolog logger. Verbose mode lowers the level to debug.
func setupLogger(config data.LogConfig, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose && level != zerolog.Disabled && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	var w io.Writer = stderr
	if config.Console {
		w = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// engine bundles what the rating commands need: configuration, store, ledger and aggregator
type engine struct {
	config *data.AppConfig
	logger zerolog.Logger
	store  store.Store
	ledger *journal.Ledger
	agg    *stats.Aggregator
}

func openEngine(ctx context.Context, global *GlobalOptions) (*engine, error) {
	config, err := loadConfiguration(global)
	if err != nil {
		return nil, err
	}
	logger := setupLogger(config.Log, global.Verbose)

	s, err := openStore(ctx, config.Database)
	if err != nil {
		return nil, err
	}
	if config.Database.Driver == data.DriverMemory {
		logger.Warn().Msg("memory store selected, changes are discarded on exit")
	}

	e := &engine{config: config, logger: logger, store: s}
	options := []stats.Option{stats.WithLogger(logger)}

	if config.Journal.Enabled {
		ledger, err := journal.NewLedger(config.Journal.Directory)
		if err != nil {
			_ = s.Close()
			return nil, &CLIError{
				Code:    ExitJournalError,
				Message: fmt.Sprintf("Failed to open rating ledger: %v", err),
				Details: map[string]interface{}{
					"directory": config.Journal.Directory,
				},
				Suggestions: []string{
					"Run 'beachkings verify-journal' to inspect the ledger",
				},
			}
		}
		e.ledger = ledger
		options = append(options, stats.WithRecorder(ledger))
	}

	agg, err := stats.NewAggregator(s, config.Engine, options...)
	if err != nil {
		e.close()
		return nil, &CLIError{
			Code:    ExitConfigError,
			Message: fmt.Sprintf("Failed to create rating engine: %v", err),
		}
	}
	e.agg = agg

	return e, nil
}

func openStore(ctx context.Context, config data.DatabaseConfig) (store.Store, error) {
	s, err := store.Open(ctx, config)
	if err != nil {
		return nil, &CLIError{
			Code:    ExitStoreError,
			Message: fmt.Sprintf("Failed to open store: %v", err),
			Details: map[string]interface{}{
				"driver": config.Driver,
				"path":   config.Path,
			},
			Suggestions: []string{
				"Check the database path or DSN",
				"Use --db-driver and --db-path to select another store",
			},
		}
	}
	return s, nil
}

func (e *engine) close() {
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			e.logger.Error().Err(err).Msg("failed to close rating ledger")
		}
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error().Err(err).Msg("failed to close store")
	}
}

// engineError maps rating engine failures to exit codes
func engineError(message string, err error, details map[string]interface{}) *CLIError {
	cliErr := &CLIError{
		Code:    ExitRatingError,
		Message: fmt.Sprintf("%s: %v", message, err),
		Details: details,
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		cliErr.Code = ExitValidationError
		cliErr.Suggestions = []string{
			"Check identifier spelling",
			"Use 'beachkings standings' to see seasons and players",
		}
	case errors.Is(err, stats.ErrSeasonNeedsRecompute):
		cliErr.Suggestions = []string{
			"Run 'beachkings recompute-season --season <id>' first",
		}
	case errors.Is(err, stats.ErrUnresolvedRoster),
		errors.Is(err, stats.ErrInvalidClaim),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrSlotAlreadyBound),
		errors.Is(err, rank.ErrIllegalTransition),
		errors.Is(err, rank.ErrSlotNotInMatch),
		errors.Is(err, season.ErrUnknownScoringSystem),
		errors.Is(err, season.ErrInvalidPointConfig),
		errors.Is(err, data.ErrInvalidMatch),
		errors.Is(err, data.ErrInvalidRoster),
		errors.Is(err, data.ErrMissingScore),
		errors.Is(err, data.ErrTiedScore),
		errors.Is(err, data.ErrInvalidPlayer),
		errors.Is(err, data.ErrInvalidSeason):
		cliErr.Code = ExitValidationError
	}
	return cliErr
}

// scoringSystem builds a scoring system from its literal and the point values
func scoringSystem(literal string, win, loss int) (season.ScoringSystem, error) {
	config := fmt.Sprintf(`{"points_per_win":%d,"points_per_loss":%d}`, win, loss)
	return season.Parse(literal, []byte(config))
}

func scopeID(seasonID string) string {
	if seasonID == "" {
		return journal.GlobalScope
	}
	return seasonID
}

func outputStandingsTable(w io.Writer, report *journal.StandingsReport, decimals int) {
	title := "Global Ratings"
	if report.Scope != journal.GlobalScope {
		title = fmt.Sprintf("%s (%s, %s)", report.SeasonName, report.Scope, report.Mode)
	}
	fmt.Fprintf(w, "%s - %d ranked matches\n\n", title, report.Matches)

	if len(report.Standings) == 0 {
		fmt.Fprintln(w, "No standings yet")
		return
	}

	scoreHeader := "RATING"
	if report.ByPoints() {
		scoreHeader = "POINTS"
	}

	fmt.Fprintf(w, "%-5s %-20s %-10s %-5s %-7s %s\n",
		"RANK", "PLAYER", scoreHeader, "WINS", "LOSSES", "WIN RATE")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	for _, row := range report.Standings {
		name := report.Name(row.PlayerID)
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		score := fmt.Sprintf("%.*f", decimals, row.Rating)
		if report.ByPoints() {
			score = fmt.Sprintf("%d", row.Points)
		}

		fmt.Fprintf(w, "%-5d %-20s %-10s %-5d %-7d %.1f%%\n",
			row.Rank, name, score, row.Wins, row.Losses, row.WinRate()*100)
	}
}

func outputImportIssues(w io.Writer, result *data.MatchImportResult) {
	if len(result.ParseErrors) == 0 {
		return
	}
	fmt.Fprintln(w, "Parse Issues:")
	for _, parseErr := range result.ParseErrors {
		fmt.Fprintf(w, "  - Row %d: %s\n", parseErr.RowNumber, parseErr.Error())
	}
}

func outputBatch(w io.Writer, batch stats.BatchResult, verbose bool) {
	skipped := len(batch.Results) - batch.Applied()
	fmt.Fprintf(w, "Applied: %d, skipped: %d\n", batch.Applied(), skipped)
	if !verbose {
		return
	}
	for _, result := range batch.Results {
		if result.Applied {
			fmt.Fprintf(w, "  + %s (%s)\n", result.MatchID, result.SeasonID)
		} else {
			fmt.Fprintf(w, "  - %s (%s): %s\n", result.MatchID, result.SeasonID, result.SkipReason)
		}
	}
}
