// Package data provides CLI flag parsing and configuration management integration.
// Flags declared here are shared by every subcommand and take precedence over the
// configuration file and the environment.
package data

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// DefaultConfigFile is looked up in the search paths when --config is not given
const DefaultConfigFile = "beachkings.yaml"

// ConfigOverrides are the global flags that override configuration values. Zero values
// leave the loaded configuration untouched.
type ConfigOverrides struct {
	// Engine options
	KFactor           float64 `long:"k-factor" description:"Global rating sensitivity"`
	SeasonKFactor     float64 `long:"season-k-factor" description:"Season rating sensitivity"`
	InitialRating     float64 `long:"initial-rating" description:"Seed rating for new players"`
	PointDifferential bool    `long:"point-differential" description:"Scale rating changes by the score margin"`
	MarginCurve       string  `long:"margin-curve" description:"Margin curve (none/linear/log)"`

	// Database options
	Driver string `long:"db-driver" description:"Storage backend (memory/file/sqlite/postgres)"`
	Path   string `long:"db-path" description:"Snapshot file or sqlite database path"`
	DSN    string `long:"db-dsn" description:"Postgres connection string"`

	// Journal and logging
	Journal    string `long:"journal" description:"Enable the rating ledger in this directory"`
	LogLevel   string `long:"log-level" description:"Log level (trace/debug/info/warn/error/disabled)"`
	LogConsole bool   `long:"log-console" description:"Human readable log output"`
}

// ParseOverrides parses args into overrides and returns the arguments left over
func ParseOverrides(args []string) (*ConfigOverrides, []string, error) {
	var opts ConfigOverrides

	parser := flags.NewParser(&opts, flags.IgnoreUnknown)
	remaining, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse command-line arguments: %w", err)
	}
	return &opts, remaining, nil
}

// LoadWithOverrides resolves the configuration file, loads it with the environment layered
// on top and applies the overrides last. An empty filename searches for DefaultConfigFile.
func LoadWithOverrides(filename string, opts *ConfigOverrides) (*AppConfig, error) {
	if filename == "" {
		filename = FindConfigFile(DefaultConfigFile)
	}

	config, err := LoadWithEnvironment(filename)
	if err != nil {
		return nil, err
	}

	if opts != nil {
		ApplyOverrides(config, opts)
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return config, nil
}

// ApplyOverrides applies command-line flag values to the configuration
func ApplyOverrides(config *AppConfig, opts *ConfigOverrides) {
	if opts.KFactor != 0 {
		config.Engine.KFactor = opts.KFactor
	}
	if opts.SeasonKFactor != 0 {
		config.Engine.SeasonKFactor = opts.SeasonKFactor
	}
	if opts.InitialRating != 0 {
		config.Engine.InitialRating = opts.InitialRating
	}
	if opts.PointDifferential {
		config.Engine.UsePointDifferential = true
		if config.Engine.MarginCurve == MarginCurveNone {
			config.Engine.MarginCurve = MarginCurveLinear
		}
	}
	if opts.MarginCurve != "" {
		config.Engine.MarginCurve = opts.MarginCurve
	}

	if opts.Driver != "" {
		config.Database.Driver = opts.Driver
	}
	if opts.Path != "" {
		config.Database.Path = opts.Path
	}
	if opts.DSN != "" {
		config.Database.DSN = opts.DSN
	}

	if opts.Journal != "" {
		config.Journal.Enabled = true
		config.Journal.Directory = opts.Journal
	}
	if opts.LogLevel != "" {
		config.Log.Level = opts.LogLevel
	}
	if opts.LogConsole {
		config.Log.Console = true
	}
}

// CheckWritable checks that a file can be created at filePath. The probe file is removed
// unless it already existed.
func CheckWritable(filePath string) error {
	_, statErr := os.Stat(filePath)
	existed := statErr == nil

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if !existed {
		return os.Remove(filePath)
	}
	return nil
}

// GetConfigSearchPaths returns possible configuration file locations
func GetConfigSearchPaths(filename string) []string {
	paths := []string{filename}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "beachkings", filename))
		paths = append(paths, filepath.Join(homeDir, ".beachkings", filename))
	}

	// System config directory (Unix-like systems)
	paths = append(paths, filepath.Join("/etc", "beachkings", filename))

	return paths
}

// FindConfigFile returns the first existing search path of filename, or filename itself
// when none exists. Absolute names are returned unchanged.
func FindConfigFile(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	for _, path := range GetConfigSearchPaths(filename) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filename
}

// CreateDefaultConfig creates a default configuration file at the specified path
func CreateDefaultConfig(filePath string) error {
	config := DefaultAppConfig()

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := config.SaveToFile(filePath); err != nil {
		return fmt.Errorf("failed to create default config: %w", err)
	}

	return nil
}
