package data

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Error types for configuration validation
var (
	ErrInvalidEngineConfig   = errors.New("invalid engine configuration")
	ErrInvalidDatabaseConfig = errors.New("invalid database configuration")
	ErrInvalidImportConfig   = errors.New("invalid import configuration")
	ErrInvalidExportConfig   = errors.New("invalid export configuration")
	ErrInvalidJournalConfig  = errors.New("invalid journal configuration")
	ErrInvalidLogConfig      = errors.New("invalid log configuration")
	ErrConfigNotFound        = errors.New("configuration file not found")
	ErrConfigParseError      = errors.New("failed to parse configuration file")
)

// envPrefix prefixes every environment override
const envPrefix = "BEACHKINGS_"

// Database drivers
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Margin curves for point differential scaling
const (
	MarginCurveNone   = "none"
	MarginCurveLinear = "linear"
	MarginCurveLog    = "log"
)

// AppConfig is the top-level configuration of the engine and its tooling
type AppConfig struct {
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Import   ImportConfig   `yaml:"import" json:"import"`
	Export   ExportConfig   `yaml:"export" json:"export"`
	Journal  JournalConfig  `yaml:"journal" json:"journal"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// EngineConfig holds the rating and scoring constants
type EngineConfig struct {
	KFactor              float64 `yaml:"k_factor" json:"k_factor"`                             // Global rating sensitivity (default 40)
	SeasonKFactor        float64 `yaml:"season_k_factor" json:"season_k_factor"`               // Season rating sensitivity (default 10)
	InitialRating        float64 `yaml:"initial_rating" json:"initial_rating"`                 // Seed rating for new players (default 1200)
	UsePointDifferential bool    `yaml:"use_point_differential" json:"use_point_differential"` // Scale deltas by score margin
	MarginCurve          string  `yaml:"margin_curve" json:"margin_curve"`                     // none, linear or log
	MarginScale          float64 `yaml:"margin_scale" json:"margin_scale"`                     // Curve slope
	MarginMax            float64 `yaml:"margin_max" json:"margin_max"`                         // Upper bound of the multiplier
	MaxRetries           int     `yaml:"max_retries" json:"max_retries"`                       // Attempts on version conflicts
}

// DatabaseConfig selects the storage backend
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver"` // memory, file, sqlite or postgres
	Path   string `yaml:"path" json:"path"`     // Snapshot file or sqlite database path
	DSN    string `yaml:"dsn" json:"dsn"`       // Postgres connection string
}

// ImportConfig defines how match CSV files are read
type ImportConfig struct {
	Delimiter     string `yaml:"delimiter" json:"delimiter"`
	HasHeader     bool   `yaml:"has_header" json:"has_header"`
	DefaultRanked bool   `yaml:"default_ranked" json:"default_ranked"` // Ranked intent when the column is empty
}

// ExportConfig holds standings output settings
type ExportConfig struct {
	Format        string `yaml:"format" json:"format"` // csv, json or text
	RoundDecimals int    `yaml:"round_decimals" json:"round_decimals"`
}

// JournalConfig controls the rating ledger
type JournalConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Directory string `yaml:"directory" json:"directory"`
}

// LogConfig controls logger output
type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
}

// DefaultAppConfig returns a configuration with the engine's standard constants
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Engine:   DefaultEngineConfig(),
		Database: DefaultDatabaseConfig(),
		Import:   DefaultImportConfig(),
		Export:   DefaultExportConfig(),
		Journal:  DefaultJournalConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultEngineConfig returns K=40, SEASON_K=10, INITIAL_ELO=1200 without margin scaling
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		KFactor:              40,
		SeasonKFactor:        10,
		InitialRating:        1200,
		UsePointDifferential: false,
		MarginCurve:          MarginCurveNone,
		MarginScale:          0.05,
		MarginMax:            2.0,
		MaxRetries:           3,
	}
}

// DefaultDatabaseConfig returns an in-memory store
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: DriverMemory,
	}
}

// DefaultImportConfig returns CSV import defaults
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		Delimiter:     ",",
		HasHeader:     true,
		DefaultRanked: true,
	}
}

// DefaultExportConfig returns export format defaults
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Format:        "csv",
		RoundDecimals: 1,
	}
}

// DefaultJournalConfig returns a disabled journal
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled:   false,
		Directory: "journal",
	}
}

// DefaultLogConfig returns info level JSON logging
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:   "info",
		Console: false,
	}
}

// Validate checks that the application configuration is valid
func (c *AppConfig) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config validation failed: %w", err)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config validation failed: %w", err)
	}

	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import config validation failed: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export config validation failed: %w", err)
	}

	if err := c.Journal.Validate(); err != nil {
		return fmt.Errorf("journal config validation failed: %w", err)
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config validation failed: %w", err)
	}

	return nil
}

// Validate checks the rating constants and margin settings
func (e *EngineConfig) Validate() error {
	if e.KFactor <= 0 {
		return fmt.Errorf("%w: k_factor must be positive, got %.2f", ErrInvalidEngineConfig, e.KFactor)
	}

	if e.SeasonKFactor <= 0 {
		return fmt.Errorf("%w: season_k_factor must be positive, got %.2f", ErrInvalidEngineConfig, e.SeasonKFactor)
	}

	if e.InitialRating <= 0 {
		return fmt.Errorf("%w: initial_rating must be positive, got %.2f", ErrInvalidEngineConfig, e.InitialRating)
	}

	switch e.MarginCurve {
	case MarginCurveNone, MarginCurveLinear, MarginCurveLog:
	default:
		return fmt.Errorf("%w: margin_curve '%s' must be one of: none, linear, log", ErrInvalidEngineConfig, e.MarginCurve)
	}

	if e.MarginScale < 0 {
		return fmt.Errorf("%w: margin_scale must not be negative, got %.2f", ErrInvalidEngineConfig, e.MarginScale)
	}

	if e.MarginMax < 1 {
		return fmt.Errorf("%w: margin_max must be at least 1, got %.2f", ErrInvalidEngineConfig, e.MarginMax)
	}

	if e.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1, got %d", ErrInvalidEngineConfig, e.MaxRetries)
	}

	return nil
}

// Validate checks that the selected driver has what it needs to connect
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case DriverMemory:
	case DriverFile, DriverSQLite:
		if strings.TrimSpace(d.Path) == "" {
			return fmt.Errorf("%w: path is required for driver %s", ErrInvalidDatabaseConfig, d.Driver)
		}
	case DriverPostgres:
		if strings.TrimSpace(d.DSN) == "" {
			return fmt.Errorf("%w: dsn is required for driver postgres", ErrInvalidDatabaseConfig)
		}
	default:
		return fmt.Errorf("%w: driver '%s' must be one of: memory, file, sqlite, postgres", ErrInvalidDatabaseConfig, d.Driver)
	}
	return nil
}

// Validate checks the CSV delimiter
func (i *ImportConfig) Validate() error {
	if i.Delimiter == "" {
		return fmt.Errorf("%w: delimiter cannot be empty", ErrInvalidImportConfig)
	}

	validDelimiters := map[string]bool{
		",": true, ";": true, "\t": true, "|": true,
	}

	if !validDelimiters[i.Delimiter] {
		return fmt.Errorf("%w: delimiter '%s' is not a common CSV separator", ErrInvalidImportConfig, i.Delimiter)
	}

	return nil
}

// Validate checks that export configuration is valid
func (e *ExportConfig) Validate() error {
	validFormats := map[string]bool{
		"csv":  true,
		"json": true,
		"text": true,
	}

	if !validFormats[e.Format] {
		return fmt.Errorf("%w: format '%s' must be one of: csv, json, text", ErrInvalidExportConfig, e.Format)
	}

	if e.RoundDecimals < 0 || e.RoundDecimals > 6 {
		return fmt.Errorf("%w: round_decimals %d must be between 0 and 6", ErrInvalidExportConfig, e.RoundDecimals)
	}

	return nil
}

// Validate checks that an enabled journal has a directory
func (j *JournalConfig) Validate() error {
	if j.Enabled && strings.TrimSpace(j.Directory) == "" {
		return fmt.Errorf("%w: directory is required when the journal is enabled", ErrInvalidJournalConfig)
	}
	return nil
}

// Validate checks the log level name
func (l *LogConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
		return nil
	default:
		return fmt.Errorf("%w: level '%s' must be one of: trace, debug, info, warn, error, disabled", ErrInvalidLogConfig, l.Level)
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*AppConfig, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParseError, filename, err)
	}

	config = mergeWithDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filename, err)
	}

	return &config, nil
}

// LoadWithEnvironment layers defaults, the optional YAML file, a .env file in the working
// directory, and BEACHKINGS_ environment variables, in that order.
func LoadWithEnvironment(filename string) (*AppConfig, error) {
	config := DefaultAppConfig()

	if filename != "" {
		fileConfig, err := LoadFromFile(filename)
		if err != nil && !errors.Is(err, ErrConfigNotFound) {
			return nil, err
		}
		if err == nil {
			config = *fileConfig
		}
	}

	// .env is optional, real environment variables win over it
	_ = godotenv.Load()

	applyEnvironmentOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid final configuration: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *AppConfig) SaveToFile(filename string) error {
	content, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}

// mergeWithDefaults fills in missing values with defaults
func mergeWithDefaults(config AppConfig) AppConfig {
	defaults := DefaultAppConfig()

	if config.Engine.KFactor == 0 {
		config.Engine.KFactor = defaults.Engine.KFactor
	}
	if config.Engine.SeasonKFactor == 0 {
		config.Engine.SeasonKFactor = defaults.Engine.SeasonKFactor
	}
	if config.Engine.InitialRating == 0 {
		config.Engine.InitialRating = defaults.Engine.InitialRating
	}
	if config.Engine.MarginCurve == "" {
		config.Engine.MarginCurve = defaults.Engine.MarginCurve
	}
	if config.Engine.MarginScale == 0 {
		config.Engine.MarginScale = defaults.Engine.MarginScale
	}
	if config.Engine.MarginMax == 0 {
		config.Engine.MarginMax = defaults.Engine.MarginMax
	}
	if config.Engine.MaxRetries == 0 {
		config.Engine.MaxRetries = defaults.Engine.MaxRetries
	}

	if config.Database.Driver == "" {
		config.Database.Driver = defaults.Database.Driver
	}

	if config.Import.Delimiter == "" {
		config.Import.Delimiter = defaults.Import.Delimiter
	}

	if config.Export.Format == "" {
		config.Export.Format = defaults.Export.Format
	}

	if config.Journal.Directory == "" {
		config.Journal.Directory = defaults.Journal.Directory
	}

	if config.Log.Level == "" {
		config.Log.Level = defaults.Log.Level
	}

	return config
}

// applyEnvironmentOverrides applies BEACHKINGS_ environment variable overrides
func applyEnvironmentOverrides(config *AppConfig) {
	// Engine overrides
	if val := os.Getenv(envPrefix + "K_FACTOR"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Engine.KFactor = parsed
		}
	}
	if val := os.Getenv(envPrefix + "SEASON_K_FACTOR"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Engine.SeasonKFactor = parsed
		}
	}
	if val := os.Getenv(envPrefix + "INITIAL_RATING"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Engine.InitialRating = parsed
		}
	}
	if val := os.Getenv(envPrefix + "USE_POINT_DIFFERENTIAL"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.Engine.UsePointDifferential = parsed
		}
	}
	if val := os.Getenv(envPrefix + "MARGIN_CURVE"); val != "" {
		config.Engine.MarginCurve = val
	}
	if val := os.Getenv(envPrefix + "MARGIN_SCALE"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Engine.MarginScale = parsed
		}
	}
	if val := os.Getenv(envPrefix + "MARGIN_MAX"); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.Engine.MarginMax = parsed
		}
	}
	if val := os.Getenv(envPrefix + "MAX_RETRIES"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.Engine.MaxRetries = parsed
		}
	}

	// Database overrides
	if val := os.Getenv(envPrefix + "DB_DRIVER"); val != "" {
		config.Database.Driver = val
	}
	if val := os.Getenv(envPrefix + "DB_PATH"); val != "" {
		config.Database.Path = val
	}
	if val := os.Getenv(envPrefix + "DB_DSN"); val != "" {
		config.Database.DSN = val
	}

	// Import and export overrides
	if val := os.Getenv(envPrefix + "IMPORT_DELIMITER"); val != "" {
		config.Import.Delimiter = val
	}
	if val := os.Getenv(envPrefix + "IMPORT_HAS_HEADER"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.Import.HasHeader = parsed
		}
	}
	if val := os.Getenv(envPrefix + "EXPORT_FORMAT"); val != "" {
		config.Export.Format = val
	}

	// Journal overrides
	if val := os.Getenv(envPrefix + "JOURNAL_ENABLED"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.Journal.Enabled = parsed
		}
	}
	if val := os.Getenv(envPrefix + "JOURNAL_DIR"); val != "" {
		config.Journal.Directory = val
	}

	// Log overrides
	if val := os.Getenv(envPrefix + "LOG_LEVEL"); val != "" {
		config.Log.Level = val
	}
	if val := os.Getenv(envPrefix + "LOG_CONSOLE"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.Log.Console = parsed
		}
	}
}
