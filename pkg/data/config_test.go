package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigs(t *testing.T) {
	t.Run("DefaultAppConfig", func(t *testing.T) {
		config := DefaultAppConfig()

		assert.NotZero(t, config.Engine)
		assert.NotZero(t, config.Database)
		assert.NotZero(t, config.Export)

		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultEngineConfig", func(t *testing.T) {
		config := DefaultEngineConfig()

		assert.Equal(t, 40.0, config.KFactor)
		assert.Equal(t, 10.0, config.SeasonKFactor)
		assert.Equal(t, 1200.0, config.InitialRating)
		assert.False(t, config.UsePointDifferential)
		assert.Equal(t, MarginCurveNone, config.MarginCurve)
		assert.Equal(t, 3, config.MaxRetries)

		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultDatabaseConfig", func(t *testing.T) {
		config := DefaultDatabaseConfig()

		assert.Equal(t, DriverMemory, config.Driver)
		assert.NoError(t, config.Validate())
	})

	t.Run("DefaultImportConfig", func(t *testing.T) {
		config := DefaultImportConfig()

		assert.Equal(t, ",", config.Delimiter)
		assert.True(t, config.HasHeader)
		assert.True(t, config.DefaultRanked)
		assert.NoError(t, config.Validate())
	})
}

func TestEngineConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EngineConfig)
		wantErr string
	}{
		{"ZeroKFactor", func(c *EngineConfig) { c.KFactor = 0 }, "k_factor must be positive"},
		{"NegativeSeasonK", func(c *EngineConfig) { c.SeasonKFactor = -1 }, "season_k_factor must be positive"},
		{"ZeroInitialRating", func(c *EngineConfig) { c.InitialRating = 0 }, "initial_rating must be positive"},
		{"UnknownCurve", func(c *EngineConfig) { c.MarginCurve = "cubic" }, "margin_curve 'cubic'"},
		{"NegativeScale", func(c *EngineConfig) { c.MarginScale = -0.1 }, "margin_scale must not be negative"},
		{"MaxBelowOne", func(c *EngineConfig) { c.MarginMax = 0.5 }, "margin_max must be at least 1"},
		{"NoRetries", func(c *EngineConfig) { c.MaxRetries = 0 }, "max_retries must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultEngineConfig()
			tt.mutate(&config)

			err := config.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEngineConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("LogCurveValid", func(t *testing.T) {
		config := DefaultEngineConfig()
		config.UsePointDifferential = true
		config.MarginCurve = MarginCurveLog
		assert.NoError(t, config.Validate())
	})
}

func TestDatabaseConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  DatabaseConfig
		wantErr bool
	}{
		{"Memory", DatabaseConfig{Driver: DriverMemory}, false},
		{"FileWithPath", DatabaseConfig{Driver: DriverFile, Path: "state.json"}, false},
		{"FileWithoutPath", DatabaseConfig{Driver: DriverFile}, true},
		{"SQLiteWithPath", DatabaseConfig{Driver: DriverSQLite, Path: "engine.db"}, false},
		{"SQLiteWithoutPath", DatabaseConfig{Driver: DriverSQLite}, true},
		{"PostgresWithDSN", DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://localhost/beach"}, false},
		{"PostgresWithoutDSN", DatabaseConfig{Driver: DriverPostgres}, true},
		{"UnknownDriver", DatabaseConfig{Driver: "mysql"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDatabaseConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSectionValidation(t *testing.T) {
	t.Run("InvalidDelimiter", func(t *testing.T) {
		config := ImportConfig{Delimiter: "#"}
		assert.ErrorIs(t, config.Validate(), ErrInvalidImportConfig)
	})

	t.Run("InvalidExportFormat", func(t *testing.T) {
		config := ExportConfig{Format: "yaml"}
		assert.ErrorIs(t, config.Validate(), ErrInvalidExportConfig)
	})

	t.Run("EnabledJournalWithoutDirectory", func(t *testing.T) {
		config := JournalConfig{Enabled: true}
		assert.ErrorIs(t, config.Validate(), ErrInvalidJournalConfig)
	})

	t.Run("UnknownLogLevel", func(t *testing.T) {
		config := LogConfig{Level: "verbose"}
		assert.ErrorIs(t, config.Validate(), ErrInvalidLogConfig)
	})

	t.Run("LogLevelCaseInsensitive", func(t *testing.T) {
		config := LogConfig{Level: "DEBUG"}
		assert.NoError(t, config.Validate())
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beachkings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestYAMLLoading(t *testing.T) {
	t.Run("LoadValidYAML", func(t *testing.T) {
		path := writeConfigFile(t, `
engine:
  k_factor: 32
  season_k_factor: 12
  initial_rating: 1500
  use_point_differential: true
  margin_curve: linear
  margin_scale: 0.1
  margin_max: 1.5

database:
  driver: sqlite
  path: /tmp/beachkings.db

journal:
  enabled: true
  directory: /tmp/journal

log:
  level: debug
  console: true
`)

		config, err := LoadFromFile(path)
		require.NoError(t, err)

		assert.Equal(t, 32.0, config.Engine.KFactor)
		assert.Equal(t, 12.0, config.Engine.SeasonKFactor)
		assert.Equal(t, 1500.0, config.Engine.InitialRating)
		assert.True(t, config.Engine.UsePointDifferential)
		assert.Equal(t, MarginCurveLinear, config.Engine.MarginCurve)
		assert.InDelta(t, 0.1, config.Engine.MarginScale, 1e-9)
		assert.Equal(t, DriverSQLite, config.Database.Driver)
		assert.True(t, config.Journal.Enabled)
		assert.Equal(t, "debug", config.Log.Level)
		assert.True(t, config.Log.Console)
	})

	t.Run("LoadPartialYAML", func(t *testing.T) {
		path := writeConfigFile(t, `
engine:
  k_factor: 24
`)

		config, err := LoadFromFile(path)
		require.NoError(t, err)

		assert.Equal(t, 24.0, config.Engine.KFactor)

		// Defaults fill the rest
		assert.Equal(t, 10.0, config.Engine.SeasonKFactor)
		assert.Equal(t, 1200.0, config.Engine.InitialRating)
		assert.Equal(t, 3, config.Engine.MaxRetries)
		assert.Equal(t, DriverMemory, config.Database.Driver)
		assert.Equal(t, "info", config.Log.Level)
	})

	t.Run("LoadNonexistentFile", func(t *testing.T) {
		config, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Nil(t, config)
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("LoadInvalidYAML", func(t *testing.T) {
		path := writeConfigFile(t, `
engine:
  k_factor: [unclosed
`)

		config, err := LoadFromFile(path)
		assert.Nil(t, config)
		assert.ErrorIs(t, err, ErrConfigParseError)
	})

	t.Run("LoadInvalidValues", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  driver: postgres
`)

		_, err := LoadFromFile(path)
		assert.ErrorIs(t, err, ErrInvalidDatabaseConfig)
	})
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("BEACHKINGS_K_FACTOR", "48")
		t.Setenv("BEACHKINGS_INITIAL_RATING", "1000")
		t.Setenv("BEACHKINGS_USE_POINT_DIFFERENTIAL", "true")
		t.Setenv("BEACHKINGS_MARGIN_CURVE", "log")
		t.Setenv("BEACHKINGS_DB_DRIVER", "file")
		t.Setenv("BEACHKINGS_DB_PATH", "state.json")
		t.Setenv("BEACHKINGS_LOG_LEVEL", "warn")

		config, err := LoadWithEnvironment("")
		require.NoError(t, err)

		assert.Equal(t, 48.0, config.Engine.KFactor)
		assert.Equal(t, 1000.0, config.Engine.InitialRating)
		assert.True(t, config.Engine.UsePointDifferential)
		assert.Equal(t, MarginCurveLog, config.Engine.MarginCurve)
		assert.Equal(t, DriverFile, config.Database.Driver)
		assert.Equal(t, "state.json", config.Database.Path)
		assert.Equal(t, "warn", config.Log.Level)
	})

	t.Run("InvalidEnvironmentValues", func(t *testing.T) {
		t.Setenv("BEACHKINGS_INITIAL_RATING", "invalid_number")
		t.Setenv("BEACHKINGS_USE_POINT_DIFFERENTIAL", "not_boolean")

		// Unparseable values are ignored
		config, err := LoadWithEnvironment("")
		require.NoError(t, err)

		assert.Equal(t, 1200.0, config.Engine.InitialRating)
		assert.False(t, config.Engine.UsePointDifferential)
	})

	t.Run("EnvironmentBeatsFile", func(t *testing.T) {
		config := DefaultAppConfig()
		config.Engine.KFactor = 20
		config.Export.Format = "json"

		path := filepath.Join(t.TempDir(), "beachkings.yaml")
		require.NoError(t, config.SaveToFile(path))

		t.Setenv("BEACHKINGS_K_FACTOR", "24")

		loaded, err := LoadWithEnvironment(path)
		require.NoError(t, err)

		assert.Equal(t, 24.0, loaded.Engine.KFactor)
		assert.Equal(t, "json", loaded.Export.Format)
		assert.Equal(t, 10.0, loaded.Engine.SeasonKFactor)
	})
}

func TestSaveToFile(t *testing.T) {
	config := DefaultAppConfig()
	config.Engine.SeasonKFactor = 16
	config.Database = DatabaseConfig{Driver: DriverSQLite, Path: "engine.db"}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, config.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 16.0, loaded.Engine.SeasonKFactor)
	assert.Equal(t, "engine.db", loaded.Database.Path)
}
