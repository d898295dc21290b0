// Package store persists players, seasons, matches, statistics and rating history for the
// rating engine. All engine writes happen inside RunInTx so a match's effects commit together
// or not at all.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/season"
)

// Error types for storage operations
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrVersionConflict  = errors.New("version conflict")
	ErrSlotAlreadyBound = errors.New("slot is already bound to a different player")
	ErrReadOnly         = errors.New("write attempted in a read-only view")
)

// Repository is the engine's view of persisted state. Implementations are not safe for
// concurrent use; each transaction gets its own Repository.
type Repository interface {
	CreatePlayer(ctx context.Context, player data.Player) error
	GetPlayer(ctx context.Context, id string) (data.Player, error)
	ListPlayers(ctx context.Context) ([]data.Player, error)

	// GetGlobalStats returns ErrNotFound for a player without a stats record
	GetGlobalStats(ctx context.Context, playerID string) (data.GlobalStats, error)
	// SetGlobalStats writes stats if stats.Version matches the stored version (0 for a new
	// record) and returns the record with its new version. A mismatch is ErrVersionConflict.
	SetGlobalStats(ctx context.Context, stats data.GlobalStats) (data.GlobalStats, error)
	ListGlobalStats(ctx context.Context) ([]data.GlobalStats, error)

	CreateSeason(ctx context.Context, season data.Season) error
	GetSeason(ctx context.Context, id string) (data.Season, error)
	ListSeasons(ctx context.Context) ([]data.Season, error)
	UpdateSeasonScoring(ctx context.Context, seasonID string, mode data.ScoringMode, pointSystem string) error

	GetSeasonStats(ctx context.Context, playerID, seasonID string) (data.SeasonStats, error)
	UpsertSeasonStats(ctx context.Context, stats data.SeasonStats) error
	ListSeasonStats(ctx context.Context, seasonID string) ([]data.SeasonStats, error)
	ResetSeasonStats(ctx context.Context, seasonID string) error

	CreateMatch(ctx context.Context, match data.Match) error
	GetMatch(ctx context.Context, id string) (data.Match, error)
	// ListMatchesForSeason returns the season's matches in MatchKey order
	ListMatchesForSeason(ctx context.Context, seasonID string) ([]data.Match, error)
	// ListMatchesReferencingSlot returns every match using slotID, in MatchKey order
	ListMatchesReferencingSlot(ctx context.Context, slotID string) ([]data.Match, error)
	// ListAppliedMatchesAfter returns matches with StatsApplied set whose key sorts after key,
	// in MatchKey order. An empty seasonID spans all seasons.
	ListAppliedMatchesAfter(ctx context.Context, seasonID string, key data.MatchKey) ([]data.Match, error)
	// BindSlot binds every unbound use of slotID to playerID and returns how many roster
	// positions changed. A use bound to another player is ErrSlotAlreadyBound.
	BindSlot(ctx context.Context, slotID, playerID string) (int, error)
	SetStatsApplied(ctx context.Context, matchID string, applied bool) error

	RecordRatingChanges(ctx context.Context, changes []data.RatingChange) error
	// RatingBefore returns the player's rating in scope seasonID ("" is global) after the last
	// recorded match sorting before key. ok is false when no such match exists.
	RatingBefore(ctx context.Context, playerID, seasonID string, key data.MatchKey) (rating float64, ok bool, err error)
	ListRatingChanges(ctx context.Context, playerID, seasonID string) ([]data.RatingChange, error)
	DeleteRatingChanges(ctx context.Context, seasonID string, matchIDs []string) error
	DeleteSeasonRatingChanges(ctx context.Context, seasonID string) error
}

// Store hands out repositories bound to a transaction or a read-only view
type Store interface {
	// RunInTx runs fn in a transaction, committing when fn returns nil
	RunInTx(ctx context.Context, fn func(Repository) error) error
	// View runs fn against a consistent read-only view
	View(ctx context.Context, fn func(Repository) error) error
	Close() error
}

// Open creates the store selected by config
func Open(ctx context.Context, config data.DatabaseConfig) (Store, error) {
	switch config.Driver {
	case data.DriverMemory:
		return NewMemoryStore(), nil
	case data.DriverFile:
		s, err := NewFileStore(config.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case data.DriverSQLite, data.DriverPostgres:
		s, err := OpenSQL(ctx, config)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}
}

// validateScoring rejects scoring literals other than the two supported modes and
// malformed point configurations
func validateScoring(mode data.ScoringMode, pointSystem string) error {
	_, err := season.Parse(string(mode), []byte(pointSystem))
	return err
}
