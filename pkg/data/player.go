package data

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error types for player and season validation
var (
	ErrInvalidPlayer = errors.New("invalid player")
	ErrInvalidSeason = errors.New("invalid season")
)

// ScoringMode is the storage literal of a season's scoring system
type ScoringMode string

// Supported scoring modes. Any other literal is a configuration error.
const (
	ModePointsSystem ScoringMode = "points_system"
	ModeSeasonRating ScoringMode = "season_rating"
)

// dateLayout is the calendar-day layout used for season boundaries
const dateLayout = "2006-01-02"

// Player is a registered identity that can be bound to roster slots
type Player struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Validate checks the player's identity fields
func (p Player) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: ID is required", ErrInvalidPlayer)
	}
	return nil
}

// GlobalStats is the league and season agnostic rating record of a player.
// Version increments on every write and backs optimistic concurrency checks.
type GlobalStats struct {
	PlayerID      string  `json:"player_id"`
	CurrentRating float64 `json:"current_rating"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Version       int64   `json:"version"`
}

// NewGlobalStats seeds a record for a player without rating history
func NewGlobalStats(playerID string, initialRating float64) GlobalStats {
	return GlobalStats{
		PlayerID:      playerID,
		CurrentRating: initialRating,
	}
}

// Season belongs to a league and carries its scoring configuration in storage form.
// PointSystem holds the JSON configuration used by the points system.
type Season struct {
	ID            string      `json:"id" yaml:"id"`
	LeagueID      string      `json:"league_id" yaml:"league_id"`
	Name          string      `json:"name" yaml:"name"`
	StartDate     time.Time   `json:"start_date" yaml:"start_date"`
	EndDate       time.Time   `json:"end_date" yaml:"end_date"`
	ScoringSystem ScoringMode `json:"scoring_system" yaml:"scoring_system"`
	PointSystem   string      `json:"point_system,omitempty" yaml:"point_system,omitempty"`
}

// Active reports whether today falls within the season's date range, inclusive on both ends
func (s Season) Active(today time.Time) bool {
	day := today.Format(dateLayout)
	return s.StartDate.Format(dateLayout) <= day && day <= s.EndDate.Format(dateLayout)
}

// Validate checks identity and date range. The scoring literal is validated by the season
// package when it is parsed into a scoring system.
func (s Season) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: ID is required", ErrInvalidSeason)
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return fmt.Errorf("%w: season %s needs start and end dates", ErrInvalidSeason, s.ID)
	}
	if s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("%w: season %s ends before it starts", ErrInvalidSeason, s.ID)
	}
	return nil
}

// ParseDate parses a calendar day in YYYY-MM-DD form
func ParseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(value))
}

// FormatDate formats a calendar day in YYYY-MM-DD form
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// SeasonStats is a player's aggregate inside one season. Depending on Mode it carries
// accumulated points or a season-scoped rating.
type SeasonStats struct {
	PlayerID      string      `json:"player_id"`
	SeasonID      string      `json:"season_id"`
	Mode          ScoringMode `json:"mode"`
	Points        int         `json:"points"`
	Rating        float64     `json:"rating"`
	Wins          int         `json:"wins"`
	Losses        int         `json:"losses"`
	MatchesPlayed int         `json:"matches_played"`
}

// NewSeasonStats seeds a season record for a player's first ranked match in the season
func NewSeasonStats(playerID, seasonID string, mode ScoringMode, initialRating float64) SeasonStats {
	stats := SeasonStats{
		PlayerID: playerID,
		SeasonID: seasonID,
		Mode:     mode,
	}
	if mode == ModeSeasonRating {
		stats.Rating = initialRating
	}
	return stats
}

// RatingChange records one player's rating before and after a ranked match.
// An empty SeasonID denotes the global rating scope.
type RatingChange struct {
	MatchID    string    `json:"match_id"`
	PlayerID   string    `json:"player_id"`
	SeasonID   string    `json:"season_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Before     float64   `json:"before"`
	After      float64   `json:"after"`
}

// Key returns the chronological key of the match that produced the change
func (c RatingChange) Key() MatchKey {
	return MatchKey{OccurredAt: c.OccurredAt, ID: c.MatchID}
}

// Delta returns the rating change applied by the match
func (c RatingChange) Delta() float64 {
	return c.After - c.Before
}
