// Package season computes season-scoped score updates under one of two mutually exclusive
// scoring systems: accumulated win/loss points, or a season-local Elo rating.
package season

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/elo"
)

// Error types for scoring configuration
var (
	ErrUnknownScoringSystem = errors.New("unknown scoring system")
	ErrInvalidPointConfig   = errors.New("invalid point system configuration")
	ErrModeMismatch         = errors.New("season stats were aggregated under a different scoring system")
)

// Default points awarded per ranked match
const (
	DefaultPointsPerWin  = 3
	DefaultPointsPerLoss = 1
)

// ScoringSystem is either PointsSystem or SeasonRating
type ScoringSystem interface {
	Mode() data.ScoringMode
	isScoringSystem()
}

// PointsSystem awards fixed points to every winner and loser of a ranked match
type PointsSystem struct {
	PointsPerWin  int `json:"points_per_win"`
	PointsPerLoss int `json:"points_per_loss"`
}

// Mode returns the storage literal of the points system
func (PointsSystem) Mode() data.ScoringMode { return data.ModePointsSystem }
func (PointsSystem) isScoringSystem() {}

// SeasonRating keeps a season-local Elo rating per player
type SeasonRating struct{}

// Mode returns the storage literal of the season rating system
func (SeasonRating) Mode() data.ScoringMode { return data.ModeSeasonRating }
func (SeasonRating) isScoringSystem() {}

// DefaultPointsSystem returns the 3/1 points system
func DefaultPointsSystem() PointsSystem {
	return PointsSystem{PointsPerWin: DefaultPointsPerWin, PointsPerLoss: DefaultPointsPerLoss}
}

type pointConfig struct {
	PointsPerWin  *int `json:"points_per_win"`
	PointsPerLoss *int `json:"points_per_loss"`
}

// Parse converts the storage form of a season's scoring configuration. Only the literals
// points_system and season_rating are accepted. Missing point values default to 3/1.
func Parse(literal string, config []byte) (ScoringSystem, error) {
	switch data.ScoringMode(literal) {
	case data.ModeSeasonRating:
		return SeasonRating{}, nil
	case data.ModePointsSystem:
		return parsePoints(config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScoringSystem, literal)
	}
}

func parsePoints(config []byte) (ScoringSystem, error) {
	system := DefaultPointsSystem()

	trimmed := strings.TrimSpace(string(config))
	if trimmed == "" || trimmed == "null" {
		return system, nil
	}

	var parsed pointConfig
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPointConfig, err)
	}
	if parsed.PointsPerWin != nil {
		system.PointsPerWin = *parsed.PointsPerWin
	}
	if parsed.PointsPerLoss != nil {
		system.PointsPerLoss = *parsed.PointsPerLoss
	}

	if system.PointsPerWin < 0 || system.PointsPerLoss < 0 {
		return nil, fmt.Errorf("%w: points must not be negative (win %d, loss %d)",
			ErrInvalidPointConfig, system.PointsPerWin, system.PointsPerLoss)
	}
	return system, nil
}

// FromSeason parses the scoring configuration stored on a season
func FromSeason(s data.Season) (ScoringSystem, error) {
	system, err := Parse(string(s.ScoringSystem), []byte(s.PointSystem))
	if err != nil {
		return nil, fmt.Errorf("season %s: %w", s.ID, err)
	}
	return system, nil
}

// Literal returns the storage literal of a scoring system
func Literal(system ScoringSystem) data.ScoringMode {
	return system.Mode()
}

// PointConfigJSON returns the companion JSON configuration stored next to the literal.
// The season rating system has no configuration.
func PointConfigJSON(system ScoringSystem) (string, error) {
	points, ok := system.(PointsSystem)
	if !ok {
		return "", nil
	}
	encoded, err := json.Marshal(points)
	if err != nil {
		return "", fmt.Errorf("failed to encode point system: %w", err)
	}
	return string(encoded), nil
}

// ApplyToSeason writes the storage form of system onto s
func ApplyToSeason(s *data.Season, system ScoringSystem) error {
	config, err := PointConfigJSON(system)
	if err != nil {
		return err
	}
	s.ScoringSystem = Literal(system)
	s.PointSystem = config
	return nil
}

// Config holds the season scoring constants
type Config struct {
	SeasonKFactor float64 // K-factor for season ratings
	InitialRating float64 // Seed of a player's first season rating
}

// Engine applies ranked match results to season statistics
type Engine struct {
	ratings       *elo.Engine
	seasonKFactor float64
	initialRating float64
}

// NewEngine creates a season scoring engine on top of the shared rating math
func NewEngine(ratings *elo.Engine, config Config) (*Engine, error) {
	if ratings == nil {
		return nil, errors.New("season scoring requires a rating engine")
	}
	if config.SeasonKFactor <= 0 {
		return nil, fmt.Errorf("%w: season k-factor %v", elo.ErrInvalidKFactor, config.SeasonKFactor)
	}
	if config.InitialRating <= 0 {
		return nil, fmt.Errorf("%w: initial rating %v", elo.ErrInvalidRating, config.InitialRating)
	}

	return &Engine{
		ratings:       ratings,
		seasonKFactor: config.SeasonKFactor,
		initialRating: config.InitialRating,
	}, nil
}

// InitialRating returns the seed rating of a player's first ranked season match
func (e *Engine) InitialRating() float64 {
	return e.initialRating
}

// KFactor returns the season rating K-factor
func (e *Engine) KFactor() float64 {
	return e.seasonKFactor
}

// CheckMode verifies every record was aggregated under system
func CheckMode(system ScoringSystem, stats ...data.SeasonStats) error {
	for _, s := range stats {
		if s.Mode != system.Mode() {
			return fmt.Errorf("%w: player %s has %s, season uses %s", ErrModeMismatch, s.PlayerID, s.Mode, system.Mode())
		}
	}
	return nil
}

// SeedStats returns the empty season record of a player for the given system
func (e *Engine) SeedStats(playerID, seasonID string, system ScoringSystem) data.SeasonStats {
	return data.NewSeasonStats(playerID, seasonID, system.Mode(), e.initialRating)
}

// Outcome is the season effect of one ranked match
type Outcome struct {
	TeamA   [2]data.SeasonStats
	TeamB   [2]data.SeasonStats
	Updates []elo.RatingUpdate // Season rating changes, empty in points mode
}

// Score applies a ranked match to both teams' season statistics under system
func (e *Engine) Score(system ScoringSystem, teamA, teamB [2]data.SeasonStats, teamAWon bool, margin *elo.Margin) (Outcome, error) {
	if err := CheckMode(system, append(teamA[:], teamB[:]...)...); err != nil {
		return Outcome{}, err
	}

	switch sys := system.(type) {
	case PointsSystem:
		winners, losers := teamA, teamB
		if !teamAWon {
			winners, losers = teamB, teamA
		}
		winners, losers = e.ScorePoints(sys, winners, losers)
		if teamAWon {
			return Outcome{TeamA: winners, TeamB: losers}, nil
		}
		return Outcome{TeamA: losers, TeamB: winners}, nil

	case SeasonRating:
		return e.ScoreRating(teamA, teamB, teamAWon, margin)

	default:
		return Outcome{}, fmt.Errorf("%w: %T", ErrUnknownScoringSystem, system)
	}
}

// ScorePoints adds PointsPerWin to each winner and PointsPerLoss to each loser.
// It is purely additive and independent of match order.
func (e *Engine) ScorePoints(system PointsSystem, winners, losers [2]data.SeasonStats) ([2]data.SeasonStats, [2]data.SeasonStats) {
	for i := range winners {
		winners[i].Points += system.PointsPerWin
		winners[i].Wins++
		winners[i].MatchesPlayed++
	}
	for i := range losers {
		losers[i].Points += system.PointsPerLoss
		losers[i].Losses++
		losers[i].MatchesPlayed++
	}
	return winners, losers
}

// ScoreRating runs the doubles Elo update on season-local ratings with the season K-factor
func (e *Engine) ScoreRating(teamA, teamB [2]data.SeasonStats, teamAWon bool, margin *elo.Margin) (Outcome, error) {
	result, err := e.ratings.CalculateDoubles(seasonRatings(teamA), seasonRatings(teamB), teamAWon, e.seasonKFactor, margin)
	if err != nil {
		return Outcome{}, fmt.Errorf("season rating: %w", err)
	}

	for i := range teamA {
		teamA[i].Rating = result.TeamA[i].NewRating
		teamB[i].Rating = result.TeamB[i].NewRating
		teamA[i].MatchesPlayed++
		teamB[i].MatchesPlayed++
		if teamAWon {
			teamA[i].Wins++
			teamB[i].Losses++
		} else {
			teamA[i].Losses++
			teamB[i].Wins++
		}
	}

	updates := make([]elo.RatingUpdate, 0, 4)
	updates = append(updates, result.TeamA[:]...)
	updates = append(updates, result.TeamB[:]...)

	return Outcome{TeamA: teamA, TeamB: teamB, Updates: updates}, nil
}

func seasonRatings(stats [2]data.SeasonStats) [2]elo.Rating {
	return [2]elo.Rating{
		{PlayerID: stats[0].PlayerID, Score: stats[0].Rating},
		{PlayerID: stats[1].PlayerID, Score: stats[1].Rating},
	}
}
