// Package elo provides the doubles Elo rating calculation used for global and season ratings.
// Team strength is the average of the two partners' ratings, and both partners of a team
// receive the same delta. The two team deltas are exactly opposite.
package elo

import (
	"errors"
	"fmt"
	"math"
)

// Error types for validation
var (
	ErrInvalidRating  = errors.New("rating value is invalid")
	ErrInvalidKFactor = errors.New("k-factor must be positive")
	ErrInvalidMargin  = errors.New("point differential must be at least 1")
)

// Rating is a player's rating going into a match
type Rating struct {
	PlayerID string  // Player being rated
	Score    float64 // Rating before the match
}

// RatingUpdate represents an individual rating change record
type RatingUpdate struct {
	PlayerID  string  // Player being updated
	OldRating float64 // Rating before the match
	NewRating float64 // Rating after the match
	Delta     float64 // Change in rating (NewRating - OldRating)
	KFactor   float64 // K-factor used for this update
}

// Margin carries the score margin of a match for point differential scaling
type Margin struct {
	PointDifferential int
}

// MatchResult holds the per-player updates of both teams of one doubles match
type MatchResult struct {
	TeamA  [2]RatingUpdate
	TeamB  [2]RatingUpdate
	DeltaA float64
	DeltaB float64
}

// Config holds configuration parameters for the Elo engine
type Config struct {
	UsePointDifferential bool           // Scale deltas by the match margin
	Margin               MarginStrategy // Curve used when scaling is enabled, nil means none
}

// Engine computes doubles rating deltas. It is stateless and safe for concurrent use.
type Engine struct {
	usePointDifferential bool
	margin               MarginStrategy
}

// NewEngine creates a new Elo rating engine with specified configuration
func NewEngine(config Config) (*Engine, error) {
	margin := config.Margin
	if margin == nil {
		margin = NoMargin{}
	}

	return &Engine{
		usePointDifferential: config.UsePointDifferential,
		margin:               margin,
	}, nil
}

// validateRating checks if a rating value is valid
func validateRating(rating float64) error {
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRating, rating)
	}
	return nil
}

// ExpectedScore computes the expected score of a side rated ratingA against a side rated ratingB
func (e *Engine) ExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10.0, (ratingB-ratingA)/400.0))
}

// TeamRating returns the strength of a doubles team
func TeamRating(r1, r2 float64) float64 {
	return (r1 + r2) / 2.0
}

// multiplier resolves the margin multiplier for a match
func (e *Engine) multiplier(margin *Margin) (float64, error) {
	if margin == nil {
		return 1.0, nil
	}
	if margin.PointDifferential < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidMargin, margin.PointDifferential)
	}
	if !e.usePointDifferential {
		return 1.0, nil
	}
	return e.margin.Multiplier(margin.PointDifferential), nil
}

// ComputeDelta returns the rating change of team A and team B for one match.
// teamA and teamB are team ratings, kFactor is the sensitivity of the rating scope.
// deltaB is always exactly -deltaA.
func (e *Engine) ComputeDelta(teamA, teamB float64, teamAWon bool, kFactor float64, margin *Margin) (float64, float64, error) {
	if err := validateRating(teamA); err != nil {
		return 0, 0, err
	}
	if err := validateRating(teamB); err != nil {
		return 0, 0, err
	}
	if kFactor <= 0 || math.IsNaN(kFactor) || math.IsInf(kFactor, 0) {
		return 0, 0, fmt.Errorf("%w: got %v", ErrInvalidKFactor, kFactor)
	}

	mult, err := e.multiplier(margin)
	if err != nil {
		return 0, 0, err
	}

	expectedA := e.ExpectedScore(teamA, teamB)

	actualA := 0.0
	if teamAWon {
		actualA = 1.0
	}

	deltaA := kFactor * mult * (actualA - expectedA)
	return deltaA, -deltaA, nil
}

// ApplyTeam applies one team delta to each partner independently
func ApplyTeam(players [2]Rating, delta, kFactor float64) [2]RatingUpdate {
	var updates [2]RatingUpdate
	for i, p := range players {
		updates[i] = RatingUpdate{
			PlayerID:  p.PlayerID,
			OldRating: p.Score,
			NewRating: p.Score + delta,
			Delta:     delta,
			KFactor:   kFactor,
		}
	}
	return updates
}

// CalculateDoubles rates one doubles match end to end
func (e *Engine) CalculateDoubles(teamA, teamB [2]Rating, teamAWon bool, kFactor float64, margin *Margin) (MatchResult, error) {
	for _, p := range append(teamA[:], teamB[:]...) {
		if err := validateRating(p.Score); err != nil {
			return MatchResult{}, fmt.Errorf("player %s: %w", p.PlayerID, err)
		}
	}

	deltaA, deltaB, err := e.ComputeDelta(
		TeamRating(teamA[0].Score, teamA[1].Score),
		TeamRating(teamB[0].Score, teamB[1].Score),
		teamAWon, kFactor, margin,
	)
	if err != nil {
		return MatchResult{}, err
	}

	return MatchResult{
		TeamA:  ApplyTeam(teamA, deltaA, kFactor),
		TeamB:  ApplyTeam(teamB, deltaB, kFactor),
		DeltaA: deltaA,
		DeltaB: deltaB,
	}, nil
}
