package stats

import (
	"context"
	"fmt"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/rank"
	"github.com/pschwagler/beach-kings-sub002/pkg/season"
	"github.com/pschwagler/beach-kings-sub002/pkg/store"
)

// RecomputeResult summarizes a season recomputation
type RecomputeResult struct {
	SeasonID string
	Mode     data.ScoringMode
	Matches  []string           // Matches counted, in chronological order
	Stats    []data.SeasonStats // Rebuilt season records ordered by player
}

// RecomputeSeason discards the season's statistics and season rating history and rebuilds
// them from its applied, effectively ranked matches in chronological order. Ingestion for the
// season waits until it completes. Any invalid match aborts the pass and nothing is written.
func (a *Aggregator) RecomputeSeason(ctx context.Context, seasonID string) (RecomputeResult, error) {
	release := a.seasons.exclusive(seasonID)
	defer release()

	result, err := a.recompute(ctx, seasonID, func(context.Context, store.Repository) error { return nil })
	if err != nil {
		return RecomputeResult{}, err
	}
	a.record(ctx, Event{Type: EventSeasonRecomputed, Recompute: &result})
	return result, nil
}

// ChangeScoringSystem switches a season to system and recomputes it under the same lock and
// transaction, so no match is ever scored against a half-converted season
func (a *Aggregator) ChangeScoringSystem(ctx context.Context, seasonID string, system season.ScoringSystem) (RecomputeResult, error) {
	config, err := season.PointConfigJSON(system)
	if err != nil {
		return RecomputeResult{}, err
	}

	release := a.seasons.exclusive(seasonID)
	defer release()

	result, err := a.recompute(ctx, seasonID, func(ctx context.Context, repo store.Repository) error {
		return repo.UpdateSeasonScoring(ctx, seasonID, season.Literal(system), config)
	})
	if err != nil {
		return RecomputeResult{}, err
	}
	a.record(ctx, Event{Type: EventScoringChanged, Recompute: &result})
	return result, nil
}

func (a *Aggregator) recompute(ctx context.Context, seasonID string, before func(context.Context, store.Repository) error) (RecomputeResult, error) {
	logger := a.logger.With().Str("season_id", seasonID).Logger()

	var result RecomputeResult
	err := a.withRetry(ctx, logger, func() error {
		return a.store.RunInTx(ctx, func(repo store.Repository) error {
			if err := before(ctx, repo); err != nil {
				return err
			}
			var err error
			result, err = a.recomputeInTx(ctx, repo, seasonID)
			return err
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("season recomputation aborted")
		return RecomputeResult{}, err
	}

	logger.Info().
		Str("mode", string(result.Mode)).
		Int("matches", len(result.Matches)).
		Int("players", len(result.Stats)).
		Msg("season recomputed")
	return result, nil
}

func (a *Aggregator) recomputeInTx(ctx context.Context, repo store.Repository, seasonID string) (RecomputeResult, error) {
	seasonRecord, err := repo.GetSeason(ctx, seasonID)
	if err != nil {
		return RecomputeResult{}, err
	}
	system, err := season.FromSeason(seasonRecord)
	if err != nil {
		return RecomputeResult{}, err
	}

	if err := repo.ResetSeasonStats(ctx, seasonID); err != nil {
		return RecomputeResult{}, err
	}
	if err := repo.DeleteSeasonRatingChanges(ctx, seasonID); err != nil {
		return RecomputeResult{}, err
	}

	matches, err := repo.ListMatchesForSeason(ctx, seasonID)
	if err != nil {
		return RecomputeResult{}, err
	}

	result := RecomputeResult{SeasonID: seasonID, Mode: system.Mode()}
	stats := make(map[string]data.SeasonStats)
	ratings := make(map[string]float64)
	sc := a.seasonScope(seasonID)
	var changes []data.RatingChange

	for _, m := range matches {
		if !m.StatsApplied || rank.ResolveMatch(m) != rank.Ranked {
			continue
		}
		if err := m.Validate(); err != nil {
			return RecomputeResult{}, fmt.Errorf("recomputing season %s: %w", seasonID, err)
		}

		var teamA, teamB [2]data.SeasonStats
		for i := range m.TeamA {
			teamA[i] = seasonRecordFor(stats, a.scoring, m.TeamA[i].PlayerID, seasonID, system)
			teamB[i] = seasonRecordFor(stats, a.scoring, m.TeamB[i].PlayerID, seasonID, system)
		}
		won := m.Winner() == data.TeamA

		switch sys := system.(type) {
		case season.PointsSystem:
			outcome, err := a.scoring.Score(sys, teamA, teamB, won, marginOf(m))
			if err != nil {
				return RecomputeResult{}, fmt.Errorf("recomputing match %s: %w", m.ID, err)
			}
			teamA, teamB = outcome.TeamA, outcome.TeamB

		case season.SeasonRating:
			for _, id := range m.PlayerIDs() {
				if _, ok := ratings[id]; !ok {
					ratings[id] = a.scoring.InitialRating()
				}
			}
			rated, err := a.rateMatch(sc, m, ratings)
			if err != nil {
				return RecomputeResult{}, fmt.Errorf("recomputing match %s: %w", m.ID, err)
			}
			changes = append(changes, rated...)
			for i := range teamA {
				teamA[i].Rating = ratings[teamA[i].PlayerID]
				teamB[i].Rating = ratings[teamB[i].PlayerID]
				countResult(&teamA[i], won)
				countResult(&teamB[i], !won)
			}
		}

		for _, s := range append(teamA[:], teamB[:]...) {
			stats[s.PlayerID] = s
		}
		result.Matches = append(result.Matches, m.ID)
	}

	if err := repo.RecordRatingChanges(ctx, changes); err != nil {
		return RecomputeResult{}, err
	}
	for _, playerID := range sortedStatKeys(stats) {
		if err := repo.UpsertSeasonStats(ctx, stats[playerID]); err != nil {
			return RecomputeResult{}, err
		}
		result.Stats = append(result.Stats, stats[playerID])
	}
	return result, nil
}

func seasonRecordFor(stats map[string]data.SeasonStats, scoring *season.Engine, playerID, seasonID string, system season.ScoringSystem) data.SeasonStats {
	if s, ok := stats[playerID]; ok {
		return s
	}
	return scoring.SeedStats(playerID, seasonID, system)
}

func countResult(s *data.SeasonStats, won bool) {
	s.MatchesPlayed++
	if won {
		s.Wins++
	} else {
		s.Losses++
	}
}

func sortedStatKeys(m map[string]data.SeasonStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return uniqueSorted(keys)
}
