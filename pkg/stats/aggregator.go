// Package stats keeps global ratings and season standings consistent with the recorded
// matches. It orders updates per player, serializes season recomputation against ingestion,
// and writes every match's effects in a single store transaction.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/elo"
	"github.com/pschwagler/beach-kings-sub002/pkg/rank"
	"github.com/pschwagler/beach-kings-sub002/pkg/season"
	"github.com/pschwagler/beach-kings-sub002/pkg/store"
)

// Error types for aggregation
var (
	ErrUnresolvedRoster     = errors.New("ranked computation requires all four roster slots bound")
	ErrSeasonNeedsRecompute = errors.New("season statistics must be recomputed after a scoring change")
	ErrInvalidClaim         = errors.New("claim needs a slot and a player")

	// errNeedsReplay asks the caller to retry under the exclusive timeline lock
	errNeedsReplay = errors.New("match precedes applied matches of its players")
	// errSeasonsChanged asks a claim to retry with a fresh set of season locks
	errSeasonsChanged = errors.New("matches referencing the slot changed seasons")
)

// Skip reasons reported for matches that do not change statistics
const (
	SkipUnranked       = "unranked"
	SkipAlreadyApplied = "already_applied"
)

// Aggregator applies ranked matches to global and season statistics
type Aggregator struct {
	store    store.Store
	ratings  *elo.Engine
	scoring  *season.Engine
	config   data.EngineConfig
	recorder Recorder
	logger   zerolog.Logger

	players  *keyedLocks
	seasons  *seasonLocks
	timeline sync.RWMutex
}

// Option customizes an Aggregator
type Option func(*Aggregator)

// WithRecorder appends committed outcomes to r
func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) { a.recorder = r }
}

// WithLogger sets the parent logger
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// NewAggregator builds the rating and season engines from config and binds them to s
func NewAggregator(s store.Store, config data.EngineConfig, opts ...Option) (*Aggregator, error) {
	if s == nil {
		return nil, errors.New("aggregator requires a store")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	margin, err := elo.NewMarginStrategy(config.MarginCurve, config.MarginScale, config.MarginMax)
	if err != nil {
		return nil, err
	}
	ratings, err := elo.NewEngine(elo.Config{
		UsePointDifferential: config.UsePointDifferential,
		Margin:               margin,
	})
	if err != nil {
		return nil, err
	}
	scoring, err := season.NewEngine(ratings, season.Config{
		SeasonKFactor: config.SeasonKFactor,
		InitialRating: config.InitialRating,
	})
	if err != nil {
		return nil, err
	}

	a := &Aggregator{
		store:    s,
		ratings:  ratings,
		scoring:  scoring,
		config:   config,
		recorder: nopRecorder{},
		logger:   zerolog.Nop(),
		players:  newKeyedLocks(),
		seasons:  newSeasonLocks(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With().Str("component", "stats").Logger()
	return a, nil
}

// MatchResult describes what ApplyMatch did with one match
type MatchResult struct {
	MatchID    string
	SeasonID   string
	Status     rank.Status
	Applied    bool
	SkipReason string
	Global     []data.RatingChange // Global rating changes of the match itself
	Season     []data.RatingChange // Season rating changes, season_rating mode only
	Points     []data.SeasonStats  // Season records of the four players after the match
	Replayed   []string            // Later matches recomputed because of this match
}

// ApplyMatch validates match, stores it if it is new and applies its effects if it is
// effectively ranked and not yet applied. Unranked and already applied matches are no-ops.
func (a *Aggregator) ApplyMatch(ctx context.Context, match data.Match) (MatchResult, error) {
	if err := match.Validate(); err != nil {
		return MatchResult{}, err
	}

	logger := a.logger.With().Str("match_id", match.ID).Str("season_id", match.SeasonID).Logger()

	release := a.seasons.share(match.SeasonID)
	defer release()

	var (
		result    MatchResult
		exclusive bool
	)
	for {
		var unlock func()
		if exclusive {
			a.timeline.Lock()
			unlock = a.timeline.Unlock
		} else {
			a.timeline.RLock()
			unlockPlayers := a.players.lock(match.PlayerIDs())
			unlock = func() {
				unlockPlayers()
				a.timeline.RUnlock()
			}
		}

		err := a.withRetry(ctx, logger, func() error {
			return a.store.RunInTx(ctx, func(repo store.Repository) error {
				var err error
				result, err = a.applyInTx(ctx, repo, match, exclusive)
				return err
			})
		})
		unlock()

		if errors.Is(err, errNeedsReplay) && !exclusive {
			logger.Debug().Msg("match precedes applied matches, replaying under exclusive timeline lock")
			exclusive = true
			continue
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to apply match")
			return MatchResult{}, err
		}
		break
	}

	if result.Applied {
		logger.Info().
			Int("replayed", len(result.Replayed)).
			Msg("match applied")
		a.record(ctx, Event{Type: EventMatchApplied, Match: &result})
	} else {
		logger.Debug().
			Str("reason", result.SkipReason).
			Int("unbound_slots", rank.SnapshotOf(match).Unbound()).
			Msg("match skipped")
		a.record(ctx, Event{Type: EventMatchSkipped, Match: &result})
	}
	return result, nil
}

// applyInTx persists match if it is new and applies it when effectively ranked
func (a *Aggregator) applyInTx(ctx context.Context, repo store.Repository, match data.Match, allowReplay bool) (MatchResult, error) {
	stored, err := repo.GetMatch(ctx, match.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := repo.CreateMatch(ctx, match); err != nil {
			return MatchResult{}, err
		}
		stored = match
	case err != nil:
		return MatchResult{}, err
	default:
		if err := stored.Validate(); err != nil {
			return MatchResult{}, err
		}
	}

	result := MatchResult{MatchID: stored.ID, SeasonID: stored.SeasonID, Status: rank.ResolveMatch(stored)}
	switch {
	case result.Status != rank.Ranked:
		result.SkipReason = SkipUnranked
		return result, nil
	case stored.StatsApplied:
		result.SkipReason = SkipAlreadyApplied
		return result, nil
	}

	return a.applyRanked(ctx, repo, stored, allowReplay)
}

// scope is a rating timeline: the global one or a season's
type scope struct {
	seasonID string
	kFactor  float64
	current  func(ctx context.Context, repo store.Repository, playerID string) (float64, error)
}

func (a *Aggregator) globalScope() scope {
	return scope{
		kFactor: a.config.KFactor,
		current: func(ctx context.Context, repo store.Repository, playerID string) (float64, error) {
			stats, err := a.loadGlobal(ctx, repo, playerID)
			return stats.CurrentRating, err
		},
	}
}

func (a *Aggregator) seasonScope(seasonID string) scope {
	return scope{
		seasonID: seasonID,
		kFactor:  a.scoring.KFactor(),
		current: func(ctx context.Context, repo store.Repository, playerID string) (float64, error) {
			stats, err := a.loadSeason(ctx, repo, playerID, seasonID, season.SeasonRating{})
			return stats.Rating, err
		},
	}
}

// applyRanked writes the global and season effects of an effectively ranked match and marks
// it applied
func (a *Aggregator) applyRanked(ctx context.Context, repo store.Repository, match data.Match, allowReplay bool) (MatchResult, error) {
	for _, slot := range match.Slots() {
		if !slot.Bound() {
			return MatchResult{}, fmt.Errorf("%w: match %s slot %s", ErrUnresolvedRoster, match.ID, slot.SlotID)
		}
		if _, err := repo.GetPlayer(ctx, slot.PlayerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return MatchResult{}, fmt.Errorf("%w: match %s slot %s names unknown player %s", ErrUnresolvedRoster, match.ID, slot.SlotID, slot.PlayerID)
			}
			return MatchResult{}, err
		}
	}

	seasonRecord, err := repo.GetSeason(ctx, match.SeasonID)
	if err != nil {
		return MatchResult{}, err
	}
	system, err := season.FromSeason(seasonRecord)
	if err != nil {
		return MatchResult{}, err
	}

	result := MatchResult{
		MatchID:  match.ID,
		SeasonID: match.SeasonID,
		Status:   rank.Ranked,
		Applied:  true,
	}

	global, err := a.insertIntoTimeline(ctx, repo, a.globalScope(), match, allowReplay)
	if err != nil {
		return MatchResult{}, err
	}
	if err := a.writeGlobal(ctx, repo, match, global.final); err != nil {
		return MatchResult{}, err
	}
	result.Global = global.matchChanges
	result.Replayed = global.replayed

	switch sys := system.(type) {
	case season.PointsSystem:
		result.Points, err = a.writePoints(ctx, repo, match, sys)
		if err != nil {
			return MatchResult{}, err
		}
	case season.SeasonRating:
		// Stale rows must fail before any rating is computed from them
		for _, playerID := range match.PlayerIDs() {
			if _, err := a.loadSeason(ctx, repo, playerID, match.SeasonID, sys); err != nil {
				return MatchResult{}, err
			}
		}
		seasonal, err := a.insertIntoTimeline(ctx, repo, a.seasonScope(match.SeasonID), match, allowReplay)
		if err != nil {
			return MatchResult{}, err
		}
		result.Points, err = a.writeSeasonRatings(ctx, repo, match, sys, seasonal.final)
		if err != nil {
			return MatchResult{}, err
		}
		result.Season = seasonal.matchChanges
		result.Replayed = mergeIDs(result.Replayed, seasonal.replayed)
	}

	if err := repo.SetStatsApplied(ctx, match.ID, true); err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

type timelineResult struct {
	matchChanges []data.RatingChange
	replayed     []string
	final        map[string]float64
}

// insertIntoTimeline rates match at its chronological position in sc. Ratings are taken as
// of the match's key. Applied later matches connected to its players, directly or through
// other replayed matches, are re-rated in order and their history rewritten. Without
// connected later matches the current ratings are used as-is.
func (a *Aggregator) insertIntoTimeline(ctx context.Context, repo store.Repository, sc scope, match data.Match, allowReplay bool) (timelineResult, error) {
	tail, err := repo.ListAppliedMatchesAfter(ctx, sc.seasonID, match.Key())
	if err != nil {
		return timelineResult{}, err
	}

	affected := make(map[string]bool, 4)
	for _, id := range match.PlayerIDs() {
		affected[id] = true
	}
	replay := false
	for _, t := range tail {
		if touches(t, affected) {
			replay = true
			break
		}
	}
	if replay && !allowReplay {
		return timelineResult{}, errNeedsReplay
	}

	ratings := make(map[string]float64, 4)
	for _, id := range match.PlayerIDs() {
		var r float64
		if replay {
			r, err = a.ratingBefore(ctx, repo, id, sc.seasonID, match.Key())
		} else {
			r, err = sc.current(ctx, repo, id)
		}
		if err != nil {
			return timelineResult{}, err
		}
		ratings[id] = r
	}

	result := timelineResult{final: ratings}
	result.matchChanges, err = a.rateMatch(sc, match, ratings)
	if err != nil {
		return timelineResult{}, err
	}
	changes := append([]data.RatingChange(nil), result.matchChanges...)

	if replay {
		for _, t := range tail {
			if !touches(t, affected) {
				continue
			}
			if err := t.Validate(); err != nil {
				return timelineResult{}, fmt.Errorf("replaying match %s: %w", t.ID, err)
			}
			for _, id := range t.PlayerIDs() {
				if affected[id] {
					continue
				}
				r, err := a.ratingBefore(ctx, repo, id, sc.seasonID, t.Key())
				if err != nil {
					return timelineResult{}, err
				}
				ratings[id] = r
				affected[id] = true
			}
			replayed, err := a.rateMatch(sc, t, ratings)
			if err != nil {
				return timelineResult{}, fmt.Errorf("replaying match %s: %w", t.ID, err)
			}
			changes = append(changes, replayed...)
			result.replayed = append(result.replayed, t.ID)
		}
		if err := repo.DeleteRatingChanges(ctx, sc.seasonID, result.replayed); err != nil {
			return timelineResult{}, err
		}
	}

	if err := repo.RecordRatingChanges(ctx, changes); err != nil {
		return timelineResult{}, err
	}
	return result, nil
}

// rateMatch rates match from ratings, updates ratings in place and returns the history rows
func (a *Aggregator) rateMatch(sc scope, match data.Match, ratings map[string]float64) ([]data.RatingChange, error) {
	team := func(slots [2]data.RosterSlot) [2]elo.Rating {
		return [2]elo.Rating{
			{PlayerID: slots[0].PlayerID, Score: ratings[slots[0].PlayerID]},
			{PlayerID: slots[1].PlayerID, Score: ratings[slots[1].PlayerID]},
		}
	}

	outcome, err := a.ratings.CalculateDoubles(team(match.TeamA), team(match.TeamB),
		match.Winner() == data.TeamA, sc.kFactor, marginOf(match))
	if err != nil {
		return nil, err
	}

	changes := make([]data.RatingChange, 0, 4)
	for _, u := range append(outcome.TeamA[:], outcome.TeamB[:]...) {
		ratings[u.PlayerID] = u.NewRating
		changes = append(changes, data.RatingChange{
			MatchID:    match.ID,
			PlayerID:   u.PlayerID,
			SeasonID:   sc.seasonID,
			OccurredAt: match.OccurredAt,
			Before:     u.OldRating,
			After:      u.NewRating,
		})
	}
	return changes, nil
}

func (a *Aggregator) ratingBefore(ctx context.Context, repo store.Repository, playerID, seasonID string, key data.MatchKey) (float64, error) {
	r, ok, err := repo.RatingBefore(ctx, playerID, seasonID, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return a.config.InitialRating, nil
	}
	return r, nil
}

func (a *Aggregator) loadGlobal(ctx context.Context, repo store.Repository, playerID string) (data.GlobalStats, error) {
	stats, err := repo.GetGlobalStats(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return data.NewGlobalStats(playerID, a.config.InitialRating), nil
	}
	return stats, err
}

// loadSeason returns the player's season record, seeded when missing. A record aggregated
// under another scoring system is ErrSeasonNeedsRecompute.
func (a *Aggregator) loadSeason(ctx context.Context, repo store.Repository, playerID, seasonID string, system season.ScoringSystem) (data.SeasonStats, error) {
	stats, err := repo.GetSeasonStats(ctx, playerID, seasonID)
	if errors.Is(err, store.ErrNotFound) {
		return a.scoring.SeedStats(playerID, seasonID, system), nil
	}
	if err != nil {
		return data.SeasonStats{}, err
	}
	if err := season.CheckMode(system, stats); err != nil {
		return data.SeasonStats{}, fmt.Errorf("%w: season %s: %v", ErrSeasonNeedsRecompute, seasonID, err)
	}
	return stats, nil
}

// writeGlobal stores the final global ratings of every affected player. Win and loss counts
// only change for the players of match itself.
func (a *Aggregator) writeGlobal(ctx context.Context, repo store.Repository, match data.Match, final map[string]float64) error {
	winners := winnerSet(match)
	for _, playerID := range sortedKeys(final) {
		stats, err := a.loadGlobal(ctx, repo, playerID)
		if err != nil {
			return err
		}
		stats.CurrentRating = final[playerID]
		if won, played := winners[playerID]; played {
			if won {
				stats.Wins++
			} else {
				stats.Losses++
			}
		}
		if _, err := repo.SetGlobalStats(ctx, stats); err != nil {
			return err
		}
	}
	return nil
}

// writePoints adds the points of one match. Points are additive, so no replay is needed.
func (a *Aggregator) writePoints(ctx context.Context, repo store.Repository, match data.Match, system season.PointsSystem) ([]data.SeasonStats, error) {
	var teamA, teamB [2]data.SeasonStats
	for i := range match.TeamA {
		var err error
		if teamA[i], err = a.loadSeason(ctx, repo, match.TeamA[i].PlayerID, match.SeasonID, system); err != nil {
			return nil, err
		}
		if teamB[i], err = a.loadSeason(ctx, repo, match.TeamB[i].PlayerID, match.SeasonID, system); err != nil {
			return nil, err
		}
	}

	outcome, err := a.scoring.Score(system, teamA, teamB, match.Winner() == data.TeamA, marginOf(match))
	if errors.Is(err, season.ErrModeMismatch) {
		return nil, fmt.Errorf("%w: %v", ErrSeasonNeedsRecompute, err)
	}
	if err != nil {
		return nil, err
	}

	written := append(outcome.TeamA[:], outcome.TeamB[:]...)
	for _, stats := range written {
		if err := repo.UpsertSeasonStats(ctx, stats); err != nil {
			return nil, err
		}
	}
	return written, nil
}

// writeSeasonRatings stores the final season ratings of every affected player and counts the
// match for its own players
func (a *Aggregator) writeSeasonRatings(ctx context.Context, repo store.Repository, match data.Match, system season.SeasonRating, final map[string]float64) ([]data.SeasonStats, error) {
	winners := winnerSet(match)
	var written []data.SeasonStats
	for _, playerID := range sortedKeys(final) {
		stats, err := a.loadSeason(ctx, repo, playerID, match.SeasonID, system)
		if err != nil {
			return nil, err
		}
		stats.Rating = final[playerID]
		if won, played := winners[playerID]; played {
			countResult(&stats, won)
			written = append(written, stats)
		}
		if err := repo.UpsertSeasonStats(ctx, stats); err != nil {
			return nil, err
		}
	}
	return written, nil
}

// withRetry reruns fn on version conflicts up to the configured number of attempts
func (a *Aggregator) withRetry(ctx context.Context, logger zerolog.Logger, fn func() error) error {
	var err error
	for attempt := 1; attempt <= a.config.MaxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("version conflict, retrying with fresh state")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 5 * time.Millisecond):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", a.config.MaxRetries, err)
}

func (a *Aggregator) record(ctx context.Context, event Event) {
	if err := a.recorder.Record(ctx, event); err != nil {
		a.logger.Error().Err(err).Str("event", string(event.Type)).Msg("failed to record event")
	}
}

func marginOf(match data.Match) *elo.Margin {
	return &elo.Margin{PointDifferential: match.PointDifferential()}
}

// touches reports whether any player of match is in players
func touches(match data.Match, players map[string]bool) bool {
	for _, id := range match.PlayerIDs() {
		if players[id] {
			return true
		}
	}
	return false
}

// winnerSet maps each player of match to whether their team won
func winnerSet(match data.Match) map[string]bool {
	winner, loser := data.TeamA, data.TeamB
	if match.Winner() == data.TeamB {
		winner, loser = loser, winner
	}
	set := make(map[string]bool, 4)
	for _, slot := range match.Team(winner) {
		set[slot.PlayerID] = true
	}
	for _, slot := range match.Team(loser) {
		set[slot.PlayerID] = false
	}
	return set
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			a = append(a, id)
			seen[id] = true
		}
	}
	return a
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
