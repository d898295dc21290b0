package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
)

// Error types for snapshot files
var (
	ErrAtomicWrite    = errors.New("atomic write operation failed")
	ErrCorruptedFile  = errors.New("corrupted snapshot file")
	ErrSnapshotFormat = errors.New("snapshot serialization error")
)

// memState is the complete content of a MemoryStore. It is copied on every transaction.
type memState struct {
	Players     map[string]data.Player      `json:"players"`
	Global      map[string]data.GlobalStats `json:"global_stats"`
	Seasons     map[string]data.Season      `json:"seasons"`
	SeasonStats map[string]data.SeasonStats `json:"season_stats"`
	Matches     map[string]data.Match       `json:"matches"`
	Changes     []data.RatingChange         `json:"rating_changes"`
	SavedAt     time.Time                   `json:"saved_at"`
}

func newMemState() *memState {
	return &memState{
		Players:     make(map[string]data.Player),
		Global:      make(map[string]data.GlobalStats),
		Seasons:     make(map[string]data.Season),
		SeasonStats: make(map[string]data.SeasonStats),
		Matches:     make(map[string]data.Match),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.Players {
		c.Players[k] = v
	}
	for k, v := range s.Global {
		c.Global[k] = v
	}
	for k, v := range s.Seasons {
		c.Seasons[k] = v
	}
	for k, v := range s.SeasonStats {
		c.SeasonStats[k] = v
	}
	for k, v := range s.Matches {
		c.Matches[k] = v
	}
	c.Changes = append([]data.RatingChange(nil), s.Changes...)
	c.SavedAt = s.SavedAt
	return c
}

func seasonStatsKey(seasonID, playerID string) string {
	return seasonID + "|" + playerID
}

// MemoryStore keeps all state in memory. Transactions run against a private copy that replaces
// the live state on commit, so a failed transaction leaves no trace. With a snapshot path the
// state is written to a JSON file after every commit.
type MemoryStore struct {
	mu      sync.RWMutex // guards state
	writeMu sync.Mutex   // serializes transactions
	state   *memState
	path    string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// NewFileStore creates a memory store persisted to a JSON snapshot at path, loading the
// snapshot if it exists
func NewFileStore(path string) (*MemoryStore, error) {
	s := &MemoryStore{state: newMemState(), path: path}

	loaded, err := loadSnapshot(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if loaded != nil {
		s.state = loaded
	}
	return s, nil
}

// RunInTx runs fn against a copy of the state and publishes the copy if fn succeeds
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(Repository) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&memRepo{state: working}); err != nil {
		return err
	}

	if s.path != "" {
		working.SavedAt = time.Now().UTC()
		if err := saveSnapshot(working, s.path); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// View runs fn against the current state without allowing writes
func (s *MemoryStore) View(ctx context.Context, fn func(Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&memRepo{state: s.state, readOnly: true})
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

// saveSnapshot performs an atomic write using temporary file + rename
func saveSnapshot(state *memState, filename string) error {
	tempFile := filename + ".tmp"

	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("%w: cannot create temp snapshot file: %v", ErrAtomicWrite, err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(state); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: failed to encode snapshot: %v", ErrSnapshotFormat, err)
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: failed to sync snapshot file: %v", ErrAtomicWrite, err)
	}

	_ = file.Close()

	if err := os.Rename(tempFile, filename); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: atomic rename failed: %v", ErrAtomicWrite, err)
	}

	return nil
}

func loadSnapshot(filename string) (*memState, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	state := newMemState()
	if err := json.NewDecoder(file).Decode(state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptedFile, filename, err)
	}
	// Maps missing from an older snapshot decode as nil
	fresh := newMemState()
	if state.Players == nil {
		state.Players = fresh.Players
	}
	if state.Global == nil {
		state.Global = fresh.Global
	}
	if state.Seasons == nil {
		state.Seasons = fresh.Seasons
	}
	if state.SeasonStats == nil {
		state.SeasonStats = fresh.SeasonStats
	}
	if state.Matches == nil {
		state.Matches = fresh.Matches
	}
	return state, nil
}

// memRepo implements Repository over one memState
type memRepo struct {
	state    *memState
	readOnly bool
}

func (r *memRepo) writable() error {
	if r.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (r *memRepo) CreatePlayer(_ context.Context, player data.Player) error {
	if err := r.writable(); err != nil {
		return err
	}
	if err := player.Validate(); err != nil {
		return err
	}
	if _, ok := r.state.Players[player.ID]; ok {
		return fmt.Errorf("player %s: %w", player.ID, ErrAlreadyExists)
	}
	if player.CreatedAt.IsZero() {
		player.CreatedAt = time.Now().UTC()
	}
	r.state.Players[player.ID] = player
	return nil
}

func (r *memRepo) GetPlayer(_ context.Context, id string) (data.Player, error) {
	player, ok := r.state.Players[id]
	if !ok {
		return data.Player{}, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return player, nil
}

func (r *memRepo) ListPlayers(_ context.Context) ([]data.Player, error) {
	players := make([]data.Player, 0, len(r.state.Players))
	for _, p := range r.state.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players, nil
}

func (r *memRepo) GetGlobalStats(_ context.Context, playerID string) (data.GlobalStats, error) {
	stats, ok := r.state.Global[playerID]
	if !ok {
		return data.GlobalStats{}, fmt.Errorf("global stats for %s: %w", playerID, ErrNotFound)
	}
	return stats, nil
}

func (r *memRepo) SetGlobalStats(_ context.Context, stats data.GlobalStats) (data.GlobalStats, error) {
	if err := r.writable(); err != nil {
		return data.GlobalStats{}, err
	}
	current, ok := r.state.Global[stats.PlayerID]
	stored := int64(0)
	if ok {
		stored = current.Version
	}
	if stored != stats.Version {
		return data.GlobalStats{}, fmt.Errorf("global stats for %s at version %d, have %d: %w",
			stats.PlayerID, stored, stats.Version, ErrVersionConflict)
	}
	stats.Version++
	r.state.Global[stats.PlayerID] = stats
	return stats, nil
}

func (r *memRepo) ListGlobalStats(_ context.Context) ([]data.GlobalStats, error) {
	all := make([]data.GlobalStats, 0, len(r.state.Global))
	for _, s := range r.state.Global {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PlayerID < all[j].PlayerID })
	return all, nil
}

func (r *memRepo) CreateSeason(_ context.Context, s data.Season) error {
	if err := r.writable(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := validateScoring(s.ScoringSystem, s.PointSystem); err != nil {
		return err
	}
	if _, ok := r.state.Seasons[s.ID]; ok {
		return fmt.Errorf("season %s: %w", s.ID, ErrAlreadyExists)
	}
	r.state.Seasons[s.ID] = s
	return nil
}

func (r *memRepo) GetSeason(_ context.Context, id string) (data.Season, error) {
	s, ok := r.state.Seasons[id]
	if !ok {
		return data.Season{}, fmt.Errorf("season %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (r *memRepo) ListSeasons(_ context.Context) ([]data.Season, error) {
	seasons := make([]data.Season, 0, len(r.state.Seasons))
	for _, s := range r.state.Seasons {
		seasons = append(seasons, s)
	}
	sort.Slice(seasons, func(i, j int) bool { return seasons[i].ID < seasons[j].ID })
	return seasons, nil
}

func (r *memRepo) UpdateSeasonScoring(_ context.Context, seasonID string, mode data.ScoringMode, pointSystem string) error {
	if err := r.writable(); err != nil {
		return err
	}
	if err := validateScoring(mode, pointSystem); err != nil {
		return err
	}
	s, ok := r.state.Seasons[seasonID]
	if !ok {
		return fmt.Errorf("season %s: %w", seasonID, ErrNotFound)
	}
	s.ScoringSystem = mode
	s.PointSystem = pointSystem
	r.state.Seasons[seasonID] = s
	return nil
}

func (r *memRepo) GetSeasonStats(_ context.Context, playerID, seasonID string) (data.SeasonStats, error) {
	stats, ok := r.state.SeasonStats[seasonStatsKey(seasonID, playerID)]
	if !ok {
		return data.SeasonStats{}, fmt.Errorf("season stats for %s in %s: %w", playerID, seasonID, ErrNotFound)
	}
	return stats, nil
}

func (r *memRepo) UpsertSeasonStats(_ context.Context, stats data.SeasonStats) error {
	if err := r.writable(); err != nil {
		return err
	}
	r.state.SeasonStats[seasonStatsKey(stats.SeasonID, stats.PlayerID)] = stats
	return nil
}

func (r *memRepo) ListSeasonStats(_ context.Context, seasonID string) ([]data.SeasonStats, error) {
	var all []data.SeasonStats
	for _, s := range r.state.SeasonStats {
		if s.SeasonID == seasonID {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].PlayerID < all[j].PlayerID })
	return all, nil
}

func (r *memRepo) ResetSeasonStats(_ context.Context, seasonID string) error {
	if err := r.writable(); err != nil {
		return err
	}
	for k, s := range r.state.SeasonStats {
		if s.SeasonID == seasonID {
			delete(r.state.SeasonStats, k)
		}
	}
	return nil
}

func (r *memRepo) CreateMatch(_ context.Context, match data.Match) error {
	if err := r.writable(); err != nil {
		return err
	}
	if _, ok := r.state.Matches[match.ID]; ok {
		return fmt.Errorf("match %s: %w", match.ID, ErrAlreadyExists)
	}
	if _, ok := r.state.Seasons[match.SeasonID]; !ok {
		return fmt.Errorf("season %s of match %s: %w", match.SeasonID, match.ID, ErrNotFound)
	}
	if match.CreatedAt.IsZero() {
		match.CreatedAt = time.Now().UTC()
	}
	r.state.Matches[match.ID] = match
	return nil
}

func (r *memRepo) GetMatch(_ context.Context, id string) (data.Match, error) {
	match, ok := r.state.Matches[id]
	if !ok {
		return data.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return match, nil
}

func (r *memRepo) filterMatches(keep func(data.Match) bool) []data.Match {
	var matches []data.Match
	for _, m := range r.state.Matches {
		if keep(m) {
			matches = append(matches, m)
		}
	}
	sortMatches(matches)
	return matches
}

func (r *memRepo) ListMatchesForSeason(_ context.Context, seasonID string) ([]data.Match, error) {
	return r.filterMatches(func(m data.Match) bool { return m.SeasonID == seasonID }), nil
}

func (r *memRepo) ListMatchesReferencingSlot(_ context.Context, slotID string) ([]data.Match, error) {
	return r.filterMatches(func(m data.Match) bool { return m.ReferencesSlot(slotID) }), nil
}

func (r *memRepo) ListAppliedMatchesAfter(_ context.Context, seasonID string, key data.MatchKey) ([]data.Match, error) {
	return r.filterMatches(func(m data.Match) bool {
		if !m.StatsApplied || !key.Before(m.Key()) {
			return false
		}
		return seasonID == "" || m.SeasonID == seasonID
	}), nil
}

func (r *memRepo) BindSlot(_ context.Context, slotID, playerID string) (int, error) {
	if err := r.writable(); err != nil {
		return 0, err
	}

	found := false
	for _, m := range r.state.Matches {
		for _, slot := range m.Slots() {
			if slot.SlotID != slotID {
				continue
			}
			found = true
			if slot.Bound() && slot.PlayerID != playerID {
				return 0, fmt.Errorf("slot %s bound to %s in match %s: %w", slotID, slot.PlayerID, m.ID, ErrSlotAlreadyBound)
			}
		}
	}
	if !found {
		return 0, fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}

	bound := 0
	for id, m := range r.state.Matches {
		changed := false
		for i := range m.TeamA {
			if m.TeamA[i].SlotID == slotID && !m.TeamA[i].Bound() {
				m.TeamA[i].PlayerID = playerID
				changed = true
				bound++
			}
			if m.TeamB[i].SlotID == slotID && !m.TeamB[i].Bound() {
				m.TeamB[i].PlayerID = playerID
				changed = true
				bound++
			}
		}
		if changed {
			r.state.Matches[id] = m
		}
	}
	return bound, nil
}

func (r *memRepo) SetStatsApplied(_ context.Context, matchID string, applied bool) error {
	if err := r.writable(); err != nil {
		return err
	}
	m, ok := r.state.Matches[matchID]
	if !ok {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	m.StatsApplied = applied
	r.state.Matches[matchID] = m
	return nil
}

func (r *memRepo) RecordRatingChanges(_ context.Context, changes []data.RatingChange) error {
	if err := r.writable(); err != nil {
		return err
	}
	for _, c := range changes {
		for _, existing := range r.state.Changes {
			if existing.MatchID == c.MatchID && existing.PlayerID == c.PlayerID && existing.SeasonID == c.SeasonID {
				return fmt.Errorf("rating change %s/%s/%s: %w", c.SeasonID, c.PlayerID, c.MatchID, ErrAlreadyExists)
			}
		}
		r.state.Changes = append(r.state.Changes, c)
	}
	return nil
}

func (r *memRepo) RatingBefore(_ context.Context, playerID, seasonID string, key data.MatchKey) (float64, bool, error) {
	var (
		best  data.RatingChange
		found bool
	)
	for _, c := range r.state.Changes {
		if c.PlayerID != playerID || c.SeasonID != seasonID || !c.Key().Before(key) {
			continue
		}
		if !found || best.Key().Before(c.Key()) {
			best = c
			found = true
		}
	}
	return best.After, found, nil
}

func (r *memRepo) ListRatingChanges(_ context.Context, playerID, seasonID string) ([]data.RatingChange, error) {
	var changes []data.RatingChange
	for _, c := range r.state.Changes {
		if c.PlayerID == playerID && c.SeasonID == seasonID {
			changes = append(changes, c)
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key().Before(changes[j].Key()) })
	return changes, nil
}

func (r *memRepo) DeleteRatingChanges(_ context.Context, seasonID string, matchIDs []string) error {
	if err := r.writable(); err != nil {
		return err
	}
	drop := make(map[string]bool, len(matchIDs))
	for _, id := range matchIDs {
		drop[id] = true
	}
	r.state.Changes = keepChanges(r.state.Changes, func(c data.RatingChange) bool {
		return c.SeasonID != seasonID || !drop[c.MatchID]
	})
	return nil
}

func (r *memRepo) DeleteSeasonRatingChanges(_ context.Context, seasonID string) error {
	if err := r.writable(); err != nil {
		return err
	}
	if seasonID == "" {
		return errors.New("refusing to delete the global rating history")
	}
	r.state.Changes = keepChanges(r.state.Changes, func(c data.RatingChange) bool {
		return c.SeasonID != seasonID
	})
	return nil
}

func keepChanges(changes []data.RatingChange, keep func(data.RatingChange) bool) []data.RatingChange {
	kept := changes[:0]
	for _, c := range changes {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	return kept
}

// sortMatches orders matches by MatchKey
func sortMatches(matches []data.Match) {
	sort.Slice(matches, func(i, j int) bool { return matches[i].Key().Before(matches[j].Key()) })
}
