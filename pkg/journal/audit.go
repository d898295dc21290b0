// Package journal keeps an append-only, tamper-evident ledger of committed rating
// outcomes and exports season standings. The ledger uses JSON Lines with a SHA-256 hash
// chain so that any edited or dropped entry is detected on open.
package journal

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/stats"
)

// Error types for ledger operations
var (
	ErrLedgerCorrupted = errors.New("rating ledger corrupted or tampered")
	ErrLedgerClosed    = errors.New("rating ledger is closed")
)

// LedgerFileName is the ledger's file inside its directory
const LedgerFileName = "ratings.jsonl"

// EventType names the kind of a ledger entry
type EventType string

const (
	EventMatchApplied       EventType = "match_applied"
	EventMatchSkipped       EventType = "match_skipped"
	EventRatingUpdated      EventType = "rating_updated"
	EventPointsUpdated      EventType = "points_updated"
	EventPlaceholderClaimed EventType = "placeholder_claimed"
	EventSeasonRecomputed   EventType = "season_recomputed"
	EventScoringChanged     EventType = "scoring_changed"
)

// Entry is a single line of the ledger
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	MatchID   string    `json:"match_id,omitempty"`
	SeasonID  string    `json:"season_id,omitempty"`
	PlayerID  string    `json:"player_id,omitempty"`

	Data map[string]any `json:"data"`

	PreviousHash string `json:"previous_hash"` // Hash of the previous entry
	EntryHash    string `json:"entry_hash"`
	Sequence     uint64 `json:"sequence"`
}

// Ledger appends committed aggregator outcomes to a hash-chained JSONL file. It implements
// stats.Recorder and is safe for concurrent use.
type Ledger struct {
	path     string
	file     *os.File
	mutex    sync.Mutex
	lastHash string
	sequence uint64
	now      func() time.Time
}

var _ stats.Recorder = (*Ledger)(nil)

// NewLedger opens the ledger in directory, creating it when missing. An existing ledger is
// verified before it is appended to.
func NewLedger(directory string) (*Ledger, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l := &Ledger{
		path: filepath.Join(directory, LedgerFileName),
		now:  func() time.Time { return time.Now().UTC() },
	}

	lastHash, sequence, err := l.scan(nil)
	if err != nil {
		return nil, fmt.Errorf("ledger validation failed: %w", err)
	}
	l.lastHash, l.sequence = lastHash, sequence

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}
	l.file = file

	return l, nil
}

// Record appends the entries describing event. All entries of one event are written
// contiguously.
func (l *Ledger) Record(ctx context.Context, event stats.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var entries []Entry
	switch event.Type {
	case stats.EventMatchApplied, stats.EventMatchSkipped:
		if event.Match == nil {
			return fmt.Errorf("%s event without match result", event.Type)
		}
		entries = matchEntries(*event.Match)

	case stats.EventPlaceholderClaimed:
		if event.Claim == nil {
			return fmt.Errorf("%s event without claim result", event.Type)
		}
		claim := event.Claim
		entries = append(entries, Entry{
			EventType: EventPlaceholderClaimed,
			PlayerID:  claim.PlayerID,
			Data: map[string]any{
				"slot_id":   claim.SlotID,
				"bound":     claim.Bound,
				"applied":   appliedIDs(claim.Applied),
				"pending":   nonNil(claim.Pending),
				"player_id": claim.PlayerID,
			},
		})
		for _, m := range claim.Applied {
			entries = append(entries, matchEntries(m)...)
		}

	case stats.EventSeasonRecomputed, stats.EventScoringChanged:
		if event.Recompute == nil {
			return fmt.Errorf("%s event without recompute result", event.Type)
		}
		r := event.Recompute
		eventType := EventSeasonRecomputed
		if event.Type == stats.EventScoringChanged {
			eventType = EventScoringChanged
		}
		entries = append(entries, Entry{
			EventType: eventType,
			SeasonID:  r.SeasonID,
			Data: map[string]any{
				"mode":    string(r.Mode),
				"matches": nonNil(r.Matches),
				"players": len(r.Stats),
			},
		})

	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	return l.append(entries)
}

// matchEntries describes one applied or skipped match: the match entry followed by one
// entry per rating change and, in points seasons, one per player's season record
func matchEntries(m stats.MatchResult) []Entry {
	if !m.Applied {
		return []Entry{{
			EventType: EventMatchSkipped,
			MatchID:   m.MatchID,
			SeasonID:  m.SeasonID,
			Data: map[string]any{
				"status":      m.Status.String(),
				"skip_reason": m.SkipReason,
			},
		}}
	}

	entries := []Entry{{
		EventType: EventMatchApplied,
		MatchID:   m.MatchID,
		SeasonID:  m.SeasonID,
		Data: map[string]any{
			"status":   m.Status.String(),
			"players":  changedPlayers(m.Global),
			"replayed": nonNil(m.Replayed),
		},
	}}

	for _, scope := range [][]data.RatingChange{m.Global, m.Season} {
		for _, c := range scope {
			entries = append(entries, Entry{
				EventType: EventRatingUpdated,
				MatchID:   c.MatchID,
				SeasonID:  c.SeasonID,
				PlayerID:  c.PlayerID,
				Data: map[string]any{
					"scope":        ratingScope(c),
					"old_rating":   c.Before,
					"new_rating":   c.After,
					"rating_delta": c.Delta(),
				},
			})
		}
	}

	for _, s := range m.Points {
		if s.Mode != data.ModePointsSystem {
			continue
		}
		entries = append(entries, Entry{
			EventType: EventPointsUpdated,
			MatchID:   m.MatchID,
			SeasonID:  s.SeasonID,
			PlayerID:  s.PlayerID,
			Data: map[string]any{
				"points": s.Points,
				"wins":   s.Wins,
				"losses": s.Losses,
			},
		})
	}
	return entries
}

func ratingScope(c data.RatingChange) string {
	if c.SeasonID == "" {
		return "global"
	}
	return "season"
}

func changedPlayers(changes []data.RatingChange) []string {
	ids := make([]string, 0, len(changes))
	for _, c := range changes {
		ids = append(ids, c.PlayerID)
	}
	return ids
}

func appliedIDs(results []stats.MatchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.MatchID)
	}
	return ids
}

// nonNil keeps empty lists as [] in the payload
func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// append chains and writes entries under the ledger lock
func (l *Ledger) append(entries []Entry) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file == nil {
		return ErrLedgerClosed
	}

	var buf []byte
	lastHash, sequence := l.lastHash, l.sequence
	for i := range entries {
		entry := &entries[i]
		entry.ID = uuid.NewString()
		entry.Timestamp = l.now()
		entry.PreviousHash = lastHash
		entry.Sequence = sequence
		entry.EntryHash = calculateEntryHash(entry)

		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal ledger entry: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')

		lastHash = entry.EntryHash
		sequence++
	}

	if _, err := l.file.Write(buf); err != nil {
		return fmt.Errorf("failed to write ledger entries: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}

	l.lastHash, l.sequence = lastHash, sequence
	return nil
}

// calculateEntryHash computes the SHA-256 hash of an entry, excluding EntryHash itself
func calculateEntryHash(entry *Entry) string {
	content := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%d|%s",
		entry.ID,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.EventType,
		entry.MatchID,
		entry.SeasonID,
		entry.PlayerID,
		entry.PreviousHash,
		entry.Sequence,
		hashData(entry.Data))

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// hashData hashes the payload. encoding/json sorts map keys, so the result is stable.
func hashData(payload map[string]any) string {
	encoded, _ := json.Marshal(payload)
	hash := sha256.Sum256(encoded)
	return hex.EncodeToString(hash[:])
}

// scan reads the whole ledger, verifying the chain, and hands every entry to visit.
// A missing file is an empty ledger.
func (l *Ledger) scan(visit func(Entry)) (string, uint64, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("failed to open ledger for reading: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var previousHash string
	sequence := uint64(0)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return "", 0, fmt.Errorf("%w: invalid JSON at sequence %d: %v", ErrLedgerCorrupted, sequence, err)
		}
		if entry.Sequence != sequence {
			return "", 0, fmt.Errorf("%w: sequence mismatch: expected %d, got %d", ErrLedgerCorrupted, sequence, entry.Sequence)
		}
		if entry.PreviousHash != previousHash {
			return "", 0, fmt.Errorf("%w: hash chain broken at sequence %d", ErrLedgerCorrupted, sequence)
		}
		if entry.EntryHash != calculateEntryHash(&entry) {
			return "", 0, fmt.Errorf("%w: entry hash mismatch at sequence %d", ErrLedgerCorrupted, sequence)
		}

		if visit != nil {
			visit(entry)
		}
		previousHash = entry.EntryHash
		sequence++
	}

	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("error reading ledger: %w", err)
	}
	return previousHash, sequence, nil
}

// Close closes the ledger file. Further records fail with ErrLedgerClosed.
func (l *Ledger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the ledger file path
func (l *Ledger) Path() string {
	return l.path
}

// Sequence returns the number of entries written so far
func (l *Ledger) Sequence() uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.sequence
}

// QueryOptions defines filtering criteria for ledger queries
type QueryOptions struct {
	EventTypes []EventType `json:"event_types,omitempty"`
	StartTime  *time.Time  `json:"start_time,omitempty"`
	EndTime    *time.Time  `json:"end_time,omitempty"`
	MatchID    string      `json:"match_id,omitempty"`
	SeasonID   string      `json:"season_id,omitempty"`
	PlayerID   string      `json:"player_id,omitempty"` // Matches rating entries and player lists
	Limit      int         `json:"limit,omitempty"`
	Offset     int         `json:"offset,omitempty"`
}

// QueryResult contains the results of a ledger query
type QueryResult struct {
	Entries      []Entry      `json:"entries"`
	TotalCount   int          `json:"total_count"`
	HasMore      bool         `json:"has_more"`
	QueryOptions QueryOptions `json:"query_options"`
}

// Query returns the entries matching options in ledger order
func (l *Ledger) Query(options QueryOptions) (*QueryResult, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var matches []Entry
	if _, _, err := l.scan(func(entry Entry) {
		if matchesQuery(&entry, options) {
			matches = append(matches, entry)
		}
	}); err != nil {
		return nil, err
	}

	totalCount := len(matches)
	start := options.Offset
	if start > totalCount {
		start = totalCount
	}
	end := start + options.Limit
	if options.Limit <= 0 || end > totalCount {
		end = totalCount
	}

	entries := matches[start:end]
	if entries == nil {
		entries = []Entry{}
	}
	return &QueryResult{
		Entries:      entries,
		TotalCount:   totalCount,
		HasMore:      end < totalCount,
		QueryOptions: options,
	}, nil
}

func matchesQuery(entry *Entry, options QueryOptions) bool {
	if len(options.EventTypes) > 0 {
		found := false
		for _, eventType := range options.EventTypes {
			if entry.EventType == eventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if options.StartTime != nil && entry.Timestamp.Before(*options.StartTime) {
		return false
	}
	if options.EndTime != nil && entry.Timestamp.After(*options.EndTime) {
		return false
	}

	if options.MatchID != "" && entry.MatchID != options.MatchID {
		return false
	}
	if options.SeasonID != "" && entry.SeasonID != options.SeasonID {
		return false
	}

	if options.PlayerID != "" && entry.PlayerID != options.PlayerID {
		players, ok := entry.Data["players"].([]any)
		if !ok {
			return false
		}
		found := false
		for _, id := range players {
			if s, ok := id.(string); ok && s == options.PlayerID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// MatchHistory returns every entry about a match, including replays and claims that
// applied it
func (l *Ledger) MatchHistory(matchID string) ([]Entry, error) {
	result, err := l.Query(QueryOptions{MatchID: matchID})
	if err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// PlayerHistory returns the rating entries and match entries involving a player
func (l *Ledger) PlayerHistory(playerID string) ([]Entry, error) {
	result, err := l.Query(QueryOptions{PlayerID: playerID})
	if err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// VerifyIntegrity re-reads the ledger and checks sequence numbers and the hash chain
func (l *Ledger) VerifyIntegrity() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	lastHash, sequence, err := l.scan(nil)
	if err != nil {
		return err
	}
	if l.file != nil && (sequence != l.sequence || lastHash != l.lastHash) {
		return fmt.Errorf("%w: file ends at sequence %d, ledger wrote %d", ErrLedgerCorrupted, sequence, l.sequence)
	}
	return nil
}

// Statistics summarizes the ledger
type Statistics struct {
	TotalEntries int               `json:"total_entries"`
	EventCounts  map[EventType]int `json:"event_counts"`
	Matches      int               `json:"matches"`
	Players      int               `json:"players"`
	FirstEntry   *time.Time        `json:"first_entry,omitempty"`
	LastEntry    *time.Time        `json:"last_entry,omitempty"`
}

// Statistics counts entries per event type and the distinct matches and players rated
func (l *Ledger) Statistics() (*Statistics, error) {
	result, err := l.Query(QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate statistics: %w", err)
	}

	summary := &Statistics{
		TotalEntries: result.TotalCount,
		EventCounts:  make(map[EventType]int),
	}
	if len(result.Entries) > 0 {
		summary.FirstEntry = &result.Entries[0].Timestamp
		summary.LastEntry = &result.Entries[len(result.Entries)-1].Timestamp
	}

	matches := make(map[string]struct{})
	players := make(map[string]struct{})
	for _, entry := range result.Entries {
		summary.EventCounts[entry.EventType]++
		if entry.EventType == EventMatchApplied {
			matches[entry.MatchID] = struct{}{}
		}
		if entry.EventType == EventRatingUpdated || entry.EventType == EventPointsUpdated {
			players[entry.PlayerID] = struct{}{}
		}
	}
	summary.Matches = len(matches)
	summary.Players = len(players)

	return summary, nil
}
