// Package data provides the persisted domain model of the rating engine: players, seasons,
// matches with their roster slots, the per-player statistics the engine maintains, and the
// configuration that drives it.
package data

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error types for match validation
var (
	ErrMissingScore  = errors.New("match is missing score data")
	ErrTiedScore     = errors.New("match scores are tied")
	ErrInvalidRoster = errors.New("match does not have two distinct rosters")
	ErrInvalidMatch  = errors.New("invalid match")
)

// Team identifies one side of a doubles match
type Team int

const (
	TeamA Team = iota
	TeamB
)

// String returns the string representation of Team
func (t Team) String() string {
	switch t {
	case TeamA:
		return "team_a"
	case TeamB:
		return "team_b"
	default:
		return "unknown"
	}
}

// RosterSlot is one of the four player positions of a match. A slot without a player is a
// placeholder waiting for an invited player to claim it. Placeholder slot IDs may be shared by
// several matches that reference the same invite.
type RosterSlot struct {
	SlotID   string `json:"slot_id" yaml:"slot_id"`
	PlayerID string `json:"player_id,omitempty" yaml:"player_id,omitempty"`
}

// Bound reports whether the slot is resolved to a real player
func (s RosterSlot) Bound() bool {
	return strings.TrimSpace(s.PlayerID) != ""
}

// MatchKey orders matches chronologically, tie-broken by match ID
type MatchKey struct {
	OccurredAt time.Time
	ID         string
}

// Before reports whether k sorts strictly before other
func (k MatchKey) Before(other MatchKey) bool {
	if !k.OccurredAt.Equal(other.OccurredAt) {
		return k.OccurredAt.Before(other.OccurredAt)
	}
	return k.ID < other.ID
}

// String returns a readable form of the key for logs and errors
func (k MatchKey) String() string {
	return fmt.Sprintf("%s@%s", k.ID, k.OccurredAt.UTC().Format(time.RFC3339Nano))
}

// Match is a recorded doubles match between two teams of two roster slots.
// RankedIntent is the organizer's original choice and is never rewritten by the engine.
// StatsApplied marks that the match's rating and score effects have been committed.
type Match struct {
	ID           string        `json:"id"`
	SeasonID     string        `json:"season_id"`
	OccurredAt   time.Time     `json:"occurred_at"`
	TeamA        [2]RosterSlot `json:"team_a"`
	TeamB        [2]RosterSlot `json:"team_b"`
	TeamAScore   *int          `json:"team_a_score,omitempty"`
	TeamBScore   *int          `json:"team_b_score,omitempty"`
	RankedIntent bool          `json:"ranked_intent"`
	StatsApplied bool          `json:"stats_applied"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Key returns the chronological ordering key of the match
func (m Match) Key() MatchKey {
	return MatchKey{OccurredAt: m.OccurredAt, ID: m.ID}
}

// Slots returns the four roster slots, team A first
func (m Match) Slots() [4]RosterSlot {
	return [4]RosterSlot{m.TeamA[0], m.TeamA[1], m.TeamB[0], m.TeamB[1]}
}

// Team returns the two slots of the given side
func (m Match) Team(t Team) [2]RosterSlot {
	if t == TeamA {
		return m.TeamA
	}
	return m.TeamB
}

// PlayerIDs returns the IDs of all bound players in slot order
func (m Match) PlayerIDs() []string {
	ids := make([]string, 0, 4)
	for _, slot := range m.Slots() {
		if slot.Bound() {
			ids = append(ids, slot.PlayerID)
		}
	}
	return ids
}

// ReferencesSlot reports whether any roster position of the match uses slotID
func (m Match) ReferencesSlot(slotID string) bool {
	for _, slot := range m.Slots() {
		if slot.SlotID == slotID {
			return true
		}
	}
	return false
}

// Winner returns the winning side. The match must have passed Validate.
func (m Match) Winner() Team {
	if *m.TeamAScore > *m.TeamBScore {
		return TeamA
	}
	return TeamB
}

// PointDifferential returns the absolute score difference of a validated match
func (m Match) PointDifferential() int {
	diff := *m.TeamAScore - *m.TeamBScore
	if diff < 0 {
		return -diff
	}
	return diff
}

// Validate checks the preconditions every match must satisfy before it reaches the engine
func (m Match) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: ID is required", ErrInvalidMatch)
	}
	if strings.TrimSpace(m.SeasonID) == "" {
		return fmt.Errorf("%w: match %s has no season", ErrInvalidMatch, m.ID)
	}
	if m.OccurredAt.IsZero() {
		return fmt.Errorf("%w: match %s has no occurrence time", ErrInvalidMatch, m.ID)
	}

	if m.TeamAScore == nil || m.TeamBScore == nil {
		return fmt.Errorf("%w: match %s", ErrMissingScore, m.ID)
	}
	if *m.TeamAScore < 0 || *m.TeamBScore < 0 {
		return fmt.Errorf("%w: match %s has a negative score", ErrInvalidMatch, m.ID)
	}
	if *m.TeamAScore == *m.TeamBScore {
		return fmt.Errorf("%w: match %s (%d-%d)", ErrTiedScore, m.ID, *m.TeamAScore, *m.TeamBScore)
	}

	slotIDs := make(map[string]bool, 4)
	players := make(map[string]bool, 4)
	for _, slot := range m.Slots() {
		if strings.TrimSpace(slot.SlotID) == "" {
			return fmt.Errorf("%w: match %s has a slot without ID", ErrInvalidRoster, m.ID)
		}
		if slotIDs[slot.SlotID] {
			return fmt.Errorf("%w: match %s uses slot %s twice", ErrInvalidRoster, m.ID, slot.SlotID)
		}
		slotIDs[slot.SlotID] = true

		if slot.Bound() {
			if players[slot.PlayerID] {
				return fmt.Errorf("%w: player %s appears twice in match %s", ErrInvalidRoster, slot.PlayerID, m.ID)
			}
			players[slot.PlayerID] = true
		}
	}

	return nil
}

// IntPtr returns a pointer to v, convenient for building scores
func IntPtr(v int) *int {
	return &v
}
