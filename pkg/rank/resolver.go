// Package rank decides whether a match counts toward ranked computations. The effective
// status is derived on demand from the organizer's ranked intent and the binding state of the
// roster; it is never stored.
package rank

import (
	"errors"
	"fmt"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
)

// Error types for status transitions
var (
	ErrIllegalTransition = errors.New("ranked match cannot become unranked")
	ErrSlotNotInMatch    = errors.New("slot is not part of the match")
)

// Status is the effective ranked status of a match
type Status int

const (
	Unranked Status = iota
	Ranked
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case Ranked:
		return "ranked"
	case Unranked:
		return "unranked"
	default:
		return "unknown"
	}
}

// Snapshot records which of the four roster slots are bound, in slot order a1, a2, b1, b2
type Snapshot [4]bool

// SnapshotOf captures the binding state of a match's roster
func SnapshotOf(match data.Match) Snapshot {
	var snap Snapshot
	for i, slot := range match.Slots() {
		snap[i] = slot.Bound()
	}
	return snap
}

// Complete reports whether every slot is bound
func (s Snapshot) Complete() bool {
	for _, bound := range s {
		if !bound {
			return false
		}
	}
	return true
}

// Unbound returns the number of placeholder slots
func (s Snapshot) Unbound() int {
	n := 0
	for _, bound := range s {
		if !bound {
			n++
		}
	}
	return n
}

// Resolve returns Ranked iff the organizer intended a ranked match and all four slots are bound
func Resolve(intent bool, snap Snapshot) Status {
	if intent && snap.Complete() {
		return Ranked
	}
	return Unranked
}

// ResolveMatch resolves the effective status of a match from its current roster
func ResolveMatch(match data.Match) Status {
	return Resolve(match.RankedIntent, SnapshotOf(match))
}

// Transition reports whether moving from before to after flips a match to ranked.
// Bindings are never undone, so a ranked match becoming unranked is an error.
func Transition(before, after Status) (bool, error) {
	if before == Ranked && after == Unranked {
		return false, ErrIllegalTransition
	}
	return before == Unranked && after == Ranked, nil
}

// Claim describes a placeholder slot being bound to a registered player
type Claim struct {
	SlotID   string
	PlayerID string
}

// ClaimSnapshot returns the roster snapshots of match before and after binding the claimed
// slot, along with the match as it looks after the claim.
func ClaimSnapshot(match data.Match, claim Claim) (Snapshot, Snapshot, data.Match, error) {
	before := SnapshotOf(match)

	claimed := match
	found := false
	for i := range claimed.TeamA {
		if claimed.TeamA[i].SlotID == claim.SlotID {
			claimed.TeamA[i].PlayerID = claim.PlayerID
			found = true
		}
		if claimed.TeamB[i].SlotID == claim.SlotID {
			claimed.TeamB[i].PlayerID = claim.PlayerID
			found = true
		}
	}
	if !found {
		return before, before, match, fmt.Errorf("%w: slot %s, match %s", ErrSlotNotInMatch, claim.SlotID, match.ID)
	}

	return before, SnapshotOf(claimed), claimed, nil
}

// Flip evaluates a claim against a match and reports whether the claim turns it ranked
func Flip(match data.Match, claim Claim) (bool, data.Match, error) {
	before, after, claimed, err := ClaimSnapshot(match, claim)
	if err != nil {
		return false, match, err
	}
	flipped, err := Transition(Resolve(match.RankedIntent, before), Resolve(match.RankedIntent, after))
	if err != nil {
		return false, match, fmt.Errorf("match %s: %w", match.ID, err)
	}
	return flipped, claimed, nil
}
