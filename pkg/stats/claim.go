package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/rank"
	"github.com/pschwagler/beach-kings-sub002/pkg/store"
)

// ClaimResult describes the effect of a placeholder claim
type ClaimResult struct {
	SlotID   string
	PlayerID string
	Bound    int           // Roster positions bound by this claim, 0 for a repeated claim
	Applied  []MatchResult // Matches that flipped to ranked, in chronological order
	Pending  []string      // Unapplied matches referencing the slot that this claim did not apply
}

// OnPlaceholderClaimed binds the claimed slot in every match that references it and applies
// the matches that become effectively ranked, oldest first, in one transaction. A repeated
// claim binds nothing and applies nothing.
func (a *Aggregator) OnPlaceholderClaimed(ctx context.Context, claim rank.Claim) (ClaimResult, error) {
	if strings.TrimSpace(claim.SlotID) == "" || strings.TrimSpace(claim.PlayerID) == "" {
		return ClaimResult{}, ErrInvalidClaim
	}

	logger := a.logger.With().Str("slot_id", claim.SlotID).Str("player_id", claim.PlayerID).Logger()

	var result ClaimResult
	for {
		seasonIDs, err := a.claimSeasons(ctx, claim.SlotID)
		if err != nil {
			return ClaimResult{}, err
		}

		release := a.seasons.share(seasonIDs...)
		a.timeline.Lock()
		err = a.withRetry(ctx, logger, func() error {
			return a.store.RunInTx(ctx, func(repo store.Repository) error {
				var err error
				result, err = a.claimInTx(ctx, repo, claim, seasonIDs)
				return err
			})
		})
		a.timeline.Unlock()
		release()

		if errors.Is(err, errSeasonsChanged) {
			continue
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to process claim")
			return ClaimResult{}, err
		}
		break
	}

	applied := make([]string, len(result.Applied))
	for i, m := range result.Applied {
		applied[i] = m.MatchID
	}
	logger.Info().
		Int("bound", result.Bound).
		Str("applied", joinIDs(applied)).
		Msg("placeholder claimed")
	a.record(ctx, Event{Type: EventPlaceholderClaimed, Claim: &result})
	return result, nil
}

// claimSeasons returns the seasons of the matches referencing slotID
func (a *Aggregator) claimSeasons(ctx context.Context, slotID string) ([]string, error) {
	var seasonIDs []string
	err := a.store.View(ctx, func(repo store.Repository) error {
		matches, err := repo.ListMatchesReferencingSlot(ctx, slotID)
		if err != nil {
			return err
		}
		seasonIDs = matchSeasons(matches)
		return nil
	})
	return seasonIDs, err
}

func (a *Aggregator) claimInTx(ctx context.Context, repo store.Repository, claim rank.Claim, locked []string) (ClaimResult, error) {
	if _, err := repo.GetPlayer(ctx, claim.PlayerID); err != nil {
		return ClaimResult{}, fmt.Errorf("claiming player: %w", err)
	}

	matches, err := repo.ListMatchesReferencingSlot(ctx, claim.SlotID)
	if err != nil {
		return ClaimResult{}, err
	}
	if !sameIDs(matchSeasons(matches), locked) {
		return ClaimResult{}, errSeasonsChanged
	}

	var flipped []string
	result := ClaimResult{SlotID: claim.SlotID, PlayerID: claim.PlayerID}
	// Every referencing match must stay valid once bound
	for _, m := range matches {
		for _, slot := range m.Slots() {
			if slot.SlotID == claim.SlotID && slot.Bound() && slot.PlayerID != claim.PlayerID {
				return ClaimResult{}, fmt.Errorf("%w: slot %s in match %s", store.ErrSlotAlreadyBound, claim.SlotID, m.ID)
			}
		}
		flips, claimed, err := rank.Flip(m, claim)
		if err != nil {
			return ClaimResult{}, err
		}
		if err := claimed.Validate(); err != nil {
			return ClaimResult{}, fmt.Errorf("claimed match %s: %w", m.ID, err)
		}
		if flips && !m.StatsApplied {
			flipped = append(flipped, m.ID)
		} else if !m.StatsApplied {
			result.Pending = append(result.Pending, m.ID)
		}
	}

	result.Bound, err = repo.BindSlot(ctx, claim.SlotID, claim.PlayerID)
	if err != nil {
		return ClaimResult{}, err
	}

	for _, id := range flipped {
		m, err := repo.GetMatch(ctx, id)
		if err != nil {
			return ClaimResult{}, err
		}
		applied, err := a.applyRanked(ctx, repo, m, true)
		if err != nil {
			return ClaimResult{}, fmt.Errorf("claimed match %s: %w", id, err)
		}
		result.Applied = append(result.Applied, applied)
	}
	return result, nil
}

func matchSeasons(matches []data.Match) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.SeasonID)
	}
	return uniqueSorted(ids)
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
