package stats

import "context"

// EventType names a committed aggregator outcome
type EventType string

const (
	EventMatchApplied       EventType = "match_applied"
	EventMatchSkipped       EventType = "match_skipped"
	EventPlaceholderClaimed EventType = "placeholder_claimed"
	EventSeasonRecomputed   EventType = "season_recomputed"
	EventScoringChanged     EventType = "scoring_changed"
)

// Event is handed to the Recorder after the transaction that produced it committed.
// Exactly one of the payload pointers is set.
type Event struct {
	Type      EventType
	Match     *MatchResult
	Claim     *ClaimResult
	Recompute *RecomputeResult
}

// Recorder receives committed outcomes, typically to append them to a ledger. A failing
// recorder is logged and never undoes the committed change.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) error { return nil }
