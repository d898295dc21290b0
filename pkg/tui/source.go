package tui

import (
	"context"
	"fmt"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/journal"
	"github.com/pschwagler/beach-kings-sub002/pkg/store"
	"github.com/pschwagler/beach-kings-sub002/pkg/tui/components"
)

// Source supplies the viewer with tables and histories
type Source interface {
	// Scopes lists the global table followed by each season
	Scopes(ctx context.Context) ([]components.Scope, error)
	Report(ctx context.Context, scopeID string) (*journal.StandingsReport, error)
	// History returns a player's rating changes in a scope, oldest first
	History(ctx context.Context, playerID, scopeID string) ([]data.RatingChange, error)
}

// StoreSource reads everything through read-only views of a store
type StoreSource struct {
	Store store.Store
}

var _ Source = StoreSource{}

// Scopes implements Source
func (s StoreSource) Scopes(ctx context.Context) ([]components.Scope, error) {
	scopes := []components.Scope{{ID: journal.GlobalScope, Label: "Global"}}
	err := s.Store.View(ctx, func(repo store.Repository) error {
		seasons, err := repo.ListSeasons(ctx)
		if err != nil {
			return err
		}
		for _, season := range seasons {
			label := season.Name
			if label == "" {
				label = season.ID
			}
			scopes = append(scopes, components.Scope{ID: season.ID, Label: label})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	return scopes, nil
}

// Report implements Source
func (s StoreSource) Report(ctx context.Context, scopeID string) (*journal.StandingsReport, error) {
	var report *journal.StandingsReport
	err := s.Store.View(ctx, func(repo store.Repository) error {
		var err error
		if scopeID == journal.GlobalScope {
			report, err = journal.BuildGlobalReport(ctx, repo)
		} else {
			report, err = journal.BuildSeasonReport(ctx, repo, scopeID)
		}
		return err
	})
	return report, err
}

// History implements Source. The global scope maps to the store's empty season ID.
func (s StoreSource) History(ctx context.Context, playerID, scopeID string) ([]data.RatingChange, error) {
	seasonID := scopeID
	if scopeID == journal.GlobalScope {
		seasonID = ""
	}
	var changes []data.RatingChange
	err := s.Store.View(ctx, func(repo store.Repository) error {
		var err error
		changes, err = repo.ListRatingChanges(ctx, playerID, seasonID)
		return err
	})
	return changes, err
}
