package stats

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
)

// BatchResult collects the per-match results of ApplyMatches in input order
type BatchResult struct {
	Results    []MatchResult
	Components int
}

// Applied counts the matches whose stats were applied
func (b BatchResult) Applied() int {
	n := 0
	for _, r := range b.Results {
		if r.Applied {
			n++
		}
	}
	return n
}

// ApplyMatches ingests a batch of matches. Matches sharing a player, directly or through
// other matches of the batch, form a component that is applied sequentially in chronological
// order. Independent components run in parallel. The first failure cancels the remaining
// work; matches applied before it stay applied.
func (a *Aggregator) ApplyMatches(ctx context.Context, matches []data.Match) (BatchResult, error) {
	for _, m := range matches {
		if err := m.Validate(); err != nil {
			return BatchResult{}, err
		}
	}

	components := partition(matches)
	result := BatchResult{
		Results:    make([]MatchResult, len(matches)),
		Components: len(components),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, component := range components {
		g.Go(func() error {
			for _, idx := range component {
				if err := gctx.Err(); err != nil {
					return err
				}
				r, err := a.ApplyMatch(gctx, matches[idx])
				if err != nil {
					return err
				}
				mu.Lock()
				result.Results[idx] = r
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	a.logger.Info().
		Int("matches", len(matches)).
		Int("components", len(components)).
		Int("applied", result.Applied()).
		Msg("batch applied")
	return result, nil
}

// partition groups match indexes into connected components by shared bound players. Each
// component is sorted by MatchKey.
func partition(matches []data.Match) [][]int {
	parent := make([]int, len(matches))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	owner := make(map[string]int)
	for i, m := range matches {
		for _, id := range m.PlayerIDs() {
			if j, ok := owner[id]; ok {
				union(j, i)
			} else {
				owner[id] = i
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := range matches {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	components := make([][]int, 0, len(roots))
	for _, r := range roots {
		idx := groups[r]
		sort.SliceStable(idx, func(x, y int) bool {
			return matches[idx[x]].Key().Before(matches[idx[y]].Key())
		})
		components = append(components, idx)
	}
	return components
}
