package stats

import (
	"sort"
	"sync"
)

// keyedLocks hands out one mutex per key. Entries are dropped when no goroutine holds or
// waits for them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedEntry)}
}

// lock acquires the locks of all keys in sorted order and returns the release function.
// Sorting keeps two callers with overlapping key sets from deadlocking.
func (k *keyedLocks) lock(keys []string) func() {
	keys = uniqueSorted(keys)

	entries := make([]*keyedEntry, len(keys))
	k.mu.Lock()
	for i, key := range keys {
		e, ok := k.locks[key]
		if !ok {
			e = &keyedEntry{}
			k.locks[key] = e
		}
		e.refs++
		entries[i] = e
	}
	k.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		k.mu.Lock()
		for i, key := range keys {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(k.locks, key)
			}
		}
		k.mu.Unlock()
	}
}

// size returns the number of live entries
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// seasonLocks holds one RWMutex per season. Ingestion shares it, recomputation holds it
// exclusively.
type seasonLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newSeasonLocks() *seasonLocks {
	return &seasonLocks{locks: make(map[string]*sync.RWMutex)}
}

func (s *seasonLocks) get(seasonID string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[seasonID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[seasonID] = l
	}
	return l
}

// share read-locks the given seasons in sorted order
func (s *seasonLocks) share(seasonIDs ...string) func() {
	ids := uniqueSorted(seasonIDs)
	held := make([]*sync.RWMutex, len(ids))
	for i, id := range ids {
		held[i] = s.get(id)
		held[i].RLock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].RUnlock()
		}
	}
}

// exclusive write-locks one season
func (s *seasonLocks) exclusive(seasonID string) func() {
	l := s.get(seasonID)
	l.Lock()
	return l.Unlock
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
