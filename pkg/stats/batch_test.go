package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
)

func TestPartition(t *testing.T) {
	matches := []data.Match{
		match("m3", 30, "alice", "bob", "carol", "dave"),
		match("m1", 10, "erin", "frank", "gina", "hank"),
		match("m2", 20, "dave", "zoe", "yuri", "xena"),
		match("m0", 0, "ivan", "", "", ""),
	}

	components := partition(matches)
	require.Len(t, components, 3)

	assert.Equal(t, []int{2, 0}, components[0], "m2 before m3, linked through dave")
	assert.Equal(t, []int{1}, components[1])
	assert.Equal(t, []int{3}, components[2])
}

func TestPartition_Transitive(t *testing.T) {
	matches := []data.Match{
		match("m1", 0, "a", "b", "c", "d"),
		match("m2", 1, "e", "f", "g", "h"),
		match("m3", 2, "d", "x", "e", "y"),
	}
	components := partition(matches)
	require.Len(t, components, 1)
	assert.Equal(t, []int{0, 1, 2}, components[0])
}

func TestApplyMatches(t *testing.T) {
	a, s := newTestAggregator(t, data.ModePointsSystem)

	matches := []data.Match{
		match("m2", 20, "alice", "bob", "carol", "dave"),
		match("m1", 10, "alice", "carol", "bob", "dave"),
		match("m3", 5, "erin", "frank", "gina", "hank"),
	}
	unranked := match("m4", 40, "erin", "gina", "frank", "hank")
	unranked.RankedIntent = false
	matches = append(matches, unranked)

	result, err := a.ApplyMatches(context.Background(), matches)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Components)
	assert.Equal(t, 3, result.Applied())
	require.Len(t, result.Results, 4)
	assert.Equal(t, "m2", result.Results[0].MatchID)
	assert.Empty(t, result.Results[0].Replayed, "components are applied chronologically")
	assert.Equal(t, SkipUnranked, result.Results[3].SkipReason)

	points := seasonStats(t, s)
	assert.Equal(t, 6, points["alice"].Points)
	assert.Equal(t, 3, points["erin"].Points)
}

func TestApplyMatches_ValidatesFirst(t *testing.T) {
	a, s := newTestAggregator(t, data.ModePointsSystem)

	bad := match("m2", 20, "alice", "bob", "carol", "dave")
	bad.TeamAScore = bad.TeamBScore
	_, err := a.ApplyMatches(context.Background(), []data.Match{
		match("m1", 10, "erin", "frank", "gina", "hank"),
		bad,
	})
	assert.ErrorIs(t, err, data.ErrTiedScore)
	assert.Empty(t, globalStats(t, s))
}

func TestKeyedLocks(t *testing.T) {
	locks := newKeyedLocks()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := []string{"bob", "alice"}
			if i%2 == 0 {
				keys = []string{"alice", "bob", "alice"}
			}
			release := locks.lock(keys)
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Zero(t, locks.size(), "entries are dropped once released")
}

func TestSeasonLocks_ExclusiveWaitsForReaders(t *testing.T) {
	locks := newSeasonLocks()
	releaseShared := locks.share("s1", "s2", "s1")

	acquired := make(chan struct{})
	go func() {
		release := locks.exclusive("s1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("exclusive lock acquired while shared lock held")
	case <-time.After(20 * time.Millisecond):
	}

	releaseShared()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("exclusive lock not acquired after release")
	}
}
