package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/season"
)

var base = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := Open(context.Background(), data.DatabaseConfig{
				Driver: data.DriverSQLite,
				Path:   filepath.Join(t.TempDir(), "db", "ratings.db"),
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func testSeason(id string, mode data.ScoringMode) data.Season {
	return data.Season{
		ID:            id,
		LeagueID:      "league-1",
		Name:          "Summer " + id,
		StartDate:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC),
		ScoringSystem: mode,
	}
}

func testMatch(id string, offset time.Duration, a1, a2, b1, b2 string) data.Match {
	slot := func(pos, player string) data.RosterSlot {
		return data.RosterSlot{SlotID: id + "/" + pos, PlayerID: player}
	}
	return data.Match{
		ID:           id,
		SeasonID:     "s1",
		OccurredAt:   base.Add(offset),
		TeamA:        [2]data.RosterSlot{slot("a1", a1), slot("a2", a2)},
		TeamB:        [2]data.RosterSlot{slot("b1", b1), slot("b2", b2)},
		TeamAScore:   data.IntPtr(21),
		TeamBScore:   data.IntPtr(17),
		RankedIntent: true,
		CreatedAt:    base,
	}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	err := s.RunInTx(context.Background(), func(repo Repository) error {
		for _, id := range []string{"alice", "bob", "carol", "dave"} {
			if err := repo.CreatePlayer(context.Background(), data.Player{ID: id, Name: id}); err != nil {
				return err
			}
		}
		return repo.CreateSeason(context.Background(), testSeason("s1", data.ModePointsSystem))
	})
	require.NoError(t, err)
}

func TestRepositoryContract(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("players and seasons", func(t *testing.T) { testPlayersAndSeasons(t, open(t)) })
			t.Run("global stats versioning", func(t *testing.T) { testGlobalStatsVersioning(t, open(t)) })
			t.Run("season stats", func(t *testing.T) { testSeasonStats(t, open(t)) })
			t.Run("matches", func(t *testing.T) { testMatches(t, open(t)) })
			t.Run("bind slot", func(t *testing.T) { testBindSlot(t, open(t)) })
			t.Run("rating history", func(t *testing.T) { testRatingHistory(t, open(t)) })
			t.Run("rollback", func(t *testing.T) { testRollback(t, open(t)) })
			t.Run("read only view", func(t *testing.T) { testReadOnlyView(t, open(t)) })
		})
	}
}

func testPlayersAndSeasons(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	err := s.RunInTx(ctx, func(repo Repository) error {
		return repo.CreatePlayer(ctx, data.Player{ID: "alice"})
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = s.RunInTx(ctx, func(repo Repository) error {
		bad := testSeason("s2", "ladder")
		return repo.CreateSeason(ctx, bad)
	})
	assert.ErrorIs(t, err, season.ErrUnknownScoringSystem)

	require.NoError(t, s.View(ctx, func(repo Repository) error {
		players, err := repo.ListPlayers(ctx)
		require.NoError(t, err)
		require.Len(t, players, 4)
		assert.Equal(t, "alice", players[0].ID)

		got, err := repo.GetSeason(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, data.ModePointsSystem, got.ScoringSystem)
		assert.Equal(t, "2025-05-01", data.FormatDate(got.StartDate))

		_, err = repo.GetPlayer(ctx, "zed")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetSeason(ctx, "s9")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))

	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		return repo.UpdateSeasonScoring(ctx, "s1", data.ModePointsSystem, `{"win":2,"loss":0}`)
	}))
	require.NoError(t, s.View(ctx, func(repo Repository) error {
		got, err := repo.GetSeason(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, `{"win":2,"loss":0}`, got.PointSystem)
		return nil
	}))

	err = s.RunInTx(ctx, func(repo Repository) error {
		return repo.UpdateSeasonScoring(ctx, "s9", data.ModeSeasonRating, "")
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func testGlobalStatsVersioning(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	var stored data.GlobalStats
	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		_, err := repo.GetGlobalStats(ctx, "alice")
		assert.ErrorIs(t, err, ErrNotFound)

		stored, err = repo.SetGlobalStats(ctx, data.NewGlobalStats("alice", 1200))
		return err
	}))
	assert.Equal(t, int64(1), stored.Version)

	err := s.RunInTx(ctx, func(repo Repository) error {
		_, err := repo.SetGlobalStats(ctx, data.NewGlobalStats("alice", 1200))
		return err
	})
	assert.ErrorIs(t, err, ErrVersionConflict, "second create must conflict")

	stale := stored
	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		stored.CurrentRating = 1220
		stored.Wins = 1
		var err error
		stored, err = repo.SetGlobalStats(ctx, stored)
		return err
	}))
	assert.Equal(t, int64(2), stored.Version)

	err = s.RunInTx(ctx, func(repo Repository) error {
		stale.CurrentRating = 1180
		_, err := repo.SetGlobalStats(ctx, stale)
		return err
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	require.NoError(t, s.View(ctx, func(repo Repository) error {
		got, err := repo.GetGlobalStats(ctx, "alice")
		require.NoError(t, err)
		assert.InDelta(t, 1220, got.CurrentRating, 0.0001)
		assert.Equal(t, 1, got.Wins)
		assert.Equal(t, int64(2), got.Version)

		all, err := repo.ListGlobalStats(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
		return nil
	}))
}

func testSeasonStats(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		stats := data.NewSeasonStats("bob", "s1", data.ModePointsSystem, 1200)
		stats.Points = 3
		stats.Wins = 1
		stats.MatchesPlayed = 1
		if err := repo.UpsertSeasonStats(ctx, stats); err != nil {
			return err
		}
		stats.Points = 4
		stats.Losses = 1
		stats.MatchesPlayed = 2
		if err := repo.UpsertSeasonStats(ctx, stats); err != nil {
			return err
		}
		return repo.UpsertSeasonStats(ctx, data.NewSeasonStats("alice", "s1", data.ModePointsSystem, 1200))
	}))

	require.NoError(t, s.View(ctx, func(repo Repository) error {
		got, err := repo.GetSeasonStats(ctx, "bob", "s1")
		require.NoError(t, err)
		assert.Equal(t, 4, got.Points)
		assert.Equal(t, 2, got.MatchesPlayed)
		assert.Equal(t, data.ModePointsSystem, got.Mode)

		all, err := repo.ListSeasonStats(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "alice", all[0].PlayerID)
		return nil
	}))

	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		return repo.ResetSeasonStats(ctx, "s1")
	}))
	require.NoError(t, s.View(ctx, func(repo Repository) error {
		all, err := repo.ListSeasonStats(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, all)

		_, err = repo.GetSeasonStats(ctx, "bob", "s1")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func testMatches(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	late := testMatch("m-late", 2*time.Hour, "alice", "bob", "carol", "dave")
	early := testMatch("m-early", time.Hour, "alice", "carol", "bob", "dave")
	tieB := testMatch("m-b", 2*time.Hour, "alice", "dave", "bob", "carol")
	unscored := testMatch("m-open", 3*time.Hour, "alice", "bob", "carol", "dave")
	unscored.TeamAScore = nil
	unscored.TeamBScore = nil

	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		for _, m := range []data.Match{late, early, tieB, unscored} {
			if err := repo.CreateMatch(ctx, m); err != nil {
				return err
			}
		}
		return repo.SetStatsApplied(ctx, "m-early", true)
	}))

	err := s.RunInTx(ctx, func(repo Repository) error {
		orphan := testMatch("m-orphan", 0, "alice", "bob", "carol", "dave")
		orphan.SeasonID = "s9"
		return repo.CreateMatch(ctx, orphan)
	})
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.RunInTx(ctx, func(repo Repository) error {
		return repo.CreateMatch(ctx, early)
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, s.View(ctx, func(repo Repository) error {
		got, err := repo.GetMatch(ctx, "m-late")
		require.NoError(t, err)
		assert.True(t, got.OccurredAt.Equal(late.OccurredAt))
		assert.Equal(t, late.TeamA, got.TeamA)
		assert.Equal(t, late.TeamB, got.TeamB)
		require.NotNil(t, got.TeamAScore)
		assert.Equal(t, 21, *got.TeamAScore)
		assert.True(t, got.RankedIntent)
		assert.False(t, got.StatsApplied)

		open, err := repo.GetMatch(ctx, "m-open")
		require.NoError(t, err)
		assert.Nil(t, open.TeamAScore)
		assert.Nil(t, open.TeamBScore)

		_, err = repo.GetMatch(ctx, "m-none")
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := repo.ListMatchesForSeason(ctx, "s1")
		require.NoError(t, err)
		ids := make([]string, len(all))
		for i, m := range all {
			ids[i] = m.ID
		}
		assert.Equal(t, []string{"m-early", "m-b", "m-late", "m-open"}, ids)

		after, err := repo.ListAppliedMatchesAfter(ctx, "", data.MatchKey{OccurredAt: base})
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, "m-early", after[0].ID)

		after, err = repo.ListAppliedMatchesAfter(ctx, "s1", early.Key())
		require.NoError(t, err)
		assert.Empty(t, after, "the key itself is excluded")
		return nil
	}))
}

func testBindSlot(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	first := testMatch("m1", time.Hour, "alice", "bob", "carol", "")
	first.TeamB[1].SlotID = "invite-1"
	second := testMatch("m2", 2*time.Hour, "alice", "", "carol", "bob")
	second.TeamA[1].SlotID = "invite-1"

	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		if err := repo.CreateMatch(ctx, first); err != nil {
			return err
		}
		return repo.CreateMatch(ctx, second)
	}))

	var bound int
	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		referencing, err := repo.ListMatchesReferencingSlot(ctx, "invite-1")
		require.NoError(t, err)
		assert.Len(t, referencing, 2)

		bound, err = repo.BindSlot(ctx, "invite-1", "dave")
		return err
	}))
	assert.Equal(t, 2, bound)

	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		var err error
		bound, err = repo.BindSlot(ctx, "invite-1", "dave")
		return err
	}))
	assert.Zero(t, bound, "repeated claim binds nothing")

	err := s.RunInTx(ctx, func(repo Repository) error {
		_, err := repo.BindSlot(ctx, "invite-1", "erin")
		return err
	})
	assert.ErrorIs(t, err, ErrSlotAlreadyBound)

	err = s.RunInTx(ctx, func(repo Repository) error {
		_, err := repo.BindSlot(ctx, "invite-404", "erin")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.View(ctx, func(repo Repository) error {
		got, err := repo.GetMatch(ctx, "m2")
		require.NoError(t, err)
		assert.Equal(t, "dave", got.TeamA[1].PlayerID)
		return nil
	}))
}

func testRatingHistory(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	m1 := testMatch("m1", time.Hour, "alice", "bob", "carol", "dave")
	m2 := testMatch("m2", 2*time.Hour, "alice", "bob", "carol", "dave")

	change := func(m data.Match, seasonID string, before, after float64) data.RatingChange {
		return data.RatingChange{MatchID: m.ID, PlayerID: "alice", SeasonID: seasonID, OccurredAt: m.OccurredAt, Before: before, After: after}
	}

	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		for _, m := range []data.Match{m1, m2} {
			if err := repo.CreateMatch(ctx, m); err != nil {
				return err
			}
		}
		return repo.RecordRatingChanges(ctx, []data.RatingChange{
			change(m1, "", 1200, 1220),
			change(m2, "", 1220, 1238),
			change(m1, "s1", 1200, 1205),
		})
	}))

	err := s.RunInTx(ctx, func(repo Repository) error {
		return repo.RecordRatingChanges(ctx, []data.RatingChange{change(m1, "", 1200, 1220)})
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, s.View(ctx, func(repo Repository) error {
		_, ok, err := repo.RatingBefore(ctx, "alice", "", m1.Key())
		require.NoError(t, err)
		assert.False(t, ok)

		rating, ok, err := repo.RatingBefore(ctx, "alice", "", m2.Key())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, 1220, rating, 0.0001)

		rating, ok, err = repo.RatingBefore(ctx, "alice", "", data.MatchKey{OccurredAt: base.Add(24 * time.Hour)})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, 1238, rating, 0.0001)

		rating, ok, err = repo.RatingBefore(ctx, "alice", "s1", m2.Key())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, 1205, rating, 0.0001)

		history, err := repo.ListRatingChanges(ctx, "alice", "")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "m1", history[0].MatchID)
		assert.InDelta(t, 18, history[1].Delta(), 0.0001)
		return nil
	}))

	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		if err := repo.DeleteRatingChanges(ctx, "", []string{"m2"}); err != nil {
			return err
		}
		return repo.DeleteSeasonRatingChanges(ctx, "s1")
	}))
	require.NoError(t, s.View(ctx, func(repo Repository) error {
		global, err := repo.ListRatingChanges(ctx, "alice", "")
		require.NoError(t, err)
		assert.Len(t, global, 1)

		seasonal, err := repo.ListRatingChanges(ctx, "alice", "s1")
		require.NoError(t, err)
		assert.Empty(t, seasonal)
		return nil
	}))

	err = s.RunInTx(ctx, func(repo Repository) error {
		return repo.DeleteSeasonRatingChanges(ctx, "")
	})
	assert.Error(t, err)
}

func testRollback(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	failure := errors.New("boom")
	err := s.RunInTx(ctx, func(repo Repository) error {
		if _, err := repo.SetGlobalStats(ctx, data.NewGlobalStats("alice", 1200)); err != nil {
			return err
		}
		if err := repo.CreateMatch(ctx, testMatch("m1", time.Hour, "alice", "bob", "carol", "dave")); err != nil {
			return err
		}
		return failure
	})
	assert.ErrorIs(t, err, failure)

	require.NoError(t, s.View(ctx, func(repo Repository) error {
		_, err := repo.GetGlobalStats(ctx, "alice")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetMatch(ctx, "m1")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func testReadOnlyView(t *testing.T, s Store) {
	ctx := context.Background()
	seed(t, s)

	err := s.View(ctx, func(repo Repository) error {
		return repo.UpsertSeasonStats(ctx, data.NewSeasonStats("alice", "s1", data.ModePointsSystem, 1200))
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	seed(t, s)
	require.NoError(t, s.RunInTx(ctx, func(repo Repository) error {
		if err := repo.CreateMatch(ctx, testMatch("m1", time.Hour, "alice", "bob", "carol", "dave")); err != nil {
			return err
		}
		_, err := repo.SetGlobalStats(ctx, data.NewGlobalStats("alice", 1220))
		return err
	}))
	require.NoError(t, s.Close())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, reopened.View(ctx, func(repo Repository) error {
		m, err := repo.GetMatch(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "dave", m.TeamB[1].PlayerID)

		stats, err := repo.GetGlobalStats(ctx, "alice")
		require.NoError(t, err)
		assert.InDelta(t, 1220, stats.CurrentRating, 0.0001)
		return nil
	}))
}

func TestSQLStore_ReopenKeepsSchema(t *testing.T) {
	ctx := context.Background()
	config := data.DatabaseConfig{Driver: data.DriverSQLite, Path: filepath.Join(t.TempDir(), "ratings.db")}

	first, err := OpenSQL(ctx, config)
	require.NoError(t, err)
	seed(t, first)
	require.NoError(t, first.Close())

	second, err := OpenSQL(ctx, config)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	require.NoError(t, second.View(ctx, func(repo Repository) error {
		players, err := repo.ListPlayers(ctx)
		require.NoError(t, err)
		assert.Len(t, players, 4)
		return nil
	}))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), data.DatabaseConfig{Driver: "mongo"})
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "db.sqlite?_fk=1&_busy_timeout=5000", sqliteDSN("db.sqlite"))
	assert.Equal(t, "db.sqlite?_fk=0&_busy_timeout=5000", sqliteDSN("db.sqlite?_fk=0"))
}

func TestRebind(t *testing.T) {
	pg := &sqlRepo{postgres: true}
	lite := &sqlRepo{}
	query := `SELECT * FROM t WHERE a = ? AND b = ?`

	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2`, pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}
