package season

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
	"github.com/pschwagler/beach-kings-sub002/pkg/elo"
)

const tolerance = 0.0001

func createTestEngine(t *testing.T) *Engine {
	t.Helper()
	ratings, err := elo.NewEngine(elo.Config{})
	require.NoError(t, err)
	engine, err := NewEngine(ratings, Config{SeasonKFactor: 10, InitialRating: 1200})
	require.NoError(t, err)
	return engine
}

func seed(e *Engine, system ScoringSystem, ids ...string) [2]data.SeasonStats {
	return [2]data.SeasonStats{e.SeedStats(ids[0], "s1", system), e.SeedStats(ids[1], "s1", system)}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		literal  string
		config   string
		expected ScoringSystem
		wantErr  error
	}{
		{"season rating", "season_rating", "", SeasonRating{}, nil},
		{"season rating ignores config", "season_rating", `{"points_per_win":9}`, SeasonRating{}, nil},
		{"points defaults", "points_system", "", PointsSystem{3, 1}, nil},
		{"points null", "points_system", "null", PointsSystem{3, 1}, nil},
		{"points empty object", "points_system", "{}", PointsSystem{3, 1}, nil},
		{"points custom", "points_system", `{"points_per_win":2,"points_per_loss":0}`, PointsSystem{2, 0}, nil},
		{"points partial", "points_system", `{"points_per_win":5}`, PointsSystem{5, 1}, nil},
		{"negative points", "points_system", `{"points_per_loss":-1}`, nil, ErrInvalidPointConfig},
		{"malformed config", "points_system", `{"points_per_win":`, nil, ErrInvalidPointConfig},
		{"unknown literal", "elo", "", nil, ErrUnknownScoringSystem},
		{"empty literal", "", "", nil, ErrUnknownScoringSystem},
		{"case sensitive", "Points_System", "", nil, ErrUnknownScoringSystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, err := Parse(tt.literal, []byte(tt.config))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, system)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, system)
		})
	}
}

func TestStorageRoundTrip(t *testing.T) {
	for _, system := range []ScoringSystem{PointsSystem{4, 2}, SeasonRating{}} {
		var s data.Season
		s.ID = "s1"
		require.NoError(t, ApplyToSeason(&s, system))

		parsed, err := FromSeason(s)
		require.NoError(t, err)
		assert.Equal(t, system, parsed)
	}

	config, err := PointConfigJSON(SeasonRating{})
	require.NoError(t, err)
	assert.Empty(t, config)
}

func TestFromSeason_UnknownLiteral(t *testing.T) {
	_, err := FromSeason(data.Season{ID: "s9", ScoringSystem: "ladder"})
	assert.ErrorIs(t, err, ErrUnknownScoringSystem)
	assert.Contains(t, err.Error(), "s9")
}

func TestNewEngine(t *testing.T) {
	ratings, err := elo.NewEngine(elo.Config{})
	require.NoError(t, err)

	_, err = NewEngine(nil, Config{SeasonKFactor: 10, InitialRating: 1200})
	assert.Error(t, err)

	_, err = NewEngine(ratings, Config{SeasonKFactor: 0, InitialRating: 1200})
	assert.ErrorIs(t, err, elo.ErrInvalidKFactor)

	_, err = NewEngine(ratings, Config{SeasonKFactor: 10})
	assert.ErrorIs(t, err, elo.ErrInvalidRating)
}

func TestScore_PointsSystem(t *testing.T) {
	engine := createTestEngine(t)
	system := DefaultPointsSystem()

	t.Run("team A wins", func(t *testing.T) {
		outcome, err := engine.Score(system, seed(engine, system, "alice", "bob"), seed(engine, system, "carol", "dave"), true, nil)
		require.NoError(t, err)

		for _, s := range outcome.TeamA {
			assert.Equal(t, 3, s.Points)
			assert.Equal(t, 1, s.Wins)
			assert.Equal(t, 1, s.MatchesPlayed)
		}
		for _, s := range outcome.TeamB {
			assert.Equal(t, 1, s.Points)
			assert.Equal(t, 1, s.Losses)
		}
		assert.Empty(t, outcome.Updates)
	})

	t.Run("team B wins keeps sides", func(t *testing.T) {
		outcome, err := engine.Score(system, seed(engine, system, "alice", "bob"), seed(engine, system, "carol", "dave"), false, nil)
		require.NoError(t, err)

		assert.Equal(t, "alice", outcome.TeamA[0].PlayerID)
		assert.Equal(t, 1, outcome.TeamA[0].Points)
		assert.Equal(t, "carol", outcome.TeamB[0].PlayerID)
		assert.Equal(t, 3, outcome.TeamB[0].Points)
	})

	t.Run("order independent", func(t *testing.T) {
		a := seed(engine, system, "alice", "bob")
		b := seed(engine, system, "carol", "dave")

		first, err := engine.Score(system, a, b, true, nil)
		require.NoError(t, err)
		second, err := engine.Score(system, first.TeamA, first.TeamB, false, nil)
		require.NoError(t, err)

		reversedFirst, err := engine.Score(system, a, b, false, nil)
		require.NoError(t, err)
		reversedSecond, err := engine.Score(system, reversedFirst.TeamA, reversedFirst.TeamB, true, nil)
		require.NoError(t, err)

		assert.Equal(t, second, reversedSecond)
	})
}

func TestScore_SeasonRating(t *testing.T) {
	engine := createTestEngine(t)
	system := SeasonRating{}

	outcome, err := engine.Score(system, seed(engine, system, "alice", "bob"), seed(engine, system, "carol", "dave"), true, nil)
	require.NoError(t, err)

	for _, s := range outcome.TeamA {
		assert.InDelta(t, 1205.0, s.Rating, tolerance)
		assert.Equal(t, 1, s.Wins)
		assert.Zero(t, s.Points)
	}
	for _, s := range outcome.TeamB {
		assert.InDelta(t, 1195.0, s.Rating, tolerance)
		assert.Equal(t, 1, s.Losses)
	}

	require.Len(t, outcome.Updates, 4)
	total := 0.0
	for _, u := range outcome.Updates {
		total += u.Delta
		assert.Equal(t, 10.0, u.KFactor)
	}
	assert.InDelta(t, 0.0, total, tolerance)
}

func TestScore_ModeMismatch(t *testing.T) {
	engine := createTestEngine(t)

	stale := seed(engine, DefaultPointsSystem(), "alice", "bob")
	fresh := seed(engine, SeasonRating{}, "carol", "dave")

	_, err := engine.Score(SeasonRating{}, stale, fresh, true, nil)
	assert.ErrorIs(t, err, ErrModeMismatch)
}
