package elo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test configuration constants
const (
	globalK   = 40.0
	seasonK   = 10.0
	tolerance = 0.0001 // Floating point comparison tolerance
)

// Helper function to create a default engine for testing
func createTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{})
	require.NoError(t, err)
	return engine
}

func team(a string, ra float64, b string, rb float64) [2]Rating {
	return [2]Rating{{PlayerID: a, Score: ra}, {PlayerID: b, Score: rb}}
}

func TestNewEngine(t *testing.T) {
	t.Run("nil margin defaults to none", func(t *testing.T) {
		engine, err := NewEngine(Config{UsePointDifferential: true})
		require.NoError(t, err)
		assert.Equal(t, NoMargin{}, engine.margin)
	})

	t.Run("keeps configured strategy", func(t *testing.T) {
		engine, err := NewEngine(Config{UsePointDifferential: true, Margin: LinearMargin{Scale: 0.1, Max: 2}})
		require.NoError(t, err)
		assert.Equal(t, LinearMargin{Scale: 0.1, Max: 2}, engine.margin)
	})
}

func TestExpectedScore(t *testing.T) {
	engine := createTestEngine(t)

	tests := []struct {
		name     string
		ratingA  float64
		ratingB  float64
		expected float64
	}{
		{"equal ratings", 1200, 1200, 0.5},
		{"400 points stronger", 1600, 1200, 10.0 / 11.0},
		{"400 points weaker", 1200, 1600, 1.0 / 11.0},
		{"200 points stronger", 1400, 1200, 1.0 / (1.0 + math.Pow(10, -0.5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, engine.ExpectedScore(tt.ratingA, tt.ratingB), tolerance)
		})
	}
}

func TestComputeDelta(t *testing.T) {
	engine := createTestEngine(t)

	t.Run("equal teams with global K", func(t *testing.T) {
		deltaA, deltaB, err := engine.ComputeDelta(1200, 1200, true, globalK, nil)
		require.NoError(t, err)

		assert.InDelta(t, 20.0, deltaA, tolerance)
		assert.InDelta(t, -20.0, deltaB, tolerance)
	})

	t.Run("equal teams with season K", func(t *testing.T) {
		deltaA, deltaB, err := engine.ComputeDelta(1200, 1200, false, seasonK, nil)
		require.NoError(t, err)

		assert.InDelta(t, -5.0, deltaA, tolerance)
		assert.InDelta(t, 5.0, deltaB, tolerance)
	})

	t.Run("upset earns more than expected win", func(t *testing.T) {
		upset, _, err := engine.ComputeDelta(1100, 1400, true, globalK, nil)
		require.NoError(t, err)
		expected, _, err := engine.ComputeDelta(1400, 1100, true, globalK, nil)
		require.NoError(t, err)

		assert.Greater(t, upset, expected)
		assert.InDelta(t, globalK, upset+expected, tolerance)
	})

	t.Run("invalid ratings", func(t *testing.T) {
		_, _, err := engine.ComputeDelta(math.NaN(), 1200, true, globalK, nil)
		assert.ErrorIs(t, err, ErrInvalidRating)

		_, _, err = engine.ComputeDelta(1200, math.Inf(1), true, globalK, nil)
		assert.ErrorIs(t, err, ErrInvalidRating)
	})

	t.Run("invalid k-factor", func(t *testing.T) {
		_, _, err := engine.ComputeDelta(1200, 1200, true, 0, nil)
		assert.ErrorIs(t, err, ErrInvalidKFactor)

		_, _, err = engine.ComputeDelta(1200, 1200, true, -10, nil)
		assert.ErrorIs(t, err, ErrInvalidKFactor)
	})

	t.Run("invalid margin", func(t *testing.T) {
		_, _, err := engine.ComputeDelta(1200, 1200, true, globalK, &Margin{PointDifferential: 0})
		assert.ErrorIs(t, err, ErrInvalidMargin)
	})

	t.Run("margin ignored when disabled", func(t *testing.T) {
		deltaA, _, err := engine.ComputeDelta(1200, 1200, true, globalK, &Margin{PointDifferential: 15})
		require.NoError(t, err)
		assert.InDelta(t, 20.0, deltaA, tolerance)
	})
}

func TestComputeDelta_PointDifferential(t *testing.T) {
	engine, err := NewEngine(Config{
		UsePointDifferential: true,
		Margin:               LinearMargin{Scale: 0.1, Max: 1.5},
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		diff   int
		deltaA float64
	}{
		{"one point margin", 1, 20.0},
		{"three point margin", 3, 24.0},
		{"capped margin", 15, 30.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deltaA, deltaB, err := engine.ComputeDelta(1200, 1200, true, globalK, &Margin{PointDifferential: tt.diff})
			require.NoError(t, err)
			assert.InDelta(t, tt.deltaA, deltaA, tolerance)
			assert.Equal(t, -deltaA, deltaB)
		})
	}
}

func TestTeamRating(t *testing.T) {
	assert.Equal(t, 1250.0, TeamRating(1200, 1300))
	assert.Equal(t, 1200.0, TeamRating(1200, 1200))
}

func TestApplyTeam(t *testing.T) {
	updates := ApplyTeam(team("alice", 1180, "bob", 1240), 12.5, globalK)

	assert.Equal(t, "alice", updates[0].PlayerID)
	assert.InDelta(t, 1192.5, updates[0].NewRating, tolerance)
	assert.InDelta(t, 1252.5, updates[1].NewRating, tolerance)
	assert.Equal(t, 12.5, updates[1].Delta)
	assert.Equal(t, globalK, updates[1].KFactor)
}

func TestCalculateDoubles(t *testing.T) {
	engine := createTestEngine(t)

	t.Run("fresh players", func(t *testing.T) {
		result, err := engine.CalculateDoubles(
			team("alice", 1200, "bob", 1200),
			team("carol", 1200, "dave", 1200),
			true, globalK, nil,
		)
		require.NoError(t, err)

		for _, u := range result.TeamA {
			assert.InDelta(t, 1220.0, u.NewRating, tolerance)
		}
		for _, u := range result.TeamB {
			assert.InDelta(t, 1180.0, u.NewRating, tolerance)
		}
	})

	t.Run("uneven partners share the team delta", func(t *testing.T) {
		result, err := engine.CalculateDoubles(
			team("alice", 1300, "bob", 1100),
			team("carol", 1250, "dave", 1150),
			false, globalK, nil,
		)
		require.NoError(t, err)

		assert.InDelta(t, -20.0, result.DeltaA, tolerance)
		assert.Equal(t, result.TeamA[0].Delta, result.TeamA[1].Delta)
		assert.InDelta(t, 1280.0, result.TeamA[0].NewRating, tolerance)
		assert.InDelta(t, 1170.0, result.TeamB[1].NewRating, tolerance)
	})

	t.Run("invalid player rating", func(t *testing.T) {
		_, err := engine.CalculateDoubles(
			team("alice", math.NaN(), "bob", 1200),
			team("carol", 1200, "dave", 1200),
			true, globalK, nil,
		)
		assert.ErrorIs(t, err, ErrInvalidRating)
	})
}

func TestPropertyZeroSum(t *testing.T) {
	engine, err := NewEngine(Config{UsePointDifferential: true, Margin: LogMargin{Scale: 0.5, Max: 2}})
	require.NoError(t, err)

	testCases := []struct {
		teamA float64
		teamB float64
		diff  int
	}{
		{1200.0, 1200.0, 1},
		{1800.0, 1000.0, 4},
		{800.0, 1600.0, 11},
		{2500.0, 500.0, 21},
		{1234.5, 1876.3, 2},
	}

	for _, tc := range testCases {
		for _, won := range []bool{true, false} {
			t.Run("zero-sum property", func(t *testing.T) {
				deltaA, deltaB, err := engine.ComputeDelta(tc.teamA, tc.teamB, won, globalK, &Margin{PointDifferential: tc.diff})
				require.NoError(t, err)

				assert.Equal(t, 0.0, deltaA+deltaB,
					"deltas not zero-sum for team ratings %.2f vs %.2f", tc.teamA, tc.teamB)
				if won {
					assert.Greater(t, deltaA, 0.0)
				} else {
					assert.Less(t, deltaA, 0.0)
				}
			})
		}
	}
}

func TestPropertySymmetry(t *testing.T) {
	engine := createTestEngine(t)

	// Expected scores are symmetric (E_A + E_B = 1.0)
	ratings := []float64{800.0, 1000.0, 1200.0, 1400.0, 1600.0, 1800.0, 2000.0}

	for _, ratingA := range ratings {
		for _, ratingB := range ratings {
			t.Run("symmetry property", func(t *testing.T) {
				sum := engine.ExpectedScore(ratingA, ratingB) + engine.ExpectedScore(ratingB, ratingA)
				assert.InDelta(t, 1.0, sum, tolerance,
					"Expected score symmetry violated for ratings %.2f vs %.2f", ratingA, ratingB)
			})
		}
	}
}

func BenchmarkCalculateDoubles(b *testing.B) {
	engine, _ := NewEngine(Config{})
	teamA := team("alice", 1400, "bob", 1250)
	teamB := team("carol", 1200, "dave", 1300)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.CalculateDoubles(teamA, teamB, true, globalK, nil)
	}
}
