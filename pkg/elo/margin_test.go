package elo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarginStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy MarginStrategy
		diff     int
		expected float64
	}{
		{"none", NoMargin{}, 12, 1.0},
		{"linear one point", LinearMargin{Scale: 0.05, Max: 2}, 1, 1.0},
		{"linear seven points", LinearMargin{Scale: 0.05, Max: 2}, 7, 1.3},
		{"linear capped", LinearMargin{Scale: 0.05, Max: 2}, 40, 2.0},
		{"linear uncapped when max unset", LinearMargin{Scale: 0.05}, 41, 3.0},
		{"log one point", LogMargin{Scale: 0.5, Max: 2}, 1, 1.0},
		{"log ten points", LogMargin{Scale: 0.5, Max: 3}, 10, 1.0 + 0.5*math.Log(10)},
		{"log capped", LogMargin{Scale: 1, Max: 1.5}, 21, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.strategy.Multiplier(tt.diff), tolerance)
		})
	}
}

func TestMarginMonotonic(t *testing.T) {
	for _, strategy := range []MarginStrategy{LinearMargin{Scale: 0.05, Max: 2}, LogMargin{Scale: 0.4, Max: 2}} {
		previous := 0.0
		for diff := 1; diff <= 30; diff++ {
			mult := strategy.Multiplier(diff)
			assert.GreaterOrEqual(t, mult, previous)
			assert.GreaterOrEqual(t, mult, 1.0)
			previous = mult
		}
	}
}

func TestNewMarginStrategy(t *testing.T) {
	strategy, err := NewMarginStrategy("", 0.1, 2)
	require.NoError(t, err)
	assert.Equal(t, NoMargin{}, strategy)

	strategy, err = NewMarginStrategy("linear", 0.1, 2)
	require.NoError(t, err)
	assert.Equal(t, LinearMargin{Scale: 0.1, Max: 2}, strategy)

	strategy, err = NewMarginStrategy("log", 0.3, 1.8)
	require.NoError(t, err)
	assert.Equal(t, LogMargin{Scale: 0.3, Max: 1.8}, strategy)

	_, err = NewMarginStrategy("exponential", 0.1, 2)
	assert.ErrorIs(t, err, ErrUnknownMarginCurve)
}
