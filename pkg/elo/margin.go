package elo

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownMarginCurve is returned for a curve name without a strategy
var ErrUnknownMarginCurve = errors.New("unknown margin curve")

// MarginStrategy maps a point differential (>= 1) to a delta multiplier (>= 1)
type MarginStrategy interface {
	Multiplier(pointDifferential int) float64
}

// NoMargin ignores the score margin
type NoMargin struct{}

// Multiplier always returns 1
func (NoMargin) Multiplier(int) float64 { return 1.0 }

// LinearMargin grows the multiplier by Scale per point beyond the first, capped at Max
type LinearMargin struct {
	Scale float64
	Max   float64
}

// Multiplier returns 1 + Scale*(diff-1), capped at Max
func (m LinearMargin) Multiplier(pointDifferential int) float64 {
	return capMultiplier(1.0+m.Scale*float64(pointDifferential-1), m.Max)
}

// LogMargin grows the multiplier with the natural log of the differential, capped at Max
type LogMargin struct {
	Scale float64
	Max   float64
}

// Multiplier returns 1 + Scale*ln(diff), capped at Max
func (m LogMargin) Multiplier(pointDifferential int) float64 {
	return capMultiplier(1.0+m.Scale*math.Log(float64(pointDifferential)), m.Max)
}

func capMultiplier(value, limit float64) float64 {
	if value < 1.0 {
		return 1.0
	}
	if limit >= 1.0 && value > limit {
		return limit
	}
	return value
}

// NewMarginStrategy builds the strategy named by curve: none, linear or log
func NewMarginStrategy(curve string, scale, limit float64) (MarginStrategy, error) {
	switch curve {
	case "", "none":
		return NoMargin{}, nil
	case "linear":
		return LinearMargin{Scale: scale, Max: limit}, nil
	case "log":
		return LogMargin{Scale: scale, Max: limit}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarginCurve, curve)
	}
}
