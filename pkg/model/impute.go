package model

import (
	"fmt"
	"math"
)

const (
	StrategyMean         = "mean"
	StrategyMedian       = "median"
	StrategyMostFrequent = "most_frequent"
	StrategyConstant     = "constant"
)

// SimpleImputer replaces missing values with one pre-fitted statistic per column.
// The strategy only records how the statistics were fitted.
type SimpleImputer struct {
	Strategy   string    `json:"strategy"`
	Statistics []float64 `json:"statistics"`
}

func (m *SimpleImputer) Kind() string {
	return KindSimpleImputer
}

func (m *SimpleImputer) NumFeatures() int {
	return len(m.Statistics)
}

// Transform returns a copy of x with every NaN replaced by its column statistic.
func (m *SimpleImputer) Transform(x [][]float64) ([][]float64, error) {
	if err := checkWidth(x, len(m.Statistics)); err != nil {
		return nil, fmt.Errorf("imputer: %w", err)
	}

	out := make([][]float64, len(x))
	for i, row := range x {
		filled := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				v = m.Statistics[j]
			}
			filled[j] = v
		}
		out[i] = filled
	}
	return out, nil
}

func (m *SimpleImputer) validate() error {
	switch m.Strategy {
	case StrategyMean, StrategyMedian, StrategyMostFrequent, StrategyConstant:
	default:
		return fmt.Errorf("%w: unsupported imputer strategy %q", ErrInvalidArtifact, m.Strategy)
	}
	if len(m.Statistics) == 0 {
		return fmt.Errorf("%w: imputer statistics must not be empty", ErrInvalidArtifact)
	}
	if !finite(m.Statistics...) {
		return fmt.Errorf("%w: imputer statistics must be finite", ErrInvalidArtifact)
	}
	return nil
}
