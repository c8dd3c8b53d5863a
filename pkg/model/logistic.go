package model

import (
	"fmt"
	"math"
)

// LogisticRegression is a fitted binary logistic model.
type LogisticRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (m *LogisticRegression) Kind() string {
	return KindLogistic
}

func (m *LogisticRegression) NumFeatures() int {
	return len(m.Coef)
}

// PredictProba returns [1-p, p] for each row where p = sigmoid(coef . x + intercept).
func (m *LogisticRegression) PredictProba(x [][]float64) ([][]float64, error) {
	if err := checkWidth(x, len(m.Coef)); err != nil {
		return nil, fmt.Errorf("logistic: %w", err)
	}

	out := make([][]float64, len(x))
	for i, row := range x {
		z := m.Intercept
		for j, v := range row {
			z += m.Coef[j] * v
		}
		p := sigmoid(z)
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

func (m *LogisticRegression) validate() error {
	if len(m.Coef) == 0 {
		return fmt.Errorf("%w: logistic coef must not be empty", ErrInvalidArtifact)
	}
	if !finite(m.Coef...) || !finite(m.Intercept) {
		return fmt.Errorf("%w: logistic parameters must be finite", ErrInvalidArtifact)
	}
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	// keeps exp from overflowing for large negative z
	e := math.Exp(z)
	return e / (1 + e)
}
