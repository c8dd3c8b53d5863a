package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	KindSimpleImputer = "simple"
	KindLogistic      = "logistic"
	KindForest        = "forest"

	// PositiveClass is the PredictProba column holding the positive class probability.
	PositiveClass = 1
)

// ErrInvalidArtifact is returned when an artifact decodes but does not describe a usable model.
var ErrInvalidArtifact = errors.New("invalid model artifact")

// Imputer fills missing (NaN) values in a feature matrix.
type Imputer interface {
	Kind() string
	NumFeatures() int
	Transform(x [][]float64) ([][]float64, error)
}

// Classifier produces a class probability distribution for each row.
// Column 0 is the negative class and column 1 the positive class.
type Classifier interface {
	Kind() string
	NumFeatures() int
	PredictProba(x [][]float64) ([][]float64, error)
}

type envelope struct {
	Kind string `json:"kind"`
}

func peekKind(b []byte) (string, error) {
	var e envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return "", fmt.Errorf("decoding artifact envelope: %w", err)
	}
	if e.Kind == "" {
		return "", fmt.Errorf("%w: kind must not be empty", ErrInvalidArtifact)
	}
	return e.Kind, nil
}

// DecodeImputer decodes an imputer artifact.
func DecodeImputer(b []byte) (Imputer, error) {
	kind, err := peekKind(b)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindSimpleImputer:
		var m SimpleImputer
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decoding %s imputer: %w", kind, err)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported imputer kind %q", ErrInvalidArtifact, kind)
	}
}

// DecodeClassifier decodes a classifier artifact.
func DecodeClassifier(b []byte) (Classifier, error) {
	kind, err := peekKind(b)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindLogistic:
		var m LogisticRegression
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decoding %s classifier: %w", kind, err)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		return &m, nil
	case KindForest:
		var m RandomForest
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decoding %s classifier: %w", kind, err)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported classifier kind %q", ErrInvalidArtifact, kind)
	}
}

// DecodeFeatures decodes the ordered feature column list.
func DecodeFeatures(b []byte) ([]string, error) {
	var cols []string
	if err := json.Unmarshal(b, &cols); err != nil {
		return nil, fmt.Errorf("decoding feature columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: feature columns must not be empty", ErrInvalidArtifact)
	}

	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		if c == "" {
			return nil, fmt.Errorf("%w: feature column %d has no name", ErrInvalidArtifact, i)
		}
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf("%w: duplicate feature column %q", ErrInvalidArtifact, c)
		}
		seen[c] = struct{}{}
	}
	return cols, nil
}

func checkWidth(x [][]float64, n int) error {
	for i, row := range x {
		if len(row) != n {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), n)
		}
	}
	return nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
