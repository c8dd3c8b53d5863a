package model

import (
	"fmt"
)

const leafNode = -1

// Tree is a fitted decision tree in flat array form.
// Node i is a leaf when ChildrenLeft[i] == -1; Value[i] holds per-class
// sample counts (or fractions) at that node.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// RandomForest averages the leaf class distributions of its trees.
type RandomForest struct {
	Features int    `json:"n_features"`
	Classes  int    `json:"n_classes"`
	Trees    []Tree `json:"trees"`
}

func (m *RandomForest) Kind() string {
	return KindForest
}

func (m *RandomForest) NumFeatures() int {
	return m.Features
}

func (m *RandomForest) PredictProba(x [][]float64) ([][]float64, error) {
	if err := checkWidth(x, m.Features); err != nil {
		return nil, fmt.Errorf("forest: %w", err)
	}

	out := make([][]float64, len(x))
	for i, row := range x {
		sum := make([]float64, m.Classes)
		for t := range m.Trees {
			dist := m.Trees[t].leafDistribution(row)
			for c := range sum {
				sum[c] += dist[c]
			}
		}
		for c := range sum {
			sum[c] /= float64(len(m.Trees))
		}
		out[i] = sum
	}
	return out, nil
}

// leafDistribution walks the tree for one row and returns the normalized leaf value.
func (t *Tree) leafDistribution(row []float64) []float64 {
	n := 0
	for t.ChildrenLeft[n] != leafNode {
		if row[t.Feature[n]] <= t.Threshold[n] {
			n = t.ChildrenLeft[n]
		} else {
			n = t.ChildrenRight[n]
		}
	}

	v := t.Value[n]
	total := 0.0
	for _, c := range v {
		total += c
	}

	dist := make([]float64, len(v))
	if total == 0 {
		return dist
	}
	for i, c := range v {
		dist[i] = c / total
	}
	return dist
}

func (m *RandomForest) validate() error {
	if m.Features <= 0 {
		return fmt.Errorf("%w: forest n_features must be positive", ErrInvalidArtifact)
	}
	if m.Classes < 2 {
		return fmt.Errorf("%w: forest needs at least 2 classes, got %d", ErrInvalidArtifact, m.Classes)
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", ErrInvalidArtifact)
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(m.Features, m.Classes); err != nil {
			return fmt.Errorf("%w: tree %d: %w", ErrInvalidArtifact, i, err)
		}
	}
	return nil
}

func (t *Tree) validate(features, classes int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}

	for i := 0; i < n; i++ {
		if len(t.Value[i]) != classes {
			return fmt.Errorf("node %d has %d class values, expected %d", i, len(t.Value[i]), classes)
		}
		for _, v := range t.Value[i] {
			if v < 0 || !finite(v) {
				return fmt.Errorf("node %d has invalid class value %v", i, v)
			}
		}

		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leafNode {
			if r != leafNode {
				return fmt.Errorf("node %d has only one child", i)
			}
			continue
		}

		// children always follow their parent, which rules out cycles
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d has out of order children %d, %d", i, l, r)
		}
		if f := t.Feature[i]; f < 0 || f >= features {
			return fmt.Errorf("node %d splits on unknown feature %d", i, f)
		}
		if !finite(t.Threshold[i]) {
			return fmt.Errorf("node %d has invalid threshold", i)
		}
	}
	return nil
}
