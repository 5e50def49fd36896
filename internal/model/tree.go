package model

import (
	"context"
	"fmt"
)

// leaf marks a node without children.
const leaf = -1

// Tree is a fitted regression tree in flat array form.
type Tree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	Value         []float64 `json:"value"`
}

// Eval walks the tree from the root to a leaf. Samples go left when
// x[feature] <= threshold.
func (t *Tree) Eval(x []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// validate checks that the arrays agree and every path ends in a leaf.
// Children must point forward, which rules out cycles.
func (t *Tree) validate(nFeatures int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays differ in length: left=%d right=%d feature=%d threshold=%d value=%d",
			n, len(t.ChildrenRight), len(t.Feature), len(t.Threshold), len(t.Value))
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf || r == leaf {
			if l != r {
				return fmt.Errorf("node %d has only one child", i)
			}
			continue
		}
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d has children out of range: %d, %d", i, l, r)
		}
		if f := t.Feature[i]; f < 0 || f >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d, want [0,%d)", i, f, nFeatures)
		}
	}
	return nil
}

// Forest averages the outputs of its trees.
type Forest struct {
	Trees     []Tree
	NFeatures int
	name      string
}

func (m *Forest) Type() string { return m.name }

func (m *Forest) Predict(_ context.Context, x []float64) (float64, error) {
	if len(x) != m.NFeatures {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), m.NFeatures)
	}
	var sum float64
	for i := range m.Trees {
		sum += m.Trees[i].Eval(x)
	}
	return sum / float64(len(m.Trees)), nil
}

// GradientBoosting is init + learning_rate * sum of tree outputs.
type GradientBoosting struct {
	Init         float64
	LearningRate float64
	Trees        []Tree
	NFeatures    int
	name         string
}

func (m *GradientBoosting) Type() string { return m.name }

func (m *GradientBoosting) Predict(_ context.Context, x []float64) (float64, error) {
	if len(x) != m.NFeatures {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), m.NFeatures)
	}
	var sum float64
	for i := range m.Trees {
		sum += m.Trees[i].Eval(x)
	}
	return m.Init + m.LearningRate*sum, nil
}
