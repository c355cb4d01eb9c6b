package ml

import (
	"context"
	"fmt"
	"math"
)

// Aggregation says how per-tree leaf values combine into a probability.
type Aggregation string

const (
	// AggregateLogitSum adds leaf values to the base score and applies the
	// logistic function (gradient boosting).
	AggregateLogitSum Aggregation = "logit_sum"
	// AggregateMeanProb averages leaf probabilities (random forest).
	AggregateMeanProb Aggregation = "mean_prob"
)

// TreeNode is one node of a flattened binary tree. Internal nodes send x to
// Left when x[Feature] passes the split, otherwise to Right.
type TreeNode struct {
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Tree is rooted at Nodes[0]. Children always come after their parent.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeParams are the exported trees of a boosted or bagged ensemble.
type TreeParams struct {
	Aggregation Aggregation `json:"aggregation,omitempty"`
	BaseScore   float64     `json:"base_score,omitempty"`
	// Comparison is the split test: "<=" (lightgbm, catboost, sklearn) or
	// "<" (xgboost). Empty picks the family default.
	Comparison string `json:"comparison,omitempty"`
	Trees      []Tree `json:"trees"`
}

// TreeEnsemble scores the gradient-boosted families and random forests.
type TreeEnsemble struct {
	family      Family
	features    []string
	trees       []Tree
	aggregation Aggregation
	baseScore   float64
	strict      bool
}

func NewTreeEnsemble(family Family, features []string, p TreeParams) (*TreeEnsemble, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("tree ensemble has no features")
	}
	if len(p.Trees) == 0 {
		return nil, fmt.Errorf("tree ensemble has no trees")
	}

	agg := p.Aggregation
	if agg == "" {
		agg = AggregateLogitSum
		if family == FamilyRandomForest {
			agg = AggregateMeanProb
		}
	}
	if agg != AggregateLogitSum && agg != AggregateMeanProb {
		return nil, fmt.Errorf("unknown aggregation %q", agg)
	}

	var strict bool
	switch p.Comparison {
	case "":
		strict = family == FamilyXGBoost
	case "<":
		strict = true
	case "<=":
		strict = false
	default:
		return nil, fmt.Errorf("unknown split comparison %q", p.Comparison)
	}

	for ti, t := range p.Trees {
		if err := validateTree(t, len(features), agg); err != nil {
			return nil, fmt.Errorf("tree %d: %w", ti, err)
		}
	}

	trees := make([]Tree, len(p.Trees))
	for i, t := range p.Trees {
		trees[i] = Tree{Nodes: append([]TreeNode(nil), t.Nodes...)}
	}

	return &TreeEnsemble{
		family:      family,
		features:    copyStrings(features),
		trees:       trees,
		aggregation: agg,
		baseScore:   p.BaseScore,
		strict:      strict,
	}, nil
}

func validateTree(t Tree, nFeatures int, agg Aggregation) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
				return fmt.Errorf("node %d: leaf value is not finite", i)
			}
			if agg == AggregateMeanProb && (n.Value < 0 || n.Value > 1) {
				return fmt.Errorf("node %d: leaf probability %v outside [0, 1]", i, n.Value)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		if math.IsNaN(n.Threshold) {
			return fmt.Errorf("node %d: threshold is NaN", i)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(t.Nodes) {
				return fmt.Errorf("node %d: child index %d out of order", i, child)
			}
		}
	}
	return nil
}

func (m *TreeEnsemble) Family() Family { return m.family }

func (m *TreeEnsemble) Features() []string { return copyStrings(m.features) }

func (m *TreeEnsemble) NumTrees() int { return len(m.trees) }

func (m *TreeEnsemble) PredictProbability(_ context.Context, x []float64) (float64, error) {
	if len(x) != len(m.features) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.features), len(x))
	}

	sum := 0.0
	for i := range m.trees {
		sum += m.leaf(&m.trees[i], x)
	}

	if m.aggregation == AggregateMeanProb {
		return sum / float64(len(m.trees)), nil
	}
	return sigmoid(m.baseScore + sum), nil
}

func (m *TreeEnsemble) leaf(t *Tree, x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		v := x[n.Feature]
		goLeft := v <= n.Threshold
		if m.strict {
			goLeft = v < n.Threshold
		}
		if goLeft {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
