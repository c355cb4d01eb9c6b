package ml

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearModel(t *testing.T) {
	m, err := NewLinearModel([]string{"a", "b"}, LinearParams{Coefficients: []float64{1, -2}, Intercept: 0.5})
	require.NoError(t, err)
	assert.Equal(t, FamilyLogReg, m.Family())

	p, err := m.PredictProbability(context.Background(), []float64{1, 0.75})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12) // z = 0.5 + 1 - 1.5 = 0

	p, err = m.PredictProbability(context.Background(), []float64{1000, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p, 1e-12)

	p, err = m.PredictProbability(context.Background(), []float64{-1000, 0})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(p))
	assert.InDelta(t, 0.0, p, 1e-12)

	_, err = m.PredictProbability(context.Background(), []float64{1})
	assert.Error(t, err)
}

func TestLinearModel_InvalidParams(t *testing.T) {
	_, err := NewLinearModel([]string{"a"}, LinearParams{Coefficients: []float64{1, 2}})
	assert.Error(t, err)

	_, err = NewLinearModel(nil, LinearParams{})
	assert.Error(t, err)

	_, err = NewLinearModel([]string{"a"}, LinearParams{Coefficients: []float64{math.Inf(1)}})
	assert.Error(t, err)
}

// stump splits on feature 0 at 10.
func stump(left, right float64) Tree {
	return Tree{Nodes: []TreeNode{
		{Feature: 0, Threshold: 10, Left: 1, Right: 2},
		{Leaf: true, Value: left},
		{Leaf: true, Value: right},
	}}
}

func TestTreeEnsemble_LogitSum(t *testing.T) {
	m, err := NewTreeEnsemble(FamilyLightGBM, []string{"x", "y"}, TreeParams{
		BaseScore: -1,
		Trees:     []Tree{stump(0.5, 2), stump(0.5, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumTrees())

	p, err := m.PredictProbability(context.Background(), []float64{10, 0})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(0), p, 1e-12) // -1 + 0.5 + 0.5, 10 <= 10 goes left

	p, err = m.PredictProbability(context.Background(), []float64{11, 0})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(2), p, 1e-12)
}

func TestTreeEnsemble_ComparisonDefaults(t *testing.T) {
	params := TreeParams{Trees: []Tree{stump(-5, 5)}}

	lgb, err := NewTreeEnsemble(FamilyLightGBM, []string{"x"}, params)
	require.NoError(t, err)
	xgb, err := NewTreeEnsemble(FamilyXGBoost, []string{"x"}, params)
	require.NoError(t, err)

	atSplit := []float64{10}
	pl, _ := lgb.PredictProbability(context.Background(), atSplit)
	px, _ := xgb.PredictProbability(context.Background(), atSplit)
	assert.Less(t, pl, 0.5, "lightgbm sends x == threshold left")
	assert.Greater(t, px, 0.5, "xgboost sends x == threshold right")

	params.Comparison = "<="
	xgbLE, err := NewTreeEnsemble(FamilyXGBoost, []string{"x"}, params)
	require.NoError(t, err)
	p, _ := xgbLE.PredictProbability(context.Background(), atSplit)
	assert.Less(t, p, 0.5)
}

func TestTreeEnsemble_MeanProb(t *testing.T) {
	m, err := NewTreeEnsemble(FamilyRandomForest, []string{"x"}, TreeParams{
		Trees: []Tree{stump(0.1, 0.9), stump(0.3, 0.7), {Nodes: []TreeNode{{Leaf: true, Value: 0.2}}}},
	})
	require.NoError(t, err)

	p, err := m.PredictProbability(context.Background(), []float64{0})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, p, 1e-12)

	p, err = m.PredictProbability(context.Background(), []float64{20})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p, 1e-12)
}

func TestTreeEnsemble_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		family Family
		params TreeParams
	}{
		{"no trees", FamilyLightGBM, TreeParams{}},
		{"empty tree", FamilyLightGBM, TreeParams{Trees: []Tree{{}}}},
		{"feature out of range", FamilyLightGBM, TreeParams{Trees: []Tree{{Nodes: []TreeNode{
			{Feature: 3, Left: 1, Right: 2}, {Leaf: true}, {Leaf: true},
		}}}}},
		{"child points backwards", FamilyLightGBM, TreeParams{Trees: []Tree{{Nodes: []TreeNode{
			{Feature: 0, Left: 0, Right: 1}, {Leaf: true},
		}}}}},
		{"child past end", FamilyCatBoost, TreeParams{Trees: []Tree{{Nodes: []TreeNode{
			{Feature: 0, Left: 1, Right: 5}, {Leaf: true},
		}}}}},
		{"rf leaf outside unit interval", FamilyRandomForest, TreeParams{Trees: []Tree{stump(0.1, 1.5)}}},
		{"bad aggregation", FamilyLightGBM, TreeParams{Aggregation: "max", Trees: []Tree{stump(0, 1)}}},
		{"bad comparison", FamilyLightGBM, TreeParams{Comparison: ">", Trees: []Tree{stump(0, 1)}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTreeEnsemble(tc.family, []string{"x"}, tc.params)
			assert.Error(t, err)
		})
	}
}
