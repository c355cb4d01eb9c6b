package ml

import (
	"context"
	"fmt"
	"math"
)

// LinearParams are the fitted weights of a logistic regression.
type LinearParams struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// LinearModel is the logistic-regression baseline.
type LinearModel struct {
	features  []string
	coef      []float64
	intercept float64
}

func NewLinearModel(features []string, p LinearParams) (*LinearModel, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("linear model has no features")
	}
	if len(p.Coefficients) != len(features) {
		return nil, fmt.Errorf("linear model has %d coefficients for %d features", len(p.Coefficients), len(features))
	}
	for i, c := range p.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient %d (%s) is not finite", i, features[i])
		}
	}
	if math.IsNaN(p.Intercept) || math.IsInf(p.Intercept, 0) {
		return nil, fmt.Errorf("intercept is not finite")
	}

	coef := make([]float64, len(p.Coefficients))
	copy(coef, p.Coefficients)
	return &LinearModel{features: copyStrings(features), coef: coef, intercept: p.Intercept}, nil
}

func (m *LinearModel) Family() Family { return FamilyLogReg }

func (m *LinearModel) Features() []string { return copyStrings(m.features) }

func (m *LinearModel) PredictProbability(_ context.Context, x []float64) (float64, error) {
	if len(x) != len(m.coef) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.coef), len(x))
	}
	z := m.intercept
	for i, c := range m.coef {
		z += c * x[i]
	}
	return sigmoid(z), nil
}
