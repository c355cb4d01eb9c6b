// Package ml scores encoded applicants with a trained default-probability
// classifier.
//
// Training happens outside the service. A model reaches the process as a JSON
// artifact naming its family, its ordered feature columns and the parameters
// of one backend: a linear model, a tree ensemble, or an external script for
// formats Go cannot read natively. The Scorer wraps exactly one loaded model
// and matches incoming vectors to the model's columns by name.
package ml

import (
	"context"
	"math"
)

// Family identifies the classifier that produced an artifact.
type Family string

const (
	FamilyLightGBM     Family = "lightgbm"
	FamilyXGBoost      Family = "xgboost"
	FamilyCatBoost     Family = "catboost"
	FamilyRandomForest Family = "rf"
	FamilyLogReg       Family = "logreg"
	FamilyScript       Family = "script"
)

// Model is a loaded binary classifier.
type Model interface {
	Family() Family
	// Features lists the columns PredictProbability expects, in order.
	Features() []string
	// PredictProbability returns P(default=1) for x, laid out as Features.
	PredictProbability(ctx context.Context, x []float64) (float64, error)
}

// HealthChecker is implemented by backends that can fail after loading.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
