package ml

import (
	"context"
	"fmt"
	"sync"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	latencySum       float64
	timeouts         int
	modelAge         float64
	modelLoaded      *bool
	predictionScores []float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) MLTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

func (m *MockMetrics) MLModelLoadedSet(loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelLoaded = &loaded
}

// StaticModel returns a fixed probability whatever the input. Tests in other
// packages use it to drive the decision pipeline.
type StaticModel struct {
	Columns     []string
	Probability float64
	Err         error
}

func (m *StaticModel) Family() Family { return FamilyLogReg }

func (m *StaticModel) Features() []string { return copyStrings(m.Columns) }

func (m *StaticModel) PredictProbability(_ context.Context, x []float64) (float64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	if len(x) != len(m.Columns) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Columns), len(x))
	}
	return m.Probability, nil
}
