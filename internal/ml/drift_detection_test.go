package ml

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"bnpl-risk/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriftMetrics struct {
	psi map[string]float64
}

func (m *fakeDriftMetrics) FeatureDriftSet(feature string, psi float64) {
	if m.psi == nil {
		m.psi = map[string]float64{}
	}
	m.psi[feature] = psi
}

// hundred is 0, 1, ..., 99.
func hundred() []float64 {
	out := make([]float64, 100)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestBuildBaseline_QuantileEdges(t *testing.T) {
	b, err := BuildBaseline(map[string][]float64{"dti": hundred()}, 10)
	require.NoError(t, err)

	fb := b.Features["dti"]
	assert.Equal(t, []float64{10, 20, 30, 40, 50, 60, 70, 80, 90}, fb.Edges)
	require.Len(t, fb.Proportions, 10)
	assert.InDelta(t, 0.11, fb.Proportions[0], 1e-12)
	assert.InDelta(t, 0.09, fb.Proportions[9], 1e-12)
	sum := 0.0
	for _, p := range fb.Proportions {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Equal(t, 100, fb.SampleCount)
}

func TestBuildBaseline_DedupesConstantFeature(t *testing.T) {
	constant := make([]float64, 40)
	for i := range constant {
		constant[i] = 5
	}
	b, err := BuildBaseline(map[string][]float64{"pub_rec": constant}, 10)
	require.NoError(t, err)

	fb := b.Features["pub_rec"]
	assert.Equal(t, []float64{5}, fb.Edges)
	assert.Equal(t, []float64{1, 0}, fb.Proportions)
}

func TestBuildBaseline_SkipsSparseAndNonFinite(t *testing.T) {
	values := append(hundred(), math.NaN(), math.Inf(1))
	b, err := BuildBaseline(map[string][]float64{
		"dti":  values,
		"tiny": {1, 2, 3},
	}, 0)
	require.NoError(t, err)

	assert.Contains(t, b.Features, "dti")
	assert.NotContains(t, b.Features, "tiny")
	assert.Equal(t, 100, b.Features["dti"].SampleCount)

	_, err = BuildBaseline(map[string][]float64{"tiny": {1, 2, 3}}, 10)
	assert.Error(t, err)
}

func TestPSI(t *testing.T) {
	even := []float64{0.25, 0.25, 0.25, 0.25}
	assert.InDelta(t, 0.0, PSI(even, even), 1e-12)

	shifted := []float64{0.7, 0.1, 0.1, 0.1}
	assert.Greater(t, PSI(even, shifted), 0.25)

	// Empty bins are floored rather than producing Inf.
	assert.False(t, math.IsInf(PSI(even, []float64{1, 0, 0, 0}), 0))
}

func TestSaveLoadBaseline(t *testing.T) {
	b, err := BuildBaseline(map[string][]float64{"dti": hundred()}, 4)
	require.NoError(t, err)
	b.ModelVersion = "v3"

	path := filepath.Join(t.TempDir(), "nested", "baseline.json")
	require.NoError(t, SaveBaseline(path, b))

	got, err := LoadBaseline(path)
	require.NoError(t, err)
	assert.Equal(t, "v3", got.ModelVersion)
	assert.Equal(t, b.Features["dti"], got.Features["dti"])

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"features":{"dti":{"edges":[1,2],"proportions":[1]}}}`), 0o600))
	_, err = LoadBaseline(bad)
	assert.Error(t, err)

	_, err = LoadBaseline(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDriftMonitor_WarmsUpThenStable(t *testing.T) {
	b, err := BuildBaseline(map[string][]float64{"dti": hundred()}, 10)
	require.NoError(t, err)

	m := &fakeDriftMetrics{}
	mon := NewDriftMonitor(b, 100, m)

	names := []string{"dti"}
	for i := 0; i < 10; i++ {
		mon.Observe(mustVector(t, names, map[string]float64{"dti": float64(i)}), 0)
	}
	rep := mon.Report()
	assert.Equal(t, DriftWarmingUp, rep.Status)
	require.Len(t, rep.Features, 1)
	assert.Equal(t, 10, rep.Features[0].Samples)
	assert.Empty(t, m.psi)

	for i := 10; i < 100; i++ {
		mon.Observe(mustVector(t, names, map[string]float64{"dti": float64(i)}), 0)
	}
	rep = mon.Report()
	assert.Equal(t, DriftStable, rep.Status)
	assert.Equal(t, int64(100), rep.Observed)
	assert.InDelta(t, 0.0, rep.Features[0].PSI, 1e-12)
	assert.Contains(t, m.psi, "dti")
}

func TestDriftMonitor_DetectsShiftAndRollsWindow(t *testing.T) {
	probs := make([]float64, 100)
	for i := range probs {
		probs[i] = float64(i) / 100
	}
	b, err := BuildBaseline(map[string][]float64{ScoreFeature: probs, "dti": hundred()}, 10)
	require.NoError(t, err)

	m := &fakeDriftMetrics{}
	mon := NewDriftMonitor(b, 40, m)

	// The vector lacks dti, so only the score is tracked.
	empty := mustVector(t, []string{"grade_B"}, nil)
	for i := 0; i < 40; i++ {
		mon.Observe(empty, 0.95)
	}
	rep := mon.Report()
	assert.Equal(t, DriftSignificant, rep.Status)
	require.Len(t, rep.Features, 2)
	assert.Equal(t, ScoreFeature, rep.Features[0].Feature)
	assert.Equal(t, DriftSignificant, rep.Features[0].Severity)
	assert.Equal(t, DriftWarmingUp, rep.Features[1].Severity)
	assert.Equal(t, 0, rep.Features[1].Samples)

	// A full window of baseline-shaped scores replaces the shifted ones.
	for i := 0; i < 40; i++ {
		mon.Observe(empty, float64(i*100/40)/100)
	}
	rep = mon.Report()
	assert.Equal(t, 40, rep.Features[0].Samples)
	assert.Less(t, m.psi[ScoreFeature], 0.25)
}

func TestNewDriftMonitor_DefaultWindow(t *testing.T) {
	b, err := BuildBaseline(map[string][]float64{"dti": hundred()}, 10)
	require.NoError(t, err)
	mon := NewDriftMonitor(b, 0, nil)
	assert.Equal(t, DefaultDriftWindow, mon.Report().Window)
}

func TestDriftMonitor_AcceptsEncodedVectors(t *testing.T) {
	enc, err := features.NewEncoder(features.DefaultSchema())
	require.NoError(t, err)

	fico := make([]float64, 50)
	for i := range fico {
		fico[i] = 650 + float64(i)
	}
	b, err := BuildBaseline(map[string][]float64{features.FICO: fico}, 5)
	require.NoError(t, err)
	mon := NewDriftMonitor(b, 30, nil)

	a := features.Applicant{
		LoanAmount: features.Float(1000),
		DTI:        features.Float(10),
		FICO:       features.Float(660),
		Grade:      "B",
		Purpose:    "debt_consolidation",
	}
	v, err := enc.Encode(a)
	require.NoError(t, err)
	mon.Observe(v, 0.1)

	rep := mon.Report()
	require.Len(t, rep.Features, 1)
	assert.Equal(t, 1, rep.Features[0].Samples)
}
