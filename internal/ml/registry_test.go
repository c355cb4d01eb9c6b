package ml

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearArtifact(version string, trained time.Time) *Artifact {
	return &Artifact{
		Family:    FamilyLogReg,
		Version:   version,
		TrainedAt: trained,
		Features:  []string{"a"},
		Linear:    &LinearParams{Coefficients: []float64{1}},
	}
}

func TestRegistry_RegisterActivateRollback(t *testing.T) {
	dir := t.TempDir()
	r, err := OpenRegistry(dir)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = r.Register(linearArtifact("v1", base), ModelMetrics{AUCScore: 0.68})
	require.NoError(t, err)
	_, err = r.Register(linearArtifact("v2", base.Add(24*time.Hour)), ModelMetrics{AUCScore: 0.71})
	require.NoError(t, err)

	_, err = r.Register(linearArtifact("v2", base), ModelMetrics{})
	assert.Error(t, err, "duplicate version")

	versions := r.Versions()
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].Version, "newest first")

	_, ok := r.Active()
	assert.False(t, ok)
	_, err = r.Rollback()
	assert.Error(t, err)

	require.NoError(t, r.Activate("v2"))
	assert.Error(t, r.Activate("v9"))

	// A fresh registry sees the persisted state.
	reopened, err := OpenRegistry(dir)
	require.NoError(t, err)
	active, ok := reopened.Active()
	require.True(t, ok)
	assert.Equal(t, "v2", active.Version)

	prev, err := reopened.Rollback()
	require.NoError(t, err)
	assert.Equal(t, "v1", prev.Version)
	assert.True(t, prev.IsActive)

	_, err = reopened.Rollback()
	assert.Error(t, err, "nothing older than v1")
}

func TestResolveModelPath(t *testing.T) {
	dir := t.TempDir()

	_, err := ResolveModelPath(dir)
	assert.Error(t, err, "empty directory")

	champion := filepath.Join(dir, ChampionArtifact)
	require.NoError(t, SaveArtifact(champion, linearArtifact("champ", time.Time{})))
	got, err := ResolveModelPath(dir)
	require.NoError(t, err)
	assert.Equal(t, champion, got)

	r, err := OpenRegistry(dir)
	require.NoError(t, err)
	v, err := r.Register(linearArtifact("v7", time.Now()), ModelMetrics{})
	require.NoError(t, err)
	require.NoError(t, r.Activate(v.Version))

	got, err = ResolveModelPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model_v7.json"), got)

	s := LoadScorer(context.Background(), dir, ScorerOptions{})
	require.True(t, s.Available())
	assert.Equal(t, "v7", s.Metadata().Version)

	_, err = ResolveModelPath(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
