package ml

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"bnpl-risk/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(dir, "score.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestScriptModel_Predict(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "cat > /dev/null\necho '{\"probability\": 0.2}'\n")

	m, err := NewScriptModel([]string{"a", "b"}, ScriptParams{Interpreter: "sh", Script: "score.sh", Family: FamilyCatBoost}, dir, 5*time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, FamilyScript, m.Family())
	assert.Equal(t, FamilyCatBoost, m.Wraps())

	p, err := m.PredictProbability(context.Background(), []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 0.2, p)
	assert.NoError(t, m.HealthCheck(context.Background()))
}

func TestScriptModel_ProbabilityPair(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "cat > /dev/null\necho '{\"probabilities\": [0.7, 0.3]}'\n")

	m, err := NewScriptModel([]string{"a"}, ScriptParams{Interpreter: "sh", Script: "score.sh"}, dir, time.Second, nil)
	require.NoError(t, err)

	p, err := m.PredictProbability(context.Background(), []float64{1})
	require.NoError(t, err)
	assert.Equal(t, 0.3, p)
}

func TestScriptModel_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		body   string
		errMsg string
	}{
		{"reported error", "cat > /dev/null\necho '{\"error\": \"model corrupt\"}'\n", "model corrupt"},
		{"reported error with exit", "cat > /dev/null\necho '{\"error\": \"bad input\"}'\nexit 1\n", "bad input"},
		{"garbage output", "cat > /dev/null\necho 'hello'\n", "failed to parse response"},
		{"empty probabilities", "cat > /dev/null\necho '{\"probabilities\": [0.5]}'\n", "expected probability"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeScript(t, dir, tc.body)
			m, err := NewScriptModel([]string{"a"}, ScriptParams{Interpreter: "sh", Script: "score.sh"}, dir, time.Second, nil)
			require.NoError(t, err)

			_, err = m.PredictProbability(context.Background(), []float64{1})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestScriptModel_Timeout(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "exec sleep 5\n")
	metrics := &MockMetrics{}

	m, err := NewScriptModel([]string{"a"}, ScriptParams{Interpreter: "sh", Script: "score.sh"}, dir, 100*time.Millisecond, metrics)
	require.NoError(t, err)

	_, err = m.PredictProbability(context.Background(), []float64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, 1, metrics.timeouts)
}

func TestScriptModel_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := NewScriptModel([]string{"a"}, ScriptParams{Interpreter: "sh", Script: "absent.sh"}, dir, time.Second, nil)
	assert.Error(t, err)

	writeScript(t, dir, "echo '{}'\n")
	_, err = NewScriptModel([]string{"a"}, ScriptParams{Interpreter: "sh", Script: "score.sh", Artifact: "model.cbm"}, dir, time.Second, nil)
	assert.Error(t, err)

	_, err = NewScriptModel([]string{"a"}, ScriptParams{Interpreter: "no-such-interpreter-xyz", Script: "score.sh"}, dir, time.Second, nil)
	assert.Error(t, err)
}

func TestLoadScorer_ScriptHealthCheckFailureDisablesScoring(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "cat > /dev/null\necho '{\"probability\": 7}'\n")
	path := filepath.Join(dir, "model.json")
	require.NoError(t, SaveArtifact(path, &Artifact{
		Family:   FamilyScript,
		Version:  "s1",
		Features: []string{"a"},
		Script:   &ScriptParams{Interpreter: "sh", Script: "score.sh"},
	}))

	s := LoadScorer(context.Background(), path, ScorerOptions{Timeout: time.Second})
	assert.False(t, s.Available())
	assert.Contains(t, s.LoadError().Error(), "health check")

	_, err := s.Score(context.Background(), mustVector(t, []string{"a"}, nil))
	assert.True(t, errors.Is(err, common.ErrModelUnavailable))
}
