package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bnpl-risk/internal/features"
	"bnpl-risk/internal/ml"
	"bnpl-risk/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ledgerCSV = `loan_amnt,term,int_rate,grade,loan_status,purpose,dti,fico_range_low
10000, 36 months,3.5%,A,Fully Paid,car,15,720
5000, 60 months,18%,D,Charged Off,car,20,700
12000, 36 months,8%,B,Charged Off,other,30,700
2000, 36 months,1.5%,A,Charged Off,car,5,760
7000, 36 months,6%,B,Fully Paid,car,12,710
`

// writeArtifact saves a logistic model that leans on int_rate with the given sign.
func writeArtifact(t *testing.T, dir, version string, trained time.Time, weight float64) string {
	t.Helper()
	cols := features.DefaultSchema().Columns()
	coef := make([]float64, len(cols))
	for i, c := range cols {
		if c == features.InterestRate {
			coef[i] = weight
		}
	}
	path := filepath.Join(dir, version+".json")
	require.NoError(t, ml.SaveArtifact(path, &ml.Artifact{
		Family:    ml.FamilyLogReg,
		Version:   version,
		TrainedAt: trained,
		Features:  cols,
		Linear:    &ml.LinearParams{Coefficients: coef, Intercept: -2},
	}))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestModelctl_Lifecycle(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	src := t.TempDir()
	models := filepath.Join(t.TempDir(), "models")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	good := writeArtifact(t, src, "v1", base, 0.2)
	bad := writeArtifact(t, src, "v2", base.Add(time.Hour), -0.2)

	out, err := execute(t, "register", good, "--models", models, "--auc", "0.71", "--activate")
	require.NoError(t, err)
	assert.Contains(t, out, "registered v1")

	_, err = execute(t, "register", bad, "--models", models, "--activate=false")
	require.NoError(t, err)

	out, err = execute(t, "list", "--models", models)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "v2")
	assert.True(t, strings.HasPrefix(lines[2], "*"), "v1 is active: %q", lines[2])
	assert.Contains(t, lines[2], "0.7100")

	_, err = execute(t, "activate", "v2", "--models", models)
	require.NoError(t, err)
	out, err = execute(t, "rollback", "--models", models)
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back to v1")

	_, err = execute(t, "activate", "v9", "--models", models)
	assert.Error(t, err)

	data := filepath.Join(src, "ledger.csv")
	require.NoError(t, os.WriteFile(data, []byte(ledgerCSV), 0o600))
	out, err = execute(t, "leaderboard", "--models", models, "--data", data)
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "v1", "positive weight on int_rate ranks first")
	assert.Contains(t, lines[2], "v2")
}

func TestModelctl_Export(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(dir)
	require.NoError(t, err)

	now := time.Now().UTC()
	rec, err := store.StoreDecision(storage.DecisionRecord{Timestamp: now, LoanAmount: 4000, Decision: "APPROVE"})
	require.NoError(t, err)
	require.NoError(t, store.StoreFeatures(storage.FeatureRecord{
		DecisionID: rec.ID,
		Timestamp:  now,
		Features:   map[string]float64{features.FICO: 700},
	}))
	require.NoError(t, store.Close())

	output := filepath.Join(t.TempDir(), "training.jsonl")
	out, err := execute(t, "export", "--ledger", dir, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 examples")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var ex storage.TrainingExample
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &ex))
	assert.Equal(t, rec.ID, ex.DecisionID)
	assert.Equal(t, "APPROVE", ex.Decision.Decision)
	assert.Equal(t, 700.0, ex.Features[features.FICO])
}
