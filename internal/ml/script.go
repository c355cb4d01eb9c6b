package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ScriptParams point at an external runtime that can read the artifact.
// Relative paths resolve against the artifact file's directory.
type ScriptParams struct {
	Interpreter string   `json:"interpreter,omitempty"`
	Script      string   `json:"script"`
	Artifact    string   `json:"artifact"`
	Args        []string `json:"args,omitempty"`
	// Family is the classifier the script wraps, reported in metadata.
	Family Family `json:"family,omitempty"`
}

type scriptRequest struct {
	Features map[string]float64 `json:"features"`
}

type scriptResponse struct {
	Probability   *float64  `json:"probability,omitempty"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// ScriptModel runs one subprocess per prediction: the request goes in on
// stdin as {"features": {name: value}} and the script answers with
// {"probability": p} or {"probabilities": [p0, p1]}.
type ScriptModel struct {
	features    []string
	interpreter string
	script      string
	artifact    string
	args        []string
	wraps       Family
	timeout     time.Duration
	metrics     MetricsInterface
}

// NewScriptModel resolves the interpreter and script but does not run them.
func NewScriptModel(features []string, p ScriptParams, baseDir string, timeout time.Duration, metrics MetricsInterface) (*ScriptModel, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("script model has no features")
	}
	if p.Script == "" {
		return nil, fmt.Errorf("script model has no script")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	script := resolvePath(baseDir, p.Script)
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("inference script not accessible: %w", err)
	}

	artifact := ""
	if p.Artifact != "" {
		artifact = resolvePath(baseDir, p.Artifact)
		if _, err := os.Stat(artifact); err != nil {
			return nil, fmt.Errorf("model file not accessible: %w", err)
		}
	}

	interpreter, err := findInterpreter(p.Interpreter)
	if err != nil {
		return nil, err
	}

	return &ScriptModel{
		features:    copyStrings(features),
		interpreter: interpreter,
		script:      script,
		artifact:    artifact,
		args:        append([]string(nil), p.Args...),
		wraps:       p.Family,
		timeout:     timeout,
		metrics:     metrics,
	}, nil
}

func (m *ScriptModel) Family() Family { return FamilyScript }

// Wraps returns the classifier family behind the script, if declared.
func (m *ScriptModel) Wraps() Family { return m.wraps }

func (m *ScriptModel) Features() []string { return copyStrings(m.features) }

func (m *ScriptModel) PredictProbability(ctx context.Context, x []float64) (float64, error) {
	if len(x) != len(m.features) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.features), len(x))
	}

	req := scriptRequest{Features: make(map[string]float64, len(x))}
	for i, name := range m.features {
		req.Features[name] = x[i]
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.interpreter, m.commandArgs()...)
	cmd.Stdin = bytes.NewReader(reqJSON)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("interpreter", m.interpreter).
			Str("script", m.script).
			Str("artifact", m.artifact).
			Str("stderr", stderr.String()).
			Dur("timeout", m.timeout).
			Bool("context_cancelled", ctx.Err() != nil).
			Msg("Inference script execution failed")

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if m.metrics != nil {
				m.metrics.MLTimeoutsInc()
			}
			return 0, fmt.Errorf("prediction timeout after %v", m.timeout)
		}
		if msg := parseScriptError(stdout.Bytes()); msg != "" {
			return 0, fmt.Errorf("inference script error: %s", msg)
		}
		return 0, fmt.Errorf("inference script failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	var resp scriptResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w, stdout: %s", err, stdout.String())
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("inference script error: %s", resp.Error)
	}

	switch {
	case resp.Probability != nil:
		return *resp.Probability, nil
	case len(resp.Probabilities) == 2:
		return resp.Probabilities[1], nil
	default:
		return 0, fmt.Errorf("expected probability or 2 probabilities, got %d", len(resp.Probabilities))
	}
}

// HealthCheck scores an all-zero vector once.
func (m *ScriptModel) HealthCheck(ctx context.Context) error {
	p, err := m.PredictProbability(ctx, make([]float64, len(m.features)))
	if err != nil {
		return err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("health check returned invalid probability %v", p)
	}
	return nil
}

func (m *ScriptModel) commandArgs() []string {
	args := []string{m.script}
	if m.artifact != "" {
		args = append(args, m.artifact)
	}
	return append(args, m.args...)
}

func parseScriptError(out []byte) string {
	var resp scriptResponse
	if json.Unmarshal(out, &resp) == nil {
		return resp.Error
	}
	return ""
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

// findInterpreter honours an explicit interpreter, then a virtualenv, then
// python3/python on PATH.
func findInterpreter(explicit string) (string, error) {
	if explicit != "" {
		path, err := exec.LookPath(explicit)
		if err != nil {
			return "", fmt.Errorf("interpreter %q not found: %w", explicit, err)
		}
		return path, nil
	}

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		for _, candidate := range []string{
			filepath.Join(venv, "bin", "python3"),
			filepath.Join(venv, "bin", "python"),
			filepath.Join(venv, "Scripts", "python.exe"),
		} {
			if _, err := os.Stat(candidate); err == nil {
				log.Info().Str("python_path", candidate).Msg("Using virtual environment Python")
				return candidate, nil
			}
		}
	}

	for _, candidate := range []string{"python3", "python"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no suitable Python 3 executable found")
}
