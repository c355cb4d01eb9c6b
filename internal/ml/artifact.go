package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Artifact is the persisted form of a trained model.
type Artifact struct {
	Family    Family             `json:"family"`
	Version   string             `json:"version"`
	TrainedAt time.Time          `json:"trained_at,omitempty"`
	Features  []string           `json:"features"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`

	Linear *LinearParams `json:"linear,omitempty"`
	Trees  *TreeParams   `json:"trees,omitempty"`
	Script *ScriptParams `json:"script,omitempty"`
}

// LoadArtifact reads and checks an artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}
	return &a, nil
}

// SaveArtifact writes a to path atomically.
func SaveArtifact(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model artifact: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write model artifact: %w", err)
	}
	return os.Rename(tmp, path)
}

// Validate checks the artifact carries parameters for its family.
func (a *Artifact) Validate() error {
	if len(a.Features) == 0 {
		return fmt.Errorf("artifact lists no features")
	}
	seen := make(map[string]struct{}, len(a.Features))
	for _, f := range a.Features {
		if _, dup := seen[f]; dup {
			return fmt.Errorf("duplicate feature %q", f)
		}
		seen[f] = struct{}{}
	}

	switch a.Family {
	case FamilyLogReg:
		if a.Linear == nil {
			return fmt.Errorf("%s artifact has no linear parameters", a.Family)
		}
	case FamilyLightGBM, FamilyXGBoost, FamilyCatBoost, FamilyRandomForest:
		if a.Trees == nil {
			return fmt.Errorf("%s artifact has no trees", a.Family)
		}
	case FamilyScript:
		if a.Script == nil {
			return fmt.Errorf("script artifact has no script parameters")
		}
	default:
		return fmt.Errorf("unknown model family %q", a.Family)
	}
	return nil
}

// BuildOptions carry what a backend needs beyond the artifact itself.
type BuildOptions struct {
	// BaseDir resolves relative paths in script artifacts.
	BaseDir string
	Timeout time.Duration
	Metrics MetricsInterface
}

// Model constructs the backend for the artifact's family.
func (a *Artifact) Model(opts BuildOptions) (Model, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	switch a.Family {
	case FamilyLogReg:
		return NewLinearModel(a.Features, *a.Linear)
	case FamilyScript:
		return NewScriptModel(a.Features, *a.Script, opts.BaseDir, opts.Timeout, opts.Metrics)
	default:
		return NewTreeEnsemble(a.Family, a.Features, *a.Trees)
	}
}

// Metadata describes the artifact without its parameters.
func (a *Artifact) Metadata(path string) ModelMetadata {
	family := a.Family
	if a.Family == FamilyScript && a.Script.Family != "" {
		family = a.Script.Family
	}
	return ModelMetadata{
		Family:    family,
		Backend:   a.Family,
		Version:   a.Version,
		TrainedAt: a.TrainedAt,
		Features:  copyStrings(a.Features),
		Metrics:   a.Metrics,
		Path:      filepath.Clean(path),
	}
}
