package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	VersionsFile     = "model_versions.json"
	ChampionArtifact = "champion_model.json"
)

// ModelVersion is one registered artifact in a models directory.
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	Family    Family       `json:"family"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics contains holdout metrics recorded by the training run
type ModelMetrics struct {
	AUCScore        float64 `json:"auc_score"`
	F1Score         float64 `json:"f1_score"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	ApprovalRate    float64 `json:"approval_rate"`
	TrainingSamples int     `json:"training_samples"`
}

// Registry handles model versioning and rollback for a models directory.
// Versions are kept newest first.
type Registry struct {
	mu           sync.Mutex
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
}

// OpenRegistry reads dir/model_versions.json if present.
func OpenRegistry(modelsDir string) (*Registry, error) {
	r := &Registry{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, VersionsFile),
	}
	if err := r.loadVersions(); err != nil {
		return nil, fmt.Errorf("failed to load model versions: %w", err)
	}
	return r, nil
}

// Register copies the artifact into the models directory under its version
// and records it. The new version is not activated.
func (r *Registry) Register(a *Artifact, metrics ModelMetrics) (ModelVersion, error) {
	if a.Version == "" {
		a.Version = time.Now().UTC().Format("20060102-150405")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.versions {
		if v.Version == a.Version {
			return ModelVersion{}, fmt.Errorf("version %s already registered", a.Version)
		}
	}

	if err := os.MkdirAll(r.modelsDir, 0o755); err != nil {
		return ModelVersion{}, fmt.Errorf("failed to create models directory: %w", err)
	}
	fileName := fmt.Sprintf("model_%s.json", a.Version)
	if err := SaveArtifact(filepath.Join(r.modelsDir, fileName), a); err != nil {
		return ModelVersion{}, err
	}

	created := a.TrainedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	v := ModelVersion{
		Version:   a.Version,
		Path:      fileName,
		Family:    a.Family,
		CreatedAt: created,
		Metrics:   metrics,
	}
	r.versions = append(r.versions, v)
	sort.SliceStable(r.versions, func(i, j int) bool {
		return r.versions[i].CreatedAt.After(r.versions[j].CreatedAt)
	})

	log.Info().Str("version", v.Version).Str("family", string(v.Family)).Msg("Model version registered")
	return v, r.saveVersions()
}

// Activate marks version as the one LoadScorer picks up on next start.
func (r *Registry) Activate(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activate(version)
}

func (r *Registry) activate(version string) error {
	found := false
	for i := range r.versions {
		r.versions[i].IsActive = r.versions[i].Version == version
		found = found || r.versions[i].IsActive
	}
	if !found {
		return fmt.Errorf("version %s not found", version)
	}
	return r.saveVersions()
}

// Rollback activates the version registered before the active one.
func (r *Registry) Rollback() (ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := -1
	for i, v := range r.versions {
		if v.IsActive {
			current = i
			break
		}
	}
	if current == -1 {
		return ModelVersion{}, fmt.Errorf("no active version found")
	}
	if current+1 >= len(r.versions) {
		return ModelVersion{}, fmt.Errorf("no previous version available for rollback")
	}

	prev := r.versions[current+1]
	if err := r.activate(prev.Version); err != nil {
		return ModelVersion{}, err
	}
	prev.IsActive = true
	return prev, nil
}

// Active returns the active version, if any.
func (r *Registry) Active() (ModelVersion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.IsActive {
			return v, true
		}
	}
	return ModelVersion{}, false
}

func (r *Registry) Versions() []ModelVersion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ModelVersion(nil), r.versions...)
}

// ArtifactPath is the absolute location of a version's artifact.
func (r *Registry) ArtifactPath(v ModelVersion) string {
	return resolvePath(r.modelsDir, v.Path)
}

func (r *Registry) loadVersions() error {
	data, err := os.ReadFile(r.versionsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &r.versions)
}

func (r *Registry) saveVersions() error {
	data, err := json.MarshalIndent(r.versions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.versionsFile, data, 0o600)
}

// ResolveModelPath maps a model path to an artifact file. A directory
// resolves to its registry's active version, else to champion_model.json.
func ResolveModelPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("model path %s: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	r, err := OpenRegistry(path)
	if err != nil {
		return "", err
	}
	if v, ok := r.Active(); ok {
		return r.ArtifactPath(v), nil
	}

	champion := filepath.Join(path, ChampionArtifact)
	if _, err := os.Stat(champion); err != nil {
		return "", fmt.Errorf("no active model version and no %s in %s", ChampionArtifact, path)
	}
	return champion, nil
}
