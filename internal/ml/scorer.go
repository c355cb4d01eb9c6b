package ml

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/features"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the scorer
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLPredictionScoresObserve(float64)
	MLTimeoutsInc()
	MLModelLoadedSet(bool)
}

// ModelMetadata contains information about the loaded model
type ModelMetadata struct {
	Family    Family             `json:"family"`
	Backend   Family             `json:"backend"`
	Version   string             `json:"version"`
	TrainedAt time.Time          `json:"trained_at,omitempty"`
	Features  []string           `json:"features"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Path      string             `json:"path,omitempty"`
	LoadedAt  time.Time          `json:"loaded_at"`
}

type HealthStatus struct {
	Healthy         bool    `json:"healthy"`
	ModelLoaded     bool    `json:"model_loaded"`
	ModelFamily     Family  `json:"model_family,omitempty"`
	ModelVersion    string  `json:"model_version,omitempty"`
	PredictionCount int64   `json:"prediction_count"`
	ErrorCount      int64   `json:"error_count"`
	ErrorRate       float64 `json:"error_rate"`
	LastError       string  `json:"last_error,omitempty"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

type ScorerOptions struct {
	// Timeout bounds one prediction of a script backend.
	Timeout time.Duration
	Metrics MetricsInterface
}

// Scorer wraps the one model loaded at startup. A scorer whose load failed
// stays unavailable for the life of the process.
type Scorer struct {
	model    Model
	metadata ModelMetadata
	loadErr  error
	features []string
	metrics  MetricsInterface

	// *features.Layout -> []int, model column i reads vector column perm[i]
	perms sync.Map

	predictions atomic.Int64
	errors      atomic.Int64
	lastError   atomic.Pointer[string]
	started     time.Time
}

// LoadScorer loads the artifact at path, or the active version when path is
// a models directory. Failures are logged and leave the scorer unavailable.
func LoadScorer(ctx context.Context, path string, opts ScorerOptions) *Scorer {
	s := &Scorer{metrics: opts.Metrics, started: time.Now()}

	m, meta, err := loadModel(ctx, path, opts)
	if err != nil {
		s.loadErr = err
		log.Warn().Err(err).Str("model_path", path).Msg("Model not loaded, scoring disabled")
		if s.metrics != nil {
			s.metrics.MLModelLoadedSet(false)
		}
		return s
	}

	s.install(m, meta)
	log.Info().
		Str("model_path", meta.Path).
		Str("family", string(meta.Family)).
		Str("version", meta.Version).
		Int("features", len(meta.Features)).
		Msg("Model loaded successfully")
	return s
}

func loadModel(ctx context.Context, path string, opts ScorerOptions) (Model, ModelMetadata, error) {
	resolved, err := ResolveModelPath(path)
	if err != nil {
		return nil, ModelMetadata{}, err
	}

	a, err := LoadArtifact(resolved)
	if err != nil {
		return nil, ModelMetadata{}, err
	}

	m, err := a.Model(BuildOptions{
		BaseDir: filepath.Dir(resolved),
		Timeout: opts.Timeout,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, ModelMetadata{}, fmt.Errorf("failed to build %s model: %w", a.Family, err)
	}

	if hc, ok := m.(HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return nil, ModelMetadata{}, fmt.Errorf("model health check failed: %w", err)
		}
	}

	meta := a.Metadata(resolved)
	if meta.TrainedAt.IsZero() {
		if info, err := os.Stat(resolved); err == nil {
			meta.TrainedAt = info.ModTime()
		}
	}
	return m, meta, nil
}

// NewScorer wraps an already constructed model.
func NewScorer(m Model, meta ModelMetadata, metrics MetricsInterface) (*Scorer, error) {
	if m == nil {
		return nil, fmt.Errorf("nil model")
	}
	seen := make(map[string]struct{})
	for _, f := range m.Features() {
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("duplicate model feature %q", f)
		}
		seen[f] = struct{}{}
	}

	s := &Scorer{metrics: metrics, started: time.Now()}
	s.install(m, meta)
	return s, nil
}

// UnavailableScorer is a scorer that fails every call with reason.
func UnavailableScorer(reason error, metrics MetricsInterface) *Scorer {
	if metrics != nil {
		metrics.MLModelLoadedSet(false)
	}
	return &Scorer{loadErr: reason, metrics: metrics, started: time.Now()}
}

func (s *Scorer) install(m Model, meta ModelMetadata) {
	if meta.Family == "" {
		meta.Family = m.Family()
	}
	if meta.Backend == "" {
		meta.Backend = m.Family()
	}
	meta.Features = m.Features()
	meta.LoadedAt = time.Now()

	s.model = m
	s.metadata = meta
	s.features = meta.Features

	if s.metrics != nil {
		s.metrics.MLModelLoadedSet(true)
		if !meta.TrainedAt.IsZero() {
			s.metrics.MLModelAgeSet(time.Since(meta.TrainedAt).Seconds())
		}
	}
}

func (s *Scorer) Available() bool { return s.model != nil }

// LoadError is the reason the scorer is unavailable, or nil.
func (s *Scorer) LoadError() error { return s.loadErr }

func (s *Scorer) Metadata() ModelMetadata {
	meta := s.metadata
	meta.Features = copyStrings(s.metadata.Features)
	return meta
}

// Score returns P(default) for v. Columns are matched by name, so v may use
// any order as long as its column set equals the model's.
func (s *Scorer) Score(ctx context.Context, v features.Vector) (float64, error) {
	if s.model == nil {
		err := fmt.Errorf("%w: %v", common.ErrModelUnavailable, s.loadErr)
		s.recordError(err)
		return 0, err
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	perm, err := s.permutation(v.Layout())
	if err != nil {
		err = fmt.Errorf("%w: %v", common.ErrInference, err)
		s.recordError(err)
		return 0, err
	}

	x := make([]float64, len(perm))
	for i, j := range perm {
		x[i] = v.At(j)
	}

	p, err := s.model.PredictProbability(ctx, x)
	if err != nil {
		err = fmt.Errorf("%w: %s backend: %v", common.ErrInference, s.metadata.Backend, err)
		s.recordError(err)
		return 0, err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		err = fmt.Errorf("%w: model returned probability %v outside [0, 1]", common.ErrInference, p)
		s.recordError(err)
		return 0, err
	}

	s.predictions.Add(1)
	if s.metrics != nil {
		s.metrics.MLPredictionsInc()
		s.metrics.MLPredictionScoresObserve(p)
	}

	log.Debug().
		Float64("probability", p).
		Str("model_version", s.metadata.Version).
		Msg("Prediction successful")
	return p, nil
}

// CheckColumns reports whether vectors with these columns can be scored.
func (s *Scorer) CheckColumns(columns []string) error {
	if s.model == nil {
		return fmt.Errorf("%w: %v", common.ErrModelUnavailable, s.loadErr)
	}
	layout, err := features.NewLayout(columns)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInference, err)
	}
	if _, err := s.permutation(layout); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInference, err)
	}
	return nil
}

func (s *Scorer) permutation(layout *features.Layout) ([]int, error) {
	if layout == nil {
		return nil, fmt.Errorf("empty feature vector")
	}
	if cached, ok := s.perms.Load(layout); ok {
		return cached.([]int), nil
	}

	perm := make([]int, len(s.features))
	var missing []string
	for i, name := range s.features {
		j, ok := layout.Index(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		perm[i] = j
	}

	if len(missing) > 0 || layout.Len() != len(s.features) {
		return nil, columnMismatch(missing, unexpectedColumns(layout.Names(), s.features))
	}

	s.perms.Store(layout, perm)
	return perm, nil
}

func unexpectedColumns(got, want []string) []string {
	known := make(map[string]struct{}, len(want))
	for _, w := range want {
		known[w] = struct{}{}
	}
	var extra []string
	for _, g := range got {
		if _, ok := known[g]; !ok {
			extra = append(extra, g)
		}
	}
	return extra
}

func columnMismatch(missing, unexpected []string) error {
	sort.Strings(missing)
	sort.Strings(unexpected)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(unexpected, ", "))
	}
	return fmt.Errorf("feature columns do not match model: %s", strings.Join(parts, "; "))
}

func (s *Scorer) recordError(err error) {
	s.errors.Add(1)
	msg := err.Error()
	s.lastError.Store(&msg)
	if s.metrics != nil {
		s.metrics.MLFailuresInc()
	}
}

func (s *Scorer) Health() HealthStatus {
	h := HealthStatus{
		Healthy:         s.model != nil,
		ModelLoaded:     s.model != nil,
		ModelFamily:     s.metadata.Family,
		ModelVersion:    s.metadata.Version,
		PredictionCount: s.predictions.Load(),
		ErrorCount:      s.errors.Load(),
		UptimeSeconds:   time.Since(s.started).Seconds(),
	}
	if total := h.PredictionCount + h.ErrorCount; total > 0 {
		h.ErrorRate = float64(h.ErrorCount) / float64(total)
	}
	if last := s.lastError.Load(); last != nil {
		h.LastError = *last
	} else if s.loadErr != nil {
		h.LastError = s.loadErr.Error()
	}
	return h
}
