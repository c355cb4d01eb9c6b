package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"bnpl-risk/internal/features"

	"github.com/rs/zerolog/log"
)

// ScoreFeature is the baseline key under which the model's own probability
// is tracked next to the input features.
const ScoreFeature = "model_probability"

const (
	DefaultDriftBins   = 10
	DefaultDriftWindow = 1000

	// minDriftSamples is the smallest sample that gets a PSI at all.
	minDriftSamples = 30
	// psiFloor stands in for empty bins so the log term stays finite.
	psiFloor = 1e-4
)

// DriftSeverity buckets a PSI with the usual credit-scoring cut-offs.
type DriftSeverity string

const (
	DriftWarmingUp   DriftSeverity = "warming_up"
	DriftStable      DriftSeverity = "stable"
	DriftModerate    DriftSeverity = "moderate"
	DriftSignificant DriftSeverity = "significant"
)

func severityFor(psi float64) DriftSeverity {
	switch {
	case psi < 0.1:
		return DriftStable
	case psi < 0.25:
		return DriftModerate
	default:
		return DriftSignificant
	}
}

// FeatureBaseline is the reference distribution of one feature: interior
// quantile cut points and the share of reference samples in each bin.
// Bin i holds values in (Edges[i-1], Edges[i]].
type FeatureBaseline struct {
	Edges       []float64 `json:"edges"`
	Proportions []float64 `json:"proportions"`
	SampleCount int       `json:"sample_count"`
}

// DriftBaseline is what live traffic is compared against.
type DriftBaseline struct {
	CreatedAt    time.Time                  `json:"created_at"`
	ModelVersion string                     `json:"model_version,omitempty"`
	Features     map[string]FeatureBaseline `json:"features"`
}

// BuildBaseline bins each sample into at most bins quantile buckets.
// Features with fewer than 30 samples are left out.
func BuildBaseline(samples map[string][]float64, bins int) (*DriftBaseline, error) {
	if bins < 2 {
		bins = DefaultDriftBins
	}

	b := &DriftBaseline{CreatedAt: time.Now().UTC(), Features: make(map[string]FeatureBaseline)}
	for name, values := range samples {
		clean := finite(values)
		if len(clean) < minDriftSamples {
			log.Debug().Str("feature", name).Int("samples", len(clean)).Msg("Too few samples for drift baseline")
			continue
		}
		sort.Float64s(clean)

		var edges []float64
		for i := 1; i < bins; i++ {
			q := clean[(i*len(clean))/bins]
			if len(edges) == 0 || q > edges[len(edges)-1] {
				edges = append(edges, q)
			}
		}
		b.Features[name] = FeatureBaseline{
			Edges:       edges,
			Proportions: proportions(edges, clean),
			SampleCount: len(clean),
		}
	}

	if len(b.Features) == 0 {
		return nil, fmt.Errorf("no feature has the %d samples a drift baseline needs", minDriftSamples)
	}
	return b, nil
}

// SaveBaseline writes b as JSON.
func SaveBaseline(path string, b *DriftBaseline) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadBaseline reads a baseline written by SaveBaseline.
func LoadBaseline(path string) (*DriftBaseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read drift baseline: %w", err)
	}
	var b DriftBaseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse drift baseline: %w", err)
	}
	for name, f := range b.Features {
		if len(f.Proportions) != len(f.Edges)+1 {
			return nil, fmt.Errorf("drift baseline %s: %d proportions for %d edges", name, len(f.Proportions), len(f.Edges))
		}
	}
	return &b, nil
}

// PSI is the population stability index of actual against expected bin
// shares.
func PSI(expected, actual []float64) float64 {
	psi := 0.0
	for i := range expected {
		if i >= len(actual) {
			break
		}
		e := math.Max(expected[i], psiFloor)
		a := math.Max(actual[i], psiFloor)
		psi += (a - e) * math.Log(a/e)
	}
	return psi
}

func proportions(edges, values []float64) []float64 {
	counts := make([]float64, len(edges)+1)
	for _, v := range values {
		counts[sort.SearchFloat64s(edges, v)]++
	}
	if len(values) > 0 {
		for i := range counts {
			counts[i] /= float64(len(values))
		}
	}
	return counts
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// DriftMetrics receives the PSI of each monitored feature.
type DriftMetrics interface {
	FeatureDriftSet(feature string, psi float64)
}

// FeatureDrift is one feature's standing in a drift report.
type FeatureDrift struct {
	Feature  string        `json:"feature"`
	PSI      float64       `json:"psi"`
	Severity DriftSeverity `json:"severity"`
	Samples  int           `json:"samples"`
}

// DriftReport compares the live window with the baseline.
type DriftReport struct {
	BaselineVersion string         `json:"baseline_model_version,omitempty"`
	BaselineCreated time.Time      `json:"baseline_created_at"`
	Window          int            `json:"window"`
	Observed        int64          `json:"observed"`
	Status          DriftSeverity  `json:"status"`
	Features        []FeatureDrift `json:"features"`
}

// DriftMonitor keeps a rolling window of live values per baseline feature.
type DriftMonitor struct {
	mu       sync.Mutex
	baseline *DriftBaseline
	window   int
	samples  map[string][]float64
	next     map[string]int
	observed int64
	metrics  DriftMetrics
}

func NewDriftMonitor(b *DriftBaseline, window int, m DriftMetrics) *DriftMonitor {
	if window < minDriftSamples {
		window = DefaultDriftWindow
	}
	d := &DriftMonitor{
		baseline: b,
		window:   window,
		samples:  make(map[string][]float64, len(b.Features)),
		next:     make(map[string]int, len(b.Features)),
		metrics:  m,
	}
	for name := range b.Features {
		d.samples[name] = make([]float64, 0, window)
	}
	return d
}

// Observe adds one scored vector to the window.
func (d *DriftMonitor) Observe(v features.Vector, probability float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observed++
	for name := range d.baseline.Features {
		var x float64
		if name == ScoreFeature {
			x = probability
		} else {
			var ok bool
			if x, ok = v.Get(name); !ok {
				continue
			}
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}

		buf := d.samples[name]
		if len(buf) < d.window {
			d.samples[name] = append(buf, x)
			continue
		}
		buf[d.next[name]] = x
		d.next[name] = (d.next[name] + 1) % d.window
	}
}

// Report computes the PSI of every feature with enough live samples, worst
// first, and pushes the values to metrics.
func (d *DriftMonitor) Report() DriftReport {
	d.mu.Lock()
	rep := DriftReport{
		BaselineVersion: d.baseline.ModelVersion,
		BaselineCreated: d.baseline.CreatedAt,
		Window:          d.window,
		Observed:        d.observed,
		Status:          DriftWarmingUp,
	}
	for name, fb := range d.baseline.Features {
		live := d.samples[name]
		fd := FeatureDrift{Feature: name, Samples: len(live), Severity: DriftWarmingUp}
		if len(live) >= minDriftSamples {
			fd.PSI = PSI(fb.Proportions, proportions(fb.Edges, live))
			fd.Severity = severityFor(fd.PSI)
		}
		rep.Features = append(rep.Features, fd)
	}
	d.mu.Unlock()

	sort.Slice(rep.Features, func(i, j int) bool {
		if rep.Features[i].PSI != rep.Features[j].PSI {
			return rep.Features[i].PSI > rep.Features[j].PSI
		}
		return rep.Features[i].Feature < rep.Features[j].Feature
	})

	for _, f := range rep.Features {
		if f.Severity == DriftWarmingUp {
			continue
		}
		if d.metrics != nil {
			d.metrics.FeatureDriftSet(f.Feature, f.PSI)
		}
		if rep.Status == DriftWarmingUp || rank(f.Severity) > rank(rep.Status) {
			rep.Status = f.Severity
		}
	}
	return rep
}

func rank(s DriftSeverity) int {
	switch s {
	case DriftStable:
		return 1
	case DriftModerate:
		return 2
	case DriftSignificant:
		return 3
	}
	return 0
}
