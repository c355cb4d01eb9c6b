package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper adapts Metrics to the narrow interfaces declared by the
// features, ml, engine, api and dashboard packages.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Metrics returns the underlying collectors.
func (w *MetricsWrapper) Metrics() *Metrics {
	return w.m
}

func (w *MetricsWrapper) Decisions(decision, reason string) MetricsCounter {
	if reason == "" {
		reason = "none"
	}
	return &CounterWrapper{w.m.DecisionsTotal.WithLabelValues(decision, reason)}
}

func (w *MetricsWrapper) ModelAge() MetricsGauge {
	return &GaugeWrapper{w.m.MLModelAge}
}

func (w *MetricsWrapper) ExpectedProfit() MetricsHistogram {
	return &HistogramWrapper{w.m.ExpectedProfit}
}

// Scoring

func (w *MetricsWrapper) MLPredictionsInc()                   { w.m.MLPredictions.Inc() }
func (w *MetricsWrapper) MLFailuresInc()                      { w.m.MLFailures.Inc() }
func (w *MetricsWrapper) MLLatencyObserve(v float64)          { w.m.MLLatency.Observe(v) }
func (w *MetricsWrapper) MLModelAgeSet(v float64)             { w.ModelAge().Set(v) }
func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) { w.m.MLPredictionScores.Observe(v) }
func (w *MetricsWrapper) MLTimeoutsInc()                      { w.m.MLTimeouts.Inc() }

func (w *MetricsWrapper) FeatureDriftSet(feature string, psi float64) {
	w.m.FeatureDrift.WithLabelValues(feature).Set(psi)
}

func (w *MetricsWrapper) MLModelLoadedSet(loaded bool) {
	if loaded {
		w.m.MLModelLoaded.Set(1)
		return
	}
	w.m.MLModelLoaded.Set(0)
}

// Feature encoding

func (w *MetricsWrapper) FeatureErrorsInc() { w.m.FeatureErrors.Inc() }

func (w *MetricsWrapper) FeatureCalcDuration(d time.Duration) {
	w.m.FeatureLatency.Observe(d.Seconds())
}

func (w *MetricsWrapper) UnknownCategoryInc(attribute string) {
	w.m.UnknownCategories.WithLabelValues(attribute).Inc()
}

func (w *MetricsWrapper) ImputedFieldInc(field string) {
	w.m.ImputedFields.WithLabelValues(field).Inc()
}

// Decisions

func (w *MetricsWrapper) DecisionInc(decision, reason string) {
	w.Decisions(decision, reason).Inc()
}

func (w *MetricsWrapper) EvaluationDuration(d time.Duration) {
	w.m.EvaluationDuration.Observe(d.Seconds())
}

func (w *MetricsWrapper) ExpectedProfitObserve(v float64) { w.ExpectedProfit().Observe(v) }

func (w *MetricsWrapper) RecommendedLimitObserve(v float64) { w.m.RecommendedLimit.Observe(v) }

func (w *MetricsWrapper) LedgerErrorsInc() { w.m.LedgerErrors.Inc() }

// Settings

// SettingsObserve publishes the active risk settings.
func (w *MetricsWrapper) SettingsObserve(threshold float64, minFICO, maxDTI int) {
	w.m.RiskThreshold.Set(threshold)
	w.m.MinFICO.Set(float64(minFICO))
	w.m.MaxDTI.Set(float64(maxDTI))
}

func (w *MetricsWrapper) SettingsUpdatesInc() { w.m.SettingsUpdates.Inc() }

// Serving

func (w *MetricsWrapper) HTTPObserve(route string, code int, d time.Duration) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (w *MetricsWrapper) ErrorsInc(code string) {
	w.m.ErrorsTotal.WithLabelValues(code).Inc()
}

func (w *MetricsWrapper) WSClientsSet(n int) {
	w.m.WSClients.Set(float64(n))
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
