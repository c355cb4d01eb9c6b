// Package metrics provides Prometheus metrics collection for the risk decision
// service. It defines the scoring, decision, encoder and serving metrics that
// are exposed via the Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Decision metrics
	DecisionsTotal     *prometheus.CounterVec // Decisions by outcome and gate
	EvaluationDuration prometheus.Histogram   // End-to-end pipeline latency
	ExpectedProfit     prometheus.Histogram   // Expected profit per evaluated application
	RecommendedLimit   prometheus.Histogram   // Recommended limit per approval
	LedgerErrors       prometheus.Counter     // Failed decision ledger writes

	// Model metrics
	MLPredictions      prometheus.Counter   // Total number of successful predictions
	MLFailures         prometheus.Counter   // Total number of failed predictions
	MLModelAge         prometheus.Gauge     // Age of the loaded model in seconds
	MLModelLoaded      prometheus.Gauge     // 1 when a model is loaded
	MLLatency          prometheus.Histogram // Prediction latency in seconds
	MLPredictionScores prometheus.Histogram // Distribution of predicted default probabilities
	MLTimeouts         prometheus.Counter   // Script backend timeouts
	FeatureDrift       *prometheus.GaugeVec // PSI of live inputs against the baseline

	// Feature encoding metrics
	FeatureErrors     prometheus.Counter     // Applicants rejected by the encoder
	FeatureLatency    prometheus.Histogram   // Encoding latency in seconds
	UnknownCategories *prometheus.CounterVec // Category values outside the training set
	ImputedFields     *prometheus.CounterVec // Numeric fields filled with the training median

	// Settings metrics
	SettingsUpdates prometheus.Counter
	RiskThreshold   prometheus.Gauge
	MinFICO         prometheus.Gauge
	MaxDTI          prometheus.Gauge

	// Serving metrics
	HTTPRequests *prometheus.CounterVec   // Requests by route and status code
	HTTPDuration *prometheus.HistogramVec // Request latency by route
	ErrorsTotal  *prometheus.CounterVec   // Errors returned to callers by error code
	WSClients    prometheus.Gauge         // Connected dashboard websocket clients
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_decisions_total",
			Help: "Total number of credit decisions by decision and reason",
		}, []string{"decision", "reason"}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_evaluation_duration_seconds",
			Help:    "Duration of encode, score and decide for one application",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		ExpectedProfit: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_expected_profit",
			Help:    "Expected profit per evaluated application",
			Buckets: []float64{-5000, -1000, -500, -100, 0, 100, 250, 500, 1000, 2500},
		}),
		RecommendedLimit: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_recommended_limit",
			Help:    "Recommended credit limit per approved application",
			Buckets: []float64{0, 500, 1000, 3000, 5000},
		}),
		LedgerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_ledger_errors_total",
			Help: "Total number of failed decision ledger writes",
		}),
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of ML predictions made",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of ML prediction failures",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the current ML model in seconds",
		}),
		MLModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_loaded",
			Help: "Whether a model is loaded (1) or scoring is disabled (0)",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "ML prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of predicted default probabilities",
			Buckets: []float64{0.02, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 0.75, 1.0},
		}),
		MLTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_timeouts_total",
			Help: "Total number of ML prediction timeouts",
		}),
		FeatureDrift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ml_feature_drift_psi",
			Help: "Population stability index of live inputs against the drift baseline, by feature",
		}, []string{"feature"}),
		FeatureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_errors_total",
			Help: "Total number of applicants rejected by the feature encoder",
		}),
		FeatureLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feature_encode_duration_seconds",
			Help:    "Feature encoding latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		UnknownCategories: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feature_unknown_categories_total",
			Help: "Categorical values not seen at training time, by attribute",
		}, []string{"attribute"}),
		ImputedFields: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feature_imputed_fields_total",
			Help: "Numeric fields filled with the training median, by field",
		}, []string{"field"}),
		SettingsUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_settings_updates_total",
			Help: "Total number of accepted risk settings updates",
		}),
		RiskThreshold: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_settings_threshold",
			Help: "Current maximum default probability for approval",
		}),
		MinFICO: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_settings_min_fico",
			Help: "Current minimum FICO score",
		}),
		MaxDTI: factory.NewGauge(prometheus.GaugeOpts{
			Name: "risk_settings_max_dti",
			Help: "Current maximum debt-to-income ratio",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors returned to callers by error code",
		}, []string{"code"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_ws_clients",
			Help: "Number of connected dashboard websocket clients",
		}),
	}
}
