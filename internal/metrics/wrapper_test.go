package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestWrapper(t testing.TB) (*Metrics, *MetricsWrapper) {
	t.Helper()
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	return metrics, NewWrapper(metrics)
}

func TestNewWrapper(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.Metrics() != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestNewWithRegistry_RegistersOnlyOnItsRegistry(t *testing.T) {
	first := prometheus.NewRegistry()
	second := prometheus.NewRegistry()

	// Two instances on separate registries must not collide.
	NewWithRegistry(first)
	NewWithRegistry(second)

	n, err := testutil.GatherAndCount(first)
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if n == 0 {
		t.Error("Expected collectors registered on first registry")
	}
}

func TestMetricsWrapper_Decisions(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	wrapper.DecisionInc("APPROVE", "")
	wrapper.DecisionInc("REJECT", "credit_score")
	wrapper.DecisionInc("REJECT", "credit_score")
	wrapper.DecisionInc("REJECT", "model_risk")

	testCases := []struct {
		decision string
		reason   string
		want     float64
	}{
		{"APPROVE", "none", 1},
		{"REJECT", "credit_score", 2},
		{"REJECT", "model_risk", 1},
		{"REJECT", "indebtedness", 0},
	}
	for _, tc := range testCases {
		got := testutil.ToFloat64(metrics.DecisionsTotal.WithLabelValues(tc.decision, tc.reason))
		if got != tc.want {
			t.Errorf("decisions{%s,%s}: expected %v, got %v", tc.decision, tc.reason, tc.want, got)
		}
	}

	wrapper.ExpectedProfitObserve(612.5)
	wrapper.RecommendedLimitObserve(3000)
	wrapper.EvaluationDuration(2 * time.Millisecond)
	if n := testutil.CollectAndCount(metrics.ExpectedProfit); n != 1 {
		t.Errorf("Expected expected-profit histogram to be collected, got %d series", n)
	}

	wrapper.LedgerErrorsInc()
	if v := testutil.ToFloat64(metrics.LedgerErrors); v != 1 {
		t.Errorf("Expected 1 ledger error, got %f", v)
	}
}

func TestMetricsWrapper_MLMethods(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	wrapper.MLPredictionsInc()
	if v := testutil.ToFloat64(metrics.MLPredictions); v != 1 {
		t.Errorf("Expected 1 ML prediction, got %f", v)
	}

	wrapper.MLFailuresInc()
	if v := testutil.ToFloat64(metrics.MLFailures); v != 1 {
		t.Errorf("Expected 1 ML failure, got %f", v)
	}

	wrapper.MLTimeoutsInc()
	if v := testutil.ToFloat64(metrics.MLTimeouts); v != 1 {
		t.Errorf("Expected 1 ML timeout, got %f", v)
	}

	wrapper.MLModelAgeSet(3600.0)
	if v := testutil.ToFloat64(metrics.MLModelAge); v != 3600.0 {
		t.Errorf("Expected model age 3600.0, got %f", v)
	}

	wrapper.MLModelLoadedSet(true)
	if v := testutil.ToFloat64(metrics.MLModelLoaded); v != 1 {
		t.Errorf("Expected model loaded gauge 1, got %f", v)
	}
	wrapper.MLModelLoadedSet(false)
	if v := testutil.ToFloat64(metrics.MLModelLoaded); v != 0 {
		t.Errorf("Expected model loaded gauge 0, got %f", v)
	}

	wrapper.FeatureDriftSet("dti", 0.12)
	if v := testutil.ToFloat64(metrics.FeatureDrift.WithLabelValues("dti")); v != 0.12 {
		t.Errorf("Expected dti drift 0.12, got %f", v)
	}

	wrapper.MLLatencyObserve(0.25)
	wrapper.MLPredictionScoresObserve(0.05)
}

func TestMetricsWrapper_FeatureMethods(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	wrapper.FeatureErrorsInc()
	wrapper.UnknownCategoryInc("purpose")
	wrapper.UnknownCategoryInc("purpose")
	wrapper.ImputedFieldInc("annual_inc")
	wrapper.FeatureCalcDuration(15 * time.Microsecond)

	if v := testutil.ToFloat64(metrics.FeatureErrors); v != 1 {
		t.Errorf("Expected 1 feature error, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.UnknownCategories.WithLabelValues("purpose")); v != 2 {
		t.Errorf("Expected 2 unknown purposes, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ImputedFields.WithLabelValues("annual_inc")); v != 1 {
		t.Errorf("Expected 1 imputed annual_inc, got %f", v)
	}
}

func TestMetricsWrapper_SettingsAndServing(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	wrapper.SettingsObserve(0.2, 650, 35)
	wrapper.SettingsUpdatesInc()
	if v := testutil.ToFloat64(metrics.RiskThreshold); v != 0.2 {
		t.Errorf("Expected threshold 0.2, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MinFICO); v != 650 {
		t.Errorf("Expected min fico 650, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MaxDTI); v != 35 {
		t.Errorf("Expected max dti 35, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.SettingsUpdates); v != 1 {
		t.Errorf("Expected 1 settings update, got %f", v)
	}

	wrapper.HTTPObserve("/predict", http.StatusOK, time.Millisecond)
	wrapper.HTTPObserve("/predict", http.StatusBadRequest, time.Millisecond)
	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/predict", "400")); v != 1 {
		t.Errorf("Expected 1 bad request, got %f", v)
	}

	wrapper.ErrorsInc("SCHEMA_ERROR")
	if v := testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("SCHEMA_ERROR")); v != 1 {
		t.Errorf("Expected 1 schema error, got %f", v)
	}

	wrapper.WSClientsSet(3)
	if v := testutil.ToFloat64(metrics.WSClients); v != 3 {
		t.Errorf("Expected 3 ws clients, got %f", v)
	}
}

func TestGaugeWrapper_DirectUsage(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "Test gauge for unit tests",
	})

	wrapper := &GaugeWrapper{g: gauge}

	wrapper.Set(42.0)
	if v := testutil.ToFloat64(gauge); v != 42.0 {
		t.Errorf("Expected gauge value 42.0, got %f", v)
	}

	wrapper.Add(8.0)
	if v := testutil.ToFloat64(gauge); v != 50.0 {
		t.Errorf("Expected gauge value 50.0 after add, got %f", v)
	}
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics, wrapper := newTestWrapper(t)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				wrapper.MLPredictionsInc()
				wrapper.DecisionInc("APPROVE", "")
				wrapper.FeatureErrorsInc()
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	expected := 1000.0
	if v := testutil.ToFloat64(metrics.MLPredictions); v != expected {
		t.Errorf("Expected %f predictions after concurrent access, got %f", expected, v)
	}
	if v := testutil.ToFloat64(metrics.DecisionsTotal.WithLabelValues("APPROVE", "none")); v != expected {
		t.Errorf("Expected %f approvals after concurrent access, got %f", expected, v)
	}
}

func BenchmarkMetricsWrapper_DecisionInc(b *testing.B) {
	_, wrapper := newTestWrapper(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.DecisionInc("REJECT", "model_risk")
	}
}
