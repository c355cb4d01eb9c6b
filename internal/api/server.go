// Package api serves the scoring HTTP API: single-applicant decisions,
// runtime risk settings, portfolio stats and model information.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/engine"
	"bnpl-risk/internal/features"
	"bnpl-risk/internal/ml"
	"bnpl-risk/internal/policy"
	"bnpl-risk/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// Evaluator runs the live decision pipeline.
type Evaluator interface {
	Process(ctx context.Context, a features.Applicant) (engine.Evaluation, error)
}

// ModelInfo reports on the loaded model.
type ModelInfo interface {
	Available() bool
	Metadata() ml.ModelMetadata
	Health() ml.HealthStatus
}

// Ledger is the read side of the decision store.
type Ledger interface {
	Stats(start, end time.Time) (storage.PortfolioStats, error)
	RecentDecisions(limit int) ([]storage.DecisionRecord, error)
}

// DriftReporter compares live traffic with the training baseline.
type DriftReporter interface {
	Report() ml.DriftReport
}

// MetricsInterface defines metrics methods needed by the API
type MetricsInterface interface {
	HTTPObserve(route string, code int, d time.Duration)
	ErrorsInc(code string)
	SettingsObserve(threshold float64, minFICO, maxDTI int)
	SettingsUpdatesInc()
}

type Options struct {
	Engine   Evaluator
	Model    ModelInfo
	Settings *policy.Store
	// Ledger may be nil when persistence is disabled.
	Ledger  Ledger
	Schema  *features.Schema
	Metrics MetricsInterface
	// Drift is nil when no baseline is configured.
	Drift          DriftReporter
	AllowedOrigins []string
	// RateLimit is requests per second per client on the scoring and
	// settings writes. Zero disables it.
	RateLimit float64
	RateBurst int
}

// Server provides the scoring HTTP API
type Server struct {
	opts   Options
	router chi.Router
	server *http.Server
}

func NewServer(opts Options) *Server {
	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.instrument)
	r.Use(cors(opts.AllowedOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(newRateLimiter(opts.RateLimit, opts.RateBurst).middleware)
		}
		r.Post("/predict", s.handlePredict)
		r.Post("/settings", s.handleUpdateSettings)
	})
	r.Get("/settings", s.handleGetSettings)
	r.Get("/stats", s.handleStats)
	r.Get("/decisions", s.handleDecisions)
	r.Get("/model/info", s.handleModelInfo)
	r.Get("/model/drift", s.handleDrift)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests on port.
func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", s.server.Addr).Msg("starting scoring API")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "active",
		"model_loaded":  s.opts.Model.Available(),
		"model_version": s.opts.Model.Metadata().Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.opts.Model.Health()

	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var a features.Applicant
	if err := decodeBody(w, r, &a); err != nil {
		s.writeError(w, err)
		return
	}

	ev, err := s.opts.Engine.Process(r.Context(), a)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if ev.ID != "" {
		w.Header().Set("X-Decision-ID", ev.ID)
	}
	writeJSON(w, http.StatusOK, ev.Result)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Settings.Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	patch := req.patch()
	if patch.Empty() {
		writeJSON(w, http.StatusOK, s.opts.Settings.Get())
		return
	}

	next, err := s.opts.Settings.Update(patch)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.SettingsUpdatesInc()
		s.opts.Metrics.SettingsObserve(next.Threshold, next.MinFICO, next.MaxDTI)
	}
	log.Info().
		Float64("threshold", next.Threshold).
		Int("min_fico", next.MinFICO).
		Int("max_dti", next.MaxDTI).
		Msg("Risk settings updated")

	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ledger == nil {
		writeJSON(w, http.StatusOK, storage.Summarize(nil))
		return
	}

	start, err := parseTimeParam(r, "from")
	if err != nil {
		s.writeError(w, err)
		return
	}
	end, err := parseTimeParam(r, "to")
	if err != nil {
		s.writeError(w, err)
		return
	}

	stats, err := s.opts.Ledger.Stats(start, end)
	if err != nil {
		s.writeError(w, fmt.Errorf("portfolio stats: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, common.SchemaError("limit", "must be an integer in [1, 1000], got %q", v))
			return
		}
		limit = n
	}

	recs := []storage.DecisionRecord{}
	if s.opts.Ledger != nil {
		got, err := s.opts.Ledger.RecentDecisions(limit)
		if err != nil {
			s.writeError(w, fmt.Errorf("recent decisions: %w", err))
			return
		}
		if got != nil {
			recs = got
		}
	}
	writeJSON(w, http.StatusOK, recs)
}

type modelInfoResponse struct {
	ml.ModelMetadata
	SchemaVersion string `json:"schema_version,omitempty"`
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if !s.opts.Model.Available() {
		s.writeError(w, fmt.Errorf("%w: no model loaded", common.ErrModelUnavailable))
		return
	}

	resp := modelInfoResponse{ModelMetadata: s.opts.Model.Metadata()}
	if s.opts.Schema != nil {
		resp.SchemaVersion = s.opts.Schema.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	if s.opts.Drift == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Drift.Report())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.SchemaError("body", "invalid JSON: %v", err)
	}
	return nil
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, common.SchemaError(name, "must be an RFC 3339 timestamp, got %q", v)
	}
	return t, nil
}
