package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bnpl-risk/internal/api"
	"bnpl-risk/internal/cfg"
	"bnpl-risk/internal/dashboard"
	"bnpl-risk/internal/engine"
	"bnpl-risk/internal/features"
	"bnpl-risk/internal/metrics"
	"bnpl-risk/internal/ml"
	"bnpl-risk/internal/policy"
	"bnpl-risk/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	mw.SettingsObserve(c.Risk.Threshold, c.Risk.MinFICO, c.Risk.MaxDTI)

	schema, err := features.LoadSchema(c.SchemaPath)
	if err != nil {
		log.Fatal().Err(err).Str("schema_path", c.SchemaPath).Msg("schema load failed")
	}
	enc, err := features.NewEncoderWithMetrics(schema, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("encoder init failed")
	}

	scorer := ml.LoadScorer(ctx, c.ModelPath, ml.ScorerOptions{Timeout: c.ModelTimeout, Metrics: mw})
	if scorer.Available() {
		if err := scorer.CheckColumns(enc.Columns()); err != nil {
			log.Error().Err(err).Str("schema_version", schema.Version).Msg("model columns do not match the feature schema")
		}
	}

	settings, err := policy.NewStore(c.Risk)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid risk settings")
	}

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	dash := dashboard.New(dashboard.Options{
		Settings:       settings,
		Metrics:        mw,
		AllowedOrigins: c.AllowedOrigins,
	})

	engineOpts := engine.Options{
		Publisher:      dash,
		Metrics:        mw,
		RecordFeatures: c.RecordFeatures,
	}
	apiOpts := api.Options{
		Model:          scorer,
		Settings:       settings,
		Schema:         schema,
		Metrics:        mw,
		AllowedOrigins: c.AllowedOrigins,
		RateLimit:      c.RateLimit,
		RateBurst:      c.RateBurst,
	}
	// A nil pointer must not end up inside a non-nil interface.
	if store != nil {
		engineOpts.Recorder = store
		apiOpts.Ledger = store
	}
	if drift := initializeDrift(c, mw); drift != nil {
		engineOpts.Drift = drift
		apiOpts.Drift = drift
	}

	eng := engine.New(enc, scorer, settings, engineOpts)
	dash.SetSimulator(eng)
	apiOpts.Engine = eng
	server := api.NewServer(apiOpts)

	log.Info().
		Int("api_port", c.APIPort).
		Int("metrics_port", c.MetricsPort).
		Int("dashboard_port", c.DashboardPort).
		Bool("model_loaded", scorer.Available()).
		Float64("threshold", c.Risk.Threshold).
		Int("min_fico", c.Risk.MinFICO).
		Int("max_dti", c.Risk.MaxDTI).
		Msg("risk service starting")

	if err := dash.Start(c.DashboardPort); err != nil {
		log.Fatal().Err(err).Msg("dashboard start failed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve("scoring API", func() error { return server.Start(c.APIPort) })
	})
	g.Go(func() error {
		return startMetricsServer(gctx, c)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(server, dash)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("risk service stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("risk service stopped")
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if strings.EqualFold(c.LogFormat, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// initializeStorage opens the decision ledger. Without one the service
// still scores, it just does not remember.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// initializeDrift loads the drift baseline when one is configured. A bad
// baseline disables monitoring, never scoring.
func initializeDrift(c cfg.Settings, m ml.DriftMetrics) *ml.DriftMonitor {
	if c.DriftBaselinePath == "" {
		return nil
	}
	b, err := ml.LoadBaseline(c.DriftBaselinePath)
	if err != nil {
		log.Warn().Err(err).Str("path", c.DriftBaselinePath).Msg("drift baseline unavailable, continuing without drift monitoring")
		return nil
	}
	log.Info().
		Str("path", c.DriftBaselinePath).
		Str("baseline_model_version", b.ModelVersion).
		Int("features", len(b.Features)).
		Int("window", c.DriftWindow).
		Msg("drift monitoring enabled")
	return ml.NewDriftMonitor(b, c.DriftWindow, m)
}

// serve runs a blocking ListenAndServe and treats a graceful close as success.
func serve(name string, run func() error) error {
	if err := run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// startMetricsServer serves Prometheus metrics until ctx ends.
func startMetricsServer(ctx context.Context, c cfg.Settings) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()

	return serve("metrics server", server.ListenAndServe)
}

func shutdown(server *api.Server, dash *dashboard.Dashboard) error {
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scoring API shutdown: %w", err))
	}
	if err := dash.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dashboard shutdown: %w", err))
	}
	return errors.Join(errs...)
}
