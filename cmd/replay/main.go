package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bnpl-risk/internal/cfg"
	"bnpl-risk/internal/engine"
	"bnpl-risk/internal/features"
	"bnpl-risk/internal/ml"
	"bnpl-risk/internal/policy"
	"bnpl-risk/internal/replay"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dataPath    = flag.String("data", "", "Loan ledger CSV to replay")
		modelPath   = flag.String("model", "", "Model artifact or models directory (overrides config)")
		schemaPath  = flag.String("schema", "", "Feature schema YAML (overrides config)")
		outputPath  = flag.String("output", "", "Output directory for reports")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		threshold   = flag.Float64("threshold", -1, "Risk threshold (overrides config)")
		minFICO     = flag.Int("min-fico", -1, "Minimum FICO (overrides config)")
		maxDTI      = flag.Int("max-dti", -1, "Maximum DTI (overrides config)")
		labeledOnly = flag.Bool("labeled-only", false, "Skip rows whose loan_status is not final")
		limit       = flag.Int("limit", 0, "Replay at most this many rows")
		workers     = flag.Int("workers", 0, "Concurrent evaluations (default GOMAXPROCS)")
		baselineOut = flag.String("baseline-out", "", "Write a drift baseline built from the replayed rows to this path")
		driftBins   = flag.Int("drift-bins", ml.DefaultDriftBins, "Quantile bins per feature in the drift baseline")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -data loans.csv [-output dir] [-threshold 0.15] [-min-fico 600] [-max-dti 40]")
		os.Exit(2)
	}

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *modelPath != "" {
		config.ModelPath = *modelPath
	}
	if *schemaPath != "" {
		config.SchemaPath = *schemaPath
	}

	var patch policy.SettingsPatch
	if *threshold >= 0 {
		patch.Threshold = threshold
	}
	if *minFICO >= 0 {
		patch.MinFICO = minFICO
	}
	if *maxDTI >= 0 {
		patch.MaxDTI = maxDTI
	}
	settings := patch.Apply(config.Risk)
	if err := settings.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid risk settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schema, err := features.LoadSchema(config.SchemaPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load feature schema")
	}
	enc, err := features.NewEncoder(schema)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build encoder")
	}
	scorer := ml.LoadScorer(ctx, config.ModelPath, ml.ScorerOptions{Timeout: config.ModelTimeout})
	if !scorer.Available() {
		log.Fatal().Err(scorer.LoadError()).Str("model_path", config.ModelPath).Msg("Model unavailable")
	}
	store, err := policy.NewStore(settings)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid risk settings")
	}
	eng := engine.New(enc, scorer, store, engine.Options{})

	fmt.Println("=== Replay Configuration ===")
	fmt.Printf("Data: %s\n", *dataPath)
	fmt.Printf("Model: %s (%s)\n", config.ModelPath, scorer.Metadata().Version)
	fmt.Printf("Settings: threshold=%.2f min_fico=%d max_dti=%d\n", settings.Threshold, settings.MinFICO, settings.MaxDTI)
	fmt.Println("============================")

	rows, stats, err := replay.LoadCSV(*dataPath, replay.LoadOptions{RequireLabel: *labeledOnly, Limit: *limit})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}
	if len(rows) == 0 {
		log.Fatal().Int("rows", stats.Rows).Msg("No rows to replay")
	}

	results, err := replay.Run(ctx, eng, rows, settings, replay.Options{Workers: *workers})
	if err != nil {
		log.Fatal().Err(err).Msg("Replay failed")
	}

	if *outputPath == "" {
		*outputPath = fmt.Sprintf("replay_results_%s", time.Now().Format("20060102_150405"))
	}
	reporter := replay.NewReporter(results, *outputPath)
	reporter.PrintSummary()

	if err := reporter.GenerateReport(); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate report")
	}
	fmt.Printf("Reports written to %s\n", *outputPath)

	if *baselineOut != "" {
		b, err := replay.Baseline(rows, results, enc, *driftBins)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build drift baseline")
		}
		if err := ml.SaveBaseline(*baselineOut, b); err != nil {
			log.Fatal().Err(err).Msg("Failed to save drift baseline")
		}
		log.Info().Str("path", *baselineOut).Int("features", len(b.Features)).Msg("Drift baseline written")
	}
}
