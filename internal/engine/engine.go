// Package engine composes the risk pipeline: encode the applicant, score the
// vector, run the decision rules and price the outcome.
package engine

import (
	"context"
	"fmt"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/features"
	"bnpl-risk/internal/ml"
	"bnpl-risk/internal/policy"
	"bnpl-risk/internal/storage"

	"github.com/rs/zerolog/log"
)

// Result is what a caller of the scoring API sees.
type Result struct {
	ProbabilityOfDefault float64         `json:"probability_of_default"`
	Decision             policy.Decision `json:"decision"`
	RecommendedLimit     int             `json:"recommended_limit"`
	ExpectedProfit       float64         `json:"expected_profit"`
}

// Evaluation is a Result plus everything needed to explain it.
type Evaluation struct {
	Result
	ID string `json:"id,omitempty"`
	// ModelProbability is the model's own estimate. ProbabilityOfDefault is
	// forced to 1.0 when a hard gate rejects an applicant the model would
	// have approved.
	ModelProbability float64            `json:"model_probability"`
	Reason           policy.Reason      `json:"reason,omitempty"`
	Settings         policy.Settings    `json:"settings"`
	ModelVersion     string             `json:"model_version,omitempty"`
	EvaluatedAt      time.Time          `json:"evaluated_at"`
	Applicant        features.Applicant `json:"applicant"`
}

type Encoder interface {
	Encode(features.Applicant) (features.Vector, error)
	Schema() *features.Schema
}

type Scorer interface {
	Score(ctx context.Context, v features.Vector) (float64, error)
	Metadata() ml.ModelMetadata
}

// Recorder persists live decisions.
type Recorder interface {
	StoreDecision(storage.DecisionRecord) (storage.DecisionRecord, error)
	StoreFeatures(storage.FeatureRecord) error
}

// Publisher fans live decisions out to subscribers.
type Publisher interface {
	Publish(Evaluation)
}

// DriftObserver watches the distribution of scored traffic.
type DriftObserver interface {
	Observe(v features.Vector, probability float64)
}

// MetricsInterface defines metrics methods needed by the engine
type MetricsInterface interface {
	DecisionInc(decision, reason string)
	EvaluationDuration(time.Duration)
	ExpectedProfitObserve(float64)
	RecommendedLimitObserve(float64)
	LedgerErrorsInc()
}

type Options struct {
	Recorder  Recorder
	Publisher Publisher
	Metrics   MetricsInterface
	Drift     DriftObserver
	// RecordFeatures also stores the encoded vector of each live decision.
	RecordFeatures bool
}

type Engine struct {
	encoder  Encoder
	scorer   Scorer
	settings *policy.Store
	opts     Options
	now      func() time.Time
}

func New(enc Encoder, sc Scorer, settings *policy.Store, opts Options) *Engine {
	return &Engine{
		encoder:  enc,
		scorer:   sc,
		settings: settings,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Settings is the live settings store.
func (e *Engine) Settings() *policy.Store { return e.settings }

// Evaluate runs the pipeline against an explicit settings snapshot. It has
// no side effects.
func (e *Engine) Evaluate(ctx context.Context, a features.Applicant, s policy.Settings) (Evaluation, error) {
	ev, _, err := e.evaluate(ctx, a, s)
	return ev, err
}

// Process evaluates against the current settings, records the decision in
// the ledger and publishes it. Ledger failures are logged and do not fail
// the evaluation.
func (e *Engine) Process(ctx context.Context, a features.Applicant) (Evaluation, error) {
	start := time.Now()
	ev, v, err := e.evaluate(ctx, a, e.settings.Get())
	if err != nil {
		return Evaluation{}, err
	}

	if e.opts.Recorder != nil {
		e.record(&ev, v)
	}
	if e.opts.Drift != nil {
		e.opts.Drift.Observe(v, ev.ModelProbability)
	}

	if m := e.opts.Metrics; m != nil {
		m.DecisionInc(string(ev.Decision), string(ev.Reason))
		m.ExpectedProfitObserve(ev.ExpectedProfit)
		if ev.Decision == policy.Approve {
			m.RecommendedLimitObserve(float64(ev.RecommendedLimit))
		}
		m.EvaluationDuration(time.Since(start))
	}

	if e.opts.Publisher != nil {
		e.opts.Publisher.Publish(ev)
	}

	log.Debug().
		Str("id", ev.ID).
		Str("decision", string(ev.Decision)).
		Str("reason", string(ev.Reason)).
		Float64("model_probability", ev.ModelProbability).
		Int("recommended_limit", ev.RecommendedLimit).
		Msg("Application processed")

	return ev, nil
}

func (e *Engine) evaluate(ctx context.Context, a features.Applicant, s policy.Settings) (Evaluation, features.Vector, error) {
	if err := s.Validate(); err != nil {
		return Evaluation{}, features.Vector{}, err
	}

	v, err := e.encoder.Encode(a)
	if err != nil {
		return Evaluation{}, features.Vector{}, fmt.Errorf("encode applicant: %w", err)
	}

	p, err := e.scorer.Score(ctx, v)
	if err != nil {
		return Evaluation{}, features.Vector{}, fmt.Errorf("score applicant: %w", err)
	}

	in, err := decisionInput(a, v, p)
	if err != nil {
		return Evaluation{}, features.Vector{}, err
	}
	if err := in.Validate(); err != nil {
		return Evaluation{}, features.Vector{}, err
	}

	verdict := policy.Decide(in, s)
	reported := ReportedProbability(verdict, p, s)

	limit := 0
	if verdict.Decision == policy.Approve {
		limit = policy.RecommendLimit(reported)
	}

	ev := Evaluation{
		Result: Result{
			ProbabilityOfDefault: reported,
			Decision:             verdict.Decision,
			RecommendedLimit:     limit,
			ExpectedProfit:       policy.ExpectedProfit(reported, in.Amount),
		},
		ModelProbability: p,
		Reason:           verdict.Reason,
		Settings:         s,
		ModelVersion:     e.scorer.Metadata().Version,
		EvaluatedAt:      e.now(),
		Applicant:        a,
	}
	return ev, v, nil
}

// ReportedProbability applies the reporting convention for hard-gate
// rejections: an applicant rejected while the model probability sat at or
// under the threshold is reported at 1.0.
func ReportedProbability(v policy.Verdict, modelProbability float64, s policy.Settings) float64 {
	if v.Decision == policy.Reject && modelProbability <= s.Threshold {
		return 1.0
	}
	return modelProbability
}

// decisionInput reads the rule inputs from the encoded vector, which holds
// validated values, falling back to the raw record for columns a custom
// schema leaves out.
func decisionInput(a features.Applicant, v features.Vector, p float64) (policy.Input, error) {
	read := func(name string) (float64, error) {
		if x, ok := v.Get(name); ok {
			return x, nil
		}
		if x, ok := a.Numeric(name); ok {
			return x, nil
		}
		return 0, common.SchemaError(name, "required field missing")
	}

	amount, err := read(features.LoanAmount)
	if err != nil {
		return policy.Input{}, err
	}
	fico, err := read(features.FICO)
	if err != nil {
		return policy.Input{}, err
	}
	dti, err := read(features.DTI)
	if err != nil {
		return policy.Input{}, err
	}
	return policy.Input{Probability: p, Amount: amount, FICO: fico, DTI: dti}, nil
}

func (e *Engine) record(ev *Evaluation, v features.Vector) {
	rec, err := e.opts.Recorder.StoreDecision(ToRecord(*ev))
	if err != nil {
		log.Error().Err(err).Str("decision", string(ev.Decision)).Msg("Failed to record decision")
		if e.opts.Metrics != nil {
			e.opts.Metrics.LedgerErrorsInc()
		}
		return
	}
	ev.ID = rec.ID

	if !e.opts.RecordFeatures {
		return
	}
	err = e.opts.Recorder.StoreFeatures(storage.FeatureRecord{
		DecisionID:    rec.ID,
		Timestamp:     rec.Timestamp,
		SchemaVersion: e.encoder.Schema().Version,
		Features:      v.Map(),
	})
	if err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("Failed to record feature vector")
		if e.opts.Metrics != nil {
			e.opts.Metrics.LedgerErrorsInc()
		}
	}
}

// ToRecord flattens an evaluation into a ledger record.
func ToRecord(ev Evaluation) storage.DecisionRecord {
	a := ev.Applicant
	rec := storage.DecisionRecord{
		ID:               ev.ID,
		Timestamp:        ev.EvaluatedAt,
		Grade:            a.Grade,
		Purpose:          a.Purpose,
		ModelProbability: ev.ModelProbability,
		Probability:      ev.ProbabilityOfDefault,
		Decision:         string(ev.Decision),
		Reason:           string(ev.Reason),
		RecommendedLimit: ev.RecommendedLimit,
		ExpectedProfit:   ev.ExpectedProfit,
		ModelVersion:     ev.ModelVersion,
		Threshold:        ev.Settings.Threshold,
		MinFICO:          ev.Settings.MinFICO,
		MaxDTI:           ev.Settings.MaxDTI,
	}
	rec.LoanAmount, _ = a.Numeric(features.LoanAmount)
	rec.FICO, _ = a.Numeric(features.FICO)
	rec.DTI, _ = a.Numeric(features.DTI)
	return rec
}
