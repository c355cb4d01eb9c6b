package replay

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/engine"
	"bnpl-risk/internal/features"
	"bnpl-risk/internal/policy"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Evaluator scores one applicant against an explicit settings snapshot.
type Evaluator interface {
	Evaluate(ctx context.Context, a features.Applicant, s policy.Settings) (engine.Evaluation, error)
}

// Options tunes a replay run.
type Options struct {
	// Workers bounds concurrent evaluations. Zero uses GOMAXPROCS.
	Workers int
}

// Outcome is the engine's answer for one row.
type Outcome struct {
	Line       int               `json:"line"`
	Label      *bool             `json:"defaulted,omitempty"`
	Evaluation engine.Evaluation `json:"evaluation"`
	ErrCode    string            `json:"error_code,omitempty"`
	Err        error             `json:"-"`
}

// OK reports whether the row was evaluated.
func (o Outcome) OK() bool { return o.Err == nil }

// Results aggregates a replay run.
type Results struct {
	Settings     policy.Settings `json:"settings"`
	ModelVersion string          `json:"model_version,omitempty"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`

	Rows      int            `json:"rows"`
	Evaluated int            `json:"evaluated"`
	Errors    map[string]int `json:"errors"`

	Approved           int            `json:"approved"`
	Rejected           int            `json:"rejected"`
	ApprovalRate       float64        `json:"approval_rate"`
	RejectionsByReason map[string]int `json:"rejections_by_reason"`
	ApprovedVolume     float64        `json:"approved_volume"`
	ExpectedProfit     float64        `json:"expected_profit"`
	LimitDistribution  map[int]int    `json:"limit_distribution"`

	Labeled             int      `json:"labeled"`
	ApprovedLabeled     int      `json:"approved_labeled"`
	RejectedLabeled     int      `json:"rejected_labeled"`
	ApprovedDefaultRate float64  `json:"approved_default_rate"`
	RejectedDefaultRate float64  `json:"rejected_default_rate"`
	AUC                 *float64 `json:"auc,omitempty"`

	Outcomes []Outcome `json:"-"`
}

// Run evaluates every row against s. Rows that fail validation are counted
// by error code; a missing model aborts the run.
func Run(ctx context.Context, ev Evaluator, rows []Row, s policy.Settings, opts Options) (*Results, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	res := &Results{Settings: s, StartTime: time.Now()}
	outcomes := make([]Outcome, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range rows {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			row := rows[i]
			out := Outcome{Line: row.Line, Label: row.Label}
			e, err := ev.Evaluate(gctx, row.Applicant, s)
			if err != nil {
				if errors.Is(err, common.ErrModelUnavailable) {
					return fmt.Errorf("line %d: %w", row.Line, err)
				}
				out.Err = err
				out.ErrCode = string(common.Code(err))
			} else {
				out.Evaluation = e
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.EndTime = time.Now()
	res.Outcomes = outcomes
	res.aggregate()

	log.Info().
		Int("rows", res.Rows).
		Int("evaluated", res.Evaluated).
		Float64("approval_rate", res.ApprovalRate).
		Float64("expected_profit", res.ExpectedProfit).
		Dur("elapsed", res.EndTime.Sub(res.StartTime)).
		Msg("Replay complete")
	return res, nil
}

func (r *Results) aggregate() {
	r.Rows = len(r.Outcomes)
	r.Errors = map[string]int{}
	r.RejectionsByReason = map[string]int{}
	r.LimitDistribution = map[int]int{}

	var (
		scores           []float64
		labels           []bool
		approvedDefaults int
		rejectedDefaults int
	)

	for _, o := range r.Outcomes {
		if !o.OK() {
			r.Errors[o.ErrCode]++
			continue
		}
		r.Evaluated++
		e := o.Evaluation
		if r.ModelVersion == "" {
			r.ModelVersion = e.ModelVersion
		}

		approved := e.Decision == policy.Approve
		if approved {
			r.Approved++
			r.ExpectedProfit += e.ExpectedProfit
			r.LimitDistribution[e.RecommendedLimit]++
			if amt, ok := e.Applicant.Numeric(features.LoanAmount); ok {
				r.ApprovedVolume += amt
			}
		} else {
			r.Rejected++
			r.RejectionsByReason[string(e.Reason)]++
		}

		if o.Label == nil {
			continue
		}
		r.Labeled++
		scores = append(scores, e.ModelProbability)
		labels = append(labels, *o.Label)
		if approved {
			r.ApprovedLabeled++
			if *o.Label {
				approvedDefaults++
			}
		} else {
			r.RejectedLabeled++
			if *o.Label {
				rejectedDefaults++
			}
		}
	}

	if r.Evaluated > 0 {
		r.ApprovalRate = float64(r.Approved) / float64(r.Evaluated)
	}
	if r.ApprovedLabeled > 0 {
		r.ApprovedDefaultRate = float64(approvedDefaults) / float64(r.ApprovedLabeled)
	}
	if r.RejectedLabeled > 0 {
		r.RejectedDefaultRate = float64(rejectedDefaults) / float64(r.RejectedLabeled)
	}
	if auc, ok := AUC(scores, labels); ok {
		r.AUC = &auc
	}
}
