package policy

import (
	"math"

	"bnpl-risk/internal/common"
)

type Decision string

const (
	Approve Decision = "APPROVE"
	Reject  Decision = "REJECT"
)

// Reason names the gate that produced a decision.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonCreditScore Reason = "credit_score"
	ReasonDebtLoad    Reason = "indebtedness"
	ReasonModelRisk   Reason = "model_risk"
)

// Input is everything the rule chain looks at.
type Input struct {
	Probability float64
	Amount      float64
	FICO        float64
	DTI         float64
}

// Validate rejects out-of-domain values. Nothing is clamped.
func (in Input) Validate() error {
	if math.IsNaN(in.Probability) || in.Probability < 0 || in.Probability > 1 {
		return common.SchemaError("probability", "must be within [0, 1], got %v", in.Probability)
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount < 0 {
		return common.SchemaError("loan_amnt", "must be a non-negative number, got %v", in.Amount)
	}
	if math.IsNaN(in.FICO) || math.IsInf(in.FICO, 0) || in.FICO < 0 {
		return common.SchemaError("fico_range_low", "must be a non-negative number, got %v", in.FICO)
	}
	if math.IsNaN(in.DTI) || math.IsInf(in.DTI, 0) || in.DTI < 0 {
		return common.SchemaError("dti", "must be a non-negative number, got %v", in.DTI)
	}
	return nil
}

type Verdict struct {
	Decision Decision `json:"decision"`
	Reason   Reason   `json:"reason,omitempty"`
}

// Decide runs the gates in order; the first one that fires is terminal.
// Callers validate the input first.
func Decide(in Input, s Settings) Verdict {
	switch {
	case in.FICO < float64(s.MinFICO):
		return Verdict{Decision: Reject, Reason: ReasonCreditScore}
	case in.DTI > float64(s.MaxDTI):
		return Verdict{Decision: Reject, Reason: ReasonDebtLoad}
	case in.Probability > s.Threshold:
		return Verdict{Decision: Reject, Reason: ReasonModelRisk}
	default:
		return Verdict{Decision: Approve}
	}
}
