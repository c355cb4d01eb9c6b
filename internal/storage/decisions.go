package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"bnpl-risk/internal/policy"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DecisionRecord is one ledger entry.
type DecisionRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	LoanAmount float64 `json:"loan_amnt"`
	FICO       float64 `json:"fico_range_low"`
	DTI        float64 `json:"dti"`
	Grade      string  `json:"grade,omitempty"`
	Purpose    string  `json:"purpose,omitempty"`

	ModelProbability float64 `json:"model_probability"`
	Probability      float64 `json:"probability_of_default"`
	Decision         string  `json:"decision"`
	Reason           string  `json:"reason,omitempty"`
	RecommendedLimit int     `json:"recommended_limit"`
	ExpectedProfit   float64 `json:"expected_profit"`

	ModelVersion string  `json:"model_version,omitempty"`
	Threshold    float64 `json:"threshold"`
	MinFICO      int     `json:"min_fico"`
	MaxDTI       int     `json:"max_dti"`
}

// StoreDecision appends a decision to the ledger. A missing ID or timestamp
// is filled in and returned on the stored record.
func (s *Store) StoreDecision(rec DecisionRecord) (DecisionRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := s.put(decisionsBucket, rec.Timestamp, rec.ID, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// GetDecisionsInRange returns decisions with start <= timestamp <= end in
// time order. Zero start or end leaves that side open.
func (s *Store) GetDecisionsInRange(start, end time.Time) ([]DecisionRecord, error) {
	var out []DecisionRecord
	err := s.scanRange(decisionsBucket, start, end, func(data []byte) error {
		var rec DecisionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed decision record")
			return nil
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan decisions: %w", err)
	}
	return out, nil
}

// RecentDecisions returns up to limit decisions, newest first.
func (s *Store) RecentDecisions(limit int) ([]DecisionRecord, error) {
	var out []DecisionRecord
	err := s.scanLatest(decisionsBucket, limit, func(data []byte) error {
		var rec DecisionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// PortfolioStats summarises a set of decisions.
type PortfolioStats struct {
	TotalApplications  int            `json:"total_applications"`
	Approved           int            `json:"approved"`
	TotalVolume        float64        `json:"total_volume"`
	ApprovedVolume     float64        `json:"approved_volume"`
	ApprovalRate       float64        `json:"approval_rate"`
	AvgFICO            float64        `json:"avg_fico"`
	AvgProbability     float64        `json:"avg_probability"`
	ExpectedProfit     float64        `json:"expected_profit"`
	TotalLimit         int            `json:"total_recommended_limit"`
	RejectionsByReason map[string]int `json:"rejections_by_reason"`
	From               time.Time      `json:"from,omitempty"`
	To                 time.Time      `json:"to,omitempty"`
}

// Stats summarises the ledger between start and end.
func (s *Store) Stats(start, end time.Time) (PortfolioStats, error) {
	recs, err := s.GetDecisionsInRange(start, end)
	if err != nil {
		return PortfolioStats{}, err
	}
	return Summarize(recs), nil
}

// Summarize aggregates records. Probabilities average the model's own
// estimate; expected profit and limits count approvals only.
func Summarize(recs []DecisionRecord) PortfolioStats {
	st := PortfolioStats{RejectionsByReason: map[string]int{}}
	if len(recs) == 0 {
		return st
	}

	var ficoSum, probSum float64
	for _, r := range recs {
		st.TotalApplications++
		st.TotalVolume += r.LoanAmount
		ficoSum += r.FICO
		probSum += r.ModelProbability

		if r.Decision == string(policy.Approve) {
			st.Approved++
			st.ApprovedVolume += r.LoanAmount
			st.ExpectedProfit += r.ExpectedProfit
			st.TotalLimit += r.RecommendedLimit
		} else {
			st.RejectionsByReason[r.Reason]++
		}

		if st.From.IsZero() || r.Timestamp.Before(st.From) {
			st.From = r.Timestamp
		}
		if r.Timestamp.After(st.To) {
			st.To = r.Timestamp
		}
	}

	n := float64(st.TotalApplications)
	st.ApprovalRate = float64(st.Approved) / n
	st.AvgFICO = ficoSum / n
	st.AvgProbability = probSum / n
	return st
}
