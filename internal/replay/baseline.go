package replay

import (
	"fmt"

	"bnpl-risk/internal/features"
	"bnpl-risk/internal/ml"
)

// Encoder turns applicants into the model's feature vectors.
type Encoder interface {
	Encode(features.Applicant) (features.Vector, error)
	Schema() *features.Schema
}

// Baseline builds a drift baseline from the evaluated rows of a run: the
// encoded numeric schema features plus the model probability. rows must
// be the slice res was produced from.
func Baseline(rows []Row, res *Results, enc Encoder, bins int) (*ml.DriftBaseline, error) {
	if len(rows) != len(res.Outcomes) {
		return nil, fmt.Errorf("baseline: %d rows for %d outcomes", len(rows), len(res.Outcomes))
	}

	fields := enc.Schema().Numeric
	samples := make(map[string][]float64, len(fields)+1)
	for i, out := range res.Outcomes {
		if !out.OK() {
			continue
		}
		v, err := enc.Encode(rows[i].Applicant)
		if err != nil {
			continue
		}
		for _, f := range fields {
			if x, ok := v.Get(f.Name); ok {
				samples[f.Name] = append(samples[f.Name], x)
			}
		}
		samples[ml.ScoreFeature] = append(samples[ml.ScoreFeature], out.Evaluation.ModelProbability)
	}

	b, err := ml.BuildBaseline(samples, bins)
	if err != nil {
		return nil, err
	}
	b.ModelVersion = res.ModelVersion
	return b, nil
}
