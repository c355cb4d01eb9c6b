package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// FeatureRecord is the encoded vector behind one decision, kept so scored
// traffic can be joined with repayment outcomes for retraining.
type FeatureRecord struct {
	DecisionID    string             `json:"decision_id"`
	Timestamp     time.Time          `json:"timestamp"`
	SchemaVersion string             `json:"schema_version,omitempty"`
	Features      map[string]float64 `json:"features"`
}

// StoreFeatures stores a feature record for ML training
func (s *Store) StoreFeatures(record FeatureRecord) error {
	if record.DecisionID == "" {
		return fmt.Errorf("feature record without decision id")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	return s.put(featuresBucket, record.Timestamp, record.DecisionID, record)
}

// GetFeatures retrieves feature records within a time range
func (s *Store) GetFeatures(start, end time.Time) ([]FeatureRecord, error) {
	var out []FeatureRecord
	err := s.scanRange(featuresBucket, start, end, func(data []byte) error {
		var rec FeatureRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil // Skip malformed records
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// TrainingExample pairs a stored feature vector with the decision it
// produced.
type TrainingExample struct {
	Decision DecisionRecord `json:"decision"`
	FeatureRecord
}

// TrainingExamples joins feature records in the range with their
// decisions. Vectors whose decision is missing are skipped.
func (s *Store) TrainingExamples(start, end time.Time) ([]TrainingExample, error) {
	decisions, err := s.GetDecisionsInRange(start, end)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]DecisionRecord, len(decisions))
	for _, d := range decisions {
		byID[d.ID] = d
	}

	feats, err := s.GetFeatures(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]TrainingExample, 0, len(feats))
	for _, f := range feats {
		d, ok := byID[f.DecisionID]
		if !ok {
			continue
		}
		out = append(out, TrainingExample{Decision: d, FeatureRecord: f})
	}
	return out, nil
}
