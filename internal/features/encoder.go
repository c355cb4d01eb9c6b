package features

import (
	"fmt"
	"math"
	"time"

	"bnpl-risk/internal/common"
)

// MetricsTracker receives encoder observations.
type MetricsTracker interface {
	FeatureErrorsInc()
	FeatureCalcDuration(time.Duration)
	UnknownCategoryInc(attribute string)
	ImputedFieldInc(field string)
}

// Encoder produces vectors in one schema's column layout.
type Encoder struct {
	schema  *Schema
	layout  *Layout
	offsets map[string]int // categorical attribute -> first indicator column
	metrics MetricsTracker
}

// NewEncoder validates the schema and precomputes its layout.
func NewEncoder(s *Schema) (*Encoder, error) {
	return NewEncoderWithMetrics(s, nil)
}

func NewEncoderWithMetrics(s *Schema, m MetricsTracker) (*Encoder, error) {
	if s == nil {
		return nil, common.ConfigError("schema", "nil schema")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	layout, err := NewLayout(s.Columns())
	if err != nil {
		return nil, common.ConfigError("schema", "%v", err)
	}

	offsets := make(map[string]int, len(s.Categorical))
	for _, c := range s.Categorical {
		offsets[c.Name], _ = layout.Index(ColumnName(c.Name, c.Values[0]))
	}

	return &Encoder{schema: s, layout: layout, offsets: offsets, metrics: m}, nil
}

// Encode maps an applicant onto a schema-shaped vector without a long-lived encoder.
func Encode(a Applicant, s *Schema) (Vector, error) {
	e, err := NewEncoder(s)
	if err != nil {
		return Vector{}, err
	}
	return e.Encode(a)
}

func (e *Encoder) Schema() *Schema { return e.schema }

func (e *Encoder) Layout() *Layout { return e.layout }

// Columns returns the encoder's ordered column names.
func (e *Encoder) Columns() []string { return e.layout.Names() }

// Encode builds the vector for one applicant. Missing numeric fields take the
// schema median; a category value outside the known list leaves its whole
// indicator block at zero.
func (e *Encoder) Encode(a Applicant) (Vector, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.FeatureCalcDuration(time.Since(start))
		}
	}()

	values := make([]float64, e.layout.Len())

	for i, f := range e.schema.Numeric {
		v, ok := a.Numeric(f.Name)
		if !ok {
			if f.Median == nil {
				e.recordError()
				return Vector{}, common.SchemaError(f.Name, "required field missing")
			}
			v = *f.Median
			if e.metrics != nil {
				e.metrics.ImputedFieldInc(f.Name)
			}
		}
		if err := checkNumeric(f.Name, v); err != nil {
			e.recordError()
			return Vector{}, err
		}
		values[i] = v
	}

	for _, c := range e.schema.Categorical {
		supplied, _ := a.Category(c.Name)
		matched := false
		for j, known := range c.Values {
			if supplied == known {
				values[e.offsets[c.Name]+j] = 1
				matched = true
				break
			}
		}
		if !matched && e.metrics != nil {
			e.metrics.UnknownCategoryInc(c.Name)
		}
	}

	return Vector{layout: e.layout, values: values}, nil
}

func (e *Encoder) recordError() {
	if e.metrics != nil {
		e.metrics.FeatureErrorsInc()
	}
}

func checkNumeric(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return common.SchemaError(name, "must be a finite number")
	}
	if v < 0 {
		return common.SchemaError(name, "must be non-negative, got %s", formatFloat(v))
	}
	if name == LoanAmount && v == 0 {
		return common.SchemaError(name, "must be greater than zero")
	}
	return nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
