// Package features turns raw applicant records into the fixed-schema numeric
// vectors consumed by the risk model.
//
// A single Schema descriptor lists the numeric columns (with the training-time
// medians used for imputation) and, per categorical attribute, the closed set of
// values one-hot encoded at training time. Both the serving encoder and the model
// artifact check derive their column lists from it.
package features

import (
	"fmt"
	"os"

	"bnpl-risk/internal/common"

	"gopkg.in/yaml.v3"
)

// Numeric attribute names.
const (
	LoanAmount    = "loan_amnt"
	InterestRate  = "int_rate"
	Installment   = "installment"
	AnnualIncome  = "annual_inc"
	DTI           = "dti"
	FICO          = "fico_range_low"
	RevolvingUtil = "revol_util"
	TotalAccounts = "total_acc"
	OpenAccounts  = "open_acc"
	PublicRecords = "pub_rec"
	TermMonths    = "term_months"
)

// Categorical attribute names.
const (
	Grade              = "grade"
	HomeOwnership      = "home_ownership"
	VerificationStatus = "verification_status"
	Purpose            = "purpose"
)

// NumericField is a passthrough column. A nil Median makes the field required.
type NumericField struct {
	Name   string   `yaml:"name" json:"name"`
	Median *float64 `yaml:"median,omitempty" json:"median,omitempty"`
}

// CategoricalField is an attribute one-hot encoded over a closed value list.
type CategoricalField struct {
	Name   string   `yaml:"name" json:"name"`
	Values []string `yaml:"values" json:"values"`
}

// Schema is the training-time feature descriptor.
type Schema struct {
	Version     string             `yaml:"version" json:"version"`
	Numeric     []NumericField     `yaml:"numeric" json:"numeric"`
	Categorical []CategoricalField `yaml:"categorical" json:"categorical"`
}

func median(v float64) *float64 { return &v }

// DefaultSchema returns the Lending Club schema the champion model was trained on.
// loan_amnt, dti and fico_range_low carry no median: the decision rules read them.
func DefaultSchema() *Schema {
	return &Schema{
		Version: "lendingclub-v1",
		Numeric: []NumericField{
			{Name: LoanAmount},
			{Name: InterestRate, Median: median(11.99)},
			{Name: Installment, Median: median(280.0)},
			{Name: AnnualIncome, Median: median(60000)},
			{Name: DTI},
			{Name: FICO},
			{Name: RevolvingUtil, Median: median(52.0)},
			{Name: TotalAccounts, Median: median(23)},
			{Name: OpenAccounts, Median: median(10)},
			{Name: PublicRecords, Median: median(0)},
			{Name: TermMonths, Median: median(36)},
		},
		Categorical: []CategoricalField{
			{Name: Grade, Values: []string{"A", "B", "C", "D", "E", "F", "G"}},
			{Name: HomeOwnership, Values: []string{"RENT", "MORTGAGE", "OWN", "OTHER", "NONE", "ANY"}},
			{Name: VerificationStatus, Values: []string{"Verified", "Source Verified", "Not Verified"}},
			{Name: Purpose, Values: []string{
				"debt_consolidation", "credit_card", "home_improvement", "other",
				"major_purchase", "medical", "small_business", "car", "vacation",
				"moving", "house", "wedding", "renewable_energy", "educational",
			}},
		},
	}
}

// LoadSchema reads a YAML schema file. An empty path yields DefaultSchema.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}

	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	return &s, nil
}

// Validate checks that the schema yields a non-empty, duplicate-free column list
// and that every numeric field is one the applicant record carries.
func (s *Schema) Validate() error {
	if len(s.Numeric) == 0 && len(s.Categorical) == 0 {
		return common.ConfigError("schema", "no columns defined")
	}

	for _, f := range s.Numeric {
		if _, ok := numericAccessors[f.Name]; !ok {
			return common.ConfigError(f.Name, "unknown numeric attribute")
		}
	}
	for _, c := range s.Categorical {
		if _, ok := categoricalAccessors[c.Name]; !ok {
			return common.ConfigError(c.Name, "unknown categorical attribute")
		}
		if len(c.Values) == 0 {
			return common.ConfigError(c.Name, "no known values")
		}
	}

	seen := make(map[string]struct{})
	for _, col := range s.Columns() {
		if _, dup := seen[col]; dup {
			return common.ConfigError(col, "duplicate column")
		}
		seen[col] = struct{}{}
	}
	return nil
}

// Columns returns the ordered column names: numeric fields first, then one
// indicator per known value of each categorical attribute.
func (s *Schema) Columns() []string {
	cols := make([]string, 0, len(s.Numeric)+s.indicatorCount())
	for _, f := range s.Numeric {
		cols = append(cols, f.Name)
	}
	for _, c := range s.Categorical {
		for _, v := range c.Values {
			cols = append(cols, ColumnName(c.Name, v))
		}
	}
	return cols
}

func (s *Schema) indicatorCount() int {
	n := 0
	for _, c := range s.Categorical {
		n += len(c.Values)
	}
	return n
}

// ColumnName is the indicator column for one category value, matching the
// training pipeline's dummy-column naming.
func ColumnName(attribute, value string) string {
	return attribute + "_" + value
}
