package features

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bnpl-risk/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchema_CategoryCounts(t *testing.T) {
	s := DefaultSchema()
	require.NoError(t, s.Validate())

	counts := map[string]int{}
	for _, c := range s.Categorical {
		counts[c.Name] = len(c.Values)
	}
	assert.Equal(t, 7, counts[Grade])
	assert.Equal(t, 6, counts[HomeOwnership])
	assert.Equal(t, 3, counts[VerificationStatus])
	assert.Equal(t, 14, counts[Purpose])
}

func TestLoadSchema(t *testing.T) {
	t.Run("empty path uses default", func(t *testing.T) {
		s, err := LoadSchema("")
		require.NoError(t, err)
		assert.Equal(t, DefaultSchema().Columns(), s.Columns())
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schema.yaml")
		content := `
version: test-v2
numeric:
  - name: loan_amnt
  - name: fico_range_low
  - name: dti
  - name: annual_inc
    median: 55000
categorical:
  - name: grade
    values: [A, B]
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		s, err := LoadSchema(path)
		require.NoError(t, err)
		assert.Equal(t, "test-v2", s.Version)
		assert.Equal(t, []string{"loan_amnt", "fico_range_low", "dti", "annual_inc", "grade_A", "grade_B"}, s.Columns())
		require.NotNil(t, s.Numeric[3].Median)
		assert.Equal(t, 55000.0, *s.Numeric[3].Median)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSchema(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestSchema_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		schema Schema
		field  string
	}{
		{"empty", Schema{}, "schema"},
		{"unknown numeric", Schema{Numeric: []NumericField{{Name: "shoe_size"}}}, "shoe_size"},
		{"unknown categorical", Schema{Categorical: []CategoricalField{{Name: "color", Values: []string{"red"}}}}, "color"},
		{"no values", Schema{Categorical: []CategoricalField{{Name: Grade}}}, Grade},
		{"duplicate value", Schema{Categorical: []CategoricalField{{Name: Grade, Values: []string{"A", "A"}}}}, "grade_A"},
		{"duplicate numeric", Schema{Numeric: []NumericField{{Name: DTI}, {Name: DTI}}}, DTI},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.schema.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrConfig))
			assert.Equal(t, tc.field, common.Field(err))
		})
	}
}

func TestCleaning(t *testing.T) {
	p, err := ParsePercent(" 10.5% ")
	require.NoError(t, err)
	assert.Equal(t, 10.5, p)

	m, err := ParseMoney("$1,000.50")
	require.NoError(t, err)
	assert.Equal(t, 1000.5, m)

	term, err := ParseTermMonths(" 60 months")
	require.NoError(t, err)
	assert.Equal(t, 60.0, term)

	_, err = ParseTermMonths("n/a")
	assert.Error(t, err)

	testCases := []struct {
		status      string
		wantDefault bool
		wantOK      bool
	}{
		{"Fully Paid", false, true},
		{"Charged Off", true, true},
		{"Default", true, true},
		{"Does not meet the credit policy. Status:Charged Off", true, true},
		{"Does not meet the credit policy. Status:Fully Paid", false, true},
		{"Current", false, false},
		{"Late (31-120 days)", false, false},
	}
	for _, tc := range testCases {
		isDefault, ok := DefaultLabel(tc.status)
		assert.Equal(t, tc.wantDefault, isDefault, tc.status)
		assert.Equal(t, tc.wantOK, ok, tc.status)
	}
}

func TestVector(t *testing.T) {
	v, err := VectorFromMap([]string{"b", "a"}, map[string]float64{"a": 1, "ignored": 9})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, v.Names())
	assert.Equal(t, []float64{0, 1}, v.Values())
	assert.Equal(t, 1.0, v.At(1))
	_, ok := v.Get("ignored")
	assert.False(t, ok)

	_, err = NewLayout([]string{"x", "x"})
	assert.Error(t, err)

	layout, _ := NewLayout([]string{"x"})
	_, err = NewVector(layout, []float64{1, 2})
	assert.Error(t, err)
}
