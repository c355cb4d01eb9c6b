package features

import (
	"encoding/json"
	"fmt"
)

// Layout is an immutable ordered column descriptor shared by every vector an
// encoder produces.
type Layout struct {
	names []string
	index map[string]int
}

// NewLayout builds a layout from ordered column names.
func NewLayout(names []string) (*Layout, error) {
	l := &Layout{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	copy(l.names, names)
	for i, n := range l.names {
		if _, dup := l.index[n]; dup {
			return nil, fmt.Errorf("duplicate column %q", n)
		}
		l.index[n] = i
	}
	return l, nil
}

// Names returns a copy of the column names in order.
func (l *Layout) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

func (l *Layout) Len() int { return len(l.names) }

// Index returns the position of a column.
func (l *Layout) Index(name string) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}

// Vector is one encoded applicant.
type Vector struct {
	layout *Layout
	values []float64
}

// NewVector pairs values with a layout. The lengths must agree.
func NewVector(layout *Layout, values []float64) (Vector, error) {
	if layout == nil {
		return Vector{}, fmt.Errorf("nil layout")
	}
	if len(values) != layout.Len() {
		return Vector{}, fmt.Errorf("expected %d values, got %d", layout.Len(), len(values))
	}
	v := Vector{layout: layout, values: make([]float64, len(values))}
	copy(v.values, values)
	return v, nil
}

// VectorFromMap builds a vector over the given column order from a name→value map.
// Columns absent from m are zero.
func VectorFromMap(names []string, m map[string]float64) (Vector, error) {
	layout, err := NewLayout(names)
	if err != nil {
		return Vector{}, err
	}
	values := make([]float64, len(names))
	for i, n := range names {
		values[i] = m[n]
	}
	return Vector{layout: layout, values: values}, nil
}

func (v Vector) Layout() *Layout { return v.layout }

func (v Vector) Len() int { return len(v.values) }

// At returns the value at column position i.
func (v Vector) At(i int) float64 { return v.values[i] }

// Get returns the value of a named column.
func (v Vector) Get(name string) (float64, bool) {
	if v.layout == nil {
		return 0, false
	}
	i, ok := v.layout.Index(name)
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

// Names returns the column names in order.
func (v Vector) Names() []string {
	if v.layout == nil {
		return nil
	}
	return v.layout.Names()
}

// Values returns a copy of the values in column order.
func (v Vector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

// Map returns the vector as name→value.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.values))
	if v.layout == nil {
		return m
	}
	for i, n := range v.layout.names {
		m[n] = v.values[i]
	}
	return m
}

func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Map())
}
