// Package policy holds the credit rules applied on top of a model score: the
// approve/reject chain, the limit ladder, the profit estimate and the
// process-wide risk settings they read.
package policy

import (
	"math"
	"sync/atomic"

	"bnpl-risk/internal/common"
)

// Settings is one immutable snapshot of the risk policy knobs.
type Settings struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	MinFICO   int     `json:"min_fico" yaml:"min_fico"`
	MaxDTI    int     `json:"max_dti" yaml:"max_dti"`
}

func DefaultSettings() Settings {
	return Settings{
		Threshold: common.DefaultRiskThreshold,
		MinFICO:   common.DefaultMinFICO,
		MaxDTI:    common.DefaultMaxDTI,
	}
}

// Validate rejects values no rule can be evaluated against.
func (s Settings) Validate() error {
	if math.IsNaN(s.Threshold) || s.Threshold < 0 || s.Threshold > 1 {
		return common.ConfigError("threshold", "must be within [0, 1], got %v", s.Threshold)
	}
	if s.MinFICO < 0 || s.MinFICO > common.MaxFICO {
		return common.ConfigError("min_fico", "must be within [0, %d], got %d", common.MaxFICO, s.MinFICO)
	}
	if s.MaxDTI < 0 || s.MaxDTI > common.MaxDTILimit {
		return common.ConfigError("max_dti", "must be within [0, %d], got %d", common.MaxDTILimit, s.MaxDTI)
	}
	return nil
}

// SettingsPatch is a partial update; nil fields keep their prior value.
type SettingsPatch struct {
	Threshold *float64 `json:"threshold,omitempty"`
	MinFICO   *int     `json:"min_fico,omitempty"`
	MaxDTI    *int     `json:"max_dti,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.Threshold == nil && p.MinFICO == nil && p.MaxDTI == nil
}

// Apply returns base with the supplied fields replaced.
func (p SettingsPatch) Apply(base Settings) Settings {
	if p.Threshold != nil {
		base.Threshold = *p.Threshold
	}
	if p.MinFICO != nil {
		base.MinFICO = *p.MinFICO
	}
	if p.MaxDTI != nil {
		base.MaxDTI = *p.MaxDTI
	}
	return base
}

// Store publishes settings snapshots. Readers always get a whole snapshot;
// writers swap in a new one and never touch a published value.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore validates the initial snapshot.
func NewStore(initial Settings) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	s.current.Store(&initial)
	return s, nil
}

// Get returns the current snapshot.
func (s *Store) Get() Settings {
	return *s.current.Load()
}

// Update merges patch onto the snapshot it read and publishes the result.
// A concurrent writer forces a retry against the newer snapshot, so the
// result never mixes fields of two different updates.
func (s *Store) Update(patch SettingsPatch) (Settings, error) {
	for {
		old := s.current.Load()
		next := patch.Apply(*old)
		if err := next.Validate(); err != nil {
			return *old, err
		}
		if s.current.CompareAndSwap(old, &next) {
			return next, nil
		}
	}
}

// Replace publishes a complete snapshot.
func (s *Store) Replace(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.current.Store(&next)
	return nil
}
