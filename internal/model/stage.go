package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage validation errors.
var (
	ErrNoStages            = errors.New("no stages defined")
	ErrEmptyStageKey       = errors.New("stage key is empty")
	ErrDuplicateStage      = errors.New("duplicate stage key")
	ErrMultipleTerminal    = errors.New("more than one terminal stage")
	ErrMultipleCancelStage = errors.New("more than one cancellation stage")
)

// StageDef describes one board column.
type StageDef struct {
	Key            string        // Lowercased name
	Name           string        // Display name
	HoldingTime    time.Duration // Time budget before the order is late
	IsTerminal     bool          // Moving here completes the order
	IsCancellation bool          // Moving here cancels the order
}

// StageKey normalizes a stage name into a key.
func StageKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StageSet is a validated, ordered collection of stage definitions.
type StageSet struct {
	defs     []StageDef
	index    map[string]int
	terminal string
	cancel   string
}

// NewStageSet validates defs and builds a StageSet.
// Keys are normalized; a configuration with more than one terminal or
// cancellation stage is rejected.
func NewStageSet(defs []StageDef) (StageSet, error) {
	if len(defs) == 0 {
		return StageSet{}, ErrNoStages
	}

	s := StageSet{
		defs:  make([]StageDef, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}

	for _, d := range defs {
		d.Key = StageKey(d.Key)
		if d.Key == "" {
			d.Key = StageKey(d.Name)
		}
		if d.Key == "" {
			return StageSet{}, ErrEmptyStageKey
		}
		if _, dup := s.index[d.Key]; dup {
			return StageSet{}, fmt.Errorf("%w: %q", ErrDuplicateStage, d.Key)
		}
		if d.IsTerminal {
			if s.terminal != "" {
				return StageSet{}, fmt.Errorf("%w: %q and %q", ErrMultipleTerminal, s.terminal, d.Key)
			}
			s.terminal = d.Key
		}
		if d.IsCancellation {
			if s.cancel != "" {
				return StageSet{}, fmt.Errorf("%w: %q and %q", ErrMultipleCancelStage, s.cancel, d.Key)
			}
			s.cancel = d.Key
		}
		s.index[d.Key] = len(s.defs)
		s.defs = append(s.defs, d)
	}

	return s, nil
}

// Defs returns the stage definitions in configured order.
func (s StageSet) Defs() []StageDef {
	out := make([]StageDef, len(s.defs))
	copy(out, s.defs)
	return out
}

// Keys returns the stage keys in configured order.
func (s StageSet) Keys() []string {
	keys := make([]string, len(s.defs))
	for i, d := range s.defs {
		keys[i] = d.Key
	}
	return keys
}

// Get returns the definition for key.
func (s StageSet) Get(key string) (StageDef, bool) {
	i, ok := s.index[StageKey(key)]
	if !ok {
		return StageDef{}, false
	}
	return s.defs[i], true
}

// Has reports whether key names a defined stage.
func (s StageSet) Has(key string) bool {
	_, ok := s.index[StageKey(key)]
	return ok
}

// Terminal returns the terminal stage key, if any.
func (s StageSet) Terminal() (string, bool) {
	return s.terminal, s.terminal != ""
}

// Cancellation returns the cancellation stage key, if any.
func (s StageSet) Cancellation() (string, bool) {
	return s.cancel, s.cancel != ""
}

// Len returns the number of stages.
func (s StageSet) Len() int { return len(s.defs) }
