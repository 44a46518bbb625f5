package core

import (
	"sync/atomic"
	"time"
)

// RuleSnapshot is an immutable, versioned set of correlation rules. Evaluators
// read a snapshot for the duration of one pass; a reload swaps the whole
// snapshot so no reader ever observes a half-updated rule set.
type RuleSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Rules    []CorrelationRule
}

// EnabledRules returns the enabled rules in declaration order.
func (s *RuleSnapshot) EnabledRules() []CorrelationRule {
	out := make([]CorrelationRule, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// SnapshotStore holds the current rule snapshot behind an atomic pointer.
// Readers call Current; the single writer calls Swap on reload.
type SnapshotStore struct {
	current atomic.Pointer[RuleSnapshot]
	version atomic.Int64
}

// NewSnapshotStore creates a store primed with an empty snapshot so readers
// never see nil.
func NewSnapshotStore() *SnapshotStore {
	s := &SnapshotStore{}
	s.current.Store(&RuleSnapshot{LoadedAt: time.Now().UTC()})
	return s
}

// Current returns the active snapshot.
func (s *SnapshotStore) Current() *RuleSnapshot {
	return s.current.Load()
}

// Swap replaces the active snapshot wholesale and returns the new version.
func (s *SnapshotStore) Swap(rules []CorrelationRule) int64 {
	version := s.version.Add(1)
	s.current.Store(&RuleSnapshot{
		Version:  version,
		LoadedAt: time.Now().UTC(),
		Rules:    rules,
	})
	return version
}
