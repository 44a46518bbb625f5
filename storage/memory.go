package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"vigil/core"
)

// MemoryAlertStore is an in-memory AlertStore for tests and ephemeral runs.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*core.Alert
}

// NewMemoryAlertStore creates an empty in-memory store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]*core.Alert)}
}

// Create stores a copy of the alert.
func (s *MemoryAlertStore) Create(_ context.Context, alert *core.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

// GetByID returns a copy of the alert, ErrAlertNotFound when absent.
func (s *MemoryAlertStore) GetByID(_ context.Context, id string) (*core.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return cloneAlert(alert), nil
}

// Update overwrites the stored alert.
func (s *MemoryAlertStore) Update(_ context.Context, alert *core.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alert.ID]; !ok {
		return ErrAlertNotFound
	}
	s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

// ListByRule returns alerts for ruleID triggered at or after since, newest first.
func (s *MemoryAlertStore) ListByRule(_ context.Context, ruleID string, since time.Time) ([]*core.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Alert
	for _, alert := range s.alerts {
		if alert.RuleID == ruleID && !alert.TriggeredAt.Before(since) {
			out = append(out, cloneAlert(alert))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	return out, nil
}

// Close is a no-op.
func (s *MemoryAlertStore) Close() error { return nil }

// cloneAlert copies the alert deeply enough that callers cannot mutate stored
// state through the returned pointer.
func cloneAlert(a *core.Alert) *core.Alert {
	clone := *a
	clone.MatchedConditions = append([]string(nil), a.MatchedConditions...)
	clone.StatusHistory = append([]core.StatusTransition(nil), a.StatusHistory...)
	if a.Context != nil {
		clone.Context = make(map[string]interface{}, len(a.Context))
		for k, v := range a.Context {
			clone.Context[k] = v
		}
	}
	return &clone
}
