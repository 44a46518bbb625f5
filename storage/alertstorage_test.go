package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// storeFactories covers both implementations with the same contract tests.
var storeFactories = map[string]func(t *testing.T) AlertStore{
	"sqlite": func(t *testing.T) AlertStore {
		store, err := NewSQLiteAlertStore(filepath.Join(t.TempDir(), "alerts.db"), zap.NewNop().Sugar())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	},
	"memory": func(t *testing.T) AlertStore {
		return NewMemoryAlertStore()
	},
}

func sampleAlert(t *testing.T, ruleID string, triggeredAt time.Time) *core.Alert {
	t.Helper()
	rule := &core.CorrelationRule{ID: ruleID, Name: "test rule", Severity: "high"}
	result := &core.EvaluationResult{
		IsMatch:            true,
		ShouldTriggerAlert: true,
		MatchedConditions:  []string{"event_type equals login_failure"},
		AggregationCount:   4,
		AggregationValue:   4,
		Context:            map[string]interface{}{"group_key": "alice"},
	}
	env := &core.EventEnvelope{
		ID: "e1",
		Normalized: &core.NormalizedEvent{
			Timestamp: triggeredAt,
			EventType: "login_failure",
			SourceIP:  "10.0.0.5",
		},
	}
	alert, err := core.NewAlert(rule, result, env)
	require.NoError(t, err)
	return alert
}

func TestAlertStore_CreateAndGet(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			alert := sampleAlert(t, "r1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

			require.NoError(t, store.Create(ctx, alert))

			got, err := store.GetByID(ctx, alert.ID)
			require.NoError(t, err)
			assert.Equal(t, alert.ID, got.ID)
			assert.Equal(t, alert.RuleID, got.RuleID)
			assert.Equal(t, core.AlertStatusNew, got.Status)
			assert.Equal(t, alert.MatchedConditions, got.MatchedConditions)
			assert.Equal(t, "alice", got.Context["group_key"])
			assert.Equal(t, alert.DedupKey, got.DedupKey)
			assert.True(t, alert.TriggeredAt.Equal(got.TriggeredAt))
		})
	}
}

func TestAlertStore_GetMissing(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			_, err := factory(t).GetByID(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrAlertNotFound)
		})
	}
}

func TestAlertStore_UpdatePersistsLifecycle(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			alert := sampleAlert(t, "r1", time.Now().UTC())
			require.NoError(t, store.Create(ctx, alert))

			require.NoError(t, alert.TransitionTo(core.AlertStatusAcknowledged, "analyst", "looking"))
			require.NoError(t, store.Update(ctx, alert))

			got, err := store.GetByID(ctx, alert.ID)
			require.NoError(t, err)
			assert.Equal(t, core.AlertStatusAcknowledged, got.Status)
			require.Len(t, got.StatusHistory, 1)
			assert.Equal(t, core.AlertStatusNew, got.StatusHistory[0].From)
			assert.Equal(t, "analyst", got.StatusHistory[0].Actor)
			require.NotNil(t, got.AcknowledgedAt)
		})
	}
}

func TestAlertStore_UpdateMissing(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			alert := sampleAlert(t, "r1", time.Now().UTC())
			err := factory(t).Update(context.Background(), alert)
			assert.ErrorIs(t, err, ErrAlertNotFound)
		})
	}
}

func TestAlertStore_ListByRule(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			old := sampleAlert(t, "r1", base.Add(-2*time.Hour))
			recent := sampleAlert(t, "r1", base)
			newest := sampleAlert(t, "r1", base.Add(time.Hour))
			other := sampleAlert(t, "r2", base)
			for _, a := range []*core.Alert{old, recent, newest, other} {
				require.NoError(t, store.Create(ctx, a))
			}

			got, err := store.ListByRule(ctx, "r1", base.Add(-time.Hour))
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, newest.ID, got[0].ID)
			assert.Equal(t, recent.ID, got[1].ID)
		})
	}
}

func TestMemoryAlertStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryAlertStore()
	ctx := context.Background()
	alert := sampleAlert(t, "r1", time.Now().UTC())
	require.NoError(t, store.Create(ctx, alert))

	got, err := store.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	got.Context["group_key"] = "tampered"
	got.Status = core.AlertStatusClosed

	again, err := store.GetByID(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Context["group_key"])
	assert.Equal(t, core.AlertStatusNew, again.Status)
}
