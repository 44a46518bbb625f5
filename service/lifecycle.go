package service

import (
	"context"
	"errors"
	"fmt"

	"vigil/core"
	"vigil/metrics"
	"vigil/storage"

	"go.uber.org/zap"
)

// Lifecycle applies operator-driven status transitions to stored alerts.
// It owns the read-then-write cycle; the state machine itself lives on the
// Alert type.
type Lifecycle struct {
	store  storage.AlertStore
	logger *zap.SugaredLogger
}

// NewLifecycle creates a lifecycle service over the alert store.
func NewLifecycle(store storage.AlertStore, logger *zap.SugaredLogger) *Lifecycle {
	return &Lifecycle{store: store, logger: logger}
}

// Transition moves an alert to newStatus. Invalid transitions surface as
// core.ErrInvalidTransition with the from/to pair; the stored alert is only
// written after the transition has been accepted.
func (l *Lifecycle) Transition(ctx context.Context, alertID string, newStatus core.AlertStatus, actor, comment string) (*core.Alert, error) {
	alert, err := l.store.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	from := alert.Status
	if err := alert.TransitionTo(newStatus, actor, comment); err != nil {
		if errors.Is(err, core.ErrInvalidTransition) {
			metrics.LifecycleTransitions.WithLabelValues(from.String(), newStatus.String(), "rejected").Inc()
		}
		return nil, err
	}

	if err := l.store.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to persist transition of alert %s: %w", alertID, err)
	}

	metrics.LifecycleTransitions.WithLabelValues(from.String(), newStatus.String(), "accepted").Inc()
	l.logger.Infow("Alert status changed",
		"alert_id", alertID, "from", from, "to", newStatus, "actor", actor)
	return alert, nil
}

// Get returns the stored alert.
func (l *Lifecycle) Get(ctx context.Context, alertID string) (*core.Alert, error) {
	return l.store.GetByID(ctx, alertID)
}

// AllowedTransitions returns the target statuses reachable from the alert's
// current status, for operator UIs.
func (l *Lifecycle) AllowedTransitions(ctx context.Context, alertID string) ([]core.AlertStatus, error) {
	alert, err := l.store.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	return alert.GetAllowedTransitions(), nil
}
