package storage

import (
	"context"
	"errors"
	"time"

	"vigil/core"
)

// ErrAlertNotFound is returned when an alert ID does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// AlertStore persists alerts and their lifecycle state.
type AlertStore interface {
	// Create persists a new alert.
	Create(ctx context.Context, alert *core.Alert) error
	// GetByID returns the alert, ErrAlertNotFound when absent.
	GetByID(ctx context.Context, id string) (*core.Alert, error)
	// Update overwrites the stored alert, ErrAlertNotFound when absent.
	Update(ctx context.Context, alert *core.Alert) error
	// ListByRule returns alerts for ruleID triggered at or after since,
	// newest first.
	ListByRule(ctx context.Context, ruleID string, since time.Time) ([]*core.Alert, error)
	// Close releases underlying resources.
	Close() error
}
