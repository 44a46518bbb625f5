package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition wraps every rejected lifecycle transition.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// validTransitions defines the allowed lifecycle transitions per status.
// Self-transitions are always permitted and not listed here.
var validTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusNew:                {AlertStatusAcknowledged, AlertStatusPendingScore, AlertStatusFalsePositive},
	AlertStatusPendingScore:       {AlertStatusNew, AlertStatusAcknowledged, AlertStatusFalsePositive},
	AlertStatusAcknowledged:       {AlertStatusUnderInvestigation, AlertStatusResolved, AlertStatusFalsePositive},
	AlertStatusUnderInvestigation: {AlertStatusResolved, AlertStatusClosed, AlertStatusFalsePositive},
	AlertStatusResolved:           {AlertStatusClosed, AlertStatusAcknowledged},
	AlertStatusClosed:             {AlertStatusAcknowledged},
	AlertStatusFalsePositive:      {AlertStatusClosed},
}

// CanTransitionTo checks whether a transition is allowed without executing it.
func (a *Alert) CanTransitionTo(newStatus AlertStatus) bool {
	if !newStatus.IsValid() {
		return false
	}
	if newStatus == a.Status {
		return true // idempotent re-apply
	}
	allowed, exists := validTransitions[a.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo validates and executes a status transition: check-then-act, so
// nothing on the alert is mutated before the transition is accepted. Accepted
// transitions append one history entry and stamp the lifecycle timestamp
// matching the new status. Stamping is one-way; reverting a status later does
// not clear a previously set timestamp.
func (a *Alert) TransitionTo(newStatus AlertStatus, actor, comment string) error {
	if newStatus == "" {
		return fmt.Errorf("%w: new status cannot be empty", ErrInvalidTransition)
	}
	if !newStatus.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, newStatus)
	}
	if _, exists := validTransitions[a.Status]; !exists {
		return fmt.Errorf("%w: unknown current status %q", ErrInvalidTransition, a.Status)
	}
	if !a.CanTransitionTo(newStatus) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, a.Status, newStatus)
	}

	now := time.Now().UTC()
	a.StatusHistory = append(a.StatusHistory, StatusTransition{
		Timestamp: now,
		From:      a.Status,
		To:        newStatus,
		Actor:     actor,
		Comment:   comment,
	})
	a.Status = newStatus
	a.UpdatedAt = now
	a.stampLifecycleTimestamp(newStatus, now)

	return nil
}

// GetAllowedTransitions returns a copy of the valid transitions from the
// current status, excluding the always-permitted self-transition.
func (a *Alert) GetAllowedTransitions() []AlertStatus {
	allowed, exists := validTransitions[a.Status]
	if !exists {
		return []AlertStatus{}
	}
	out := make([]AlertStatus, len(allowed))
	copy(out, allowed)
	return out
}

func (a *Alert) stampLifecycleTimestamp(status AlertStatus, ts time.Time) {
	switch status {
	case AlertStatusAcknowledged:
		if a.AcknowledgedAt == nil {
			a.AcknowledgedAt = &ts
		}
	case AlertStatusUnderInvestigation:
		if a.InvestigationStartedAt == nil {
			a.InvestigationStartedAt = &ts
		}
	case AlertStatusResolved:
		if a.ResolvedAt == nil {
			a.ResolvedAt = &ts
		}
	case AlertStatusClosed:
		if a.ClosedAt == nil {
			a.ClosedAt = &ts
		}
	case AlertStatusFalsePositive:
		if a.FalsePositiveAt == nil {
			a.FalsePositiveAt = &ts
		}
	}
}

// ReplayStatus derives the current status from the history log, returning the
// creation default when the history is empty. Used to verify the invariant
// that Status always equals the To of the last history entry.
func (a *Alert) ReplayStatus() AlertStatus {
	if len(a.StatusHistory) == 0 {
		return AlertStatusNew
	}
	return a.StatusHistory[len(a.StatusHistory)-1].To
}
