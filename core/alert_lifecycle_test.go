package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlert_TransitionTo_Table(t *testing.T) {
	testCases := []struct {
		name      string
		from      AlertStatus
		to        AlertStatus
		shouldErr bool
	}{
		// Valid transitions
		{"New to Acknowledged", AlertStatusNew, AlertStatusAcknowledged, false},
		{"New to PendingScore", AlertStatusNew, AlertStatusPendingScore, false},
		{"New to FalsePositive", AlertStatusNew, AlertStatusFalsePositive, false},
		{"PendingScore to New", AlertStatusPendingScore, AlertStatusNew, false},
		{"PendingScore to Acknowledged", AlertStatusPendingScore, AlertStatusAcknowledged, false},
		{"PendingScore to FalsePositive", AlertStatusPendingScore, AlertStatusFalsePositive, false},
		{"Acknowledged to UnderInvestigation", AlertStatusAcknowledged, AlertStatusUnderInvestigation, false},
		{"Acknowledged to Resolved", AlertStatusAcknowledged, AlertStatusResolved, false},
		{"Acknowledged to FalsePositive", AlertStatusAcknowledged, AlertStatusFalsePositive, false},
		{"UnderInvestigation to Resolved", AlertStatusUnderInvestigation, AlertStatusResolved, false},
		{"UnderInvestigation to Closed", AlertStatusUnderInvestigation, AlertStatusClosed, false},
		{"UnderInvestigation to FalsePositive", AlertStatusUnderInvestigation, AlertStatusFalsePositive, false},
		{"Resolved to Closed", AlertStatusResolved, AlertStatusClosed, false},
		{"Resolved to Acknowledged", AlertStatusResolved, AlertStatusAcknowledged, false},
		{"Closed to Acknowledged", AlertStatusClosed, AlertStatusAcknowledged, false},
		{"FalsePositive to Closed", AlertStatusFalsePositive, AlertStatusClosed, false},

		// Invalid transitions
		{"New to Closed", AlertStatusNew, AlertStatusClosed, true},
		{"New to Resolved", AlertStatusNew, AlertStatusResolved, true},
		{"New to UnderInvestigation", AlertStatusNew, AlertStatusUnderInvestigation, true},
		{"Acknowledged to Closed", AlertStatusAcknowledged, AlertStatusClosed, true},
		{"Acknowledged to New", AlertStatusAcknowledged, AlertStatusNew, true},
		{"Resolved to UnderInvestigation", AlertStatusResolved, AlertStatusUnderInvestigation, true},
		{"Closed to New", AlertStatusClosed, AlertStatusNew, true},
		{"Closed to Resolved", AlertStatusClosed, AlertStatusResolved, true},
		{"FalsePositive to New", AlertStatusFalsePositive, AlertStatusNew, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			alert := &Alert{ID: "alert-1", Status: tc.from}

			err := alert.TransitionTo(tc.to, "analyst-1", "")
			if tc.shouldErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Contains(t, err.Error(), string(tc.from))
				assert.Contains(t, err.Error(), string(tc.to))
				// Check-then-act: nothing mutated on rejection.
				assert.Equal(t, tc.from, alert.Status)
				assert.Empty(t, alert.StatusHistory)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.to, alert.Status)
				require.Len(t, alert.StatusHistory, 1)
				assert.Equal(t, tc.from, alert.StatusHistory[0].From)
				assert.Equal(t, tc.to, alert.StatusHistory[0].To)
				assert.Equal(t, "analyst-1", alert.StatusHistory[0].Actor)
			}
		})
	}
}

func TestAlert_TransitionTo_SelfTransitionAlwaysAllowed(t *testing.T) {
	for _, status := range []AlertStatus{
		AlertStatusNew, AlertStatusPendingScore, AlertStatusAcknowledged,
		AlertStatusUnderInvestigation, AlertStatusResolved, AlertStatusClosed,
		AlertStatusFalsePositive,
	} {
		t.Run(string(status), func(t *testing.T) {
			alert := &Alert{ID: "alert-1", Status: status}
			require.NoError(t, alert.TransitionTo(status, "automation", "re-apply"))
			assert.Equal(t, status, alert.Status)
			require.Len(t, alert.StatusHistory, 1)
		})
	}
}

func TestAlert_TransitionTo_OrderedHistory(t *testing.T) {
	alert := &Alert{ID: "alert-1", Status: AlertStatusNew}

	require.NoError(t, alert.TransitionTo(AlertStatusAcknowledged, "analyst-1", ""))
	require.NoError(t, alert.TransitionTo(AlertStatusResolved, "analyst-1", "patched"))

	require.Len(t, alert.StatusHistory, 2)
	assert.Equal(t, AlertStatusNew, alert.StatusHistory[0].From)
	assert.Equal(t, AlertStatusAcknowledged, alert.StatusHistory[0].To)
	assert.Equal(t, AlertStatusAcknowledged, alert.StatusHistory[1].From)
	assert.Equal(t, AlertStatusResolved, alert.StatusHistory[1].To)
	assert.Equal(t, alert.Status, alert.ReplayStatus())
}

func TestAlert_TransitionTo_TimestampsAreOneWay(t *testing.T) {
	alert := &Alert{ID: "alert-1", Status: AlertStatusNew}

	require.NoError(t, alert.TransitionTo(AlertStatusAcknowledged, "a", ""))
	require.NotNil(t, alert.AcknowledgedAt)
	firstAck := *alert.AcknowledgedAt

	require.NoError(t, alert.TransitionTo(AlertStatusResolved, "a", ""))
	require.NotNil(t, alert.ResolvedAt)

	// Revert to Acknowledged; the original stamp must survive.
	require.NoError(t, alert.TransitionTo(AlertStatusAcknowledged, "a", "reopened"))
	assert.Equal(t, firstAck, *alert.AcknowledgedAt)
	assert.NotNil(t, alert.ResolvedAt)
}

func TestAlert_TransitionTo_RejectsUnknownStatus(t *testing.T) {
	alert := &Alert{ID: "alert-1", Status: AlertStatusNew}
	assert.Error(t, alert.TransitionTo("", "a", ""))
	assert.Error(t, alert.TransitionTo("Escalated", "a", ""))

	alert.Status = "Bogus"
	err := alert.TransitionTo(AlertStatusClosed, "a", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown current status")
}

func TestAlert_ReplayStatus_EmptyHistoryIsNew(t *testing.T) {
	alert := &Alert{ID: "alert-1", Status: AlertStatusNew}
	assert.Equal(t, AlertStatusNew, alert.ReplayStatus())
}

func TestAlert_GetAllowedTransitions(t *testing.T) {
	alert := &Alert{ID: "alert-1", Status: AlertStatusResolved}
	allowed := alert.GetAllowedTransitions()
	assert.ElementsMatch(t, []AlertStatus{AlertStatusClosed, AlertStatusAcknowledged}, allowed)

	// Mutating the returned slice must not affect the transition table.
	allowed[0] = AlertStatusNew
	assert.False(t, alert.CanTransitionTo(AlertStatusNew))
}
