package core

// AlertStatus represents the lifecycle status of an alert.
type AlertStatus string

const (
	// AlertStatusNew is the creation default for alerts.
	AlertStatusNew AlertStatus = "New"
	// AlertStatusPendingScore indicates the alert is awaiting risk scoring.
	AlertStatusPendingScore AlertStatus = "PendingScore"
	// AlertStatusAcknowledged indicates an operator has seen the alert.
	AlertStatusAcknowledged AlertStatus = "Acknowledged"
	// AlertStatusUnderInvestigation indicates active investigation.
	AlertStatusUnderInvestigation AlertStatus = "UnderInvestigation"
	// AlertStatusResolved indicates the underlying issue was addressed.
	AlertStatusResolved AlertStatus = "Resolved"
	// AlertStatusClosed indicates the alert is archived.
	AlertStatusClosed AlertStatus = "Closed"
	// AlertStatusFalsePositive indicates the alert was judged spurious.
	AlertStatusFalsePositive AlertStatus = "FalsePositive"
)

// String returns the status as a string.
func (s AlertStatus) String() string {
	return string(s)
}

// IsValid checks if the status is one of the defined lifecycle states.
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusNew, AlertStatusPendingScore, AlertStatusAcknowledged,
		AlertStatusUnderInvestigation, AlertStatusResolved, AlertStatusClosed,
		AlertStatusFalsePositive:
		return true
	default:
		return false
	}
}
