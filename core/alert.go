package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusTransition is one immutable entry in an alert's status history.
type StatusTransition struct {
	Timestamp time.Time   `json:"timestamp"`
	From      AlertStatus `json:"from"`
	To        AlertStatus `json:"to"`
	Actor     string      `json:"actor"`
	Comment   string      `json:"comment,omitempty"`
}

// Alert is a materialized incident record. It is created once from an
// EvaluationResult; afterwards only the lifecycle state machine mutates the
// status-related fields. Everything else is append-only or immutable.
//
// Invariant: Status always equals the To of the last StatusHistory entry, or
// AlertStatusNew if the history is empty.
type Alert struct {
	ID       string      `json:"id"`
	RuleID   string      `json:"rule_id"`
	RuleName string      `json:"rule_name"`
	Severity string      `json:"severity"`
	Status   AlertStatus `json:"status"`

	TriggeredAt time.Time `json:"triggered_at"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Lifecycle timestamps are stamped when the matching status is entered
	// and never cleared, even if the status is later reverted.
	AcknowledgedAt         *time.Time `json:"acknowledged_at,omitempty"`
	InvestigationStartedAt *time.Time `json:"investigation_started_at,omitempty"`
	ResolvedAt             *time.Time `json:"resolved_at,omitempty"`
	ClosedAt               *time.Time `json:"closed_at,omitempty"`
	FalsePositiveAt        *time.Time `json:"false_positive_at,omitempty"`

	SourceIP      string `json:"source_ip,omitempty"`
	DestinationIP string `json:"destination_ip,omitempty"`

	MatchedConditions []string               `json:"matched_conditions,omitempty"`
	AggregationCount  int                    `json:"aggregation_count,omitempty"`
	AggregationValue  float64                `json:"aggregation_value,omitempty"`
	Context           map[string]interface{} `json:"context,omitempty"`
	StatusHistory     []StatusTransition     `json:"status_history,omitempty"`
	DedupKey          string                 `json:"dedup_key,omitempty"`
}

// NewAlert materializes an alert from a rule and the evaluation result that
// fired it. The triggering envelope supplies source/destination context.
func NewAlert(rule *CorrelationRule, result *EvaluationResult, env *EventEnvelope) (*Alert, error) {
	if rule == nil {
		return nil, fmt.Errorf("cannot create alert from nil rule")
	}
	if result == nil || !result.ShouldTriggerAlert {
		return nil, fmt.Errorf("cannot create alert from non-triggering result")
	}

	now := time.Now().UTC()
	a := &Alert{
		ID:                uuid.New().String(),
		RuleID:            rule.ID,
		RuleName:          rule.Name,
		Severity:          rule.Severity,
		Status:            AlertStatusNew,
		TriggeredAt:       now,
		FirstSeen:         now,
		LastSeen:          now,
		CreatedAt:         now,
		UpdatedAt:         now,
		MatchedConditions: result.MatchedConditions,
		AggregationCount:  result.AggregationCount,
		AggregationValue:  result.AggregationValue,
		Context:           result.Context,
	}

	if env != nil {
		if env.Normalized != nil {
			a.SourceIP = env.Normalized.SourceIP
			a.DestinationIP = env.Normalized.DestinationIP
			if !env.Normalized.Timestamp.IsZero() {
				a.TriggeredAt = env.Normalized.Timestamp
				a.FirstSeen = env.Normalized.Timestamp
				a.LastSeen = env.Normalized.Timestamp
			}
		}
		a.DedupKey = BuildDedupKey(rule.ID, a.SourceIP, result.Context)
	}

	return a, nil
}

// BuildDedupKey derives the key used to recognize repeat occurrences of the
// same incident: rule id, source, and the aggregation group when present.
func BuildDedupKey(ruleID, sourceIP string, context map[string]interface{}) string {
	parts := []string{ruleID}
	if group, ok := context["group_key"].(string); ok && group != "" {
		parts = append(parts, group)
	}
	if sourceIP != "" {
		parts = append(parts, sourceIP)
	}
	return strings.Join(parts, "|")
}
