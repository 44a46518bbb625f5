package core

import (
	"fmt"
	"time"
)

// ConditionOperator identifies a condition predicate.
type ConditionOperator string

const (
	OpExists             ConditionOperator = "exists"
	OpNotExists          ConditionOperator = "not_exists"
	OpEquals             ConditionOperator = "equals"
	OpNotEquals          ConditionOperator = "not_equals"
	OpContains           ConditionOperator = "contains"
	OpNotContains        ConditionOperator = "not_contains"
	OpStartsWith         ConditionOperator = "starts_with"
	OpEndsWith           ConditionOperator = "ends_with"
	OpGreaterThan        ConditionOperator = "greater_than"
	OpGreaterThanOrEqual ConditionOperator = "greater_than_or_equal"
	OpLessThan           ConditionOperator = "less_than"
	OpLessThanOrEqual    ConditionOperator = "less_than_or_equal"
	OpIn                 ConditionOperator = "in"
	OpNotIn              ConditionOperator = "not_in"
	OpRegex              ConditionOperator = "regex"
)

// IsValid reports whether the operator is one of the supported predicates.
func (op ConditionOperator) IsValid() bool {
	switch op {
	case OpExists, OpNotExists, OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpStartsWith, OpEndsWith, OpGreaterThan, OpGreaterThanOrEqual,
		OpLessThan, OpLessThanOrEqual, OpIn, OpNotIn, OpRegex:
		return true
	default:
		return false
	}
}

// AggregationFunction identifies how a window of events is reduced to a value.
type AggregationFunction string

const (
	AggCount      AggregationFunction = "count"
	AggSum        AggregationFunction = "sum"
	AggAverage    AggregationFunction = "average"
	AggMin        AggregationFunction = "min"
	AggMax        AggregationFunction = "max"
	AggTimeWindow AggregationFunction = "time_window"
)

// WindowUnit is the unit of an aggregation window size.
type WindowUnit string

const (
	UnitSeconds WindowUnit = "seconds"
	UnitMinutes WindowUnit = "minutes"
	UnitHours   WindowUnit = "hours"
	UnitDays    WindowUnit = "days"
)

// Duration converts a window size in this unit into a time.Duration.
// Unknown units fall back to seconds so a misconfigured rule degrades to the
// tightest window instead of silently matching everything.
func (u WindowUnit) Duration(size int) time.Duration {
	switch u {
	case UnitMinutes:
		return time.Duration(size) * time.Minute
	case UnitHours:
		return time.Duration(size) * time.Hour
	case UnitDays:
		return time.Duration(size) * 24 * time.Hour
	default:
		return time.Duration(size) * time.Second
	}
}

// Trigger is the coarse gate a rule applies before evaluating conditions: an
// event-type filter plus optional field/value filters. An empty trigger list on
// a rule, or a trigger with no filters, matches unconditionally.
type Trigger struct {
	Type      string            `json:"type" yaml:"type"`
	EventType string            `json:"event_type" yaml:"event_type"`
	Filters   map[string]string `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// StreamAggregation declares the distributed (streaming) counter clause on a
// condition: events are counted per group in fixed wall-clock buckets and the
// condition's value acts as the threshold.
type StreamAggregation struct {
	Function      AggregationFunction `json:"function" yaml:"function"`
	GroupByField  string              `json:"group_by_field" yaml:"group_by_field"`
	WindowSeconds int64               `json:"window_seconds" yaml:"window_seconds" validate:"gt=0"`
}

// Condition is a field/operator/value predicate evaluated against a resolved
// envelope field.
type Condition struct {
	Field         string             `json:"field" yaml:"field" validate:"required"`
	Operator      ConditionOperator  `json:"operator" yaml:"operator" validate:"required"`
	Value         interface{}        `json:"value,omitempty" yaml:"value,omitempty"`
	CaseSensitive bool               `json:"case_sensitive" yaml:"case_sensitive"`
	Negate        bool               `json:"negate" yaml:"negate"`
	Aggregation   *StreamAggregation `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
}

// HavingClause is the threshold check applied to a window aggregate.
type HavingClause struct {
	Field    string            `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    float64           `json:"value" yaml:"value"`
}

// AggregationWindow describes in-batch windowed aggregation: function, window
// size/unit, optional group-by fields and an optional having threshold.
type AggregationWindow struct {
	Function AggregationFunction `json:"function" yaml:"function" validate:"required"`
	Size     int                 `json:"size" yaml:"size" validate:"gt=0"`
	Unit     WindowUnit          `json:"unit" yaml:"unit" validate:"required"`
	GroupBy  []string            `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	Having   *HavingClause       `json:"having,omitempty" yaml:"having,omitempty"`
}

// Duration returns the window span.
func (w *AggregationWindow) Duration() time.Duration {
	return w.Unit.Duration(w.Size)
}

// Action describes what to do when a rule fires. Execution is delegated to
// external tooling; the engine only carries the declaration through to alerts.
type Action struct {
	Type   string                 `json:"type" yaml:"type"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// CorrelationRule is a declarative detection: triggers, conditions, optional
// aggregation window and actions. Rules are read-only once loaded; a reload
// replaces the whole snapshot (see SnapshotStore).
type CorrelationRule struct {
	ID          string             `json:"id" yaml:"id" validate:"required"`
	Name        string             `json:"name" yaml:"name" validate:"required"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool               `json:"enabled" yaml:"enabled"`
	Severity    string             `json:"severity" yaml:"severity" validate:"required,oneof=info low medium high critical"`
	Triggers    []Trigger          `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Conditions  []Condition        `json:"conditions,omitempty" yaml:"conditions,omitempty" validate:"dive"`
	Aggregation *AggregationWindow `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	Actions     []Action           `json:"actions,omitempty" yaml:"actions,omitempty"`
	Tags        []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt   time.Time          `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// HasAggregation reports whether the rule uses in-batch windowed aggregation.
func (r *CorrelationRule) HasAggregation() bool {
	return r.Aggregation != nil
}

// StreamingConditions returns the conditions carrying a distributed counter
// clause, in declaration order.
func (r *CorrelationRule) StreamingConditions() []Condition {
	var out []Condition
	for _, c := range r.Conditions {
		if c.Aggregation != nil {
			out = append(out, c)
		}
	}
	return out
}

// Validate performs structural validation beyond struct tags: operator names
// and aggregation clauses must be well formed. Configuration errors are raised
// to the caller, unlike data errors during evaluation which degrade to no-match.
func (r *CorrelationRule) Validate() error {
	if r == nil {
		return fmt.Errorf("cannot validate nil rule")
	}
	for i, c := range r.Conditions {
		if !c.Operator.IsValid() {
			return fmt.Errorf("rule %s: condition %d: unknown operator %q", r.ID, i, c.Operator)
		}
		if c.Aggregation != nil && c.Aggregation.WindowSeconds <= 0 {
			return fmt.Errorf("rule %s: condition %d: aggregation window must be positive", r.ID, i)
		}
	}
	if r.Aggregation != nil {
		if r.Aggregation.Size <= 0 {
			return fmt.Errorf("rule %s: aggregation window size must be positive", r.ID)
		}
		if r.Aggregation.Having != nil && !r.Aggregation.Having.Operator.IsValid() {
			return fmt.Errorf("rule %s: having clause: unknown operator %q", r.ID, r.Aggregation.Having.Operator)
		}
	}
	return nil
}
