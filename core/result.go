package core

// EvaluationResult is the outcome of evaluating one rule against one envelope
// or one batch. Produced fresh per call and never mutated after return.
//
// IsMatch and ShouldTriggerAlert are distinct: a single-event match against a
// rule with an aggregation window is reported (IsMatch=true) but the alerting
// decision belongs to the batch path, so ShouldTriggerAlert stays false.
type EvaluationResult struct {
	IsMatch            bool                   `json:"is_match"`
	ShouldTriggerAlert bool                   `json:"should_trigger_alert"`
	Reason             string                 `json:"reason,omitempty"`
	MatchedConditions  []string               `json:"matched_conditions,omitempty"`
	AggregationCount   int                    `json:"aggregation_count,omitempty"`
	AggregationValue   float64                `json:"aggregation_value,omitempty"`
	Context            map[string]interface{} `json:"context,omitempty"`
}

// NoMatch builds a non-matching result with the given reason.
func NoMatch(reason string) *EvaluationResult {
	return &EvaluationResult{IsMatch: false, Reason: reason}
}
