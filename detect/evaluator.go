package detect

import (
	"fmt"
	"sort"
	"strings"

	"vigil/core"

	"go.uber.org/zap"
)

// Reason strings reported on evaluation results. Tests and operators depend
// on the three no-match outcomes staying distinct.
const (
	reasonDisabled       = "Rule is disabled"
	reasonNoNormalized   = "Event has no normalized data"
	reasonTriggerMiss    = "Event did not match trigger criteria"
	reasonNoEvents       = "No events to evaluate"
	reasonNoEventMatches = "No events matched rule criteria"
	reasonNoGroupMet     = "No aggregation group met the threshold"
)

// RuleEvaluator orchestrates trigger matching, condition evaluation and
// in-batch windowed aggregation. It is stateless across calls apart from the
// rule definitions it receives, and safe for concurrent use.
type RuleEvaluator struct {
	resolver   *FieldResolver
	conditions *ConditionEvaluator
	logger     *zap.SugaredLogger
}

// NewRuleEvaluator creates a rule evaluator.
func NewRuleEvaluator(logger *zap.SugaredLogger) (*RuleEvaluator, error) {
	conditions, err := NewConditionEvaluator(logger)
	if err != nil {
		return nil, err
	}
	return &RuleEvaluator{
		resolver:   NewFieldResolver(),
		conditions: conditions,
		logger:     logger,
	}, nil
}

// Resolver exposes the field resolver for collaborators that share the
// enumerated accessor table (streaming aggregation, alert context assembly).
func (e *RuleEvaluator) Resolver() *FieldResolver {
	return e.resolver
}

// Evaluate performs single-event stateless evaluation. Rules carrying an
// aggregation window report a match but defer the alerting decision to the
// batch path.
func (e *RuleEvaluator) Evaluate(rule *core.CorrelationRule, env *core.EventEnvelope) *core.EvaluationResult {
	if !rule.Enabled {
		return core.NoMatch(reasonDisabled)
	}
	if env == nil || env.Normalized == nil {
		return core.NoMatch(reasonNoNormalized)
	}

	if !e.matchesTrigger(rule, env) {
		return core.NoMatch(reasonTriggerMiss)
	}

	matched, failed := e.checkConditions(rule, env)
	if failed != "" {
		return core.NoMatch(failed)
	}

	result := &core.EvaluationResult{
		IsMatch:           true,
		MatchedConditions: matched,
		Context:           e.buildContext(env),
	}
	if rule.HasAggregation() || len(rule.StreamingConditions()) > 0 {
		result.Reason = "Conditions matched; aggregation decision deferred"
	} else {
		result.ShouldTriggerAlert = true
		result.Reason = "All conditions matched"
	}
	return result
}

// EvaluateWithAggregation evaluates a rule against an ordered batch of
// envelopes. The window is the tail slice ending at the latest matching
// event, not a fixed calendar bucket; groups are checked in encounter order
// and the first satisfying group wins.
func (e *RuleEvaluator) EvaluateWithAggregation(rule *core.CorrelationRule, envs []*core.EventEnvelope) *core.EvaluationResult {
	if !rule.Enabled {
		return core.NoMatch(reasonDisabled)
	}
	if len(envs) == 0 {
		return core.NoMatch(reasonNoEvents)
	}

	normalized := make([]*core.EventEnvelope, 0, len(envs))
	for _, env := range envs {
		if env != nil && env.Normalized != nil {
			normalized = append(normalized, env)
		}
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Normalized.Timestamp.Before(normalized[j].Normalized.Timestamp)
	})

	if !rule.HasAggregation() {
		if len(normalized) == 0 {
			return e.Evaluate(rule, envs[len(envs)-1])
		}
		return e.Evaluate(rule, normalized[len(normalized)-1])
	}

	// Per-event trigger+condition pass; the aggregation window plays no part
	// in deciding which events count as matches.
	var matches []*core.EventEnvelope
	var allMatched []string
	seen := make(map[string]bool)
	for _, env := range normalized {
		if !e.matchesTrigger(rule, env) {
			continue
		}
		matched, failed := e.checkConditions(rule, env)
		if failed != "" {
			continue
		}
		matches = append(matches, env)
		for _, m := range matched {
			if !seen[m] {
				seen[m] = true
				allMatched = append(allMatched, m)
			}
		}
	}
	if len(matches) == 0 {
		return &core.EvaluationResult{IsMatch: false, Reason: reasonNoEventMatches}
	}

	// Tail window: right edge is the latest matching event.
	window := rule.Aggregation.Duration()
	rightEdge := matches[len(matches)-1].Normalized.Timestamp
	cutoff := rightEdge.Add(-window)
	windowed := matches[:0:0]
	for _, env := range matches {
		if !env.Normalized.Timestamp.Before(cutoff) {
			windowed = append(windowed, env)
		}
	}

	groupKeys, groups := e.groupEvents(rule, windowed)

	for _, key := range groupKeys {
		events := groups[key]
		aggValue := e.computeAggregate(rule.Aggregation, events)
		if !aggregateSatisfies(rule.Aggregation.Having, aggValue, len(events)) {
			continue
		}

		latest := events[len(events)-1]
		ctx := e.buildContext(latest)
		ctx["group_key"] = key
		ctx["group_size"] = len(events)
		return &core.EvaluationResult{
			IsMatch:            true,
			ShouldTriggerAlert: true,
			Reason:             fmt.Sprintf("Aggregation threshold met for group %q (%d events)", key, len(events)),
			MatchedConditions:  allMatched,
			AggregationCount:   len(events),
			AggregationValue:   aggValue,
			Context:            ctx,
		}
	}

	return &core.EvaluationResult{
		IsMatch:           false,
		Reason:            reasonNoGroupMet,
		MatchedConditions: allMatched,
		AggregationCount:  len(windowed),
	}
}

// matchesTrigger applies the rule's trigger gate. An empty trigger list, or a
// trigger without filters whose event type matches, passes unconditionally.
func (e *RuleEvaluator) matchesTrigger(rule *core.CorrelationRule, env *core.EventEnvelope) bool {
	if len(rule.Triggers) == 0 {
		return true
	}
	eventType := normalizeEventType(env.Normalized.EventType)
	for _, trigger := range rule.Triggers {
		if trigger.EventType != "" && normalizeEventType(trigger.EventType) != eventType {
			continue
		}
		if e.filtersMatch(trigger.Filters, env) {
			return true
		}
	}
	return false
}

func (e *RuleEvaluator) filtersMatch(filters map[string]string, env *core.EventEnvelope) bool {
	for field, expected := range filters {
		value, ok := e.resolver.Resolve(env, field)
		if !ok {
			return false
		}
		if !strings.EqualFold(valueToString(value), expected) {
			return false
		}
	}
	return true
}

// checkConditions evaluates every condition in order, short-circuiting on the
// first failure. Conditions carrying a streaming aggregation clause are the
// distributed evaluator's responsibility and are skipped here.
func (e *RuleEvaluator) checkConditions(rule *core.CorrelationRule, env *core.EventEnvelope) (matched []string, failReason string) {
	for _, cond := range rule.Conditions {
		if cond.Aggregation != nil {
			continue
		}
		value, present := e.resolver.Resolve(env, cond.Field)
		if !e.conditions.Evaluate(cond, value, present) {
			return nil, fmt.Sprintf("Condition not met: %s %s", cond.Field, cond.Operator)
		}
		matched = append(matched, describeCondition(cond))
	}
	return matched, ""
}

// groupEvents partitions events by the rule's group-by fields, preserving the
// relative order in which groups are first encountered. With no group-by
// fields, everything aggregates into a single implicit "all" group.
func (e *RuleEvaluator) groupEvents(rule *core.CorrelationRule, events []*core.EventEnvelope) ([]string, map[string][]*core.EventEnvelope) {
	groups := make(map[string][]*core.EventEnvelope)
	var keys []string
	for _, env := range events {
		key := e.groupKey(rule.Aggregation.GroupBy, env)
		if _, exists := groups[key]; !exists {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], env)
	}
	return keys, groups
}

func (e *RuleEvaluator) groupKey(groupBy []string, env *core.EventEnvelope) string {
	if len(groupBy) == 0 {
		return "all"
	}
	parts := make([]string, len(groupBy))
	for i, field := range groupBy {
		value, ok := e.resolver.Resolve(env, field)
		if !ok {
			parts[i] = "unknown"
			continue
		}
		parts[i] = valueToString(value)
	}
	return strings.Join(parts, "|")
}

// computeAggregate reduces a group to its aggregate value. Count and
// TimeWindow count events; Sum/Average/Min/Max reduce the numeric values of
// the having field, degrading to the event count when no having clause names
// a field.
func (e *RuleEvaluator) computeAggregate(window *core.AggregationWindow, events []*core.EventEnvelope) float64 {
	switch window.Function {
	case core.AggSum, core.AggAverage, core.AggMin, core.AggMax:
		if window.Having == nil || window.Having.Field == "" || window.Having.Field == "count" {
			return float64(len(events))
		}
		return e.reduceNumeric(window.Function, window.Having.Field, events)
	default: // count, time_window
		return float64(len(events))
	}
}

func (e *RuleEvaluator) reduceNumeric(fn core.AggregationFunction, field string, events []*core.EventEnvelope) float64 {
	var sum, min, max float64
	count := 0
	for _, env := range events {
		value, ok := e.resolver.Resolve(env, field)
		if !ok {
			continue
		}
		n, ok := toNumber(value)
		if !ok {
			continue
		}
		if count == 0 {
			min, max = n, n
		} else {
			if n < min {
				min = n
			}
			if n > max {
				max = n
			}
		}
		sum += n
		count++
	}
	if count == 0 {
		return 0
	}
	switch fn {
	case core.AggSum:
		return sum
	case core.AggAverage:
		return sum / float64(count)
	case core.AggMin:
		return min
	case core.AggMax:
		return max
	default:
		return float64(count)
	}
}

// aggregateSatisfies applies the having threshold; without one, any non-empty
// group satisfies the rule.
func aggregateSatisfies(having *core.HavingClause, aggValue float64, groupSize int) bool {
	if having == nil {
		return groupSize > 0
	}
	switch having.Operator {
	case core.OpGreaterThan:
		return aggValue > having.Value
	case core.OpGreaterThanOrEqual:
		return aggValue >= having.Value
	case core.OpLessThan:
		return aggValue < having.Value
	case core.OpLessThanOrEqual:
		return aggValue <= having.Value
	case core.OpEquals:
		return aggValue == having.Value
	case core.OpNotEquals:
		return aggValue != having.Value
	default:
		return false
	}
}

// buildContext assembles the context mapping handed to alert creation.
func (e *RuleEvaluator) buildContext(env *core.EventEnvelope) map[string]interface{} {
	ctx := map[string]interface{}{
		"event_id":    env.ID,
		"source":      env.Source,
		"source_type": env.SourceType,
	}
	if n := env.Normalized; n != nil {
		ctx["event_type"] = n.EventType
		ctx["severity"] = n.Severity
		ctx["timestamp"] = n.Timestamp
		if n.SourceIP != "" {
			ctx["source_ip"] = n.SourceIP
		}
		if n.DestinationIP != "" {
			ctx["destination_ip"] = n.DestinationIP
		}
		if n.Protocol != "" {
			ctx["protocol"] = n.Protocol
		}
	}
	if len(env.Enrichment) > 0 {
		ctx["enrichment"] = env.Enrichment
	}
	return ctx
}

func describeCondition(cond core.Condition) string {
	if cond.Operator == core.OpExists || cond.Operator == core.OpNotExists {
		return fmt.Sprintf("%s %s", cond.Field, cond.Operator)
	}
	return fmt.Sprintf("%s %s %v", cond.Field, cond.Operator, cond.Value)
}

func normalizeEventType(eventType string) string {
	return strings.ToLower(strings.TrimSpace(eventType))
}
