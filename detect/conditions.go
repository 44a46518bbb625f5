package detect

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vigil/core"
	"vigil/metrics"

	"go.uber.org/zap"
)

// ConditionEvaluator applies a single condition predicate to a resolved field
// value. It is pure per call and safe for concurrent use; the only shared
// state is the read-mostly regex cache.
type ConditionEvaluator struct {
	regexCache *RegexCache
	logger     *zap.SugaredLogger
}

// NewConditionEvaluator creates a condition evaluator.
func NewConditionEvaluator(logger *zap.SugaredLogger) (*ConditionEvaluator, error) {
	cache, err := NewRegexCache()
	if err != nil {
		return nil, err
	}
	return &ConditionEvaluator{regexCache: cache, logger: logger}, nil
}

// Evaluate applies the condition to a resolved value. present distinguishes
// an absent field from a present zero value. Data errors (malformed regex,
// non-numeric comparison) evaluate to false, never to a raised error:
// detection logic stays total over the input space.
func (e *ConditionEvaluator) Evaluate(cond core.Condition, value interface{}, present bool) bool {
	result := e.apply(cond, value, present)
	if cond.Negate {
		result = !result
	}
	return result
}

func (e *ConditionEvaluator) apply(cond core.Condition, value interface{}, present bool) bool {
	// Existence checks look only at absence, ignoring the comparison value.
	switch cond.Operator {
	case core.OpExists:
		return present
	case core.OpNotExists:
		return !present
	}

	if !present {
		return false
	}

	switch cond.Operator {
	case core.OpEquals:
		return looseEquals(value, cond.Value, cond.CaseSensitive)
	case core.OpNotEquals:
		return !looseEquals(value, cond.Value, cond.CaseSensitive)
	case core.OpContains:
		return stringOp(value, cond.Value, cond.CaseSensitive, strings.Contains)
	case core.OpNotContains:
		return !stringOp(value, cond.Value, cond.CaseSensitive, strings.Contains)
	case core.OpStartsWith:
		return stringOp(value, cond.Value, cond.CaseSensitive, strings.HasPrefix)
	case core.OpEndsWith:
		return stringOp(value, cond.Value, cond.CaseSensitive, strings.HasSuffix)
	case core.OpGreaterThan:
		return numericCompare(value, cond.Value, func(a, b float64) bool { return a > b })
	case core.OpGreaterThanOrEqual:
		return numericCompare(value, cond.Value, func(a, b float64) bool { return a >= b })
	case core.OpLessThan:
		return numericCompare(value, cond.Value, func(a, b float64) bool { return a < b })
	case core.OpLessThanOrEqual:
		return numericCompare(value, cond.Value, func(a, b float64) bool { return a <= b })
	case core.OpIn:
		return e.membership(cond, value)
	case core.OpNotIn:
		return !e.membership(cond, value)
	case core.OpRegex:
		return e.regexMatch(cond, value)
	default:
		e.logger.Warnw("Unknown condition operator", "operator", cond.Operator, "field", cond.Field)
		return false
	}
}

// membership checks In semantics: the comparison value may be list-shaped or
// a scalar; each candidate compares with the same numeric-first rule as Equals.
func (e *ConditionEvaluator) membership(cond core.Condition, value interface{}) bool {
	for _, candidate := range candidates(cond.Value) {
		if looseEquals(value, candidate, cond.CaseSensitive) {
			return true
		}
	}
	return false
}

func (e *ConditionEvaluator) regexMatch(cond core.Condition, value interface{}) bool {
	pattern := valueToString(cond.Value)
	if pattern == "" {
		return false
	}
	match, err := e.regexCache.Match(pattern, valueToString(value))
	if err != nil {
		metrics.RegexEvaluationFailures.Inc()
		e.logger.Warnw("Regex condition failed, treating as no match",
			"field", cond.Field, "pattern", pattern, "error", err)
		return false
	}
	return match
}

// candidates normalizes a comparison value into a list of candidates.
func candidates(v interface{}) []interface{} {
	switch list := v.(type) {
	case []interface{}:
		return list
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []interface{}{v}
	}
}

// looseEquals attempts numeric comparison first (so "5" equals 5), falling
// back to string equality honoring the case-sensitivity flag.
func looseEquals(a, b interface{}, caseSensitive bool) bool {
	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	if okA && okB {
		return fa == fb
	}

	sa, sb := valueToString(a), valueToString(b)
	if caseSensitive {
		return sa == sb
	}
	return strings.EqualFold(sa, sb)
}

func stringOp(value, comparison interface{}, caseSensitive bool, op func(s, substr string) bool) bool {
	s, sub := valueToString(value), valueToString(comparison)
	if !caseSensitive {
		s, sub = strings.ToLower(s), strings.ToLower(sub)
	}
	return op(s, sub)
}

// numericCompare coerces both sides to float64; a non-numeric side makes the
// comparison false rather than raising an error.
func numericCompare(a, b interface{}, cmp func(a, b float64) bool) bool {
	fa, okA := toNumber(a)
	fb, okB := toNumber(b)
	if !okA || !okB {
		return false
	}
	return cmp(fa, fb)
}

// toNumber coerces common scalar shapes to float64.
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func valueToString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case time.Time:
		return s.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
