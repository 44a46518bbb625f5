package detect

import (
	"context"
	"fmt"
	"time"

	"vigil/core"

	"go.uber.org/zap"
)

// AggregationStore is the shared counter backend for streaming aggregation.
// Keys are opaque to implementations; callers own the key schema.
type AggregationStore interface {
	// IncrementAndGet atomically increments the counter at key and returns
	// the post-increment value, setting ttl on first touch.
	IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the counter value, 0 when the key does not exist.
	Get(ctx context.Context, key string) (int64, error)
	// DeleteExpiredBuckets removes counters for ruleID whose bucket index is
	// older than currentBucket, returning how many were deleted.
	DeleteExpiredBuckets(ctx context.Context, ruleID string, currentBucket int64) (int, error)
}

// AggregationEvaluator evaluates streaming aggregation conditions against
// wall-clock bucket counters in the shared store. Buckets are fixed windows
// keyed by floor(now/windowSeconds), so every engine instance incrementing
// the same group lands on the same counter.
type AggregationEvaluator struct {
	store    AggregationStore
	resolver *FieldResolver
	logger   *zap.SugaredLogger

	// now is replaceable in tests to pin bucket boundaries.
	now func() time.Time
}

// NewAggregationEvaluator creates a streaming evaluator backed by store.
func NewAggregationEvaluator(store AggregationStore, resolver *FieldResolver, logger *zap.SugaredLogger) *AggregationEvaluator {
	return &AggregationEvaluator{
		store:    store,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// EvaluateStreaming records env against every streaming condition of rule and
// reports whether all of them are satisfied in the current bucket. The
// returned count is the largest counter observed. Store failures propagate:
// a broken backend must not silently disable stateful detection.
func (a *AggregationEvaluator) EvaluateStreaming(ctx context.Context, rule *core.CorrelationRule, env *core.EventEnvelope) (bool, int64, error) {
	conds := rule.StreamingConditions()
	if len(conds) == 0 {
		return false, 0, nil
	}

	satisfied := true
	var maxCount int64
	for _, cond := range conds {
		agg := cond.Aggregation
		if agg.WindowSeconds <= 0 {
			return false, 0, fmt.Errorf("rule %s: streaming condition on %s has non-positive window", rule.ID, cond.Field)
		}

		group := a.groupValue(env, agg.GroupByField)
		bucket := a.now().Unix() / agg.WindowSeconds
		key := BucketKey(rule.ID, group, bucket)

		// TTL outlives the window so late readers in the same bucket still
		// see the counter.
		ttl := 2 * time.Duration(agg.WindowSeconds) * time.Second
		count, err := a.store.IncrementAndGet(ctx, key, ttl)
		if err != nil {
			return false, 0, fmt.Errorf("failed to increment aggregation counter %s: %w", key, err)
		}
		if count > maxCount {
			maxCount = count
		}

		if !thresholdMet(cond, count) {
			satisfied = false
		}
	}
	return satisfied, maxCount, nil
}

// CleanupExpired deletes counters from buckets older than the current one for
// each streaming window the rule carries.
func (a *AggregationEvaluator) CleanupExpired(ctx context.Context, rule *core.CorrelationRule) (int, error) {
	total := 0
	for _, cond := range rule.StreamingConditions() {
		if cond.Aggregation.WindowSeconds <= 0 {
			continue
		}
		currentBucket := a.now().Unix() / cond.Aggregation.WindowSeconds
		n, err := a.store.DeleteExpiredBuckets(ctx, rule.ID, currentBucket)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (a *AggregationEvaluator) groupValue(env *core.EventEnvelope, field string) string {
	if field == "" {
		return "all"
	}
	value, ok := a.resolver.Resolve(env, field)
	if !ok {
		return "unknown"
	}
	return valueToString(value)
}

// thresholdMet reports count >= threshold, the threshold being the streaming
// condition's value coerced to an integer. A non-numeric threshold never
// satisfies.
func thresholdMet(cond core.Condition, count int64) bool {
	threshold, ok := toNumber(cond.Value)
	if !ok {
		return false
	}
	return count >= int64(threshold)
}

// BucketKey builds the shared counter key for a rule, group and bucket index.
func BucketKey(ruleID, group string, bucket int64) string {
	return fmt.Sprintf("agg:%s:%s:%d", ruleID, group, bucket)
}
