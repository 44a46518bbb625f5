package detect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vigil/metrics"

	"github.com/redis/go-redis/v9"
)

// RedisAggregationStore implements AggregationStore on Redis. INCR+EXPIRE run
// in one pipeline round trip; INCR's atomicity is what keeps concurrent engine
// instances counting correctly against the same bucket.
type RedisAggregationStore struct {
	client redis.UniversalClient
}

// NewRedisAggregationStore wraps an existing client.
func NewRedisAggregationStore(client redis.UniversalClient) *RedisAggregationStore {
	return &RedisAggregationStore{client: client}
}

// IncrementAndGet atomically increments the counter at key. The TTL is
// refreshed on every increment, which is acceptable because bucket keys stop
// being written once their wall-clock window passes.
func (s *RedisAggregationStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.AggregationStoreErrors.WithLabelValues("increment").Inc()
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Get returns the counter value, 0 for a missing key.
func (s *RedisAggregationStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		metrics.AggregationStoreErrors.WithLabelValues("get").Inc()
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return val, nil
}

// DeleteExpiredBuckets scans the rule's counter keyspace and deletes keys
// whose trailing bucket index is older than currentBucket. TTLs already bound
// staleness; this keeps the keyspace tidy between expiries.
func (s *RedisAggregationStore) DeleteExpiredBuckets(ctx context.Context, ruleID string, currentBucket int64) (int, error) {
	pattern := fmt.Sprintf("agg:%s:*", ruleID)
	deleted := 0

	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		bucket, ok := bucketIndex(key)
		if !ok {
			continue
		}
		if bucket < currentBucket {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				metrics.AggregationStoreErrors.WithLabelValues("delete").Inc()
				return deleted, fmt.Errorf("failed to delete expired counter %s: %w", key, err)
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		metrics.AggregationStoreErrors.WithLabelValues("scan").Inc()
		return deleted, fmt.Errorf("failed to scan counters for rule %s: %w", ruleID, err)
	}
	return deleted, nil
}

// bucketIndex parses the trailing bucket segment of a counter key. Group
// values may themselves contain colons, so only the last segment counts.
func bucketIndex(key string) (int64, bool) {
	idx := strings.LastIndexByte(key, ':')
	if idx < 0 || idx == len(key)-1 {
		return 0, false
	}
	bucket, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return bucket, true
}
