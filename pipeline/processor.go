package pipeline

import (
	"context"
	"fmt"
	"time"

	"vigil/core"
	"vigil/detect"
	"vigil/metrics"
	"vigil/notify"
	"vigil/storage"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const dedupCacheSize = 4096

// DefaultDedupWindow suppresses repeat alerts for the same incident key.
const DefaultDedupWindow = 5 * time.Minute

// Processor evaluates flushed batches against the current rule snapshot and
// materializes alerts. One rule failing (even panicking) never poisons the
// rest of the batch.
type Processor struct {
	snapshots   *core.SnapshotStore
	evaluator   *detect.RuleEvaluator
	streaming   *detect.AggregationEvaluator
	store       storage.AlertStore
	publisher   notify.Publisher
	dedup       *lru.Cache[string, time.Time]
	dedupWindow time.Duration
	logger      *zap.SugaredLogger
}

// NewProcessor wires the batch processor. streaming may be nil when no shared
// counter backend is configured; streaming conditions then never fire.
func NewProcessor(
	snapshots *core.SnapshotStore,
	evaluator *detect.RuleEvaluator,
	streaming *detect.AggregationEvaluator,
	store storage.AlertStore,
	publisher notify.Publisher,
	logger *zap.SugaredLogger,
) (*Processor, error) {
	dedup, err := lru.New[string, time.Time](dedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &Processor{
		snapshots:   snapshots,
		evaluator:   evaluator,
		streaming:   streaming,
		store:       store,
		publisher:   publisher,
		dedup:       dedup,
		dedupWindow: DefaultDedupWindow,
		logger:      logger,
	}, nil
}

// ProcessBatch runs every enabled rule from the current snapshot over the
// batch. The snapshot is read once so a concurrent reload cannot give two
// rules different rule sets within one batch.
func (p *Processor) ProcessBatch(ctx context.Context, batch []*core.EventEnvelope) error {
	if len(batch) == 0 {
		return nil
	}

	snapshot := p.snapshots.Current()
	for i := range snapshot.Rules {
		rule := &snapshot.Rules[i]
		if !rule.Enabled {
			continue
		}
		p.evaluateRule(ctx, rule, batch)
	}
	return nil
}

// evaluateRule isolates one rule: a panic in rule evaluation is recovered,
// counted and logged without touching the other rules.
func (p *Processor) evaluateRule(ctx context.Context, rule *core.CorrelationRule, batch []*core.EventEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RuleEvaluationFailures.WithLabelValues(rule.ID).Inc()
			p.logger.Errorw("Rule evaluation panicked", "rule_id", rule.ID, "panic", r)
		}
	}()

	switch {
	case len(rule.StreamingConditions()) > 0:
		p.evaluateStreamingRule(ctx, rule, batch)
	case rule.HasAggregation():
		result := p.evaluator.EvaluateWithAggregation(rule, batch)
		if result.ShouldTriggerAlert {
			p.emitAlert(ctx, rule, result, findEnvelope(batch, result))
		}
	default:
		for _, env := range batch {
			result := p.evaluator.Evaluate(rule, env)
			if result.ShouldTriggerAlert {
				p.emitAlert(ctx, rule, result, env)
			}
		}
	}
}

// evaluateStreamingRule feeds each stateless match into the distributed
// counters and fires when the threshold is crossed. Store failures are
// infrastructure errors: they are logged and counted, never treated as
// "condition not met".
func (p *Processor) evaluateStreamingRule(ctx context.Context, rule *core.CorrelationRule, batch []*core.EventEnvelope) {
	if p.streaming == nil {
		return
	}
	for _, env := range batch {
		result := p.evaluator.Evaluate(rule, env)
		if !result.IsMatch {
			continue
		}
		satisfied, count, err := p.streaming.EvaluateStreaming(ctx, rule, env)
		if err != nil {
			metrics.RuleEvaluationFailures.WithLabelValues(rule.ID).Inc()
			p.logger.Errorw("Streaming aggregation failed", "rule_id", rule.ID, "error", err)
			continue
		}
		if !satisfied {
			continue
		}
		result.ShouldTriggerAlert = true
		result.AggregationCount = int(count)
		result.AggregationValue = float64(count)
		result.Reason = fmt.Sprintf("Streaming threshold met (%d events in window)", count)
		p.emitAlert(ctx, rule, result, env)
	}
}

func (p *Processor) emitAlert(ctx context.Context, rule *core.CorrelationRule, result *core.EvaluationResult, env *core.EventEnvelope) {
	alert, err := core.NewAlert(rule, result, env)
	if err != nil {
		p.logger.Errorw("Failed to materialize alert", "rule_id", rule.ID, "error", err)
		return
	}

	if p.isDuplicate(alert) {
		metrics.AlertsDeduplicated.Inc()
		p.logger.Debugw("Alert suppressed by dedup", "rule_id", rule.ID, "dedup_key", alert.DedupKey)
		return
	}

	if err := p.store.Create(ctx, alert); err != nil {
		p.logger.Errorw("Failed to persist alert", "alert_id", alert.ID, "rule_id", rule.ID, "error", err)
		// Publication still proceeds: losing the record is bad, staying
		// silent about the incident is worse.
	}

	metrics.AlertsGenerated.WithLabelValues(alert.Severity).Inc()
	p.logger.Infow("Alert generated",
		"alert_id", alert.ID, "rule_id", rule.ID, "severity", alert.Severity,
		"source_ip", alert.SourceIP, "reason", result.Reason)

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, alert); err != nil {
			p.logger.Errorw("Failed to hand alert to publisher", "alert_id", alert.ID, "error", err)
		}
	}
}

// isDuplicate reports and records: the first occurrence of a key inside the
// window claims it.
func (p *Processor) isDuplicate(alert *core.Alert) bool {
	if alert.DedupKey == "" {
		return false
	}
	now := time.Now()
	if last, ok := p.dedup.Get(alert.DedupKey); ok && now.Sub(last) < p.dedupWindow {
		return true
	}
	p.dedup.Add(alert.DedupKey, now)
	return false
}

// findEnvelope locates the envelope a batch-aggregation result was anchored
// to via its event_id context entry, falling back to the latest envelope.
func findEnvelope(batch []*core.EventEnvelope, result *core.EvaluationResult) *core.EventEnvelope {
	if id, ok := result.Context["event_id"].(string); ok {
		for _, env := range batch {
			if env != nil && env.ID == id {
				return env
			}
		}
	}
	for i := len(batch) - 1; i >= 0; i-- {
		if batch[i] != nil {
			return batch[i]
		}
	}
	return nil
}
