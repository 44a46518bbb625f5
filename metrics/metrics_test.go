package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	// Metrics are registered globally via promauto; a duplicate registration
	// would panic on import, so it is enough to assert the collectors exist.
	assert.NotNil(t, EventsEnqueued)
	assert.NotNil(t, AlertsGenerated)
	assert.NotNil(t, BatchesProcessed)
	assert.NotNil(t, BatchEvaluationDuration)
	assert.NotNil(t, PipelineQueueDepth)
	assert.NotNil(t, AggregationStoreErrors)
	assert.NotNil(t, LifecycleTransitions)
}
