package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]*core.EventEnvelope
	total   int
}

func (h *recordingHandler) ProcessBatch(_ context.Context, batch []*core.EventEnvelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, batch)
	h.total += len(batch)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func envelope(id string) *core.EventEnvelope {
	return &core.EventEnvelope{
		ID:         id,
		SourceType: "test",
		Normalized: &core.NormalizedEvent{Timestamp: time.Now(), EventType: "login_failure"},
	}
}

func TestPipeline_FlushOnBatchSize(t *testing.T) {
	handler := &recordingHandler{}
	p := New(Config{Workers: 1, BatchSize: 5, FlushInterval: time.Hour}, handler, zap.NewNop().Sugar())
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Enqueue(context.Background(), envelope(fmt.Sprintf("e%d", i))))
	}

	assert.Eventually(t, func() bool { return handler.count() == 5 }, 2*time.Second, 10*time.Millisecond)
	p.Stop()
}

func TestPipeline_FlushOnInterval(t *testing.T) {
	handler := &recordingHandler{}
	p := New(Config{Workers: 1, BatchSize: 100, FlushInterval: 50 * time.Millisecond}, handler, zap.NewNop().Sugar())
	p.Start(context.Background())

	require.NoError(t, p.Enqueue(context.Background(), envelope("e1")))
	require.NoError(t, p.Enqueue(context.Background(), envelope("e2")))

	// Well below the batch size: only the interval can flush these.
	assert.Eventually(t, func() bool { return handler.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	p.Stop()
}

func TestPipeline_StopDrainsEverything(t *testing.T) {
	handler := &recordingHandler{}
	p := New(Config{Workers: 3, BatchSize: 7, FlushInterval: time.Hour, QueueCapacity: 1000}, handler, zap.NewNop().Sugar())
	p.Start(context.Background())

	const k = 250
	for i := 0; i < k; i++ {
		require.NoError(t, p.Enqueue(context.Background(), envelope(fmt.Sprintf("e%d", i))))
	}
	p.Stop()

	// Every accepted event is processed before Stop returns, including
	// partial batches below the flush threshold.
	assert.Equal(t, k, handler.count())
}

func TestPipeline_EnqueueAfterStop(t *testing.T) {
	p := New(Config{Workers: 1, BatchSize: 2, FlushInterval: time.Hour}, &recordingHandler{}, zap.NewNop().Sugar())
	p.Start(context.Background())
	p.Stop()

	err := p.Enqueue(context.Background(), envelope("late"))
	assert.ErrorIs(t, err, ErrPipelineStopped)
}

func TestPipeline_EnqueueCancellation(t *testing.T) {
	// No workers consuming (never started) and a tiny queue: Enqueue must
	// block, then report the context error distinctly.
	p := New(Config{Workers: 1, BatchSize: 1, FlushInterval: time.Hour, QueueCapacity: 1}, &recordingHandler{}, zap.NewNop().Sugar())

	// Fill the queue to capacity.
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		err := p.Enqueue(ctx, envelope("fill"))
		cancel()
		if err != nil {
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			break
		}
	}
}

func TestPipeline_StopIsIdempotent(t *testing.T) {
	p := New(Config{Workers: 2, BatchSize: 2, FlushInterval: time.Hour}, &recordingHandler{}, zap.NewNop().Sugar())
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}

func TestConfig_Normalized(t *testing.T) {
	cfg := Config{}.normalized()
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 200, cfg.QueueCapacity)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)

	cfg = Config{Workers: 4, BatchSize: 10, QueueCapacity: 5}.normalized()
	assert.Equal(t, 20, cfg.QueueCapacity, "queue capacity is at least twice the batch size")

	cfg = Config{Workers: 4, BatchSize: 10, QueueCapacity: 500}.normalized()
	assert.Equal(t, 500, cfg.QueueCapacity)
}
