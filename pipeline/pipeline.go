package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vigil/core"
	"vigil/metrics"
	"vigil/util/goroutine"

	"go.uber.org/zap"
)

// ErrPipelineStopped is returned by Enqueue after Stop has been called.
var ErrPipelineStopped = errors.New("pipeline is stopped")

// BatchHandler consumes one flushed batch of envelopes.
type BatchHandler interface {
	ProcessBatch(ctx context.Context, batch []*core.EventEnvelope) error
}

// Config sizes the pipeline.
type Config struct {
	// Workers is the number of batch workers; values below 1 are raised to 1.
	Workers int
	// BatchSize is the per-worker flush threshold.
	BatchSize int
	// FlushInterval bounds how long a partial batch may wait.
	FlushInterval time.Duration
	// QueueCapacity is the requested queue size; the effective capacity is at
	// least twice the batch size so a full flush never starves the queue.
	QueueCapacity int
}

func (c Config) normalized() Config {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if min := 2 * c.BatchSize; c.QueueCapacity < min {
		c.QueueCapacity = min
	}
	return c
}

// Pipeline is the bounded ingestion queue feeding batch workers. Enqueue
// blocks when the queue is full (backpressure instead of drop); Stop drains
// everything already accepted before returning.
type Pipeline struct {
	cfg     Config
	queue   chan *core.EventEnvelope
	stop    chan struct{}
	wg      sync.WaitGroup
	handler BatchHandler
	logger  *zap.SugaredLogger

	startOnce sync.Once
	stopOnce  sync.Once

	// ctx is the processing context handed to the handler; cancelling it
	// aborts in-flight batch work but does not stop the queue.
	ctx context.Context
}

// New creates a pipeline feeding handler.
func New(cfg Config, handler BatchHandler, logger *zap.SugaredLogger) *Pipeline {
	cfg = cfg.normalized()
	return &Pipeline{
		cfg:     cfg,
		queue:   make(chan *core.EventEnvelope, cfg.QueueCapacity),
		stop:    make(chan struct{}),
		handler: handler,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Start launches the workers. ctx is used for batch processing; it is not the
// shutdown signal (use Stop for that).
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		if ctx != nil {
			p.ctx = ctx
		}
		p.logger.Infow("Starting correlation pipeline",
			"workers", p.cfg.Workers, "batch_size", p.cfg.BatchSize,
			"flush_interval", p.cfg.FlushInterval, "queue_capacity", p.cfg.QueueCapacity)
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Enqueue submits an envelope, blocking while the queue is full. It returns
// ctx.Err() on cancellation and ErrPipelineStopped once Stop has begun, so
// callers can tell shutdown apart from a cancelled request.
func (p *Pipeline) Enqueue(ctx context.Context, env *core.EventEnvelope) error {
	select {
	case <-p.stop:
		return ErrPipelineStopped
	default:
	}

	select {
	case p.queue <- env:
		metrics.EventsEnqueued.WithLabelValues(env.SourceType).Inc()
		metrics.PipelineQueueDepth.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrPipelineStopped
	}
}

// Stop signals shutdown, drains every event accepted before the signal and
// waits for all workers to flush their partial batches.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Infow("Stopping correlation pipeline", "queued", len(p.queue))
		close(p.stop)
		p.wg.Wait()
		p.logger.Infow("Correlation pipeline stopped")
	})
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	defer goroutine.Recover(fmt.Sprintf("pipeline-worker-%d", id), p.logger)

	buffer := make([]*core.EventEnvelope, 0, p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		batch := make([]*core.EventEnvelope, len(buffer))
		copy(batch, buffer)
		buffer = buffer[:0]
		p.processBatch(id, batch)
	}

	for {
		select {
		case env := <-p.queue:
			metrics.PipelineQueueDepth.Set(float64(len(p.queue)))
			buffer = append(buffer, env)
			if len(buffer) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.stop:
			// Drain whatever was accepted before the stop signal.
			for {
				select {
				case env := <-p.queue:
					buffer = append(buffer, env)
					if len(buffer) >= p.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (p *Pipeline) processBatch(workerID int, batch []*core.EventEnvelope) {
	start := time.Now()
	err := p.handler.ProcessBatch(p.ctx, batch)
	metrics.BatchEvaluationDuration.Observe(time.Since(start).Seconds())
	metrics.BatchesProcessed.Inc()
	if err != nil {
		metrics.BatchProcessingFailures.Inc()
		p.logger.Errorw("Batch processing failed", "worker", workerID, "batch_size", len(batch), "error", err)
	}
}
