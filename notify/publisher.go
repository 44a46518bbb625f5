package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"vigil/core"
	"vigil/metrics"
	"vigil/util/goroutine"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrPublisherStopped is returned by Publish after Stop has been called.
var ErrPublisherStopped = errors.New("publisher is stopped")

// ErrQueueFull is returned when the publish queue cannot accept more alerts.
var ErrQueueFull = errors.New("publish queue is full")

// Publisher delivers generated alerts to downstream consumers.
type Publisher interface {
	// Publish hands an alert over for delivery. Delivery is asynchronous and
	// best effort; an error means the alert was not accepted at all.
	Publish(ctx context.Context, alert *core.Alert) error
}

// WebhookConfig configures the webhook publisher.
type WebhookConfig struct {
	URL     string
	Method  string
	Headers map[string]string
	// Timeout bounds one delivery attempt.
	Timeout time.Duration
	// QueueSize bounds how many alerts may wait for delivery.
	QueueSize int
	// RatePerSecond caps outbound requests; zero disables the limiter.
	RatePerSecond float64
}

func (c WebhookConfig) normalized() WebhookConfig {
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.QueueSize < 1 {
		c.QueueSize = 256
	}
	return c
}

// WebhookPublisher posts alerts as JSON to a configured endpoint from a
// single delivery goroutine. The queue is bounded and Stop drains it, so an
// accepted alert is either delivered (or its failure logged) before shutdown
// completes; nothing is silently discarded.
type WebhookPublisher struct {
	cfg     WebhookConfig
	client  *http.Client
	limiter *rate.Limiter
	queue   chan *core.Alert
	stop    chan struct{}
	done    chan struct{}
	logger  *zap.SugaredLogger

	stopOnce sync.Once
}

// NewWebhookPublisher creates and starts a webhook publisher.
func NewWebhookPublisher(cfg WebhookConfig, logger *zap.SugaredLogger) *WebhookPublisher {
	cfg = cfg.normalized()
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	p := &WebhookPublisher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		queue:   make(chan *core.Alert, cfg.QueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
	goroutine.Go("webhook-publisher", logger, p.deliveryLoop)
	return p
}

// Publish enqueues an alert for delivery without blocking the caller. A full
// queue is reported to the caller instead of dropping silently.
func (p *WebhookPublisher) Publish(_ context.Context, alert *core.Alert) error {
	select {
	case <-p.stop:
		metrics.AlertsPublished.WithLabelValues("rejected").Inc()
		return ErrPublisherStopped
	default:
	}

	select {
	case p.queue <- alert:
		return nil
	default:
		metrics.AlertsPublished.WithLabelValues("rejected").Inc()
		return ErrQueueFull
	}
}

// Stop drains the queue and waits for the delivery loop to finish.
func (p *WebhookPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
	})
}

func (p *WebhookPublisher) deliveryLoop() {
	defer close(p.done)
	for {
		select {
		case alert := <-p.queue:
			p.deliver(alert)
		case <-p.stop:
			// Drain alerts accepted before the stop signal.
			for {
				select {
				case alert := <-p.queue:
					p.deliver(alert)
				default:
					return
				}
			}
		}
	}
}

// deliver posts one alert. Failures are logged and counted, not retried.
func (p *WebhookPublisher) deliver(alert *core.Alert) {
	if p.limiter != nil {
		if err := p.limiter.Wait(context.Background()); err != nil {
			return
		}
	}

	if err := p.post(alert); err != nil {
		metrics.AlertsPublished.WithLabelValues("failure").Inc()
		p.logger.Errorw("Webhook delivery failed", "alert_id", alert.ID, "url", p.cfg.URL, "error", err)
		return
	}
	metrics.AlertsPublished.WithLabelValues("success").Inc()
	p.logger.Debugw("Alert delivered", "alert_id", alert.ID, "url", p.cfg.URL)
}

func (p *WebhookPublisher) post(alert *core.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, p.cfg.Method, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
