package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testAlert(id string) *core.Alert {
	return &core.Alert{ID: id, RuleID: "r1", Severity: "high", Status: core.AlertStatusNew}
}

func TestWebhookPublisher_DeliversAlert(t *testing.T) {
	received := make(chan *core.Alert, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert core.Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received <- &alert
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewWebhookPublisher(WebhookConfig{URL: server.URL}, zap.NewNop().Sugar())
	defer p.Stop()

	require.NoError(t, p.Publish(context.Background(), testAlert("a1")))

	select {
	case alert := <-received:
		assert.Equal(t, "a1", alert.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("alert was not delivered")
	}
}

func TestWebhookPublisher_StopDrainsQueue(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert core.Alert
		_ = json.NewDecoder(r.Body).Decode(&alert)
		mu.Lock()
		delivered = append(delivered, alert.ID)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewWebhookPublisher(WebhookConfig{URL: server.URL, QueueSize: 64}, zap.NewNop().Sugar())
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Publish(context.Background(), testAlert("a"+string(rune('0'+i%10)))))
	}
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, delivered, 20)
}

func TestWebhookPublisher_RejectsAfterStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewWebhookPublisher(WebhookConfig{URL: server.URL}, zap.NewNop().Sugar())
	p.Stop()

	err := p.Publish(context.Background(), testAlert("late"))
	assert.ErrorIs(t, err, ErrPublisherStopped)
}

func TestWebhookPublisher_QueueFull(t *testing.T) {
	// Delivery blocked on a stalled endpoint: the queue fills and Publish
	// reports it instead of dropping.
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewWebhookPublisher(WebhookConfig{URL: server.URL, QueueSize: 1, Timeout: time.Minute}, zap.NewNop().Sugar())

	// One alert occupies the delivery loop, the next fills the queue; the
	// loop may dequeue in between, so keep publishing until the queue fills.
	var sawFull bool
	for i := 0; i < 10; i++ {
		if err := p.Publish(context.Background(), testAlert("x")); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			sawFull = true
			break
		}
	}
	assert.True(t, sawFull)

	close(release)
	p.Stop()
}

func TestWebhookPublisher_FailureIsLoggedNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewWebhookPublisher(WebhookConfig{URL: server.URL}, zap.NewNop().Sugar())
	require.NoError(t, p.Publish(context.Background(), testAlert("a1")))
	p.Stop() // drains; failure must not wedge shutdown
}
