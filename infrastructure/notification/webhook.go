package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/clitool-registry/domain/notification"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/logging"
)

// WebhookConfig configures the webhook sender.
type WebhookConfig struct {
	// Endpoints receive every notification their filter accepts.
	Endpoints []*notification.Endpoint
	// EnableBatching groups notifications before delivery.
	EnableBatching bool
	// Batcher configures batching when enabled.
	Batcher BatcherConfig
	// Delivery configures the HTTP transport.
	Delivery DeliveryConfig
	// GlobalFilter is applied before endpoint filters.
	GlobalFilter notification.EventFilter
}

// DefaultWebhookConfig returns sensible defaults.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		EnableBatching: true,
		Batcher:        DefaultBatcherConfig(),
		Delivery:       DefaultDeliveryConfig(),
	}
}

// WebhookSender delivers registry notifications to HTTP endpoints.
// As a notification.Sender it never blocks the registry: delivery runs in the
// background and failures are logged.
type WebhookSender struct {
	config    WebhookConfig
	delivery  *Delivery
	batcher   *Batcher
	inflight  sync.WaitGroup
	mu        sync.RWMutex
	endpoints []*notification.Endpoint
	closed    bool
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(config WebhookConfig) *WebhookSender {
	w := &WebhookSender{
		config:    config,
		delivery:  NewDelivery(config.Delivery),
		endpoints: config.Endpoints,
	}

	if config.EnableBatching {
		bc := config.Batcher
		bc.OnBatch = w.deliverAll
		w.batcher = NewBatcher(bc)
	}
	return w
}

// Send implements notification.Sender.
func (w *WebhookSender) Send(eventType notification.EventType, toolID string) {
	n := notification.New(uuid.NewString(), eventType, toolID)

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return
	}
	w.inflight.Add(1)
	w.mu.RUnlock()

	go func() {
		defer w.inflight.Done()
		if err := w.Notify(context.Background(), n); err != nil {
			logging.Warn().
				Add(logging.EventName(string(eventType))).
				Add(logging.ToolID(toolID)).
				Add(logging.ErrorField(err)).
				Msg("webhook notification dropped")
		}
	}()
}

// Notify delivers one notification, or queues it when batching.
func (w *WebhookSender) Notify(ctx context.Context, n *notification.Notification) error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return notification.ErrNotifierClosed
	}

	if w.config.GlobalFilter != nil && !w.config.GlobalFilter(n) {
		return nil
	}
	if w.batcher != nil {
		return w.batcher.Add(ctx, n)
	}
	return w.deliverAll(ctx, []*notification.Notification{n})
}

// Flush sends queued notifications now.
func (w *WebhookSender) Flush(ctx context.Context) error {
	if w.batcher != nil {
		return w.batcher.Flush(ctx)
	}
	return nil
}

// Close waits for background sends and flushes anything still queued.
func (w *WebhookSender) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.inflight.Wait()
	var err error
	if w.batcher != nil {
		err = w.batcher.Close(context.Background())
	}
	return errors.Join(err, w.delivery.Close())
}

// AddEndpoint registers another endpoint.
func (w *WebhookSender) AddEndpoint(endpoint *notification.Endpoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.endpoints = append(w.endpoints, endpoint)
}

// Endpoints returns the configured endpoints.
func (w *WebhookSender) Endpoints() []*notification.Endpoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*notification.Endpoint, len(w.endpoints))
	copy(out, w.endpoints)
	return out
}

// BreakerState returns the circuit state for an endpoint URL.
func (w *WebhookSender) BreakerState(url string) string {
	return w.delivery.BreakerState(url)
}

// deliverAll sends batch to every enabled endpoint in parallel and returns the first error.
func (w *WebhookSender) deliverAll(ctx context.Context, batch []*notification.Notification) error {
	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)

	for _, ep := range w.Endpoints() {
		if !ep.Enabled {
			continue
		}

		selected := batch
		if ep.Filter != nil {
			selected = make([]*notification.Notification, 0, len(batch))
			for _, n := range batch {
				if ep.Filter(n) {
					selected = append(selected, n)
				}
			}
		}
		if len(selected) == 0 {
			continue
		}

		wg.Add(1)
		go func(ep *notification.Endpoint, selected []*notification.Notification) {
			defer wg.Done()

			if err := w.delivery.Deliver(ctx, ep, selected); err != nil {
				logging.Error().
					Add(logging.Str("endpoint", ep.URL)).
					Add(logging.Str("endpoint_name", ep.Name)).
					Add(logging.Count("notification_count", len(selected))).
					Add(logging.ErrorField(err)).
					Msg("webhook delivery failed")

				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			logging.Debug().
				Add(logging.Str("endpoint", ep.URL)).
				Add(logging.Count("notification_count", len(selected))).
				Msg("webhook delivered")
		}(ep, selected)
	}

	wg.Wait()
	return firstErr
}

var (
	_ notification.Sender   = (*WebhookSender)(nil)
	_ notification.Notifier = (*WebhookSender)(nil)
)
