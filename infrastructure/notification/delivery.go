// Package notification provides transports for registry notifications.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/clitool-registry/domain/notification"
)

// DeliveryConfig configures HTTP delivery.
type DeliveryConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
	// MaxRetries is the maximum number of attempts per delivery.
	MaxRetries int
	// RetryDelay is the initial delay between attempts.
	RetryDelay time.Duration
	// CircuitBreakerThreshold is consecutive failures before an endpoint's circuit opens.
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long an open circuit rejects deliveries.
	CircuitBreakerTimeout time.Duration
	// UserAgent is the User-Agent header value.
	UserAgent string
	// MaxConcurrent caps deliveries in flight across all endpoints.
	MaxConcurrent int
	// MaxQueue is how many deliveries may wait for a slot before new ones are dropped.
	MaxQueue int
}

// DefaultDeliveryConfig returns sensible default configuration.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		Timeout:                 10 * time.Second,
		MaxRetries:              3,
		RetryDelay:              500 * time.Millisecond,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		UserAgent:               "clitools-webhook/1.0",
		MaxConcurrent:           8,
		MaxQueue:                32,
	}
}

// Delivery POSTs notification batches to webhook endpoints.
type Delivery struct {
	config   DeliveryConfig
	client   *http.Client
	signer   *Signer
	retrier  retry.Retry[struct{}]
	limiter  bulkhead.Bulkhead[struct{}]
	breakers map[string]circuitbreaker.CircuitBreaker[struct{}]
	mu       sync.RWMutex
}

// NewDelivery creates an HTTP delivery. Zero config fields take defaults.
func NewDelivery(config DeliveryConfig) *Delivery {
	defaults := DefaultDeliveryConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = defaults.CircuitBreakerThreshold
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = defaults.CircuitBreakerTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.MaxQueue <= 0 {
		config.MaxQueue = defaults.MaxQueue
	}

	return &Delivery{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		signer:   NewSigner(),
		breakers: make(map[string]circuitbreaker.CircuitBreaker[struct{}]),
		limiter: bulkhead.New[struct{}](bulkhead.Config{
			MaxConcurrent: config.MaxConcurrent,
			MaxQueue:      config.MaxQueue,
			QueueTimeout:  config.Timeout,
		}),
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   config.MaxRetries,
			InitialDelay:  config.RetryDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			// 4xx responses are final.
			NonRetryableErrors: []error{notification.ErrEndpointRejected},
		}),
	}
}

// Deliver sends a batch of notifications to endpoint as a JSON array.
// When the delivery queue is full the batch is rejected without a request.
func (d *Delivery) Deliver(ctx context.Context, endpoint *notification.Endpoint, batch []*notification.Notification) error {
	if endpoint == nil || endpoint.URL == "" {
		return notification.ErrInvalidEndpoint
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to serialize notifications: %w", err)
	}

	breaker := d.breaker(endpoint.URL)
	_, err = d.limiter.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
			return d.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, d.post(ctx, endpoint, payload)
			})
		})
	})
	return err
}

// Close releases the delivery queue.
func (d *Delivery) Close() error {
	return d.limiter.Close()
}

// post performs a single attempt. The request is rebuilt per attempt so the body can be re-read.
func (d *Delivery) post(ctx context.Context, endpoint *notification.Endpoint, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", notification.ErrInvalidEndpoint, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.config.UserAgent)
	for key, value := range endpoint.Headers {
		req.Header.Set(key, value)
	}
	if endpoint.Secret != "" {
		for key, value := range d.signer.SignedHeaders(payload, endpoint.Secret, time.Now()) {
			req.Header.Set(key, value)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", notification.ErrEndpointUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", notification.ErrEndpointUnavailable, resp.StatusCode, body)
	default:
		return fmt.Errorf("%w: status %d: %s", notification.ErrEndpointRejected, resp.StatusCode, body)
	}
}

// breaker returns the circuit breaker for an endpoint, creating one if needed.
func (d *Delivery) breaker(url string) circuitbreaker.CircuitBreaker[struct{}] {
	d.mu.RLock()
	b, ok := d.breakers[url]
	d.mu.RUnlock()
	if ok {
		return b
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok = d.breakers[url]; ok {
		return b
	}

	threshold := uint32(d.config.CircuitBreakerThreshold) // #nosec G115 -- positive after defaults
	b = circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    d.config.CircuitBreakerTimeout,
		Timeout:     d.config.CircuitBreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	d.breakers[url] = b
	return b
}

// BreakerState returns the circuit state for an endpoint, or "unknown".
func (d *Delivery) BreakerState(url string) string {
	d.mu.RLock()
	b, ok := d.breakers[url]
	d.mu.RUnlock()
	if !ok {
		return "unknown"
	}
	return b.State().String()
}
