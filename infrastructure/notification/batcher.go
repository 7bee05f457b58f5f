package notification

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/clitool-registry/domain/notification"
)

// BatcherConfig configures the notification batcher.
type BatcherConfig struct {
	// MaxBatchSize flushes once this many notifications are pending.
	MaxBatchSize int
	// MaxWait flushes this long after the first pending notification.
	MaxWait time.Duration
	// OnBatch receives each flushed batch.
	OnBatch func(ctx context.Context, batch []*notification.Notification) error
}

// DefaultBatcherConfig returns a sensible default configuration.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		MaxBatchSize: 50,
		MaxWait:      2 * time.Second,
	}
}

// Batcher accumulates notifications and flushes them in batches.
type Batcher struct {
	config  BatcherConfig
	mu      sync.Mutex
	pending []*notification.Notification
	timer   *time.Timer
	closed  bool
}

// NewBatcher creates a batcher.
func NewBatcher(config BatcherConfig) *Batcher {
	defaults := DefaultBatcherConfig()
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}
	if config.MaxWait <= 0 {
		config.MaxWait = defaults.MaxWait
	}
	return &Batcher{
		config:  config,
		pending: make([]*notification.Notification, 0, config.MaxBatchSize),
	}
}

// Add queues n, flushing immediately when the batch is full.
func (b *Batcher) Add(ctx context.Context, n *notification.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return notification.ErrNotifierClosed
	}

	b.pending = append(b.pending, n)
	if len(b.pending) == 1 && b.timer == nil {
		// The timer outlives the caller's request.
		flushCtx := context.WithoutCancel(ctx)
		b.timer = time.AfterFunc(b.config.MaxWait, func() {
			_ = b.Flush(flushCtx)
		})
	}
	if len(b.pending) >= b.config.MaxBatchSize {
		return b.flushLocked(ctx)
	}
	return nil
}

// Flush sends pending notifications now.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

func (b *Batcher) flushLocked(ctx context.Context) error {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) == 0 {
		return nil
	}

	batch := make([]*notification.Notification, len(b.pending))
	copy(batch, b.pending)
	b.pending = b.pending[:0]

	if b.config.OnBatch == nil {
		return nil
	}
	return b.config.OnBatch(ctx, batch)
}

// Close rejects further notifications and flushes the rest.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.Flush(ctx)
}

// PendingCount returns the number of notifications waiting to be flushed.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
