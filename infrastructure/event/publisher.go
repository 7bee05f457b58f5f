// Package event provides journal publishing infrastructure.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/clitool-registry/domain/event"
)

// Publisher publishes journal events to an event store.
type Publisher struct {
	store         event.Store
	buffer        []event.Event
	bufSize       int
	flushInterval time.Duration
	stop          chan struct{}
	wg            sync.WaitGroup
	closed        bool
	mu            sync.Mutex
}

// PublisherOption configures the publisher.
type PublisherOption func(*Publisher)

// WithBufferSize sets the event buffer size. Zero publishes immediately.
func WithBufferSize(size int) PublisherOption {
	return func(p *Publisher) {
		p.bufSize = size
	}
}

// WithFlushInterval flushes buffered events periodically.
func WithFlushInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.flushInterval = d
	}
}

// NewPublisher creates a new event publisher.
func NewPublisher(store event.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store: store,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize > 0 {
		p.buffer = make([]event.Event, 0, p.bufSize)
		if p.flushInterval > 0 {
			p.wg.Add(1)
			go p.flushLoop()
		}
	}
	return p
}

// flushLoop flushes the buffer every flushInterval until Close.
func (p *Publisher) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			_ = p.Flush(context.Background())
		}
	}
}

// Publish sends events to the event store.
func (p *Publisher) Publish(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.bufSize == 0 {
		return p.store.Append(ctx, events...)
	}

	p.buffer = append(p.buffer, events...)
	if len(p.buffer) >= p.bufSize {
		return p.flush(ctx)
	}
	return nil
}

// Flush writes all buffered events to the store.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flush(ctx)
}

// flush writes buffered events to the store (must hold lock).
func (p *Publisher) flush(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	if err := p.store.Append(ctx, p.buffer...); err != nil {
		return err
	}
	p.buffer = p.buffer[:0]
	return nil
}

// Pending returns the number of buffered events.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Close stops periodic flushing and writes remaining events.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	return p.Flush(context.Background())
}

var _ event.Publisher = (*Publisher)(nil)
