package notification

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/clitool-registry/domain/notification"
)

// Bus fans notifications out to in-process subscribers. Delivery never blocks:
// a subscriber whose buffer is full misses the notification.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	closed  bool
	dropped atomic.Int64
}

type subscription struct {
	ch     chan *notification.Notification
	filter notification.EventFilter
}

// NewBus creates a notification bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscription)}
}

// Subscribe returns a channel of notifications accepted by filter (nil accepts all)
// and a cancel function that closes it.
func (b *Bus) Subscribe(filter notification.EventFilter, buffer int) (<-chan *notification.Notification, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *notification.Notification, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Send implements notification.Sender.
func (b *Bus) Send(eventType notification.EventType, toolID string) {
	n := notification.New(uuid.NewString(), eventType, toolID)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter(n) {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped on full buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later sends are ignored.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	return nil
}

var _ notification.Sender = (*Bus)(nil)
