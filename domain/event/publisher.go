package event

import "context"

// Publisher publishes events to the journal.
type Publisher interface {
	// Publish sends events to the store.
	Publish(ctx context.Context, events ...Event) error

	// Close releases any resources held by the publisher.
	Close() error
}
