package application

import (
	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	"github.com/felixgeelhaar/clitool-registry/domain/event"
	"github.com/felixgeelhaar/clitool-registry/domain/notification"
)

// Option configures the registry.
type Option func(*RegistryConfig)

// WithRecordFactory sets the record constructor.
func WithRecordFactory(f clitool.RecordFactory) Option {
	return func(c *RegistryConfig) {
		c.Factory = f
	}
}

// WithSender sets the notification channel.
func WithSender(s notification.Sender) Option {
	return func(c *RegistryConfig) {
		c.Sender = s
	}
}

// WithExec sets the process runner handed to records.
func WithExec(e clitool.Exec) Option {
	return func(c *RegistryConfig) {
		c.Exec = e
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(c *RegistryConfig) {
		c.Metrics = m
	}
}

// WithJournal sets the event journal publisher.
func WithJournal(p event.Publisher) Option {
	return func(c *RegistryConfig) {
		c.Journal = p
	}
}

// WithMaxConcurrentUpdates caps concurrent strategy runs across tools.
func WithMaxConcurrentUpdates(n int) Option {
	return func(c *RegistryConfig) {
		c.MaxConcurrentUpdates = n
	}
}

// NewRegistryWithOptions creates a registry using functional options.
func NewRegistryWithOptions(opts ...Option) (*Registry, error) {
	config := RegistryConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	return NewRegistry(config)
}
