package notification

import "context"

// Sender is the fire-and-forget channel the registry emits on.
// Implementations must not block the caller on slow consumers.
type Sender interface {
	Send(eventType EventType, toolID string)
}

// SenderFunc adapts a function into a Sender.
type SenderFunc func(eventType EventType, toolID string)

// Send calls f.
func (f SenderFunc) Send(eventType EventType, toolID string) {
	f(eventType, toolID)
}

// NopSender drops every notification.
type NopSender struct{}

// Send does nothing.
func (NopSender) Send(EventType, string) {}

// Notifier delivers notifications to an external transport.
type Notifier interface {
	// Notify delivers a single notification.
	Notify(ctx context.Context, n *Notification) error

	// Close releases any resources held by the notifier.
	Close() error
}

// EventFilter reports whether a notification should be delivered.
type EventFilter func(n *Notification) bool

// FilterByType returns a filter that only allows the given event types.
func FilterByType(types ...EventType) EventFilter {
	typeSet := make(map[EventType]bool)
	for _, t := range types {
		typeSet[t] = true
	}
	return func(n *Notification) bool {
		return typeSet[n.Type]
	}
}

// FilterByTool returns a filter that only allows notifications about the given tools.
// tool-created carries no tool id and never matches.
func FilterByTool(toolIDs ...string) EventFilter {
	idSet := make(map[string]bool)
	for _, id := range toolIDs {
		idSet[id] = true
	}
	return func(n *Notification) bool {
		return idSet[n.ToolID]
	}
}

// CombineFilters returns a filter that requires all provided filters to pass.
func CombineFilters(filters ...EventFilter) EventFilter {
	return func(n *Notification) bool {
		for _, f := range filters {
			if f != nil && !f(n) {
				return false
			}
		}
		return true
	}
}

// Endpoint is a webhook endpoint that receives notifications.
type Endpoint struct {
	// URL is the webhook endpoint URL.
	URL string `json:"url"`
	// Secret is the shared secret for HMAC signing.
	Secret string `json:"secret,omitempty"`
	// Headers are additional HTTP headers to include.
	Headers map[string]string `json:"headers,omitempty"`
	// Filter is an optional event filter for this endpoint.
	Filter EventFilter `json:"-"`
	// Enabled indicates if this endpoint is active.
	Enabled bool `json:"enabled"`
	// Name is an optional friendly name for the endpoint.
	Name string `json:"name,omitempty"`
}
