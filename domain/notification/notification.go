// Package notification provides domain models for registry change notifications.
package notification

import (
	"fmt"
	"time"
)

// EventType names a registry change.
type EventType string

// Registry event types. The names are part of the consumer contract.
const (
	// EventToolCreated is sent after a tool was added. It carries no tool id.
	EventToolCreated EventType = "tool-created"
	// EventToolChanged is sent when a tool's strategy or version changed.
	EventToolChanged EventType = "tool-changed"
	// EventToolRemoved is sent after a tool was disposed.
	EventToolRemoved EventType = "tool-removed"
)

// EventTypes lists every known event type.
func EventTypes() []EventType {
	return []EventType{EventToolCreated, EventToolChanged, EventToolRemoved}
}

// ParseEventType converts a configured name into an EventType.
func ParseEventType(s string) (EventType, error) {
	for _, t := range EventTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
}

// Notification is one message published on the channel.
type Notification struct {
	// ID uniquely identifies the notification.
	ID string `json:"id"`
	// Type is the event type.
	Type EventType `json:"type"`
	// ToolID is the affected tool. Empty for tool-created.
	ToolID string `json:"tool_id,omitempty"`
	// Timestamp is when the registry emitted the notification.
	Timestamp time.Time `json:"timestamp"`
}

// New creates a notification. The tool id is dropped for tool-created.
func New(id string, eventType EventType, toolID string) *Notification {
	if eventType == EventToolCreated {
		toolID = ""
	}
	return &Notification{
		ID:        id,
		Type:      eventType,
		ToolID:    toolID,
		Timestamp: time.Now(),
	}
}
