// Package event provides the journal of registry events kept per tool.
package event

import (
	"encoding/json"
	"time"
)

// Type classifies journal events.
type Type string

// Journal event types.
const (
	TypeToolCreated     Type = "tool.created"
	TypeToolChanged     Type = "tool.changed"
	TypeToolRemoved     Type = "tool.removed"
	TypeUpdateSucceeded Type = "update.succeeded"
	TypeUpdateFailed    Type = "update.failed"
)

// Event is one entry in a tool's journal.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// ToolID is the tool whose stream this event belongs to.
	ToolID string `json:"tool_id"`

	// Type classifies the event.
	Type Type `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Payload contains the event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Sequence is the ordering number within the tool's stream.
	Sequence uint64 `json:"sequence"`

	// Version is the event schema version.
	Version int `json:"version,omitempty"`
}

// ToolPayload describes the tool at the time of a lifecycle event.
type ToolPayload struct {
	Name       string `json:"name,omitempty"`
	Extension  string `json:"extension,omitempty"`
	Version    string `json:"version,omitempty"`
	Updater    string `json:"updater,omitempty"`
	NewVersion string `json:"new_version,omitempty"`
}

// UpdatePayload describes a finished update.
type UpdatePayload struct {
	Updater    string `json:"updater"`
	Version    string `json:"version,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// NewEvent creates a new event with the given type and payload.
func NewEvent(toolID string, eventType Type, payload any) (Event, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		data = b
	}

	return Event{
		ToolID:    toolID,
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   data,
		Version:   1,
	}, nil
}

// UnmarshalPayload decodes the event payload into the given value.
func (e *Event) UnmarshalPayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
