package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// ToolID adds the registry id of a CLI tool.
func ToolID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool_id", id)
	}
}

// Extension adds the owning extension id.
func Extension(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("extension", id)
	}
}

// EventName adds a notification event name.
func EventName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("event", name)
	}
}

// Version adds a tool version.
func Version(v string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("version", v)
	}
}

// Updater adds the kind of update strategy.
func Updater(kind string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("updater", kind)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// Count adds an integer count.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// ErrorField adds an error field. A nil error adds nothing.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
