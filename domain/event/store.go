package event

import "context"

// Store persists the per-tool event journal.
type Store interface {
	// Append persists one or more events atomically.
	// Events are assigned sequence numbers in order of appearance.
	Append(ctx context.Context, events ...Event) error

	// LoadEvents retrieves all events for a tool in sequence order.
	LoadEvents(ctx context.Context, toolID string) ([]Event, error)

	// LoadEventsFrom retrieves events starting from a sequence number.
	LoadEventsFrom(ctx context.Context, toolID string, fromSeq uint64) ([]Event, error)

	// Subscribe returns a channel that receives new events for a tool.
	// The channel is closed when the context is cancelled.
	Subscribe(ctx context.Context, toolID string) (<-chan Event, error)
}

// QueryOptions configures event queries.
type QueryOptions struct {
	// Types filters to specific event types (empty means all).
	Types []Type

	// FromTime filters events after this unix timestamp.
	FromTime int64

	// ToTime filters events before this unix timestamp.
	ToTime int64

	// Limit is the maximum number of events to return (0 = no limit).
	Limit int

	// Offset is the number of events to skip.
	Offset int
}

// Matches reports whether e passes the type and time filters.
func (o QueryOptions) Matches(e Event) bool {
	if len(o.Types) > 0 {
		found := false
		for _, t := range o.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	ts := e.Timestamp.Unix()
	if o.FromTime > 0 && ts < o.FromTime {
		return false
	}
	if o.ToTime > 0 && ts > o.ToTime {
		return false
	}
	return true
}

// Querier is an optional interface for stores that support queries.
type Querier interface {
	// Query retrieves events matching the given options.
	Query(ctx context.Context, toolID string, opts QueryOptions) ([]Event, error)

	// CountEvents returns the number of events for a tool.
	CountEvents(ctx context.Context, toolID string) (int64, error)

	// ListTools returns all tool ids with events in the store.
	ListTools(ctx context.Context) ([]string, error)
}
