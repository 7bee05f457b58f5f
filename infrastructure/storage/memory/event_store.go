// Package memory provides in-memory storage implementations.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/clitool-registry/domain/event"
)

// EventStore is an in-memory implementation of event.Store.
type EventStore struct {
	events      map[string][]event.Event // toolID -> events
	subscribers map[string][]chan event.Event
	sequences   map[string]uint64 // toolID -> last sequence
	mu          sync.RWMutex
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		events:      make(map[string][]event.Event),
		subscribers: make(map[string][]chan event.Event),
		sequences:   make(map[string]uint64),
	}
}

// Append persists one or more events atomically.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	for _, e := range events {
		if e.Type == "" || e.ToolID == "" {
			return event.ErrInvalidEvent
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byTool := make(map[string][]event.Event)
	var order []string
	for _, e := range events {
		if _, ok := byTool[e.ToolID]; !ok {
			order = append(order, e.ToolID)
		}
		byTool[e.ToolID] = append(byTool[e.ToolID], e)
	}

	for _, toolID := range order {
		toolEvents := byTool[toolID]
		seq := s.sequences[toolID]

		for i := range toolEvents {
			if toolEvents[i].ID == "" {
				toolEvents[i].ID = uuid.New().String()
			}
			seq++
			toolEvents[i].Sequence = seq
		}

		s.events[toolID] = append(s.events[toolID], toolEvents...)
		s.sequences[toolID] = seq

		for _, sub := range s.subscribers[toolID] {
			for _, e := range toolEvents {
				select {
				case sub <- e:
				default:
					// Channel full, skip (non-blocking)
				}
			}
		}
	}

	return nil
}

// LoadEvents retrieves all events for a tool in sequence order.
func (s *EventStore) LoadEvents(ctx context.Context, toolID string) ([]event.Event, error) {
	return s.LoadEventsFrom(ctx, toolID, 0)
}

// LoadEventsFrom retrieves events starting from a specific sequence number.
func (s *EventStore) LoadEventsFrom(ctx context.Context, toolID string, fromSeq uint64) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []event.Event{}
	for _, e := range s.events[toolID] {
		if e.Sequence >= fromSeq {
			result = append(result, e)
		}
	}
	return result, nil
}

// Subscribe returns a channel that receives new events for a tool.
func (s *EventStore) Subscribe(ctx context.Context, toolID string) (<-chan event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan event.Event, 100)
	s.subscribers[toolID] = append(s.subscribers[toolID], ch)

	go func() {
		<-ctx.Done()
		s.unsubscribe(toolID, ch)
	}()

	return ch, nil
}

// unsubscribe removes a subscriber channel.
func (s *EventStore) unsubscribe(toolID string, ch chan event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[toolID]
	for i, sub := range subs {
		if sub == ch {
			s.subscribers[toolID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(s.subscribers[toolID]) == 0 {
		delete(s.subscribers, toolID)
	}
}

// Query retrieves events matching the given options.
func (s *EventStore) Query(ctx context.Context, toolID string, opts event.QueryOptions) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []event.Event{}
	for _, e := range s.events[toolID] {
		if opts.Matches(e) {
			result = append(result, e)
		}
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []event.Event{}, nil
		}
		result = result[opts.Offset:]
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountEvents returns the number of events for a tool.
func (s *EventStore) CountEvents(ctx context.Context, toolID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.events[toolID])), nil
}

// ListTools returns all tool ids with events in the store.
func (s *EventStore) ListTools(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]string, 0, len(s.events))
	for toolID := range s.events {
		tools = append(tools, toolID)
	}
	return tools, nil
}

// Len returns the total number of events across all tools.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	for _, events := range s.events {
		count += len(events)
	}
	return count
}

// Close closes all subscriber channels.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, subs := range s.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	s.subscribers = make(map[string][]chan event.Event)
	return nil
}

var (
	_ event.Store   = (*EventStore)(nil)
	_ event.Querier = (*EventStore)(nil)
)
