package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/clitool-registry/domain/event"
)

// EventStore is a BadgerDB-backed implementation of event.Store.
type EventStore struct {
	db          *badger.DB
	keyPrefix   string
	subscribers map[string][]chan event.Event
	mu          sync.RWMutex
	gcStop      chan struct{}
	gcWg        sync.WaitGroup
	closeOnce   sync.Once
}

// NewEventStore opens a BadgerDB event store with the given configuration.
func NewEventStore(cfg Config, opts ...Option) (*EventStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &EventStore{
		db:          db,
		keyPrefix:   cfg.KeyPrefix,
		subscribers: make(map[string][]chan event.Event),
		gcStop:      make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		startGC(db, &s.gcWg, s.gcStop, cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

// Key format: prefix + events:toolID:sequence (8 bytes, big-endian)
func (s *EventStore) eventKey(toolID string, seq uint64) []byte {
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)
	return append(s.eventPrefix(toolID), seqBytes...)
}

func (s *EventStore) eventPrefix(toolID string) []byte {
	return []byte(s.keyPrefix + "events:" + toolID + ":")
}

// Key format: prefix + seq:toolID for the sequence counter
func (s *EventStore) seqKey(toolID string) []byte {
	return []byte(s.keyPrefix + "seq:" + toolID)
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

	byTool := make(map[string][]event.Event)
	var order []string
	for _, e := range events {
		if _, ok := byTool[e.ToolID]; !ok {
			order = append(order, e.ToolID)
		}
		byTool[e.ToolID] = append(byTool[e.ToolID], e)
	}

	var processed []event.Event

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, toolID := range order {
			toolEvents := byTool[toolID]

			var seq uint64
			seqKey := s.seqKey(toolID)

			item, err := txn.Get(seqKey)
			if err == nil {
				err = item.Value(func(val []byte) error {
					if len(val) == 8 {
						seq = binary.BigEndian.Uint64(val)
					}
					return nil
				})
				if err != nil {
					return err
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			for i := range toolEvents {
				e := &toolEvents[i]
				if e.ID == "" {
					e.ID = uuid.New().String()
				}
				seq++
				e.Sequence = seq

				data, err := json.Marshal(e)
				if err != nil {
					return err
				}
				if err := txn.Set(s.eventKey(toolID, seq), data); err != nil {
					return err
				}
				processed = append(processed, *e)
			}

			seqBytes := make([]byte, 8)
			binary.BigEndian.PutUint64(seqBytes, seq)
			if err := txn.Set(seqKey, seqBytes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifySubscribers(processed)
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

	events := []event.Event{}
	err := s.scan(toolID, fromSeq, func(e event.Event) bool {
		events = append(events, e)
		return true
	})
	return events, err
}

// scan iterates a tool's events from fromSeq until fn returns false.
func (s *EventStore) scan(toolID string, fromSeq uint64, fn func(event.Event) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.eventPrefix(toolID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(s.eventKey(toolID, fromSeq)); it.Valid(); it.Next() {
			var e event.Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				continue // Skip malformed entries
			}
			if !fn(e) {
				return nil
			}
		}
		return nil
	})
}

// Subscribe returns a channel that receives new events for a tool.
func (s *EventStore) Subscribe(ctx context.Context, toolID string) (<-chan event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	ch := make(chan event.Event, 100)
	s.subscribers[toolID] = append(s.subscribers[toolID], ch)
	s.mu.Unlock()

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

// notifySubscribers sends events to subscribers without blocking.
func (s *EventStore) notifySubscribers(events []event.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range events {
		for _, ch := range s.subscribers[e.ToolID] {
			select {
			case ch <- e:
			default:
			}
		}
	}
}

// Query retrieves events matching the given options.
func (s *EventStore) Query(ctx context.Context, toolID string, opts event.QueryOptions) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := []event.Event{}
	skip := opts.Offset

	err := s.scan(toolID, 0, func(e event.Event) bool {
		if !opts.Matches(e) {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}
		events = append(events, e)
		return opts.Limit <= 0 || len(events) < opts.Limit
	})
	return events, err
}

// CountEvents returns the number of events for a tool.
func (s *EventStore) CountEvents(ctx context.Context, toolID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = s.eventPrefix(toolID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// ListTools returns all tool ids with events in the store.
func (s *EventStore) ListTools(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(s.keyPrefix + "seq:")
	tools := []string{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			tools = append(tools, string(key[len(prefix):]))
		}
		return nil
	})
	return tools, err
}

// Close stops GC, closes subscribers and the database.
func (s *EventStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.gcStop)
		s.gcWg.Wait()

		s.mu.Lock()
		for _, subs := range s.subscribers {
			for _, ch := range subs {
				close(ch)
			}
		}
		s.subscribers = make(map[string][]chan event.Event)
		s.mu.Unlock()

		err = s.db.Close()
	})
	return err
}

var (
	_ event.Store   = (*EventStore)(nil)
	_ event.Querier = (*EventStore)(nil)
)
