package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/clitool-registry/domain/event"
)

// EventStore is a PostgreSQL-backed event.Store. Subscriptions only see
// events appended through this process.
type EventStore struct {
	pool        *pgxpool.Pool
	schema      string
	subscribers map[string][]chan event.Event
	mu          sync.RWMutex
}

// NewEventStore creates a store on pool. The table is created by Migrate.
func NewEventStore(pool *pgxpool.Pool, schema string) *EventStore {
	if schema == "" {
		schema = "public"
	}
	return &EventStore{
		pool:        pool,
		schema:      schema,
		subscribers: make(map[string][]chan event.Event),
	}
}

func (s *EventStore) table() string {
	return pgx.Identifier{s.schema, "clitool_events"}.Sanitize()
}

// Migrate creates the journal table when missing.
func (s *EventStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			tool_id TEXT NOT NULL,
			type TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			payload JSONB,
			sequence BIGINT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			UNIQUE (tool_id, sequence)
		)`, s.table()))
	return s.wrapError(err)
}

// Append persists events in one transaction, numbering them per tool.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e.Type == "" || e.ToolID == "" {
			return event.ErrInvalidEvent
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.wrapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]event.Event, len(events))
	copy(out, events)

	sequences := make(map[string]uint64)
	for _, e := range out {
		if _, ok := sequences[e.ToolID]; ok {
			continue
		}
		var last *int64
		if err := tx.QueryRow(ctx,
			fmt.Sprintf("SELECT MAX(sequence) FROM %s WHERE tool_id = $1", s.table()),
			e.ToolID,
		).Scan(&last); err != nil {
			return s.wrapError(err)
		}
		if last != nil {
			sequences[e.ToolID] = uint64(*last)
		} else {
			sequences[e.ToolID] = 0
		}
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, tool_id, type, timestamp, payload, sequence, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.table())

	for i := range out {
		e := &out[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.Version == 0 {
			e.Version = 1
		}
		sequences[e.ToolID]++
		e.Sequence = sequences[e.ToolID]

		var payload []byte
		if len(e.Payload) > 0 {
			payload = e.Payload
		}
		if _, err := tx.Exec(ctx, insert,
			e.ID, e.ToolID, string(e.Type), e.Timestamp, payload, int64(e.Sequence), e.Version,
		); err != nil {
			return s.wrapError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return s.wrapError(err)
	}

	s.notify(out)
	return nil
}

// LoadEvents retrieves all events for a tool in sequence order.
func (s *EventStore) LoadEvents(ctx context.Context, toolID string) ([]event.Event, error) {
	return s.LoadEventsFrom(ctx, toolID, 0)
}

// LoadEventsFrom retrieves events starting from a sequence number.
func (s *EventStore) LoadEventsFrom(ctx context.Context, toolID string, fromSeq uint64) ([]event.Event, error) {
	q := fmt.Sprintf(`
		SELECT id, tool_id, type, timestamp, payload, sequence, version
		FROM %s
		WHERE tool_id = $1 AND sequence >= $2
		ORDER BY sequence ASC`, s.table())

	rows, err := s.pool.Query(ctx, q, toolID, int64(fromSeq))
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Query retrieves events matching opts.
func (s *EventStore) Query(ctx context.Context, toolID string, opts event.QueryOptions) ([]event.Event, error) {
	q, args := s.buildQuery(toolID, opts)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *EventStore) buildQuery(toolID string, opts event.QueryOptions) (string, []any) {
	args := []any{toolID}
	conditions := []string{"tool_id = $1"}

	if len(opts.Types) > 0 {
		types := make([]string, len(opts.Types))
		for i, t := range opts.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if opts.FromTime > 0 {
		args = append(args, opts.FromTime)
		conditions = append(conditions, fmt.Sprintf("EXTRACT(EPOCH FROM timestamp) >= $%d", len(args)))
	}
	if opts.ToTime > 0 {
		args = append(args, opts.ToTime)
		conditions = append(conditions, fmt.Sprintf("EXTRACT(EPOCH FROM timestamp) <= $%d", len(args)))
	}

	q := fmt.Sprintf(
		"SELECT id, tool_id, type, timestamp, payload, sequence, version FROM %s WHERE %s ORDER BY sequence ASC",
		s.table(), strings.Join(conditions, " AND "),
	)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return q, args
}

func scanEvents(rows pgx.Rows) ([]event.Event, error) {
	events := []event.Event{}
	for rows.Next() {
		var e event.Event
		var typ string
		var payload []byte
		var seq int64
		if err := rows.Scan(&e.ID, &e.ToolID, &typ, &e.Timestamp, &payload, &seq, &e.Version); err != nil {
			return nil, err
		}
		e.Type = event.Type(typ)
		e.Payload = payload
		e.Sequence = uint64(seq)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events for a tool.
func (s *EventStore) CountEvents(ctx context.Context, toolID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE tool_id = $1", s.table()), toolID,
	).Scan(&n)
	if err != nil {
		return 0, s.wrapError(err)
	}
	return n, nil
}

// ListTools returns every tool id with a journal, sorted.
func (s *EventStore) ListTools(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT DISTINCT tool_id FROM %s ORDER BY tool_id", s.table()))
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer rows.Close()

	tools := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.wrapError(err)
		}
		tools = append(tools, id)
	}
	return tools, rows.Err()
}

// Subscribe returns a channel that receives new events for a tool.
func (s *EventStore) Subscribe(ctx context.Context, toolID string) (<-chan event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan event.Event, 100)
	s.mu.Lock()
	s.subscribers[toolID] = append(s.subscribers[toolID], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.unsubscribe(toolID, ch)
	}()
	return ch, nil
}

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

func (s *EventStore) notify(events []event.Event) {
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

// Close closes subscriber channels and the pool.
func (s *EventStore) Close() error {
	s.mu.Lock()
	for _, subs := range s.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	s.subscribers = make(map[string][]chan event.Event)
	s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *EventStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(event.ErrConnectionFailed, err)
}

var (
	_ event.Store   = (*EventStore)(nil)
	_ event.Querier = (*EventStore)(nil)
)
