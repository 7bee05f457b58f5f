package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/clitool-registry/domain/event"
)

// EventStore is a SQLite-backed event.Store. Each row keeps the full event
// as JSON next to the columns used for filtering.
type EventStore struct {
	db          *sql.DB
	subscribers map[string][]chan event.Event
	mu          sync.RWMutex
}

// NewEventStore opens a journal database.
func NewEventStore(cfg Config, opts ...Option) (*EventStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, errors.Join(event.ErrConnectionFailed, err)
	}

	s := &EventStore{
		db:          db,
		subscribers: make(map[string][]chan event.Event),
	}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *EventStore) migrate() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS clitool_events (
			id TEXT PRIMARY KEY,
			tool_id TEXT NOT NULL,
			type TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_clitool_events_tool_seq ON clitool_events(tool_id, sequence);
		CREATE INDEX IF NOT EXISTS idx_clitool_events_timestamp ON clitool_events(timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Append persists events in one transaction, numbering them per tool.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO clitool_events (id, tool_id, type, sequence, timestamp, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	sequences := make(map[string]uint64)
	now := time.Now().Unix()
	out := make([]event.Event, len(events))
	copy(out, events)

	for i := range out {
		e := &out[i]
		seq, ok := sequences[e.ToolID]
		if !ok {
			var last sql.NullInt64
			if err := tx.QueryRowContext(ctx,
				"SELECT MAX(sequence) FROM clitool_events WHERE tool_id = ?", e.ToolID,
			).Scan(&last); err != nil {
				return err
			}
			if last.Valid {
				seq = uint64(last.Int64)
			}
		}
		seq++
		sequences[e.ToolID] = seq

		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		e.Sequence = seq

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.ToolID, string(e.Type), e.Sequence, e.Timestamp.Unix(), data, now,
		); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
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
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.query(ctx,
		"SELECT data FROM clitool_events WHERE tool_id = ? AND sequence >= ? ORDER BY sequence",
		toolID, fromSeq,
	)
}

// Query retrieves events matching opts.
func (s *EventStore) Query(ctx context.Context, toolID string, opts event.QueryOptions) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, args := buildQuery(toolID, opts)
	return s.query(ctx, q, args...)
}

func buildQuery(toolID string, opts event.QueryOptions) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT data FROM clitool_events WHERE tool_id = ?")
	args := []any{toolID}

	if len(opts.Types) > 0 {
		b.WriteString(" AND type IN (")
		for i, t := range opts.Types {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, string(t))
		}
		b.WriteString(")")
	}
	if opts.FromTime > 0 {
		b.WriteString(" AND timestamp >= ?")
		args = append(args, opts.FromTime)
	}
	if opts.ToTime > 0 {
		b.WriteString(" AND timestamp <= ?")
		args = append(args, opts.ToTime)
	}

	b.WriteString(" ORDER BY sequence")

	// SQLite only accepts OFFSET after a LIMIT.
	switch {
	case opts.Limit > 0:
		b.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	case opts.Offset > 0:
		b.WriteString(" LIMIT -1")
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, opts.Offset)
	}
	return b.String(), args
}

func (s *EventStore) query(ctx context.Context, q string, args ...any) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	events := []event.Event{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e event.Event
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events for a tool.
func (s *EventStore) CountEvents(ctx context.Context, toolID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM clitool_events WHERE tool_id = ?", toolID,
	).Scan(&n)
	return n, err
}

// ListTools returns every tool id with a journal, sorted.
func (s *EventStore) ListTools(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT tool_id FROM clitool_events ORDER BY tool_id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tools := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tools = append(tools, id)
	}
	return tools, rows.Err()
}

// Subscribe returns a channel that receives new events for a tool.
// The channel is closed when ctx is cancelled.
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

// Close closes subscriber channels and the database.
func (s *EventStore) Close() error {
	s.mu.Lock()
	for _, subs := range s.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	s.subscribers = make(map[string][]chan event.Event)
	s.mu.Unlock()

	return s.db.Close()
}

var (
	_ event.Store   = (*EventStore)(nil)
	_ event.Querier = (*EventStore)(nil)
)
