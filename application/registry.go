// Package application provides the CLI tool registry service.
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	"github.com/felixgeelhaar/clitool-registry/domain/event"
	"github.com/felixgeelhaar/clitool-registry/domain/notification"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/logging"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/telemetry"
)

// ErrFactoryRequired is returned when a registry is built without a record factory.
var ErrFactoryRequired = errors.New("record factory is required")

// Metrics receives registry measurements.
type Metrics interface {
	ToolAdded(ctx context.Context)
	ToolRemoved(ctx context.Context)
	RecordUpdate(ctx context.Context, toolID, updater, outcome string, duration time.Duration)
	RecordSelection(ctx context.Context, toolID string, success bool)
	RecordNotification(ctx context.Context, eventType string)
}

// RegistryConfig contains configuration for the registry.
type RegistryConfig struct {
	// Factory builds tool records. Required.
	Factory clitool.RecordFactory

	// Sender receives registry notifications. Defaults to a no-op sender.
	Sender notification.Sender

	// Exec is handed to records for binary detection.
	Exec clitool.Exec

	// Metrics records registry measurements. Optional.
	Metrics Metrics

	// Journal persists lifecycle and update events per tool. Optional.
	Journal event.Publisher

	// MaxConcurrentUpdates caps updates running at once across all tools.
	// Updates above the cap wait for a slot.
	MaxConcurrentUpdates int
}

// registration is one attached strategy. Its pointer identity lets a
// Disposable tell whether it still owns the slot.
type registration struct {
	updater clitool.Updater
}

// entry is everything the registry owns for one tool id.
type entry struct {
	tool       clitool.Handle
	current    *registration
	versionSub *clitool.Disposable
}

// flight is one strategy run shared by every caller updating the same id.
// Its context is cancelled once all waiting callers have given up.
type flight struct {
	done      chan struct{}
	err       error
	cancel    context.CancelFunc
	waiters   int
	abandoned bool
}

// Registry is the in-memory authority over registered CLI tools.
type Registry struct {
	factory clitool.RecordFactory
	sender  notification.Sender
	exec    clitool.Exec
	metrics Metrics
	journal event.Publisher
	slots   *semaphore.Weighted

	flightsMu sync.Mutex
	flights   map[string]*flight

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewRegistry creates a registry with the given configuration.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.Factory == nil {
		return nil, ErrFactoryRequired
	}
	if config.Sender == nil {
		config.Sender = notification.NopSender{}
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = 4
	}

	return &Registry{
		factory: config.Factory,
		sender:  config.Sender,
		exec:    config.Exec,
		metrics: config.Metrics,
		journal: config.Journal,
		slots:   semaphore.NewWeighted(int64(config.MaxConcurrentUpdates)),
		flights: make(map[string]*flight),
		entries: make(map[string]*entry),
	}, nil
}

// CreateTool builds and stores a tool record for ext. A tool with the same id
// replaces the previous one in place, dropping its strategy.
func (r *Registry) CreateTool(ext clitool.ExtensionInfo, opts clitool.CreateOptions) (clitool.Handle, error) {
	if err := opts.Validate(ext); err != nil {
		return nil, err
	}

	tool, err := r.factory(clitool.RecordParams{
		Sender:    r.sender,
		Exec:      r.exec,
		Extension: ext,
		Owner:     r,
		Options:   opts,
	})
	if err != nil {
		return nil, err
	}
	if tool == nil {
		return nil, fmt.Errorf("record factory returned no tool for %s", clitool.ToolID(ext, opts.Name))
	}

	id := tool.ID()
	e := &entry{tool: tool}
	// Subscribe before the entry is visible so no version change is missed.
	e.versionSub = tool.OnDidUpdateVersion(func(version string) {
		if !r.owns(id, e) {
			return
		}
		r.notify(notification.EventToolChanged, id)
		r.journalEvent(context.Background(), id, event.TypeToolChanged, event.ToolPayload{Version: version})
	})

	r.mu.Lock()
	previous, replaced := r.entries[id]
	r.entries[id] = e
	if !replaced {
		r.order = append(r.order, id)
	}
	r.mu.Unlock()

	ctx := context.Background()
	if replaced {
		previous.versionSub.Dispose()
		logging.Debug().
			Add(logging.ToolID(id)).
			Add(logging.Extension(ext.ID)).
			Msg("replaced existing cli tool")
	} else if r.metrics != nil {
		r.metrics.ToolAdded(ctx)
	}

	r.notify(notification.EventToolCreated, id)
	r.journalEvent(ctx, id, event.TypeToolCreated, event.ToolPayload{
		Name:      tool.Name(),
		Extension: ext.ID,
		Version:   tool.Version(),
	})

	logging.Info().
		Add(logging.ToolID(id)).
		Add(logging.Extension(ext.ID)).
		Msg("cli tool created")

	return tool, nil
}

// owns reports whether e is still the live entry for id.
func (r *Registry) owns(id string, e *entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id] == e
}

// RegisterUpdate attaches updater to tool, replacing any previous strategy.
// Disposing the result detaches it, unless it was replaced or the tool was disposed.
func (r *Registry) RegisterUpdate(tool clitool.Record, updater clitool.Updater) (*clitool.Disposable, error) {
	if err := updater.Validate(); err != nil {
		return nil, err
	}

	id := tool.ID()
	reg := &registration{updater: updater}

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", clitool.ErrToolNotFound, id)
	}
	e.current = reg
	r.mu.Unlock()

	newVersion, _ := updater.FixedVersion()
	r.notify(notification.EventToolChanged, id)
	r.journalEvent(context.Background(), id, event.TypeToolChanged, event.ToolPayload{
		Updater:    string(updater.Kind()),
		NewVersion: newVersion,
	})

	logging.Debug().
		Add(logging.ToolID(id)).
		Add(logging.Updater(string(updater.Kind()))).
		Msg("update strategy registered")

	return clitool.NewDisposable(func() {
		r.mu.Lock()
		e, ok := r.entries[id]
		if !ok || e.current != reg {
			r.mu.Unlock()
			return
		}
		e.current = nil
		r.mu.Unlock()

		r.notify(notification.EventToolChanged, id)
		r.journalEvent(context.Background(), id, event.TypeToolChanged, event.ToolPayload{})
	}), nil
}

// updater returns the strategy attached to id, if any.
func (r *Registry) updater(id string) (clitool.Updater, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || e.current == nil {
		return clitool.Updater{}, false
	}
	return e.current.updater, true
}

// PerformUpdate runs the strategy attached to id. Without a strategy it does
// nothing. Concurrent calls for the same id share one strategy run and its result.
// A caller whose ctx ends stops waiting with ctx.Err(); the run itself is
// cancelled only when no caller is left waiting for it.
func (r *Registry) PerformUpdate(ctx context.Context, id string, logger clitool.Logger) error {
	updater, ok := r.updater(id)
	if !ok {
		if r.metrics != nil {
			r.metrics.RecordUpdate(ctx, id, "", telemetry.OutcomeSkipped, 0)
		}
		logging.Debug().Add(logging.ToolID(id)).Msg("no update strategy, skipping update")
		return nil
	}

	f, joined := r.join(ctx, id, updater, logger)
	if joined {
		logging.Debug().Add(logging.ToolID(id)).Msg("joined in-flight update")
	}

	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		r.leave(f)
		return ctx.Err()
	}
}

// join attaches the caller to the live run for id, starting one if needed.
// A new run waits for an abandoned predecessor to finish first.
func (r *Registry) join(ctx context.Context, id string, updater clitool.Updater, logger clitool.Logger) (*flight, bool) {
	r.flightsMu.Lock()
	defer r.flightsMu.Unlock()

	prev := r.flights[id]
	if prev != nil && !prev.abandoned {
		prev.waiters++
		return prev, true
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &flight{done: make(chan struct{}), cancel: cancel, waiters: 1}
	r.flights[id] = f

	go func() {
		defer close(f.done)
		defer cancel()

		if prev != nil {
			<-prev.done
		}
		f.err = r.runUpdate(runCtx, id, updater, logger)

		r.flightsMu.Lock()
		if r.flights[id] == f {
			delete(r.flights, id)
		}
		r.flightsMu.Unlock()
	}()
	return f, false
}

// leave drops one waiter and cancels the run when none remain.
func (r *Registry) leave(f *flight) {
	r.flightsMu.Lock()
	defer r.flightsMu.Unlock()

	f.waiters--
	if f.waiters == 0 {
		f.abandoned = true
		f.cancel()
	}
}

// runUpdate executes one strategy run once a concurrency slot is free.
func (r *Registry) runUpdate(ctx context.Context, id string, updater clitool.Updater, logger clitool.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.slots.Release(1)

	if logger == nil {
		logger = clitool.NopLogger{}
	}

	kind := string(updater.Kind())
	start := time.Now()

	err := updater.DoUpdate(ctx, logger)
	duration := time.Since(start)

	payload := event.UpdatePayload{Updater: kind, DurationMs: duration.Milliseconds()}
	payload.Version, _ = updater.FixedVersion()

	journalCtx := context.WithoutCancel(ctx)
	if err != nil {
		payload.Error = err.Error()
		r.journalEvent(journalCtx, id, event.TypeUpdateFailed, payload)
		if r.metrics != nil {
			r.metrics.RecordUpdate(ctx, id, kind, telemetry.OutcomeFailure, duration)
		}
		logging.Warn().
			Add(logging.ToolID(id)).
			Add(logging.Updater(kind)).
			Add(logging.Duration(duration)).
			Add(logging.ErrorField(err)).
			Msg("cli tool update failed")
		return err
	}

	r.journalEvent(journalCtx, id, event.TypeUpdateSucceeded, payload)
	if r.metrics != nil {
		r.metrics.RecordUpdate(ctx, id, kind, telemetry.OutcomeSuccess, duration)
	}
	logging.Info().
		Add(logging.ToolID(id)).
		Add(logging.Updater(kind)).
		Add(logging.Duration(duration)).
		Msg("cli tool updated")
	return nil
}

// SelectVersionToUpdate asks the selectable strategy of id for a version.
// Tools without a strategy, or with a predefined one, fail with ErrNoUpdater.
func (r *Registry) SelectVersionToUpdate(ctx context.Context, id string) (string, error) {
	updater, _ := r.updater(id)
	selectable, ok := updater.Selectable()
	if !ok {
		if r.metrics != nil {
			r.metrics.RecordSelection(ctx, id, false)
		}
		return "", fmt.Errorf("%w for %s", clitool.ErrNoUpdater, id)
	}

	version, err := selectable.SelectVersion(ctx)
	if r.metrics != nil {
		r.metrics.RecordSelection(ctx, id, err == nil)
	}
	return version, err
}

// DisposeTool removes tool and its strategy. Unknown tools are ignored.
func (r *Registry) DisposeTool(tool clitool.Record) {
	id := tool.ID()

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	e.versionSub.Dispose()

	ctx := context.Background()
	if r.metrics != nil {
		r.metrics.ToolRemoved(ctx)
	}
	r.notify(notification.EventToolRemoved, id)
	r.journalEvent(ctx, id, event.TypeToolRemoved, nil)

	logging.Info().Add(logging.ToolID(id)).Msg("cli tool disposed")
}

// ListToolInfos returns snapshots of all tools in insertion order.
func (r *Registry) ListToolInfos() []clitool.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]clitool.Info, 0, len(r.order))
	for _, id := range r.order {
		infos = append(infos, r.info(r.entries[id]))
	}
	return infos
}

// GetToolInfo returns the snapshot of a single tool.
func (r *Registry) GetToolInfo(id string) (clitool.Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return clitool.Info{}, false
	}
	return r.info(e), true
}

// info builds a snapshot (must hold lock).
func (r *Registry) info(e *entry) clitool.Info {
	if e.current == nil {
		return clitool.NewInfo(e.tool, nil)
	}
	updater := e.current.updater
	return clitool.NewInfo(e.tool, &updater)
}

// Tool returns the live handle of a tool.
func (r *Registry) Tool(id string) (clitool.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// notify emits a notification. Never called with the lock held.
func (r *Registry) notify(eventType notification.EventType, id string) {
	if eventType == notification.EventToolCreated {
		id = ""
	}
	r.sender.Send(eventType, id)
	if r.metrics != nil {
		r.metrics.RecordNotification(context.Background(), string(eventType))
	}
}

// journalEvent appends an event to the tool's journal, if one is configured.
func (r *Registry) journalEvent(ctx context.Context, id string, eventType event.Type, payload any) {
	if r.journal == nil {
		return
	}

	e, err := event.NewEvent(id, eventType, payload)
	if err == nil {
		err = r.journal.Publish(ctx, e)
	}
	if err != nil {
		logging.Warn().
			Add(logging.ToolID(id)).
			Add(logging.EventName(string(eventType))).
			Add(logging.ErrorField(err)).
			Msg("failed to journal cli tool event")
	}
}

var _ clitool.Owner = (*Registry)(nil)
