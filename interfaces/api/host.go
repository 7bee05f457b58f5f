package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/clitool-registry/application"
	"github.com/felixgeelhaar/clitool-registry/domain/cache"
	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	domainconfig "github.com/felixgeelhaar/clitool-registry/domain/config"
	"github.com/felixgeelhaar/clitool-registry/domain/event"
	"github.com/felixgeelhaar/clitool-registry/domain/notification"
	infraconfig "github.com/felixgeelhaar/clitool-registry/infrastructure/config"
	infraevent "github.com/felixgeelhaar/clitool-registry/infrastructure/event"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/logging"
	infranotif "github.com/felixgeelhaar/clitool-registry/infrastructure/notification"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/observability"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/record"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/storage/badger"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/storage/memory"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/storage/redis"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/storage/sqlite"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/telemetry"
)

// ErrQueryUnsupported is returned when the journal backend cannot filter events.
var ErrQueryUnsupported = errors.New("journal backend does not support queries")

// journalStore is an event store the host owns and closes.
type journalStore interface {
	event.Store
	Close() error
}

// HostOption configures a Host.
type HostOption func(*hostOptions)

type hostOptions struct {
	exec          clitool.Exec
	meterProvider metric.MeterProvider
	logOutput     io.Writer
	builderOpts   []infraconfig.BuilderOption
	traceOpts     []observability.Option
	senders       []notification.Sender
}

// WithExec replaces the process runner used for binary detection.
func WithExec(e clitool.Exec) HostOption {
	return func(o *hostOptions) {
		o.exec = e
	}
}

// WithMeterProvider records registry metrics on p instead of the global provider.
func WithMeterProvider(p metric.MeterProvider) HostOption {
	return func(o *hostOptions) {
		o.meterProvider = p
	}
}

// WithLogOutput writes logs to w instead of stderr.
func WithLogOutput(w io.Writer) HostOption {
	return func(o *hostOptions) {
		o.logOutput = w
	}
}

// WithBuilderOptions passes options to the configuration builder.
func WithBuilderOptions(opts ...infraconfig.BuilderOption) HostOption {
	return func(o *hostOptions) {
		o.builderOpts = append(o.builderOpts, opts...)
	}
}

// WithTraceOptions adds options on top of the configured tracing section.
func WithTraceOptions(opts ...observability.Option) HostOption {
	return func(o *hostOptions) {
		o.traceOpts = append(o.traceOpts, opts...)
	}
}

// WithSender adds a notification sender next to the bus and webhooks.
func WithSender(s notification.Sender) HostOption {
	return func(o *hostOptions) {
		o.senders = append(o.senders, s)
	}
}

// Host wires a registry with its notification transports, journal, metrics
// and tracing from configuration.
type Host struct {
	config    *domainconfig.RegistryConfig
	build     *infraconfig.BuildResult
	builder   *infraconfig.Builder
	logger    *bolt.Logger
	registry  *application.Registry
	bus       *infranotif.Bus
	store     journalStore
	publisher *infraevent.Publisher
	tracing   *observability.Provider
	cache     cache.Cache

	closeOnce sync.Once
	closeErr  error
}

// NewHost validates cfg and builds a host from it. Declared tools are not
// created until Declare is called.
func NewHost(ctx context.Context, cfg *domainconfig.RegistryConfig, opts ...HostOption) (*Host, error) {
	var o hostOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg.ApplyDefaults()
	if errs := domainconfig.NewValidator().Validate(cfg); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %w", domainconfig.ErrValidationFailed, errs)
	}

	releaseCache, err := openCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	builderOpts := o.builderOpts
	if releaseCache != nil {
		builderOpts = append([]infraconfig.BuilderOption{
			infraconfig.WithReleaseCache(releaseCache, cfg.Cache.TTL.Duration()),
		}, builderOpts...)
	}

	builder := infraconfig.NewBuilder(cfg, builderOpts...)
	build, err := builder.Build()
	if err != nil {
		if releaseCache != nil {
			_ = releaseCache.Close()
		}
		return nil, err
	}

	logCfg := build.Logging
	logCfg.Output = o.logOutput
	logging.Init(logCfg)

	h := &Host{
		config:  cfg,
		build:   build,
		builder: builder,
		logger:  logging.Get(),
		bus:     infranotif.NewBus(),
		cache:   releaseCache,
	}

	store, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	h.store = store
	h.publisher = infraevent.NewPublisher(store)

	h.tracing, err = observability.New(append(build.Tracing, o.traceOpts...)...)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("%w: tracing: %w", domainconfig.ErrBuildFailed, err)
	}

	metrics := telemetry.NewMetricsProvider(telemetry.MetricsConfig{Provider: o.meterProvider})
	if err := metrics.Error(); err != nil {
		logging.Warn().Add(logging.ErrorField(err)).Msg("registry metrics unavailable")
	}

	senders := infranotif.MultiSender{h.bus, infranotif.LoggingSender{}}
	if build.Webhook != nil {
		senders = append(senders, build.Webhook)
	}
	senders = append(senders, o.senders...)

	exec := o.exec
	if exec == nil {
		exec = record.OSExec{Timeout: build.ExecTimeout}
	}

	h.registry, err = application.NewRegistryWithOptions(
		application.WithRecordFactory(record.NewFactory(record.WithManagedDir(build.ManagedDir))),
		application.WithSender(senders),
		application.WithExec(exec),
		application.WithMetrics(metrics),
		application.WithJournal(h.publisher),
		application.WithMaxConcurrentUpdates(build.MaxConcurrentUpdates),
	)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	logging.Info().
		Add(logging.Component("host")).
		Add(logging.Str("name", cfg.Name)).
		Add(logging.Count("declared_tools", len(build.Tools))).
		Add(logging.Str("journal", cfg.Journal.Backend)).
		Add(logging.Str("cache", cfg.Cache.Backend)).
		Msg("cli tool registry host started")
	return h, nil
}

func openJournal(ctx context.Context, cfg domainconfig.JournalConfig) (journalStore, error) {
	var (
		store journalStore
		err   error
	)
	switch cfg.Backend {
	case domainconfig.JournalBadger:
		store, err = badger.NewEventStore(badger.DefaultConfig(),
			badger.WithDir(cfg.Dir), badger.WithSyncWrites(), badger.WithLogger(badger.Logger()))
	case domainconfig.JournalSQLite:
		store, err = sqlite.NewEventStore(sqlite.DefaultConfig(), sqlite.WithPath(cfg.Path))
	case domainconfig.JournalPostgres:
		store, err = openPostgresJournal(ctx, cfg)
	default:
		return memory.NewEventStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: journal: %w", domainconfig.ErrBuildFailed, err)
	}
	return store, nil
}

func openPostgresJournal(ctx context.Context, cfg domainconfig.JournalConfig) (journalStore, error) {
	pool, err := postgres.NewPool(ctx, postgres.DefaultConfig(), postgres.WithDSN(cfg.DSN))
	if err != nil {
		return nil, err
	}
	store := postgres.NewEventStore(pool, cfg.Schema)
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func openCache(cfg domainconfig.CacheConfig) (cache.Cache, error) {
	var (
		c   cache.Cache
		err error
	)
	switch cfg.Backend {
	case domainconfig.CacheMemory:
		return memory.NewCache(), nil
	case domainconfig.CacheSQLite:
		c, err = sqlite.NewCache(sqlite.DefaultConfig(), sqlite.WithPath(cfg.Path), sqlite.WithKeyPrefix(cfg.KeyPrefix))
	case domainconfig.CacheBadger:
		c, err = badger.NewCache(badger.DefaultConfig(),
			badger.WithDir(cfg.Path), badger.WithKeyPrefix(cfg.KeyPrefix), badger.WithLogger(badger.Logger()))
	case domainconfig.CacheRedis:
		c, err = redis.NewCache(redis.DefaultConfig(),
			redis.WithAddress(cfg.Address),
			redis.WithPassword(cfg.Password),
			redis.WithDB(cfg.DB),
			redis.WithKeyPrefix(cfg.KeyPrefix),
		)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cache: %w", domainconfig.ErrBuildFailed, err)
	}
	return c, nil
}

// DeclareOptions controls what Declare does beyond creating tools.
type DeclareOptions struct {
	// Detect probes each tool's binary for its path and version.
	Detect bool
	// Strategies attaches the update strategies declared in configuration.
	Strategies bool
}

// Declare creates every configured tool. Tools whose binary is missing or
// whose strategy cannot be built are still created; those problems are only
// logged. The returned error joins the tools that could not be created.
func (h *Host) Declare(ctx context.Context, opts DeclareOptions) error {
	var errs []error
	for _, spec := range h.build.Tools {
		tool, err := h.registry.CreateTool(spec.Extension, spec.Options)
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", spec.ID(), err))
			continue
		}

		if opts.Detect {
			if err := tool.Detect(ctx); err != nil {
				logging.Warn().
					Add(logging.ToolID(tool.ID())).
					Add(logging.ErrorField(err)).
					Msg("cli tool detection failed")
			}
		}

		if !opts.Strategies || spec.Update == nil {
			continue
		}
		u, err := h.builder.Updater(ctx, tool, spec)
		if err != nil {
			logging.Warn().
				Add(logging.ToolID(tool.ID())).
				Add(logging.ErrorField(err)).
				Msg("update strategy unavailable")
			continue
		}
		if _, err := tool.RegisterUpdate(u); err != nil {
			errs = append(errs, fmt.Errorf("register update %s: %w", spec.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Registry returns the registry owned by the host.
func (h *Host) Registry() *application.Registry {
	return h.registry
}

// Bus returns the in-process notification bus.
func (h *Host) Bus() *infranotif.Bus {
	return h.bus
}

// Config returns the configuration the host was built from.
func (h *Host) Config() *domainconfig.RegistryConfig {
	return h.config
}

// Logger returns the host logger.
func (h *Host) Logger() *bolt.Logger {
	return h.logger
}

// Update runs the strategy attached to id. Tools without a strategy are left
// untouched; unknown ids fail with ErrToolNotFound.
func (h *Host) Update(ctx context.Context, id string) (err error) {
	if _, ok := h.registry.Tool(id); !ok {
		return fmt.Errorf("%w: %s", clitool.ErrToolNotFound, id)
	}

	ctx, span := observability.StartSpan(ctx, h.tracing.Tracer(), "update", id)
	defer func() { observability.EndSpan(span, err) }()

	return h.registry.PerformUpdate(ctx, id, logging.NewStrategyLogger(h.logger, id))
}

// SelectVersion asks the selectable strategy of id which version it would install.
func (h *Host) SelectVersion(ctx context.Context, id string) (version string, err error) {
	if _, ok := h.registry.Tool(id); !ok {
		return "", fmt.Errorf("%w: %s", clitool.ErrToolNotFound, id)
	}

	ctx, span := observability.StartSpan(ctx, h.tracing.Tracer(), "select_version", id)
	defer func() {
		if err == nil {
			span.SetAttributes(observability.VersionAttr(version))
		}
		observability.EndSpan(span, err)
	}()

	return h.registry.SelectVersionToUpdate(ctx, id)
}

// History returns the journal of id in sequence order. The journal outlives
// the tool, so disposed tools still have a history.
func (h *Host) History(ctx context.Context, id string) ([]event.Event, error) {
	if err := h.publisher.Flush(ctx); err != nil {
		return nil, err
	}
	return h.store.LoadEvents(ctx, id)
}

// QueryHistory returns the journal entries of id that match opts.
func (h *Host) QueryHistory(ctx context.Context, id string, opts event.QueryOptions) ([]event.Event, error) {
	querier, ok := h.store.(event.Querier)
	if !ok {
		return nil, ErrQueryUnsupported
	}
	if err := h.publisher.Flush(ctx); err != nil {
		return nil, err
	}
	return querier.Query(ctx, id, opts)
}

// Close flushes and releases every resource the host holds. It is safe to
// call more than once.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		var errs []error
		if h.build != nil && h.build.Webhook != nil {
			errs = append(errs, h.build.Webhook.Close())
		}
		if h.publisher != nil {
			errs = append(errs, h.publisher.Close())
		}
		if h.store != nil {
			errs = append(errs, h.store.Close())
		}
		if h.bus != nil {
			errs = append(errs, h.bus.Close())
		}
		if h.tracing != nil {
			errs = append(errs, h.tracing.Shutdown(context.Background()))
		}
		if h.cache != nil {
			if sp, ok := h.cache.(cache.StatsProvider); ok {
				stats := sp.Stats()
				logging.Debug().
					Add(logging.Component("release-cache")).
					Add(logging.Count("hits", int(stats.Hits))).
					Add(logging.Count("misses", int(stats.Misses))).
					Msg("release cache closed")
			}
			errs = append(errs, h.cache.Close())
		}
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}
