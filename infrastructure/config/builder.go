package config

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/clitool-registry/domain/cache"
	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	domainconfig "github.com/felixgeelhaar/clitool-registry/domain/config"
	"github.com/felixgeelhaar/clitool-registry/domain/notification"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/logging"
	infranotif "github.com/felixgeelhaar/clitool-registry/infrastructure/notification"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/observability"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/updater"
)

// Builder builds registry components from configuration.
type Builder struct {
	config     *domainconfig.RegistryConfig
	githubURL  string
	httpClient *http.Client
	chooser    updater.Chooser
	cache      cache.Cache
	cacheTTL   time.Duration
	fetches    singleflight.Group
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithGitHubBaseURL points release lookups at another API endpoint.
func WithGitHubBaseURL(url string) BuilderOption {
	return func(b *Builder) {
		b.githubURL = url
	}
}

// WithHTTPClient sets the client used for unauthenticated GitHub calls.
func WithHTTPClient(c *http.Client) BuilderOption {
	return func(b *Builder) {
		b.httpClient = c
	}
}

// WithChooser sets how selectable strategies pick a release. Defaults to the newest.
func WithChooser(c updater.Chooser) BuilderOption {
	return func(b *Builder) {
		b.chooser = c
	}
}

// WithReleaseCache serves release listings from c for ttl.
func WithReleaseCache(c cache.Cache, ttl time.Duration) BuilderOption {
	return func(b *Builder) {
		b.cache = c
		b.cacheTTL = ttl
	}
}

// NewBuilder creates a new configuration builder.
func NewBuilder(config *domainconfig.RegistryConfig, opts ...BuilderOption) *Builder {
	b := &Builder{config: config}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildResult contains the built components from configuration.
type BuildResult struct {
	// Logging is the logger configuration.
	Logging logging.Config
	// Webhook is the webhook sender, nil when no endpoint is enabled.
	Webhook *infranotif.WebhookSender
	// MaxConcurrentUpdates caps strategy runs.
	MaxConcurrentUpdates int
	// ExecTimeout bounds a version probe.
	ExecTimeout time.Duration
	// ManagedDir is where strategies install binaries.
	ManagedDir string
	// Tracing configures the trace provider. Empty when tracing is off.
	Tracing []observability.Option
	// Tools are the declared tools in configuration order.
	Tools []ToolSpec
}

// ToolSpec is a declared tool ready to be created in a registry.
type ToolSpec struct {
	Extension clitool.ExtensionInfo
	Options   clitool.CreateOptions
	// Update is nil when no strategy is declared.
	Update *domainconfig.UpdateConfig
}

// ID returns the registry id the tool will get.
func (s ToolSpec) ID() string {
	return clitool.ToolID(s.Extension, s.Options.Name)
}

// Build builds the registry components from configuration.
func (b *Builder) Build() (*BuildResult, error) {
	result := &BuildResult{
		Logging: logging.Config{
			Level:  b.config.Logging.Level,
			Format: b.config.Logging.Format,
		},
		MaxConcurrentUpdates: b.config.Updates.MaxConcurrent,
		ExecTimeout:          b.config.Updates.ExecTimeout.Duration(),
		ManagedDir:           b.config.ManagedDir,
		Tracing:              b.tracingOptions(),
	}

	webhook, err := b.buildWebhook()
	if err != nil {
		return nil, fmt.Errorf("%w: notification: %w", domainconfig.ErrBuildFailed, err)
	}
	result.Webhook = webhook

	for _, t := range b.config.Tools {
		result.Tools = append(result.Tools, buildToolSpec(t))
	}
	return result, nil
}

func (b *Builder) buildWebhook() (*infranotif.WebhookSender, error) {
	var endpoints []*notification.Endpoint
	for _, hook := range b.config.Notification.Webhooks {
		if !hook.IsEnabled() {
			continue
		}
		endpoint := &notification.Endpoint{
			Name:    hook.Name,
			URL:     hook.URL,
			Secret:  hook.Secret,
			Headers: hook.Headers,
			Enabled: true,
		}
		if len(hook.Events) > 0 {
			filter, err := buildEventFilter(hook.Events)
			if err != nil {
				return nil, err
			}
			endpoint.Filter = filter
		}
		endpoints = append(endpoints, endpoint)
	}
	if len(endpoints) == 0 {
		return nil, nil
	}

	cfg := infranotif.DefaultWebhookConfig()
	cfg.Endpoints = endpoints
	cfg.EnableBatching = b.config.Notification.Batching.Enabled
	if cfg.EnableBatching {
		cfg.Batcher.MaxBatchSize = b.config.Notification.Batching.MaxSize
		cfg.Batcher.MaxWait = b.config.Notification.Batching.MaxWait.Duration()
	}
	if timeout := b.config.Notification.Timeout.Duration(); timeout > 0 {
		cfg.Delivery.Timeout = timeout
	}
	return infranotif.NewWebhookSender(cfg), nil
}

func (b *Builder) tracingOptions() []observability.Option {
	t := b.config.Tracing
	var exporter observability.ExporterType
	switch t.Exporter {
	case domainconfig.TraceStdout:
		exporter = observability.ExporterStdout
	case domainconfig.TraceOTLP:
		exporter = observability.ExporterOTLP
	default:
		return nil
	}

	opts := []observability.Option{
		observability.WithServiceName(b.config.Name),
		observability.WithTracing(exporter, t.Endpoint),
	}
	if t.SampleRate > 0 {
		opts = append(opts, observability.WithSampleRate(t.SampleRate))
	}
	if t.Insecure {
		opts = append(opts, observability.WithTracingInsecure())
	}
	return opts
}

func buildToolSpec(t domainconfig.ToolConfig) ToolSpec {
	return ToolSpec{
		Extension: clitool.ExtensionInfo{ID: t.Extension.ID, Label: t.Extension.Label},
		Options: clitool.CreateOptions{
			Name:                t.Name,
			DisplayName:         t.DisplayName,
			MarkdownDescription: t.Description,
			InstallationSource:  clitool.InstallationSource(t.InstallationSource),
			Binary:              t.Binary,
			VersionArgs:         t.VersionArgs,
		},
		Update: t.Update,
	}
}

// Updater builds the update strategy declared for spec, installing into the
// managed directory on behalf of tool. A github-release strategy that is not
// selectable resolves the newest release immediately.
func (b *Builder) Updater(ctx context.Context, tool clitool.Handle, spec ToolSpec) (clitool.Updater, error) {
	u := spec.Update
	if u == nil {
		return clitool.Updater{}, fmt.Errorf("%w: %s declares no update", domainconfig.ErrBuildFailed, spec.ID())
	}

	ghConfig := updater.GitHubConfig{
		Owner:              u.Owner,
		Repo:               u.Repo,
		Token:              b.config.Updates.GitHubToken,
		IncludePrereleases: u.IncludePrereleases,
		BaseURL:            b.githubURL,
		HTTPClient:         b.httpClient,
	}
	if u.Type == domainconfig.UpdateGitHubRelease {
		ghConfig.Constraint = u.Version
	}
	source, err := updater.NewGitHubReleases(ctx, ghConfig)
	if err != nil {
		return clitool.Updater{}, fmt.Errorf("%w: %s: %w", domainconfig.ErrBuildFailed, spec.ID(), err)
	}

	var opts []updater.InstallerOption
	if spec.Options.Binary != "" {
		opts = append(opts, updater.WithBinaryName(spec.Options.Binary))
	}
	if u.Asset != "" {
		re, err := regexp.Compile(u.Asset)
		if err != nil {
			return clitool.Updater{}, fmt.Errorf("%w: %s: %w", domainconfig.ErrBuildFailed, spec.ID(), err)
		}
		opts = append(opts, updater.WithAssetMatcher(updater.PatternMatcher(re)))
	}
	installer := updater.NewAssetInstaller(source, tool, b.config.ManagedDir, opts...)

	var listing updater.ReleaseSource = source
	if b.cache != nil {
		listing = updater.NewCachedReleases(source, b.cache, source.CacheKey(), b.cacheTTL,
			updater.WithFetchGroup(&b.fetches))
	}

	switch {
	case u.Type == domainconfig.UpdateFixed:
		return updater.NewFixedUpdater(listing, installer, u.Version), nil
	case u.Type == domainconfig.UpdateGitHubRelease && u.Selectable:
		return updater.NewSelectableReleaseUpdater(listing, installer, b.chooser), nil
	case u.Type == domainconfig.UpdateGitHubRelease:
		return updater.NewLatestUpdater(ctx, listing, installer)
	default:
		return clitool.Updater{}, fmt.Errorf("%w: %s: unknown update type %q", domainconfig.ErrBuildFailed, spec.ID(), u.Type)
	}
}

func buildEventFilter(names []string) (notification.EventFilter, error) {
	types := make([]notification.EventType, 0, len(names))
	for _, name := range names {
		t, err := notification.ParseEventType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return notification.FilterByType(types...), nil
}

// DefaultConfig returns a minimal configuration with defaults applied.
func DefaultConfig() *domainconfig.RegistryConfig {
	cfg := &domainconfig.RegistryConfig{Name: "clitools"}
	cfg.ApplyDefaults()
	return cfg
}
