// Package config provides the declarative configuration model for a CLI tool registry host.
package config

import (
	"time"
)

// Journal backends.
const (
	JournalMemory   = "memory"
	JournalBadger   = "badger"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

// Release cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheBadger = "badger"
	CacheRedis  = "redis"
)

// Trace exporters.
const (
	TraceNone   = "none"
	TraceStdout = "stdout"
	TraceOTLP   = "otlp"
)

// Update strategy types.
const (
	UpdateGitHubRelease = "github-release"
	UpdateFixed         = "fixed"
)

// RegistryConfig is the root configuration of a registry host.
type RegistryConfig struct {
	// Name is a human-readable name for this host.
	Name string `json:"name" yaml:"name"`

	// ManagedDir is where the host installs binaries it manages.
	// Tools found inside it are reported with the extension installation source.
	ManagedDir string `json:"managed_dir,omitempty" yaml:"managed_dir,omitempty"`

	// Logging configures the structured logger.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`

	// Updates configures strategy dispatch.
	Updates UpdatesConfig `json:"updates,omitempty" yaml:"updates,omitempty"`

	// Notification configures outbound notification transports.
	Notification NotificationConfig `json:"notification,omitempty" yaml:"notification,omitempty"`

	// Journal configures the per-tool event journal.
	Journal JournalConfig `json:"journal,omitempty" yaml:"journal,omitempty"`

	// Cache configures the GitHub release listing cache.
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`

	// Tracing configures OpenTelemetry spans around strategy dispatch.
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`

	// Tools declares the tools registered at startup.
	Tools []ToolConfig `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is the minimum level (trace, debug, info, warn, error).
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is json or console.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// UpdatesConfig configures update dispatch and detection.
type UpdatesConfig struct {
	// MaxConcurrent caps strategy runs across all tools. Zero uses the registry default.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
	// ExecTimeout bounds a single version probe.
	ExecTimeout Duration `json:"exec_timeout,omitempty" yaml:"exec_timeout,omitempty"`
	// GitHubToken authenticates release lookups.
	GitHubToken string `json:"github_token,omitempty" yaml:"github_token,omitempty"`
}

// NotificationConfig contains notification settings.
type NotificationConfig struct {
	// Webhooks is the list of webhook endpoints.
	Webhooks []WebhookConfig `json:"webhooks,omitempty" yaml:"webhooks,omitempty"`
	// Timeout is the per-request webhook timeout.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Batching configures webhook batching.
	Batching BatchingConfig `json:"batching,omitempty" yaml:"batching,omitempty"`
}

// WebhookConfig configures a webhook endpoint.
type WebhookConfig struct {
	// Name is a human-readable name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// URL is the webhook URL.
	URL string `json:"url" yaml:"url"`
	// Secret is the HMAC signing secret.
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`
	// Headers are additional HTTP headers.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Events restricts delivery to these event types. Empty means all.
	Events []string `json:"events,omitempty" yaml:"events,omitempty"`
	// Enabled enables the endpoint. Nil means enabled.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the endpoint should receive notifications.
func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// BatchingConfig configures event batching.
type BatchingConfig struct {
	// Enabled enables batching.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// MaxSize is the maximum batch size.
	MaxSize int `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	// MaxWait is the maximum wait before flushing.
	MaxWait Duration `json:"max_wait,omitempty" yaml:"max_wait,omitempty"`
}

// JournalConfig selects the journal backend.
type JournalConfig struct {
	// Backend is memory, badger, sqlite or postgres.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Dir is the badger data directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Path is the sqlite database file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// DSN is the postgres connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Schema holds the postgres journal table.
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// CacheConfig selects where GitHub release listings are cached.
type CacheConfig struct {
	// Backend is none, memory, sqlite, badger or redis.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// TTL is how long a listing is reused.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// Path is the sqlite database file or the badger directory.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Address is the redis server (host:port).
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Password authenticates against redis.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// DB selects the redis database.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
	// KeyPrefix namespaces entries in shared backends.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// TracingConfig selects a trace exporter.
type TracingConfig struct {
	// Exporter is none, stdout or otlp.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	// Endpoint is the OTLP gRPC endpoint (host:port).
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Insecure disables TLS towards the OTLP endpoint.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	// SampleRate is the fraction of traces kept. Zero keeps all.
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// ExtensionConfig identifies the extension contributing a tool.
type ExtensionConfig struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// ToolConfig declares a tool.
type ToolConfig struct {
	// Extension owns the tool.
	Extension ExtensionConfig `json:"extension" yaml:"extension"`
	// Name is unique within the extension.
	Name string `json:"name" yaml:"name"`
	// DisplayName is shown to users. Defaults to Name.
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	// Description is markdown.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Binary is the executable name. Defaults to Name.
	Binary string `json:"binary,omitempty" yaml:"binary,omitempty"`
	// VersionArgs make the binary print its version.
	VersionArgs []string `json:"version_args,omitempty" yaml:"version_args,omitempty"`
	// InstallationSource overrides detection (extension or external).
	InstallationSource string `json:"installation_source,omitempty" yaml:"installation_source,omitempty"`
	// Update attaches a strategy. Nil means none.
	Update *UpdateConfig `json:"update,omitempty" yaml:"update,omitempty"`
}

// UpdateConfig declares an update strategy.
type UpdateConfig struct {
	// Type is github-release or fixed.
	Type string `json:"type" yaml:"type"`
	// Owner is the GitHub repository owner.
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty"`
	// Repo is the GitHub repository name.
	Repo string `json:"repo,omitempty" yaml:"repo,omitempty"`
	// Version pins a release (fixed) or a semver constraint (github-release).
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// Selectable lets the user pick a release instead of taking the newest.
	Selectable bool `json:"selectable,omitempty" yaml:"selectable,omitempty"`
	// IncludePrereleases includes prereleases in the candidate list.
	IncludePrereleases bool `json:"include_prereleases,omitempty" yaml:"include_prereleases,omitempty"`
	// Asset is a regular expression selecting the release asset.
	Asset string `json:"asset,omitempty" yaml:"asset,omitempty"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *RegistryConfig) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Updates.ExecTimeout == 0 {
		c.Updates.ExecTimeout = Duration(10 * time.Second)
	}
	if c.Notification.Timeout == 0 {
		c.Notification.Timeout = Duration(10 * time.Second)
	}
	if c.Notification.Batching.Enabled {
		if c.Notification.Batching.MaxSize == 0 {
			c.Notification.Batching.MaxSize = 50
		}
		if c.Notification.Batching.MaxWait == 0 {
			c.Notification.Batching.MaxWait = Duration(2 * time.Second)
		}
	}
	if c.Journal.Backend == "" {
		c.Journal.Backend = JournalMemory
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheNone
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(15 * time.Minute)
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "clitools:"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = TraceNone
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1
	}
	for i := range c.Tools {
		t := &c.Tools[i]
		if t.DisplayName == "" {
			t.DisplayName = t.Name
		}
		if t.Binary == "" {
			t.Binary = t.Name
		}
		if t.Extension.Label == "" {
			t.Extension.Label = t.Extension.ID
		}
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
