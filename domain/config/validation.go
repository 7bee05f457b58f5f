package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/clitool-registry/domain/notification"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates registry configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *RegistryConfig) ValidationErrors {
	v.errors = nil

	if strings.TrimSpace(config.Name) == "" {
		v.addError("name", "name is required")
	}
	v.validateLogging(config.Logging)
	v.validateUpdates(config.Updates)
	v.validateNotification(config.Notification)
	v.validateJournal(config.Journal)
	v.validateCache(config.Cache)
	if config.Cache.Backend == CacheBadger && config.Journal.Backend == JournalBadger &&
		config.Cache.Path != "" && config.Cache.Path == config.Journal.Dir {
		v.addError("cache.path", "badger cache and journal need separate directories")
	}
	v.validateTracing(config.Tracing)
	v.validateTools(config.Tools)

	for _, tool := range config.Tools {
		if tool.Update != nil && config.ManagedDir == "" {
			v.addError("managed_dir", "managed_dir is required when tools declare updates")
			break
		}
	}

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateLogging(l LoggingConfig) {
	if l.Level != "" {
		validLevels := map[string]bool{
			"trace": true, "debug": true, "info": true, "warn": true, "error": true,
		}
		if !validLevels[l.Level] {
			v.addError("logging.level", fmt.Sprintf("invalid level: %s", l.Level))
		}
	}
	if l.Format != "" && l.Format != "json" && l.Format != "console" {
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", l.Format))
	}
}

func (v *Validator) validateUpdates(u UpdatesConfig) {
	if u.MaxConcurrent < 0 {
		v.addError("updates.max_concurrent", "max_concurrent must be non-negative")
	}
	if u.ExecTimeout < 0 {
		v.addError("updates.exec_timeout", "exec_timeout must be non-negative")
	}
}

func (v *Validator) validateNotification(n NotificationConfig) {
	if n.Timeout < 0 {
		v.addError("notification.timeout", "timeout must be non-negative")
	}
	if n.Batching.MaxSize < 0 {
		v.addError("notification.batching.max_size", "max_size must be non-negative")
	}

	for i, hook := range n.Webhooks {
		path := fmt.Sprintf("notification.webhooks[%d]", i)
		if hook.URL == "" {
			v.addError(path+".url", "url is required")
		} else if u, err := url.Parse(hook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.addError(path+".url", fmt.Sprintf("invalid webhook url: %s", hook.URL))
		}
		for j, name := range hook.Events {
			if _, err := notification.ParseEventType(name); err != nil {
				v.addError(fmt.Sprintf("%s.events[%d]", path, j), fmt.Sprintf("invalid event type: %s", name))
			}
		}
	}
}

func (v *Validator) validateJournal(j JournalConfig) {
	switch j.Backend {
	case "", JournalMemory:
	case JournalBadger:
		if j.Dir == "" {
			v.addError("journal.dir", "dir is required for the badger backend")
		}
	case JournalSQLite:
		if j.Path == "" {
			v.addError("journal.path", "path is required for the sqlite backend")
		}
	case JournalPostgres:
		if j.DSN == "" {
			v.addError("journal.dsn", "dsn is required for the postgres backend")
		}
	default:
		v.addError("journal.backend", fmt.Sprintf("invalid backend: %s", j.Backend))
	}
}

func (v *Validator) validateCache(c CacheConfig) {
	switch c.Backend {
	case "", CacheNone, CacheMemory:
	case CacheSQLite:
		if c.Path == "" {
			v.addError("cache.path", "path is required for the sqlite backend")
		}
	case CacheBadger:
		if c.Path == "" {
			v.addError("cache.path", "path is required for the badger backend")
		}
	case CacheRedis:
		if c.Address == "" {
			v.addError("cache.address", "address is required for the redis backend")
		}
	default:
		v.addError("cache.backend", fmt.Sprintf("invalid backend: %s", c.Backend))
	}
	if c.TTL < 0 {
		v.addError("cache.ttl", "ttl must not be negative")
	}
	if c.DB < 0 {
		v.addError("cache.db", "db must not be negative")
	}
}

func (v *Validator) validateTracing(t TracingConfig) {
	switch t.Exporter {
	case "", TraceNone, TraceStdout:
	case TraceOTLP:
		if t.Endpoint == "" {
			v.addError("tracing.endpoint", "endpoint is required for the otlp exporter")
		}
	default:
		v.addError("tracing.exporter", fmt.Sprintf("invalid exporter: %s", t.Exporter))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		v.addError("tracing.sample_rate", "sample_rate must be between 0 and 1")
	}
}

func (v *Validator) validateTools(tools []ToolConfig) {
	seen := make(map[string]int)
	for i, tool := range tools {
		path := fmt.Sprintf("tools[%d]", i)
		if tool.Extension.ID == "" {
			v.addError(path+".extension.id", "extension id is required")
		}
		if tool.Name == "" {
			v.addError(path+".name", "tool name is required")
		}
		if tool.Extension.ID != "" && tool.Name != "" {
			id := tool.Extension.ID + "." + tool.Name
			if first, ok := seen[id]; ok {
				v.addError(path, fmt.Sprintf("duplicate tool %s (first declared at tools[%d])", id, first))
			} else {
				seen[id] = i
			}
		}
		switch tool.InstallationSource {
		case "", "extension", "external":
		default:
			v.addError(path+".installation_source", fmt.Sprintf("invalid installation source: %s", tool.InstallationSource))
		}
		if tool.Update != nil {
			v.validateUpdate(path+".update", *tool.Update)
		}
	}
}

func (v *Validator) validateUpdate(path string, u UpdateConfig) {
	switch u.Type {
	case UpdateGitHubRelease, UpdateFixed:
		if u.Owner == "" {
			v.addError(path+".owner", "owner is required")
		}
		if u.Repo == "" {
			v.addError(path+".repo", "repo is required")
		}
	case "":
		v.addError(path+".type", "update type is required")
	default:
		v.addError(path+".type", fmt.Sprintf("invalid update type: %s", u.Type))
	}

	if u.Type == UpdateFixed {
		if u.Version == "" {
			v.addError(path+".version", "version is required for fixed")
		}
		if u.Selectable {
			v.addError(path+".selectable", "fixed updates cannot be selectable")
		}
	}

	if u.Asset != "" {
		if _, err := regexp.Compile(u.Asset); err != nil {
			v.addError(path+".asset", fmt.Sprintf("invalid asset pattern: %v", err))
		}
	}
}
