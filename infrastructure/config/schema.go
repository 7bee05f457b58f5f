package config

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	domainconfig "github.com/felixgeelhaar/clitool-registry/domain/config"
	"github.com/felixgeelhaar/clitool-registry/domain/notification"
)

// JSONSchema represents a JSON Schema document.
type JSONSchema struct {
	Schema               string                 `json:"$schema,omitempty"`
	ID                   string                 `json:"$id,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	AdditionalProperties *JSONSchema            `json:"additionalProperties,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Format               string                 `json:"format,omitempty"`
}

// GenerateSchema generates a JSON Schema for RegistryConfig.
func GenerateSchema() *JSONSchema {
	return &JSONSchema{
		Schema:      "https://json-schema.org/draft/2020-12/schema",
		ID:          "https://github.com/felixgeelhaar/clitool-registry/clitools.schema.json",
		Title:       "CLI Tool Registry Configuration",
		Description: "Configuration schema for a clitools registry host",
		Type:        "object",
		Required:    []string{"name"},
		Properties: map[string]*JSONSchema{
			"name": {
				Type:        "string",
				Description: "A human-readable name for this host",
			},
			"managed_dir": {
				Type:        "string",
				Description: "Directory where update strategies install binaries",
			},
			"logging":      generateLoggingSchema(),
			"updates":      generateUpdatesSchema(),
			"notification": generateNotificationSchema(),
			"journal":      generateJournalSchema(),
			"cache":        generateCacheSchema(),
			"tracing":      generateTracingSchema(),
			"tools": {
				Type:        "array",
				Description: "Tools registered at startup",
				Items:       generateToolSchema(),
			},
		},
	}
}

func generateLoggingSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"level": {
				Type:    "string",
				Enum:    []string{"trace", "debug", "info", "warn", "error"},
				Default: "info",
			},
			"format": {
				Type:    "string",
				Enum:    []string{"json", "console"},
				Default: "console",
			},
		},
	}
}

func generateUpdatesSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Update dispatch and detection",
		Properties: map[string]*JSONSchema{
			"max_concurrent": {
				Type:        "integer",
				Description: "Maximum concurrent update runs (0 = registry default)",
				Minimum:     floatPtr(0),
			},
			"exec_timeout": {
				Type:        "string",
				Format:      "duration",
				Description: "Timeout of a single version probe",
				Default:     "10s",
			},
			"github_token": {
				Type:        "string",
				Description: "Token for GitHub release lookups",
			},
		},
	}
}

func generateNotificationSchema() *JSONSchema {
	events := make([]string, 0, len(notification.EventTypes()))
	for _, t := range notification.EventTypes() {
		events = append(events, string(t))
	}

	return &JSONSchema{
		Type:        "object",
		Description: "Notification settings",
		Properties: map[string]*JSONSchema{
			"timeout": {
				Type:    "string",
				Format:  "duration",
				Default: "10s",
			},
			"webhooks": {
				Type:        "array",
				Description: "Webhook endpoints",
				Items: &JSONSchema{
					Type:     "object",
					Required: []string{"url"},
					Properties: map[string]*JSONSchema{
						"name":    {Type: "string"},
						"url":     {Type: "string", Format: "uri"},
						"secret":  {Type: "string", Description: "HMAC signing secret"},
						"enabled": {Type: "boolean", Default: true},
						"headers": {
							Type:                 "object",
							AdditionalProperties: &JSONSchema{Type: "string"},
						},
						"events": {
							Type:        "array",
							Description: "Event types to send (empty = all)",
							Items:       &JSONSchema{Type: "string", Enum: events},
						},
					},
				},
			},
			"batching": {
				Type: "object",
				Properties: map[string]*JSONSchema{
					"enabled":  {Type: "boolean", Default: false},
					"max_size": {Type: "integer", Minimum: floatPtr(0), Default: 50},
					"max_wait": {Type: "string", Format: "duration", Default: "2s"},
				},
			},
		},
	}
}

func generateJournalSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Per-tool event journal",
		Properties: map[string]*JSONSchema{
			"backend": {
				Type: "string",
				Enum: []string{
					domainconfig.JournalMemory, domainconfig.JournalBadger,
					domainconfig.JournalSQLite, domainconfig.JournalPostgres,
				},
				Default: domainconfig.JournalMemory,
			},
			"dir": {
				Type:        "string",
				Description: "Data directory for the badger backend",
			},
			"path":   {Type: "string", Description: "Database file for the sqlite backend"},
			"dsn":    {Type: "string", Description: "Connection string for the postgres backend"},
			"schema": {Type: "string", Default: "public"},
		},
	}
}

func generateCacheSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "GitHub release listing cache",
		Properties: map[string]*JSONSchema{
			"backend": {
				Type: "string",
				Enum: []string{
					domainconfig.CacheNone, domainconfig.CacheMemory,
					domainconfig.CacheSQLite, domainconfig.CacheBadger, domainconfig.CacheRedis,
				},
				Default: domainconfig.CacheNone,
			},
			"ttl":        {Type: "string", Format: "duration", Default: "15m"},
			"path":       {Type: "string", Description: "Database file (sqlite) or directory (badger)"},
			"address":    {Type: "string", Description: "Redis server (host:port)"},
			"password":   {Type: "string"},
			"db":         {Type: "integer", Minimum: floatPtr(0)},
			"key_prefix": {Type: "string", Default: "clitools:"},
		},
	}
}

func generateTracingSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "OpenTelemetry spans around update dispatch",
		Properties: map[string]*JSONSchema{
			"exporter": {
				Type:    "string",
				Enum:    []string{domainconfig.TraceNone, domainconfig.TraceStdout, domainconfig.TraceOTLP},
				Default: domainconfig.TraceNone,
			},
			"endpoint": {
				Type:        "string",
				Description: "OTLP gRPC endpoint (host:port)",
			},
			"insecure":    {Type: "boolean", Default: false},
			"sample_rate": {Type: "number", Minimum: floatPtr(0), Default: 1},
		},
	}
}

func generateToolSchema() *JSONSchema {
	return &JSONSchema{
		Type:     "object",
		Required: []string{"extension", "name"},
		Properties: map[string]*JSONSchema{
			"extension": {
				Type:     "object",
				Required: []string{"id"},
				Properties: map[string]*JSONSchema{
					"id":    {Type: "string"},
					"label": {Type: "string"},
				},
			},
			"name":         {Type: "string", Description: "Tool name, unique within the extension"},
			"display_name": {Type: "string"},
			"description":  {Type: "string", Description: "Markdown description"},
			"binary":       {Type: "string", Description: "Executable name (defaults to name)"},
			"version_args": {
				Type:        "array",
				Description: "Arguments that print the version (defaults to --version)",
				Items:       &JSONSchema{Type: "string"},
			},
			"installation_source": {
				Type: "string",
				Enum: []string{string(clitool.SourceExtension), string(clitool.SourceExternal)},
			},
			"update": {
				Type:     "object",
				Required: []string{"type", "owner", "repo"},
				Properties: map[string]*JSONSchema{
					"type": {
						Type: "string",
						Enum: []string{domainconfig.UpdateGitHubRelease, domainconfig.UpdateFixed},
					},
					"owner":               {Type: "string"},
					"repo":                {Type: "string"},
					"version":             {Type: "string", Description: "Pinned version (fixed) or semver constraint (github-release)"},
					"selectable":          {Type: "boolean", Default: false},
					"include_prereleases": {Type: "boolean", Default: false},
					"asset":               {Type: "string", Description: "Regular expression selecting the release asset"},
				},
			},
		},
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

// SchemaJSON returns the JSON Schema as an indented JSON string.
func SchemaJSON() (string, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %w", domainconfig.ErrSchemaGenerationFailed, err)
	}
	return string(data), nil
}
