// Package api provides the public API for embedding a CLI tool registry.
//
// A host owns one registry, built from a declarative configuration. Extensions
// create tool records in it, attach update strategies and receive a live
// handle back. Consumers read snapshots and dispatch updates.
//
// # Quick Start
//
//	cfg, _ := api.LoadConfig("clitools.yaml")
//	host, _ := api.NewHost(ctx, cfg)
//	defer host.Close()
//
//	// Create declared tools, detect their binaries and attach strategies.
//	_ = host.Declare(ctx, api.DeclareOptions{Detect: true, Strategies: true})
//
//	for _, info := range host.Registry().ListToolInfos() {
//	    fmt.Println(info.ID, info.Version, info.NewVersion, info.CanUpdate)
//	}
//
//	_ = host.Update(ctx, "ext.k8s.kubectl")
//
// # Extensions
//
// Extensions that register tools at runtime use the registry directly:
//
//	tool, _ := host.Registry().CreateTool(
//	    api.ExtensionInfo{ID: "ext.k8s", Label: "Kubernetes"},
//	    api.CreateOptions{Name: "kind"},
//	)
//	registration, _ := tool.RegisterUpdate(api.NewPredefinedUpdater(api.PredefinedFunc{
//	    Target: "0.23.0",
//	    Update: installKind,
//	}))
//	defer registration.Dispose()
//
// # Notifications
//
// Every registry change is sent as tool-created, tool-changed or tool-removed.
// Host.Bus fans them out to in-process subscribers; configured webhooks
// receive them as signed JSON.
package api

import (
	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	domainconfig "github.com/felixgeelhaar/clitool-registry/domain/config"
	"github.com/felixgeelhaar/clitool-registry/domain/event"
	"github.com/felixgeelhaar/clitool-registry/domain/notification"
	infraconfig "github.com/felixgeelhaar/clitool-registry/infrastructure/config"
)

// Re-export tool types.
type (
	// ExtensionInfo identifies the extension that owns a tool.
	ExtensionInfo = clitool.ExtensionInfo
	// CreateOptions describes a tool to create.
	CreateOptions = clitool.CreateOptions
	// Handle is the live tool returned to its extension.
	Handle = clitool.Handle
	// Info is a read-only tool snapshot.
	Info = clitool.Info
	// Updater is an update strategy.
	Updater = clitool.Updater
	// PredefinedFunc adapts a closure to a predefined strategy.
	PredefinedFunc = clitool.PredefinedFunc
	// SelectableFunc adapts closures to a selectable strategy.
	SelectableFunc = clitool.SelectableFunc
	// Logger receives strategy progress.
	Logger = clitool.Logger
	// Disposable revokes a registration.
	Disposable = clitool.Disposable
)

// Re-export notification and journal types.
type (
	// EventType is a registry notification type.
	EventType = notification.EventType
	// Notification is a delivered registry notification.
	Notification = notification.Notification
	// EventFilter selects notifications.
	EventFilter = notification.EventFilter
	// Event is a journal entry.
	Event = event.Event
	// QueryOptions filters journal queries.
	QueryOptions = event.QueryOptions
)

// Re-export configuration types.
type (
	// Config is the registry host configuration.
	Config = domainconfig.RegistryConfig
	// ToolConfig declares a tool.
	ToolConfig = domainconfig.ToolConfig
	// UpdateConfig declares an update strategy.
	UpdateConfig = domainconfig.UpdateConfig
)

// Notification types.
const (
	EventToolCreated = notification.EventToolCreated
	EventToolChanged = notification.EventToolChanged
	EventToolRemoved = notification.EventToolRemoved
)

// Errors.
var (
	ErrNoUpdater        = clitool.ErrNoUpdater
	ErrToolNotFound     = clitool.ErrToolNotFound
	ErrInvalidUpdater   = clitool.ErrInvalidUpdater
	ErrValidationFailed = domainconfig.ErrValidationFailed
	ErrConfigNotFound   = domainconfig.ErrConfigNotFound
)

// NewPredefinedUpdater wraps a strategy that knows its target version.
func NewPredefinedUpdater(p clitool.PredefinedUpdate) Updater {
	return clitool.NewPredefinedUpdater(p)
}

// NewSelectableUpdater wraps a strategy that lets the user pick a version.
func NewSelectableUpdater(s clitool.SelectableUpdate) Updater {
	return clitool.NewSelectableUpdater(s)
}

// FilterByType selects notifications of the given types.
func FilterByType(types ...EventType) EventFilter {
	return notification.FilterByType(types...)
}

// FilterByTool selects notifications about the given tools.
func FilterByTool(ids ...string) EventFilter {
	return notification.FilterByTool(ids...)
}

// LoadConfig loads, expands and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	return infraconfig.NewLoader().LoadFile(path)
}

// DefaultConfig returns a minimal configuration with defaults applied.
func DefaultConfig() *Config {
	return infraconfig.DefaultConfig()
}
