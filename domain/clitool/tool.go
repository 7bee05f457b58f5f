// Package clitool provides domain models for command-line tools contributed by extensions.
package clitool

import (
	"context"
	"strings"
)

// State is the detection state of a CLI tool.
type State string

// Tool states.
const (
	// StateRegistered is the initial state before any detection ran.
	StateRegistered State = "registered"
	// StateFound means the tool binary was located and queried.
	StateFound State = "found"
	// StateMissing means detection ran and the binary could not be used.
	StateMissing State = "missing"
)

// InstallationSource describes who installed the tool binary.
type InstallationSource string

// Installation sources. The empty value means the source is unknown.
const (
	SourceExtension InstallationSource = "extension"
	SourceExternal  InstallationSource = "external"
)

// ExtensionInfo identifies the extension that contributed a tool.
type ExtensionInfo struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// Images holds icon references for a tool.
type Images struct {
	Icon  string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Light string `json:"light,omitempty" yaml:"light,omitempty"`
	Dark  string `json:"dark,omitempty" yaml:"dark,omitempty"`
}

// CreateOptions describes a tool an extension wants to register.
type CreateOptions struct {
	// Name is the tool name, unique within its extension.
	Name string

	// DisplayName is the human-readable name.
	DisplayName string

	// MarkdownDescription describes the tool in markdown.
	MarkdownDescription string

	// Images are optional icons.
	Images Images

	// Version is the installed version, if the extension already knows it.
	Version string

	// Path is the installed binary location, if known.
	Path string

	// InstallationSource records who installed the binary, if known.
	InstallationSource InstallationSource

	// Binary is the executable name used for detection. Defaults to Name.
	Binary string

	// VersionArgs are the arguments that make the binary print its version.
	// Defaults to --version.
	VersionArgs []string
}

// Validate checks the options for a tool owned by ext.
func (o CreateOptions) Validate(ext ExtensionInfo) error {
	if strings.TrimSpace(ext.ID) == "" {
		return ErrEmptyExtension
	}
	if strings.TrimSpace(o.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// ToolID derives the registry id of a tool from its owner and name.
func ToolID(ext ExtensionInfo, name string) string {
	return ext.ID + "." + name
}

// VersionUpdate is reported by an extension after its tool binary changed.
type VersionUpdate struct {
	Version            string
	Path               string
	InstallationSource InstallationSource
}

// Record is the read side of a registered tool.
type Record interface {
	ID() string
	Name() string
	DisplayName() string
	MarkdownDescription() string
	State() State
	Images() Images
	ExtensionInfo() ExtensionInfo
	Version() string
	Path() string
	InstallationSource() InstallationSource

	// OnDidUpdateVersion registers a listener invoked synchronously whenever
	// the detected version changes. Disposing the result removes the listener.
	OnDidUpdateVersion(listener func(version string)) *Disposable
}

// Handle is the live tool object handed back to the extension that created it.
type Handle interface {
	Record

	// UpdateVersion records a new version, path and installation source.
	UpdateVersion(update VersionUpdate)

	// RegisterUpdate attaches an update strategy to this tool.
	RegisterUpdate(updater Updater) (*Disposable, error)

	// Detect locates the binary and queries its version.
	Detect(ctx context.Context) error

	// Dispose removes the tool from its registry.
	Dispose()
}

// Owner is the registry back-reference a record forwards to.
type Owner interface {
	RegisterUpdate(tool Record, updater Updater) (*Disposable, error)
	DisposeTool(tool Record)
}
