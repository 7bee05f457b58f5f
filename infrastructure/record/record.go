// Package record provides the tool record handed to extensions by the registry.
package record

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	"github.com/felixgeelhaar/clitool-registry/domain/notification"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/logging"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/statemachine"
)

// Option configures records built by a factory.
type Option func(*config)

type config struct {
	managedDir string
}

// WithManagedDir sets the directory the host installs tool binaries into.
// Binaries found there are reported as installed by the extension.
func WithManagedDir(dir string) Option {
	return func(c *config) {
		c.managedDir = dir
	}
}

// NewFactory returns a record factory for a registry.
func NewFactory(opts ...Option) clitool.RecordFactory {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(p clitool.RecordParams) (clitool.Handle, error) {
		return newRecord(p, cfg)
	}
}

// Record is a registered CLI tool. Detection state is driven by a statekit machine.
type Record struct {
	id         string
	ext        clitool.ExtensionInfo
	opts       clitool.CreateOptions
	owner      clitool.Owner
	sender     notification.Sender
	exec       clitool.Exec
	managedDir string
	machine    *statemachine.Interpreter

	mu           sync.RWMutex
	version      string
	path         string
	source       clitool.InstallationSource
	listeners    map[uint64]func(string)
	nextListener uint64
}

func newRecord(p clitool.RecordParams, cfg config) (*Record, error) {
	if p.Owner == nil {
		return nil, fmt.Errorf("record %s has no owner", clitool.ToolID(p.Extension, p.Options.Name))
	}

	id := clitool.ToolID(p.Extension, p.Options.Name)
	machine, err := statemachine.NewToolMachine()
	if err != nil {
		return nil, fmt.Errorf("build state machine for %s: %w", id, err)
	}
	interp := statemachine.NewInterpreter(machine, statemachine.NewContext(id))
	interp.Start()

	sender := p.Sender
	if sender == nil {
		sender = notification.NopSender{}
	}

	return &Record{
		id:         id,
		ext:        p.Extension,
		opts:       p.Options,
		owner:      p.Owner,
		sender:     sender,
		exec:       p.Exec,
		managedDir: cfg.managedDir,
		machine:    interp,
		version:    p.Options.Version,
		path:       p.Options.Path,
		source:     p.Options.InstallationSource,
		listeners:  make(map[uint64]func(string)),
	}, nil
}

// ID returns the tool id, "<extension>.<name>".
func (r *Record) ID() string { return r.id }

// Name returns the tool name.
func (r *Record) Name() string { return r.opts.Name }

// DisplayName returns the human-readable name.
func (r *Record) DisplayName() string { return r.opts.DisplayName }

// MarkdownDescription returns the markdown description.
func (r *Record) MarkdownDescription() string { return r.opts.MarkdownDescription }

// Images returns the tool icons.
func (r *Record) Images() clitool.Images { return r.opts.Images }

// ExtensionInfo returns the extension that created the tool.
func (r *Record) ExtensionInfo() clitool.ExtensionInfo { return r.ext }

// State returns the current detection state.
func (r *Record) State() clitool.State { return r.machine.State() }

// RegisterUpdate attaches an update strategy through the owning registry.
func (r *Record) RegisterUpdate(u clitool.Updater) (*clitool.Disposable, error) {
	return r.owner.RegisterUpdate(r, u)
}

// Dispose removes the tool from its registry.
func (r *Record) Dispose() {
	r.owner.DisposeTool(r)
}

// Version returns the installed version, empty when unknown.
func (r *Record) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Path returns the binary location, empty when unknown.
func (r *Record) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// InstallationSource reports who installed the binary.
func (r *Record) InstallationSource() clitool.InstallationSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// OnDidUpdateVersion registers a version listener.
func (r *Record) OnDidUpdateVersion(listener func(version string)) *clitool.Disposable {
	r.mu.Lock()
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = listener
	r.mu.Unlock()

	return clitool.NewDisposable(func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	})
}

// UpdateVersion records what the extension installed. A non-empty path marks
// the tool as found.
func (r *Record) UpdateVersion(u clitool.VersionUpdate) {
	state := r.State()
	if u.Path != "" {
		state = clitool.StateFound
	}
	r.apply(u, state, "version reported by extension")
}

// apply stores u, moves the machine to state and tells listeners. Listeners run
// outside the lock. A state change without a version change is announced directly.
func (r *Record) apply(u clitool.VersionUpdate, state clitool.State, reason string) {
	r.mu.Lock()
	versionChanged := u.Version != r.version
	r.version = u.Version
	r.path = u.Path
	r.source = u.InstallationSource
	var listeners []func(string)
	if versionChanged {
		listeners = make([]func(string), 0, len(r.listeners))
		for _, l := range r.listeners {
			listeners = append(listeners, l)
		}
	}
	r.mu.Unlock()

	stateChanged, err := r.machine.Transition(state, reason)
	if err != nil {
		logging.Warn().
			Add(logging.ToolID(r.id)).
			Add(logging.ErrorField(err)).
			Msg("ignored cli tool state change")
	}

	for _, l := range listeners {
		l(u.Version)
	}
	if stateChanged && !versionChanged {
		r.sender.Send(notification.EventToolChanged, r.id)
	}
}

// markMissing moves the tool to missing and announces the change.
func (r *Record) markMissing(reason string) {
	changed, err := r.machine.Transition(clitool.StateMissing, reason)
	if err == nil && changed {
		r.sender.Send(notification.EventToolChanged, r.id)
	}
}

// Detect locates the tool binary and asks it for its version.
func (r *Record) Detect(ctx context.Context) error {
	if r.exec == nil {
		return fmt.Errorf("detect %s: no exec capability", r.id)
	}

	binary := r.binary()
	path, err := r.locate(binary)
	if err != nil {
		r.markMissing(err.Error())
		logging.Debug().
			Add(logging.ToolID(r.id)).
			Add(logging.Str("binary", binary)).
			Msg("cli tool binary not found")
		return fmt.Errorf("%w: %s", clitool.ErrBinaryNotFound, binary)
	}

	res, err := r.exec.Exec(ctx, path, r.versionArgs()...)
	if err != nil {
		r.markMissing(err.Error())
		return fmt.Errorf("detect %s: %w", r.id, err)
	}

	output := res.Stdout
	if strings.TrimSpace(output) == "" {
		output = res.Stderr
	}
	version := ParseVersion(output)

	r.apply(clitool.VersionUpdate{
		Version:            version,
		Path:               path,
		InstallationSource: r.sourceOf(path),
	}, clitool.StateFound, "binary detected")

	logging.Info().
		Add(logging.ToolID(r.id)).
		Add(logging.Version(version)).
		Add(logging.Str("path", path)).
		Msg("cli tool detected")
	return nil
}

func (r *Record) binary() string {
	if r.opts.Binary != "" {
		return r.opts.Binary
	}
	return r.opts.Name
}

func (r *Record) versionArgs() []string {
	if len(r.opts.VersionArgs) > 0 {
		return r.opts.VersionArgs
	}
	return []string{"--version"}
}

// locate prefers the managed directory over PATH.
func (r *Record) locate(binary string) (string, error) {
	if r.managedDir != "" {
		if path, ok := findExecutable(filepath.Join(r.managedDir, binary)); ok {
			return path, nil
		}
	}
	return r.exec.LookPath(binary)
}

func (r *Record) sourceOf(path string) clitool.InstallationSource {
	if r.managedDir == "" {
		return clitool.SourceExternal
	}
	rel, err := filepath.Rel(r.managedDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return clitool.SourceExternal
	}
	return clitool.SourceExtension
}

var _ clitool.Handle = (*Record)(nil)
