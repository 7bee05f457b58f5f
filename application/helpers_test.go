package application_test

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
	"github.com/felixgeelhaar/clitool-registry/domain/notification"
)

// fakeTool is a minimal clitool.Handle that fires version listeners on change.
type fakeTool struct {
	params clitool.RecordParams

	mu        sync.Mutex
	version   string
	path      string
	source    clitool.InstallationSource
	listeners map[int]func(string)
	nextID    int
}

func newFakeTool(p clitool.RecordParams) (clitool.Handle, error) {
	return &fakeTool{
		params:    p,
		version:   p.Options.Version,
		path:      p.Options.Path,
		source:    p.Options.InstallationSource,
		listeners: make(map[int]func(string)),
	}, nil
}

func (f *fakeTool) ID() string                  { return clitool.ToolID(f.params.Extension, f.params.Options.Name) }
func (f *fakeTool) Name() string                { return f.params.Options.Name }
func (f *fakeTool) DisplayName() string         { return f.params.Options.DisplayName }
func (f *fakeTool) MarkdownDescription() string { return f.params.Options.MarkdownDescription }
func (f *fakeTool) State() clitool.State        { return clitool.StateRegistered }
func (f *fakeTool) Images() clitool.Images      { return f.params.Options.Images }
func (f *fakeTool) ExtensionInfo() clitool.ExtensionInfo {
	return f.params.Extension
}

func (f *fakeTool) Version() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *fakeTool) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

func (f *fakeTool) InstallationSource() clitool.InstallationSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source
}

func (f *fakeTool) OnDidUpdateVersion(listener func(string)) *clitool.Disposable {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = listener
	f.mu.Unlock()

	return clitool.NewDisposable(func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	})
}

func (f *fakeTool) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeTool) UpdateVersion(u clitool.VersionUpdate) {
	f.mu.Lock()
	changed := u.Version != f.version
	f.version = u.Version
	f.path = u.Path
	f.source = u.InstallationSource
	listeners := make([]func(string), 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(u.Version)
		}
	}
}

func (f *fakeTool) RegisterUpdate(u clitool.Updater) (*clitool.Disposable, error) {
	return f.params.Owner.RegisterUpdate(f, u)
}

func (f *fakeTool) Detect(context.Context) error { return nil }

func (f *fakeTool) Dispose() { f.params.Owner.DisposeTool(f) }

// sent is one recorded notification.
type sent struct {
	Type   notification.EventType
	ToolID string
}

// recordingSender captures every notification.
type recordingSender struct {
	mu     sync.Mutex
	events []sent
}

func (s *recordingSender) Send(eventType notification.EventType, toolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sent{Type: eventType, ToolID: toolID})
}

func (s *recordingSender) all() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSender) count(eventType notification.EventType, toolID string) int {
	n := 0
	for _, e := range s.all() {
		if e.Type == eventType && e.ToolID == toolID {
			n++
		}
	}
	return n
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// recordingLogger captures strategy log lines.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Log(msg string)   { l.add(msg) }
func (l *recordingLogger) Warn(msg string)  { l.add(msg) }
func (l *recordingLogger) Error(msg string) { l.add(msg) }

func (l *recordingLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}
