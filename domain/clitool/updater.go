package clitool

import (
	"context"
	"fmt"
)

// UpdaterKind discriminates the two update strategy variants.
type UpdaterKind string

// Updater kinds.
const (
	// KindPredefined strategies know the target version up front.
	KindPredefined UpdaterKind = "predefined"
	// KindSelectable strategies ask the user to choose a version.
	KindSelectable UpdaterKind = "selectable"
)

// PredefinedUpdate updates a tool to a fixed version.
type PredefinedUpdate interface {
	// Version returns the version DoUpdate installs.
	Version() string
	DoUpdate(ctx context.Context, logger Logger) error
}

// SelectableUpdate lets the user pick the version before updating.
type SelectableUpdate interface {
	// SelectVersion returns the version chosen for the next DoUpdate.
	SelectVersion(ctx context.Context) (string, error)
	DoUpdate(ctx context.Context, logger Logger) error
}

// Updater is an update strategy. It holds exactly one of the two variants,
// identified by Kind. Build it with NewPredefinedUpdater or NewSelectableUpdater.
type Updater struct {
	kind       UpdaterKind
	predefined PredefinedUpdate
	selectable SelectableUpdate
}

// NewPredefinedUpdater wraps a fixed-version strategy.
func NewPredefinedUpdater(p PredefinedUpdate) Updater {
	return Updater{kind: KindPredefined, predefined: p}
}

// NewSelectableUpdater wraps a user-selected version strategy.
func NewSelectableUpdater(s SelectableUpdate) Updater {
	return Updater{kind: KindSelectable, selectable: s}
}

// Kind returns the variant of the strategy.
func (u Updater) Kind() UpdaterKind {
	return u.kind
}

// Validate reports ErrInvalidUpdater for a zero or empty strategy.
func (u Updater) Validate() error {
	switch u.kind {
	case KindPredefined:
		if u.predefined != nil {
			return nil
		}
	case KindSelectable:
		if u.selectable != nil {
			return nil
		}
	}
	return fmt.Errorf("%w: kind %q", ErrInvalidUpdater, u.kind)
}

// FixedVersion returns the target version of a predefined strategy.
func (u Updater) FixedVersion() (string, bool) {
	if u.kind != KindPredefined || u.predefined == nil {
		return "", false
	}
	return u.predefined.Version(), true
}

// Selectable returns the selectable variant, if that is what u holds.
func (u Updater) Selectable() (SelectableUpdate, bool) {
	if u.kind != KindSelectable || u.selectable == nil {
		return nil, false
	}
	return u.selectable, true
}

// DoUpdate runs the strategy. Errors are returned as produced by the strategy.
func (u Updater) DoUpdate(ctx context.Context, logger Logger) error {
	switch u.kind {
	case KindPredefined:
		if u.predefined != nil {
			return u.predefined.DoUpdate(ctx, logger)
		}
	case KindSelectable:
		if u.selectable != nil {
			return u.selectable.DoUpdate(ctx, logger)
		}
	}
	return u.Validate()
}

// PredefinedFunc adapts a function into a PredefinedUpdate.
type PredefinedFunc struct {
	Target string
	Update func(ctx context.Context, logger Logger) error
}

// Version returns Target.
func (f PredefinedFunc) Version() string { return f.Target }

// DoUpdate calls Update.
func (f PredefinedFunc) DoUpdate(ctx context.Context, logger Logger) error {
	if f.Update == nil {
		return nil
	}
	return f.Update(ctx, logger)
}

// SelectableFunc adapts a pair of functions into a SelectableUpdate.
type SelectableFunc struct {
	Select func(ctx context.Context) (string, error)
	Update func(ctx context.Context, logger Logger) error
}

// SelectVersion calls Select.
func (f SelectableFunc) SelectVersion(ctx context.Context) (string, error) {
	if f.Select == nil {
		return "", nil
	}
	return f.Select(ctx)
}

// DoUpdate calls Update.
func (f SelectableFunc) DoUpdate(ctx context.Context, logger Logger) error {
	if f.Update == nil {
		return nil
	}
	return f.Update(ctx, logger)
}
