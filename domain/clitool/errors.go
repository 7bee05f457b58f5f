package clitool

import "errors"

// Domain errors for the CLI tool registry.
var (
	// ErrNoUpdater indicates no selectable update strategy is attached to a tool.
	ErrNoUpdater = errors.New("no updater registered")

	// ErrToolNotFound indicates the tool id is not present in the registry.
	ErrToolNotFound = errors.New("cli tool not found")

	// ErrInvalidUpdater indicates an update strategy without an implementation.
	ErrInvalidUpdater = errors.New("invalid updater")

	// ErrEmptyName indicates a tool was created with an empty name.
	ErrEmptyName = errors.New("cli tool name cannot be empty")

	// ErrEmptyExtension indicates a tool was created without an owning extension.
	ErrEmptyExtension = errors.New("extension id cannot be empty")

	// ErrBinaryNotFound indicates detection could not locate the tool binary.
	ErrBinaryNotFound = errors.New("cli tool binary not found")
)
