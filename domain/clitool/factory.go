package clitool

import "github.com/felixgeelhaar/clitool-registry/domain/notification"

// RecordParams carries everything a record constructor receives.
type RecordParams struct {
	// Sender is the registry notification channel.
	Sender notification.Sender
	// Exec runs the tool binary during detection.
	Exec Exec
	// Extension owns the tool.
	Extension ExtensionInfo
	// Owner is the registry the record forwards RegisterUpdate and Dispose to.
	Owner Owner
	// Options describe the tool.
	Options CreateOptions
}

// RecordFactory builds tool records for a registry.
type RecordFactory func(params RecordParams) (Handle, error)
