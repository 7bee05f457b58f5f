// Package clitoolregistry provides the version information for clitool-registry.
package clitoolregistry

// Version is the current version of clitool-registry.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
