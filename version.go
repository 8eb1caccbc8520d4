// Package mutaflow provides the version information for the mutation workflow engine.
package mutaflow

// Version is the current version of mutaflow.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
