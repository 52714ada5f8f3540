// Package version holds the build version, set at link time via
// -ldflags "-X .../internal/version.Version=...".
package version

// Version is the service version embedded in backups and health output.
var Version = "dev"
