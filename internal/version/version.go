// Package version holds the build version, overridden at link time with
// -ldflags "-X github.com/hookline/hookline/internal/version.version=...".
package version

var version = "dev"

func Version() string {
	return version
}
