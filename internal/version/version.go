// Package version holds build information for httpd.
package version

import "runtime"

// These variables can be overridden at build time using ldflags:
// go build -ldflags "-X httpd/internal/version.Version=1.0.0 -X httpd/internal/version.Commit=abc123"
var (
	// Version is the semantic version of httpd
	Version = "0.4.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// Info returns the version with the short commit when one was stamped
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	return "httpd version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate + "\n" +
		"Go: " + runtime.Version()
}
