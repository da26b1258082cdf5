// Package version holds build information set via -ldflags.
package version

var (
	// Version is the release version.
	Version = "0.0.0"
	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Info returns build information for the /version endpoint.
func Info() map[string]string {
	return map[string]string{
		"service":    "push-relay",
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
	}
}
