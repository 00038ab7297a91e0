// Package version holds build information set with -ldflags -X.
package version

import "fmt"

var (
	// Version is the release of the depthcam build.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

// String describes the build on one line.
func String() string {
	return fmt.Sprintf("depthcam %s (%s, built %s)", Version, GitSHA, BuildTime)
}
