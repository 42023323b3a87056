// Package version carries build metadata stamped at link time via
// -ldflags "-X github.com/globalcorp/edgebridge/pkg/version.Version=...".
package version

var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// Commit is the git revision the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)
