// Package version carries build metadata injected with -ldflags.
package version

var (
	// Version is the release tag, empty for dev builds.
	Version = ""
	// Commit is the short git SHA the binary was built from.
	Commit = ""
	// Date is the UTC build timestamp.
	Date = ""
)

// String returns a compact version for the healthz payload and logs:
// the release tag when set, "dev-<sha>" for untagged builds, "dev" otherwise.
func String() string {
	if Version != "" {
		return Version
	}
	if Commit != "" {
		return "dev-" + Commit
	}
	return "dev"
}
