// Package version holds the dagwatch version string.
package version

// Flag is appended to the version of development builds. Release builds set
// it to the empty string.
const Flag = "develop"

var (
	// Version is the full version string
	Version = "0.1.0"

	// GitCommit is set with --ldflags "-X github.com/dagwatch/dagwatch/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	Version = full(Version, Flag, GitCommit)
}

func full(version, flag, commit string) string {
	if flag != "" {
		version += "-" + flag
	}

	if len(commit) >= 8 {
		version += "-" + commit[:8]
	} else if commit != "" {
		version += "-" + commit
	}

	return version
}
