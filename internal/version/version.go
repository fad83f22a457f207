// Package version provides version information for bastion.
// The Version variable is set at build time via ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the current version of bastion.
// Set at build time via: -ldflags "-X github.com/xdg/bastion/internal/version.Version=v1.0.0"
// Defaults to "dev" for development builds.
var Version = "dev"

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Revision returns the short VCS revision the binary was built from, with a
// "-dirty" suffix for modified trees. It is empty when unknown.
func Revision() string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

// String returns the version line printed by "bastion --version".
func String() string {
	if rev := Revision(); rev != "" {
		return fmt.Sprintf("%s (%s, %s)", Version, rev, runtime.Version())
	}
	return fmt.Sprintf("%s (%s)", Version, runtime.Version())
}

// UserAgent returns the User-Agent sent with model API requests.
func UserAgent() string {
	return fmt.Sprintf("bastion/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
