// Package version reports which build of chatstream is running. The
// commit hash comes from the VCS stamp the Go toolchain embeds at build
// time; builds without one (go test, tarball builds) report "dev".
package version

import "runtime/debug"

// AppName is the application name used in version strings and logging.
const AppName = "chatstream"

// GitCommit is the short commit hash of this build, or "dev" when no
// VCS stamp is available. Locally modified builds carry a "-dirty"
// suffix.
var GitCommit = fromBuildInfo()

func fromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
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
	if rev == "" {
		return "dev"
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// Full returns "chatstream/<commit>" for logs and user-agent strings.
func Full() string {
	return AppName + "/" + GitCommit
}
