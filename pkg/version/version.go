// Package version exposes build metadata for the running binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   string // Set via ldflags.
	Branch    string
	BuildUser string
	BuildDate string

	Revision  = getRevision()
	GoVersion = runtime.Version()
	GoOS      = runtime.GOOS
	GoArch    = runtime.GOARCH
)

func GetVersion() string {
	if Version != "" {
		return Version
	}

	return Revision
}

// IsRelease reports whether the binary was built from a tagged release
// rather than a bare VCS revision. Self-update only replaces releases.
func IsRelease() bool {
	return Version != ""
}

// UserAgent identifies the binary in outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("dotup/%s (%s/%s)", GetVersion(), GoOS, GoArch)
}

func getRevision() string {
	rev := "unknown"

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return rev
	}

	modified := false

	for _, v := range buildInfo.Settings {
		switch v.Key {
		case "vcs.revision":
			if len(v.Value) > 7 {
				rev = v.Value[:7]
			} else {
				rev = v.Value
			}

		case "vcs.modified":
			if v.Value == "true" {
				modified = true
			}
		}
	}

	if modified {
		return rev + "-dirty"
	}

	return rev
}
