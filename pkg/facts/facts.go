// Package facts collects host facts used by condition expressions and
// dotfile templates.
package facts

import (
	"os"
	"os/user"
	"runtime"
)

// Facts describes the host a run executes on.
type Facts struct {
	// OS is the operating system target, e.g. "linux" or "darwin".
	OS string `json:"os"`
	// Arch is the architecture target, e.g. "amd64" or "arm64".
	Arch string `json:"arch"`
	// Hostname is the machine hostname.
	Hostname string `json:"hostname"`
	// User is the current username.
	User string `json:"user"`
	// Home is the user's home directory.
	Home string `json:"home"`
}

// Collect gathers facts about the current host. Lookup failures leave the
// corresponding field empty rather than failing the run.
func Collect() Facts {
	f := Facts{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if hostname, err := os.Hostname(); err == nil {
		f.Hostname = hostname
	}

	if home, err := os.UserHomeDir(); err == nil {
		f.Home = home
	}

	if u, err := user.Current(); err == nil {
		f.User = u.Username
	} else if name := os.Getenv("USER"); name != "" {
		f.User = name
	}

	return f
}

// Vars returns the facts as CEL evaluation variables, keyed to match the
// variables declared by the expression environment.
func (f Facts) Vars() map[string]any {
	return map[string]any{
		"os":       f.OS,
		"arch":     f.Arch,
		"hostname": f.Hostname,
		"user":     f.User,
		"home":     f.Home,
	}
}
