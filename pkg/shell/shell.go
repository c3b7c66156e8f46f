// Package shell detects the user's shell and manages dotup's block in its
// startup files.
package shell

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	xstrings "github.com/charmbracelet/x/exp/strings"
)

// Shell is a supported login shell.
type Shell string

const (
	Bash Shell = "bash"
	Zsh  Shell = "zsh"
	Fish Shell = "fish"
)

// ErrUnknownShell is returned for shells dotup cannot integrate with.
var ErrUnknownShell = errors.New("unknown shell")

// Shells lists the supported shells.
func Shells() []Shell {
	return []Shell{Bash, Zsh, Fish}
}

func (s Shell) String() string {
	return string(s)
}

// RCPath returns the startup file the managed block goes into. Bash and zsh
// use the rc file in home; fish gets a dedicated conf.d snippet.
func (s Shell) RCPath(home string) (string, error) {
	switch s {
	case Bash:
		return filepath.Join(home, ".bashrc"), nil
	case Zsh:
		return filepath.Join(home, ".zshrc"), nil
	case Fish:
		return filepath.Join(home, ".config", "fish", "conf.d", "dotup.fish"), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownShell, s)
	}
}

// Parse normalizes a shell name or path (`zsh`, `/bin/bash`, `-zsh`) into a
// known Shell.
func Parse(name string) (Shell, error) {
	base := strings.TrimPrefix(filepath.Base(strings.TrimSpace(name)), "-")

	switch Shell(base) {
	case Bash, Zsh, Fish:
		return Shell(base), nil
	default:
		names := make([]string, 0, len(Shells()))
		for _, s := range Shells() {
			names = append(names, s.String())
		}

		return "", fmt.Errorf("%w: %q, expected %s", ErrUnknownShell, name, xstrings.EnglishJoin(names, true))
	}
}

// Detect returns the user's shell from $SHELL, falling back to the parent
// process name on systems with procfs.
func Detect() (Shell, error) {
	if env := os.Getenv("SHELL"); env != "" {
		s, err := Parse(env)
		if err == nil {
			return s, nil
		}
	}

	comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", os.Getppid()))
	if err != nil {
		return "", fmt.Errorf("%w: $SHELL is unset and the parent process is not identifiable", ErrUnknownShell)
	}

	return Parse(string(comm))
}
