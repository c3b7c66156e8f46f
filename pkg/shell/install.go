package shell

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/macropower/dotup/pkg/fsutil"
)

const (
	blockBegin = "# >>> dotup initialize >>>"
	blockEnd   = "# <<< dotup initialize <<<"

	backupSuffix  = ".dotup.bak"
	defaultRCMode = os.FileMode(0o644)
)

// ErrUnterminatedBlock is returned when an rc file has a begin marker with
// no matching end marker. The file is left untouched.
var ErrUnterminatedBlock = errors.New("managed block has no end marker")

// Block returns the managed rc block for the shell, markers included.
func Block(s Shell) (string, error) {
	line, err := evalLine(s)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s\n%s\n%s\n", blockBegin, line, blockEnd), nil
}

func evalLine(s Shell) (string, error) {
	switch s {
	case Fish:
		return "dotup prompt hook fish | source", nil
	case Bash, Zsh:
		return fmt.Sprintf("eval \"$(dotup prompt hook %s)\"", s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownShell, s)
	}
}

// Manager installs and removes the managed block in shell startup files.
type Manager struct {
	home string
}

type ManagerOpt func(m *Manager)

// WithHome overrides the home directory rc files are resolved against.
func WithHome(home string) ManagerOpt {
	return func(m *Manager) {
		m.home = home
	}
}

func NewManager(opts ...ManagerOpt) (*Manager, error) {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}

	if m.home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}

		m.home = home
	}

	return m, nil
}

// Install writes the managed block into the shell's rc file and returns its
// path. An existing block is replaced in place; an unchanged file is not
// rewritten. The previous rc content is backed up next to the file before
// the first change.
func (m *Manager) Install(s Shell) (string, error) {
	rc, err := s.RCPath(m.home)
	if err != nil {
		return "", err
	}

	block, err := Block(s)
	if err != nil {
		return "", err
	}

	content, mode, err := readRC(rc)
	if err != nil {
		return "", err
	}

	out, changed, err := upsertBlock(content, block)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rc, err)
	}
	if !changed {
		return rc, nil
	}

	err = os.MkdirAll(filepath.Dir(rc), 0o755)
	if err != nil {
		return "", fmt.Errorf("create rc directory: %w", err)
	}

	if content != "" {
		err = os.WriteFile(rc+backupSuffix, []byte(content), mode)
		if err != nil {
			return "", fmt.Errorf("back up rc file: %w", err)
		}
	}

	err = fsutil.WriteFileAtomic(rc, []byte(out), mode)
	if err != nil {
		return "", fmt.Errorf("write rc file: %w", err)
	}

	return rc, nil
}

// Uninstall removes the managed block and reports whether anything was
// removed. Fish's conf.d snippet is deleted outright when nothing else is
// left in it.
func (m *Manager) Uninstall(s Shell) (bool, error) {
	rc, err := s.RCPath(m.home)
	if err != nil {
		return false, err
	}

	content, mode, err := readRC(rc)
	if err != nil {
		return false, err
	}
	if content == "" {
		return false, nil
	}

	out, changed, err := removeBlock(content)
	if err != nil {
		return false, fmt.Errorf("%s: %w", rc, err)
	}
	if !changed {
		return false, nil
	}

	err = os.WriteFile(rc+backupSuffix, []byte(content), mode)
	if err != nil {
		return false, fmt.Errorf("back up rc file: %w", err)
	}

	if s == Fish && strings.TrimSpace(out) == "" {
		err = os.Remove(rc)
		if err != nil {
			return false, fmt.Errorf("remove rc file: %w", err)
		}

		return true, nil
	}

	err = fsutil.WriteFileAtomic(rc, []byte(out), mode)
	if err != nil {
		return false, fmt.Errorf("write rc file: %w", err)
	}

	return true, nil
}

// Installed reports whether the shell's rc file carries the managed block.
func (m *Manager) Installed(s Shell) (bool, error) {
	rc, err := s.RCPath(m.home)
	if err != nil {
		return false, err
	}

	content, _, err := readRC(rc)
	if err != nil {
		return false, err
	}

	return strings.Contains(content, blockBegin), nil
}

func readRC(path string) (string, os.FileMode, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", defaultRCMode, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("stat rc file: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read rc file: %w", err)
	}

	return string(b), info.Mode().Perm(), nil
}

// upsertBlock replaces the managed block in content or appends one,
// reporting whether the content changed.
func upsertBlock(content, block string) (string, bool, error) {
	lines := strings.Split(content, "\n")

	begin, end := findBlock(lines)
	if begin >= 0 && end < 0 {
		return "", false, ErrUnterminatedBlock
	}

	if begin >= 0 {
		blockLines := strings.Split(strings.TrimRight(block, "\n"), "\n")
		out := strings.Join(slices.Concat(lines[:begin], blockLines, lines[end+1:]), "\n")

		return out, out != content, nil
	}

	out := content

	switch {
	case out == "", strings.HasSuffix(out, "\n\n"):
	case strings.HasSuffix(out, "\n"):
		out += "\n"
	default:
		out += "\n\n"
	}

	return out + block, true, nil
}

// removeBlock drops the managed block and the blank line preceding it.
func removeBlock(content string) (string, bool, error) {
	lines := strings.Split(content, "\n")

	begin, end := findBlock(lines)
	if begin < 0 {
		return content, false, nil
	}
	if end < 0 {
		return "", false, ErrUnterminatedBlock
	}

	pre := lines[:begin]
	if len(pre) > 0 && strings.TrimSpace(pre[len(pre)-1]) == "" {
		pre = pre[:len(pre)-1]
	}

	return strings.Join(slices.Concat(pre, lines[end+1:]), "\n"), true, nil
}

func findBlock(lines []string) (begin, end int) {
	begin, end = -1, -1

	for i, line := range lines {
		switch strings.TrimSpace(line) {
		case blockBegin:
			if begin < 0 {
				begin = i
			}
		case blockEnd:
			if begin >= 0 {
				return begin, i
			}
		}
	}

	return begin, end
}
