package journal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/macropower/dotup/pkg/updater"
)

// writeTranscript renders the run into a new transcript file and returns its
// path. Runs started in the same second get a numeric suffix.
func (j *Journal) writeTranscript(kind string, result *updater.RunResult) (string, error) {
	content := renderTranscript(kind, result)
	base := fmt.Sprintf("%s_%s", result.Started.UTC().Format(stampFormat), kind)

	for i := 1; ; i++ {
		name := base + ".log"
		if i > 1 {
			name = fmt.Sprintf("%s_%d.log", base, i)
		}

		path := filepath.Join(j.dir, logsDir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create transcript: %w", err)
		}

		_, werr := f.WriteString(content)
		cerr := f.Close()

		if werr != nil {
			return "", fmt.Errorf("write transcript: %w", werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("write transcript: %w", cerr)
		}

		return path, nil
	}
}

func renderTranscript(kind string, result *updater.RunResult) string {
	var b strings.Builder

	updated, failed, skipped := result.Counts()

	fmt.Fprintf(&b, "dotup %s run\n", kind)
	fmt.Fprintf(&b, "started:  %s\n", result.Started.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "finished: %s\n", result.Finished.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "status:   %s (%d updated, %d failed, %d skipped)\n",
		result.Status, updated, failed, skipped)

	names := make([]string, 0, len(result.Managers))
	for name := range result.Managers {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		mr := result.Managers[name]

		fmt.Fprintf(&b, "\n[%s]\n", name)

		if mr.Err != nil {
			fmt.Fprintf(&b, "error: %v\n", mr.Err)

			continue
		}

		if len(mr.Packages) == 0 {
			b.WriteString("up to date\n")

			continue
		}

		for _, pr := range mr.Packages {
			b.WriteString(packageLine(pr))
		}
	}

	return b.String()
}

func packageLine(pr updater.PackageResult) string {
	pkg := pr.Package

	versions := pkg.Current
	if pkg.Latest != "" {
		versions = fmt.Sprintf("%s -> %s", pkg.Current, pkg.Latest)
	}

	switch {
	case pr.Skipped:
		return fmt.Sprintf("skip %s %s (dry run)\n", pkg.Name, versions)

	case pr.Err != nil:
		line := fmt.Sprintf("fail %s %s (%s): %v\n",
			pkg.Name, versions, pr.Duration().Round(time.Millisecond), pr.Err)

		if stderr := strings.TrimSpace(pr.Stderr); stderr != "" {
			for _, l := range strings.Split(stderr, "\n") {
				line += "  " + l + "\n"
			}
		}

		return line

	default:
		return fmt.Sprintf("ok   %s %s (%s)\n",
			pkg.Name, versions, pr.Duration().Round(time.Millisecond))
	}
}

// PruneLogs applies transcript retention across every run kind and returns
// the removed paths. Indexed history rows are kept; only transcript files
// are removed.
func (j *Journal) PruneLogs() ([]string, error) {
	byKind, err := j.transcriptsByKind()
	if err != nil {
		return nil, err
	}

	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	var removed []string

	for _, kind := range kinds {
		r, err := j.removeExcess(byKind[kind])
		removed = append(removed, r...)

		if err != nil {
			return removed, err
		}
	}

	return removed, nil
}

func (j *Journal) pruneKind(kind string) ([]string, error) {
	byKind, err := j.transcriptsByKind()
	if err != nil {
		return nil, err
	}

	return j.removeExcess(byKind[kind])
}

// transcriptsByKind lists transcript paths grouped by run kind.
func (j *Journal) transcriptsByKind() (map[string][]string, error) {
	dir := filepath.Join(j.dir, logsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read logs directory: %w", err)
	}

	byKind := make(map[string][]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		kind, ok := transcriptKind(entry.Name())
		if !ok {
			continue
		}

		byKind[kind] = append(byKind[kind], filepath.Join(dir, entry.Name()))
	}

	return byKind, nil
}

// removeExcess deletes all but the newest keep paths. Stamped names sort
// chronologically, so a plain string sort suffices.
func (j *Journal) removeExcess(paths []string) ([]string, error) {
	if len(paths) <= j.keep {
		return nil, nil
	}

	sort.Strings(paths)

	var removed []string

	for _, path := range paths[:len(paths)-j.keep] {
		err := os.Remove(path)
		if err != nil {
			return removed, fmt.Errorf("remove transcript: %w", err)
		}

		removed = append(removed, path)
	}

	return removed, nil
}

// transcriptKind extracts the run kind from a transcript filename of the
// form <stamp>_<kind>.log, tolerating a numeric collision suffix.
func transcriptKind(name string) (string, bool) {
	name, ok := strings.CutSuffix(name, ".log")
	if !ok {
		return "", false
	}

	_, kind, ok := strings.Cut(name, "_")
	if !ok || kind == "" {
		return "", false
	}

	if idx := strings.LastIndex(kind, "_"); idx >= 0 {
		if _, err := strconv.Atoi(kind[idx+1:]); err == nil {
			kind = kind[:idx]
		}
	}

	return kind, kind != ""
}
