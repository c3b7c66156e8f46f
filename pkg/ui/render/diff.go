package render

import (
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/macropower/dotup/pkg/ui/theme"
)

// UnifiedDiff renders unified diffs with insertions and deletions styled by
// the theme. Used to show drift between deployed files and their sources.
type UnifiedDiff struct {
	theme *theme.Theme
}

// NewUnifiedDiff creates a new [UnifiedDiff].
func NewUnifiedDiff(t *theme.Theme) *UnifiedDiff {
	return &UnifiedDiff{theme: t}
}

// Changed reports whether before and after differ.
func (d *UnifiedDiff) Changed(before, after string) bool {
	return len(udiff.Strings(before, after)) > 0
}

// Render returns the styled unified diff between before and after, and
// whether the contents differ at all.
func (d *UnifiedDiff) Render(oldLabel, newLabel, before, after string) (string, bool) {
	if !d.Changed(before, after) {
		return "", false
	}

	return d.colorize(udiff.Unified(oldLabel, newLabel, before, after)), true
}

func (d *UnifiedDiff) colorize(unified string) string {
	lines := strings.Split(strings.TrimRight(unified, "\n"), "\n")

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			out = append(out, d.theme.SubtleStyle.Render(line))

		case strings.HasPrefix(line, "@@"):
			out = append(out, d.theme.SelectedStyle.Render(line))

		case strings.HasPrefix(line, "+"):
			out = append(out, d.theme.DiffInsertedStyle.Render(line))

		case strings.HasPrefix(line, "-"):
			out = append(out, d.theme.DiffDeletedStyle.Render(line))

		default:
			out = append(out, line)
		}
	}

	return strings.Join(out, "\n")
}
