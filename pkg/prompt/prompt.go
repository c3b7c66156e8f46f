// Package prompt renders shortened working-directory paths for shell
// prompts and emits the hook snippets that keep them fresh.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/macropower/dotup/pkg/yaml"
)

// Style is a path shortening strategy.
type Style string

const (
	// StyleFull renders the path without shortening.
	StyleFull Style = "full"
	// StyleAbbrev reduces every non-terminal segment to its first letter.
	StyleAbbrev Style = "abbrev"
	// StyleTruncate keeps only the trailing segments of long paths.
	StyleTruncate Style = "truncate"
)

const (
	// DefaultMaxLength is the rendered length cap in runes.
	DefaultMaxLength = 40
	// DefaultKeepSegments is how many trailing segments truncation keeps.
	DefaultKeepSegments = 3

	ellipsis = "…"
	sep      = string(filepath.Separator)
)

// ErrUnknownStyle is returned for styles other than full, abbrev, truncate.
var ErrUnknownStyle = errors.New("unknown prompt style")

// Config defines prompt path rendering.
type Config struct {
	// Style selects the shortening strategy, one of full, abbrev, truncate.
	Style Style `json:"style,omitempty" jsonschema:"title=Style,enum=full,enum=abbrev,enum=truncate,default=abbrev"`
	// MaxLength caps the rendered path length in runes.
	MaxLength int `json:"maxLength,omitempty" jsonschema:"title=Max Length"`
	// KeepSegments is how many trailing segments truncation keeps.
	KeepSegments int `json:"keepSegments,omitempty" jsonschema:"title=Keep Segments"`
}

func (c *Config) EnsureDefaults() {
	if c.Style == "" {
		c.Style = StyleAbbrev
	}
	if c.MaxLength == 0 {
		c.MaxLength = DefaultMaxLength
	}
	if c.KeepSegments == 0 {
		c.KeepSegments = DefaultKeepSegments
	}
}

func (c *Config) Validate() error {
	switch c.Style {
	case "", StyleFull, StyleAbbrev, StyleTruncate:
		return nil
	default:
		pb := yaml.NewPathBuilder()

		return yaml.NewError(
			fmt.Errorf("%w: %q", ErrUnknownStyle, c.Style),
			yaml.WithPath(pb.Root().Child("prompt").Child("style").Build()),
		)
	}
}

// Shortener renders prompt paths for one configuration.
type Shortener struct {
	cfg  *Config
	home string
}

type ShortenerOpt func(s *Shortener)

// WithHome overrides the home directory used for tilde collapsing.
func WithHome(home string) ShortenerOpt {
	return func(s *Shortener) {
		s.home = home
	}
}

// New creates a Shortener. A nil config uses the defaults.
func New(cfg *Config, opts ...ShortenerOpt) *Shortener {
	cc := Config{}
	if cfg != nil {
		cc = *cfg
	}

	cc.EnsureDefaults()

	s := &Shortener{cfg: &cc}
	for _, opt := range opts {
		opt(s)
	}

	if s.home == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			s.home = home
		}
	}

	if s.home != "" {
		s.home = filepath.Clean(s.home)
	}

	return s
}

// Render shortens dir per the configured style. The home prefix collapses
// to a tilde before any shortening; volume roots are preserved.
func (s *Shortener) Render(dir string) string {
	p := s.collapseHome(filepath.Clean(dir))

	switch s.cfg.Style {
	case StyleFull:
		return p
	case StyleTruncate:
		return s.truncate(p)
	default:
		return s.abbrev(p)
	}
}

func (s *Shortener) collapseHome(p string) string {
	if s.home == "" {
		return p
	}

	if p == s.home {
		return "~"
	}

	if strings.HasPrefix(p, s.home+sep) {
		return "~" + p[len(s.home):]
	}

	return p
}

func (s *Shortener) abbrev(p string) string {
	root, segs := splitPath(p)
	if len(segs) < 2 {
		return s.truncate(p)
	}

	out := make([]string, len(segs))
	for i, seg := range segs {
		if i == len(segs)-1 {
			out[i] = seg

			continue
		}

		out[i] = abbrevSegment(seg)
	}

	short := root + strings.Join(out, sep)
	if s.cfg.MaxLength > 0 && utf8.RuneCountInString(short) > s.cfg.MaxLength {
		return s.truncate(p)
	}

	return short
}

// truncate keeps the trailing segments of paths over the length cap,
// replacing the dropped prefix with an ellipsis. A path that still exceeds
// the cap afterwards is cut mid-segment.
func (s *Shortener) truncate(p string) string {
	maxLen := s.cfg.MaxLength
	if maxLen <= 0 || utf8.RuneCountInString(p) <= maxLen {
		return p
	}

	keep := s.cfg.KeepSegments
	if keep < 1 {
		keep = 1
	}

	out := p
	if _, segs := splitPath(p); keep < len(segs) {
		out = ellipsis + sep + strings.Join(segs[len(segs)-keep:], sep)
	}

	if r := []rune(out); len(r) > maxLen && maxLen > 1 {
		out = ellipsis + string(r[len(r)-maxLen+1:])
	}

	return out
}

// splitPath splits a cleaned path into its root prefix (volume name plus
// leading separator, empty for relative paths) and segments.
func splitPath(p string) (string, []string) {
	root := filepath.VolumeName(p)
	rest := p[len(root):]

	if strings.HasPrefix(rest, sep) {
		root += sep
		rest = rest[1:]
	}

	if rest == "" {
		return root, nil
	}

	return root, strings.Split(rest, sep)
}

// abbrevSegment reduces a segment to its first letter, keeping the leading
// dot of hidden directories.
func abbrevSegment(seg string) string {
	r := []rune(seg)

	switch {
	case len(r) == 0:
		return seg
	case r[0] == '.' && len(r) > 1:
		return string(r[:2])
	default:
		return string(r[:1])
	}
}
