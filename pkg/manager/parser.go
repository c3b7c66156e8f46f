package manager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/macropower/dotup/pkg/execs"
)

const (
	// FormatJSON decodes list output as a JSON document.
	FormatJSON = "json"
	// FormatLines matches a regular expression against each line of list output.
	FormatLines = "lines"
)

var (
	// ErrUnknownFormat is returned when a parser format is not recognized.
	ErrUnknownFormat = errors.New("unknown parser format")

	// ErrNoPattern is returned when the lines format is used without a pattern.
	ErrNoPattern = errors.New("lines format requires a pattern")

	// ErrNoNameGroup is returned when a pattern has no `name` capture group.
	ErrNoNameGroup = errors.New("pattern requires a name capture group")
)

// Parser turns list command output into packages.
type Parser struct {
	pattern *execs.LazyRegexp

	// Format selects how list output is interpreted, one of `json` or
	// `lines`. Defaults to `json`.
	Format string `json:"format,omitempty" jsonschema:"title=Format,enum=json,enum=lines,default=json"`

	// Path optionally selects a nested array in JSON output, e.g.
	// `$.formulae` for `brew outdated --json=v2`.
	Path string `json:"path,omitempty" jsonschema:"title=Path"`

	// NameKey is the JSON field holding the package name. Defaults to `name`.
	NameKey string `json:"nameKey,omitempty" jsonschema:"title=Name Key"`

	// CurrentKey is the JSON field holding the installed version. Defaults to
	// `current`. Array values resolve to their last element, so keys like
	// brew's `installed_versions` yield the newest installed version.
	CurrentKey string `json:"currentKey,omitempty" jsonschema:"title=Current Key"`

	// LatestKey is the JSON field holding the newest available version.
	// Defaults to `latest`.
	LatestKey string `json:"latestKey,omitempty" jsonschema:"title=Latest Key"`

	// Pattern is a regular expression applied to each line for the lines
	// format. Capture groups `name`, `current`, and `latest` populate the
	// package fields:
	//   - `^(?P<name>\S+)\s+(?P<current>\S+)\s+(?P<latest>\S+)$`
	//
	// Lines that do not match are skipped.
	Pattern string `json:"pattern,omitempty" jsonschema:"title=Pattern,format=regex"`

	// Skip is the number of leading lines to discard before matching, e.g.
	// for column headers.
	Skip int `json:"skip,omitempty" jsonschema:"title=Skip Lines,minimum=0"`
}

func (p *Parser) Build() error {
	switch p.Format {
	case "", FormatJSON:
		p.Format = FormatJSON
		if p.NameKey == "" {
			p.NameKey = "name"
		}
		if p.CurrentKey == "" {
			p.CurrentKey = "current"
		}
		if p.LatestKey == "" {
			p.LatestKey = "latest"
		}

		if p.Path != "" {
			_, err := yaml.PathString(p.Path)
			if err != nil {
				return fmt.Errorf("path %q: %w", p.Path, err)
			}
		}

	case FormatLines:
		if p.Pattern == "" {
			return ErrNoPattern
		}

		p.pattern = execs.NewLazyRegexp(p.Pattern)

		re, err := p.pattern.Get()
		if err != nil {
			return fmt.Errorf("pattern: %w", err)
		}

		if re.SubexpIndex("name") < 0 {
			return fmt.Errorf("%w: %q", ErrNoNameGroup, p.Pattern)
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, p.Format)
	}

	return nil
}

// Parse extracts packages from list command output.
func (p *Parser) Parse(stdout string) ([]Package, error) {
	switch p.Format {
	case "", FormatJSON:
		return p.parseJSON(stdout)
	case FormatLines:
		return p.parseLines(stdout)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, p.Format)
}

func (p *Parser) parseJSON(stdout string) ([]Package, error) {
	doc := strings.TrimSpace(stdout)
	if doc == "" {
		return nil, nil
	}

	items, err := p.decodeItems(doc)
	if err != nil {
		return nil, err
	}

	pkgs := make([]Package, 0, len(items))
	for _, item := range items {
		pkg := Package{
			Name:    fieldString(item, p.NameKey),
			Current: fieldString(item, p.CurrentKey),
			Latest:  fieldString(item, p.LatestKey),
		}
		if pkg.Name == "" {
			continue
		}

		pkgs = append(pkgs, pkg)
	}

	return pkgs, nil
}

// decodeItems decodes a JSON document into a list of objects. A document
// holding a single object is treated as a one-element list, which covers
// serializers that unwrap single-element arrays (e.g. ConvertTo-Json).
func (p *Parser) decodeItems(doc string) ([]map[string]any, error) {
	read := func(v any) error {
		if p.Path == "" {
			//nolint:wrapcheck // Caller wraps.
			return yaml.Unmarshal([]byte(doc), v)
		}

		path, err := yaml.PathString(p.Path)
		if err != nil {
			return fmt.Errorf("path %q: %w", p.Path, err)
		}

		//nolint:wrapcheck // Caller wraps.
		return path.Read(strings.NewReader(doc), v)
	}

	var items []map[string]any

	err := read(&items)
	if err == nil {
		return items, nil
	}

	var single map[string]any

	if readErr := read(&single); readErr != nil {
		return nil, fmt.Errorf("decode list output: %w", err)
	}

	return []map[string]any{single}, nil
}

func fieldString(item map[string]any, key string) string {
	if key == "" {
		return ""
	}

	v, ok := item[key]
	if !ok {
		return ""
	}

	switch t := v.(type) {
	case string:
		return t

	case []any:
		if len(t) == 0 {
			return ""
		}

		// Versions sort oldest to newest, take the last.
		if s, ok := t[len(t)-1].(string); ok {
			return s
		}

		return fmt.Sprintf("%v", t[len(t)-1])

	case nil:
		return ""

	default:
		return fmt.Sprintf("%v", t)
	}
}

func (p *Parser) parseLines(stdout string) ([]Package, error) {
	re, err := p.pattern.Get()
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}

	lines := strings.Split(strings.ReplaceAll(stdout, "\r\n", "\n"), "\n")
	if p.Skip >= len(lines) {
		return nil, nil
	}
	if p.Skip > 0 {
		lines = lines[p.Skip:]
	}

	var pkgs []Package

	groups := re.SubexpNames()
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		match := re.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		var pkg Package

		for i, group := range groups {
			if i == 0 || i >= len(match) {
				continue
			}

			switch group {
			case "name":
				pkg.Name = strings.TrimSpace(match[i])
			case "current":
				pkg.Current = strings.TrimSpace(match[i])
			case "latest":
				pkg.Latest = strings.TrimSpace(match[i])
			}
		}

		if pkg.Name == "" {
			continue
		}

		pkgs = append(pkgs, pkg)
	}

	return pkgs, nil
}
