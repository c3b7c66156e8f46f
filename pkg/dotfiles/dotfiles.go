// Package dotfiles plans and applies dotfile deployments from a source
// tree: symlinks, copies, and rendered templates, gated by host-fact
// conditions.
package dotfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/google/cel-go/cel"

	"github.com/macropower/dotup/pkg/expr"
	"github.com/macropower/dotup/pkg/yaml"
)

// Mode selects how an entry is deployed.
type Mode string

const (
	// ModeLink symlinks the target to the source file.
	ModeLink Mode = "link"
	// ModeCopy copies the source bytes to the target.
	ModeCopy Mode = "copy"
	// ModeTemplate renders the source as a text template, then copies.
	ModeTemplate Mode = "template"
)

const defaultFilePerm = fs.FileMode(0o644)

var (
	// ErrUnknownMode is returned for modes other than link, copy, template.
	ErrUnknownMode = errors.New("unknown entry mode")
	// ErrTargetConflict is returned when two active entries resolve to the
	// same target path.
	ErrTargetConflict = errors.New("entries resolve to the same target")
)

// Entry is one deployable file.
type Entry struct {
	// Source is the file path relative to the source root. Encrypted
	// entries are stored with an .age suffix appended to this path.
	Source string `json:"source" jsonschema:"title=Source Path"`
	// Target is the destination path. Relative targets resolve against the
	// target root; an empty target reuses the source path.
	Target string `json:"target,omitempty" jsonschema:"title=Target Path"`
	// Mode selects link, copy, or template deployment. Defaults to link.
	Mode Mode `json:"mode,omitempty" jsonschema:"title=Mode,enum=link,enum=copy,enum=template,default=link"`
	// When gates the entry with a CEL condition over host facts.
	When string `json:"when,omitempty" jsonschema:"title=When Expression"`
	// FileMode sets target permissions for copy and template entries as an
	// octal string, e.g. "0600". Defaults to 0644.
	FileMode string `json:"fileMode,omitempty" jsonschema:"title=File Mode"`
	// Encrypted marks the source as sealed with the local age identity.
	Encrypted bool `json:"encrypted,omitempty" jsonschema:"title=Encrypted"`

	whenProgram cel.Program
}

func (e *Entry) EnsureDefaults() {
	if e.Mode == "" {
		e.Mode = ModeLink
	}
}

// CompileWhen compiles the entry's condition into a CEL program.
func (e *Entry) CompileWhen() error {
	if e.When == "" || e.whenProgram != nil {
		return nil
	}

	env, err := expr.CreateEnvironment()
	if err != nil {
		return fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(e.When)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile when expression: %w", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return fmt.Errorf("create CEL program: %w", err)
	}

	e.whenProgram = program

	return nil
}

// MatchFacts evaluates the entry's condition against host facts. Entries
// without a condition are always active.
func (e *Entry) MatchFacts(facts map[string]any) bool {
	if e.whenProgram == nil {
		return e.When == ""
	}

	result, _, err := e.whenProgram.Eval(facts)
	if err != nil {
		return false
	}

	if boolVal, ok := result.Value().(bool); ok {
		return boolVal
	}

	return false
}

// Perm returns the target file mode for copy and template entries.
func (e *Entry) Perm() (fs.FileMode, error) {
	if e.FileMode == "" {
		return defaultFilePerm, nil
	}

	n, err := strconv.ParseUint(e.FileMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("parse file mode %q: %w", e.FileMode, err)
	}

	return fs.FileMode(n), nil //nolint:gosec // G115: value is masked to 32 bits by ParseUint.
}

func (e *Entry) validate() error {
	if e.Source == "" {
		return errors.New("source is required")
	}

	switch e.Mode {
	case ModeLink:
		if e.Encrypted {
			return errors.New("encrypted entries cannot use link mode")
		}
	case ModeCopy, ModeTemplate:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, e.Mode)
	}

	_, err := e.Perm()
	if err != nil {
		return err
	}

	return nil
}

// Source is a dotfiles source tree and its deployment settings.
type Source struct {
	// Data exposes values to template entries under .data.
	Data map[string]any `json:"data,omitempty" jsonschema:"title=Template Data"`
	// Root is the directory entry sources live in.
	Root string `json:"root,omitempty" jsonschema:"title=Source Root"`
	// TargetRoot is the directory relative targets deploy into. Defaults
	// to the home directory.
	TargetRoot string `json:"targetRoot,omitempty" jsonschema:"title=Target Root"`
	// BackupDir receives copies of replaced targets. Defaults to the
	// backups directory under the dotup state directory.
	BackupDir string `json:"backupDir,omitempty" jsonschema:"title=Backup Directory"`
	// Entries lists the deployable files.
	Entries []*Entry `json:"entries,omitempty" jsonschema:"title=Entries"`
}

func (s *Source) EnsureDefaults() {
	for _, e := range s.Entries {
		e.EnsureDefaults()
	}
}

func (s *Source) Validate() error {
	pb := yaml.NewPathBuilder()

	for i, e := range s.Entries {
		uIdx := uint(i) //nolint:gosec // G115: integer overflow conversion int -> uint.

		err := e.validate()
		if err != nil {
			return yaml.NewError(
				fmt.Errorf("invalid entry: %w", err),
				yaml.WithPath(pb.Root().Child("dotfiles").Child("entries").Index(uIdx).Build()),
			)
		}

		err = e.CompileWhen()
		if err != nil {
			return yaml.NewError(
				fmt.Errorf("invalid when: %w", err),
				yaml.WithPath(pb.Root().Child("dotfiles").Child("entries").Index(uIdx).Child("when").Build()),
			)
		}
	}

	return nil
}
