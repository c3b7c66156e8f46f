package rule

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/macropower/dotup/pkg/expr"
	"github.com/macropower/dotup/pkg/manager"
)

// Rule uses a CEL condition to determine if its manager should be active on
// the current host.
//
// CEL expressions have access to variables:
//   - `os` (string): Operating system, e.g. "darwin", "linux", "windows"
//   - `arch` (string): CPU architecture, e.g. "arm64", "amd64"
//   - `hostname` (string): Host name
//   - `user` (string): Current user name
//   - `home` (string): Home directory path
//
// CEL expressions must return a boolean value:
//   - os == "darwin" - true on macOS hosts
//   - hasExec("brew") - true if brew is resolvable on PATH
//   - os == "linux" && hasExec("apt") - true on Linux hosts with apt
//   - hostname.startsWith("work-") - true on work machines
//   - yamlPath(home + "/.config/dotup/host.yaml", "$.role") == "server" - true per host metadata
//   - false - rule doesn't match
//
// CEL helper functions available:
//   - hasExec(string): Reports whether an executable is resolvable on PATH
//   - env(string): Returns the value of an environment variable, "" if unset
//   - pathBase(string): Returns the last element of the path (filename)
//   - pathDir(string): Returns all but the last element of the path (directory)
//   - pathExt(string): Returns the file extension including the dot
//   - yamlPath(file, path): Reads a YAML file and extracts value at path (returns null if not found)
//
// CEL also provides standard functions like `endsWith`, `contains`,
// `startsWith`, `matches`, along with logical operators like `&&`, `||`, and `!`.
type Rule struct {
	whenProgram cel.Program      // Compiled CEL program for the condition.
	mgr         *manager.Manager // Manager associated with the rule.

	// When is a CEL expression over host facts.
	When string `json:"when" jsonschema:"title=When Expression"`
	// Manager is the name of the manager to activate when this rule matches.
	Manager string `json:"manager" jsonschema:"title=Manager Name"`
}

// New creates a new rule with the given manager name and condition.
func New(managerName, when string) (*Rule, error) {
	r := &Rule{
		When:    when,
		Manager: managerName,
	}
	if err := r.CompileWhen(); err != nil {
		return nil, fmt.Errorf("rule %q: %w", when, err)
	}

	return r, nil
}

// MustNew creates a new rule and panics if there's an error.
func MustNew(managerName, when string) *Rule {
	r, err := New(managerName, when)
	if err != nil {
		panic(err)
	}

	return r
}

// CompileWhen compiles the rule's condition into a CEL program.
func (r *Rule) CompileWhen() error {
	if r.whenProgram == nil {
		env, err := expr.CreateEnvironment()
		if err != nil {
			return fmt.Errorf("create CEL environment: %w", err)
		}

		ast, issues := env.Compile(r.When)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("compile when expression: %w", issues.Err())
		}

		program, err := env.Program(ast)
		if err != nil {
			return fmt.Errorf("create CEL program: %w", err)
		}

		r.whenProgram = program
	}

	return nil
}

// MatchFacts evaluates the rule's condition against host facts, e.g. the
// variables produced by facts.Collect().Vars().
//
// The CEL expression must return a boolean value indicating whether the rule matches.
func (r *Rule) MatchFacts(facts map[string]any) bool {
	if r.whenProgram == nil {
		panic(errors.New("rule missing a when expression"))
	}

	result, _, err := r.whenProgram.Eval(facts)
	if err != nil {
		// If evaluation fails, consider it a non-match.
		return false
	}

	// CEL expression must return a boolean value.
	if boolVal, ok := result.Value().(bool); ok {
		return boolVal
	}

	// If the result is not a boolean, treat as non-match.
	return false
}

func (r *Rule) GetManager() *manager.Manager {
	if r.mgr == nil {
		panic(errors.New("rule missing a manager"))
	}

	return r.mgr
}

func (r *Rule) SetManager(m *manager.Manager) {
	r.mgr = m
}

func (r *Rule) String() string {
	m := r.GetManager()

	return fmt.Sprintf("%s: %s", r.Manager, m.String())
}
