package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/macropower/dotup/pkg/execs"
	"github.com/macropower/dotup/pkg/log"
)

var (
	// ErrNoListCommand is returned when a manager is built without a list command.
	ErrNoListCommand = errors.New("no list command")

	// ErrNoUpdateCommand is returned when a manager is built without an update command.
	ErrNoUpdateCommand = errors.New("no update command")

	// ErrNoCleanCommand is returned when Clean is called on a manager without a clean command.
	ErrNoCleanCommand = errors.New("no clean command")

	// ErrInitProbe is returned when the init probe fails.
	ErrInitProbe = errors.New("init probe")

	// ErrListPackages is returned when listing outdated packages fails.
	ErrListPackages = errors.New("list packages")

	// ErrUpdatePackage is returned when updating a package fails.
	ErrUpdatePackage = errors.New("update package")

	// ErrCleanPackages is returned when cleaning superseded versions fails.
	ErrCleanPackages = errors.New("clean packages")
)

// PackagePlaceholder marks where the package name is substituted into update
// command arguments. Update commands without the placeholder have the package
// name appended as the final argument.
const PackagePlaceholder = "{package}"

// Executor executes a manager's commands.
type Executor interface {
	Exec(ctx context.Context, dir string) (*execs.Result, error)
	ExecWithStdin(ctx context.Context, dir string, stdin []byte) (*execs.Result, error)
	String() string
}

// ExecutorFactory creates an [Executor] for a command. Extra arguments are
// appended after the command's own arguments.
type ExecutorFactory func(cmd execs.Command, extraArgs ...string) Executor

//nolint:ireturn // Interface return is intentional for executor injection.
func defaultExecutorFactory(cmd execs.Command, extraArgs ...string) Executor {
	return execs.NewExecutor(cmd, extraArgs...)
}

// Package is one package reported by a manager's list command.
type Package struct {
	// Name identifies the package within its manager.
	Name string `json:"name"`

	// Current is the installed version.
	Current string `json:"current,omitempty"`

	// Latest is the newest available version.
	Latest string `json:"latest,omitempty"`

	// Manager is the name of the manager that reported the package.
	Manager string `json:"manager,omitempty"`
}

// Manager represents one package manager.
type Manager struct {
	execFactory ExecutorFactory
	initExec    Executor
	listExec    Executor
	cleanExec   Executor
	initErr     error

	// Parser describes how list command output is turned into packages.
	Parser *Parser `json:"parser,omitempty" jsonschema:"title=List Parser"`

	// Init is an optional probe command, run once before the manager is first
	// used. A failing probe disables the manager for the rest of the run.
	Init *execs.Command `json:"init,omitempty" jsonschema:"title=Init Command"`

	// List enumerates outdated packages.
	List *execs.Command `json:"list,omitempty" jsonschema:"title=List Command"`

	// Update updates a single package. Arguments may reference the package
	// name with the `{package}` placeholder:
	//   - `run: brew upgrade {package}`
	//   - `run: winget upgrade --id {package} --silent`
	//
	// Without a placeholder, the package name is appended as the final
	// argument.
	Update *execs.Command `json:"update,omitempty" jsonschema:"title=Update Command"`

	// Clean removes superseded package versions.
	Clean *execs.Command `json:"clean,omitempty" jsonschema:"title=Clean Command"`

	// Description is a short summary shown in status output.
	Description string `json:"description,omitempty" jsonschema:"title=Description"`

	// Bin is the executable the manager requires on PATH. Defaults to the
	// list command's executable.
	Bin string `json:"bin,omitempty" jsonschema:"title=Binary"`

	initOnce sync.Once
}

// ManagerOpt is a functional option for configuring a [Manager].
type ManagerOpt func(*Manager)

// New creates a new manager with the given binary and options.
func New(bin string, opts ...ManagerOpt) (*Manager, error) {
	m := &Manager{Bin: bin}
	for _, opt := range opts {
		opt(m)
	}

	err := m.Build()
	if err != nil {
		return nil, fmt.Errorf("manager %q: %w", bin, err)
	}

	return m, nil
}

// MustNew creates a new manager and panics if there's an error.
func MustNew(bin string, opts ...ManagerOpt) *Manager {
	m, err := New(bin, opts...)
	if err != nil {
		panic(err)
	}

	return m
}

// WithDescription sets the description for the manager.
func WithDescription(desc string) ManagerOpt {
	return func(m *Manager) {
		m.Description = desc
	}
}

// WithInit sets the init probe command for the manager.
func WithInit(cmd *execs.Command) ManagerOpt {
	return func(m *Manager) {
		m.Init = cmd
	}
}

// WithList sets the list command for the manager.
func WithList(cmd *execs.Command) ManagerOpt {
	return func(m *Manager) {
		m.List = cmd
	}
}

// WithUpdate sets the update command for the manager.
func WithUpdate(cmd *execs.Command) ManagerOpt {
	return func(m *Manager) {
		m.Update = cmd
	}
}

// WithClean sets the clean command for the manager.
func WithClean(cmd *execs.Command) ManagerOpt {
	return func(m *Manager) {
		m.Clean = cmd
	}
}

// WithParser sets the list output parser for the manager.
func WithParser(p *Parser) ManagerOpt {
	return func(m *Manager) {
		m.Parser = p
	}
}

// WithExecutorFactory sets the [ExecutorFactory] for the manager.
func WithExecutorFactory(f ExecutorFactory) ManagerOpt {
	return func(m *Manager) {
		m.execFactory = f
	}
}

func (m *Manager) Build() error {
	if m.execFactory == nil {
		m.execFactory = defaultExecutorFactory
	}

	for _, c := range []struct {
		cmd  *execs.Command
		name string
	}{
		{name: "init", cmd: m.Init},
		{name: "list", cmd: m.List},
		{name: "update", cmd: m.Update},
		{name: "clean", cmd: m.Clean},
	} {
		if c.cmd == nil {
			continue
		}

		err := buildCommand(c.cmd)
		if err != nil {
			return fmt.Errorf("%s command: %w", c.name, err)
		}
	}

	if m.List == nil {
		return ErrNoListCommand
	}
	if m.Update == nil {
		return ErrNoUpdateCommand
	}

	if m.Bin == "" {
		m.Bin = m.List.Command
	}

	if m.Parser == nil {
		m.Parser = &Parser{}
	}

	err := m.Parser.Build()
	if err != nil {
		return fmt.Errorf("parser: %w", err)
	}

	m.listExec = m.execFactory(*m.List)
	if m.Init != nil {
		m.initExec = m.execFactory(*m.Init)
	}
	if m.Clean != nil {
		m.cleanExec = m.execFactory(*m.Clean)
	}

	return nil
}

func buildCommand(cmd *execs.Command) error {
	cmd.SetBaseEnv(os.Environ())

	err := cmd.ResolveRun()
	if err != nil {
		return fmt.Errorf("resolve run: %w", err)
	}

	err = cmd.CompilePatterns()
	if err != nil {
		return fmt.Errorf("compile patterns: %w", err)
	}

	err = cmd.LoadEnvFile()
	if err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}

// EnsureInit runs the init probe once. Every subsequent call returns the
// result of the first run.
func (m *Manager) EnsureInit(ctx context.Context) error {
	if m.initExec == nil {
		return nil
	}

	m.initOnce.Do(func() {
		result, err := m.initExec.Exec(ctx, "")
		if err != nil {
			m.initErr = fmt.Errorf("%w: %w", ErrInitProbe, err)

			return
		}

		log.WithContext(ctx).DebugContext(ctx, "init probe",
			slog.String("command", m.initExec.String()),
			slog.String("stdout", strings.TrimSpace(result.Stdout)),
		)
	})

	return m.initErr
}

// Outdated lists packages with a newer version available. Entries that report
// identical installed and latest versions are dropped, since some list
// commands include up-to-date packages.
func (m *Manager) Outdated(ctx context.Context) ([]Package, error) {
	err := m.EnsureInit(ctx)
	if err != nil {
		return nil, err
	}

	result, err := m.listExec.Exec(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListPackages, err)
	}

	pkgs, err := m.Parser.Parse(result.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListPackages, err)
	}

	outdated := make([]Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		if pkg.Latest != "" && pkg.Current == pkg.Latest {
			continue
		}

		outdated = append(outdated, pkg)
	}

	return outdated, nil
}

// UpdatePackage updates a single package.
func (m *Manager) UpdatePackage(ctx context.Context, name string) (*execs.Result, error) {
	err := m.EnsureInit(ctx)
	if err != nil {
		return nil, err
	}

	cmd := *m.Update

	args, replaced := substitutePackage(cmd.Args, name)
	cmd.Args = args

	var executor Executor
	if replaced {
		executor = m.execFactory(cmd)
	} else {
		executor = m.execFactory(cmd, name)
	}

	result, err := executor.Exec(ctx, "")
	if err != nil {
		return result, fmt.Errorf("%w %q: %w", ErrUpdatePackage, name, err)
	}

	return result, nil
}

// CleanVersions removes superseded package versions.
func (m *Manager) CleanVersions(ctx context.Context) (*execs.Result, error) {
	if m.cleanExec == nil {
		return nil, ErrNoCleanCommand
	}

	err := m.EnsureInit(ctx)
	if err != nil {
		return nil, err
	}

	result, err := m.cleanExec.Exec(ctx, "")
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrCleanPackages, err)
	}

	return result, nil
}

// HasClean reports whether the manager has a clean command.
func (m *Manager) HasClean() bool {
	return m.Clean != nil
}

// HasBin reports whether the manager's executable is resolvable on PATH.
func (m *Manager) HasBin() bool {
	_, err := exec.LookPath(m.Bin)

	return err == nil
}

func (m *Manager) String() string {
	if m.listExec == nil {
		return m.Bin
	}

	return m.listExec.String()
}

func substitutePackage(args []string, name string) ([]string, bool) {
	replaced := false

	out := make([]string, len(args))
	for i, arg := range args {
		if strings.Contains(arg, PackagePlaceholder) {
			out[i] = strings.ReplaceAll(arg, PackagePlaceholder, name)
			replaced = true

			continue
		}

		out[i] = arg
	}

	return out, replaced
}
