package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/macropower/dotup/pkg/facts"
	"github.com/macropower/dotup/pkg/log"
	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/rule"
	"github.com/macropower/dotup/pkg/semver"
)

var (
	// ErrUnknownManager is returned when a name resolves to no configured manager.
	ErrUnknownManager = errors.New("unknown manager")

	// ErrNoActiveManagers is returned when no rule matches the current host.
	ErrNoActiveManagers = errors.New("no active managers")
)

// DefaultConcurrency bounds how many managers run at once. Package managers
// hold their own locks, so each one still runs its packages sequentially.
const DefaultConcurrency = 2

// Runner wraps the configured managers and rules. It manages:
//   - Rule-to-manager resolution against host facts.
//   - Concurrent manager execution with bounded parallelism.
//   - Event broadcasting to subscribers.
type Runner struct {
	tracer      trace.Tracer
	managers    map[string]*manager.Manager
	facts       *facts.Facts
	unsupported *semver.UnsupportedTracker

	cancelFunc  context.CancelFunc
	listeners   []chan<- Event
	allRules    []*rule.Rule
	selected    []string
	packages    []string
	concurrency int
	dryRun      bool
	mu          sync.Mutex
}

// NewRunner creates a new [Runner].
func NewRunner(opts ...RunnerOpt) (*Runner, error) {
	r := &Runner{
		managers:    make(map[string]*manager.Manager),
		tracer:      otel.Tracer("update-runner"),
		concurrency: DefaultConcurrency,
		unsupported: semver.NewUnsupportedTracker(),
	}

	if len(opts) == 0 {
		// Defaults if no options are provided.
		opts = append(opts,
			WithRules(DefaultConfig.Rules),
			WithManagers(DefaultConfig.Managers))
	}

	err := r.Configure(opts...)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Configure applies options to an existing runner.
// This allows reconfiguration after creation.
func (r *Runner) Configure(opts ...RunnerOpt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Cancel any currently running update.
	if r.cancelFunc != nil {
		// Note: The cancel event is broadcast by the canceled goroutine.
		r.cancelFunc()
	}

	// Apply options.
	for _, opt := range opts {
		err := opt(r)
		if err != nil {
			return fmt.Errorf("apply option: %w", err)
		}
	}

	if r.facts == nil {
		f := facts.Collect()
		r.facts = &f
	}

	for _, rl := range r.allRules {
		_, ok := r.managers[rl.Manager]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownManager, rl.Manager)
		}
	}

	for _, name := range r.selected {
		_, ok := r.managers[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownManager, name)
		}
	}

	return nil
}

type RunnerOpt func(r *Runner) error

// WithConfig sets the managers and rules from a [Config].
func WithConfig(cfg *Config) RunnerOpt {
	return func(r *Runner) error {
		r.managers = cfg.Managers
		r.allRules = cfg.Rules

		return nil
	}
}

// WithManagers sets the manager map for the runner.
func WithManagers(ms map[string]*manager.Manager) RunnerOpt {
	return func(r *Runner) error {
		r.managers = ms

		return nil
	}
}

// WithRules sets the activation rules for the runner.
func WithRules(rs []*rule.Rule) RunnerOpt {
	return func(r *Runner) error {
		r.allRules = rs

		return nil
	}
}

// WithFacts sets the host facts used for rule evaluation.
func WithFacts(f *facts.Facts) RunnerOpt {
	return func(r *Runner) error {
		r.facts = f

		return nil
	}
}

// WithManagerNames restricts the run to the named managers, skipping rule
// evaluation. An empty selection restores rule-based resolution.
func WithManagerNames(names ...string) RunnerOpt {
	return func(r *Runner) error {
		r.selected = names

		return nil
	}
}

// WithPackages restricts updates to the named packages.
func WithPackages(names ...string) RunnerOpt {
	return func(r *Runner) error {
		r.packages = names

		return nil
	}
}

// WithDryRun makes runs list packages without updating them.
func WithDryRun(dryRun bool) RunnerOpt {
	return func(r *Runner) error {
		r.dryRun = dryRun

		return nil
	}
}

// WithConcurrency bounds how many managers run at once.
func WithConcurrency(n int) RunnerOpt {
	return func(r *Runner) error {
		if n < 1 {
			n = 1
		}

		r.concurrency = n

		return nil
	}
}

// ManagerMatch pairs a manager with its configured name.
type ManagerMatch struct {
	Manager *manager.Manager
	Name    string
}

// ActiveManagers resolves the managers for this run. An explicit selection
// wins; otherwise rules are evaluated against host facts in order, first
// match per manager.
func (r *Runner) ActiveManagers() []ManagerMatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activeManagers()
}

func (r *Runner) activeManagers() []ManagerMatch {
	if len(r.selected) > 0 {
		matches := make([]ManagerMatch, 0, len(r.selected))
		for _, name := range r.selected {
			matches = append(matches, ManagerMatch{Name: name, Manager: r.managers[name]})
		}

		return matches
	}

	vars := r.facts.Vars()
	seen := make(map[string]struct{}, len(r.allRules))

	var matches []ManagerMatch

	for _, rl := range r.allRules {
		if _, ok := seen[rl.Manager]; ok {
			continue
		}
		if !rl.MatchFacts(vars) {
			continue
		}

		seen[rl.Manager] = struct{}{}
		matches = append(matches, ManagerMatch{Name: rl.Manager, Manager: r.managers[rl.Manager]})
	}

	return matches
}

// GetManagers returns the configured manager map.
func (r *Runner) GetManagers() map[string]*manager.Manager {
	return r.managers
}

// GetFacts returns the host facts used for rule evaluation.
func (r *Runner) GetFacts() *facts.Facts {
	return r.facts
}

// Outdated enumerates outdated packages across the active managers without
// updating anything. Managers are queried concurrently. The error map holds
// per-manager list failures.
func (r *Runner) Outdated(ctx context.Context) ([]manager.Package, map[string]error, error) {
	ctx, span := r.tracer.Start(ctx, "outdated")
	defer span.End()

	matches := r.ActiveManagers()
	if len(matches) == 0 {
		return nil, nil, ErrNoActiveManagers
	}

	var (
		resultMu sync.Mutex
		pkgs     []manager.Package
		errs     = make(map[string]error)
	)

	g := &errgroup.Group{}
	g.SetLimit(r.concurrency)

	for _, match := range matches {
		g.Go(func() error {
			out, err := match.Manager.Outdated(ctx)

			resultMu.Lock()
			defer resultMu.Unlock()

			if err != nil {
				errs[match.Name] = err

				return nil
			}

			for i := range out {
				out[i].Manager = match.Name
			}

			pkgs = append(pkgs, r.filterOutdated(out)...)

			return nil
		})
	}

	//nolint:errcheck // Goroutines always return nil, failures are collected per manager.
	_ = g.Wait()

	sort.Slice(pkgs, func(i, j int) bool {
		if pkgs[i].Manager != pkgs[j].Manager {
			return pkgs[i].Manager < pkgs[j].Manager
		}

		return pkgs[i].Name < pkgs[j].Name
	})

	return pkgs, errs, nil
}

// filterOutdated drops listed packages whose latest version is not ahead of
// the installed one. Version strings that cannot be ordered never drop a
// package; the manager listed it, so it stays, and the package is recorded
// on the unsupported tracker instead of being guessed at.
func (r *Runner) filterOutdated(pkgs []manager.Package) []manager.Package {
	kept := pkgs[:0]

	for _, pkg := range pkgs {
		if pkg.Current == "" || pkg.Latest == "" {
			kept = append(kept, pkg)

			continue
		}

		cmp, err := semver.Compare(pkg.Current, pkg.Latest)
		if err != nil {
			r.unsupported.Add(pkg.Name, err.Error())
			kept = append(kept, pkg)

			continue
		}

		if cmp >= 0 {
			slog.Debug("listed package is not newer",
				slog.String("manager", pkg.Manager),
				slog.String("package", pkg.Name),
				slog.String("current", pkg.Current),
				slog.String("latest", pkg.Latest),
			)

			continue
		}

		kept = append(kept, pkg)
	}

	return kept
}

// Unsupported returns the tracker of packages whose version strings could
// not be ordered. Entries accumulate for the life of the runner.
func (r *Runner) Unsupported() *semver.UnsupportedTracker {
	return r.unsupported
}

// Run executes one update run across the active managers.
func (r *Runner) Run() *RunResult {
	return r.RunContext(context.Background())
}

// RunContext executes one update run across the active managers with the
// provided context. Managers run concurrently, bounded by the configured
// concurrency. Packages within one manager update sequentially, since package
// managers rarely tolerate concurrent invocations. A failing package is
// recorded and the run continues.
func (r *Runner) RunContext(ctx context.Context) *RunResult {
	r.mu.Lock()

	var (
		matches     = r.activeManagers()
		dryRun      = r.dryRun
		concurrency = r.concurrency
		only        = toSet(r.packages)
	)

	ctx, span := r.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.Int("managers", len(matches)),
		attribute.Bool("dry_run", dryRun),
	))
	defer span.End()

	// Cancel any currently running update.
	if r.cancelFunc != nil {
		// Note: The cancel event is broadcast by the canceled goroutine.
		r.cancelFunc()
	}

	// Create a new context for this run.
	ctx, r.cancelFunc = context.WithCancel(ctx)

	r.mu.Unlock()

	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, match.Name)
	}

	r.broadcast(NewEventRunStart(ctx, names, dryRun))

	result := &RunResult{
		Started:  time.Now(),
		Managers: make(map[string]*ManagerResult, len(matches)),
	}

	var resultMu sync.Mutex

	g := &errgroup.Group{}
	g.SetLimit(concurrency)

	for _, match := range matches {
		g.Go(func() error {
			mr := r.runManager(ctx, match, dryRun, only)

			resultMu.Lock()
			result.Managers[match.Name] = mr
			resultMu.Unlock()

			return nil
		})
	}

	//nolint:errcheck // Goroutines always return nil, failures are collected per manager.
	_ = g.Wait()

	result.Finished = time.Now()
	result.Status = result.computeStatus(ctx)

	// Check if the run was canceled.
	if errors.Is(ctx.Err(), context.Canceled) {
		r.broadcast(NewEventCancel(ctx))

		return result
	}

	r.broadcast(NewEventRunEnd(ctx, result))

	return result
}

func (r *Runner) runManager(ctx context.Context, match ManagerMatch, dryRun bool, only map[string]struct{}) *ManagerResult {
	ctx, span := r.tracer.Start(ctx, "manager", trace.WithAttributes(
		attribute.String("name", match.Name),
	))
	defer span.End()

	r.broadcast(NewEventManagerStart(ctx, match.Name))

	mr := &ManagerResult{}

	pkgs, err := match.Manager.Outdated(ctx)
	if err != nil {
		mr.Err = fmt.Errorf("manager %q: %w", match.Name, err)

		log.WithContext(ctx).WarnContext(ctx, "manager skipped",
			slog.String("manager", match.Name),
			slog.Any("error", err),
		)
		r.broadcast(NewEventManagerEnd(ctx, match.Name, mr))

		return mr
	}

	for i := range pkgs {
		pkgs[i].Manager = match.Name
	}

	pkgs = r.filterOutdated(pkgs)

	for _, pkg := range pkgs {
		if len(only) > 0 {
			if _, ok := only[pkg.Name]; !ok {
				continue
			}
		}

		if ctx.Err() != nil {
			break
		}

		mr.Packages = append(mr.Packages, r.updatePackage(ctx, match, pkg, dryRun))
	}

	r.broadcast(NewEventManagerEnd(ctx, match.Name, mr))

	return mr
}

func (r *Runner) updatePackage(ctx context.Context, match ManagerMatch, pkg manager.Package, dryRun bool) PackageResult {
	r.broadcast(NewEventPackageStart(ctx, pkg))

	pr := PackageResult{
		Package: pkg,
		Started: time.Now(),
	}

	if dryRun {
		pr.Skipped = true
		pr.Finished = time.Now()
		r.broadcast(NewEventPackageEnd(ctx, pr))

		return pr
	}

	result, err := match.Manager.UpdatePackage(ctx, pkg.Name)

	pr.Err = err
	pr.Finished = time.Now()
	if result != nil {
		pr.Stdout = result.Stdout
		pr.Stderr = result.Stderr
	}

	if err != nil {
		log.WithContext(ctx).WarnContext(ctx, "package update failed",
			slog.String("manager", pkg.Manager),
			slog.String("package", pkg.Name),
			slog.Any("error", err),
		)
	}

	r.broadcast(NewEventPackageEnd(ctx, pr))

	return pr
}

// CleanContext invokes the clean command of every active manager that has
// one. Failures are collected per manager and cleaning continues. In dry-run
// mode the commands are reported without being executed.
func (r *Runner) CleanContext(ctx context.Context) map[string]error {
	ctx, span := r.tracer.Start(ctx, "clean")
	defer span.End()

	logger := log.WithContext(ctx)
	errs := make(map[string]error)

	for _, match := range r.ActiveManagers() {
		if !match.Manager.HasClean() {
			continue
		}

		if r.dryRun {
			logger.InfoContext(ctx, "would clean",
				slog.String("manager", match.Name),
			)

			continue
		}

		_, err := match.Manager.CleanVersions(ctx)
		if err != nil {
			errs[match.Name] = err

			logger.WarnContext(ctx, "clean failed",
				slog.String("manager", match.Name),
				slog.Any("error", err),
			)
		}
	}

	return errs
}

// Cancel stops the in-flight run, if any.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancelFunc != nil {
		r.cancelFunc()
	}
}

// Subscribe allows other components to listen for update events.
func (r *Runner) Subscribe(ch chan<- Event) {
	r.listeners = append(r.listeners, ch)
}

func (r *Runner) broadcast(evt Event) {
	ctx := evt.GetContext()

	log.WithContext(ctx).DebugContext(ctx, "broadcasting event",
		slog.String("event", fmt.Sprintf("%T", evt)),
	)

	for _, ch := range r.listeners {
		ch <- evt
	}
}

// SendEvent allows external components to send events to all listeners.
func (r *Runner) SendEvent(evt Event) {
	r.broadcast(evt)
}

func (r *Runner) String() string {
	matches := r.ActiveManagers()
	if len(matches) == 0 {
		return "no active managers"
	}

	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, match.Name)
	}

	return strings.Join(names, ", ")
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}

	return set
}
