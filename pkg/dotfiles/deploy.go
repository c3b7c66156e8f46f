package dotfiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/aymanbagabas/go-udiff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/dotup/pkg/facts"
	"github.com/macropower/dotup/pkg/fsutil"
	"github.com/macropower/dotup/pkg/journal"
	"github.com/macropower/dotup/pkg/log"
	"github.com/macropower/dotup/pkg/secret"
)

// Action is the planned change for one entry.
type Action string

const (
	// ActionCreate deploys an entry whose target does not exist.
	ActionCreate Action = "create"
	// ActionReplace deploys an entry over an existing target.
	ActionReplace Action = "replace"
	// ActionSkip leaves the target untouched.
	ActionSkip Action = "skip"
)

// Op is one planned change. Entries skipped by their condition carry an
// empty Target.
type Op struct {
	Entry *Entry
	// Action is the planned change.
	Action Action
	// Reason explains the action in one clause.
	Reason string
	// Target is the resolved absolute target path.
	Target string
	// LinkTarget is the source path a link entry points at.
	LinkTarget string

	content []byte
	perm    fs.FileMode
}

// Plan is the ordered set of planned changes for a source.
type Plan struct {
	Ops []*Op
}

// Changes counts ops that modify the filesystem.
func (p *Plan) Changes() int {
	n := 0
	for _, op := range p.Ops {
		if op.Action != ActionSkip {
			n++
		}
	}

	return n
}

// OpResult records the outcome of applying one op.
type OpResult struct {
	Err error
	Op  *Op
	// BackupPath is where the replaced target was saved, if any.
	BackupPath string
	// Applied reports whether the op changed the filesystem.
	Applied bool
}

// Result is the outcome of an apply run.
type Result struct {
	Ops    []*OpResult
	DryRun bool
}

// Counts returns how many ops were applied, skipped, and failed.
func (r *Result) Counts() (applied, skipped, failed int) {
	for _, or := range r.Ops {
		switch {
		case or.Err != nil:
			failed++
		case or.Applied:
			applied++
		default:
			skipped++
		}
	}

	return applied, skipped, failed
}

// Err joins all op errors, or returns nil when every op succeeded.
func (r *Result) Err() error {
	errs := make([]error, 0, len(r.Ops))
	for _, or := range r.Ops {
		errs = append(errs, or.Err)
	}

	return errors.Join(errs...)
}

// State classifies an entry for status reporting.
type State string

const (
	// StateOK means the target matches the source.
	StateOK State = "ok"
	// StateMissing means the target does not exist yet.
	StateMissing State = "missing"
	// StateDrifted means the target exists but differs from the source.
	StateDrifted State = "drifted"
	// StateConflict means multiple entries claim the same target.
	StateConflict State = "conflict"
	// StateSkipped means the entry's condition does not match this host.
	StateSkipped State = "skipped"
	// StateError means the entry could not be evaluated.
	StateError State = "error"
)

// EntryStatus describes one entry's deployment state.
type EntryStatus struct {
	Entry *Entry
	// Target is the resolved target path, when resolvable.
	Target string
	// State classifies the entry.
	State State
	// Detail explains the state in one clause.
	Detail string
	// Diff holds a unified diff of target versus desired content, when
	// diffing is enabled and the entry is a copy or template.
	Diff string
}

// Deployer plans and applies dotfile deployments for one source tree.
type Deployer struct {
	tracer trace.Tracer
	source *Source
	facts  *facts.Facts
	keeper *secret.Keeper
	home   string
	dryRun bool
	diff   bool
}

// NewDeployer creates a new [Deployer] for the source, validating and
// compiling its entries.
func NewDeployer(src *Source, opts ...DeployerOpt) (*Deployer, error) {
	if src == nil {
		src = &Source{}
	}

	src.EnsureDefaults()

	err := src.Validate()
	if err != nil {
		return nil, err
	}

	d := &Deployer{
		tracer: otel.Tracer("dotfiles-deployer"),
		source: src,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.facts == nil {
		f := facts.Collect()
		d.facts = &f
	}

	if d.keeper == nil {
		d.keeper = secret.NewKeeper()
	}

	if d.home == "" {
		d.home = d.facts.Home
	}

	if d.home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}

		d.home = home
	}

	return d, nil
}

type DeployerOpt func(d *Deployer)

// WithFacts sets the host facts used for conditions and templates.
func WithFacts(f *facts.Facts) DeployerOpt {
	return func(d *Deployer) {
		d.facts = f
	}
}

// WithKeeper sets the secret keeper used to unseal encrypted entries.
func WithKeeper(k *secret.Keeper) DeployerOpt {
	return func(d *Deployer) {
		d.keeper = k
	}
}

// WithHome sets the home directory used to expand "~" in paths.
func WithHome(home string) DeployerOpt {
	return func(d *Deployer) {
		d.home = filepath.Clean(home)
	}
}

// WithDryRun plans changes without touching the filesystem.
func WithDryRun(dryRun bool) DeployerOpt {
	return func(d *Deployer) {
		d.dryRun = dryRun
	}
}

// WithDiff includes unified diffs in status output.
func WithDiff(diff bool) DeployerOpt {
	return func(d *Deployer) {
		d.diff = diff
	}
}

// Plan evaluates every entry against the filesystem and returns the
// ordered set of planned changes. It fails when two active entries claim
// the same target.
func (d *Deployer) Plan(ctx context.Context) (*Plan, error) {
	_, span := d.tracer.Start(ctx, "plan",
		trace.WithAttributes(attribute.Int("dotfiles.entries", len(d.source.Entries))),
	)
	defer span.End()

	targetRoot := d.targetRoot()
	plan := &Plan{}
	claimed := map[string]string{}

	for _, e := range d.source.Entries {
		op, err := d.planEntry(e, targetRoot)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Source, err)
		}

		if op.Target != "" {
			prev, ok := claimed[op.Target]
			if ok {
				return nil, fmt.Errorf("%w: %s (%s and %s)",
					ErrTargetConflict, op.Target, prev, e.Source)
			}

			claimed[op.Target] = e.Source
		}

		plan.Ops = append(plan.Ops, op)
	}

	span.SetAttributes(attribute.Int("dotfiles.changes", plan.Changes()))

	return plan, nil
}

// Apply plans and executes all changes. Individual op failures are
// recorded in the result rather than aborting the run.
func (d *Deployer) Apply(ctx context.Context) (*Result, error) {
	ctx, span := d.tracer.Start(ctx, "apply")
	defer span.End()

	plan, err := d.Plan(ctx)
	if err != nil {
		return nil, err
	}

	backupDir := d.backupDir()
	res := &Result{DryRun: d.dryRun}
	logger := log.WithContext(ctx)

	for _, op := range plan.Ops {
		or := &OpResult{Op: op}
		res.Ops = append(res.Ops, or)

		if op.Action == ActionSkip {
			logger.DebugContext(ctx, "skip dotfile",
				slog.String("source", op.Entry.Source),
				slog.String("reason", op.Reason),
			)

			continue
		}

		if d.dryRun {
			logger.InfoContext(ctx, "would deploy dotfile",
				slog.String("target", op.Target),
				slog.String("action", string(op.Action)),
				slog.String("reason", op.Reason),
			)

			continue
		}

		err := ctx.Err()
		if err != nil {
			or.Err = err

			continue
		}

		backup, err := d.execute(op, backupDir)
		or.BackupPath = backup

		if err != nil {
			or.Err = fmt.Errorf("deploy %s: %w", op.Entry.Source, err)
			logger.WarnContext(ctx, "deploy dotfile failed",
				slog.String("source", op.Entry.Source),
				slog.Any("error", err),
			)

			continue
		}

		or.Applied = true

		logger.InfoContext(ctx, "deployed dotfile",
			slog.String("target", op.Target),
			slog.String("action", string(op.Action)),
		)
	}

	applied, _, failed := res.Counts()
	span.SetAttributes(
		attribute.Int("dotfiles.applied", applied),
		attribute.Int("dotfiles.failed", failed),
	)

	return res, nil
}

// Status reports the deployment state of every entry without modifying
// the filesystem. Entry evaluation failures surface as error states
// rather than failing the call.
func (d *Deployer) Status(ctx context.Context) ([]*EntryStatus, error) {
	_, span := d.tracer.Start(ctx, "status")
	defer span.End()

	targetRoot := d.targetRoot()
	statuses := make([]*EntryStatus, 0, len(d.source.Entries))
	byTarget := map[string][]*EntryStatus{}

	for _, e := range d.source.Entries {
		st := &EntryStatus{Entry: e}
		statuses = append(statuses, st)

		op, err := d.planEntry(e, targetRoot)
		if err != nil {
			st.Target = d.resolveTarget(e, targetRoot)
			st.State = StateError
			st.Detail = err.Error()

			continue
		}

		st.Target = op.Target
		if op.Target != "" {
			byTarget[op.Target] = append(byTarget[op.Target], st)
		}

		switch {
		case op.Action == ActionSkip && op.Target == "":
			st.State = StateSkipped
			st.Detail = op.Reason
		case op.Action == ActionSkip:
			st.State = StateOK
		case op.Action == ActionCreate:
			st.State = StateMissing
			st.Detail = op.Reason
			st.Diff = d.renderDiff(op)
		default:
			st.State = StateDrifted
			st.Detail = op.Reason
			st.Diff = d.renderDiff(op)
		}
	}

	for _, claimants := range byTarget {
		if len(claimants) < 2 {
			continue
		}

		for _, st := range claimants {
			others := make([]string, 0, len(claimants)-1)
			for _, other := range claimants {
				if other != st {
					others = append(others, other.Entry.Source)
				}
			}

			st.State = StateConflict
			st.Detail = "target also claimed by " + strings.Join(others, ", ")
			st.Diff = ""
		}
	}

	return statuses, nil
}

func (d *Deployer) planEntry(e *Entry, targetRoot string) (*Op, error) {
	if !e.MatchFacts(d.facts.Vars()) {
		return &Op{Entry: e, Action: ActionSkip, Reason: "condition not met"}, nil
	}

	srcPath := filepath.Join(d.expandPath(d.source.Root), filepath.FromSlash(e.Source))
	if e.Encrypted {
		srcPath += secret.Suffix
	}

	target := d.resolveTarget(e, targetRoot)

	if e.Mode == ModeLink {
		return d.planLink(e, srcPath, target)
	}

	return d.planCopy(e, srcPath, target)
}

func (d *Deployer) planLink(e *Entry, srcPath, target string) (*Op, error) {
	_, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	op := &Op{Entry: e, Target: target, LinkTarget: srcPath}

	fi, err := os.Lstat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		op.Action = ActionCreate
		op.Reason = "target missing"
	case err != nil:
		return nil, fmt.Errorf("target: %w", err)
	case fi.Mode()&fs.ModeSymlink != 0:
		dest, err := os.Readlink(target)
		if err != nil {
			return nil, fmt.Errorf("read link: %w", err)
		}

		if dest == srcPath {
			op.Action = ActionSkip
			op.Reason = "up to date"
		} else {
			op.Action = ActionReplace
			op.Reason = fmt.Sprintf("link points at %s", dest)
		}
	case fi.IsDir():
		return nil, errors.New("target is a directory")
	default:
		op.Action = ActionReplace
		op.Reason = "replaces existing file"
	}

	return op, nil
}

func (d *Deployer) planCopy(e *Entry, srcPath, target string) (*Op, error) {
	content, err := d.sourceContent(e, srcPath)
	if err != nil {
		return nil, err
	}

	perm, err := e.Perm()
	if err != nil {
		return nil, err
	}

	op := &Op{Entry: e, Target: target, content: content, perm: perm}

	current, err := os.ReadFile(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		op.Action = ActionCreate
		op.Reason = "target missing"
	case err != nil:
		return nil, fmt.Errorf("target: %w", err)
	case !bytes.Equal(current, content):
		op.Action = ActionReplace
		op.Reason = "content differs"
	default:
		fi, err := os.Stat(target)
		if err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}

		if fi.Mode().Perm() != perm {
			op.Action = ActionReplace
			op.Reason = fmt.Sprintf("mode is %#o, want %#o", fi.Mode().Perm(), perm)
		} else {
			op.Action = ActionSkip
			op.Reason = "up to date"
		}
	}

	return op, nil
}

func (d *Deployer) sourceContent(e *Entry, srcPath string) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	if e.Encrypted {
		data, err = d.keeper.Unseal(srcPath)
		if err != nil {
			return nil, fmt.Errorf("unseal source: %w", err)
		}
	} else {
		data, err = os.ReadFile(srcPath)
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
	}

	if e.Mode == ModeTemplate {
		data, err = d.render(e, data)
		if err != nil {
			return nil, err
		}
	}

	return data, nil
}

// render executes a template entry. Host facts are exposed as top-level
// variables, source data under .data, and environment variables via the
// env function.
func (d *Deployer) render(e *Entry, src []byte) ([]byte, error) {
	tmpl, err := template.New(filepath.Base(e.Source)).
		Option("missingkey=error").
		Funcs(template.FuncMap{"env": os.Getenv}).
		Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	dot := d.facts.Vars()
	dot["data"] = d.source.Data

	var buf bytes.Buffer

	err = tmpl.Execute(&buf, dot)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return buf.Bytes(), nil
}

func (d *Deployer) renderDiff(op *Op) string {
	if !d.diff || op.content == nil {
		return ""
	}

	current, err := os.ReadFile(op.Target)
	if err != nil {
		current = nil
	}

	return udiff.Unified(op.Target, op.Entry.Source, string(current), string(op.content))
}

func (d *Deployer) execute(op *Op, backupDir string) (string, error) {
	err := os.MkdirAll(filepath.Dir(op.Target), 0o755)
	if err != nil {
		return "", fmt.Errorf("create target directory: %w", err)
	}

	backupPath := ""

	if op.Action == ActionReplace {
		fi, err := os.Lstat(op.Target)
		if err == nil && fi.Mode().IsRegular() {
			backupPath, err = fsutil.BackupFile(op.Target, backupDir)
			if err != nil {
				return "", fmt.Errorf("back up target: %w", err)
			}
		}
	}

	if op.LinkTarget != "" {
		return backupPath, d.link(op)
	}

	err = fsutil.WriteFileAtomic(op.Target, op.content, op.perm)
	if err != nil {
		return backupPath, fmt.Errorf("write target: %w", err)
	}

	return backupPath, nil
}

// link replaces the target with a symlink via rename, so a reader never
// observes a missing target.
func (d *Deployer) link(op *Op) error {
	tmp := filepath.Join(filepath.Dir(op.Target), "."+filepath.Base(op.Target)+".tmp-link")
	_ = os.Remove(tmp)

	err := os.Symlink(op.LinkTarget, tmp)
	if err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}

	err = os.Rename(tmp, op.Target)
	if err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("replace target: %w", err)
	}

	return nil
}

func (d *Deployer) resolveTarget(e *Entry, targetRoot string) string {
	target := e.Target
	if target == "" {
		target = e.Source
	}

	target = d.expandPath(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(targetRoot, target)
	}

	return target
}

func (d *Deployer) targetRoot() string {
	if d.source.TargetRoot != "" {
		return d.expandPath(d.source.TargetRoot)
	}

	return d.home
}

func (d *Deployer) backupDir() string {
	if d.source.BackupDir != "" {
		return d.expandPath(d.source.BackupDir)
	}

	return filepath.Join(journal.DefaultDir(), "backups")
}

// expandPath resolves a leading "~" against the home directory and
// normalizes separators.
func (d *Deployer) expandPath(p string) string {
	switch {
	case p == "~":
		return d.home
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(d.home, filepath.FromSlash(p[2:]))
	default:
		return filepath.FromSlash(p)
	}
}
