package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macropower/dotup/pkg/config"
	"github.com/macropower/dotup/pkg/journal"
	"github.com/macropower/dotup/pkg/log"
	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/ui"
	"github.com/macropower/dotup/pkg/updater"
)

const journalKindUpdate = "update"

type UpdateArgs struct {
	*RootArgs

	Managers    []string
	Concurrency int
	All         bool
	DryRun      bool
}

func NewUpdateCmd(rootArgs *RootArgs) *cobra.Command {
	args := &UpdateArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "update [package]...",
		Short: "Update packages across managers",
		Long: `Check every active manager for outdated packages and update them. With no
arguments on a terminal, an interactive picker selects which packages to
update. With package arguments or --all, everything runs without prompting.

Finished runs are recorded in the journal, one transcript per run.`,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			cfg, _, err := loadConfig(args.RootArgs)
			if err != nil {
				return err
			}

			opts := []updater.RunnerOpt{
				updater.WithDryRun(args.DryRun),
				updater.WithConcurrency(args.Concurrency),
			}
			if len(args.Managers) > 0 {
				opts = append(opts, updater.WithManagerNames(args.Managers...))
			}
			if len(cmdArgs) > 0 {
				opts = append(opts, updater.WithPackages(cmdArgs...))
			}

			runner, err := newRunner(cfg, opts...)
			if err != nil {
				return err
			}

			j, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer j.Close() //nolint:errcheck // Read-mostly handle.

			interactive := term.IsTerminal(int(os.Stdout.Fd())) &&
				!args.All && len(cmdArgs) == 0
			if interactive {
				return runUpdateUI(cmd, cfg, runner, j, args)
			}

			return runUpdateStream(cmd, runner, j, args)
		},
	}

	args.AddFlags(cmd)

	return cmd
}

func (ua *UpdateArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&ua.Managers, "manager", "m", nil,
		"Restrict the run to the named managers (repeatable)")
	cmd.Flags().BoolVarP(&ua.All, "all", "a", false,
		"Update every outdated package without prompting")
	cmd.Flags().BoolVar(&ua.DryRun, "dry-run", false,
		"List outdated packages without updating anything")
	cmd.Flags().IntVar(&ua.Concurrency, "concurrency", updater.DefaultConcurrency,
		"Number of managers updated in parallel")

	err := cmd.RegisterFlagCompletionFunc("manager",
		func(_ *cobra.Command, _ []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
			return tryGetManagerNames(ua.RootArgs), cobra.ShellCompDirectiveNoFileComp
		},
	)
	if err != nil {
		panic(err)
	}
}

// runUpdateStream runs without the TUI, printing one line per event.
func runUpdateStream(cmd *cobra.Command, runner *updater.Runner, j *journal.Journal, ua *UpdateArgs) error {
	w := cmd.OutOrStdout()

	ch := make(chan updater.Event, 64)
	runner.Subscribe(ch)

	done := make(chan struct{})

	go func() {
		defer close(done)

		for event := range ch {
			switch evt := event.(type) {
			case updater.EventManagerStart:
				mustN(fmt.Fprintf(w, "%s: checking for updates\n", evt.Manager))
			case updater.EventManagerEnd:
				switch {
				case evt.Result.Err != nil:
					mustN(fmt.Fprintf(w, "%s: %v\n", evt.Manager, evt.Result.Err))
				case len(evt.Result.Packages) == 0:
					mustN(fmt.Fprintf(w, "%s: up to date\n", evt.Manager))
				}
			case updater.EventPackageEnd:
				printPackageResult(w, evt.Result)
			case updater.EventRunEnd, updater.EventCancel:
				return
			}
		}
	}()

	result := runner.RunContext(cmd.Context())

	<-done

	updated, failed, skipped := result.Counts()
	mustN(fmt.Fprintf(w, "\n%s: %d updated, %d failed, %d skipped (%s)\n",
		result.Status, updated, failed, skipped, result.Duration().Round(time.Millisecond)))

	for _, msg := range runner.Unsupported().Messages() {
		mustN(fmt.Fprintf(w, "note %s\n", msg))
	}

	if !ua.DryRun {
		run, err := j.Record(context.Background(), journalKindUpdate, result)
		if err != nil {
			slog.Error("record run", slog.Any("error", err))
		} else {
			mustN(fmt.Fprintf(w, "log: %s\n", run.LogPath))
		}
	}

	switch {
	case result.Status == updater.StatusCanceled:
		return errors.New("run canceled")
	case failed > 0:
		return fmt.Errorf("%d packages failed to update", failed)
	case result.Status == updater.StatusFailed:
		return errors.New("all managers failed to list packages")
	default:
		return nil
	}
}

func printPackageResult(w io.Writer, pr updater.PackageResult) {
	pkg := pr.Package
	versions := versionChange(pkg)

	switch {
	case pr.Skipped:
		mustN(fmt.Fprintf(w, "skip %s %s (dry run)\n", pkg.Name, versions))
	case pr.Err != nil:
		mustN(fmt.Fprintf(w, "fail %s %s: %v\n", pkg.Name, versions, pr.Err))
	default:
		mustN(fmt.Fprintf(w, "ok   %s %s (%s)\n",
			pkg.Name, versions, pr.Duration().Round(time.Millisecond)))
	}
}

func versionChange(pkg manager.Package) string {
	if pkg.Latest == "" {
		return pkg.Current
	}

	return fmt.Sprintf("%s -> %s", pkg.Current, pkg.Latest)
}

// runUpdateUI hands the run to the interactive picker. Logs are buffered
// while the TUI owns the terminal and flushed after it exits.
func runUpdateUI(cmd *cobra.Command, cfg *config.Config, runner *updater.Runner, j *journal.Journal, ua *UpdateArgs) error {
	logBuf := log.NewBuffer(100)

	logHandler, err := log.CreateHandlerWithStrings(logBuf, ua.LogLevel, ua.LogFormat)
	if err != nil {
		return fmt.Errorf("create log handler: %w", err)
	}

	slog.SetDefault(slog.New(logHandler))

	jr := &journalingRunner{
		Runner:  runner,
		journal: j,
		kind:    journalKindUpdate,
		dryRun:  ua.DryRun,
	}

	p := ui.NewProgram(cfg.UI, jr)
	jr.onRecorded = func(logPath string) {
		p.Send(ui.LogPathMsg{Path: logPath})
	}

	ch := make(chan updater.Event, 64)
	runner.Subscribe(ch)

	go func() {
		for event := range ch {
			p.Send(event)
		}
	}()

	_, err = p.Run()

	flushLogs(cmd.ErrOrStderr(), logBuf)

	if err != nil {
		return fmt.Errorf("ui program failure: %w", err)
	}

	return nil
}

// journalingRunner records finished runs after the underlying runner
// completes, so the TUI can show the transcript path.
type journalingRunner struct {
	*updater.Runner

	journal    *journal.Journal
	onRecorded func(logPath string)
	kind       string
	dryRun     bool
}

func (r *journalingRunner) Run() *updater.RunResult {
	result := r.Runner.Run()
	if r.dryRun || result == nil {
		return result
	}

	// Canceled runs are still recorded.
	run, err := r.journal.Record(context.Background(), r.kind, result)
	if err != nil {
		slog.Error("record run", slog.Any("error", err))

		return result
	}

	if r.onRecorded != nil {
		r.onRecorded(run.LogPath)
	}

	return result
}

// flushLogs writes buffered log entries to w after the UI releases the
// terminal.
func flushLogs(w io.Writer, buf *log.Buffer) {
	if buf.Len() == 0 {
		return
	}

	slog.Debug("flushing buffered logs",
		slog.Int("count", buf.Len()),
		slog.Int("capacity", buf.Cap()),
	)

	_, err := buf.WriteTo(w)
	must(err)
}
