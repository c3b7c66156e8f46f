package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/dotfiles"
)

type ApplyArgs struct {
	*RootArgs

	Reload string
	DryRun bool
	Watch  bool
}

func NewApplyCmd(rootArgs *RootArgs) *cobra.Command {
	args := &ApplyArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Deploy dotfiles to their targets",
		Long: `Deploy every dotfile entry whose condition matches this host. Targets that
already match their source are left alone, and replaced files are saved to the
backup directory first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(args.RootArgs)
			if err != nil {
				return err
			}

			d, err := newDeployer(cfg, dotfiles.WithDryRun(args.DryRun))
			if err != nil {
				return err
			}

			res, err := d.Apply(cmd.Context())
			if err != nil {
				return fmt.Errorf("apply dotfiles: %w", err)
			}

			failed := printApplyResult(cmd.OutOrStdout(), res)
			if failed > 0 {
				return fmt.Errorf("%d entries failed to deploy", failed)
			}

			if args.Watch {
				return watchDotfiles(cmd, d, args.Reload)
			}

			return nil
		},
	}

	args.AddFlags(cmd)

	return cmd
}

func (aa *ApplyArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&aa.DryRun, "dry-run", false, "Plan changes without touching the filesystem")
	cmd.Flags().BoolVarP(&aa.Watch, "watch", "w", false, "Keep running and re-apply when the source changes")
	cmd.Flags().StringVar(&aa.Reload, "reload", "",
		"CEL expression selecting which file events trigger a re-apply")
}

// printApplyResult writes one line per op plus a summary, and returns the
// number of failed entries.
func printApplyResult(w io.Writer, res *dotfiles.Result) int {
	prefix := ""
	if res.DryRun {
		prefix = "[dry-run] "
	}

	var applied, skipped, failed int

	for _, or := range res.Ops {
		op := or.Op

		switch {
		case or.Err != nil:
			failed++

			mustN(fmt.Fprintf(w, "%s%-8s %s: %v\n", prefix, "fail", op.Entry.Source, or.Err))
		case op.Action == dotfiles.ActionSkip:
			skipped++

			mustN(fmt.Fprintf(w, "%s%-8s %s  (%s)\n", prefix, op.Action, op.Entry.Source, op.Reason))
		default:
			applied++

			detail := op.Reason
			if or.BackupPath != "" {
				detail += ", backup " + or.BackupPath
			}

			mustN(fmt.Fprintf(w, "%s%-8s %s  (%s)\n", prefix, op.Action, op.Target, detail))
		}
	}

	if res.DryRun {
		mustN(fmt.Fprintf(w, "\n%d changes planned, %d skipped\n", applied, skipped))
	} else {
		mustN(fmt.Fprintf(w, "\n%d applied, %d skipped, %d failed\n", applied, skipped, failed))
	}

	return failed
}

// watchDotfiles blocks, re-applying the source on file changes until the
// command context is canceled.
func watchDotfiles(cmd *cobra.Command, d *dotfiles.Deployer, reload string) error {
	var opts []dotfiles.WatcherOpt
	if reload != "" {
		opts = append(opts, dotfiles.WithReload(reload))
	}

	w, err := dotfiles.NewWatcher(d, opts...)
	if err != nil {
		return fmt.Errorf("watch dotfiles: %w", err)
	}
	defer w.Close()

	ch := make(chan *dotfiles.Result, 1)
	w.Subscribe(ch)

	go func() {
		for res := range ch {
			printApplyResult(cmd.OutOrStdout(), res)
		}
	}()

	slog.Info("watching for changes, press ctrl+c to stop")

	err = w.Watch(cmd.Context())
	if err != nil {
		return fmt.Errorf("watch dotfiles: %w", err)
	}

	return nil
}
