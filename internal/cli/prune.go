package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/config"
	"github.com/macropower/dotup/pkg/updater"
)

type PruneArgs struct {
	*RootArgs

	DryRun       bool
	LogsOnly     bool
	VersionsOnly bool
}

func NewPruneCmd(rootArgs *RootArgs) *cobra.Command {
	args := &PruneArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old package versions and transcripts",
		Long: `Run each manager's clean command to drop superseded package versions, then
remove journal transcripts beyond the configured keep count.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(args.RootArgs)
			if err != nil {
				return err
			}

			if !args.LogsOnly {
				err := pruneVersions(cmd, cfg, args)
				if err != nil {
					return err
				}
			}

			if !args.VersionsOnly {
				err := pruneLogs(cmd.OutOrStdout(), cfg, args.DryRun)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}

	args.AddFlags(cmd)

	return cmd
}

func (pa *PruneArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&pa.DryRun, "dry-run", false, "Report what would be removed without removing it")
	cmd.Flags().BoolVar(&pa.LogsOnly, "logs-only", false, "Only prune journal transcripts")
	cmd.Flags().BoolVar(&pa.VersionsOnly, "versions-only", false, "Only prune old package versions")

	cmd.MarkFlagsMutuallyExclusive("logs-only", "versions-only")
}

func pruneVersions(cmd *cobra.Command, cfg *config.Config, pa *PruneArgs) error {
	runner, err := newRunner(cfg, updater.WithDryRun(pa.DryRun))
	if err != nil {
		return err
	}

	errs := runner.CleanContext(cmd.Context())

	w := cmd.OutOrStdout()

	prefix := ""
	if pa.DryRun {
		prefix = "[dry-run] "
	}

	for _, match := range runner.ActiveManagers() {
		if !match.Manager.HasClean() {
			continue
		}

		if cleanErr, ok := errs[match.Name]; ok {
			mustN(fmt.Fprintf(w, "%-8s %s: %v\n", "fail", match.Name, cleanErr))

			continue
		}

		mustN(fmt.Fprintf(w, "%s%-8s %s\n", prefix, "clean", match.Name))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d managers failed to clean", len(errs))
	}

	return nil
}

func pruneLogs(w io.Writer, cfg *config.Config, dryRun bool) error {
	if dryRun {
		// The journal prunes oldest-first per kind, so there is nothing
		// to compute without removing.
		mustN(fmt.Fprintf(w, "[dry-run] would prune transcripts beyond the newest %d per kind\n",
			cfg.Logs.Keep))

		return nil
	}

	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close() //nolint:errcheck // Read-mostly handle.

	removed, err := j.PruneLogs()
	if err != nil {
		return fmt.Errorf("prune transcripts: %w", err)
	}

	mustN(fmt.Fprintf(w, "removed %d transcripts\n", len(removed)))

	return nil
}
