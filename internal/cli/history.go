package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type HistoryArgs struct {
	*RootArgs

	RunID int64
	Limit int
}

func NewHistoryCmd(rootArgs *RootArgs) *cobra.Command {
	args := &HistoryArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Review recorded update runs",
		Long: `List recent runs from the journal. With --run, print the full transcript of
one run instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfigOrDefault(args.RootArgs)

			j, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer j.Close() //nolint:errcheck // Read-mostly handle.

			w := cmd.OutOrStdout()

			if args.RunID != 0 {
				run, err := j.Run(cmd.Context(), args.RunID)
				if err != nil {
					return fmt.Errorf("load run %d: %w", args.RunID, err)
				}

				transcript, err := j.Transcript(run)
				if err != nil {
					return fmt.Errorf("load transcript: %w", err)
				}

				mustN(fmt.Fprint(w, transcript))

				return nil
			}

			runs, err := j.Runs(cmd.Context(), args.Limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			if len(runs) == 0 {
				mustN(fmt.Fprintln(w, "No runs recorded."))

				return nil
			}

			mustN(fmt.Fprintf(w, "%-4s  %-8s  %-15s  %-9s  %-9s  %s\n",
				"ID", "KIND", "WHEN", "DURATION", "STATUS", "RESULT"))

			for _, run := range runs {
				mustN(fmt.Fprintf(w, "%-4d  %-8s  %-15s  %-9s  %-9s  %d updated, %d failed, %d skipped\n",
					run.ID,
					run.Kind,
					humanize.Time(run.Started),
					run.Duration().Round(time.Second),
					run.Status,
					run.Updated, run.Failed, run.Skipped,
				))
			}

			return nil
		},
	}

	args.AddFlags(cmd)

	return cmd
}

func (ha *HistoryArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&ha.Limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().Int64Var(&ha.RunID, "run", 0, "Print the transcript of one run by ID")
}
