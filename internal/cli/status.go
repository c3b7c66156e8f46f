package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/dotfiles"
)

type StatusArgs struct {
	*RootArgs

	Diff bool
}

func NewStatusCmd(rootArgs *RootArgs) *cobra.Command {
	args := &StatusArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dotfile deployment state",
		Long: `Compare every dotfile entry against its target without changing anything.
Entries are reported as ok, missing, drifted, conflict, skipped, or error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(args.RootArgs)
			if err != nil {
				return err
			}

			d, err := newDeployer(cfg, dotfiles.WithDiff(args.Diff))
			if err != nil {
				return err
			}

			statuses, err := d.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("check dotfile status: %w", err)
			}

			w := cmd.OutOrStdout()

			if len(statuses) == 0 {
				mustN(fmt.Fprintln(w, "No dotfile entries are configured."))

				return nil
			}

			pending := 0

			for _, st := range statuses {
				line := fmt.Sprintf("[%-8s]  %s", st.State, st.Entry.Source)
				if st.Target != "" {
					line += " -> " + st.Target
				}
				if st.Detail != "" {
					line += fmt.Sprintf("  (%s)", st.Detail)
				}

				mustN(fmt.Fprintln(w, line))

				if st.Diff != "" {
					mustN(fmt.Fprintln(w, st.Diff))
				}

				if st.State == dotfiles.StateMissing || st.State == dotfiles.StateDrifted {
					pending++
				}
			}

			if pending > 0 {
				mustN(fmt.Fprintf(w, "\n%d entries out of date, run `%s apply` to deploy them\n",
					pending, cmdName))
			}

			return nil
		},
	}

	args.AddFlags(cmd)

	return cmd
}

func (sa *StatusArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&sa.Diff, "diff", false, "Show a unified diff for drifted copy and template entries")
}
