package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/selfupdate"
	"github.com/macropower/dotup/pkg/version"
)

const (
	repoOwner = "macropower"
	repoName  = "dotup"
)

type SelfUpdateArgs struct {
	*RootArgs

	Check bool
}

func NewSelfUpdateCmd(rootArgs *RootArgs) *cobra.Command {
	args := &SelfUpdateArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update dotup to the latest release",
		Long: `Replace the running binary with the latest GitHub release for this
platform. With --check, only report whether a newer release exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u := selfupdate.New(version.GetVersion(), selfupdate.WithRepo(repoOwner, repoName))

			w := cmd.OutOrStdout()

			if args.Check {
				check, err := u.Check(cmd.Context())
				if err != nil {
					return fmt.Errorf("check for updates: %w", err)
				}

				if !check.UpdateAvailable {
					mustN(fmt.Fprintf(w, "%s %s is up to date\n", cmdName, check.CurrentVersion))

					return nil
				}

				mustN(fmt.Fprintf(w, "%s %s -> %s\n%s\n",
					cmdName, check.CurrentVersion, check.LatestVersion, check.ReleaseURL))

				return nil
			}

			check, err := u.Apply(cmd.Context())
			switch {
			case errors.Is(err, selfupdate.ErrUpToDate):
				mustN(fmt.Fprintf(w, "%s %s is up to date\n", cmdName, version.GetVersion()))

				return nil
			case err != nil:
				return fmt.Errorf("apply update: %w", err)
			}

			mustN(fmt.Fprintf(w, "updated to %s\n", check.LatestVersion))

			return nil
		},
	}

	args.AddFlags(cmd)

	return cmd
}

func (sa *SelfUpdateArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&sa.Check, "check", false, "Only check whether a newer release exists")
}
