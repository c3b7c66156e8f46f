package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/shell"
)

func NewShellCmd(_ *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Manage shell integration",
		Long: `Install or remove the managed rc block that wires the shell's prompt
through dotup. The block is fenced by marker comments and survives edits to
the rest of the rc file.`,
	}

	cmd.AddCommand(
		NewShellDetectCmd(),
		NewShellInstallCmd(),
		NewShellUninstallCmd(),
	)

	return cmd
}

func NewShellDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Print the detected shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := shell.Detect()
			if err != nil {
				return err //nolint:wrapcheck // Error is self-describing.
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), s))

			return nil
		},
	}
}

func NewShellInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "install [shell]",
		Short:     "Install the managed rc block",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: shellNames(),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			s, err := resolveShell(cmdArgs)
			if err != nil {
				return err
			}

			m, err := shell.NewManager()
			if err != nil {
				return err //nolint:wrapcheck // Error is self-describing.
			}

			rcPath, err := m.Install(s)
			if err != nil {
				return fmt.Errorf("install shell integration: %w", err)
			}

			mustN(fmt.Fprintf(cmd.OutOrStdout(), "installed %s integration in %s\n", s, rcPath))

			return nil
		},
	}
}

func NewShellUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "uninstall [shell]",
		Short:     "Remove the managed rc block",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: shellNames(),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			s, err := resolveShell(cmdArgs)
			if err != nil {
				return err
			}

			m, err := shell.NewManager()
			if err != nil {
				return err //nolint:wrapcheck // Error is self-describing.
			}

			removed, err := m.Uninstall(s)
			if err != nil {
				return fmt.Errorf("uninstall shell integration: %w", err)
			}

			if removed {
				mustN(fmt.Fprintf(cmd.OutOrStdout(), "removed %s integration\n", s))
			} else {
				mustN(fmt.Fprintf(cmd.OutOrStdout(), "no %s integration installed\n", s))
			}

			return nil
		},
	}
}

// resolveShell parses the shell argument, falling back to detection.
func resolveShell(cmdArgs []string) (shell.Shell, error) {
	if len(cmdArgs) > 0 {
		return shell.Parse(cmdArgs[0]) //nolint:wrapcheck // Error names the shell.
	}

	return shell.Detect() //nolint:wrapcheck // Error is self-describing.
}
