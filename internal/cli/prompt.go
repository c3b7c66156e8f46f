package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/prompt"
	"github.com/macropower/dotup/pkg/shell"
)

func NewPromptCmd(rootArgs *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render prompt paths and shell hooks",
	}

	cmd.AddCommand(
		NewPromptPathCmd(rootArgs),
		NewPromptHookCmd(),
	)

	return cmd
}

func NewPromptPathCmd(rootArgs *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "path [dir]",
		Short: "Shorten a directory path for the prompt",
		Long: `Render a directory the way the shell prompt shows it, with the home
directory collapsed to ~ and middle segments shortened. Defaults to the
working directory.`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveFilterDirs
		},
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			var dir string
			if len(cmdArgs) > 0 {
				dir = cmdArgs[0]
			} else {
				var err error

				dir, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("determine working directory: %w", err)
				}
			}

			cfg := loadConfigOrDefault(rootArgs)

			mustN(fmt.Fprintln(cmd.OutOrStdout(), prompt.New(cfg.Prompt).Render(dir)))

			return nil
		},
	}
}

func NewPromptHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "hook <shell>",
		Short:     "Emit the prompt hook for a shell",
		Long:      `Print the script that rewires a shell's prompt through dotup. The managed rc block evaluates this on shell startup.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: shellNames(),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			s, err := shell.Parse(cmdArgs[0])
			if err != nil {
				return err //nolint:wrapcheck // Error names the shell.
			}

			hook, err := shell.Hook(s)
			if err != nil {
				return err //nolint:wrapcheck // Error names the shell.
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), hook))

			return nil
		},
	}
}

func shellNames() []string {
	shells := shell.Shells()

	names := make([]string, 0, len(shells))
	for _, s := range shells {
		names = append(names, s.String())
	}

	return names
}
