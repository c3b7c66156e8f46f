package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/mcp"
)

func NewServeMCPCmd(rootArgs *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp [address]",
		Short: "Serve package status over MCP",
		Long: `Expose read-only tools to MCP clients: list_packages reports outdated
packages per manager, get_status reports dotfile deployment state. With an
address the server speaks streamable HTTP, without one it speaks stdio.

Nothing mutating is exposed. Updates stay in the interactive commands.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			cfg, _, err := loadConfig(rootArgs)
			if err != nil {
				return err
			}

			runner, err := newRunner(cfg)
			if err != nil {
				return err
			}

			deployer, err := newDeployer(cfg)
			if err != nil {
				return err
			}

			var address string
			if len(cmdArgs) > 0 {
				address = cmdArgs[0]
			}

			srv, err := mcp.NewServer(address, runner, deployer)
			if err != nil {
				return fmt.Errorf("create mcp server: %w", err)
			}
			defer srv.Close()

			return srv.Serve(cmd.Context()) //nolint:wrapcheck // Serve wraps internally.
		},
	}
}
