package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/config"
	"github.com/macropower/dotup/pkg/ui/render"
)

type ConfigArgs struct {
	*RootArgs

	Write bool
	Force bool
}

func NewConfigCmd(rootArgs *RootArgs) *cobra.Command {
	args := &ConfigArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or write the configuration",
		Long: `Print the active configuration with the machine-local overlay merged in.
With --write, write the embedded default configuration instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if args.Write {
				path := args.configPath()

				err := config.WriteDefaultConfig(path, args.Force)
				if err != nil {
					return fmt.Errorf("write default config: %w", err)
				}

				mustN(fmt.Fprintln(cmd.OutOrStdout(), path))

				return nil
			}

			return showConfig(cmd, args.RootArgs)
		},
	}

	args.AddFlags(cmd)

	return cmd
}

func (ca *ConfigArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&ca.Write, "write", false, "Write the default configuration and exit")
	cmd.Flags().BoolVar(&ca.Force, "force", false, "Overwrite an existing configuration")
}

func showConfig(cmd *cobra.Command, rootArgs *RootArgs) error {
	cfg, path, err := loadConfig(rootArgs)
	if err != nil {
		return err
	}

	slog.Info("active configuration", slog.String("path", path))

	yamlBytes, err := cfg.MarshalYAML()
	if err != nil {
		return fmt.Errorf("marshal config yaml: %w", err)
	}

	yamlConfig := string(yamlBytes)

	// The loader carries the theme even when the rest of the file fails
	// strict decoding.
	cl, clErr := config.NewConfigLoaderFromFile(path, config.WithThemeFromData())
	if clErr != nil {
		mustN(fmt.Fprintln(cmd.OutOrStdout(), yamlConfig))

		return nil
	}

	cr := render.NewChromaRenderer(cl.GetTheme(), render.WithoutLineNumbers())

	prettyConfig, err := cr.RenderContent(yamlConfig, 0)
	if err != nil {
		mustN(fmt.Fprintln(cmd.OutOrStdout(), yamlConfig))

		return err
	}

	mustN(fmt.Fprintln(cmd.OutOrStdout(), prettyConfig))

	return nil
}
