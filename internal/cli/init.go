package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macropower/dotup/pkg/config"
	"github.com/macropower/dotup/pkg/dotfiles"
	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/rule"
	"github.com/macropower/dotup/pkg/ui/theme"
	"github.com/macropower/dotup/pkg/updater"
)

type InitArgs struct {
	*RootArgs

	Force bool
}

func NewInitCmd(rootArgs *RootArgs) *cobra.Command {
	args := &InitArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration interactively",
		Long: `Walk through the initial configuration: where dotfile sources live, where
they deploy to, and which package managers to enable. Managers whose binary
is on PATH are preselected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := args.configPath()

			_, err := os.Stat(path)
			if err == nil && !args.Force {
				return fmt.Errorf("configuration already exists at %q, use --force to overwrite", path)
			}

			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("stdin is not a terminal, run `%s config --write` instead", cmdName)
			}

			cfg, err := runInitForm(cmd)
			if err != nil {
				return err
			}

			err = cfg.Write(path)
			if err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), path))

			return nil
		},
	}

	args.AddFlags(cmd)

	return cmd
}

func (ia *InitArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&ia.Force, "force", false, "Overwrite an existing configuration")
}

func runInitForm(cmd *cobra.Command) (*config.Config, error) {
	defaults := config.NewConfig()

	names := make([]string, 0, len(defaults.Updater.Managers))
	for name := range defaults.Updater.Managers {
		names = append(names, name)
	}

	sort.Strings(names)

	options := make([]huh.Option[string], 0, len(names))
	selected := make([]string, 0, len(names))

	for _, name := range names {
		m := defaults.Updater.Managers[name]

		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", name, m.Description), name))

		if m.HasBin() {
			selected = append(selected, name)
		}
	}

	sourceDir := "~/.dotfiles"
	targetRoot := "~"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Dotfiles source").
				Description("Directory your dotfile sources live in.").
				Value(&sourceDir),

			huh.NewInput().
				Title("Target root").
				Description("Directory relative targets deploy into.").
				Value(&targetRoot),

			huh.NewMultiSelect[string]().
				Title("Package managers").
				Description("Managers found on PATH are preselected.").
				Options(options...).
				Value(&selected),
		),
	).
		WithShowHelp(false).
		WithTheme(theme.HuhTheme(theme.Default))

	err := form.RunWithContext(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("run init form: %w", err)
	}

	return buildInitConfig(defaults, sourceDir, targetRoot, selected)
}

// buildInitConfig assembles a fresh configuration so the shared defaults
// stay untouched.
func buildInitConfig(defaults *config.Config, sourceDir, targetRoot string, selected []string) (*config.Config, error) {
	managers := make(map[string]*manager.Manager, len(selected))
	for _, name := range selected {
		managers[name] = defaults.Updater.Managers[name]
	}

	rules := make([]*rule.Rule, 0, len(defaults.Updater.Rules))
	for _, r := range defaults.Updater.Rules {
		if _, ok := managers[r.Manager]; ok {
			rules = append(rules, r)
		}
	}

	uc, err := updater.NewConfig(managers, rules)
	if err != nil {
		return nil, fmt.Errorf("build updater config: %w", err)
	}

	cfg := config.NewConfig()
	cfg.Updater = uc
	cfg.Dotfiles = &dotfiles.Source{
		Root:       sourceDir,
		TargetRoot: targetRoot,
	}

	return cfg, nil
}
