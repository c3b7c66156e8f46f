package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/config"
	"github.com/macropower/dotup/pkg/dotfiles"
	"github.com/macropower/dotup/pkg/facts"
	"github.com/macropower/dotup/pkg/journal"
	"github.com/macropower/dotup/pkg/secret"
	"github.com/macropower/dotup/pkg/updater"
)

// configPath resolves the active configuration file path.
func (ra *RootArgs) configPath() string {
	if ra.ConfigPath != "" {
		return ra.ConfigPath
	}

	return config.GetPath()
}

// loadConfig loads and validates the configuration, including the
// machine-local overlay.
func loadConfig(ra *RootArgs) (*config.Config, string, error) {
	path := ra.configPath()

	cfg, err := config.LoadPath(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, path, fmt.Errorf("no configuration at %q, run `%s init` to create one", path, cmdName)
	}
	if err != nil {
		return nil, path, fmt.Errorf("load config %q: %w", path, err)
	}

	return cfg, path, nil
}

// loadConfigOrDefault falls back to the built-in defaults when no usable
// configuration exists. Commands that must work on unconfigured machines
// use this variant.
func loadConfigOrDefault(ra *RootArgs) *config.Config {
	cfg, path, err := loadConfig(ra)
	if err != nil {
		slog.Debug("using default configuration",
			slog.String("path", path),
			slog.Any("err", err),
		)

		return config.NewConfig()
	}

	return cfg
}

// newDeployer builds a dotfiles deployer with host facts and the local age
// identity attached.
func newDeployer(cfg *config.Config, opts ...dotfiles.DeployerOpt) (*dotfiles.Deployer, error) {
	f := facts.Collect()

	opts = append([]dotfiles.DeployerOpt{
		dotfiles.WithFacts(&f),
		dotfiles.WithKeeper(secret.NewKeeper()),
	}, opts...)

	d, err := dotfiles.NewDeployer(cfg.Dotfiles, opts...)
	if err != nil {
		return nil, fmt.Errorf("configure deployer: %w", err)
	}

	return d, nil
}

// newRunner builds an update runner over the configured managers and rules.
func newRunner(cfg *config.Config, opts ...updater.RunnerOpt) (*updater.Runner, error) {
	f := facts.Collect()

	opts = append([]updater.RunnerOpt{
		updater.WithConfig(cfg.Updater),
		updater.WithFacts(&f),
	}, opts...)

	r, err := updater.NewRunner(opts...)
	if err != nil {
		return nil, fmt.Errorf("configure update runner: %w", err)
	}

	return r, nil
}

// openJournal opens the run journal per the logs section.
func openJournal(cfg *config.Config) (*journal.Journal, error) {
	j, err := journal.New(journalDir(cfg.Logs), journal.WithKeep(cfg.Logs.Keep))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return j, nil
}

// journalDir resolves the journal directory, expanding a leading tilde.
func journalDir(jc *journal.Config) string {
	if jc.Dir == "" {
		return journal.DefaultDir()
	}

	return expandUserPath(jc.Dir)
}

// expandUserPath resolves a leading tilde against the home directory.
func expandUserPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.FromSlash(p)
		}

		return filepath.Join(home, filepath.FromSlash(strings.TrimPrefix(p, "~")))
	}

	return filepath.FromSlash(p)
}

// tryGetManagerNames completes --manager values from the active config.
func tryGetManagerNames(ra *RootArgs) []cobra.Completion {
	cfg, _, err := loadConfig(ra)
	if err != nil {
		return nil
	}

	completions := make([]cobra.Completion, 0, len(cfg.Updater.Managers))
	for name, m := range cfg.Updater.Managers {
		completions = append(completions, cobra.CompletionWithDesc(name, m.Description))
	}

	return completions
}
