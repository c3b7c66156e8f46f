package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/log"
)

const (
	cmdName = "dotup"
	cmdDesc = `Declarative dotfiles deployment and package update orchestration.`

	cmdExamples = `  # Deploy dotfiles from the source directory:
  dotup apply

  # Pick outdated packages to update interactively:
  dotup update

  # Update everything one manager knows about:
  dotup update --all --manager brew

  # Show dotfile drift with a diff:
  dotup status --diff

  # Review past update runs:
  dotup history`
)

type RootArgs struct {
	shutdownTracing func(ctx context.Context) error

	LogLevel   string
	LogFormat  string
	ConfigPath string
}

func NewRootArgs() *RootArgs {
	return &RootArgs{}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	cmd.PersistentFlags().
		StringVar(&ra.ConfigPath, "config", "", "Path to the dotup configuration file")

	var err error

	err = cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.MarkPersistentFlagFilename("config", "yaml", "yml")
	if err != nil {
		panic(fmt.Errorf("mark config flag: %w", err))
	}
}

func NewRootCmd() *cobra.Command {
	args := NewRootArgs()

	cmd := &cobra.Command{
		Use:                cmdName,
		Short:              cmdDesc,
		Example:            cmdExamples,
		PersistentPreRunE:  setup(args),
		PersistentPostRunE: teardown(args),
	}

	args.AddFlags(cmd)

	cmd.AddCommand(
		NewApplyCmd(args),
		NewStatusCmd(args),
		NewUpdateCmd(args),
		NewPruneCmd(args),
		NewHistoryCmd(args),
		NewDoctorCmd(args),
		NewPromptCmd(args),
		NewShellCmd(args),
		NewSecretCmd(args),
		NewConfigCmd(args),
		NewInitCmd(args),
		NewServeMCPCmd(args),
		NewSelfUpdateCmd(args),
	)

	bindEnvVars(cmd)

	return cmd
}

// setup installs the default logger and, when an OTLP endpoint is
// configured, the global tracer provider.
func setup(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		logHandler, err := log.CreateHandlerWithStrings(cmd.ErrOrStderr(), ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		slog.SetDefault(slog.New(logHandler))

		shutdown, err := setupTracing(cmd.Context())
		if err != nil {
			slog.Warn("tracing disabled", slog.Any("err", err))

			return nil
		}

		ra.shutdownTracing = shutdown

		return nil
	}
}

func teardown(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(_ *cobra.Command, _ []string) error {
		if ra.shutdownTracing == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := ra.shutdownTracing(ctx)
		if err != nil {
			slog.Debug("shutdown trace exporter", slog.Any("err", err))
		}

		return nil
	}
}
