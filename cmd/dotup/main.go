// Command dotup keeps a development environment in shape: it deploys
// dotfiles, updates packages across managers, and records every run.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/macropower/dotup/internal/cli"
	"github.com/macropower/dotup/pkg/version"
)

func main() {
	cmd := cli.NewRootCmd()

	err := fang.Execute(
		context.Background(),
		cmd,
		fang.WithVersion(version.GetVersion()),
		fang.WithColorSchemeFunc(cli.ColorSchemeFunc),
		fang.WithErrorHandler(cli.ErrorHandler),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err != nil {
		os.Exit(1)
	}
}
