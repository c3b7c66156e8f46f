package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/config"
	"github.com/macropower/dotup/pkg/doctor"
	"github.com/macropower/dotup/pkg/journal"
	"github.com/macropower/dotup/pkg/secret"
	"github.com/macropower/dotup/pkg/shell"
)

type DoctorArgs struct {
	*RootArgs

	JSON bool
}

func NewDoctorCmd(rootArgs *RootArgs) *cobra.Command {
	args := &DoctorArgs{RootArgs: rootArgs}

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment for problems",
		Long: `Verify the configuration, dotfiles source, manager binaries, shell
integration, and journal. Failures print the command that fixes them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results := runDoctor(cmd.Context(), args)

			return finishDoctor(cmd, args, results)
		},
	}

	args.AddFlags(cmd)

	return cmd
}

func (da *DoctorArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&da.JSON, "json", false, "Report check results as JSON")
}

func runDoctor(ctx context.Context, da *DoctorArgs) []doctor.Result {
	var results []doctor.Result

	cfg, path, err := loadConfig(da.RootArgs)
	if err != nil {
		results = append(results, doctor.FailWithFix("configuration", err.Error(), cmdName+" init"))

		return results
	}

	results = append(results, doctor.Pass("configuration", path))
	results = checkDotfiles(results, cfg)
	results = checkManagers(ctx, results, cfg)
	results = checkShell(results)
	results = checkJournal(results, cfg)

	return results
}

func checkDotfiles(results []doctor.Result, cfg *config.Config) []doctor.Result {
	if cfg.Dotfiles == nil || len(cfg.Dotfiles.Entries) == 0 {
		return append(results, doctor.Skip("dotfiles source", "no entries configured"))
	}

	root := expandUserPath(cfg.Dotfiles.Root)

	info, err := os.Stat(root)
	switch {
	case err != nil:
		results = append(results, doctor.Fail("dotfiles source", err.Error()))
	case !info.IsDir():
		results = append(results, doctor.Fail("dotfiles source", root+" is not a directory"))
	default:
		results = append(results, doctor.Pass("dotfiles source", root))
	}

	for _, e := range cfg.Dotfiles.Entries {
		if !e.Encrypted {
			continue
		}

		k := secret.NewKeeper()
		if k.HasIdentity() {
			results = append(results, doctor.Pass("age identity", k.Path()))
		} else {
			results = append(results, doctor.FailWithFix("age identity",
				"encrypted entries configured but no identity found",
				cmdName+" secret init"))
		}

		break
	}

	return results
}

func checkManagers(ctx context.Context, results []doctor.Result, cfg *config.Config) []doctor.Result {
	runner, err := newRunner(cfg)
	if err != nil {
		return append(results, doctor.Fail("managers", err.Error()))
	}

	matches := runner.ActiveManagers()
	if len(matches) == 0 {
		return append(results, doctor.Warn("managers", "no managers active on this host"))
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })

	for _, match := range matches {
		name := "manager " + match.Name

		if !match.Manager.HasBin() {
			results = append(results, doctor.FailWithFix(name,
				fmt.Sprintf("%s not found on PATH", match.Manager.Bin),
				fmt.Sprintf("install %s or disable the manager", match.Manager.Bin)))

			continue
		}

		err := match.Manager.EnsureInit(ctx)
		if err != nil {
			results = append(results, doctor.Fail(name, err.Error()))

			continue
		}

		results = append(results, doctor.Pass(name, match.Manager.Bin))
	}

	return results
}

func checkShell(results []doctor.Result) []doctor.Result {
	s, err := shell.Detect()
	if err != nil {
		return append(results, doctor.Warn("shell integration", err.Error()))
	}

	m, err := shell.NewManager()
	if err != nil {
		return append(results, doctor.Warn("shell integration", err.Error()))
	}

	installed, err := m.Installed(s)
	switch {
	case err != nil:
		results = append(results, doctor.Warn("shell integration", err.Error()))
	case !installed:
		results = append(results, doctor.Warn("shell integration",
			fmt.Sprintf("not installed for %s, run `%s shell install`", s, cmdName)))
	default:
		results = append(results, doctor.Pass("shell integration", s.String()))
	}

	return results
}

func checkJournal(results []doctor.Result, cfg *config.Config) []doctor.Result {
	dir := journalDir(cfg.Logs)

	j, err := journal.New(dir, journal.WithKeep(cfg.Logs.Keep))
	if err != nil {
		return append(results, doctor.Fail("journal", err.Error()))
	}

	err = j.Close()
	if err != nil {
		return append(results, doctor.Fail("journal", err.Error()))
	}

	return append(results, doctor.Pass("journal", dir))
}

func finishDoctor(cmd *cobra.Command, da *DoctorArgs, results []doctor.Result) error {
	w := cmd.OutOrStdout()

	if da.JSON {
		report := doctor.NewReport(results)

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}

		mustN(fmt.Fprintln(w, string(out)))

		if !report.OK {
			return fmt.Errorf("%d checks failed", countFailed(results))
		}

		return nil
	}

	if !doctor.PrintChecklist(w, results) {
		return fmt.Errorf("%d checks failed", countFailed(results))
	}

	return nil
}

func countFailed(results []doctor.Result) int {
	n := 0
	for _, r := range results {
		if r.Status == doctor.StatusFail {
			n++
		}
	}

	return n
}
