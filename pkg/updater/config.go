package updater

import (
	"fmt"

	"github.com/macropower/dotup/pkg/execs"
	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/rule"
	"github.com/macropower/dotup/pkg/yaml"
)

const (
	psProbeVersion = `$PSVersionTable.PSVersion.ToString()`

	psListOutdated = `$installed = Get-InstalledModule; $report = foreach ($m in $installed) {` +
		` $found = Find-Module -Name $m.Name -ErrorAction SilentlyContinue;` +
		` if ($found -and "$($found.Version)" -ne "$($m.Version)") {` +
		` [pscustomobject]@{ name = $m.Name; current = "$($m.Version)"; latest = "$($found.Version)" } } };` +
		` ConvertTo-Json @($report) -Compress`

	psUpdateModule = `Update-Module -Name '{package}' -Force -AcceptLicense -ErrorAction Stop`

	psUninstallOldVersions = `Get-InstalledModule | ForEach-Object { $newest = $_;` +
		` Get-InstalledModule -Name $newest.Name -AllVersions -ErrorAction SilentlyContinue |` +
		` Where-Object { "$($_.Version)" -ne "$($newest.Version)" } |` +
		` ForEach-Object { Uninstall-Module -Name $_.Name -RequiredVersion $_.Version -Force -ErrorAction Continue } }`

	// Winget prints fixed-width columns: Name, Id, Version, Available, Source.
	// Names may contain single spaces, columns are padded with two or more.
	wingetUpgradePattern = `^.+?\s{2,}(?P<name>\S+)\s+(?P<current>\S+)\s+(?P<latest>\S+)\s+\S+\s*$`

	aptUpgradablePattern = `^(?P<name>[^/\s]+)/\S+\s+(?P<latest>\S+)\s+\S+\s+\[upgradable from: (?P<current>[^\]]+)\]`
)

var (
	defaultManagers = map[string]*manager.Manager{
		"psmodule": manager.MustNew("pwsh",
			manager.WithDescription("PowerShell modules"),
			manager.WithInit(&execs.Command{
				Command: "pwsh",
				Args:    []string{"-NoProfile", "-NonInteractive", "-Command", psProbeVersion},
			}),
			manager.WithList(&execs.Command{
				Command: "pwsh",
				Args:    []string{"-NoProfile", "-NonInteractive", "-Command", psListOutdated},
			}),
			manager.WithUpdate(&execs.Command{
				Command: "pwsh",
				Args:    []string{"-NoProfile", "-NonInteractive", "-Command", psUpdateModule},
			}),
			manager.WithClean(&execs.Command{
				Command: "pwsh",
				Args:    []string{"-NoProfile", "-NonInteractive", "-Command", psUninstallOldVersions},
			})),
		"winget": manager.MustNew("winget",
			manager.WithDescription("Windows Package Manager"),
			manager.WithList(&execs.Command{
				Run: "winget upgrade --include-unknown --disable-interactivity",
			}),
			manager.WithUpdate(&execs.Command{
				Run: "winget upgrade --id {package} --exact --silent" +
					" --accept-package-agreements --accept-source-agreements",
			}),
			manager.WithParser(&manager.Parser{
				Format:  manager.FormatLines,
				Pattern: wingetUpgradePattern,
				Skip:    2,
			})),
		"brew": manager.MustNew("brew",
			manager.WithDescription("Homebrew formulae"),
			manager.WithList(&execs.Command{
				Run: "brew outdated --json=v2",
				EnvFrom: []execs.EnvFromSource{
					{
						CallerRef: &execs.CallerRef{
							Pattern: "^HOMEBREW_.+",
						},
					},
				},
			}),
			manager.WithUpdate(&execs.Command{
				Run: "brew upgrade {package}",
				Env: []execs.EnvVar{
					{Name: "HOMEBREW_NO_AUTO_UPDATE", Value: "1"},
				},
				EnvFrom: []execs.EnvFromSource{
					{
						CallerRef: &execs.CallerRef{
							Pattern: "^HOMEBREW_.+",
						},
					},
				},
			}),
			manager.WithClean(&execs.Command{
				Run: "brew cleanup --prune=all",
			}),
			manager.WithParser(&manager.Parser{
				Path:       "$.formulae",
				CurrentKey: "installed_versions",
				LatestKey:  "current_version",
			})),
		"apt": manager.MustNew("apt-get",
			manager.WithDescription("Debian and Ubuntu packages"),
			manager.WithList(&execs.Command{
				Run: "apt list --upgradable",
			}),
			manager.WithUpdate(&execs.Command{
				Run: "sudo apt-get install --only-upgrade -y {package}",
				Env: []execs.EnvVar{
					{Name: "DEBIAN_FRONTEND", Value: "noninteractive"},
				},
			}),
			manager.WithClean(&execs.Command{
				Run: "sudo apt-get autoremove -y",
			}),
			manager.WithParser(&manager.Parser{
				Format:  manager.FormatLines,
				Pattern: aptUpgradablePattern,
				Skip:    1,
			})),
	}

	defaultRules = []*rule.Rule{
		rule.MustNew("psmodule", `hasExec("pwsh")`),
		rule.MustNew("winget", `os == "windows" && hasExec("winget")`),
		rule.MustNew("brew", `hasExec("brew")`),
		rule.MustNew("apt", `os == "linux" && hasExec("apt-get")`),
	}

	DefaultConfig = MustNewConfig(defaultManagers, defaultRules)
)

// Config defines the package update configuration.
type Config struct {
	// Managers contains a map of manager names to manager configurations.
	Managers map[string]*manager.Manager `json:"managers,omitempty" jsonschema:"title=Managers"`
	// Rules defines the conditions under which managers activate.
	Rules []*rule.Rule `json:"rules,omitempty" jsonschema:"title=Rules"`
}

func NewConfig(ms map[string]*manager.Manager, rs []*rule.Rule) (*Config, error) {
	c := &Config{
		Managers: ms,
		Rules:    rs,
	}
	err := c.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func MustNewConfig(ms map[string]*manager.Manager, rs []*rule.Rule) *Config {
	c, err := NewConfig(ms, rs)
	if err != nil {
		panic(fmt.Sprintf("failed to create config: %v", err))
	}

	return c
}

func (c *Config) EnsureDefaults() {
	if c.Managers == nil {
		c.Managers = defaultManagers
	}
	if c.Rules == nil {
		c.Rules = defaultRules
	}
}

// Merge overlays another config onto this one, e.g. a machine-local config
// over the shared one. Overlay managers replace same-named managers, and
// overlay rules take priority by being prepended. The receiver's collections
// are replaced rather than mutated, so they may alias the built-in defaults.
func (c *Config) Merge(overlay *Config) {
	if overlay == nil {
		return
	}

	if len(overlay.Managers) > 0 {
		merged := make(map[string]*manager.Manager, len(c.Managers)+len(overlay.Managers))
		for name, m := range c.Managers {
			merged[name] = m
		}
		for name, m := range overlay.Managers {
			merged[name] = m
		}

		c.Managers = merged
	}

	if len(overlay.Rules) > 0 {
		c.Rules = append(append([]*rule.Rule{}, overlay.Rules...), c.Rules...)
	}
}

func (c *Config) Validate() error {
	pb := yaml.NewPathBuilder()

	for name, m := range c.Managers {
		for _, mc := range []struct {
			cmd   *execs.Command
			field string
		}{
			{field: "init", cmd: m.Init},
			{field: "list", cmd: m.List},
			{field: "update", cmd: m.Update},
			{field: "clean", cmd: m.Clean},
		} {
			if mc.cmd == nil {
				continue
			}

			err := validateCommandEnv(pb, name, mc.field, mc.cmd)
			if err != nil {
				return err
			}
		}

		err := m.Build()
		if err != nil {
			return yaml.NewError(
				fmt.Errorf("invalid manager: %w", err),
				yaml.WithPath(pb.Root().Child("managers").Child(name).Build()),
			)
		}
	}

	for i, r := range c.Rules {
		uIdx := uint(i) //nolint:gosec // G115: integer overflow conversion int -> uint.
		err := r.CompileWhen()
		if err != nil {
			return yaml.NewError(
				fmt.Errorf("invalid when: %w", err),
				yaml.WithPath(pb.Root().Child("rules").Index(uIdx).Child("when").Build()),
			)
		}

		_, ok := c.Managers[r.Manager]
		if !ok {
			return yaml.NewError(
				fmt.Errorf("manager %q not found", r.Manager),
				yaml.WithPath(pb.Root().Child("rules").Index(uIdx).Child("manager").Build()),
			)
		}
	}

	return nil
}

func validateCommandEnv(pb *yaml.PathBuilder, name, field string, cmd *execs.Command) error {
	for i, env := range cmd.Env {
		if env.ValueFrom == nil || env.ValueFrom.CallerRef == nil || env.ValueFrom.CallerRef.Pattern == "" {
			continue // Skip if no pattern is defined.
		}

		uIdx := uint(i) //nolint:gosec // G115: integer overflow conversion int -> uint.
		err := env.ValueFrom.CallerRef.Compile()
		if err != nil {
			return yaml.NewError(
				fmt.Errorf("invalid env pattern: %w", err),
				yaml.WithPath(pb.Root().
					Child("managers").
					Child(name).
					Child(field).
					Child("env").
					Index(uIdx).
					Child("valueFrom").
					Child("callerRef").
					Child("pattern").
					Build()),
			)
		}
	}

	for i, envFrom := range cmd.EnvFrom {
		if envFrom.CallerRef == nil || envFrom.CallerRef.Pattern == "" {
			continue // Skip if no pattern is defined.
		}

		uIdx := uint(i) //nolint:gosec // G115: integer overflow conversion int -> uint.
		err := envFrom.CallerRef.Compile()
		if err != nil {
			return yaml.NewError(
				fmt.Errorf("invalid envFrom pattern: %w", err),
				yaml.WithPath(pb.Root().
					Child("managers").
					Child(name).
					Child(field).
					Child("envFrom").
					Index(uIdx).
					Child("callerRef").
					Child("pattern").
					Build()),
			)
		}
	}

	return nil
}
