package updater_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/macropower/dotup/pkg/execs"
	"github.com/macropower/dotup/pkg/facts"
	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/rule"
	"github.com/macropower/dotup/pkg/updater"
)

// The runner hands work to per-manager goroutines, so every test in this
// package runs under a leak check.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	testManagers = map[string]*manager.Manager{
		"good": manager.MustNew("sh",
			manager.WithDescription("two outdated packages"),
			manager.WithList(&execs.Command{
				Command: "sh",
				Args:    []string{"-c", `echo '[{"name":"ripgrep","current":"14.1.0","latest":"14.1.1"},{"name":"jq","current":"1.7.1","latest":"1.8.0"}]'`},
			}),
			manager.WithUpdate(&execs.Command{
				Command: "sh",
				Args:    []string{"-c", "echo updated {package}"},
			})),
		"empty": manager.MustNew("sh",
			manager.WithDescription("everything up to date"),
			manager.WithList(&execs.Command{
				Command: "sh",
				Args:    []string{"-c", "echo '[]'"},
			}),
			manager.WithUpdate(&execs.Command{Run: "sh -c true"})),
		"flaky": manager.MustNew("sh",
			manager.WithDescription("updates always fail"),
			manager.WithList(&execs.Command{
				Command: "sh",
				Args:    []string{"-c", `echo '[{"name":"fzf","current":"0.54.0","latest":"0.55.0"}]'`},
			}),
			manager.WithUpdate(&execs.Command{Run: "sh -c 'exit 1'"})),
		"broken": manager.MustNew("sh",
			manager.WithDescription("listing always fails"),
			manager.WithList(&execs.Command{Run: "sh -c 'exit 1'"}),
			manager.WithUpdate(&execs.Command{Run: "sh -c true"})),
	}

	testRules = []*rule.Rule{
		rule.MustNew("good", `true`),
		rule.MustNew("empty", `true`),
		rule.MustNew("flaky", `false`),
		rule.MustNew("broken", `false`),
	}

	TestConfig = updater.MustNewConfig(testManagers, testRules)
)

// collectEventsWithTimeout collects up to maxEvents from the channel with a timeout
func collectEventsWithTimeout(eventCh <-chan updater.Event, maxEvents int, timeout time.Duration) []updater.Event {
	var events []updater.Event
	timeoutTimer := time.After(timeout)

	for len(events) < maxEvents {
		select {
		case event := <-eventCh:
			events = append(events, event)
		case <-timeoutTimer:
			return events
		}
	}

	return events
}

func managerNames(matches []updater.ManagerMatch) []string {
	var names []string
	for _, match := range matches {
		names = append(names, match.Name)
	}

	return names
}

func TestNewRunner(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		wantErr error
		opts    []updater.RunnerOpt
	}{
		"with config": {
			opts: []updater.RunnerOpt{updater.WithConfig(TestConfig)},
		},
		"with managers and rules": {
			opts: []updater.RunnerOpt{
				updater.WithManagers(testManagers),
				updater.WithRules(testRules),
			},
		},
		"rule references unknown manager": {
			opts: []updater.RunnerOpt{
				updater.WithManagers(testManagers),
				updater.WithRules([]*rule.Rule{rule.MustNew("missing", `true`)}),
			},
			wantErr: updater.ErrUnknownManager,
		},
		"selection references unknown manager": {
			opts: []updater.RunnerOpt{
				updater.WithConfig(TestConfig),
				updater.WithManagerNames("missing"),
			},
			wantErr: updater.ErrUnknownManager,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner, err := updater.NewRunner(tc.opts...)

			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, runner)
			assert.NotNil(t, runner.GetFacts())
		})
	}
}

func TestNewRunner_Defaults(t *testing.T) {
	t.Parallel()

	runner, err := updater.NewRunner()
	require.NoError(t, err)

	// No options should load the default managers and rules.
	assert.Len(t, runner.GetManagers(), 4)
	assert.NotNil(t, runner.GetFacts())
}

func TestRunner_Configure(t *testing.T) {
	t.Parallel()

	runner, err := updater.NewRunner(updater.WithConfig(TestConfig))
	require.NoError(t, err)

	require.NoError(t, runner.Configure(updater.WithManagerNames("flaky")))
	assert.Equal(t, []string{"flaky"}, managerNames(runner.ActiveManagers()))

	// Clearing the selection restores rule-based resolution.
	require.NoError(t, runner.Configure(updater.WithManagerNames()))
	assert.Equal(t, []string{"good", "empty"}, managerNames(runner.ActiveManagers()))
}

func TestRunner_ActiveManagers(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts      []updater.RunnerOpt
		wantNames []string
	}{
		"rules resolve in order": {
			opts:      []updater.RunnerOpt{updater.WithConfig(TestConfig)},
			wantNames: []string{"good", "empty"},
		},
		"duplicate rules resolve once": {
			opts: []updater.RunnerOpt{
				updater.WithManagers(testManagers),
				updater.WithRules([]*rule.Rule{
					rule.MustNew("good", `true`),
					rule.MustNew("good", `true`),
					rule.MustNew("empty", `true`),
				}),
			},
			wantNames: []string{"good", "empty"},
		},
		"selection overrides rules": {
			opts: []updater.RunnerOpt{
				updater.WithConfig(TestConfig),
				updater.WithManagerNames("broken"),
			},
			wantNames: []string{"broken"},
		},
		"facts drive rule evaluation": {
			opts: []updater.RunnerOpt{
				updater.WithManagers(testManagers),
				updater.WithRules([]*rule.Rule{
					rule.MustNew("good", `hostname.startsWith("test-")`),
					rule.MustNew("empty", `user == "someone-else"`),
				}),
				updater.WithFacts(&facts.Facts{
					OS:       "linux",
					Arch:     "amd64",
					Hostname: "test-host",
					User:     "jdoe",
					Home:     "/home/jdoe",
				}),
			},
			wantNames: []string{"good"},
		},
		"no matching rules": {
			opts: []updater.RunnerOpt{
				updater.WithManagers(testManagers),
				updater.WithRules([]*rule.Rule{rule.MustNew("good", `false`)}),
			},
			wantNames: nil,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner, err := updater.NewRunner(tc.opts...)
			require.NoError(t, err)

			matches := runner.ActiveManagers()
			for _, match := range matches {
				require.NotNil(t, match.Manager)
			}

			assert.Equal(t, tc.wantNames, managerNames(matches))
		})
	}
}

func TestRunner_Outdated(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		wantErr error
		checkFn func(*testing.T, []manager.Package, map[string]error)
		opts    []updater.RunnerOpt
	}{
		"packages are stamped and sorted": {
			opts: []updater.RunnerOpt{updater.WithConfig(TestConfig)},
			checkFn: func(t *testing.T, pkgs []manager.Package, errs map[string]error) {
				t.Helper()
				require.Len(t, pkgs, 2)
				assert.Equal(t, "jq", pkgs[0].Name)
				assert.Equal(t, "good", pkgs[0].Manager)
				assert.Equal(t, "ripgrep", pkgs[1].Name)
				assert.Equal(t, "good", pkgs[1].Manager)
				assert.Empty(t, errs)
			},
		},
		"list failures are collected": {
			opts: []updater.RunnerOpt{
				updater.WithConfig(TestConfig),
				updater.WithManagerNames("good", "broken"),
			},
			checkFn: func(t *testing.T, pkgs []manager.Package, errs map[string]error) {
				t.Helper()
				assert.Len(t, pkgs, 2)
				require.Contains(t, errs, "broken")
				assert.ErrorIs(t, errs["broken"], manager.ErrListPackages)
			},
		},
		"no active managers": {
			opts: []updater.RunnerOpt{
				updater.WithManagers(testManagers),
				updater.WithRules([]*rule.Rule{rule.MustNew("good", `false`)}),
			},
			wantErr: updater.ErrNoActiveManagers,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner, err := updater.NewRunner(tc.opts...)
			require.NoError(t, err)

			pkgs, errs, err := runner.Outdated(t.Context())

			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			tc.checkFn(t, pkgs, errs)
		})
	}
}

func TestRunner_VersionFiltering(t *testing.T) {
	t.Parallel()

	mixed := manager.MustNew("sh",
		manager.WithDescription("ordered, stale, and unorderable versions"),
		manager.WithList(&execs.Command{
			Command: "sh",
			Args: []string{"-c", `echo '[` +
				`{"name":"fresh","current":"1.0.0","latest":"1.1.0"},` +
				`{"name":"stale","current":"2.0.0","latest":"2.0.0"},` +
				`{"name":"mystery","current":"abc","latest":"def"}]'`},
		}),
		manager.WithUpdate(&execs.Command{Run: "sh -c true"}))

	runner, err := updater.NewRunner(
		updater.WithManagers(map[string]*manager.Manager{"mixed": mixed}),
		updater.WithManagerNames("mixed"),
	)
	require.NoError(t, err)

	pkgs, errs, err := runner.Outdated(t.Context())
	require.NoError(t, err)
	assert.Empty(t, errs)

	names := make([]string, 0, len(pkgs))
	for _, pkg := range pkgs {
		names = append(names, pkg.Name)
	}

	// Equal versions are dropped, unorderable versions are kept and tracked.
	assert.Equal(t, []string{"fresh", "mystery"}, names)

	require.Equal(t, 1, runner.Unsupported().Len())
	assert.Equal(t, "mystery", runner.Unsupported().Entries()[0].Name)
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		checkFn     func(*testing.T, *updater.RunResult)
		opts        []updater.RunnerOpt
		wantStatus  updater.Status
		wantUpdated int
		wantFailed  int
		wantSkipped int
	}{
		"all packages update": {
			opts:        []updater.RunnerOpt{updater.WithConfig(TestConfig)},
			wantStatus:  updater.StatusOK,
			wantUpdated: 2,
			checkFn: func(t *testing.T, result *updater.RunResult) {
				t.Helper()
				require.Contains(t, result.Managers, "good")
				mr := result.Managers["good"]
				require.NoError(t, mr.Err)
				require.Len(t, mr.Packages, 2)
				assert.Equal(t, "ripgrep", mr.Packages[0].Package.Name)
				assert.Equal(t, "updated ripgrep\n", mr.Packages[0].Stdout)
				assert.Len(t, result.Packages(), 2)
			},
		},
		"dry run skips updates": {
			opts: []updater.RunnerOpt{
				updater.WithConfig(TestConfig),
				updater.WithDryRun(true),
			},
			wantStatus:  updater.StatusOK,
			wantSkipped: 2,
			checkFn: func(t *testing.T, result *updater.RunResult) {
				t.Helper()
				for _, pr := range result.Packages() {
					assert.True(t, pr.Skipped)
					assert.Empty(t, pr.Stdout)
				}
			},
		},
		"failing packages make the run partial": {
			opts: []updater.RunnerOpt{
				updater.WithConfig(TestConfig),
				updater.WithManagerNames("good", "flaky"),
			},
			wantStatus:  updater.StatusPartial,
			wantUpdated: 2,
			wantFailed:  1,
			checkFn: func(t *testing.T, result *updater.RunResult) {
				t.Helper()
				require.Contains(t, result.Managers, "flaky")
				require.Len(t, result.Managers["flaky"].Packages, 1)
				assert.ErrorIs(t, result.Managers["flaky"].Packages[0].Err, manager.ErrUpdatePackage)
			},
		},
		"all updates fail": {
			opts: []updater.RunnerOpt{
				updater.WithConfig(TestConfig),
				updater.WithManagerNames("flaky"),
			},
			wantStatus: updater.StatusFailed,
			wantFailed: 1,
		},
		"listing fails for every manager": {
			opts: []updater.RunnerOpt{
				updater.WithConfig(TestConfig),
				updater.WithManagerNames("broken"),
			},
			wantStatus: updater.StatusFailed,
			checkFn: func(t *testing.T, result *updater.RunResult) {
				t.Helper()
				require.Contains(t, result.Managers, "broken")
				assert.ErrorIs(t, result.Managers["broken"].Err, manager.ErrListPackages)
			},
		},
		"package subset": {
			opts: []updater.RunnerOpt{
				updater.WithConfig(TestConfig),
				updater.WithPackages("ripgrep"),
			},
			wantStatus:  updater.StatusOK,
			wantUpdated: 1,
			checkFn: func(t *testing.T, result *updater.RunResult) {
				t.Helper()
				require.Contains(t, result.Managers, "good")
				require.Len(t, result.Managers["good"].Packages, 1)
				assert.Equal(t, "ripgrep", result.Managers["good"].Packages[0].Package.Name)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner, err := updater.NewRunner(tc.opts...)
			require.NoError(t, err)

			result := runner.RunContext(t.Context())
			require.NotNil(t, result)

			assert.Equal(t, tc.wantStatus, result.Status)
			assert.GreaterOrEqual(t, result.Duration(), time.Duration(0))

			updated, failed, skipped := result.Counts()
			assert.Equal(t, tc.wantUpdated, updated)
			assert.Equal(t, tc.wantFailed, failed)
			assert.Equal(t, tc.wantSkipped, skipped)

			if tc.checkFn != nil {
				tc.checkFn(t, result)
			}
		})
	}
}

func TestRunner_Events(t *testing.T) {
	t.Parallel()

	runner, err := updater.NewRunner(updater.WithConfig(TestConfig))
	require.NoError(t, err)

	events := make(chan updater.Event, 64)
	runner.Subscribe(events)

	result := runner.RunContext(t.Context())
	require.Equal(t, updater.StatusOK, result.Status)

	// One run start and end, manager start and end for both managers, and
	// package start and end for both packages of the "good" manager.
	got := collectEventsWithTimeout(events, 10, time.Second)
	require.Len(t, got, 10)

	assert.IsType(t, updater.EventRunStart{}, got[0])
	assert.IsType(t, updater.EventRunEnd{}, got[len(got)-1])

	counts := make(map[string]int)

	for _, evt := range got {
		switch e := evt.(type) {
		case updater.EventRunStart:
			counts["runStart"]++
			assert.ElementsMatch(t, []string{"good", "empty"}, e.Managers)
			assert.False(t, e.DryRun)
		case updater.EventManagerStart:
			counts["managerStart"]++
		case updater.EventManagerEnd:
			counts["managerEnd"]++
			require.NotNil(t, e.Result)
		case updater.EventPackageStart:
			counts["packageStart"]++
			assert.Equal(t, "good", e.Package.Manager)
		case updater.EventPackageEnd:
			counts["packageEnd"]++
			assert.NoError(t, e.Result.Err)
		case updater.EventRunEnd:
			counts["runEnd"]++
			assert.Equal(t, updater.StatusOK, e.Result.Status)
		}
	}

	assert.Equal(t, map[string]int{
		"runStart":     1,
		"managerStart": 2,
		"managerEnd":   2,
		"packageStart": 2,
		"packageEnd":   2,
		"runEnd":       1,
	}, counts)
}

func TestRunner_Cancel(t *testing.T) {
	t.Parallel()

	slow := manager.MustNew("sh",
		manager.WithList(&execs.Command{
			Command: "sh",
			Args:    []string{"-c", `echo '[{"name":"slowpkg","current":"1.0.0","latest":"1.1.0"}]'`},
		}),
		manager.WithUpdate(&execs.Command{
			Command: "sh",
			Args:    []string{"-c", "sleep 5", "{package}"},
		}))

	runner, err := updater.NewRunner(
		updater.WithManagers(map[string]*manager.Manager{"slow": slow}),
		updater.WithRules([]*rule.Rule{rule.MustNew("slow", `true`)}))
	require.NoError(t, err)

	events := make(chan updater.Event, 64)
	runner.Subscribe(events)

	resultCh := make(chan *updater.RunResult, 1)
	go func() {
		resultCh <- runner.RunContext(context.Background())
	}()

	// Give the slow update a moment to start.
	time.Sleep(200 * time.Millisecond)
	runner.Cancel()

	select {
	case result := <-resultCh:
		assert.Equal(t, updater.StatusCanceled, result.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	var sawCancel, sawRunEnd bool

	for len(events) > 0 {
		switch (<-events).(type) {
		case updater.EventCancel:
			sawCancel = true
		case updater.EventRunEnd:
			sawRunEnd = true
		}
	}

	assert.True(t, sawCancel, "expected a cancel event")
	assert.False(t, sawRunEnd, "canceled runs should not emit a run end event")
}

func TestRunner_CleanContext(t *testing.T) {
	t.Parallel()

	newCleanManager := func(clean *execs.Command) *manager.Manager {
		return manager.MustNew("sh",
			manager.WithList(&execs.Command{Command: "sh", Args: []string{"-c", "echo '[]'"}}),
			manager.WithUpdate(&execs.Command{Run: "sh -c true"}),
			manager.WithClean(clean))
	}

	newCleanRunner := func(t *testing.T, m *manager.Manager, opts ...updater.RunnerOpt) *updater.Runner {
		t.Helper()

		opts = append([]updater.RunnerOpt{
			updater.WithManagers(map[string]*manager.Manager{"cleanable": m}),
			updater.WithRules([]*rule.Rule{rule.MustNew("cleanable", `true`)}),
		}, opts...)

		runner, err := updater.NewRunner(opts...)
		require.NoError(t, err)

		return runner
	}

	t.Run("clean runs for active managers", func(t *testing.T) {
		t.Parallel()

		marker := filepath.Join(t.TempDir(), "cleaned")
		m := newCleanManager(&execs.Command{Command: "sh", Args: []string{"-c", "touch " + marker}})
		runner := newCleanRunner(t, m)

		errs := runner.CleanContext(t.Context())
		assert.Empty(t, errs)
		assert.FileExists(t, marker)
	})

	t.Run("dry run reports without executing", func(t *testing.T) {
		t.Parallel()

		marker := filepath.Join(t.TempDir(), "cleaned")
		m := newCleanManager(&execs.Command{Command: "sh", Args: []string{"-c", "touch " + marker}})
		runner := newCleanRunner(t, m, updater.WithDryRun(true))

		errs := runner.CleanContext(t.Context())
		assert.Empty(t, errs)
		assert.NoFileExists(t, marker)
	})

	t.Run("clean failure is collected", func(t *testing.T) {
		t.Parallel()

		m := newCleanManager(&execs.Command{Run: "sh -c 'exit 1'"})
		runner := newCleanRunner(t, m)

		errs := runner.CleanContext(t.Context())
		require.Contains(t, errs, "cleanable")
		assert.ErrorIs(t, errs["cleanable"], manager.ErrCleanPackages)
	})

	t.Run("managers without clean are skipped", func(t *testing.T) {
		t.Parallel()

		runner, err := updater.NewRunner(updater.WithConfig(TestConfig))
		require.NoError(t, err)

		errs := runner.CleanContext(t.Context())
		assert.Empty(t, errs)
	})
}

func TestRunner_String(t *testing.T) {
	t.Parallel()

	runner, err := updater.NewRunner(updater.WithConfig(TestConfig))
	require.NoError(t, err)
	assert.Equal(t, "good, empty", runner.String())

	noMatch, err := updater.NewRunner(
		updater.WithManagers(testManagers),
		updater.WithRules([]*rule.Rule{rule.MustNew("good", `false`)}))
	require.NoError(t, err)
	assert.Equal(t, "no active managers", noMatch.String())
}
