package manager_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/execs"
	"github.com/macropower/dotup/pkg/manager"
)

type fakeExecutor struct {
	result *execs.Result
	err    error
	calls  int
}

func (f *fakeExecutor) Exec(_ context.Context, _ string) (*execs.Result, error) {
	f.calls++

	return f.result, f.err
}

func (f *fakeExecutor) ExecWithStdin(_ context.Context, _ string, _ []byte) (*execs.Result, error) {
	f.calls++

	return f.result, f.err
}

func (f *fakeExecutor) String() string {
	return "fake"
}

func TestNew(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		wantErr error
		bin     string
		opts    []manager.ManagerOpt
		wantAny bool
	}{
		"valid manager": {
			bin: "brew",
			opts: []manager.ManagerOpt{
				manager.WithList(&execs.Command{Run: "brew outdated --json=v2"}),
				manager.WithUpdate(&execs.Command{Run: "brew upgrade {package}"}),
			},
		},
		"missing list command": {
			bin: "brew",
			opts: []manager.ManagerOpt{
				manager.WithUpdate(&execs.Command{Run: "brew upgrade"}),
			},
			wantErr: manager.ErrNoListCommand,
		},
		"missing update command": {
			bin: "brew",
			opts: []manager.ManagerOpt{
				manager.WithList(&execs.Command{Run: "brew outdated"}),
			},
			wantErr: manager.ErrNoUpdateCommand,
		},
		"invalid run string": {
			bin: "brew",
			opts: []manager.ManagerOpt{
				manager.WithList(&execs.Command{Run: `brew "unterminated`}),
				manager.WithUpdate(&execs.Command{Run: "brew upgrade"}),
			},
			wantAny: true,
		},
		"invalid parser pattern": {
			bin: "winget",
			opts: []manager.ManagerOpt{
				manager.WithList(&execs.Command{Run: "winget upgrade"}),
				manager.WithUpdate(&execs.Command{Run: "winget upgrade --id {package}"}),
				manager.WithParser(&manager.Parser{Format: manager.FormatLines, Pattern: "("}),
			},
			wantAny: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := manager.New(tc.bin, tc.opts...)

			if tc.wantAny || tc.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, m)

				if tc.wantErr != nil {
					require.ErrorIs(t, err, tc.wantErr)
				}

				return
			}

			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, tc.bin, m.Bin)
		})
	}
}

func TestNew_DefaultsBinFromList(t *testing.T) {
	t.Parallel()

	m, err := manager.New("",
		manager.WithList(&execs.Command{Run: "apt list --upgradable"}),
		manager.WithUpdate(&execs.Command{Run: "apt-get install --only-upgrade -y"}),
	)

	require.NoError(t, err)
	assert.Equal(t, "apt", m.Bin)
}

func TestMustNew(t *testing.T) {
	t.Parallel()

	t.Run("valid manager", func(t *testing.T) {
		t.Parallel()

		m := manager.MustNew("brew",
			manager.WithDescription("Homebrew formulae and casks"),
			manager.WithList(&execs.Command{Run: "brew outdated --json=v2"}),
			manager.WithUpdate(&execs.Command{Run: "brew upgrade {package}"}),
		)

		require.NotNil(t, m)
		assert.Equal(t, "Homebrew formulae and casks", m.Description)
	})

	t.Run("invalid manager panics", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			manager.MustNew("brew")
		})
	})
}

func TestManager_Outdated(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		listCmd *execs.Command
		wantErr error
		want    []manager.Package
	}{
		"parses json list output": {
			listCmd: &execs.Command{
				Command: "sh",
				Args:    []string{"-c", `echo '[{"name":"ripgrep","current":"14.1.0","latest":"14.1.1"}]'`},
			},
			want: []manager.Package{
				{Name: "ripgrep", Current: "14.1.0", Latest: "14.1.1"},
			},
		},
		"drops up to date packages": {
			listCmd: &execs.Command{
				Command: "sh",
				Args: []string{
					"-c",
					`echo '[{"name":"fzf","current":"0.54.0","latest":"0.54.0"},{"name":"jq","current":"1.7.1","latest":"1.8.0"}]'`,
				},
			},
			want: []manager.Package{
				{Name: "jq", Current: "1.7.1", Latest: "1.8.0"},
			},
		},
		"empty list output": {
			listCmd: &execs.Command{
				Command: "sh",
				Args:    []string{"-c", "true"},
			},
			want: []manager.Package{},
		},
		"list command fails": {
			listCmd: &execs.Command{
				Command: "sh",
				Args:    []string{"-c", "exit 1"},
			},
			wantErr: manager.ErrListPackages,
		},
		"unparseable list output": {
			listCmd: &execs.Command{
				Command: "sh",
				Args:    []string{"-c", "echo 'not: [json'"},
			},
			wantErr: manager.ErrListPackages,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := manager.New("sh",
				manager.WithList(tc.listCmd),
				manager.WithUpdate(&execs.Command{Run: "sh -c true"}),
			)
			require.NoError(t, err)

			pkgs, err := m.Outdated(t.Context())

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, pkgs)
		})
	}
}

func TestManager_UpdatePackage(t *testing.T) {
	t.Parallel()

	t.Run("substitutes package placeholder", func(t *testing.T) {
		t.Parallel()

		m, err := manager.New("sh",
			manager.WithList(&execs.Command{Run: "sh -c true"}),
			manager.WithUpdate(&execs.Command{
				Command: "sh",
				Args:    []string{"-c", "echo {package}"},
			}),
		)
		require.NoError(t, err)

		result, err := m.UpdatePackage(t.Context(), "ripgrep")

		require.NoError(t, err)
		assert.Equal(t, "ripgrep\n", result.Stdout)
	})

	t.Run("appends package without placeholder", func(t *testing.T) {
		t.Parallel()

		m, err := manager.New("sh",
			manager.WithList(&execs.Command{Run: "sh -c true"}),
			manager.WithUpdate(&execs.Command{
				Command: "sh",
				Args:    []string{"-c", `echo "$0"`},
			}),
		)
		require.NoError(t, err)

		result, err := m.UpdatePackage(t.Context(), "ripgrep")

		require.NoError(t, err)
		assert.Equal(t, "ripgrep\n", result.Stdout)
	})

	t.Run("update command fails", func(t *testing.T) {
		t.Parallel()

		m, err := manager.New("sh",
			manager.WithList(&execs.Command{Run: "sh -c true"}),
			manager.WithUpdate(&execs.Command{Run: "sh -c 'exit 2'"}),
		)
		require.NoError(t, err)

		_, err = m.UpdatePackage(t.Context(), "ripgrep")

		require.ErrorIs(t, err, manager.ErrUpdatePackage)
	})

	t.Run("uses injected executor factory", func(t *testing.T) {
		t.Parallel()

		var captured []execs.Command

		fake := &fakeExecutor{result: &execs.Result{Stdout: "ok"}}

		m, err := manager.New("brew",
			manager.WithList(&execs.Command{Run: "brew outdated --json=v2"}),
			manager.WithUpdate(&execs.Command{Run: "brew upgrade {package}"}),
			manager.WithExecutorFactory(func(cmd execs.Command, _ ...string) manager.Executor {
				captured = append(captured, cmd)

				return fake
			}),
		)
		require.NoError(t, err)

		_, err = m.UpdatePackage(t.Context(), "jq")

		require.NoError(t, err)
		require.NotEmpty(t, captured)

		last := captured[len(captured)-1]
		assert.Equal(t, "brew", last.Command)
		assert.Equal(t, []string{"upgrade", "jq"}, last.Args)
	})
}

func TestManager_CleanVersions(t *testing.T) {
	t.Parallel()

	t.Run("runs clean command", func(t *testing.T) {
		t.Parallel()

		m, err := manager.New("sh",
			manager.WithList(&execs.Command{Run: "sh -c true"}),
			manager.WithUpdate(&execs.Command{Run: "sh -c true"}),
			manager.WithClean(&execs.Command{Run: "sh -c 'echo cleaned'"}),
		)
		require.NoError(t, err)
		assert.True(t, m.HasClean())

		result, err := m.CleanVersions(t.Context())

		require.NoError(t, err)
		assert.Equal(t, "cleaned\n", result.Stdout)
	})

	t.Run("no clean command", func(t *testing.T) {
		t.Parallel()

		m, err := manager.New("sh",
			manager.WithList(&execs.Command{Run: "sh -c true"}),
			manager.WithUpdate(&execs.Command{Run: "sh -c true"}),
		)
		require.NoError(t, err)
		assert.False(t, m.HasClean())

		_, err = m.CleanVersions(t.Context())

		require.ErrorIs(t, err, manager.ErrNoCleanCommand)
	})
}

func TestManager_EnsureInit(t *testing.T) {
	t.Parallel()

	t.Run("failing probe disables the manager", func(t *testing.T) {
		t.Parallel()

		m, err := manager.New("sh",
			manager.WithInit(&execs.Command{Run: "sh -c 'exit 3'"}),
			manager.WithList(&execs.Command{Run: "sh -c 'echo []'"}),
			manager.WithUpdate(&execs.Command{Run: "sh -c true"}),
		)
		require.NoError(t, err)

		_, err = m.Outdated(t.Context())
		require.ErrorIs(t, err, manager.ErrInitProbe)

		_, err = m.UpdatePackage(t.Context(), "jq")
		require.ErrorIs(t, err, manager.ErrInitProbe)
	})

	t.Run("probe runs once", func(t *testing.T) {
		t.Parallel()

		probe := &fakeExecutor{result: &execs.Result{Stdout: "7.4.2\n"}}
		list := &fakeExecutor{result: &execs.Result{Stdout: "[]"}}

		m, err := manager.New("pwsh",
			manager.WithInit(&execs.Command{Run: "pwsh -NoProfile -Command $PSVersionTable.PSVersion.ToString()"}),
			manager.WithList(&execs.Command{Run: "pwsh -NoProfile -Command Get-OutdatedJson"}),
			manager.WithUpdate(&execs.Command{Run: "pwsh -NoProfile -Command Update-Module"}),
			manager.WithExecutorFactory(func(cmd execs.Command, _ ...string) manager.Executor {
				if cmd.Args[len(cmd.Args)-1] == "$PSVersionTable.PSVersion.ToString()" {
					return probe
				}

				return list
			}),
		)
		require.NoError(t, err)

		_, err = m.Outdated(t.Context())
		require.NoError(t, err)

		_, err = m.Outdated(t.Context())
		require.NoError(t, err)

		assert.Equal(t, 1, probe.calls)
		assert.Equal(t, 2, list.calls)
	})

	t.Run("no probe configured", func(t *testing.T) {
		t.Parallel()

		m, err := manager.New("sh",
			manager.WithList(&execs.Command{Run: "sh -c 'echo []'"}),
			manager.WithUpdate(&execs.Command{Run: "sh -c true"}),
		)
		require.NoError(t, err)

		require.NoError(t, m.EnsureInit(t.Context()))
	})
}

func TestManager_HasBin(t *testing.T) {
	t.Parallel()

	t.Run("binary on path", func(t *testing.T) {
		t.Parallel()

		m, err := manager.New("sh",
			manager.WithList(&execs.Command{Run: "sh -c true"}),
			manager.WithUpdate(&execs.Command{Run: "sh -c true"}),
		)
		require.NoError(t, err)

		assert.True(t, m.HasBin())
	})

	t.Run("binary missing", func(t *testing.T) {
		t.Parallel()

		m, err := manager.New("dotup-no-such-binary-42",
			manager.WithList(&execs.Command{Run: "dotup-no-such-binary-42 list"}),
			manager.WithUpdate(&execs.Command{Run: "dotup-no-such-binary-42 update"}),
		)
		require.NoError(t, err)

		assert.False(t, m.HasBin())
	})
}
