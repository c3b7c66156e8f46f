package ui_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/ui"
	"github.com/macropower/dotup/pkg/ui/theme"
	"github.com/macropower/dotup/pkg/uitest"
	"github.com/macropower/dotup/pkg/updater"
)

func newTestProgress(t *testing.T, logPath string) (ui.ProgressModel, *ui.CommonModel) {
	t.Helper()

	kb := ui.NewKeyBinds()
	cm := &ui.CommonModel{
		Cmd:      &fakeRunner{},
		Theme:    theme.Default,
		KeyBinds: kb.Common,
	}

	m := ui.NewProgressModel(ui.ProgressConfig{
		CommonModel: cm,
		KeyBinds:    kb.Progress,
		LogPath:     logPath,
	})
	m.SetSize(80, 24)

	return m, cm
}

func testPackageResult() updater.PackageResult {
	started := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	return updater.PackageResult{
		Started:  started,
		Finished: started.Add(1200 * time.Millisecond),
		Package:  manager.Package{Name: "git", Current: "2.44.0", Latest: "2.45.1", Manager: "brew"},
	}
}

func TestProgressModel_RunLifecycle(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	ctx := t.Context()
	m, _ := newTestProgress(t, "")

	m, _ = m.Update(updater.NewEventRunStart(ctx, []string{"brew"}, false))
	require.False(t, m.Finished())
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "Updating packages from brew")

	m, _ = m.Update(updater.NewEventManagerStart(ctx, "brew"))
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "brew: checking for updates...")

	res := testPackageResult()

	m, _ = m.Update(updater.NewEventPackageStart(ctx, res.Package))

	v := uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, "git")
	v.ContainsPlainText(t, "0/1")

	m, _ = m.Update(updater.NewEventPackageEnd(ctx, res))

	v = uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, theme.IconOK)
	v.ContainsPlainText(t, "2.44.0 → 2.45.1")
	v.ContainsPlainText(t, "(1.2s)")
	v.ContainsPlainText(t, "1/1")

	mr := &updater.ManagerResult{Packages: []updater.PackageResult{res}}
	m, _ = m.Update(updater.NewEventManagerEnd(ctx, "brew", mr))

	rr := &updater.RunResult{
		Started:  res.Started,
		Finished: res.Started.Add(3 * time.Second),
		Status:   updater.StatusOK,
		Managers: map[string]*updater.ManagerResult{"brew": mr},
	}
	m, _ = m.Update(updater.NewEventRunEnd(ctx, rr))

	require.True(t, m.Finished())

	v = uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, "ok · 1 updated · 3.0s")
}

func TestProgressModel_DryRun(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	ctx := t.Context()
	m, _ := newTestProgress(t, "")

	m, _ = m.Update(updater.NewEventRunStart(ctx, []string{"brew"}, true))
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "Previewing updates from brew")

	res := testPackageResult()
	res.Skipped = true

	m, _ = m.Update(updater.NewEventPackageStart(ctx, res.Package))
	m, _ = m.Update(updater.NewEventPackageEnd(ctx, res))

	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "skipped")
}

func TestProgressModel_PackageFailure(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	ctx := t.Context()
	m, _ := newTestProgress(t, "")

	m, _ = m.Update(updater.NewEventRunStart(ctx, []string{"brew"}, false))

	res := testPackageResult()
	res.Err = errors.New("exit status 1\nsome detail")

	m, _ = m.Update(updater.NewEventPackageStart(ctx, res.Package))
	m, _ = m.Update(updater.NewEventPackageEnd(ctx, res))

	v := uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, theme.IconFail)
	v.ContainsPlainText(t, "exit status 1")

	rr := &updater.RunResult{
		Started:  res.Started,
		Finished: res.Started.Add(time.Second),
		Status:   updater.StatusFailed,
		Managers: map[string]*updater.ManagerResult{
			"brew": {Packages: []updater.PackageResult{res}},
		},
	}
	m, _ = m.Update(updater.NewEventRunEnd(ctx, rr))

	v = uitest.NewANSIStyleVerifier(m.View())
	v.ContainsPlainText(t, "failed")
	v.ContainsPlainText(t, "1 failed")
}

func TestProgressModel_ManagerFailure(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	ctx := t.Context()
	m, _ := newTestProgress(t, "")

	m, _ = m.Update(updater.NewEventRunStart(ctx, []string{"apt"}, false))
	m, _ = m.Update(updater.NewEventManagerStart(ctx, "apt"))

	mr := &updater.ManagerResult{Err: errors.New("exit status 100")}
	m, _ = m.Update(updater.NewEventManagerEnd(ctx, "apt", mr))

	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "apt: exit status 100")
}

func TestProgressModel_Cancel(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	ctx := t.Context()
	m, _ := newTestProgress(t, "")

	m, _ = m.Update(updater.NewEventRunStart(ctx, []string{"brew"}, false))
	m, _ = m.Update(updater.NewEventPackageStart(ctx, testPackageResult().Package))
	require.False(t, m.Finished())

	// A canceled run ends with a cancel event instead of a run end event.
	m, _ = m.Update(updater.NewEventCancel(ctx))

	require.True(t, m.Finished())
	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "canceled")
}

func TestProgressModel_LogPath(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	ctx := t.Context()
	m, _ := newTestProgress(t, "/tmp/dotup/2025-01-01T12:00:00.log")

	m, _ = m.Update(updater.NewEventRunStart(ctx, []string{"brew"}, false))

	rr := &updater.RunResult{
		Status:   updater.StatusOK,
		Managers: map[string]*updater.ManagerResult{},
	}
	m, _ = m.Update(updater.NewEventRunEnd(ctx, rr))

	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "log: /tmp/dotup/2025-01-01T12:00:00.log")
}

func TestProgressModel_CopyLogPath(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	tcs := map[string]struct {
		logPath  string
		expected string
	}{
		"copies the log path": {
			logPath:  "/tmp/dotup/run.log",
			expected: "copied log path",
		},
		"errors without a log file": {
			logPath:  "",
			expected: "no log file for this run",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, cm := newTestProgress(t, tc.logPath)

			_, cmd := m.Update(keyRunes("c"))
			require.NotNil(t, cmd)

			assert.True(t, cm.ShowStatusMessage)
			assert.Equal(t, tc.expected, cm.StatusMessage.Message)
		})
	}
}

func TestProgressModel_ToggleHelp(t *testing.T) {
	t.Parallel()
	uitest.SetupColorProfile()

	m, _ := newTestProgress(t, "")
	require.False(t, m.ShowHelp)

	m, _ = m.Update(keyRunes("?"))
	assert.True(t, m.ShowHelp)

	uitest.NewANSIStyleVerifier(m.View()).ContainsPlainText(t, "copy log path")

	m, _ = m.Update(keyRunes("?"))
	assert.False(t, m.ShowHelp)
}
