package journal_test

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/journal"
	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/updater"
)

// testResult builds a run with one updated, one failed, and one skipped
// package across three managers.
func testResult(started time.Time) *updater.RunResult {
	return &updater.RunResult{
		Started:  started,
		Finished: started.Add(3 * time.Second),
		Status:   updater.StatusPartial,
		Managers: map[string]*updater.ManagerResult{
			"brew": {
				Packages: []updater.PackageResult{
					{
						Package:  manager.Package{Name: "ripgrep", Current: "14.1.0", Latest: "14.1.1", Manager: "brew"},
						Started:  started,
						Finished: started.Add(1500 * time.Millisecond),
						Stdout:   "updated ripgrep\n",
					},
					{
						Package:  manager.Package{Name: "fzf", Current: "0.55.0", Latest: "0.56.0", Manager: "brew"},
						Started:  started,
						Finished: started.Add(2 * time.Second),
						Err:      fmt.Errorf("update fzf: exit status 1"),
						Stderr:   "Error: download failed\nretry later\n",
					},
				},
			},
			"psmodule": {
				Packages: []updater.PackageResult{
					{
						Package: manager.Package{Name: "Pester", Current: "5.6.1", Latest: "5.7.1", Manager: "psmodule"},
						Skipped: true,
					},
				},
			},
			"winget": {},
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	j, err := journal.New(dir)
	require.NoError(t, err)

	require.DirExists(t, filepath.Join(dir, "logs"))
	require.FileExists(t, filepath.Join(dir, "history.db"))
	require.NoError(t, j.Close())

	// Reopening against an existing state directory must not re-migrate.
	j, err = journal.New(dir)
	require.NoError(t, err)
	require.NoError(t, j.Close())
}

func TestJournal_Record(t *testing.T) {
	t.Parallel()

	j, err := journal.New(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, j.Close())
	})

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	run, err := j.Record(t.Context(), "update", testResult(started))
	require.NoError(t, err)

	assert.Equal(t, int64(1), run.ID)
	assert.Equal(t, "update", run.Kind)
	assert.Equal(t, updater.StatusPartial, run.Status)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 3*time.Second, run.Duration())
	require.FileExists(t, run.LogPath)

	text, err := j.Transcript(run)
	require.NoError(t, err)

	assert.Contains(t, text, "dotup update run\n")
	assert.Contains(t, text, "started:  2026-01-02T03:04:05Z\n")
	assert.Contains(t, text, "status:   partial (1 updated, 1 failed, 1 skipped)\n")
	assert.Contains(t, text, "\n[brew]\n")
	assert.Contains(t, text, "ok   ripgrep 14.1.0 -> 14.1.1 (1.5s)\n")
	assert.Contains(t, text, "fail fzf 0.55.0 -> 0.56.0 (2s): update fzf: exit status 1\n")
	assert.Contains(t, text, "  Error: download failed\n  retry later\n")
	assert.Contains(t, text, "skip Pester 5.6.1 -> 5.7.1 (dry run)\n")
	assert.Contains(t, text, "\n[winget]\nup to date\n")
}

func TestJournal_RecordCollision(t *testing.T) {
	t.Parallel()

	j, err := journal.New(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, j.Close())
	})

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first, err := j.Record(t.Context(), "update", testResult(started))
	require.NoError(t, err)

	// Same second, same kind. The second transcript gets a counter suffix.
	second, err := j.Record(t.Context(), "update", testResult(started))
	require.NoError(t, err)

	assert.NotEqual(t, first.LogPath, second.LogPath)
	assert.True(t, strings.HasSuffix(second.LogPath, "_2.log"),
		"expected counter suffix, got %q", second.LogPath)
	require.FileExists(t, first.LogPath)
	require.FileExists(t, second.LogPath)
}

func TestJournal_Runs(t *testing.T) {
	t.Parallel()

	j, err := journal.New(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, j.Close())
	})

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := range 3 {
		_, err := j.Record(t.Context(), "update", testResult(base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	runs, err := j.Runs(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, int64(3), runs[0].ID)
	assert.Equal(t, int64(2), runs[1].ID)
	assert.Equal(t, "update", runs[0].Kind)

	runs, err = j.Runs(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
}

func TestJournal_Run(t *testing.T) {
	t.Parallel()

	j, err := journal.New(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, j.Close())
	})

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rec, err := j.Record(t.Context(), "prune", testResult(started))
	require.NoError(t, err)

	got, err := j.Run(t.Context(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "prune", got.Kind)
	assert.Equal(t, updater.StatusPartial, got.Status)
	assert.Equal(t, rec.LogPath, got.LogPath)
	assert.WithinDuration(t, started, got.Started, 0)
	assert.WithinDuration(t, started.Add(3*time.Second), got.Finished, 0)

	_, err = j.Run(t.Context(), 999)
	require.ErrorIs(t, err, journal.ErrRunNotFound)
}

func TestJournal_Retention(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	j, err := journal.New(dir, journal.WithKeep(2))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, j.Close())
	})

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var first *journal.Run

	for i := range 4 {
		run, err := j.Record(t.Context(), "update", testResult(base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)

		if i == 0 {
			first = run
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// The index keeps the row even after its transcript is pruned.
	got, err := j.Run(t.Context(), first.ID)
	require.NoError(t, err)

	_, err = j.Transcript(got)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestJournal_PruneLogs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	j, err := journal.New(dir, journal.WithKeep(2))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, j.Close())
	})

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := range 2 {
		_, err := j.Record(t.Context(), "update", testResult(base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	_, err = j.Record(t.Context(), "prune", testResult(base))
	require.NoError(t, err)

	// A leftover transcript from an earlier run, plus a file retention
	// must not touch.
	stale := filepath.Join(dir, "logs", "20250101T000000Z_update.log")
	require.NoError(t, os.WriteFile(stale, []byte("stale\n"), 0o600))
	notes := filepath.Join(dir, "logs", "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("keep\n"), 0o600))

	removed, err := j.PruneLogs()
	require.NoError(t, err)

	assert.Equal(t, []string{stale}, removed)
	require.NoFileExists(t, stale)
	require.FileExists(t, notes)

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.Len(t, entries, 4) // Two update transcripts, one prune, notes.txt.
}

func TestDefaultDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "dotup"), journal.DefaultDir())

	t.Setenv("XDG_STATE_HOME", "")

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "state", "dotup"), journal.DefaultDir())
}
