package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/fsutil"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	err := fsutil.WriteFileAtomic(path, []byte("one\n"), 0o600)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(b))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Overwrites keep the new mode and leave no temp files behind.
	err = fsutil.WriteFileAtomic(path, []byte("two\n"), 0o644)
	require.NoError(t, err)

	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")

	require.NoError(t, os.WriteFile(src, []byte("payload\n"), 0o600))

	err := fsutil.CopyFile(src, dst, 0o640)
	require.NoError(t, err)

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload\n", string(b))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	err = fsutil.CopyFile(filepath.Join(dir, "missing.txt"), dst, 0o640)
	require.Error(t, err)
}

func TestBackupFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	backups := filepath.Join(dir, "backups")

	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	first, err := fsutil.BackupFile(path, backups)
	require.NoError(t, err)
	require.FileExists(t, first)
	assert.Contains(t, filepath.Base(first), "config.yaml.")

	b, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(b))

	// A second backup never clobbers the first, even within one second.
	second, err := fsutil.BackupFile(path, backups)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	require.FileExists(t, second)

	_, err = fsutil.BackupFile(filepath.Join(dir, "missing.yaml"), backups)
	require.Error(t, err)
}
