// Package fsutil provides the file primitives shared by the deploy, shell,
// and self-update paths: atomic writes and timestamped backups.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// stampFormat is the compact RFC 3339 form used in backup names. Lexical
// order matches chronological order.
const stampFormat = "20060102T150405Z"

// WriteFileAtomic writes data to path via a temp file in the same
// directory followed by a rename, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()

	ok := false

	defer func() {
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()

	if werr != nil {
		return fmt.Errorf("write temp file: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close temp file: %w", cerr)
	}

	err = os.Chmod(tmpPath, mode)
	if err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	ok = true

	return nil
}

// CopyFile copies src to dst atomically, setting dst's mode.
func CopyFile(src, dst string, mode fs.FileMode) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	return WriteFileAtomic(dst, b, mode)
}

// BackupFile copies path into dir under a timestamped name and returns the
// backup path. Same-second backups of the same file get a counter suffix.
func BackupFile(path, dir string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	base := fmt.Sprintf("%s.%s", filepath.Base(path), time.Now().UTC().Format(stampFormat))

	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s_%d", base, i)
		}

		backupPath := filepath.Join(dir, name)

		f, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create backup: %w", err)
		}

		_, werr := f.Write(b)
		cerr := f.Close()

		if werr != nil {
			return "", fmt.Errorf("write backup: %w", werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("write backup: %w", cerr)
		}

		return backupPath, nil
	}
}
