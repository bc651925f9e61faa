// Package atomicfile replaces whole files so that a crash at any point leaves
// either the old content or the new content at the canonical path.
//
// The install sequence is:
//
//  1. write the new content to <path>.tmp and fsync it
//  2. rename <path> to <path>.bak
//  3. rename <path>.tmp to <path>
//  4. delete <path>.bak
//
// A crash between steps 2 and 3 leaves only the backup; Restore puts it back.
package atomicfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// TempPath returns the staging file name used for path.
func TempPath(path string) string { return path + ".tmp" }

// BackupPath returns the backup file name used for path.
func BackupPath(path string) string { return path + ".bak" }

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	return Replace(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Replace streams new content for path through write and installs it.
// If write fails the staging file is removed and path is untouched.
func Replace(path string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp := TempPath(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	return Install(tmp, path)
}

// Install moves a fully written tmp file over path using the
// backup-rename, install-rename, backup-delete sequence.
func Install(tmp, path string) error {
	bak := BackupPath(path)

	// A backup left by an earlier crash is stale once a new file is staged.
	if err := os.Remove(bak); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale backup %s: %w", bak, err)
	}

	hadOriginal := true
	if err := os.Rename(path, bak); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			os.Remove(tmp)
			return fmt.Errorf("backup %s: %w", path, err)
		}
		hadOriginal = false
	}

	if err := os.Rename(tmp, path); err != nil {
		if hadOriginal {
			os.Rename(bak, path)
		}
		os.Remove(tmp)
		return fmt.Errorf("install %s: %w", path, err)
	}

	if hadOriginal {
		if err := os.Remove(bak); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove backup %s: %w", bak, err)
		}
	}

	syncDir(filepath.Dir(path))
	return nil
}

// Restore repairs the state left by a crash during Install. When path is
// missing and a backup exists, the backup is renamed back into place. A
// leftover staging file is always discarded. It reports whether a backup
// was restored.
func Restore(path string) (bool, error) {
	if err := os.Remove(TempPath(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove staging file for %s: %w", path, err)
	}

	bak := BackupPath(path)
	if _, err := os.Stat(path); err == nil {
		// Install finished its rename; only the backup delete was lost.
		if err := os.Remove(bak); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("remove backup %s: %w", bak, err)
		}
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.Rename(bak, path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("restore %s: %w", path, err)
	}
	return true, nil
}

// syncDir makes a rename durable on filesystems that need it. Failures are
// ignored: the data file itself is already synced.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
