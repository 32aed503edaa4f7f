// Package store implements the two file-backed stores feeding prompt
// assembly: the behavior override list (JSON, ≤ 20 short imperative rules)
// and the knowledge text (the admin-editable system message). Both persist
// through atomic temp-file renames so a concurrent reader observes either
// the old or the new content, never a torn write.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomic replaces path with data by writing a temp file in the same
// directory and renaming it over the target. The rename is what makes the
// swap atomic on POSIX filesystems; the temp file never survives an error.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}
