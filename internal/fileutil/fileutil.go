// Package fileutil provides the whole-file write primitives shared by the
// vault, backup, audit and config layers.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// Permission modes used for everything keyp writes.
const (
	FileMode = 0600 // Owner read/write only
	DirMode  = 0700 // Owner read/write/execute only
)

// EnsureDir creates dir (and parents) with DirMode if it does not exist.
func EnsureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("fileutil: directory not specified")
	}
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("fileutil: failed to create directory: %w", err)
	}
	return nil
}

// WriteAtomic replaces path with data. The bytes are written to a temp file
// in the same directory, synced, chmod'ed to perm and renamed over path, so
// readers see either the old or the new content.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("fileutil: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("fileutil: failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("fileutil: failed to chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fileutil: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fileutil: failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fileutil: failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// InsecurePerm reports whether mode grants any group or other access.
func InsecurePerm(mode os.FileMode) bool {
	return mode.Perm()&0077 != 0
}
