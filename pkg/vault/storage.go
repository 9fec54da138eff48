package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest6511/keyp/internal/fileutil"
)

// Storage reads and replaces the serialized vault record as a whole.
type Storage interface {
	// Path identifies the vault; it is informational for non-file storage.
	Path() string
	// Exists reports whether a record is present.
	Exists() bool
	// Read returns the record bytes, or ErrVaultNotFound.
	Read() ([]byte, error)
	// Write replaces the record. Readers must observe either the old or the
	// new bytes, never a mix.
	Write(data []byte) error
}

// FileStorage keeps the record in a single file.
type FileStorage struct {
	path string
}

// NewFileStorage returns file storage at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the file path.
func (s *FileStorage) Path() string {
	return s.path
}

// Exists reports whether the file is present.
func (s *FileStorage) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the whole file.
func (s *FileStorage) Read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrVaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read vault file: %w", err)
	}
	return data, nil
}

// Write checks free space and atomically replaces the file with mode 0600,
// creating the parent directory with mode 0700 if needed.
func (s *FileStorage) Write(data []byte) error {
	if err := fileutil.EnsureDir(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := fileutil.CheckFree(filepath.Dir(s.path), len(data)); err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(s.path, data, fileutil.FileMode); err != nil {
		return fmt.Errorf("vault: failed to write vault file: %w", err)
	}
	return nil
}

// Remove deletes the file. A missing file is not an error.
func (s *FileStorage) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vault: failed to remove vault file: %w", err)
	}
	return nil
}
