// Package backup keeps point-in-time copies of the vault file.
//
// Snapshots are byte-for-byte copies of the encrypted record, so they are
// protected by the same master password that was current when they were
// taken. They live in a single directory as vault-<UTC timestamp>.json
// (0600) and are pruned oldest first once more than Keep exist.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forest6511/keyp/internal/fileutil"
)

const (
	// DefaultKeep is the number of snapshots retained when none is configured.
	DefaultKeep = 10

	filePrefix = "vault-"
	fileSuffix = ".json"

	// timeLayout sorts lexically in time order.
	timeLayout = "20060102T150405.000000000Z"
)

// Snapshot describes one backup file.
type Snapshot struct {
	Name      string
	Path      string
	CreatedAt time.Time
	Size      int64
}

// Manager creates, lists, restores and prunes snapshots in one directory.
type Manager struct {
	dir  string
	keep int
	now  func() time.Time
}

// NewManager returns a manager for dir keeping at most keep snapshots.
// A keep of zero or less disables pruning.
func NewManager(dir string, keep int) *Manager {
	return &Manager{dir: dir, keep: keep, now: time.Now}
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Create writes data as a new snapshot and prunes old ones.
func (m *Manager) Create(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, ErrEmptySnapshot
	}
	if err := fileutil.EnsureDir(m.dir); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	if err := fileutil.CheckFree(m.dir, len(data)); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}

	created := m.now().UTC()
	name := filePrefix + created.Format(timeLayout) + fileSuffix
	path := filepath.Join(m.dir, name)
	if err := fileutil.WriteAtomic(path, data, fileutil.FileMode); err != nil {
		return nil, fmt.Errorf("backup: failed to write snapshot: %w", err)
	}

	if _, err := m.Prune(); err != nil {
		return nil, err
	}
	return &Snapshot{Name: name, Path: path, CreatedAt: created, Size: int64(len(data))}, nil
}

// List returns all snapshots, newest first. A missing directory yields an
// empty list.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read directory: %w", err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := parseName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{
			Name:      e.Name(),
			Path:      filepath.Join(m.dir, e.Name()),
			CreatedAt: created,
			Size:      info.Size(),
		})
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name > snaps[j].Name })
	return snaps, nil
}

// Latest returns the newest snapshot.
func (m *Manager) Latest() (*Snapshot, error) {
	snaps, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNoBackups
	}
	return &snaps[0], nil
}

// Read returns the contents of the named snapshot.
func (m *Manager) Read(name string) ([]byte, error) {
	if _, ok := parseName(name); !ok || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	data, err := os.ReadFile(filepath.Join(m.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read snapshot: %w", err)
	}
	return data, nil
}

// Restore copies the named snapshot over target after validate accepts its
// contents. The target is replaced atomically; on any error it is untouched.
func (m *Manager) Restore(name, target string, validate func([]byte) error) error {
	data, err := m.Read(name)
	if err != nil {
		return err
	}
	if validate != nil {
		if err := validate(data); err != nil {
			return fmt.Errorf("backup: snapshot %s rejected: %w", name, err)
		}
	}
	if err := fileutil.WriteAtomic(target, data, fileutil.FileMode); err != nil {
		return fmt.Errorf("backup: failed to restore snapshot: %w", err)
	}
	return nil
}

// Prune removes the oldest snapshots beyond the keep limit and returns how
// many were removed.
func (m *Manager) Prune() (int, error) {
	if m.keep <= 0 {
		return 0, nil
	}
	snaps, err := m.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, s := range snaps[min(m.keep, len(snaps)):] {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("backup: failed to remove %s: %w", s.Name, err)
		}
		removed++
	}
	return removed, nil
}

func parseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
