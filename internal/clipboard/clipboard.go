// Package clipboard copies secrets to the system clipboard and clears them
// again after a delay.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// DefaultClearAfter is how long a copied secret stays on the clipboard.
const DefaultClearAfter = 45 * time.Second

// ErrUnsupported is returned when no clipboard utility is available.
var ErrUnsupported = errors.New("clipboard: not supported on this system")

// Backend is the system clipboard.
type Backend interface {
	WriteAll(text string) error
	ReadAll() (string, error)
}

type system struct{}

func (system) WriteAll(text string) error { return clipboard.WriteAll(text) }
func (system) ReadAll() (string, error)   { return clipboard.ReadAll() }

// Manager copies text and later clears it if it is still present.
type Manager struct {
	backend Backend
}

// New returns a manager bound to the system clipboard.
func New() *Manager {
	return &Manager{backend: system{}}
}

// NewWithBackend returns a manager bound to b.
func NewWithBackend(b Backend) *Manager {
	return &Manager{backend: b}
}

// Supported reports whether the system clipboard can be used.
func Supported() bool {
	return !clipboard.Unsupported
}

// Copy places text on the clipboard.
func (m *Manager) Copy(text string) error {
	if _, ok := m.backend.(system); ok && !Supported() {
		return ErrUnsupported
	}
	if err := m.backend.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: failed to write: %w", err)
	}
	return nil
}

// ClearAfter blocks until d has elapsed or ctx is done, then clears the
// clipboard if it still holds text. Cancelling ctx clears early. It reports
// whether the clipboard was cleared.
func (m *Manager) ClearAfter(ctx context.Context, text string, d time.Duration) (bool, error) {
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return m.clearIfUnchanged(text)
}

func (m *Manager) clearIfUnchanged(text string) (bool, error) {
	current, err := m.backend.ReadAll()
	if err != nil {
		return false, fmt.Errorf("clipboard: failed to read: %w", err)
	}
	if current != text {
		return false, nil
	}
	if err := m.backend.WriteAll(""); err != nil {
		return false, fmt.Errorf("clipboard: failed to clear: %w", err)
	}
	return true, nil
}
