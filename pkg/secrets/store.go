// Package secrets holds the in-memory name→value store that lives inside an
// unlocked vault. Nothing here performs I/O; the vault package owns
// persistence and encryption.
package secrets

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// ConfirmDeleteAll is the token ClearAll requires before removing every secret.
const ConfirmDeleteAll = "CONFIRM_DELETE_ALL"

// SetResult reports whether Set inserted or overwrote a secret.
type SetResult int

const (
	// Created means the name was not present before.
	Created SetResult = iota
	// Updated means an existing value was replaced.
	Updated
)

// String returns "created" or "updated".
func (r SetResult) String() string {
	switch r {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Stats summarises the store for display.
type Stats struct {
	Count          int
	AvgValueLength int
	LongestName    string
}

// Store maps secret names to values. The zero value is not usable; use New
// or FromMap.
type Store struct {
	entries map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[string]string)}
}

// FromMap builds a store from m, copying it. Entries are not validated so
// that a decrypted vault always loads as written.
func FromMap(m map[string]string) *Store {
	s := &Store{entries: make(map[string]string, len(m))}
	for k, v := range m {
		s.entries[k] = v
	}
	return s
}

// Set creates or updates a secret.
func (s *Store) Set(name, value string) (SetResult, error) {
	if isBlank(name) {
		return Created, ErrInvalidName
	}
	if isBlank(value) {
		return Created, ErrInvalidValue
	}

	_, exists := s.entries[name]
	s.entries[name] = value
	if exists {
		return Updated, nil
	}
	return Created, nil
}

// Get returns the value stored under name.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.entries[name]
	return v, ok
}

// Has reports whether name is present.
func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Delete removes name.
func (s *Store) Delete(name string) error {
	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("%w: %q", ErrSecretNotFound, name)
	}
	delete(s.entries, name)
	return nil
}

// Rename moves the value stored under oldName to newName.
func (s *Store) Rename(oldName, newName string) error {
	if isBlank(newName) {
		return ErrInvalidName
	}
	if oldName == newName {
		return ErrSameName
	}
	value, ok := s.entries[oldName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSecretNotFound, oldName)
	}
	if _, taken := s.entries[newName]; taken {
		return fmt.Errorf("%w: %q", ErrSecretExists, newName)
	}

	delete(s.entries, oldName)
	s.entries[newName] = value
	return nil
}

// List returns all names in ascending order.
func (s *Store) List() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search returns the names containing pattern, ignoring case, in ascending order.
func (s *Store) Search(pattern string) []string {
	lower := strings.ToLower(pattern)
	var names []string
	for name := range s.entries {
		if strings.Contains(strings.ToLower(name), lower) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of secrets.
func (s *Store) Count() int {
	return len(s.entries)
}

// ClearAll removes every secret when confirmation equals ConfirmDeleteAll and
// returns how many were removed. Any other token leaves the store untouched.
func (s *Store) ClearAll(confirmation string) (int, error) {
	if confirmation != ConfirmDeleteAll {
		return 0, ErrConfirmationRequired
	}
	n := len(s.entries)
	clear(s.entries)
	return n, nil
}

// Stats computes summary figures over the current contents.
func (s *Store) Stats() Stats {
	st := Stats{Count: len(s.entries)}
	if st.Count == 0 {
		return st
	}

	total := 0
	for _, name := range s.List() {
		total += len([]rune(s.entries[name]))
		if len(name) > len(st.LongestName) {
			st.LongestName = name
		}
	}
	st.AvgValueLength = (total + st.Count/2) / st.Count
	return st
}

// Snapshot returns a copy of the contents.
func (s *Store) Snapshot() map[string]string {
	m := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		m[k] = v
	}
	return m
}

// MarshalJSON encodes the store as a flat JSON object.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.entries)
}

// UnmarshalJSON replaces the contents with a flat JSON object of strings.
func (s *Store) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("secrets: invalid store encoding: %w", err)
	}
	if m == nil {
		m = make(map[string]string)
	}
	s.entries = m
	return nil
}

func isBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}
