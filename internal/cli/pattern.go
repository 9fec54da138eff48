// Package cli provides name-pattern helpers shared by the keyp commands and
// the MCP server.
package cli

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Errors
var (
	ErrInvalidPattern = errors.New("cli: invalid pattern")
	ErrNoMatch        = errors.New("cli: no secrets match")
)

// IsGlob reports whether pattern contains glob metacharacters.
func IsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// ValidatePattern checks glob syntax.
func ValidatePattern(pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("%w '%s': %v", ErrInvalidPattern, pattern, err)
	}
	return nil
}

// Match reports whether name matches pattern. Patterns without glob
// characters must equal the name exactly.
func Match(pattern, name string) (bool, error) {
	if !IsGlob(pattern) {
		return pattern == name, nil
	}
	ok, err := path.Match(pattern, name)
	if err != nil {
		return false, fmt.Errorf("%w '%s': %v", ErrInvalidPattern, pattern, err)
	}
	return ok, nil
}

// MatchAny reports whether name matches any of patterns.
func MatchAny(patterns []string, name string) (bool, error) {
	for _, p := range patterns {
		ok, err := Match(p, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ExpandPattern returns the names matching pattern, in input order. It
// fails with ErrNoMatch when nothing matches.
func ExpandPattern(pattern string, names []string) ([]string, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}

	var matches []string
	for _, name := range names {
		if ok, _ := Match(pattern, name); ok {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		if IsGlob(pattern) {
			return nil, fmt.Errorf("%w pattern '%s'", ErrNoMatch, pattern)
		}
		return nil, fmt.Errorf("%w '%s'", ErrNoMatch, pattern)
	}
	return matches, nil
}

// ExpandPatterns expands every pattern and returns the unique matches in
// order of first match.
func ExpandPatterns(patterns []string, names []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, names)
		if err != nil {
			return nil, err
		}
		for _, name := range matches {
			if !seen[name] {
				seen[name] = true
				result = append(result, name)
			}
		}
	}
	return result, nil
}

// MapKeys extracts keys from a map and returns them sorted.
func MapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
