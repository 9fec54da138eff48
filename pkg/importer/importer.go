// Package importer parses secrets exported from keyp itself, dotenv files
// and other password managers into flat name/value pairs.
//
// Multi-field items (a login with username, password and TOTP) are
// flattened: the item's primary value is stored under the item's key and
// every other field under "<key>_<field>".
package importer

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Source identifies an import format.
type Source string

const (
	SourceKeyp      Source = "keyp"
	SourceDotenv    Source = "dotenv"
	Source1Password Source = "1password"
	SourceBitwarden Source = "bitwarden"
	SourceLastPass  Source = "lastpass"
)

// MaxKeyLength bounds sanitized key names.
const MaxKeyLength = 128

// Errors
var (
	ErrInvalidFormat     = errors.New("importer: invalid import file")
	ErrEncryptedExport   = errors.New("importer: encrypted vault files cannot be imported; export as plaintext")
	ErrUnsupportedSource = errors.New("importer: unsupported import source")
)

// ImportedSecret is one name/value pair ready for the store.
type ImportedSecret struct {
	Name  string
	Value string
	// Item is the name of the record the value came from, as written in the
	// source file.
	Item string
}

// ImportResult contains the results of an import operation.
type ImportResult struct {
	Secrets  []*ImportedSecret
	Warnings []string
	Skipped  []SkippedItem
}

// SkippedItem represents an item that was skipped during import.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

// Map returns the secrets as a name to value map.
func (r *ImportResult) Map() map[string]string {
	m := make(map[string]string, len(r.Secrets))
	for _, s := range r.Secrets {
		m[s.Name] = s.Value
	}
	return m
}

// Parser parses one import format.
type Parser interface {
	Parse(data []byte, opts ParseOptions) (*ImportResult, error)
	Source() Source
}

// ParseOptions contains options for parsing.
type ParseOptions struct {
	// PreserveCase prevents lowercasing of sanitized key names. Names from
	// keyp and dotenv files are never rewritten.
	PreserveCase bool
}

func newResult() *ImportResult {
	return &ImportResult{
		Secrets:  make([]*ImportedSecret, 0),
		Warnings: make([]string, 0),
		Skipped:  make([]SkippedItem, 0),
	}
}

// item is a multi-field record before flattening.
type item struct {
	key     string
	origin  string
	primary string
	fields  []field
}

type field struct {
	name  string
	value string
}

func (it *item) add(name, value string) {
	if value != "" {
		it.fields = append(it.fields, field{name: name, value: value})
	}
}

func (it *item) empty() bool {
	return it.primary == "" && len(it.fields) == 0
}

// flatten dedupes item keys, then expands each item into secrets.
func flatten(result *ImportResult, items []*item) {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.key
	}
	keys = dedupe(keys)

	for i, it := range items {
		key := keys[i]
		if it.primary != "" {
			result.Secrets = append(result.Secrets, &ImportedSecret{Name: key, Value: it.primary, Item: it.origin})
		}
		for _, f := range it.fields {
			result.Secrets = append(result.Secrets, &ImportedSecret{Name: key + "_" + f.name, Value: f.value, Item: it.origin})
		}
	}
	DeduplicateKeys(result.Secrets)
}

// keyNameRegex matches characters that are not allowed in sanitized keys.
var keyNameRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeKeyName turns an item title into a key: NFC-normalize, spaces to
// underscores, drop anything outside [A-Za-z0-9_-], truncate to MaxKeyLength
// and lowercase unless preserveCase is set.
func SanitizeKeyName(name string, preserveCase bool) string {
	if name == "" {
		return ""
	}

	name = norm.NFC.String(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = keyNameRegex.ReplaceAllString(name, "")

	if len(name) > MaxKeyLength {
		name = name[:MaxKeyLength]
	}
	if !preserveCase {
		name = strings.ToLower(name)
	}
	return name
}

// DeduplicateKeys makes names unique, case-insensitively, by appending _1,
// _2 and so on to repeats.
func DeduplicateKeys(secrets []*ImportedSecret) {
	names := make([]string, len(secrets))
	for i, s := range secrets {
		names[i] = s.Name
	}
	for i, name := range dedupe(names) {
		secrets[i].Name = name
	}
}

func dedupe(keys []string) []string {
	out := make([]string, len(keys))
	seen := make(map[string]int)
	for i, key := range keys {
		count := seen[strings.ToLower(key)]
		out[i] = key
		if count > 0 {
			out[i] = fmt.Sprintf("%s_%d", key, count)
		}
		seen[strings.ToLower(key)] = count + 1
	}
	return out
}

// GenerateFallbackKey names an untitled item after its URL's hostname, or
// imported_item_N when there is none.
func GenerateFallbackKey(url string, counter int) string {
	if url != "" {
		if hostname := extractHostname(url); hostname != "" {
			return hostname
		}
	}
	return fmt.Sprintf("imported_item_%d", counter)
}

func extractHostname(urlStr string) string {
	urlStr = strings.TrimPrefix(urlStr, "https://")
	urlStr = strings.TrimPrefix(urlStr, "http://")

	if idx := strings.Index(urlStr, "/"); idx != -1 {
		urlStr = urlStr[:idx]
	}
	if idx := strings.Index(urlStr, ":"); idx != -1 {
		urlStr = urlStr[:idx]
	}
	return strings.TrimPrefix(urlStr, "www.")
}

// DecodeHTMLEntities decodes the entities LastPass writes into its CSV.
func DecodeHTMLEntities(s string) string {
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&apos;", "'")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// IsEmptyOrWhitespace checks if a string is empty or contains only whitespace.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// GetParser returns a parser for the given source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case SourceKeyp:
		return &KeypParser{}, nil
	case SourceDotenv:
		return &DotenvParser{}, nil
	case Source1Password:
		return &OnePasswordParser{}, nil
	case SourceBitwarden:
		return &BitwardenParser{}, nil
	case SourceLastPass:
		return &LastPassParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	}
}

// ValidSources returns a list of valid source names.
func ValidSources() []string {
	return []string{
		string(SourceKeyp),
		string(SourceDotenv),
		string(Source1Password),
		string(SourceBitwarden),
		string(SourceLastPass),
	}
}

// Detect guesses the format of an import file from its name and contents.
func Detect(filename string, data []byte) Source {
	base := strings.ToLower(filepath.Base(filename))
	ext := filepath.Ext(base)
	trimmed := strings.TrimSpace(string(data))

	switch {
	case ext == ".env" || strings.HasPrefix(base, ".env"):
		return SourceDotenv
	case ext == ".csv":
		header, _, _ := strings.Cut(strings.TrimPrefix(trimmed, "\ufeff"), "\n")
		if strings.Contains(header, "Title") && strings.Contains(header, "Website") {
			return Source1Password
		}
		return SourceLastPass
	case strings.HasPrefix(trimmed, "{"):
		if strings.Contains(trimmed, `"items"`) {
			return SourceBitwarden
		}
		return SourceKeyp
	default:
		return SourceDotenv
	}
}

// sortedKeys returns m's keys in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
