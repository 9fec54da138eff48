package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DuplicateGroup names secrets that hold the same value.
type DuplicateGroup struct {
	Names []string `json:"names"`
	Count int      `json:"count"`
}

// FindDuplicates groups names whose values are equal after trimming and
// Unicode NFC normalisation. Values are compared through HMAC-SHA256 under a
// key generated for this call only, so no hash outlives it. Empty values are
// ignored. Groups are ordered by size, then by first name.
func FindDuplicates(values map[string]string) ([]DuplicateGroup, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("security: failed to generate comparison key: %w", err)
	}

	byHash := make(map[string][]string)
	for name, value := range values {
		v := normalizeValue(value)
		if v == "" {
			continue
		}
		h := valueHash(v, key)
		byHash[h] = append(byHash[h], name)
	}

	var groups []DuplicateGroup
	for _, names := range byHash {
		if len(names) < 2 {
			continue
		}
		sort.Strings(names)
		groups = append(groups, DuplicateGroup{Names: names, Count: len(names)})
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Names[0] < groups[j].Names[0]
	})
	return groups, nil
}

func valueHash(value string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeValue(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
