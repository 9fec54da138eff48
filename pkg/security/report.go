package security

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// IssueType classifies a finding.
type IssueType string

const (
	IssueWeakValue IssueType = "weak_value"
	IssueDuplicate IssueType = "duplicate_value"
	IssueEmpty     IssueType = "empty_value"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Issue is one finding. It never carries the secret value.
type Issue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// Report summarises the health of a set of secrets.
type Report struct {
	Total      int              `json:"total"`
	Score      int              `json:"score"` // 0-100
	Strength   map[string]int   `json:"strength"`
	Duplicates []DuplicateGroup `json:"duplicates,omitempty"`
	Issues     []Issue          `json:"issues,omitempty"`
}

// Analyze rates every value and looks for reuse. The score is the average
// strength points of non-empty values, scaled to 100, minus 10 per secret
// involved in a duplicate group beyond the first of each group. An empty set
// scores 100.
func Analyze(values map[string]string) (*Report, error) {
	r := &Report{
		Total:    len(values),
		Strength: map[string]int{},
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	points, rated := 0, 0
	for _, name := range names {
		value := values[name]
		if normalizeValue(value) == "" {
			r.Issues = append(r.Issues, Issue{
				Type:        IssueEmpty,
				Severity:    SeverityInfo,
				Name:        name,
				Description: "Secret has an empty value",
			})
			continue
		}

		ev := Evaluate(value, name)
		r.Strength[ev.Strength.String()]++
		points += ev.Strength.Points()
		rated++

		if ev.Strength == Weak {
			r.Issues = append(r.Issues, Issue{
				Type:        IssueWeakValue,
				Severity:    SeverityWarning,
				Name:        name,
				Description: fmt.Sprintf("Value is weak (%d characters, cracked in %s)", utf8.RuneCountInString(value), ev.CrackTime),
				Suggestion:  "Use a longer random value",
			})
		}
	}

	dups, err := FindDuplicates(values)
	if err != nil {
		return nil, err
	}
	r.Duplicates = dups

	penalty := 0
	for _, g := range dups {
		penalty += 10 * (g.Count - 1)
		for _, name := range g.Names {
			r.Issues = append(r.Issues, Issue{
				Type:        IssueDuplicate,
				Severity:    SeverityCritical,
				Name:        name,
				Description: fmt.Sprintf("Value is shared with %d other secret(s)", g.Count-1),
				Suggestion:  "Use a unique value for each secret",
			})
		}
	}

	r.Score = 100
	if rated > 0 {
		r.Score = points * 100 / (rated * Strong.Points())
	}
	r.Score = max(r.Score-penalty, 0)
	return r, nil
}
