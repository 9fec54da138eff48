package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongValue = "Xk9#mP2$vL7@nQ4&wR8*zT1!yU6^bH3%"

func TestFindDuplicates(t *testing.T) {
	groups, err := FindDuplicates(map[string]string{
		"a":     "shared-value",
		"b":     "  shared-value\n",
		"c":     "unique",
		"d":     "",
		"e":     "",
		"cafe1": "café",
		"cafe2": "café",
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, []string{"a", "b"}, groups[0].Names)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, []string{"cafe1", "cafe2"}, groups[1].Names)
}

func TestFindDuplicates_OrderBySize(t *testing.T) {
	groups, err := FindDuplicates(map[string]string{
		"a": "x1", "b": "x1",
		"c": "y2", "d": "y2", "e": "y2",
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, 3, groups[0].Count)
	assert.Equal(t, 2, groups[1].Count)
}

func TestFindDuplicates_None(t *testing.T) {
	groups, err := FindDuplicates(map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestAnalyze_Empty(t *testing.T) {
	r, err := Analyze(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Total)
	assert.Equal(t, 100, r.Score)
	assert.Empty(t, r.Issues)
}

func TestAnalyze_AllStrong(t *testing.T) {
	r, err := Analyze(map[string]string{"api": strongValue})
	require.NoError(t, err)
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, 1, r.Strength["Strong"])
	assert.Empty(t, r.Issues)
}

func TestAnalyze_WeakAndDuplicate(t *testing.T) {
	r, err := Analyze(map[string]string{
		"db":    "password",
		"cache": "password",
		"blank": " ",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, 2, r.Strength["Weak"])
	require.Len(t, r.Duplicates, 1)

	counts := map[IssueType]int{}
	for _, issue := range r.Issues {
		counts[issue.Type]++
		assert.NotContains(t, issue.Description, "password", "issues must not echo values")
	}
	assert.Equal(t, 1, counts[IssueEmpty])
	assert.Equal(t, 2, counts[IssueWeakValue])
	assert.Equal(t, 2, counts[IssueDuplicate])
}

func TestAnalyze_DuplicatePenalty(t *testing.T) {
	r, err := Analyze(map[string]string{"a": strongValue, "b": strongValue})
	require.NoError(t, err)
	assert.Equal(t, 90, r.Score)
}
