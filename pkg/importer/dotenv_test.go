package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDotenvParser_Parse(t *testing.T) {
	data := `# database
DB_HOST=localhost
export DB_USER = admin
DB_PASS="p@ss \"quoted\"\nline2"
RAW='no $expansion \n here'
INLINE=value # comment
HASH=abc#def
EMPTY=
DB_HOST=db.internal
not a pair
`

	result, err := (&DotenvParser{}).Parse([]byte(data), ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"DB_HOST": "db.internal",
		"DB_USER": "admin",
		"DB_PASS": "p@ss \"quoted\"\nline2",
		"RAW":     `no $expansion \n here`,
		"INLINE":  "value",
		"HASH":    "abc#def",
	}, result.Map())

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "EMPTY", result.Skipped[0].OriginalName)
	assert.Len(t, result.Warnings, 2, "redefinition and malformed line")
	assert.Equal(t, "DB_HOST", result.Secrets[0].Name, "first definition keeps its position")
}

func TestDotenvParser_UnterminatedQuote(t *testing.T) {
	result, err := (&DotenvParser{}).Parse([]byte("A=\"open\nB='open\nC=ok\n"), ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"C": "ok"}, result.Map())
	assert.Len(t, result.Warnings, 2)
}

func TestDotenvParser_BOMAndCRLF(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("A=1\r\nB=2\r\n")...)
	result, err := (&DotenvParser{}).Parse(data, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, result.Map())
}
