package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypParser_Parse(t *testing.T) {
	data := `{"API_KEY":"sk-123","db password":"p@ss word","blank":"  ","":"x"}`

	result, err := (&KeypParser{}).Parse([]byte(data), ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"API_KEY":     "sk-123",
		"db password": "p@ss word",
	}, result.Map())
	assert.Len(t, result.Skipped, 2)
}

func TestKeypParser_Sorted(t *testing.T) {
	result, err := (&KeypParser{}).Parse([]byte(`{"b":"2","a":"1","c":"3"}`), ParseOptions{})
	require.NoError(t, err)

	var names []string
	for _, s := range result.Secrets {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestKeypParser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"not json", "nope", ErrInvalidFormat},
		{"array", `["a"]`, ErrInvalidFormat},
		{"non-string value", `{"a":1}`, ErrInvalidFormat},
		{"encrypted record", `{"version":"1.0.0","crypto":{},"data":"abc"}`, ErrEncryptedExport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&KeypParser{}).Parse([]byte(tt.data), ParseOptions{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
