package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKeyName(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		preserveCase bool
		want         string
	}{
		{"simple", "MySecret", false, "mysecret"},
		{"preserve case", "MySecret", true, "MySecret"},
		{"spaces", "My Secret Key", false, "my_secret_key"},
		{"special characters", "My@Secret#Key$", false, "mysecretkey"},
		{"hyphens", "my-secret-key", false, "my-secret-key"},
		{"empty", "", false, ""},
		{"only special", "@#$%", false, ""},
		{"decomposed accent", "café", false, "caf"},
		{"truncated", strings.Repeat("a", MaxKeyLength+10), false, strings.Repeat("a", MaxKeyLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeKeyName(tt.input, tt.preserveCase))
		})
	}
}

func TestDeduplicateKeys(t *testing.T) {
	secrets := []*ImportedSecret{
		{Name: "github"},
		{Name: "GitHub"},
		{Name: "github"},
		{Name: "aws"},
	}
	DeduplicateKeys(secrets)

	var got []string
	for _, s := range secrets {
		got = append(got, s.Name)
	}
	assert.Equal(t, []string{"github", "GitHub_1", "github_2", "aws"}, got)
}

func TestGenerateFallbackKey(t *testing.T) {
	assert.Equal(t, "github.com", GenerateFallbackKey("https://www.github.com:443/login", 1))
	assert.Equal(t, "example.org", GenerateFallbackKey("http://example.org", 1))
	assert.Equal(t, "imported_item_3", GenerateFallbackKey("", 3))
}

func TestDecodeHTMLEntities(t *testing.T) {
	assert.Equal(t, `<a href="x">Tom's & Jerry</a>`,
		DecodeHTMLEntities("&lt;a href=&quot;x&quot;&gt;Tom&#39;s &amp; Jerry&lt;/a&gt;"))
	assert.Equal(t, "&lt;", DecodeHTMLEntities("&amp;lt;"))
}

func TestIsEmptyOrWhitespace(t *testing.T) {
	assert.True(t, IsEmptyOrWhitespace(""))
	assert.True(t, IsEmptyOrWhitespace(" \t\n"))
	assert.False(t, IsEmptyOrWhitespace(" x "))
}

func TestGetParser(t *testing.T) {
	for _, name := range ValidSources() {
		p, err := GetParser(Source(name))
		require.NoError(t, err, name)
		assert.Equal(t, Source(name), p.Source())
	}

	_, err := GetParser("keepass")
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		filename string
		data     string
		want     Source
	}{
		{".env", "A=1", SourceDotenv},
		{".env.production", "A=1", SourceDotenv},
		{"prod.env", "A=1", SourceDotenv},
		{"lp.csv", "url,username,password,totp,extra,name,grouping,fav\n", SourceLastPass},
		{"1p.csv", "Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes\n", Source1Password},
		{"bw.json", `{"encrypted":false,"items":[]}`, SourceBitwarden},
		{"export.json", `{"API_KEY":"x"}`, SourceKeyp},
		{"secrets", "A=1", SourceDotenv},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.filename, []byte(tt.data)))
		})
	}
}

func TestResultMap(t *testing.T) {
	r := &ImportResult{Secrets: []*ImportedSecret{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}}
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, r.Map())
}
