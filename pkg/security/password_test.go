package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMasterPassword_Length(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"empty", "", ErrPasswordTooShort},
		{"seven", "abcdefg", ErrPasswordTooShort},
		{"seven_runes_multibyte", "パスワードです", ErrPasswordTooShort},
		{"eight", "abcdefgh", nil},
		{"max", strings.Repeat("a", MaxPasswordLength), nil},
		{"too_long", strings.Repeat("a", MaxPasswordLength+1), ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateMasterPassword(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateMasterPassword_Warnings(t *testing.T) {
	check, err := ValidateMasterPassword("password")
	require.NoError(t, err)
	assert.Equal(t, Weak, check.Strength)
	assert.NotEmpty(t, check.Warnings)

	check, err = ValidateMasterPassword("Xk9#mP2$vL7@nQ4&wR8*zT1!yU6^bH3%")
	require.NoError(t, err)
	assert.Equal(t, Strong, check.Strength)
	assert.Empty(t, check.Warnings)
}

func TestConfirmPassword(t *testing.T) {
	assert.NoError(t, ConfirmPassword("same-password", "same-password"))
	assert.ErrorIs(t, ConfirmPassword("one", "two"), ErrPasswordMismatch)
}
