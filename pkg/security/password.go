package security

import "unicode/utf8"

// PasswordCheck reports on a candidate master password. Warnings are
// advisory and never block.
type PasswordCheck struct {
	Evaluation
	Warnings []string
}

// ValidateMasterPassword enforces the length limits and rates the password.
func ValidateMasterPassword(password string) (*PasswordCheck, error) {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if n > MaxPasswordLength {
		return nil, ErrPasswordTooLong
	}

	check := &PasswordCheck{Evaluation: Evaluate(password)}
	switch check.Strength {
	case Weak:
		check.Warnings = append(check.Warnings, "password is easy to guess; consider a passphrase of several random words")
	case Fair:
		check.Warnings = append(check.Warnings, "password is acceptable but short; 14 or more characters is recommended")
	}
	return check, nil
}

// ConfirmPassword returns ErrPasswordMismatch unless both entries are equal.
func ConfirmPassword(first, second string) error {
	if first != second {
		return ErrPasswordMismatch
	}
	return nil
}
