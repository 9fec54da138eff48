package secrets

import "errors"

// Secret store errors
var (
	// ErrInvalidName indicates an empty or whitespace-only secret name.
	ErrInvalidName = errors.New("secrets: secret name cannot be empty")

	// ErrInvalidValue indicates an empty or whitespace-only secret value.
	ErrInvalidValue = errors.New("secrets: secret value cannot be empty")

	// ErrSecretNotFound indicates the named secret does not exist.
	ErrSecretNotFound = errors.New("secrets: secret not found")

	// ErrSecretExists indicates a rename target is already taken.
	ErrSecretExists = errors.New("secrets: secret already exists")

	// ErrSameName indicates a rename to the current name.
	ErrSameName = errors.New("secrets: new name must be different from old name")

	// ErrConfirmationRequired indicates ClearAll was called without ConfirmDeleteAll.
	ErrConfirmationRequired = errors.New(`secrets: confirmation not provided, pass "CONFIRM_DELETE_ALL"`)
)
