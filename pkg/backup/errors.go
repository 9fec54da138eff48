package backup

import "errors"

// Backup errors
var (
	// ErrEmptySnapshot indicates Create was given no data.
	ErrEmptySnapshot = errors.New("backup: snapshot data is empty")

	// ErrBackupNotFound indicates no snapshot with the requested name exists.
	ErrBackupNotFound = errors.New("backup: snapshot not found")

	// ErrNoBackups indicates the backup directory holds no snapshots.
	ErrNoBackups = errors.New("backup: no snapshots available")

	// ErrInvalidName indicates a snapshot name that is not a plain file name
	// produced by this package.
	ErrInvalidName = errors.New("backup: invalid snapshot name")
)
