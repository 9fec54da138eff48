// Package vault manages the encrypted vault file and the session that holds
// its decrypted contents.
//
// A Vault is created Locked. Init or Unlock move it to Unlocked, where Data
// exposes the live secrets.Store; Save re-encrypts the whole store under a
// fresh salt and IV and atomically replaces the file. Lock drops the store.
// The master password is passed to each operation and never kept.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/forest6511/keyp/internal/fileutil"
	"github.com/forest6511/keyp/internal/logger"
	"github.com/forest6511/keyp/pkg/audit"
	"github.com/forest6511/keyp/pkg/backup"
	"github.com/forest6511/keyp/pkg/crypto"
	"github.com/forest6511/keyp/pkg/secrets"
)

// Errors
var (
	ErrVaultAlreadyExists = errors.New("vault: vault already exists at this path")
	ErrVaultNotFound      = errors.New("vault: vault not found at this path")
	ErrVaultLocked        = errors.New("vault: vault is locked")
	ErrVaultCorrupted     = errors.New("vault: vault is corrupted")
	ErrSamePassword       = errors.New("vault: new password must differ from the current one")
	ErrInsufficientDisk   = fileutil.ErrInsufficientDisk

	// ErrInvalidPassword wraps crypto.ErrDecryptionFailed so callers can
	// match either.
	ErrInvalidPassword = fmt.Errorf("vault: invalid master password or corrupted data: %w", crypto.ErrDecryptionFailed)
)

// State is the session state.
type State int

const (
	// Locked means no decrypted data is held.
	Locked State = iota
	// Unlocked means Data returns the live store.
	Unlocked
)

// String returns "locked" or "unlocked".
func (s State) String() string {
	if s == Unlocked {
		return "unlocked"
	}
	return "locked"
}

// Vault is one session over one vault file. It is not safe for concurrent
// use.
type Vault struct {
	storage    Storage
	iterations int
	store      *secrets.Store
	log        *logger.Logger
	audit      *audit.Logger
	source     string
	backups    *backup.Manager
	now        func() time.Time
}

// Option configures a Vault.
type Option func(*Vault)

// WithStorage replaces the file storage derived from the path.
func WithStorage(s Storage) Option {
	return func(v *Vault) { v.storage = s }
}

// WithIterations sets the PBKDF2 iteration count used by Init and Save.
func WithIterations(n int) Option {
	return func(v *Vault) { v.iterations = n }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logger.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.log = l.Component("vault")
		}
	}
}

// WithAudit sets the audit logger. A nil logger disables auditing.
func WithAudit(a *audit.Logger) Option {
	return func(v *Vault) { v.audit = a }
}

// WithAuditSource sets the actor source recorded in audit events. The
// default is audit.SourceCLI.
func WithAuditSource(source string) Option {
	return func(v *Vault) { v.source = source }
}

// WithBackups sets where ChangePassword snapshots the previous record. A nil
// manager disables the snapshot.
func WithBackups(m *backup.Manager) Option {
	return func(v *Vault) { v.backups = m }
}

// New returns a Locked session for the vault file at path. By default the
// audit log and backups live next to the file, in audit/ and backups/.
func New(path string, opts ...Option) *Vault {
	dir := filepath.Dir(path)
	v := &Vault{
		storage:    NewFileStorage(path),
		iterations: crypto.DefaultIterations,
		log:        logger.Nop(),
		audit:      audit.NewLogger(filepath.Join(dir, "audit")),
		source:     audit.SourceCLI,
		backups:    backup.NewManager(filepath.Join(dir, "backups"), backup.DefaultKeep),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Path returns the vault file path.
func (v *Vault) Path() string {
	return v.storage.Path()
}

// Exists reports whether a vault file is present.
func (v *Vault) Exists() bool {
	return v.storage.Exists()
}

// State returns the session state.
func (v *Vault) State() State {
	if v.store != nil {
		return Unlocked
	}
	return Locked
}

// IsUnlocked reports whether the session holds decrypted data.
func (v *Vault) IsUnlocked() bool {
	return v.store != nil
}

// Data returns the live store, or nil when Locked. Changes are persisted only
// by Save.
func (v *Vault) Data() *secrets.Store {
	return v.store
}

// Audit returns the session's audit logger, which may be nil.
func (v *Vault) Audit() *audit.Logger {
	return v.audit
}

// Backups returns the snapshot manager, which may be nil.
func (v *Vault) Backups() *backup.Manager {
	return v.backups
}

// Init creates a new empty vault encrypted under password and leaves the
// session Unlocked.
func (v *Vault) Init(password string) error {
	if v.storage.Exists() {
		return ErrVaultAlreadyExists
	}

	store := secrets.New()
	plaintext, err := json.Marshal(store)
	if err != nil {
		return fmt.Errorf("vault: failed to encode store: %w", err)
	}

	payload, err := crypto.Encrypt(plaintext, []byte(password), v.iterations)
	if err != nil {
		return fmt.Errorf("vault: failed to encrypt vault: %w", err)
	}

	rec := newRecord(payload, v.iterations, v.now().UTC())
	if err := v.writeRecord(rec); err != nil {
		_ = v.audit.LogError(audit.OpVaultInit, v.source, "", "WRITE_FAILED", err.Error())
		return err
	}

	v.store = store
	_ = v.audit.LogSuccess(audit.OpVaultInit, v.source, "")
	v.log.Debug().Str("path", v.Path()).Int("iterations", v.iterations).Msg("vault initialized")
	return nil
}

// Unlock decrypts the vault with password. It is a no-op when already
// Unlocked. On failure the session stays Locked.
func (v *Vault) Unlock(password string) error {
	if !v.storage.Exists() {
		return ErrVaultNotFound
	}
	if v.store != nil {
		return nil
	}

	rec, err := v.readRecord()
	if err != nil {
		return err
	}

	plaintext, err := crypto.Decrypt(rec.Payload(), []byte(password), rec.Crypto.Iterations)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			_ = v.audit.LogError(audit.OpVaultUnlockFailed, v.source, "", "AUTH_FAILED", "invalid password")
			v.log.Debug().Msg("unlock failed")
			return ErrInvalidPassword
		}
		return fmt.Errorf("vault: failed to decrypt vault: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	store := secrets.New()
	if err := json.Unmarshal(plaintext, store); err != nil {
		return fmt.Errorf("%w: decrypted data is not a secret map", ErrVaultCorrupted)
	}

	v.store = store
	_ = v.audit.LogSuccess(audit.OpVaultUnlock, v.source, "")
	v.log.Debug().Int("secrets", store.Count()).Msg("vault unlocked")
	v.checkAndWarnPermissions()
	return nil
}

// Lock drops the decrypted store. It is idempotent and performs no I/O;
// callers that want the lock in the audit trail record it themselves.
func (v *Vault) Lock() {
	if v.store == nil {
		return
	}
	v.store = nil
	v.log.Debug().Msg("vault locked")
}

// Save encrypts the current store under password and replaces the vault
// file. The record's version, creation time and unknown fields are kept;
// salt, IV, ciphertext, tag, iteration count and update time are new.
func (v *Vault) Save(password string) error {
	if v.store == nil {
		return ErrVaultLocked
	}

	current, err := v.readRecord()
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(v.store)
	if err != nil {
		return fmt.Errorf("vault: failed to encode store: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	// A session configured with fewer iterations never weakens the file.
	iterations := max(v.iterations, current.Crypto.Iterations)
	payload, err := crypto.Encrypt(plaintext, []byte(password), iterations)
	if err != nil {
		return fmt.Errorf("vault: failed to encrypt vault: %w", err)
	}

	if err := v.writeRecord(current.rewrap(payload, iterations, v.now().UTC())); err != nil {
		_ = v.audit.LogError(audit.OpVaultSave, v.source, "", "WRITE_FAILED", err.Error())
		return err
	}
	_ = v.audit.LogSuccess(audit.OpVaultSave, v.source, "")
	v.log.Debug().Int("secrets", v.store.Count()).Msg("vault saved")
	return nil
}

// ChangePassword re-encrypts the vault under newPassword after checking
// current against the file on disk. The previous record is snapshotted
// first when backups are enabled.
func (v *Vault) ChangePassword(current, newPassword string) error {
	if v.store == nil {
		return ErrVaultLocked
	}
	if current == newPassword {
		return ErrSamePassword
	}

	raw, err := v.storage.Read()
	if err != nil {
		return err
	}
	rec, err := ParseRecord(raw)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(rec.Payload(), []byte(current), rec.Crypto.Iterations) {
		_ = v.audit.LogError(audit.OpPasswordChange, v.source, "", "AUTH_FAILED", "invalid password")
		return ErrInvalidPassword
	}

	if v.backups != nil {
		snap, err := v.backups.Create(raw)
		if err != nil {
			return fmt.Errorf("vault: failed to back up before password change: %w", err)
		}
		v.log.Debug().Str("snapshot", snap.Name).Msg("backup created")
	}

	if err := v.Save(newPassword); err != nil {
		return err
	}
	_ = v.audit.LogSuccess(audit.OpPasswordChange, v.source, "")
	return nil
}

// Destroy removes the vault file after checking password against it. The
// session ends Locked. Audit log and backups are left in place.
func (v *Vault) Destroy(password string) error {
	rec, err := v.readRecord()
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(rec.Payload(), []byte(password), rec.Crypto.Iterations) {
		_ = v.audit.LogError(audit.OpVaultDestroy, v.source, "", "AUTH_FAILED", "invalid password")
		return ErrInvalidPassword
	}

	r, ok := v.storage.(interface{ Remove() error })
	if !ok {
		return errors.New("vault: storage does not support removal")
	}
	if err := r.Remove(); err != nil {
		return err
	}
	v.store = nil
	_ = v.audit.LogSuccess(audit.OpVaultDestroy, v.source, "")
	v.log.Debug().Str("path", v.Path()).Msg("vault destroyed")
	return nil
}

// Record returns the parsed vault file without decrypting it.
func (v *Vault) Record() (*Record, error) {
	return v.readRecord()
}

func (v *Vault) readRecord() (*Record, error) {
	data, err := v.storage.Read()
	if err != nil {
		return nil, err
	}
	return ParseRecord(data)
}

func (v *Vault) writeRecord(rec *Record) error {
	data, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("vault: failed to encode record: %w", err)
	}
	return v.storage.Write(data)
}

// checkAndWarnPermissions logs a warning when the vault file or its directory
// is readable by group or others. It never blocks.
func (v *Vault) checkAndWarnPermissions() {
	if runtime.GOOS == "windows" {
		return
	}
	path := v.Path()
	if path == "" {
		return
	}
	if info, err := os.Stat(filepath.Dir(path)); err == nil && fileutil.InsecurePerm(info.Mode()) {
		v.log.Warn().Str("dir", filepath.Dir(path)).Msgf("vault directory has insecure permissions %04o (expected 0700)", info.Mode().Perm())
	}
	if info, err := os.Stat(path); err == nil && fileutil.InsecurePerm(info.Mode()) {
		v.log.Warn().Str("file", path).Msgf("vault file has insecure permissions %04o (expected 0600)", info.Mode().Perm())
	}
}
