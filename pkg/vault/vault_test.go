package vault

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest6511/keyp/internal/logger"
	"github.com/forest6511/keyp/pkg/audit"
	"github.com/forest6511/keyp/pkg/backup"
	"github.com/forest6511/keyp/pkg/crypto"
	"github.com/forest6511/keyp/pkg/secrets"
)

const testPassword = "testpassword123"

// memStorage keeps the record in memory.
type memStorage struct {
	data   []byte
	writes int
}

func (m *memStorage) Path() string { return "" }
func (m *memStorage) Exists() bool { return m.data != nil }
func (m *memStorage) Read() ([]byte, error) {
	if m.data == nil {
		return nil, ErrVaultNotFound
	}
	return bytes.Clone(m.data), nil
}
func (m *memStorage) Write(data []byte) error {
	m.data = bytes.Clone(data)
	m.writes++
	return nil
}

func newTestVault(t *testing.T, opts ...Option) (*Vault, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyp", "vault.json")
	return New(path, opts...), path
}

func readTestRecord(t *testing.T, path string) *Record {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read vault file: %v", err)
	}
	rec, err := ParseRecord(data)
	if err != nil {
		t.Fatalf("ParseRecord() error = %v", err)
	}
	return rec
}

func TestNew(t *testing.T) {
	v, path := newTestVault(t)

	if v.Path() != path {
		t.Errorf("Path() = %s, want %s", v.Path(), path)
	}
	if v.State() != Locked || v.IsUnlocked() {
		t.Errorf("new vault state = %v, want locked", v.State())
	}
	if v.Data() != nil {
		t.Error("Data() must be nil while locked")
	}
	if v.Exists() {
		t.Error("Exists() = true before Init")
	}
	if v.Audit() == nil || v.Backups() == nil {
		t.Error("expected default audit logger and backup manager")
	}
}

func TestStateString(t *testing.T) {
	if Locked.String() != "locked" || Unlocked.String() != "unlocked" {
		t.Errorf("unexpected state names %q, %q", Locked, Unlocked)
	}
}

func TestInit(t *testing.T) {
	v, path := newTestVault(t)

	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if !v.IsUnlocked() || v.Data() == nil || v.Data().Count() != 0 {
		t.Fatal("Init() must leave an unlocked, empty store")
	}

	rec := readTestRecord(t, path)
	if rec.Version != CurrentVersion {
		t.Errorf("Version = %s, want %s", rec.Version, CurrentVersion)
	}
	if rec.Crypto.Iterations != crypto.DefaultIterations {
		t.Errorf("Iterations = %d, want %d", rec.Crypto.Iterations, crypto.DefaultIterations)
	}
	if !rec.CreatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("CreatedAt %v != UpdatedAt %v", rec.CreatedAt, rec.UpdatedAt)
	}
	if rec.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt location = %v, want UTC", rec.CreatedAt.Location())
	}

	plaintext, err := crypto.Decrypt(rec.Payload(), []byte(testPassword), rec.Crypto.Iterations)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(plaintext) != "{}" {
		t.Errorf("initial plaintext = %s, want {}", plaintext)
	}

	if filepath.Separator != '\\' {
		info, _ := os.Stat(path)
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("vault file permissions = %04o, want 0600", perm)
		}
		dirInfo, _ := os.Stat(filepath.Dir(path))
		if perm := dirInfo.Mode().Perm(); perm != 0700 {
			t.Errorf("vault directory permissions = %04o, want 0700", perm)
		}
	}

	if err := v.Init("anotherpassword"); !errors.Is(err, ErrVaultAlreadyExists) {
		t.Errorf("second Init() error = %v, want %v", err, ErrVaultAlreadyExists)
	}
	if err := New(path).Init("anotherpassword"); !errors.Is(err, ErrVaultAlreadyExists) {
		t.Errorf("Init() on existing file error = %v, want %v", err, ErrVaultAlreadyExists)
	}
}

func TestInitWeakIterations(t *testing.T) {
	v, path := newTestVault(t, WithIterations(50000))

	if err := v.Init(testPassword); !errors.Is(err, crypto.ErrWeakParameters) {
		t.Fatalf("Init() error = %v, want %v", err, crypto.ErrWeakParameters)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("vault file must not be written with weak parameters")
	}
	if v.IsUnlocked() {
		t.Error("vault must stay locked")
	}
}

func TestUnlockLock(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	v.Lock()
	if v.IsUnlocked() || v.Data() != nil {
		t.Fatal("Lock() must drop the store")
	}
	v.Lock() // idempotent

	fresh := New(path)
	if err := fresh.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if fresh.State() != Unlocked {
		t.Errorf("State() = %v, want unlocked", fresh.State())
	}

	store := fresh.Data()
	if err := fresh.Unlock("ignored while unlocked"); err != nil {
		t.Errorf("Unlock() while unlocked error = %v", err)
	}
	if fresh.Data() != store {
		t.Error("Unlock() while unlocked must keep the live store")
	}
}

func TestUnlockWrongPassword(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	before, _ := os.ReadFile(path)

	fresh := New(path)
	err := fresh.Unlock("wrongpassword")
	if !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("Unlock() error = %v, want %v", err, ErrInvalidPassword)
	}
	if !errors.Is(err, crypto.ErrDecryptionFailed) {
		t.Errorf("Unlock() error = %v, want it to wrap %v", err, crypto.ErrDecryptionFailed)
	}
	if fresh.IsUnlocked() {
		t.Error("vault must stay locked after a failed unlock")
	}

	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("failed unlock must not modify the vault file")
	}
}

func TestUnlockNotFound(t *testing.T) {
	v, _ := newTestVault(t)
	if err := v.Unlock(testPassword); !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("Unlock() error = %v, want %v", err, ErrVaultNotFound)
	}
}

func TestUnlockCorrupted(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "this is not json"},
		{name: "empty object", content: "{}"},
		{name: "unknown algorithm", content: `{"version":"1.0.0","crypto":{"algorithm":"rot13","kdf":"pbkdf2","iterations":100000,"salt":"AA=="},"data":"AA==","authTag":"AA==","iv":"AA==","createdAt":"2026-01-01T00:00:00Z","updatedAt":"2026-01-01T00:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, path := newTestVault(t)
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			err := v.Unlock(testPassword)
			if !errors.Is(err, ErrVaultCorrupted) {
				t.Errorf("Unlock() error = %v, want %v", err, ErrVaultCorrupted)
			}
			if errors.Is(err, ErrInvalidPassword) {
				t.Error("corruption must not be reported as a wrong password")
			}
		})
	}
}

func TestUnlockTamperedRecord(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	rec := readTestRecord(t, path)
	rec.Data[0] ^= 0xFF
	data, _ := rec.Marshal()
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if err := New(path).Unlock(testPassword); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("Unlock() error = %v, want %v", err, ErrInvalidPassword)
	}
}

func TestSaveRequiresUnlock(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Save(testPassword); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("Save() before Init error = %v, want %v", err, ErrVaultLocked)
	}

	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	v.Lock()
	before, _ := os.ReadFile(path)

	if err := v.Save(testPassword); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("Save() while locked error = %v, want %v", err, ErrVaultLocked)
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("Save() while locked must not touch the file")
	}
}

func TestSavePreservesRecordMetadata(t *testing.T) {
	v, path := newTestVault(t)
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v.now = func() time.Time { return clock }
	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	first := readTestRecord(t, path)

	// Add an unknown field and bump the version the way a newer build might.
	var raw map[string]json.RawMessage
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	raw["comment"] = json.RawMessage(`"kept"`)
	raw["version"] = json.RawMessage(`"1.1.0"`)
	data, _ = json.Marshal(raw)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(time.Hour)
	if _, err := v.Data().Set("api-key", "abc123"); err != nil {
		t.Fatal(err)
	}
	if err := v.Save(testPassword); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := readTestRecord(t, path)
	if second.Version != "1.1.0" {
		t.Errorf("Version = %s, want 1.1.0", second.Version)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", second.CreatedAt, first.CreatedAt)
	}
	if !second.UpdatedAt.Equal(clock) {
		t.Errorf("UpdatedAt = %v, want %v", second.UpdatedAt, clock)
	}
	if bytes.Equal(second.Crypto.Salt, first.Crypto.Salt) {
		t.Error("Save() must use a fresh salt")
	}
	if bytes.Equal(second.IV, first.IV) {
		t.Error("Save() must use a fresh IV")
	}

	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), `"comment": "kept"`) {
		t.Errorf("unknown field dropped on save:\n%s", data)
	}
}

func TestSaveUsesSessionIterations(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	v.Lock()

	stronger := New(path, WithIterations(crypto.MinIterations+1000))
	if err := stronger.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := stronger.Save(testPassword); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if got := readTestRecord(t, path).Crypto.Iterations; got != crypto.MinIterations+1000 {
		t.Errorf("Iterations = %d, want %d", got, crypto.MinIterations+1000)
	}
	if err := New(path).Unlock(testPassword); err != nil {
		t.Errorf("Unlock() after iteration change error = %v", err)
	}

	weaker := New(path, WithIterations(crypto.MinIterations))
	if err := weaker.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := weaker.Save(testPassword); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := readTestRecord(t, path).Crypto.Iterations; got != crypto.MinIterations+1000 {
		t.Errorf("Iterations after weaker session = %d, want %d kept", got, crypto.MinIterations+1000)
	}
	if err := New(path).Unlock(testPassword); err != nil {
		t.Errorf("Unlock() after weaker save error = %v", err)
	}
}

// TestEndToEnd covers init, set, save, lock and unlock in a new session.
func TestEndToEnd(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Init("MySecurePassword123!"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if _, err := v.Data().Set("db-password", "super-secret-123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := v.Save("MySecurePassword123!"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	v.Lock()

	session := New(path)
	if err := session.Unlock("MySecurePassword123!"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	got, ok := session.Data().Get("db-password")
	if !ok || got != "super-secret-123" {
		t.Errorf("Get() = %q, %v, want super-secret-123, true", got, ok)
	}

	data, _ := os.ReadFile(path)
	if bytes.Contains(data, []byte("super-secret-123")) || bytes.Contains(data, []byte("db-password")) {
		t.Error("vault file must not contain plaintext names or values")
	}
}

func TestManySecretsRoundTrip(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	want := map[string]string{
		"api-key":     "abc123",
		"unicode":     "パスワード🔑",
		"multi-line":  "line1\nline2",
		"large-value": strings.Repeat("x", 100001),
	}
	for k, val := range want {
		if _, err := v.Data().Set(k, val); err != nil {
			t.Fatalf("Set(%s) error = %v", k, err)
		}
	}
	if err := v.Save(testPassword); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	session := New(path)
	if err := session.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	got := session.Data().Snapshot()
	if len(got) != len(want) {
		t.Fatalf("got %d secrets, want %d", len(got), len(want))
	}
	for k, val := range want {
		if got[k] != val {
			t.Errorf("secret %s mismatch", k)
		}
	}
}

func TestClearAllPersisted(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Init(testPassword); err != nil {
		t.Fatal(err)
	}
	v.Data().Set("a", "1")
	v.Data().Set("b", "2")

	if _, err := v.Data().ClearAll("yes"); !errors.Is(err, secrets.ErrConfirmationRequired) {
		t.Errorf("ClearAll() error = %v, want %v", err, secrets.ErrConfirmationRequired)
	}
	if n, err := v.Data().ClearAll(secrets.ConfirmDeleteAll); err != nil || n != 2 {
		t.Fatalf("ClearAll() = %d, %v", n, err)
	}
	if err := v.Save(testPassword); err != nil {
		t.Fatal(err)
	}

	session := New(path)
	if err := session.Unlock(testPassword); err != nil {
		t.Fatal(err)
	}
	if session.Data().Count() != 0 {
		t.Errorf("Count() = %d after clear, want 0", session.Data().Count())
	}
}

func TestChangePassword(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Init("old-password-1"); err != nil {
		t.Fatal(err)
	}
	v.Data().Set("token", "value")
	if err := v.Save("old-password-1"); err != nil {
		t.Fatal(err)
	}

	if err := v.ChangePassword("old-password-1", "old-password-1"); !errors.Is(err, ErrSamePassword) {
		t.Errorf("ChangePassword() same error = %v, want %v", err, ErrSamePassword)
	}
	if err := v.ChangePassword("not-the-password", "new-password-2"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("ChangePassword() wrong current error = %v, want %v", err, ErrInvalidPassword)
	}
	if err := v.ChangePassword("old-password-1", "new-password-2"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	if err := New(path).Unlock("old-password-1"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("old password still unlocks: %v", err)
	}
	session := New(path)
	if err := session.Unlock("new-password-2"); err != nil {
		t.Fatalf("Unlock() with new password error = %v", err)
	}
	if got, _ := session.Data().Get("token"); got != "value" {
		t.Errorf("token = %q after password change", got)
	}

	snaps, err := v.Backups().List()
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(snaps))
	}
	data, _ := v.Backups().Read(snaps[0].Name)
	old, err := ParseRecord(data)
	if err != nil {
		t.Fatalf("backup is not a valid record: %v", err)
	}
	if !crypto.VerifyPassword(old.Payload(), []byte("old-password-1"), old.Crypto.Iterations) {
		t.Error("backup must be readable with the previous password")
	}
}

func TestChangePasswordLocked(t *testing.T) {
	v, _ := newTestVault(t)
	if err := v.ChangePassword("a", "b"); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("ChangePassword() error = %v, want %v", err, ErrVaultLocked)
	}
}

func TestRecord(t *testing.T) {
	v, _ := newTestVault(t)
	if _, err := v.Record(); !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("Record() error = %v, want %v", err, ErrVaultNotFound)
	}
	if err := v.Init(testPassword); err != nil {
		t.Fatal(err)
	}
	rec, err := v.Record()
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if rec.Crypto.Algorithm != crypto.Algorithm || rec.Crypto.KDF != crypto.KDF {
		t.Errorf("unexpected crypto params %+v", rec.Crypto)
	}
}

func TestMemoryStorage(t *testing.T) {
	mem := &memStorage{}
	v := New("", WithStorage(mem), WithAudit(nil), WithBackups(nil), WithLogger(logger.Nop()))

	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	v.Data().Set("k", "v")
	if err := v.Save(testPassword); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := v.ChangePassword(testPassword, "another-password"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if mem.writes != 3 {
		t.Errorf("writes = %d, want 3", mem.writes)
	}

	session := New("", WithStorage(mem), WithAudit(nil))
	if err := session.Unlock("another-password"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if got, _ := session.Data().Get("k"); got != "v" {
		t.Errorf("Get() = %q, want v", got)
	}
}

func TestAuditTrail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.json")
	auditLog := audit.NewLogger(filepath.Join(dir, "audit"))
	v := New(path, WithAudit(auditLog), WithBackups(backup.NewManager(filepath.Join(dir, "backups"), 1)))

	if err := v.Init(testPassword); err != nil {
		t.Fatal(err)
	}
	if err := v.Save(testPassword); err != nil {
		t.Fatal(err)
	}
	v.Lock()
	_ = v.Unlock("wrong")
	if err := v.Unlock(testPassword); err != nil {
		t.Fatal(err)
	}

	events, err := auditLog.Read(0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var ops []string
	for _, e := range events {
		ops = append(ops, e.Operation)
	}
	want := []string{audit.OpVaultInit, audit.OpVaultSave, audit.OpVaultUnlockFailed, audit.OpVaultUnlock}
	if strings.Join(ops, ",") != strings.Join(want, ",") {
		t.Errorf("audit ops = %v, want %v", ops, want)
	}

	result, err := auditLog.Verify()
	if err != nil || !result.Valid {
		t.Errorf("Verify() = %+v, %v", result, err)
	}
}

func TestUnlockPermissionWarning(t *testing.T) {
	if filepath.Separator == '\\' {
		t.Skip("Skipping permission tests on Windows")
	}

	var buf bytes.Buffer
	log, err := logger.New("warn", &buf)
	if err != nil {
		t.Fatal(err)
	}

	v, path := newTestVault(t, WithLogger(log))
	if err := v.Init(testPassword); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	v.Lock()

	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("failed to change permissions: %v", err)
	}
	if err := v.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if !strings.Contains(buf.String(), "insecure permissions") {
		t.Errorf("expected permission warning, got %q", buf.String())
	}
}

func TestDestroy(t *testing.T) {
	v, path := newTestVault(t)
	if err := v.Init(testPassword); err != nil {
		t.Fatal(err)
	}

	if err := v.Destroy("wrong-password"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("Destroy() error = %v, want %v", err, ErrInvalidPassword)
	}
	if !v.Exists() {
		t.Fatal("vault removed despite wrong password")
	}

	if err := v.Destroy(testPassword); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("vault file still present: %v", err)
	}
	if v.IsUnlocked() {
		t.Error("session must be Locked after Destroy")
	}
	if err := v.Destroy(testPassword); !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("second Destroy() error = %v, want %v", err, ErrVaultNotFound)
	}
}

func TestDestroyUnsupportedStorage(t *testing.T) {
	mem := &memStorage{}
	v := New("", WithStorage(mem), WithAudit(nil), WithBackups(nil))
	if err := v.Init(testPassword); err != nil {
		t.Fatal(err)
	}
	if err := v.Destroy(testPassword); err == nil {
		t.Error("Destroy() on storage without Remove should fail")
	}
	if !v.Exists() {
		t.Error("record must remain")
	}
}

func TestLockPerformsNoIO(t *testing.T) {
	dir := t.TempDir()
	auditLog := audit.NewLogger(filepath.Join(dir, "audit"))
	v := New(filepath.Join(dir, "vault.json"), WithAudit(auditLog))
	if err := v.Init(testPassword); err != nil {
		t.Fatal(err)
	}

	before, err := os.ReadFile(auditLog.Path())
	if err != nil {
		t.Fatal(err)
	}
	v.Lock()
	v.Lock()
	after, err := os.ReadFile(auditLog.Path())
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(before, after) {
		t.Errorf("Lock() changed the audit log: %d bytes before, %d after", len(before), len(after))
	}
	if v.Data() != nil {
		t.Error("Data() must be nil after Lock()")
	}
}
