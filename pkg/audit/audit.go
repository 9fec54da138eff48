// Package audit records vault operations in an append-only JSONL file. Each
// event carries the SHA-256 of its predecessor so edits, deletions and
// reordering are detectable with Verify. Secret names are recorded; secret
// values and passwords never are.
package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forest6511/keyp/internal/fileutil"
)

// FileName is the log file created inside the audit directory.
const FileName = "audit.jsonl"

// genesis is the previous-hash value of the first event.
const genesis = "genesis"

// Operation types
const (
	OpVaultInit         = "vault.init"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"
	OpVaultSave         = "vault.save"
	OpVaultDestroy      = "vault.destroy"
	OpPasswordChange    = "vault.password_change"

	OpSecretGet       = "secret.get"
	OpSecretSet       = "secret.set"
	OpSecretDelete    = "secret.delete"
	OpSecretRename    = "secret.rename"
	OpSecretClear     = "secret.clear"
	OpSecretCopy      = "secret.copy"
	OpSecretList      = "secret.list"
	OpSecretSearch    = "secret.search"
	OpSecretExists    = "secret.exists"
	OpSecretGetMasked = "secret.get_masked"

	OpImport        = "vault.import"
	OpExport        = "vault.export"
	OpBackupCreate  = "backup.create"
	OpBackupRestore = "backup.restore"
)

// Source identifies where an operation originated.
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Result values
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// ErrCorruptLog is returned when a line of the log cannot be decoded.
var ErrCorruptLog = errors.New("audit: log file is corrupted")

// Event is one line of the audit log.
type Event struct {
	Version   int        `json:"v"`
	ID        string     `json:"id"`
	Timestamp string     `json:"ts"` // RFC 3339, nanosecond precision
	Operation string     `json:"op"`
	Key       string     `json:"key,omitempty"`
	Actor     Actor      `json:"actor"`
	Result    string     `json:"result"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Chain     Chain      `json:"chain"`
}

// Actor describes who performed an operation.
type Actor struct {
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
}

// ErrorInfo holds failure details. Messages must not contain secret values.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links an event to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	Hash     string `json:"hash"`
}

// VerifyResult summarises a chain verification.
type VerifyResult struct {
	Valid        bool     `json:"valid"`
	RecordsTotal int      `json:"records_total"`
	Errors       []string `json:"errors,omitempty"`
}

// Logger appends events to dir/audit.jsonl. A nil *Logger is valid and
// discards everything, so callers never need to check for one.
type Logger struct {
	path      string
	mu        sync.Mutex
	loaded    bool
	sequence  int64
	prevHash  string
	sessionID string
	now       func() time.Time
}

// NewLogger returns a logger writing into dir. Nothing is touched on disk
// until the first event.
func NewLogger(dir string) *Logger {
	return &Logger{
		path:      filepath.Join(dir, FileName),
		prevHash:  genesis,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// Path returns the log file path.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log appends one event.
func (l *Logger) Log(op, source, result, key string, errInfo *ErrorInfo) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		if err := l.loadChainState(); err != nil {
			return err
		}
	}
	if err := fileutil.CheckFree(filepath.Dir(l.path), 0); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	event := Event{
		Version:   1,
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Key:       key,
		Actor:     Actor{Source: source, SessionID: l.sessionID},
		Result:    result,
		Error:     errInfo,
		Chain:     Chain{Sequence: l.sequence + 1, PrevHash: l.prevHash},
	}
	event.Chain.Hash = hashEvent(&event)

	if err := l.appendEvent(&event); err != nil {
		return err
	}
	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.Hash
	return nil
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, source, key string) error {
	return l.Log(op, source, ResultSuccess, key, nil)
}

// LogError records a failed operation.
func (l *Logger) LogError(op, source, key, code, msg string) error {
	return l.Log(op, source, ResultError, key, &ErrorInfo{Code: code, Message: msg})
}

// LogDenied records an operation refused by policy.
func (l *Logger) LogDenied(op, source, key, reason string) error {
	return l.Log(op, source, ResultDenied, key, &ErrorInfo{Code: "DENIED", Message: reason})
}

// Read returns the most recent limit events, oldest first. A limit of zero
// or less returns every event.
func (l *Logger) Read(limit int) ([]Event, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readEvents()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Verify walks the whole log and checks sequence numbers, links and hashes.
func (l *Logger) Verify() (*VerifyResult, error) {
	if l == nil {
		return &VerifyResult{Valid: true}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readEvents()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true, RecordsTotal: len(events)}
	prev := genesis
	for i := range events {
		e := &events[i]
		want := int64(i + 1)
		if e.Chain.Sequence != want {
			result.Errors = append(result.Errors, fmt.Sprintf("record %s: sequence %d, want %d", e.ID, e.Chain.Sequence, want))
		}
		if e.Chain.PrevHash != prev {
			result.Errors = append(result.Errors, fmt.Sprintf("record %s: chain broken", e.ID))
		}
		if e.Chain.Hash != hashEvent(e) {
			result.Errors = append(result.Errors, fmt.Sprintf("record %s: hash mismatch", e.ID))
		}
		prev = e.Chain.Hash
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}

// hashEvent covers every field except the hash itself. Each field is
// length-prefixed so that no separator inside a value can shift a boundary.
func hashEvent(e *Event) string {
	parts := []string{
		strconv.Itoa(e.Version),
		e.ID,
		e.Timestamp,
		e.Operation,
		e.Key,
		e.Actor.Source,
		e.Actor.SessionID,
		e.Result,
	}
	if e.Error != nil {
		parts = append(parts, "error", e.Error.Code, e.Error.Message)
	} else {
		parts = append(parts, "none")
	}
	parts = append(parts, strconv.FormatInt(e.Chain.Sequence, 10), e.Chain.PrevHash)

	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// loadChainState resumes the chain from the last event on disk.
func (l *Logger) loadChainState() error {
	events, err := l.readEvents()
	if err != nil {
		return err
	}
	if n := len(events); n > 0 {
		l.sequence = events[n-1].Chain.Sequence
		l.prevHash = events[n-1].Chain.Hash
	}
	l.loaded = true
	return nil
}

func (l *Logger) appendEvent(e *Event) error {
	if err := fileutil.EnsureDir(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileutil.FileMode)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) readEvents() ([]Event, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: failed to read log file: %w", err)
	}

	var events []Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptLog, line, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to scan log file: %w", err)
	}
	return events, nil
}
