package vault

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forest6511/keyp/pkg/crypto"
)

// CurrentVersion is the record format written by this build. It is
// informational; no migration is performed on read.
const CurrentVersion = "1.0.0"

// CryptoParams binds the cipher and KDF settings to a record.
type CryptoParams struct {
	Algorithm  string `json:"algorithm"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"` // base64 via encoding/json
}

// Record is the persisted vault file. Binary fields are base64 encoded by
// encoding/json.
type Record struct {
	Version   string       `json:"version"`
	Crypto    CryptoParams `json:"crypto"`
	Data      []byte       `json:"data"`
	AuthTag   []byte       `json:"authTag"`
	IV        []byte       `json:"iv"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	// extra holds top-level fields this build does not know about so that a
	// rewrite does not drop them.
	extra map[string]json.RawMessage
}

// recordFields lists the JSON keys owned by Record.
var recordFields = []string{"version", "crypto", "data", "authTag", "iv", "createdAt", "updatedAt"}

// record is Record without methods, used to avoid MarshalJSON recursion.
type record Record

// newRecord builds the first record for a vault.
func newRecord(p *crypto.Payload, iterations int, now time.Time) *Record {
	return &Record{
		Version: CurrentVersion,
		Crypto: CryptoParams{
			Algorithm:  crypto.Algorithm,
			KDF:        crypto.KDF,
			Iterations: iterations,
			Salt:       p.Salt,
		},
		Data:      p.Ciphertext,
		AuthTag:   p.Tag,
		IV:        p.IV,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// rewrap returns a new record carrying r's version, creation time and
// unknown fields with a freshly encrypted payload.
func (r *Record) rewrap(p *crypto.Payload, iterations int, now time.Time) *Record {
	next := newRecord(p, iterations, now)
	next.Version = r.Version
	next.CreatedAt = r.CreatedAt
	if len(r.extra) > 0 {
		next.extra = make(map[string]json.RawMessage, len(r.extra))
		for k, v := range r.extra {
			next.extra[k] = v
		}
	}
	return next
}

// Payload reassembles the encrypted payload. The salt comes from the crypto
// parameters.
func (r *Record) Payload() *crypto.Payload {
	return &crypto.Payload{
		Ciphertext: r.Data,
		Tag:        r.AuthTag,
		IV:         r.IV,
		Salt:       r.Crypto.Salt,
	}
}

// ParseRecord decodes and validates a vault file. Any structural problem is
// reported as ErrVaultCorrupted, never as a password error.
func ParseRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVaultCorrupted, err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// validate checks that every required field is present and recognised.
// Field lengths are left to decryption so tampering stays indistinguishable
// from a wrong password.
func (r *Record) validate() error {
	switch {
	case r.Version == "":
		return fmt.Errorf("%w: missing version", ErrVaultCorrupted)
	case r.Crypto.Algorithm != crypto.Algorithm:
		return fmt.Errorf("%w: unsupported algorithm %q", ErrVaultCorrupted, r.Crypto.Algorithm)
	case r.Crypto.KDF != crypto.KDF:
		return fmt.Errorf("%w: unsupported kdf %q", ErrVaultCorrupted, r.Crypto.KDF)
	case r.Crypto.Iterations < crypto.MinIterations:
		return fmt.Errorf("%w: %w", ErrVaultCorrupted, crypto.ErrWeakParameters)
	case len(r.Crypto.Salt) == 0:
		return fmt.Errorf("%w: missing salt", ErrVaultCorrupted)
	case len(r.Data) == 0:
		return fmt.Errorf("%w: missing data", ErrVaultCorrupted)
	case len(r.AuthTag) == 0:
		return fmt.Errorf("%w: missing authTag", ErrVaultCorrupted)
	case len(r.IV) == 0:
		return fmt.Errorf("%w: missing iv", ErrVaultCorrupted)
	case r.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing createdAt", ErrVaultCorrupted)
	}
	return nil
}

// Marshal encodes the record as indented JSON.
func (r *Record) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// MarshalJSON merges unknown fields back into the encoded record.
func (r *Record) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal((*record)(r))
	if err != nil {
		return nil, err
	}
	if len(r.extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(recordFields)+len(r.extra))
	for k, v := range r.extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes known fields and keeps the rest in extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*record)(r)); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	// encoding/json matches keys case-insensitively, so "UpdatedAt" already
	// landed in the known fields and must not be re-emitted beside updatedAt.
	for k := range all {
		if isRecordField(k) {
			delete(all, k)
		}
	}
	if len(all) > 0 {
		r.extra = all
	} else {
		r.extra = nil
	}
	return nil
}

func isRecordField(key string) bool {
	for _, f := range recordFields {
		if strings.EqualFold(key, f) {
			return true
		}
	}
	return false
}
