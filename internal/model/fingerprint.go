package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint is the SHA-256 content hash uniquely identifying one
// locked revision of a package-set flake. It keys the on-disk database
// cache: the database file is named `<fingerprint>.sqlite`.
type Fingerprint [sha256.Size]byte

// NewFingerprint hashes data into a Fingerprint.
func NewFingerprint(data []byte) Fingerprint {
	return Fingerprint(sha256.Sum256(data))
}

// FingerprintOf hashes the string form of a locked flake reference.
func FingerprintOf(lockedRef string) Fingerprint {
	return NewFingerprint([]byte(lockedRef))
}

// ParseFingerprint decodes a lowercase hex fingerprint string.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	if len(raw) != sha256.Size {
		return fp, fmt.Errorf("invalid fingerprint %q: got %d bytes, want %d", s, len(raw), sha256.Size)
	}
	copy(fp[:], raw)
	return fp, nil
}

// String returns the lowercase hex form used in filenames.
func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:])
}

// MarshalJSON encodes the fingerprint as its hex string form.
func (fp Fingerprint) MarshalJSON() ([]byte, error) {
	return json.Marshal(fp.String())
}

// UnmarshalJSON decodes a hex string fingerprint.
func (fp *Fingerprint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFingerprint(s)
	if err != nil {
		return err
	}
	*fp = parsed
	return nil
}

// IsZero reports whether the fingerprint is unset.
func (fp Fingerprint) IsZero() bool {
	return fp == Fingerprint{}
}
