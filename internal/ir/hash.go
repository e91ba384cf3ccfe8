package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInputs   = "bman/inputs/v1"
	DomainScenario = "bman/scenario/v1"
	DomainAction   = "bman/action/v1"
	DomainEvidence = "bman/evidence/v1"
	DomainOutputs  = "bman/outputs/v1"
	DomainContent  = "bman/content/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL for security
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashBytes hashes raw bytes under a domain.
func HashBytes(domain string, data []byte) string {
	return hashWithDomain(domain, data)
}

// HashCanonical hashes the canonical JSON encoding of v under a domain.
// Returns error if v cannot be canonically marshaled.
func HashCanonical(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: failed to marshal: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustHashCanonical is like HashCanonical but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHashCanonical(domain string, v any) string {
	digest, err := HashCanonical(domain, v)
	if err != nil {
		panic(err)
	}
	return digest
}

// RecordHasher accumulates length-prefixed records into one domain
// separated digest. Length prefixes keep adjacent records from sharing a
// boundary, so "ab"+"c" and "a"+"bc" never collide.
type RecordHasher struct {
	h hash.Hash
}

// NewRecordHasher starts a digest for the given domain.
func NewRecordHasher(domain string) *RecordHasher {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return &RecordHasher{h: h}
}

// Write appends one record made of the concatenated parts.
func (r *RecordHasher) Write(parts ...[]byte) {
	var size uint64
	for _, p := range parts {
		size += uint64(len(p))
	}
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], size)
	r.h.Write(prefix[:])
	for _, p := range parts {
		r.h.Write(p)
	}
}

// WriteString appends one record made of the concatenated strings.
func (r *RecordHasher) WriteString(parts ...string) {
	bs := make([][]byte, len(parts))
	for i, p := range parts {
		bs[i] = []byte(p)
	}
	r.Write(bs...)
}

// Sum returns the hex digest.
func (r *RecordHasher) Sum() string {
	return hex.EncodeToString(r.h.Sum(nil))
}
