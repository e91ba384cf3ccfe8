package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytesDomainSeparation(t *testing.T) {
	data := []byte("same")

	a := HashBytes(DomainInputs, data)
	b := HashBytes(DomainOutputs, data)

	assert.NotEqual(t, a, b, "different domains must produce different digests")
	assert.Len(t, a, 64)
}

func TestHashBytesMatchesFormat(t *testing.T) {
	h := sha256.New()
	h.Write([]byte(DomainEvidence))
	h.Write([]byte{0x00})
	h.Write([]byte("payload"))
	expected := hex.EncodeToString(h.Sum(nil))

	assert.Equal(t, expected, HashBytes(DomainEvidence, []byte("payload")))
}

func TestHashCanonicalKeyOrderIndependent(t *testing.T) {
	a, err := HashCanonical(DomainAction, map[string]any{"a": 1, "b": "x"})
	require.NoError(t, err)
	b, err := HashCanonical(DomainAction, map[string]any{"b": "x", "a": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHashCanonicalError(t *testing.T) {
	_, err := HashCanonical(DomainScenario, 1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), DomainScenario)

	assert.Panics(t, func() { MustHashCanonical(DomainScenario, 1.5) })
}

func TestRecordHasherBoundaries(t *testing.T) {
	a := NewRecordHasher(DomainInputs)
	a.WriteString("ab")
	a.WriteString("c")

	b := NewRecordHasher(DomainInputs)
	b.WriteString("a")
	b.WriteString("bc")

	assert.NotEqual(t, a.Sum(), b.Sum())
}

func TestRecordHasherPartsFormOneRecord(t *testing.T) {
	a := NewRecordHasher(DomainInputs)
	a.WriteString("file:", "x")

	b := NewRecordHasher(DomainInputs)
	b.Write([]byte("file:x"))

	assert.Equal(t, a.Sum(), b.Sum())
}

func TestRecordHasherDeterministic(t *testing.T) {
	build := func() string {
		h := NewRecordHasher(DomainInputs)
		h.WriteString("missing:", "a.json")
		h.WriteString("file:", "b.json")
		h.Write([]byte{1, 2, 3})
		return h.Sum()
	}

	assert.Equal(t, build(), build())
}
