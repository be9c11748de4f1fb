package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// ComputeRunFingerprint derives the deterministic identity of a bootstrap
// run from everything that shapes its replicate set. Two runs with the
// same fingerprint are replayable bit-for-bit.
func ComputeRunFingerprint(datasetHash Hash, estimator string, iterations int, seed int64) Hash {
	var data strings.Builder
	data.WriteString(datasetHash.String())
	data.WriteString("|")
	data.WriteString(estimator)
	data.WriteString(fmt.Sprintf("|%d|%d", iterations, seed))
	return NewHash([]byte(data.String()))
}

// ComputeDatasetHash fingerprints dataset content: ordered column keys,
// row count, the raw bits of every numeric value, and every label.
func ComputeDatasetHash(keys []string, rows int, numeric [][]float64, labels [][]string) Hash {
	h := sha256.New()
	for _, key := range keys {
		h.Write([]byte(key))
		h.Write([]byte{0})
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(rows))
	h.Write(buf[:])

	for _, col := range numeric {
		for _, v := range col {
			bits := math.Float64bits(v)
			if v != v {
				// NaNs carry payload bits; normalize so equal-looking datasets hash equal
				bits = math.Float64bits(math.NaN())
			}
			binary.LittleEndian.PutUint64(buf[:], bits)
			h.Write(buf[:])
		}
	}
	for _, col := range labels {
		for _, s := range col {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
	}

	return Hash(hex.EncodeToString(h.Sum(nil)))
}
