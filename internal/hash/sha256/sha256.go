// Package sha256 names slot-listing snapshots by content digest.
package sha256

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hasher implements booking.Hasher. JSON bodies are canonicalized first so a
// listing that only differs in key order or whitespace maps to the same digest.
type Hasher struct {
	length int
}

// New returns a hasher producing full 64-character hex digests.
func New() *Hasher {
	return &Hasher{}
}

// NewWithLength truncates digests to length hex characters. Values outside
// 1..63 keep the full digest.
func NewWithLength(length int) *Hasher {
	return &Hasher{length: length}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(canonical(data))
	digest := hex.EncodeToString(sum[:])
	if h != nil && h.length > 0 && h.length < len(digest) {
		digest = digest[:h.length]
	}
	return digest, nil
}

// canonical re-encodes valid JSON with sorted object keys; anything else is
// hashed as is.
func canonical(data []byte) []byte {
	if !json.Valid(data) {
		return data
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return data
	}
	out, err := json.Marshal(v)
	if err != nil {
		return data
	}
	return out
}
