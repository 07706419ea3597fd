package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeSHA256FromBytes computes the SHA256 hash of a byte slice.
//
// Returns the lowercase hexadecimal digest (64 characters).
//
// This is a pure function with deterministic output for any given input.
func ComputeSHA256FromBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ComputeSHA256FromString is ComputeSHA256FromBytes for string input.
func ComputeSHA256FromString(s string) string {
	return ComputeSHA256FromBytes([]byte(s))
}
