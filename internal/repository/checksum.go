package repository

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum computes the hex SHA-256 digest stored alongside ciphertext.
// Every CiphertextStore backend uses this same digest so stored blobs stay
// portable between them.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
