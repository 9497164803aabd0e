package chc

import (
	"crypto/sha256"
	"fmt"

	"github.com/chainseal/chainseal/internal/errs"
)

// UserKey derives the wrapping key for a principal and file id:
// SHA-256(principal ":" fileID). The derivation is public; wrapped seeds
// are therefore stored encrypted at rest and dispensed only after the
// access controller authorizes the principal.
func UserKey(principal, fileID string) []byte {
	sum := sha256.Sum256([]byte(principal + ":" + fileID))
	return sum[:]
}

// WrapSeed XORs a 32-byte seed with a 32-byte user key. The transform is
// its own inverse.
func WrapSeed(seed, userKey []byte) ([]byte, error) {
	if len(seed) != SeedLen {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", errs.ErrCrypto, SeedLen, len(seed))
	}
	if len(userKey) != UserKeyLen {
		return nil, fmt.Errorf("%w: user key must be %d bytes, got %d", errs.ErrCrypto, UserKeyLen, len(userKey))
	}
	out := make([]byte, SeedLen)
	for i := range out {
		out[i] = seed[i] ^ userKey[i]
	}
	return out, nil
}

// UnwrapSeed recovers a seed from its wrapped form under the same user key.
func UnwrapSeed(wrapped, userKey []byte) ([]byte, error) {
	return WrapSeed(wrapped, userKey)
}
