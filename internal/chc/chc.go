// Package chc implements the contextual hash chain cipher: seed derivation,
// the chained-keystream block transform, and per-user seed wrapping.
//
// The cipher is deterministic and carries no nonce and no integrity tag.
// Identical (plaintext, seed) pairs produce identical ciphertext, so a seed
// must never seal more than one plaintext; callers enforce single use by
// refusing to seal a file id twice.
package chc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/chainseal/chainseal/internal/errs"
)

// Sizes, all in bytes. Keystream blocks are HMAC-SHA256 outputs, which
// pins the block size to 32.
const (
	BlockSize  = 32
	SeedLen    = 32
	SecretLen  = 32
	UserKeyLen = 32
)

// MAC computes HMAC-SHA256 of msg under key.
func MAC(key, msg []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(msg)
	return m.Sum(nil)
}

// FormatTimestamp renders seconds-since-epoch as a plain decimal string
// without an exponent. Seed derivation feeds on this exact rendering, so
// every caller must use it.
func FormatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

// DeriveSeed derives the 32-byte encryption seed for one sealed file:
// HMAC-SHA256 keyed by the owner secret over recordHash, the decimal
// timestamp, and the file id, concatenated in that order. The binding to
// the ledger record makes the seed unique per registration.
func DeriveSeed(ownerSecret []byte, recordHash string, timestamp float64, fileID string) ([]byte, error) {
	if len(ownerSecret) != SecretLen {
		return nil, fmt.Errorf("%w: owner secret must be %d bytes, got %d", errs.ErrCrypto, SecretLen, len(ownerSecret))
	}
	ts := FormatTimestamp(timestamp)
	msg := make([]byte, 0, len(recordHash)+len(ts)+len(fileID))
	msg = append(msg, recordHash...)
	msg = append(msg, ts...)
	msg = append(msg, fileID...)
	return MAC(ownerSecret, msg), nil
}

// Encrypt seals plaintext under a 32-byte seed. The chain state starts at
// the seed; block i XORs with HMAC-SHA256(state, bigEndian32(i)) truncated
// to the block length, and the produced ciphertext block advances the
// state. Output length always equals input length; empty input yields
// empty output.
func Encrypt(plaintext, seed []byte) ([]byte, error) {
	if len(seed) != SeedLen {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", errs.ErrCrypto, SeedLen, len(seed))
	}
	out := make([]byte, len(plaintext))
	state := seed
	var idx [4]byte
	for i, off := 0, 0; off < len(plaintext); i, off = i+1, off+BlockSize {
		end := off + BlockSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		ks := MAC(state, idx[:])
		for j := off; j < end; j++ {
			out[j] = plaintext[j] ^ ks[j-off]
		}
		state = MAC(state, out[off:end])
	}
	return out, nil
}

// Decrypt reverses Encrypt. The state advances over ciphertext blocks, so
// both directions observe the same state sequence. There is no integrity
// check: a wrong seed or corrupted ciphertext yields garbage, not an
// error. Callers verify stored checksums before decrypting.
func Decrypt(ciphertext, seed []byte) ([]byte, error) {
	if len(seed) != SeedLen {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", errs.ErrCrypto, SeedLen, len(seed))
	}
	out := make([]byte, len(ciphertext))
	state := seed
	var idx [4]byte
	for i, off := 0, 0; off < len(ciphertext); i, off = i+1, off+BlockSize {
		end := off + BlockSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		ks := MAC(state, idx[:])
		for j := off; j < end; j++ {
			out[j] = ciphertext[j] ^ ks[j-off]
		}
		state = MAC(state, ciphertext[off:end])
	}
	return out, nil
}
