// Package crypto implements master key handling and at-rest encryption
// for stored secrets.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id parameters for passphrase-derived master keys.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1

	MasterKeyLen = 32
	SaltLen      = 16
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// LoadOrCreateKeyFile reads a 32-byte master key from path, generating and
// persisting one with 0600 permissions on first use.
func LoadOrCreateKeyFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != MasterKeyLen {
			return nil, fmt.Errorf("key file %s: want %d bytes, got %d", path, MasterKeyLen, len(b))
		}
		return b, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	b, err = RandBytes(MasterKeyLen)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return b, nil
}

// LoadOrCreateSalt reads the argon2 salt from path, generating and
// persisting one on first use.
func LoadOrCreateSalt(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != SaltLen {
			return nil, fmt.Errorf("salt file %s: want %d bytes, got %d", path, SaltLen, len(b))
		}
		return b, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read salt file: %w", err)
	}
	b, err = RandBytes(SaltLen)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, fmt.Errorf("write salt file: %w", err)
	}
	return b, nil
}

// DeriveMasterKey derives a 32-byte master key from a passphrase and salt
// using Argon2id.
func DeriveMasterKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, MasterKeyLen)
}

// SubKey expands a purpose-bound 32-byte key from the master key via
// HKDF-SHA256, with info selecting the purpose ("secretbox", "provenance").
// Distinct infos yield independent keys.
func SubKey(master []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	key := make([]byte, MasterKeyLen)
	if _, err := r.Read(key); err != nil {
		return nil, fmt.Errorf("derive subkey %q: %w", info, err)
	}
	return key, nil
}
