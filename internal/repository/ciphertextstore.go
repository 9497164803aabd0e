package repository

import "context"

// CiphertextStore keeps sealed file bytes keyed by file id, each with a
// SHA-256 checksum taken at write time.
type CiphertextStore interface {
	// Put stores ciphertext and its checksum. Storing over an existing
	// file id is an error; seeds are single-use, so ciphertext is too.
	Put(ctx context.Context, fileID string, ciphertext []byte) error

	// Get returns the ciphertext after verifying its checksum
	// (errs.ErrChecksumMismatch on drift, errs.ErrNotFound when absent).
	Get(ctx context.Context, fileID string) ([]byte, error)

	// Exists reports whether ciphertext is stored for fileID.
	Exists(ctx context.Context, fileID string) (bool, error)

	// VerifyChecksum recomputes the stored ciphertext's checksum.
	VerifyChecksum(ctx context.Context, fileID string) (bool, error)

	// Delete removes the ciphertext; deleting an absent file id is not an
	// error.
	Delete(ctx context.Context, fileID string) error

	// Stats returns the number of stored ciphertexts and their total size.
	Stats(ctx context.Context) (count int, totalBytes int64, err error)
}
