package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chainseal/chainseal/internal/errs"
	"github.com/chainseal/chainseal/internal/repository"
)

// CiphertextStore keeps sealed bytes in PostgreSQL, one row per file id
// with the checksum computed at write time.
type CiphertextStore struct {
	db *DB
}

// NewCiphertextStore creates a CiphertextStore backed by db.
func NewCiphertextStore(db *DB) *CiphertextStore {
	return &CiphertextStore{db: db}
}

// Put stores ciphertext under fileID. A second Put for the same file id
// fails with errs.ErrAlreadySealed.
func (s *CiphertextStore) Put(ctx context.Context, fileID string, ciphertext []byte) error {
	const q = `
INSERT INTO ciphertexts (file_id, data, checksum, size)
VALUES ($1, $2, $3, $4)`

	sum := repository.Checksum(ciphertext)
	if _, err := s.db.Pool.Exec(ctx, q, fileID, ciphertext, sum, len(ciphertext)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ciphertext %s: %w", fileID, errs.ErrAlreadySealed)
		}
		return fmt.Errorf("%w: insert ciphertext: %w", errs.ErrStorage, err)
	}
	return nil
}

// Get returns the ciphertext for fileID after verifying its checksum.
func (s *CiphertextStore) Get(ctx context.Context, fileID string) ([]byte, error) {
	data, sum, err := s.fetch(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if repository.Checksum(data) != sum {
		return nil, fmt.Errorf("ciphertext %s: %w", fileID, errs.ErrChecksumMismatch)
	}
	return data, nil
}

// Exists reports whether ciphertext is stored for fileID.
func (s *CiphertextStore) Exists(ctx context.Context, fileID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM ciphertexts WHERE file_id=$1)`

	var found bool
	if err := s.db.Pool.QueryRow(ctx, q, fileID).Scan(&found); err != nil {
		return false, fmt.Errorf("%w: ciphertext exists: %w", errs.ErrStorage, err)
	}
	return found, nil
}

// VerifyChecksum recomputes the stored checksum for fileID.
func (s *CiphertextStore) VerifyChecksum(ctx context.Context, fileID string) (bool, error) {
	data, sum, err := s.fetch(ctx, fileID)
	if err != nil {
		return false, err
	}
	return repository.Checksum(data) == sum, nil
}

// Delete removes the ciphertext for fileID. Absent rows are not an error.
func (s *CiphertextStore) Delete(ctx context.Context, fileID string) error {
	const q = `DELETE FROM ciphertexts WHERE file_id=$1`

	if _, err := s.db.Pool.Exec(ctx, q, fileID); err != nil {
		return fmt.Errorf("%w: delete ciphertext: %w", errs.ErrStorage, err)
	}
	return nil
}

// Stats returns the number of stored ciphertexts and their total size.
func (s *CiphertextStore) Stats(ctx context.Context) (int, int64, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM ciphertexts`

	var (
		count int
		total int64
	)
	if err := s.db.Pool.QueryRow(ctx, q).Scan(&count, &total); err != nil {
		return 0, 0, fmt.Errorf("%w: ciphertext stats: %w", errs.ErrStorage, err)
	}
	return count, total, nil
}

func (s *CiphertextStore) fetch(ctx context.Context, fileID string) ([]byte, string, error) {
	const q = `
SELECT data, checksum
FROM ciphertexts
WHERE file_id=$1`

	var (
		data []byte
		sum  string
	)
	err := s.db.Pool.QueryRow(ctx, q, fileID).Scan(&data, &sum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", errs.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: select ciphertext: %w", errs.ErrStorage, err)
	}
	return data, sum, nil
}
