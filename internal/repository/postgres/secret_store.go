package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/chainseal/chainseal/internal/chc"
	"github.com/chainseal/chainseal/internal/crypto"
	"github.com/chainseal/chainseal/internal/errs"
)

// SecretStore keeps owner secrets and wrapped seeds in PostgreSQL. Both are
// sealed with XChaCha20-Poly1305 under boxKey before they touch a row, so a
// database dump alone cannot decrypt anything.
type SecretStore struct {
	db     *DB
	boxKey []byte
}

// NewSecretStore creates a SecretStore backed by db. boxKey must be a
// 32-byte key dedicated to at-rest sealing.
func NewSecretStore(db *DB, boxKey []byte) *SecretStore {
	return &SecretStore{db: db, boxKey: boxKey}
}

// OwnerSecret returns the secret for owner, generating and persisting one
// on first use. Concurrent first uses converge on whichever insert won.
func (s *SecretStore) OwnerSecret(ctx context.Context, owner string) ([]byte, error) {
	secret, err := s.selectOwnerSecret(ctx, owner)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	fresh, err := crypto.RandBytes(chc.SecretLen)
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.Seal(s.boxKey, fresh)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	const ins = `
INSERT INTO owner_secrets (id, owner, secret_enc)
VALUES ($1, $2, $3)`

	if _, err := s.db.Pool.Exec(ctx, ins, id, owner, sealed); err != nil {
		if isUniqueViolation(err) {
			return s.selectOwnerSecret(ctx, owner)
		}
		return nil, fmt.Errorf("%w: insert owner secret: %w", errs.ErrStorage, err)
	}
	return fresh, nil
}

// PutWrappedSeed stores the wrapped seed for (fileID, principal),
// overwriting any previous value.
func (s *SecretStore) PutWrappedSeed(ctx context.Context, fileID, principal string, wrapped []byte) error {
	sealed, err := crypto.Seal(s.boxKey, wrapped)
	if err != nil {
		return err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}

	const q = `
INSERT INTO wrapped_seeds (id, file_id, principal, seed_enc)
VALUES ($1, $2, $3, $4)
ON CONFLICT (file_id, principal) DO UPDATE SET seed_enc = EXCLUDED.seed_enc`

	if _, err := s.db.Pool.Exec(ctx, q, id, fileID, principal, sealed); err != nil {
		return fmt.Errorf("%w: upsert wrapped seed: %w", errs.ErrStorage, err)
	}
	return nil
}

// WrappedSeed returns the wrapped seed for (fileID, principal).
func (s *SecretStore) WrappedSeed(ctx context.Context, fileID, principal string) ([]byte, error) {
	const q = `
SELECT seed_enc
FROM wrapped_seeds
WHERE file_id=$1 AND principal=$2`

	var sealed []byte
	err := s.db.Pool.QueryRow(ctx, q, fileID, principal).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select wrapped seed: %w", errs.ErrStorage, err)
	}
	return crypto.Open(s.boxKey, sealed)
}

// DeleteWrappedSeeds removes every wrapped seed stored for fileID.
func (s *SecretStore) DeleteWrappedSeeds(ctx context.Context, fileID string) error {
	const q = `DELETE FROM wrapped_seeds WHERE file_id=$1`

	if _, err := s.db.Pool.Exec(ctx, q, fileID); err != nil {
		return fmt.Errorf("%w: delete wrapped seeds: %w", errs.ErrStorage, err)
	}
	return nil
}

// Counts returns how many owner secrets and wrapped seeds are stored.
func (s *SecretStore) Counts(ctx context.Context) (int, int, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM owner_secrets),
	(SELECT COUNT(*) FROM wrapped_seeds)`

	var owners, seeds int
	if err := s.db.Pool.QueryRow(ctx, q).Scan(&owners, &seeds); err != nil {
		return 0, 0, fmt.Errorf("%w: secret counts: %w", errs.ErrStorage, err)
	}
	return owners, seeds, nil
}

func (s *SecretStore) selectOwnerSecret(ctx context.Context, owner string) ([]byte, error) {
	const q = `
SELECT secret_enc
FROM owner_secrets
WHERE owner=$1`

	var sealed []byte
	err := s.db.Pool.QueryRow(ctx, q, owner).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select owner secret: %w", errs.ErrStorage, err)
	}
	return crypto.Open(s.boxKey, sealed)
}
