package repository

import "context"

// SecretStore holds per-owner secrets and per-principal wrapped seeds.
// Implementations encrypt both at rest; neither ever appears in ledger
// records.
type SecretStore interface {
	// OwnerSecret returns the 32-byte secret for owner, creating and
	// persisting one on first use.
	OwnerSecret(ctx context.Context, owner string) ([]byte, error)

	// PutWrappedSeed stores the wrapped seed for (fileID, principal),
	// overwriting any previous value.
	PutWrappedSeed(ctx context.Context, fileID, principal string, wrapped []byte) error

	// WrappedSeed returns the wrapped seed for (fileID, principal);
	// errs.ErrNotFound when absent.
	WrappedSeed(ctx context.Context, fileID, principal string) ([]byte, error)

	// DeleteWrappedSeeds removes every wrapped seed stored for fileID.
	DeleteWrappedSeeds(ctx context.Context, fileID string) error

	// Counts returns how many owner secrets and wrapped seeds are stored.
	Counts(ctx context.Context) (owners, seeds int, err error)
}
