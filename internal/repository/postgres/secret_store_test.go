package postgres

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/chainseal/chainseal/internal/chc"
	"github.com/chainseal/chainseal/internal/crypto"
	"github.com/chainseal/chainseal/internal/errs"
)

var testBoxKey = bytes.Repeat([]byte{0x42}, 32)

func sealForTest(t *testing.T, plaintext []byte) []byte {
	t.Helper()
	sealed, err := crypto.Seal(testBoxKey, plaintext)
	require.NoError(t, err)
	return sealed
}

func TestSecretStore_OwnerSecret_CreatesOnFirstUse(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSecretStore(db, testBoxKey)

	ctx := context.Background()

	mock.ExpectQuery(`SELECT secret_enc FROM owner_secrets WHERE owner=\$1`).
		WithArgs("alice").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO owner_secrets \(id, owner, secret_enc\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs(pgxmock.AnyArg(), "alice", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	secret, err := s.OwnerSecret(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, secret, chc.SecretLen)
}

func TestSecretStore_OwnerSecret_ReturnsExisting(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSecretStore(db, testBoxKey)

	want := bytes.Repeat([]byte{0x07}, chc.SecretLen)
	mock.ExpectQuery(`SELECT secret_enc FROM owner_secrets WHERE owner=\$1`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"secret_enc"}).AddRow(sealForTest(t, want)))

	secret, err := s.OwnerSecret(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, want, secret)
}

func TestSecretStore_OwnerSecret_ConcurrentCreate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSecretStore(db, testBoxKey)

	winner := bytes.Repeat([]byte{0x09}, chc.SecretLen)

	mock.ExpectQuery(`SELECT secret_enc FROM owner_secrets WHERE owner=\$1`).
		WithArgs("alice").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO owner_secrets`).
		WithArgs(pgxmock.AnyArg(), "alice", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectQuery(`SELECT secret_enc FROM owner_secrets WHERE owner=\$1`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"secret_enc"}).AddRow(sealForTest(t, winner)))

	secret, err := s.OwnerSecret(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, winner, secret)
}

func TestSecretStore_OwnerSecret_InsertErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSecretStore(db, testBoxKey)

	mock.ExpectQuery(`SELECT secret_enc FROM owner_secrets WHERE owner=\$1`).
		WithArgs("alice").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO owner_secrets`).
		WithArgs(pgxmock.AnyArg(), "alice", pgxmock.AnyArg()).
		WillReturnError(errors.New("insert-fail"))

	_, err := s.OwnerSecret(context.Background(), "alice")
	require.ErrorIs(t, err, errs.ErrStorage)
}

func TestSecretStore_OwnerSecret_WrongBoxKey(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSecretStore(db, bytes.Repeat([]byte{0x01}, 32))

	want := bytes.Repeat([]byte{0x07}, chc.SecretLen)
	mock.ExpectQuery(`SELECT secret_enc FROM owner_secrets WHERE owner=\$1`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"secret_enc"}).AddRow(sealForTest(t, want)))

	_, err := s.OwnerSecret(context.Background(), "alice")
	require.Error(t, err)
}

func TestSecretStore_WrappedSeed_RoundTrip(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSecretStore(db, testBoxKey)

	ctx := context.Background()
	wrapped := bytes.Repeat([]byte{0x33}, chc.SeedLen)

	mock.ExpectExec(`INSERT INTO wrapped_seeds \(id, file_id, principal, seed_enc\) VALUES \(\$1, \$2, \$3, \$4\) ON CONFLICT \(file_id, principal\) DO UPDATE SET seed_enc = EXCLUDED.seed_enc`).
		WithArgs(pgxmock.AnyArg(), "file_0011223344aa", "bob", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.PutWrappedSeed(ctx, "file_0011223344aa", "bob", wrapped))

	mock.ExpectQuery(`SELECT seed_enc FROM wrapped_seeds WHERE file_id=\$1 AND principal=\$2`).
		WithArgs("file_0011223344aa", "bob").
		WillReturnRows(pgxmock.NewRows([]string{"seed_enc"}).AddRow(sealForTest(t, wrapped)))

	got, err := s.WrappedSeed(ctx, "file_0011223344aa", "bob")
	require.NoError(t, err)
	require.Equal(t, wrapped, got)
}

func TestSecretStore_WrappedSeed_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSecretStore(db, testBoxKey)

	mock.ExpectQuery(`SELECT seed_enc FROM wrapped_seeds WHERE file_id=\$1 AND principal=\$2`).
		WithArgs("file_0011223344aa", "mallory").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.WrappedSeed(context.Background(), "file_0011223344aa", "mallory")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSecretStore_DeleteWrappedSeeds(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSecretStore(db, testBoxKey)

	mock.ExpectExec(`DELETE FROM wrapped_seeds WHERE file_id=\$1`).
		WithArgs("file_0011223344aa").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.DeleteWrappedSeeds(context.Background(), "file_0011223344aa"))
}

func TestSecretStore_Counts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSecretStore(db, testBoxKey)

	mock.ExpectQuery(`SELECT \(SELECT COUNT\(\*\) FROM owner_secrets\), \(SELECT COUNT\(\*\) FROM wrapped_seeds\)`).
		WillReturnRows(pgxmock.NewRows([]string{"owners", "seeds"}).AddRow(2, 5))

	owners, seeds, err := s.Counts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, owners)
	require.Equal(t, 5, seeds)
}
