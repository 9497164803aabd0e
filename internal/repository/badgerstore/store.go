// Package badgerstore implements the ciphertext and secret stores on an
// embedded Badger database, for single-node deployments without PostgreSQL.
package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/chainseal/chainseal/internal/chc"
	"github.com/chainseal/chainseal/internal/crypto"
	"github.com/chainseal/chainseal/internal/errs"
	"github.com/chainseal/chainseal/internal/repository"
)

// Key layout. File ids are hex-derived and principals are caller-chosen
// names; the "/" separator never appears in a file id.
//
//	ct/<fileID>            ciphertext bytes
//	ck/<fileID>            hex checksum of the ciphertext
//	os/<owner>             sealed owner secret
//	ws/<fileID>/<principal> sealed wrapped seed

// Store keeps ciphertexts, owner secrets and wrapped seeds in one Badger
// database. Secrets and seeds are sealed with XChaCha20-Poly1305 under
// boxKey before being written.
type Store struct {
	db     *badger.DB
	boxKey []byte
}

// Open opens or creates the Badger database at path. Writes are synced;
// a lost wrapped seed cannot be rederived without the owner secret.
func Open(path string, boxKey []byte) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %w", errs.ErrStorage, err)
	}
	return &Store{db: db, boxKey: boxKey}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func ctKey(fileID string) []byte { return []byte("ct/" + fileID) }
func ckKey(fileID string) []byte { return []byte("ck/" + fileID) }
func osKey(owner string) []byte  { return []byte("os/" + owner) }

func wsKey(fileID, principal string) []byte { return []byte("ws/" + fileID + "/" + principal) }
func wsPrefix(fileID string) []byte         { return []byte("ws/" + fileID + "/") }

// Put stores ciphertext under fileID, failing with errs.ErrAlreadySealed
// if the id is taken.
func (s *Store) Put(ctx context.Context, fileID string, ciphertext []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(ctKey(fileID))
		if err == nil {
			return fmt.Errorf("ciphertext %s: %w", fileID, errs.ErrAlreadySealed)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: check ciphertext: %w", errs.ErrStorage, err)
		}
		if err := txn.Set(ctKey(fileID), ciphertext); err != nil {
			return fmt.Errorf("%w: put ciphertext: %w", errs.ErrStorage, err)
		}
		if err := txn.Set(ckKey(fileID), []byte(repository.Checksum(ciphertext))); err != nil {
			return fmt.Errorf("%w: put checksum: %w", errs.ErrStorage, err)
		}
		return nil
	})
}

// Get returns the ciphertext for fileID after verifying its checksum.
func (s *Store) Get(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		data, err = s.verified(txn, fileID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Exists reports whether ciphertext is stored for fileID.
func (s *Store) Exists(ctx context.Context, fileID string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(ctKey(fileID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: check ciphertext: %w", errs.ErrStorage, err)
		}
		found = true
		return nil
	})
	return found, err
}

// VerifyChecksum recomputes the stored ciphertext's checksum.
func (s *Store) VerifyChecksum(ctx context.Context, fileID string) (bool, error) {
	ok := true
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := s.verified(txn, fileID)
		if errors.Is(err, errs.ErrChecksumMismatch) {
			ok = false
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Delete removes the ciphertext and its checksum. Absent ids are not an
// error.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(ctKey(fileID)); err != nil {
			return fmt.Errorf("%w: delete ciphertext: %w", errs.ErrStorage, err)
		}
		if err := txn.Delete(ckKey(fileID)); err != nil {
			return fmt.Errorf("%w: delete checksum: %w", errs.ErrStorage, err)
		}
		return nil
	})
}

// Stats returns the number of stored ciphertexts and their total size.
func (s *Store) Stats(ctx context.Context) (int, int64, error) {
	var (
		count int
		total int64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("ct/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
			total += it.Item().ValueSize()
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: ciphertext stats: %w", errs.ErrStorage, err)
	}
	return count, total, nil
}

// OwnerSecret returns the secret for owner, generating and persisting one
// on first use. The read-or-create runs in one transaction.
func (s *Store) OwnerSecret(ctx context.Context, owner string) ([]byte, error) {
	var secret []byte
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(osKey(owner))
		if err == nil {
			sealed, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("%w: read owner secret: %w", errs.ErrStorage, err)
			}
			secret, err = crypto.Open(s.boxKey, sealed)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: read owner secret: %w", errs.ErrStorage, err)
		}

		secret, err = crypto.RandBytes(chc.SecretLen)
		if err != nil {
			return err
		}
		sealed, err := crypto.Seal(s.boxKey, secret)
		if err != nil {
			return err
		}
		if err := txn.Set(osKey(owner), sealed); err != nil {
			return fmt.Errorf("%w: put owner secret: %w", errs.ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// PutWrappedSeed stores the wrapped seed for (fileID, principal),
// overwriting any previous value.
func (s *Store) PutWrappedSeed(ctx context.Context, fileID, principal string, wrapped []byte) error {
	sealed, err := crypto.Seal(s.boxKey, wrapped)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(wsKey(fileID, principal), sealed); err != nil {
			return fmt.Errorf("%w: put wrapped seed: %w", errs.ErrStorage, err)
		}
		return nil
	})
}

// WrappedSeed returns the wrapped seed for (fileID, principal).
func (s *Store) WrappedSeed(ctx context.Context, fileID, principal string) ([]byte, error) {
	var sealed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(wsKey(fileID, principal))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: read wrapped seed: %w", errs.ErrStorage, err)
		}
		sealed, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("%w: read wrapped seed: %w", errs.ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return crypto.Open(s.boxKey, sealed)
}

// DeleteWrappedSeeds removes every wrapped seed stored for fileID.
func (s *Store) DeleteWrappedSeeds(ctx context.Context, fileID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		prefix := wsPrefix(fileID)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("%w: delete wrapped seed: %w", errs.ErrStorage, err)
			}
		}
		return nil
	})
}

// Counts returns how many owner secrets and wrapped seeds are stored.
func (s *Store) Counts(ctx context.Context) (int, int, error) {
	var owners, seeds int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, p := range []struct {
			prefix []byte
			n      *int
		}{
			{[]byte("os/"), &owners},
			{[]byte("ws/"), &seeds},
		} {
			for it.Seek(p.prefix); it.ValidForPrefix(p.prefix); it.Next() {
				*p.n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: secret counts: %w", errs.ErrStorage, err)
	}
	return owners, seeds, nil
}

func (s *Store) verified(txn *badger.Txn, fileID string) ([]byte, error) {
	item, err := txn.Get(ctKey(fileID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ciphertext: %w", errs.ErrStorage, err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: read ciphertext: %w", errs.ErrStorage, err)
	}

	ck, err := txn.Get(ckKey(fileID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("ciphertext %s: %w", fileID, errs.ErrChecksumMismatch)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read checksum: %w", errs.ErrStorage, err)
	}
	sum, err := ck.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: read checksum: %w", errs.ErrStorage, err)
	}

	if repository.Checksum(data) != string(sum) {
		return nil, fmt.Errorf("ciphertext %s: %w", fileID, errs.ErrChecksumMismatch)
	}
	return data, nil
}
