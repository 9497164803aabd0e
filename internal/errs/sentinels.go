// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/ledger/service layers.
var (
	// ErrNotFound indicates the requested record, ciphertext, or wrapped seed does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity indicates ledger verification failed and a repair pass did not fix it.
	ErrIntegrity = errors.New("ledger integrity violated")

	// ErrChecksumMismatch indicates stored ciphertext no longer matches its checksum.
	ErrChecksumMismatch = errors.New("ciphertext checksum mismatch")

	// ErrAccessDenied indicates the principal is neither owner nor authorized for the file.
	ErrAccessDenied = errors.New("access denied")

	// ErrCrypto indicates malformed key or seed material (wrong length).
	ErrCrypto = errors.New("invalid key material")

	// ErrStorage indicates the backing store is unavailable or failed mid-operation.
	ErrStorage = errors.New("storage failure")

	// ErrDuplicateFile indicates the file id is already registered in the ledger.
	ErrDuplicateFile = errors.New("file id already registered")

	// ErrAlreadySealed indicates ciphertext already exists for the file id; seeds are single-use.
	ErrAlreadySealed = errors.New("file already sealed")
)
