// Package service contains the sealing and access-control operations built
// on the ledger and the stores.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainseal/chainseal/internal/chc"
	"github.com/chainseal/chainseal/internal/errs"
	"github.com/chainseal/chainseal/internal/ledger"
	"github.com/chainseal/chainseal/internal/model"
	"github.com/chainseal/chainseal/internal/provenance"
	"github.com/chainseal/chainseal/internal/repository"
)

// SealService defines registration, sealing, reading and reporting over
// sealed files.
type SealService interface {
	// Register appends a ledger record for a new file.
	Register(ctx context.Context, fileID, owner string, authorizedUsers []string, md *model.Metadata) (*model.Record, error)
	// SealFile encrypts plaintext under a derived seed and stores the
	// ciphertext plus one wrapped seed per authorized principal.
	SealFile(ctx context.Context, plaintext, ownerSecret []byte, recordHash string, timestamp float64, fileID string) ([]byte, map[string][]byte, error)
	// Read authorizes principal, unwraps their seed and decrypts
	// ciphertext, recording the attempt in the audit trail.
	Read(ctx context.Context, fileID, principal string, ciphertext []byte) ([]byte, error)
	// Seal runs register + seal in one call.
	Seal(ctx context.Context, req model.SealRequest) (*model.SealResult, error)
	// Open fetches stored ciphertext and delegates to Read.
	Open(ctx context.Context, fileID, principal string) ([]byte, error)
	// FileID derives a fresh file id from filename and owner.
	FileID(filename, owner string) string
	// VerifyLedger reports whether the chain verifies.
	VerifyLedger(ctx context.Context) (bool, error)
	// RepairLedger relinks and rehashes the chain.
	RepairLedger(ctx context.Context) (bool, error)
	// AuditTrail returns the audit entries recorded for fileID.
	AuditTrail(ctx context.Context, fileID string) ([]model.AuditEntry, error)
	// ListAccessible returns the records principal may read.
	ListAccessible(ctx context.Context, principal string) ([]model.Record, error)
	// SecurityReport summarizes chain, provenance and audit state for one file.
	SecurityReport(ctx context.Context, fileID string) (*model.SecurityReport, error)
	// StorageStats aggregates counts across the stores.
	StorageStats(ctx context.Context) (*model.StorageStats, error)
	// Purge deletes stored ciphertext and wrapped seeds for fileID.
	Purge(ctx context.Context, fileID string) error
}

type SealServiceImpl struct {
	ledger  *ledger.Ledger
	blobs   repository.CiphertextStore
	secrets repository.SecretStore
	signer  *provenance.Signer
	logger  *zap.Logger
	now     func() time.Time
}

// NewSealService constructs SealService with required dependencies.
// signer may be nil (reports then mark provenance invalid); logger may be
// nil.
func NewSealService(led *ledger.Ledger, blobs repository.CiphertextStore, secrets repository.SecretStore, signer *provenance.Signer, logger *zap.Logger) *SealServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SealServiceImpl{
		ledger:  led,
		blobs:   blobs,
		secrets: secrets,
		signer:  signer,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *SealServiceImpl) timestamp() float64 {
	return float64(s.now().UnixNano()) / 1e9
}

// Register appends a ledger record for a new file.
func (s *SealServiceImpl) Register(ctx context.Context, fileID, owner string, authorizedUsers []string, md *model.Metadata) (*model.Record, error) {
	if fileID == "" || owner == "" {
		return nil, errors.New("validation: empty file id or owner")
	}
	return s.ledger.Append(ctx, fileID, owner, authorizedUsers, md)
}

// SealFile encrypts plaintext under the seed derived from (ownerSecret,
// recordHash, timestamp, fileID), stores the ciphertext and a wrapped copy
// of the seed for the owner and every authorized user. A file id that
// already has ciphertext is refused: seeds are single-use.
func (s *SealServiceImpl) SealFile(ctx context.Context, plaintext, ownerSecret []byte, recordHash string, timestamp float64, fileID string) ([]byte, map[string][]byte, error) {
	rec, err := s.ledger.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	sealed, err := s.blobs.Exists(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if sealed {
		return nil, nil, fmt.Errorf("file %s: %w", fileID, errs.ErrAlreadySealed)
	}

	seed, err := chc.DeriveSeed(ownerSecret, recordHash, timestamp, fileID)
	if err != nil {
		return nil, nil, err
	}
	ciphertext, err := chc.Encrypt(plaintext, seed)
	if err != nil {
		return nil, nil, err
	}
	if err := s.blobs.Put(ctx, fileID, ciphertext); err != nil {
		return nil, nil, err
	}

	principals := append([]string{rec.Owner}, rec.AuthorizedUsers...)
	wrapped := make(map[string][]byte, len(principals))
	for _, p := range principals {
		if _, ok := wrapped[p]; ok {
			continue
		}
		w, err := chc.WrapSeed(seed, chc.UserKey(p, fileID))
		if err != nil {
			return nil, nil, err
		}
		if err := s.secrets.PutWrappedSeed(ctx, fileID, p, w); err != nil {
			return nil, nil, err
		}
		wrapped[p] = w
	}

	s.logger.Info("file sealed",
		zap.String("file_id", fileID),
		zap.String("owner", rec.Owner),
		zap.Int("ciphertext_bytes", len(ciphertext)),
		zap.Int("wrapped_seeds", len(wrapped)))
	return ciphertext, wrapped, nil
}

// Read authorizes principal and decrypts ciphertext with their unwrapped
// seed. The outcome lands in the audit trail before Read returns: denied
// for failed authorization, failed for crypto errors, granted for success.
// A missing record or missing wrapped seed is not an access outcome and
// leaves no entry.
func (s *SealServiceImpl) Read(ctx context.Context, fileID, principal string, ciphertext []byte) ([]byte, error) {
	if principal == "" {
		return nil, errors.New("validation: empty principal")
	}
	rec, err := s.ledger.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if !rec.Authorized(principal) {
		if err := s.audit(ctx, fileID, principal, model.AuditDenied, "not in authorized users"); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("file %s, principal %s: %w", fileID, principal, errs.ErrAccessDenied)
	}

	wrapped, err := s.secrets.WrappedSeed(ctx, fileID, principal)
	if err != nil {
		return nil, err
	}
	seed, err := chc.UnwrapSeed(wrapped, chc.UserKey(principal, fileID))
	if err != nil {
		if aerr := s.audit(ctx, fileID, principal, model.AuditFailed, "seed unwrap failed"); aerr != nil {
			return nil, aerr
		}
		return nil, err
	}
	plaintext, err := chc.Decrypt(ciphertext, seed)
	if err != nil {
		if aerr := s.audit(ctx, fileID, principal, model.AuditFailed, "decrypt failed"); aerr != nil {
			return nil, aerr
		}
		return nil, err
	}

	if err := s.audit(ctx, fileID, principal, model.AuditGranted, ""); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// Seal registers the file and seals the plaintext in one call. The file id
// is generated from Filename and Owner when the request leaves it empty;
// metadata defaults to name, size and plaintext hash.
func (s *SealServiceImpl) Seal(ctx context.Context, req model.SealRequest) (*model.SealResult, error) {
	if req.Owner == "" {
		return nil, errors.New("validation: empty owner")
	}
	fileID := req.FileID
	if fileID == "" {
		if req.Filename == "" {
			return nil, errors.New("validation: empty file id and filename")
		}
		fileID = s.FileID(req.Filename, req.Owner)
	}
	md := req.Metadata
	if md == nil {
		md = &model.Metadata{
			OriginalName: req.Filename,
			Size:         int64(len(req.Plaintext)),
			ContentHash:  repository.Checksum(req.Plaintext),
		}
	}

	rec, err := s.ledger.Append(ctx, fileID, req.Owner, req.AuthorizedUsers, md)
	if err != nil {
		return nil, err
	}
	ownerSecret, err := s.secrets.OwnerSecret(ctx, req.Owner)
	if err != nil {
		return nil, err
	}
	ciphertext, wrapped, err := s.SealFile(ctx, req.Plaintext, ownerSecret, rec.Hash, rec.Timestamp, fileID)
	if err != nil {
		return nil, err
	}

	wrappedFor := make([]string, 0, len(wrapped))
	for _, p := range append([]string{rec.Owner}, rec.AuthorizedUsers...) {
		if _, ok := wrapped[p]; ok {
			wrappedFor = append(wrappedFor, p)
			delete(wrapped, p)
		}
	}
	return &model.SealResult{Record: rec, Ciphertext: len(ciphertext), WrappedFor: wrappedFor}, nil
}

// Open fetches the stored ciphertext for fileID and delegates to Read. A
// checksum mismatch aborts before any decryption and leaves no audit
// entry; at-rest rot is not an access outcome.
func (s *SealServiceImpl) Open(ctx context.Context, fileID, principal string) ([]byte, error) {
	ciphertext, err := s.blobs.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, fileID, principal, ciphertext)
}

// FileID derives a fresh file id from filename, owner and the current
// time: "file_" plus the first 12 hex digits of the SHA-256.
func (s *SealServiceImpl) FileID(filename, owner string) string {
	material := filename + ":" + owner + ":" + chc.FormatTimestamp(s.timestamp())
	sum := sha256.Sum256([]byte(material))
	return "file_" + hex.EncodeToString(sum[:])[:12]
}

func (s *SealServiceImpl) audit(ctx context.Context, fileID, principal, kind, detail string) error {
	e := model.AuditEntry{
		Principal: principal,
		Kind:      kind,
		Detail:    detail,
		Timestamp: s.timestamp(),
	}
	if err := s.ledger.AppendAuditEntry(ctx, fileID, e); err != nil {
		return fmt.Errorf("record %s audit entry: %w", kind, err)
	}
	return nil
}
