package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainseal/chainseal/internal/errs"
	"github.com/chainseal/chainseal/internal/model"
)

// maxReportEntries caps the audit tail included in a security report.
const maxReportEntries = 5

// VerifyLedger reports whether the chain verifies.
func (s *SealServiceImpl) VerifyLedger(ctx context.Context) (bool, error) {
	return s.ledger.VerifyIntegrity(ctx)
}

// RepairLedger relinks and rehashes the chain and reports whether it
// verifies afterward.
func (s *SealServiceImpl) RepairLedger(ctx context.Context) (bool, error) {
	return s.ledger.RepairIntegrity(ctx)
}

// AuditTrail returns the audit entries recorded for fileID.
func (s *SealServiceImpl) AuditTrail(ctx context.Context, fileID string) ([]model.AuditEntry, error) {
	return s.ledger.AuditTrail(ctx, fileID)
}

// ListAccessible returns the records principal may read.
func (s *SealServiceImpl) ListAccessible(ctx context.Context, principal string) ([]model.Record, error) {
	return s.ledger.AccessibleTo(ctx, principal)
}

// SecurityReport summarizes the security state of one sealed file. A
// failing chain gets one repair attempt first; if verification still
// fails the report is refused with errs.ErrIntegrity.
func (s *SealServiceImpl) SecurityReport(ctx context.Context, fileID string) (*model.SecurityReport, error) {
	ok, err := s.ledger.VerifyIntegrity(ctx)
	if err != nil {
		return nil, err
	}
	repaired := false
	if !ok {
		s.logger.Warn("ledger verification failed, attempting repair", zap.String("file_id", fileID))
		repaired = true
		ok, err = s.ledger.RepairIntegrity(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("ledger unverifiable after repair: %w", errs.ErrIntegrity)
		}
	}

	rec, err := s.ledger.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	provValid := false
	if s.signer != nil && rec.Attestation != "" {
		provValid = s.signer.Verify(rec.Attestation, *rec) == nil
	}

	var granted, denied, failed int
	for _, e := range rec.AuditEntries {
		switch e.Kind {
		case model.AuditGranted:
			granted++
		case model.AuditDenied:
			denied++
		case model.AuditFailed:
			failed++
		}
	}
	last := rec.AuditEntries
	if len(last) > maxReportEntries {
		last = last[len(last)-maxReportEntries:]
	}

	return &model.SecurityReport{
		FileID:          rec.FileID,
		Owner:           rec.Owner,
		AuthorizedUsers: rec.AuthorizedUsers,
		RegisteredAt:    rec.Timestamp,
		ChainValid:      ok,
		ChainRepaired:   repaired,
		ProvenanceValid: provValid,
		Granted:         granted,
		Denied:          denied,
		Failed:          failed,
		LastEntries:     last,
	}, nil
}

// StorageStats aggregates counts across the three stores. The record
// count includes genesis.
func (s *SealServiceImpl) StorageStats(ctx context.Context) (*model.StorageStats, error) {
	records, err := s.ledger.Records(ctx)
	if err != nil {
		return nil, err
	}
	count, total, err := s.blobs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	owners, seeds, err := s.secrets.Counts(ctx)
	if err != nil {
		return nil, err
	}
	return &model.StorageStats{
		Records:         len(records),
		Ciphertexts:     count,
		CiphertextBytes: total,
		Owners:          owners,
		WrappedSeeds:    seeds,
	}, nil
}

// Purge deletes the stored ciphertext and wrapped seeds for fileID. The
// ledger record stays; registration history is never deleted.
func (s *SealServiceImpl) Purge(ctx context.Context, fileID string) error {
	if _, err := s.ledger.GetByFileID(ctx, fileID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, fileID); err != nil {
		return err
	}
	if err := s.secrets.DeleteWrappedSeeds(ctx, fileID); err != nil {
		return err
	}
	s.logger.Info("file purged", zap.String("file_id", fileID))
	return nil
}
