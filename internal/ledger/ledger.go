// Package ledger implements the hash-chained record ledger: append,
// lookup, audit logging with cascade relinking, verification, and repair.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainseal/chainseal/internal/errs"
	"github.com/chainseal/chainseal/internal/model"
	"github.com/chainseal/chainseal/internal/provenance"
	"github.com/chainseal/chainseal/internal/repository"
	"go.uber.org/zap"
)

// Genesis record constants. The genesis record anchors the chain: index 0,
// the "0" sentinel instead of a predecessor hash.
const (
	GenesisFileID   = "genesis"
	GenesisOwner    = "system"
	GenesisPrevHash = "0"
)

// Ledger owns the record chain. Every operation is a whole-sequence
// read-mutate-write cycle against the store; one mutex serializes them so
// concurrent appends and audit writes cannot lose updates.
type Ledger struct {
	store  repository.RecordStore
	signer *provenance.Signer
	log    *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New constructs a Ledger. signer may be nil (records then carry no
// attestation); logger may be nil.
func New(store repository.RecordStore, signer *provenance.Signer, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, signer: signer, log: logger, now: time.Now}
}

func (l *Ledger) timestamp() float64 {
	return float64(l.now().UnixNano()) / 1e9
}

// Init creates the genesis record if the ledger is empty. Append does the
// same lazily; Init exists for explicit bootstrap.
func (l *Ledger) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	if len(records) > 0 {
		return nil
	}
	gen, err := l.genesis()
	if err != nil {
		return err
	}
	if err := l.store.Replace(ctx, []model.Record{gen}); err != nil {
		return fmt.Errorf("persist genesis: %w", err)
	}
	l.log.Info("ledger initialized", zap.String("genesis_hash", gen.Hash))
	return nil
}

func (l *Ledger) genesis() (model.Record, error) {
	rec := model.Record{
		Index:     0,
		Timestamp: l.timestamp(),
		FileID:    GenesisFileID,
		Owner:     GenesisOwner,
		PrevHash:  GenesisPrevHash,
		Metadata:  &model.Metadata{Note: "chainseal genesis"},
	}
	rec.Hash = model.RecordHash(rec)
	if l.signer != nil {
		tok, err := l.signer.Issue(rec)
		if err != nil {
			return model.Record{}, fmt.Errorf("attest genesis: %w", err)
		}
		rec.Attestation = tok
	}
	return rec, nil
}

// Append registers a file and returns the new record. The authorized-user
// list is snapshotted by copy; later changes to the caller's slice do not
// reach the ledger. Duplicate file ids are rejected.
func (l *Ledger) Append(ctx context.Context, fileID, owner string, authorizedUsers []string, md *model.Metadata) (*model.Record, error) {
	if fileID == "" || owner == "" {
		return nil, errors.New("ledger: empty file id or owner")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		gen, err := l.genesis()
		if err != nil {
			return nil, err
		}
		records = append(records, gen)
	}
	for _, r := range records {
		if r.FileID == fileID {
			return nil, fmt.Errorf("file %s: %w", fileID, errs.ErrDuplicateFile)
		}
	}

	rec := model.Record{
		Index:           len(records),
		Timestamp:       l.timestamp(),
		FileID:          fileID,
		Owner:           owner,
		AuthorizedUsers: append([]string(nil), authorizedUsers...),
		PrevHash:        records[len(records)-1].Hash,
		Metadata:        md,
	}
	rec.Hash = model.RecordHash(rec)
	if l.signer != nil {
		tok, err := l.signer.Issue(rec)
		if err != nil {
			return nil, fmt.Errorf("attest record: %w", err)
		}
		rec.Attestation = tok
	}

	records = append(records, rec)
	if err := l.store.Replace(ctx, records); err != nil {
		return nil, fmt.Errorf("persist records: %w", err)
	}
	l.log.Info("record appended",
		zap.Int("index", rec.Index),
		zap.String("file_id", fileID),
		zap.String("owner", owner),
		zap.Int("authorized", len(rec.AuthorizedUsers)))
	out := rec.Clone()
	return &out, nil
}

// GetByFileID returns the first record registered under fileID.
func (l *Ledger) GetByFileID(ctx context.Context, fileID string) (*model.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	for _, r := range records {
		if r.FileID == fileID {
			out := r.Clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("file %s: %w", fileID, errs.ErrNotFound)
}

// AppendAuditEntry attaches an access-attempt entry to the record for
// fileID. The record's hash changes, so every successor is relinked and
// rehashed before the sequence is persisted.
func (l *Ledger) AppendAuditEntry(ctx context.Context, fileID string, e model.AuditEntry) error {
	switch e.Kind {
	case model.AuditGranted, model.AuditDenied, model.AuditFailed:
	default:
		return fmt.Errorf("ledger: unknown audit kind %q", e.Kind)
	}
	if e.Principal == "" {
		return errors.New("ledger: empty audit principal")
	}
	if e.Timestamp == 0 {
		e.Timestamp = l.timestamp()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	k := -1
	for i, r := range records {
		if r.FileID == fileID {
			k = i
			break
		}
	}
	if k < 0 {
		return fmt.Errorf("file %s: %w", fileID, errs.ErrNotFound)
	}

	records[k].AuditEntries = append(records[k].AuditEntries, e)
	records[k].Hash = model.RecordHash(records[k])
	for j := k + 1; j < len(records); j++ {
		records[j].PrevHash = records[j-1].Hash
		records[j].Hash = model.RecordHash(records[j])
	}

	if err := l.store.Replace(ctx, records); err != nil {
		return fmt.Errorf("persist records: %w", err)
	}
	l.log.Debug("audit entry appended",
		zap.String("file_id", fileID),
		zap.String("principal", e.Principal),
		zap.String("kind", e.Kind),
		zap.Int("cascaded", len(records)-k-1))
	return nil
}

// Check walks the chain and returns the first violation, or nil when the
// chain is intact. An empty ledger is a violation at index 0.
func (l *Ledger) Check(ctx context.Context) (*model.Violation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return checkRecords(records), nil
}

func checkRecords(records []model.Record) *model.Violation {
	if len(records) == 0 {
		return &model.Violation{Index: 0, Reason: "empty ledger"}
	}
	if records[0].PrevHash != GenesisPrevHash {
		return &model.Violation{Index: 0, Reason: "genesis prev hash is not the sentinel"}
	}
	if model.RecordHash(records[0]) != records[0].Hash {
		return &model.Violation{Index: 0, Reason: "hash mismatch"}
	}
	for i := 1; i < len(records); i++ {
		if model.RecordHash(records[i]) != records[i].Hash {
			return &model.Violation{Index: i, Reason: "hash mismatch"}
		}
		if records[i].PrevHash != records[i-1].Hash {
			return &model.Violation{Index: i, Reason: "broken link to predecessor"}
		}
	}
	return nil
}

// VerifyIntegrity reports whether the whole chain verifies.
func (l *Ledger) VerifyIntegrity(ctx context.Context) (bool, error) {
	v, err := l.Check(ctx)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

// RepairIntegrity relinks and rehashes the chain from index 0 and reports
// whether verification passes afterward. This is representation repair: it
// re-canonicalizes whatever content is present and cannot tell legitimate
// drift from tampering. Provenance attestations are the layer that still
// catches content forgery after a repair.
func (l *Ledger) RepairIntegrity(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		return false, nil
	}

	rewritten := 0
	for i := range records {
		prev := GenesisPrevHash
		if i > 0 {
			prev = records[i-1].Hash
		}
		records[i].PrevHash = prev
		h := model.RecordHash(records[i])
		if records[i].Hash != h {
			rewritten++
		}
		records[i].Hash = h
	}

	if err := l.store.Replace(ctx, records); err != nil {
		return false, fmt.Errorf("persist records: %w", err)
	}
	ok := checkRecords(records) == nil
	l.log.Info("ledger repair finished",
		zap.Int("records", len(records)),
		zap.Int("rewritten", rewritten),
		zap.Bool("verified", ok))
	return ok, nil
}

// AuditTrail returns the audit entries recorded for fileID.
func (l *Ledger) AuditTrail(ctx context.Context, fileID string) ([]model.AuditEntry, error) {
	rec, err := l.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return rec.AuditEntries, nil
}

// Records returns a snapshot of the whole chain.
func (l *Ledger) Records(ctx context.Context) ([]model.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	out := make([]model.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out, nil
}

// AccessibleTo returns every non-genesis record principal may read.
func (l *Ledger) AccessibleTo(ctx context.Context, principal string) ([]model.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	var out []model.Record
	for _, r := range records {
		if r.FileID == GenesisFileID {
			continue
		}
		if r.Authorized(principal) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}
