// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/chainseal/chainseal/internal/model"
)

// RecordStore persists the ordered ledger sequence. The ledger mutates by
// loading the whole sequence, rewriting it, and replacing it; Replace must
// be atomic so a crash never leaves a partially written chain.
type RecordStore interface {
	// Load returns every record in index order, genesis first.
	Load(ctx context.Context) ([]model.Record, error)

	// Replace atomically swaps the stored sequence for records.
	Replace(ctx context.Context, records []model.Record) error
}
