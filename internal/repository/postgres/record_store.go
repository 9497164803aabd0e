package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chainseal/chainseal/internal/errs"
	"github.com/chainseal/chainseal/internal/model"
)

// RecordStore persists the ledger chain in PostgreSQL. Each record is one
// JSONB row keyed by its chain index; Replace swaps the entire sequence
// inside a single transaction so readers never observe a partial chain.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a RecordStore backed by db.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// Load returns all records ordered by chain index.
func (r *RecordStore) Load(ctx context.Context) ([]model.Record, error) {
	const q = `
SELECT record
FROM ledger_records
ORDER BY idx ASC`

	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: select records: %w", errs.ErrStorage, err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: scan record: %w", errs.ErrStorage, err)
		}
		var rec model.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: decode record: %w", errs.ErrStorage, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %w", errs.ErrStorage, err)
	}
	return out, nil
}

// Replace atomically swaps the stored chain for records.
func (r *RecordStore) Replace(ctx context.Context, records []model.Record) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin: %w", errs.ErrStorage, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("%w: commit: %w", errs.ErrStorage, e)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM ledger_records`); err != nil {
		return fmt.Errorf("%w: clear records: %w", errs.ErrStorage, err)
	}

	const ins = `
INSERT INTO ledger_records (idx, file_id, record)
VALUES ($1, $2, $3)`

	for i := range records {
		raw, merr := json.Marshal(records[i])
		if merr != nil {
			return fmt.Errorf("encode record %d: %w", records[i].Index, merr)
		}
		if _, err = tx.Exec(ctx, ins, records[i].Index, records[i].FileID, raw); err != nil {
			return fmt.Errorf("%w: insert record %d: %w", errs.ErrStorage, records[i].Index, err)
		}
	}
	return nil
}
