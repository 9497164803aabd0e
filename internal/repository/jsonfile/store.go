// Package jsonfile implements RecordStore as a single JSON document on
// disk, the format the chainseal CLI uses by default.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chainseal/chainseal/internal/errs"
	"github.com/chainseal/chainseal/internal/model"
)

// Store persists the ledger as a pretty-printed JSON array of records.
// Replace writes to a temp file in the same directory and renames it over
// the target, so a crash mid-write leaves the previous chain intact.
type Store struct {
	path string
}

// New creates a Store writing to path. The file is created on first
// Replace; a missing file loads as an empty chain.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the chain from disk. A missing file is an empty chain, not
// an error.
func (s *Store) Load(ctx context.Context) ([]model.Record, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %w", errs.ErrStorage, err)
	}

	var records []model.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: decode ledger: %w", errs.ErrStorage, err)
	}
	return records, nil
}

// Replace atomically swaps the stored chain for records.
func (s *Store) Replace(ctx context.Context, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp ledger: %w", errs.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write ledger: %w", errs.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync ledger: %w", errs.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close ledger: %w", errs.ErrStorage, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: replace ledger: %w", errs.ErrStorage, err)
	}
	return nil
}
