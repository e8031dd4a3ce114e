// Package checkpoint persists the run's match ledger between invocations.
//
// The ledger is written as an ordered JSON list of tagged match records after
// every checkpoint interval and synchronously before any fatal error
// propagates, so a restarted run resumes exactly where the previous one
// stopped without re-querying remote services.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/homexhq/catalog-merge/internal/model"
)

// Store reads and writes one run's checkpoint file plus the revisit side
// list. Single writer, single reader, disjoint runs; no locking needed.
type Store struct {
	path        string
	revisitPath string
}

// NewStore creates a store for the given checkpoint path. The revisit list
// lives next to the checkpoint file.
func NewStore(path string) *Store {
	return &Store{
		path:        path,
		revisitPath: filepath.Join(filepath.Dir(path), "items-to-revisit.txt"),
	}
}

// Load reads the prior run's ledger. A missing file is not an error: it means
// a fresh run, and an empty ledger is returned.
func (s *Store) Load() ([]model.MatchRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}

	var records []model.MatchRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", s.path, err)
	}
	for i, record := range records {
		if err := record.Validate(); err != nil {
			return nil, fmt.Errorf("checkpoint %s record %d: %w", s.path, i, err)
		}
	}
	return records, nil
}

// Save writes the full ledger. The write is atomic (temp file then rename) so
// an interrupted save never corrupts the previous checkpoint.
func (s *Store) Save(records []model.MatchRecord) error {
	if records == nil {
		records = []model.MatchRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint %s: %w", s.path, err)
	}
	return nil
}

// AppendRevisit records an item that needs manual review after the matching
// policy degraded it to a no-match.
func (s *Store) AppendRevisit(ref model.ItemReference) error {
	if err := os.MkdirAll(filepath.Dir(s.revisitPath), 0o755); err != nil {
		return fmt.Errorf("create revisit dir: %w", err)
	}
	f, err := os.OpenFile(s.revisitPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open revisit list: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "%s,%s,%d\n", ref.Provider, ref.Sheet, ref.ID); err != nil {
		return fmt.Errorf("append to revisit list: %w", err)
	}
	return nil
}
