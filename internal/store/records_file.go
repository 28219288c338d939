package store

import (
	"context"
	"sync"

	"github.com/ppiankov/applytrail/internal/model"
)

type recordsFile struct {
	Records []model.Record `json:"records"`
}

// FileRecordStore keeps records in a JSON file
type FileRecordStore struct {
	path string
	mu   sync.Mutex
}

// NewFileRecordStore creates a file-backed record store
func NewFileRecordStore(path string) *FileRecordStore {
	return &FileRecordStore{path: path}
}

func (s *FileRecordStore) read() ([]model.Record, error) {
	var f recordsFile
	if _, err := readJSON(s.path, &f); err != nil {
		return nil, err
	}
	return f.Records, nil
}

// Append dedups candidates against a full scan of the stored records and
// against each other, then appends the new ones.
func (s *FileRecordStore) Append(ctx context.Context, records []model.Record) (AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return AppendResult{}, err
	}

	fresh, result := dedup(existing, records)
	if len(fresh) == 0 {
		return result, nil
	}

	if err := writeJSON(s.path, recordsFile{Records: append(existing, fresh...)}); err != nil {
		return AppendResult{Duplicates: result.Duplicates}, err
	}
	return result, nil
}

// ReadAll returns records in insertion order
func (s *FileRecordStore) ReadAll(ctx context.Context) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.Record{}
	}
	return records, nil
}

// Count returns the number of stored records
func (s *FileRecordStore) Count(ctx context.Context) (int, error) {
	records, err := s.ReadAll(ctx)
	return len(records), err
}

// dedup splits candidates into new records and duplicates by item id
func dedup(existing, candidates []model.Record) ([]model.Record, AppendResult) {
	ids := make(map[string]struct{}, len(existing)+len(candidates))
	for _, r := range existing {
		ids[r.ItemID] = struct{}{}
	}

	var fresh []model.Record
	var result AppendResult
	for _, r := range candidates {
		if _, ok := ids[r.ItemID]; ok {
			result.Duplicates++
			continue
		}
		ids[r.ItemID] = struct{}{}
		fresh = append(fresh, r)
		result.Inserted++
	}
	return fresh, result
}
