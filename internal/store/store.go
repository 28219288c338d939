// Package store persists the seen set, application records and settings.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/applytrail/internal/model"
)

// SeenStore tracks item ids that have been attempted, whatever the outcome
type SeenStore interface {
	Contains(ctx context.Context, id string) (bool, error)

	// MarkMany adds ids; re-marking an id is a no-op
	MarkMany(ctx context.Context, ids []string) error

	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)

	// Snapshot returns the current set for bulk filtering
	Snapshot(ctx context.Context) (map[string]struct{}, error)
}

// AppendResult reports what an append did
type AppendResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// RecordStore is an append-only record table keyed by item id
type RecordStore interface {
	// Append inserts candidates whose item id is not already stored
	Append(ctx context.Context, records []model.Record) (AppendResult, error)

	// ReadAll returns records in insertion order
	ReadAll(ctx context.Context) ([]model.Record, error)

	Count(ctx context.Context) (int, error)
}

// readJSON decodes path into v. A missing file leaves v untouched and
// returns false.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// writeJSON writes v to path atomically (temp file + rename)
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
