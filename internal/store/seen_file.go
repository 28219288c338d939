package store

import (
	"context"
	"slices"
	"sync"
)

type seenFile struct {
	IDs []string `json:"ids"`
}

// FileSeenStore keeps the seen set in a JSON file
type FileSeenStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	ids    []string
	index  map[string]struct{}
}

// NewFileSeenStore creates a file-backed seen store
func NewFileSeenStore(path string) *FileSeenStore {
	return &FileSeenStore{path: path}
}

func (s *FileSeenStore) load() error {
	if s.loaded {
		return nil
	}

	var f seenFile
	if _, err := readJSON(s.path, &f); err != nil {
		return err
	}

	s.ids = make([]string, 0, len(f.IDs))
	s.index = make(map[string]struct{}, len(f.IDs))
	for _, id := range f.IDs {
		if _, ok := s.index[id]; ok {
			continue
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	s.loaded = true
	return nil
}

// Contains reports whether id has been attempted
func (s *FileSeenStore) Contains(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return false, err
	}
	_, ok := s.index[id]
	return ok, nil
}

// MarkMany adds ids and persists the set when anything changed
func (s *FileSeenStore) MarkMany(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}

	var added []string
	pending := make(map[string]struct{})
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.index[id]; ok {
			continue
		}
		if _, ok := pending[id]; ok {
			continue
		}
		pending[id] = struct{}{}
		added = append(added, id)
	}
	if len(added) == 0 {
		return nil
	}

	// the in-memory set only changes once the file does
	next := append(slices.Clone(s.ids), added...)
	if err := writeJSON(s.path, seenFile{IDs: next}); err != nil {
		return err
	}
	for _, id := range added {
		s.index[id] = struct{}{}
	}
	s.ids = next
	return nil
}

// Clear forgets every id
func (s *FileSeenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = nil
	s.index = map[string]struct{}{}
	s.loaded = true
	return writeJSON(s.path, seenFile{IDs: []string{}})
}

// Count returns the number of ids in the set
func (s *FileSeenStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return 0, err
	}
	return len(s.ids), nil
}

// Snapshot returns a copy of the set
func (s *FileSeenStore) Snapshot(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(s.index))
	for id := range s.index {
		out[id] = struct{}{}
	}
	return out, nil
}
