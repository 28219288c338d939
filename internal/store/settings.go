package store

import (
	"context"
	"sync"
	"time"

	"github.com/ppiankov/applytrail/internal/model"
)

// SettingsStore persists user settings and the watermark in a JSON file
type SettingsStore struct {
	path string
	seed model.Settings
	mu   sync.Mutex
}

// NewSettingsStore creates a settings store. seed is returned until the
// first save.
func NewSettingsStore(path string, seed model.Settings) *SettingsStore {
	if seed.Credentials == nil {
		seed.Credentials = map[string]string{}
	}
	return &SettingsStore{path: path, seed: seed}
}

// Load returns the stored settings, or the seed when nothing is saved
func (s *SettingsStore) Load(ctx context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *SettingsStore) load() (model.Settings, error) {
	var settings model.Settings
	found, err := readJSON(s.path, &settings)
	if err != nil {
		return model.Settings{}, err
	}
	if !found {
		settings = s.seed
		settings.Credentials = copyMap(s.seed.Credentials)
	}
	if settings.Credentials == nil {
		settings.Credentials = map[string]string{}
	}
	return settings, nil
}

// Save validates and writes settings
func (s *SettingsStore) Save(ctx context.Context, settings model.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path, settings)
}

// Update applies fn to the current settings and saves the result
func (s *SettingsStore) Update(ctx context.Context, fn func(*model.Settings) error) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return model.Settings{}, err
	}
	if err := fn(&settings); err != nil {
		return model.Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return model.Settings{}, err
	}
	if err := writeJSON(s.path, settings); err != nil {
		return model.Settings{}, err
	}
	return settings, nil
}

// AdvanceWatermark moves the watermark forward to t. It never moves back.
func (s *SettingsStore) AdvanceWatermark(ctx context.Context, t time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return time.Time{}, err
	}
	if t.IsZero() || !t.After(settings.Watermark) {
		return settings.Watermark, nil
	}

	settings.Watermark = t
	if err := writeJSON(s.path, settings); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
