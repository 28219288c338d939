package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Backend names accepted by the inference factory
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendGemini    = "gemini"
	BackendGroq      = "groq"
	BackendOllama    = "ollama"
)

// Backends lists every selectable backend
var Backends = []string{BackendOpenAI, BackendAnthropic, BackendGemini, BackendGroq, BackendOllama}

// LookbackChoices is the fixed set of lookback windows, in days
var LookbackChoices = []int{7, 14, 30, 60, 90}

const (
	DefaultLookbackDays = 30
	DefaultMaxItems     = 50
	MinMaxItems         = 1
	MaxMaxItems         = 200
)

// Settings is the persisted, user-editable state of the tracker
type Settings struct {
	Backend       string            `json:"backend" yaml:"backend"`
	Credentials   map[string]string `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	LookbackDays  int               `json:"lookback_days" yaml:"lookback_days"`
	MaxItems      int               `json:"max_items" yaml:"max_items"`
	Authenticated bool              `json:"authenticated" yaml:"authenticated"`

	// Watermark is the latest received time observed across all runs.
	// It is diagnostic: the seen set decides what gets reprocessed.
	Watermark time.Time `json:"watermark,omitempty" yaml:"watermark,omitempty"`
}

// DefaultSettings returns the settings used before anything is saved
func DefaultSettings() Settings {
	return Settings{
		Backend:      BackendOpenAI,
		Credentials:  map[string]string{},
		LookbackDays: DefaultLookbackDays,
		MaxItems:     DefaultMaxItems,
	}
}

// Validate checks enumerations and ranges
func (s Settings) Validate() error {
	if !slices.Contains(Backends, strings.ToLower(s.Backend)) {
		return fmt.Errorf("%w: unknown backend %q (supported: %s)", ErrInvalidSettings, s.Backend, strings.Join(Backends, ", "))
	}
	if !slices.Contains(LookbackChoices, s.LookbackDays) {
		return fmt.Errorf("%w: lookback must be one of %v days, got %d", ErrInvalidSettings, LookbackChoices, s.LookbackDays)
	}
	if s.MaxItems < MinMaxItems || s.MaxItems > MaxMaxItems {
		return fmt.Errorf("%w: max items must be within [%d, %d], got %d", ErrInvalidSettings, MinMaxItems, MaxMaxItems, s.MaxItems)
	}
	return nil
}

// Credential returns the stored credential for a backend
func (s Settings) Credential(backend string) string {
	if s.Credentials == nil {
		return ""
	}
	return s.Credentials[strings.ToLower(backend)]
}

// MaskedCredentials returns credentials with all but the last four characters hidden
func (s Settings) MaskedCredentials() map[string]string {
	masked := make(map[string]string, len(s.Credentials))
	for k, v := range s.Credentials {
		if len(v) <= 4 {
			masked[k] = strings.Repeat("*", len(v))
			continue
		}
		masked[k] = strings.Repeat("*", len(v)-4) + v[len(v)-4:]
	}
	return masked
}
