package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the static configuration loaded from file, env and flags.
// User-editable run settings live in Settings and are persisted separately.
type Config struct {
	Data     DataConfig     `mapstructure:"data" yaml:"data"`
	Gmail    GmailConfig    `mapstructure:"gmail" yaml:"gmail"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
}

// DataConfig locates local state
type DataConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	ExportDir string `mapstructure:"export_dir" yaml:"export_dir"`
}

// GmailConfig configures the mail source
type GmailConfig struct {
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string        `mapstructure:"token_file" yaml:"token_file"`
	User            string        `mapstructure:"user" yaml:"user"`
	DetailWorkers   int           `mapstructure:"detail_workers" yaml:"detail_workers"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	RevokeURL       string        `mapstructure:"revoke_url" yaml:"revoke_url"`
}

// LLMConfig configures inference backends. The active backend and its
// credential come from Settings.
type LLMConfig struct {
	Models            map[string]string  `mapstructure:"models" yaml:"models"`
	BaseURLs          map[string]string  `mapstructure:"base_urls" yaml:"base_urls,omitempty"`
	Timeout           int                `mapstructure:"timeout" yaml:"timeout"` // seconds, per call
	MaxTokens         int                `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerSecond float64            `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int                `mapstructure:"burst" yaml:"burst"`
	BackendRates      map[string]float64 `mapstructure:"backend_rates" yaml:"backend_rates,omitempty"` // <= 0 is unlimited
	HTTPProxy         string             `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy        string             `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy           string             `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// PipelineConfig tunes the orchestrator
type PipelineConfig struct {
	FetchCeiling     int           `mapstructure:"fetch_ceiling" yaml:"fetch_ceiling"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff" yaml:"rate_limit_backoff"`
	ItemDelay        time.Duration `mapstructure:"item_delay" yaml:"item_delay"`
}

// StorageConfig selects the seen-set and record backends
type StorageConfig struct {
	SeenBackend    string `mapstructure:"seen_backend" yaml:"seen_backend"`       // file, redis
	RecordsBackend string `mapstructure:"records_backend" yaml:"records_backend"` // file, postgres
	RedisAddr      string `mapstructure:"redis_addr" yaml:"redis_addr,omitempty"`
	RedisKey       string `mapstructure:"redis_key" yaml:"redis_key,omitempty"`
	PostgresURL    string `mapstructure:"postgres_url" yaml:"postgres_url,omitempty"`
}

// ServerConfig configures the HTTP control surface
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LogConfig configures zap
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console, json
}

// DefaultsConfig seeds Settings the first time they are loaded
type DefaultsConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"`
	LookbackDays int    `mapstructure:"lookback_days" yaml:"lookback_days"`
	MaxItems     int    `mapstructure:"max_items" yaml:"max_items"`
}

// Seed returns the initial settings
func (d DefaultsConfig) Seed() Settings {
	s := DefaultSettings()
	if d.Backend != "" {
		s.Backend = d.Backend
	}
	if d.LookbackDays > 0 {
		s.LookbackDays = d.LookbackDays
	}
	if d.MaxItems > 0 {
		s.MaxItems = d.MaxItems
	}
	return s
}

// DefaultDataDir returns $HOME/.applytrail, or ./.applytrail when HOME is unknown
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".applytrail"
	}
	return filepath.Join(home, ".applytrail")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	dir := DefaultDataDir()
	return &Config{
		Data: DataConfig{
			Dir:       dir,
			ExportDir: filepath.Join(dir, "exports"),
		},
		Gmail: GmailConfig{
			CredentialsFile: filepath.Join(dir, "credentials.json"),
			TokenFile:       filepath.Join(dir, "token.json"),
			User:            "me",
			DetailWorkers:   8,
			CacheTTL:        7 * 24 * time.Hour,
			RevokeURL:       "https://oauth2.googleapis.com/revoke",
		},
		LLM: LLMConfig{
			Models: map[string]string{
				BackendOpenAI:    "gpt-4o-mini",
				BackendAnthropic: "claude-3-5-haiku-20241022",
				BackendGemini:    "gemini-1.5-flash",
				BackendGroq:      "llama-3.1-8b-instant",
				BackendOllama:    "llama3.1:8b",
			},
			Timeout:           30,
			MaxTokens:         300,
			RequestsPerSecond: 1,
			Burst:             1,
			BackendRates: map[string]float64{
				BackendOllama: 0,
			},
		},
		Pipeline: PipelineConfig{
			FetchCeiling:     500,
			RateLimitBackoff: 30 * time.Second,
			ItemDelay:        time.Second,
		},
		Storage: StorageConfig{
			SeenBackend:    "file",
			RecordsBackend: "file",
			RedisKey:       "applytrail:seen",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Defaults: DefaultsConfig{
			Backend:      BackendOpenAI,
			LookbackDays: DefaultLookbackDays,
			MaxItems:     DefaultMaxItems,
		},
	}
}
