package cli

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/applytrail/internal/model"
)

func TestLoadConfig_EnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("APPLYTRAIL_LLM_TIMEOUT", "45")
	t.Setenv("APPLYTRAIL_PIPELINE_ITEM_DELAY", "250ms")
	t.Setenv("APPLYTRAIL_STORAGE_SEEN_BACKEND", "redis")

	initConfig()
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.LLM.Timeout != 45 {
		t.Errorf("llm timeout = %d, want 45", cfg.LLM.Timeout)
	}
	if cfg.Pipeline.ItemDelay != 250*time.Millisecond {
		t.Errorf("item delay = %v, want 250ms", cfg.Pipeline.ItemDelay)
	}
	if cfg.Storage.SeenBackend != "redis" {
		t.Errorf("seen backend = %q, want redis", cfg.Storage.SeenBackend)
	}
	if cfg.Pipeline.FetchCeiling != 500 {
		t.Errorf("untouched keys keep defaults, fetch ceiling = %d", cfg.Pipeline.FetchCeiling)
	}
	if cfg.LLM.Models[model.BackendGroq] == "" {
		t.Error("default model map lost")
	}
}

func TestLoadConfig_DataDirMovesDerivedPaths(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := filepath.Join(t.TempDir(), "state")
	t.Setenv("APPLYTRAIL_DATA_DIR", dir)

	initConfig()
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Data.Dir != dir {
		t.Errorf("data dir = %q", cfg.Data.Dir)
	}
	if cfg.Data.ExportDir != filepath.Join(dir, "exports") {
		t.Errorf("export dir = %q", cfg.Data.ExportDir)
	}
	if cfg.Gmail.TokenFile != filepath.Join(dir, "token.json") {
		t.Errorf("token file = %q", cfg.Gmail.TokenFile)
	}
}

func TestApplySetting(t *testing.T) {
	tests := []struct {
		field   string
		value   string
		check   func(model.Settings) bool
		wantErr bool
	}{
		{"backend", "Gemini", func(s model.Settings) bool { return s.Backend == model.BackendGemini }, false},
		{"lookback_days", "14", func(s model.Settings) bool { return s.LookbackDays == 14 }, false},
		{"max-items", "200", func(s model.Settings) bool { return s.MaxItems == 200 }, false},
		{"backend", "bard", nil, true},
		{"lookback_days", "10", nil, true},
		{"max_items", "0", nil, true},
		{"max_items", "lots", nil, true},
		{"color", "blue", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.field+"="+tt.value, func(t *testing.T) {
			s := model.DefaultSettings()
			err := applySetting(&s, tt.field, tt.value)
			if tt.wantErr {
				if !errors.Is(err, model.ErrInvalidSettings) {
					t.Errorf("error = %v, want ErrInvalidSettings", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(s) {
				t.Errorf("setting not applied: %+v", s)
			}
		})
	}
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer

	printEvent(&buf, model.Event{
		Kind:  model.EventItem,
		Index: 2,
		Total: 5,
		Outcome: &model.Outcome{
			Status:   model.OutcomeSuccess,
			Subject:  "Thanks for applying",
			Company:  "Acme",
			Position: "",
		},
	})
	printEvent(&buf, model.Event{
		Kind:    model.EventItem,
		Index:   3,
		Total:   5,
		Outcome: &model.Outcome{Status: model.OutcomeError, Subject: "Hello", Error: "inference failed"},
	})

	out := buf.String()
	if !strings.Contains(out, "[2/5] ✓ Acme | - (Thanks for applying)") {
		t.Errorf("unexpected success line:\n%s", out)
	}
	if !strings.Contains(out, "[3/5] ✗ Hello: inference failed") {
		t.Errorf("unexpected error line:\n%s", out)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	printSummary(&buf, &model.Summary{
		StartedAt:         start,
		FinishedAt:        start.Add(1500 * time.Millisecond),
		Fetched:           10,
		Scanned:           4,
		Matched:           2,
		Recorded:          1,
		DuplicatesSkipped: 7,
		Cancelled:         true,
	})

	out := buf.String()
	for _, want := range []string{"Run cancelled", "Scanned:     4", "Recorded:    1", "Duplicates:  7", "Elapsed:     1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
