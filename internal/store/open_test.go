package store

import (
	"context"
	"testing"

	"github.com/ppiankov/applytrail/internal/model"
)

func TestOpen_FileDefaults(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Data.Dir = t.TempDir()

	stores, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer stores.Close()

	if _, ok := stores.Seen.(*FileSeenStore); !ok {
		t.Errorf("Expected file seen store, got %T", stores.Seen)
	}
	if _, ok := stores.Records.(*FileRecordStore); !ok {
		t.Errorf("Expected file record store, got %T", stores.Records)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Data.Dir = t.TempDir()
	cfg.Storage.RecordsBackend = "sqlite"

	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("Expected error for unknown backend")
	}
}
