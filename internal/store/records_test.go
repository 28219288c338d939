package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppiankov/applytrail/internal/model"
)

func rec(id, company string) model.Record {
	return model.Record{
		ItemID:      id,
		Company:     company,
		Position:    "Engineer, Platform",
		EmailTitle:  "Thanks for applying",
		EmailDate:   time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		ProcessedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}
}

func exerciseRecordStore(t *testing.T, s RecordStore) {
	t.Helper()
	ctx := context.Background()

	batches := [][]model.Record{
		{rec("a", "Acme"), rec("b", "Globex")},
		{rec("b", "Globex again"), rec("c", "Initech"), rec("c", "Initech twice")},
		{rec("a", "Acme"), rec("d", "Umbrella")},
	}

	totalInserted := 0
	for i, batch := range batches {
		res, err := s.Append(ctx, batch)
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		if res.Inserted+res.Duplicates != len(batch) {
			t.Errorf("Append %d: inserted %d + duplicates %d != %d", i, res.Inserted, res.Duplicates, len(batch))
		}
		totalInserted += res.Inserted
	}

	all, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	distinct := map[string]int{}
	for _, r := range all {
		distinct[r.ItemID]++
	}
	for id, n := range distinct {
		if n != 1 {
			t.Errorf("Record %s stored %d times", id, n)
		}
	}

	if totalInserted != 4 || len(all) != 4 {
		t.Errorf("Expected 4 distinct records, inserted %d stored %d", totalInserted, len(all))
	}

	order := []string{"a", "b", "c", "d"}
	for i, r := range all {
		if r.ItemID != order[i] {
			t.Errorf("Expected insertion order %v, got %s at %d", order, r.ItemID, i)
		}
	}
	if all[1].Company != "Globex" {
		t.Errorf("First write wins, got %q", all[1].Company)
	}
	if !all[0].EmailDate.Equal(rec("a", "").EmailDate) {
		t.Errorf("Email date not preserved: %v", all[0].EmailDate)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 4 {
		t.Errorf("Expected Count 4, got %d (err=%v)", n, err)
	}
}

func TestFileRecordStore(t *testing.T) {
	exerciseRecordStore(t, NewFileRecordStore(filepath.Join(t.TempDir(), "records.json")))
}

func TestFileRecordStore_EmptyReadAll(t *testing.T) {
	s := NewFileRecordStore(filepath.Join(t.TempDir(), "records.json"))
	all, err := s.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if all == nil || len(all) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", all)
	}
}

func TestFileRecordStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileRecordStore(path).Append(context.Background(), []model.Record{rec("a", "Acme")}); err == nil {
		t.Fatal("Expected error for corrupt file")
	}
}

func TestPostgresRecordStore(t *testing.T) {
	url := os.Getenv("APPLYTRAIL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("APPLYTRAIL_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	s, err := NewPostgresRecordStore(ctx, pool)
	if err != nil {
		t.Fatalf("NewPostgresRecordStore failed: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE application_records RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	exerciseRecordStore(t, s)
}
