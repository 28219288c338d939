package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/applytrail/internal/model"
)

func sampleRecords() []model.Record {
	return []model.Record{
		{
			ItemID:      "18c1a",
			Company:     "Acme",
			Position:    "Engineer, Backend",
			EmailTitle:  `Thanks for applying to "Acme"`,
			EmailDate:   time.Date(2024, 1, 15, 8, 5, 9, 0, time.UTC),
			ProcessedAt: time.Date(2024, 2, 1, 17, 30, 0, 0, time.UTC),
		},
		{
			ItemID:      "18c1b",
			Company:     "",
			Position:    "Data Analyst\nRemote",
			EmailTitle:  "Application received",
			EmailDate:   time.Date(2024, 1, 20, 23, 59, 59, 0, time.UTC),
			ProcessedAt: time.Date(2024, 2, 1, 17, 30, 1, 0, time.UTC),
		},
	}
}

func TestWrite_Format(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleRecords(), time.UTC); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out := buf.Bytes()
	if !bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatal("Expected UTF-8 byte-order mark")
	}

	text := string(out[3:])
	lines := strings.SplitN(text, "\n", 2)
	if lines[0] != "email_date,company,position,email_title,processed_timestamp,message_id" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.Contains(text, `01-15-2024 08:05:09,Acme,"Engineer, Backend","Thanks for applying to ""Acme""",02-01-2024 17:30:00,18c1a`) {
		t.Errorf("Unexpected first row in:\n%s", text)
	}
}

func TestRoundTrip(t *testing.T) {
	records := sampleRecords()

	var buf bytes.Buffer
	if err := Write(&buf, records, time.UTC); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	parsed, err := Parse(&buf, time.UTC)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(parsed) != len(records) {
		t.Fatalf("Expected %d records, got %d", len(records), len(parsed))
	}
	for i := range records {
		want, got := records[i], parsed[i]
		if want.ItemID != got.ItemID || want.Company != got.Company || want.Position != got.Position || want.EmailTitle != got.EmailTitle {
			t.Errorf("Record %d mismatch:\nwant %+v\ngot  %+v", i, want, got)
		}
		if !want.EmailDate.Equal(got.EmailDate) || !want.ProcessedAt.Equal(got.ProcessedAt) {
			t.Errorf("Record %d timestamps mismatch: want %v/%v got %v/%v", i, want.EmailDate, want.ProcessedAt, got.EmailDate, got.ProcessedAt)
		}
	}
}

func TestRoundTrip_SubSecondTimes(t *testing.T) {
	item := model.Item{
		ID:         "18f4c",
		Subject:    "Application received",
		ReceivedAt: time.UnixMilli(1715000000123).UTC(),
	}
	processed := time.Date(2024, 5, 6, 12, 53, 23, 922884031, time.UTC)
	record := model.NewRecord(item, model.Extraction{Company: "Acme", Position: "SRE, Platform"}, processed)

	var buf bytes.Buffer
	if err := Write(&buf, []model.Record{record}, time.UTC); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	parsed, err := Parse(&buf, time.UTC)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(parsed) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(parsed))
	}
	got := parsed[0]
	if !got.EmailDate.Equal(record.EmailDate) || !got.ProcessedAt.Equal(record.ProcessedAt) {
		t.Errorf("Timestamps changed: want %v/%v got %v/%v", record.EmailDate, record.ProcessedAt, got.EmailDate, got.ProcessedAt)
	}
	if got.Position != record.Position || got.ItemID != record.ItemID {
		t.Errorf("Record mismatch:\nwant %+v\ngot  %+v", record, got)
	}
}

func TestWriteFile_StableName(t *testing.T) {
	dir := t.TempDir()

	first, err := WriteFile(dir, sampleRecords(), time.UTC)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	second, err := WriteFile(dir, sampleRecords()[:1], time.UTC)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if first != second || filepath.Base(first) != FileName {
		t.Errorf("Expected stable path, got %s then %s", first, second)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("Expected a single export file, got %d entries", len(entries))
	}

	f, err := os.Open(second)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	parsed, err := Parse(f, time.UTC)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(parsed) != 1 {
		t.Errorf("Expected overwrite with 1 record, got %d", len(parsed))
	}
}

func TestParse_BadHeader(t *testing.T) {
	if _, err := Parse(strings.NewReader("a,b,c,d,e,f\n"), time.UTC); err == nil {
		t.Fatal("Expected error for wrong header")
	}
}
