// Package export writes application records as a spreadsheet-friendly CSV.
package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/applytrail/internal/model"
)

const (
	// FileName is stable so repeated exports overwrite
	FileName = "job_applications.csv"

	// TimeLayout is MM-DD-YYYY HH:MM:SS
	TimeLayout = "01-02-2006 15:04:05"
)

// Header is the column order of an export
var Header = []string{"email_date", "company", "position", "email_title", "processed_timestamp", "message_id"}

var bom = []byte{0xEF, 0xBB, 0xBF}

// Write encodes records as UTF-8 CSV with a leading byte-order mark.
// Timestamps are rendered in loc (local time when nil).
func Write(w io.Writer, records []model.Record, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	if _, err := w.Write(bom); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			formatTime(r.EmailDate, loc),
			r.Company,
			r.Position,
			r.EmailTitle,
			formatTime(r.ProcessedAt, loc),
			r.ItemID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %s: %w", r.ItemID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the export into dir under FileName, replacing any
// previous export, and returns the file path
func WriteFile(dir string, records []model.Record, loc *time.Location) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, records, loc); err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("replace export: %w", err)
	}
	return path, nil
}

// Parse reads an export back into records. Timestamps are interpreted in loc
// (local time when nil) at second precision.
func Parse(r io.Reader, loc *time.Location) ([]model.Record, error) {
	if loc == nil {
		loc = time.Local
	}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty export")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %d: %q (want %q)", i, header[i], col)
		}
	}

	records := []model.Record{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		emailDate, err := parseTime(row[0], loc)
		if err != nil {
			return nil, fmt.Errorf("email_date: %w", err)
		}
		processedAt, err := parseTime(row[4], loc)
		if err != nil {
			return nil, fmt.Errorf("processed_timestamp: %w", err)
		}

		records = append(records, model.Record{
			EmailDate:   emailDate,
			Company:     row[1],
			Position:    row[2],
			EmailTitle:  row[3],
			ProcessedAt: processedAt,
			ItemID:      row[5],
		})
	}
	return records, nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(TimeLayout)
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(TimeLayout, s, loc)
}
