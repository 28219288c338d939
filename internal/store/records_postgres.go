package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppiankov/applytrail/internal/model"
)

const recordsSchema = `
CREATE TABLE IF NOT EXISTS application_records (
	seq          BIGSERIAL PRIMARY KEY,
	message_id   TEXT NOT NULL UNIQUE,
	company      TEXT NOT NULL DEFAULT '',
	position     TEXT NOT NULL DEFAULT '',
	email_title  TEXT NOT NULL DEFAULT '',
	email_date   TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL
)`

// PostgresRecordStore keeps records in a Postgres table
type PostgresRecordStore struct {
	db *pgxpool.Pool
}

// NewPostgresRecordStore creates the table if needed
func NewPostgresRecordStore(ctx context.Context, db *pgxpool.Pool) (*PostgresRecordStore, error) {
	if _, err := db.Exec(ctx, recordsSchema); err != nil {
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &PostgresRecordStore{db: db}, nil
}

// Append dedups candidates against the current table contents and inserts
// the rest in one transaction
func (s *PostgresRecordStore) Append(ctx context.Context, records []model.Record) (AppendResult, error) {
	if len(records) == 0 {
		return AppendResult{}, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return AppendResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT message_id FROM application_records`)
	if err != nil {
		return AppendResult{}, fmt.Errorf("scan records: %w", err)
	}
	existingIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return AppendResult{}, fmt.Errorf("scan records: %w", err)
	}

	existing := make([]model.Record, len(existingIDs))
	for i, id := range existingIDs {
		existing[i].ItemID = id
	}
	fresh, result := dedup(existing, records)
	if len(fresh) == 0 {
		return result, nil
	}

	batch := &pgx.Batch{}
	for _, r := range fresh {
		batch.Queue(`
			INSERT INTO application_records (message_id, company, position, email_title, email_date, processed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (message_id) DO NOTHING
		`, r.ItemID, r.Company, r.Position, r.EmailTitle, r.EmailDate, r.ProcessedAt)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return AppendResult{}, fmt.Errorf("batch exec %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return AppendResult{}, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AppendResult{}, fmt.Errorf("commit: %w", err)
	}

	// a concurrent writer can win the race for an id between scan and insert
	result.Duplicates += result.Inserted - inserted
	result.Inserted = inserted
	return result, nil
}

// ReadAll returns records in insertion order
func (s *PostgresRecordStore) ReadAll(ctx context.Context) ([]model.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT message_id, company, position, email_title, email_date, processed_at
		FROM application_records
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Record, error) {
		var r model.Record
		err := row.Scan(&r.ItemID, &r.Company, &r.Position, &r.EmailTitle, &r.EmailDate, &r.ProcessedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	if records == nil {
		records = []model.Record{}
	}
	return records, nil
}

// Count returns the number of stored records
func (s *PostgresRecordStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM application_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
