package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatepass/internal/store"
)

// Repository persists daily records in Postgres. time_logs is a JSONB array
// rewritten in full on every save.
type Repository struct {
	db  store.DBTX
	loc *time.Location
}

// NewRepository creates a repo. loc is the ledger timezone; entry dates are
// returned as midnight in it.
func NewRepository(db store.DBTX, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{db: db, loc: loc}
}

const recordColumns = `record_id, visitor_id, entry_date, time_logs, face_image_ref, operator_id, version, created_at, updated_at`

// Get loads the record for (visitorID, day).
func (r *Repository) Get(ctx context.Context, visitorID string, day time.Time) (*DailyRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM daily_records
		WHERE visitor_id = $1 AND entry_date = $2::date
	`, visitorID, day.Format(DateLayout))
	rec, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save inserts a new record (Version 0) or updates the stored version.
func (r *Repository) Save(ctx context.Context, rec *DailyRecord) error {
	logs := rec.Logs
	if logs == nil {
		logs = []TimeLogEntry{}
	}
	payload, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("encode time logs: %w", err)
	}

	var res sql.Result
	if rec.Version == 0 {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO daily_records (record_id, visitor_id, entry_date, time_logs, face_image_ref, operator_id, version)
			VALUES ($1, $2, $3::date, $4, $5, $6, 1)
			ON CONFLICT (visitor_id, entry_date) DO NOTHING
		`, rec.ID, rec.VisitorID, rec.EntryDate.Format(DateLayout), string(payload), rec.FaceImageRef, rec.OperatorID)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE daily_records
			SET time_logs = $1, face_image_ref = $2, version = version + 1, updated_at = NOW()
			WHERE record_id = $3 AND version = $4
		`, string(payload), rec.FaceImageRef, rec.ID, rec.Version)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	rec.Version++
	return nil
}

// ListByVisitor returns the visitor's records, newest first.
func (r *Repository) ListByVisitor(ctx context.Context, visitorID string) ([]DailyRecord, error) {
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM daily_records
		WHERE visitor_id = $1
		ORDER BY entry_date DESC
	`, visitorID)
}

// ListByDate returns every record for one day.
func (r *Repository) ListByDate(ctx context.Context, day time.Time) ([]DailyRecord, error) {
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM daily_records
		WHERE entry_date = $1::date
		ORDER BY created_at
	`, day.Format(DateLayout))
}

// RecordsBetween returns records with entry_date in [from, to], optionally
// narrowed to one visitor.
func (r *Repository) RecordsBetween(ctx context.Context, from, to time.Time, visitorID string) ([]DailyRecord, error) {
	clauses := []string{"entry_date BETWEEN $1::date AND $2::date"}
	args := []any{from.Format(DateLayout), to.Format(DateLayout)}
	if visitorID != "" {
		args = append(args, visitorID)
		clauses = append(clauses, fmt.Sprintf("visitor_id = $%d", len(args)))
	}
	return r.query(ctx, `
		SELECT `+recordColumns+`
		FROM daily_records
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY entry_date DESC
	`, args...)
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]DailyRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []DailyRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scan(s scanner) (*DailyRecord, error) {
	var (
		rec  DailyRecord
		raw  []byte
		date time.Time
	)
	if err := s.Scan(&rec.ID, &rec.VisitorID, &date, &raw, &rec.FaceImageRef, &rec.OperatorID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	rec.EntryDate = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc)
	logs, err := decodeLogs(raw)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.Logs = logs
	return &rec, nil
}

func decodeLogs(raw []byte) ([]TimeLogEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var logs []TimeLogEntry
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, fmt.Errorf("%w: malformed time_logs: %v", ErrDataIntegrity, err)
	}
	for i := range logs {
		if logs[i].EntryType == "" {
			logs[i].EntryType = EntryNormal
		}
	}
	return logs, nil
}
