package meals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gatepass/internal/attendance"
	"gatepass/internal/store"
)

// Repository keeps meal records in Postgres as a JSONB array per day.
type Repository struct {
	db  store.DBTX
	loc *time.Location
}

func NewRepository(db store.DBTX, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{db: db, loc: loc}
}

func (r *Repository) Get(ctx context.Context, visitorID string, day time.Time) (*Record, error) {
	var (
		raw     []byte
		date    time.Time
		version int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT entry_date, meals, version FROM meal_records
		WHERE visitor_id = $1 AND entry_date = $2::date
	`, visitorID, day.Format(attendance.DateLayout)).Scan(&date, &raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	rec := &Record{
		VisitorID: visitorID,
		EntryDate: time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc),
		Version:   version,
	}
	if err := json.Unmarshal(raw, &rec.Meals); err != nil {
		return nil, fmt.Errorf("decode meals: %w", err)
	}
	return rec, nil
}

func (r *Repository) Save(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec.Meals)
	if err != nil {
		return fmt.Errorf("encode meals: %w", err)
	}
	var res sql.Result
	if rec.Version == 0 {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO meal_records (visitor_id, entry_date, meals, version)
			VALUES ($1, $2::date, $3, 1)
			ON CONFLICT (visitor_id, entry_date) DO NOTHING
		`, rec.VisitorID, rec.Date(), string(payload))
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE meal_records SET meals = $1, version = version + 1, updated_at = NOW()
			WHERE visitor_id = $2 AND entry_date = $3::date AND version = $4
		`, string(payload), rec.VisitorID, rec.Date(), rec.Version)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}
	rec.Version++
	return nil
}

// MemoryStore is the in-process store used in dev and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, visitorID string, day time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[visitorID+"|"+day.Format(attendance.DateLayout)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec.Meals = append([]Meal(nil), rec.Meals...)
	return &rec, nil
}

func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.VisitorID + "|" + rec.Date()
	if cur, ok := m.records[key]; (ok && cur.Version != rec.Version) || (!ok && rec.Version != 0) {
		return ErrVersionConflict
	}
	rec.Version++
	stored := *rec
	stored.Meals = append([]Meal(nil), rec.Meals...)
	m.records[key] = stored
	return nil
}
