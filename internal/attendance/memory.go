package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory, for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*DailyRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*DailyRecord)}
}

func memKey(visitorID string, day time.Time) string {
	return visitorID + "|" + day.Format(DateLayout)
}

func (m *MemoryStore) Get(_ context.Context, visitorID string, day time.Time) (*DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[memKey(visitorID, day)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, rec *DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(rec.VisitorID, rec.EntryDate)
	cur, ok := m.records[key]
	switch {
	case rec.Version == 0 && ok:
		return ErrVersionConflict
	case rec.Version != 0 && (!ok || cur.Version != rec.Version):
		return ErrVersionConflict
	}
	now := time.Now()
	if !ok {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version++
	m.records[key] = rec.clone()
	return nil
}

func (m *MemoryStore) ListByVisitor(_ context.Context, visitorID string) ([]DailyRecord, error) {
	return m.filter(func(r *DailyRecord) bool { return r.VisitorID == visitorID }), nil
}

func (m *MemoryStore) ListByDate(_ context.Context, day time.Time) ([]DailyRecord, error) {
	d := day.Format(DateLayout)
	return m.filter(func(r *DailyRecord) bool { return r.Date() == d }), nil
}

func (m *MemoryStore) RecordsBetween(_ context.Context, from, to time.Time, visitorID string) ([]DailyRecord, error) {
	lo, hi := from.Format(DateLayout), to.Format(DateLayout)
	return m.filter(func(r *DailyRecord) bool {
		d := r.Date()
		return d >= lo && d <= hi && (visitorID == "" || r.VisitorID == visitorID)
	}), nil
}

// Put stores rec as-is, bypassing version checks. Used to seed fixtures.
func (m *MemoryStore) Put(rec DailyRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Version == 0 {
		rec.Version = 1
	}
	m.records[memKey(rec.VisitorID, rec.EntryDate)] = rec.clone()
}

// filter returns matching records newest first.
func (m *MemoryStore) filter(keep func(*DailyRecord) bool) []DailyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DailyRecord
	for _, r := range m.records {
		if keep(r) {
			out = append(out, *r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date() != out[j].Date() {
			return out[i].Date() > out[j].Date()
		}
		return out[i].VisitorID < out[j].VisitorID
	})
	return out
}
