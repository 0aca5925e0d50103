package attendance

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of entry dates.
const DateLayout = "2006-01-02"

type EntryType string

const (
	EntryNormal EntryType = "normal"
	EntryBypass EntryType = "bypass"
)

func (t EntryType) valid() bool {
	return t == EntryNormal || t == EntryBypass
}

// BypassDetails records who approved a manual entry and why.
type BypassDetails struct {
	Reason     string    `json:"reason"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// TimeLogEntry is one visit within a day. An entry without a departure is open.
type TimeLogEntry struct {
	Arrival               *time.Time     `json:"arrival"`
	Departure             *time.Time     `json:"departure,omitempty"`
	Duration              string         `json:"duration,omitempty"`
	EntryType             EntryType      `json:"entry_type"`
	QRVerified            bool           `json:"qr_verified"`
	QRVerificationTime    *time.Time     `json:"qr_verification_time,omitempty"`
	FaceVerified          bool           `json:"face_verified"`
	Bypass                *BypassDetails `json:"bypass_details,omitempty"`
	DepartureVerifiedBy   string         `json:"departure_verified_by,omitempty"`
	DepartureVerification *time.Time     `json:"departure_verification_time,omitempty"`
}

// Open reports whether the visit has not been closed yet.
func (e TimeLogEntry) Open() bool { return e.Departure == nil }

// Elapsed returns departure - arrival when both are present.
func (e TimeLogEntry) Elapsed() (time.Duration, bool) {
	if e.Arrival == nil || e.Departure == nil {
		return 0, false
	}
	return e.Departure.Sub(*e.Arrival), true
}

// DailyRecord holds every visit of one visitor on one calendar day.
type DailyRecord struct {
	ID           string
	VisitorID    string
	EntryDate    time.Time // midnight in the ledger's timezone
	Logs         []TimeLogEntry
	FaceImageRef string
	OperatorID   string // operator who opened the record
	Version      int64  // 0 until first saved
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Date returns the entry date as YYYY-MM-DD.
func (r DailyRecord) Date() string { return r.EntryDate.Format(DateLayout) }

// Last returns the latest entry, or nil for an empty record.
func (r *DailyRecord) Last() *TimeLogEntry {
	if len(r.Logs) == 0 {
		return nil
	}
	return &r.Logs[len(r.Logs)-1]
}

// Active returns the open entry, if any.
func (r *DailyRecord) Active() *TimeLogEntry {
	if last := r.Last(); last != nil && last.Arrival != nil && last.Open() {
		return last
	}
	return nil
}

func (r *DailyRecord) clone() *DailyRecord {
	cp := *r
	cp.Logs = make([]TimeLogEntry, len(r.Logs))
	copy(cp.Logs, r.Logs)
	return &cp
}

func newEntry(now time.Time, operatorID string, bypass bool, reason string) TimeLogEntry {
	at := now
	e := TimeLogEntry{
		Arrival:            &at,
		EntryType:          EntryNormal,
		QRVerified:         true,
		QRVerificationTime: &at,
	}
	if bypass {
		e.EntryType = EntryBypass
		e.Bypass = &BypassDetails{Reason: reason, ApprovedBy: operatorID, ApprovedAt: now}
	}
	return e
}

// arrive opens a visit or backfills a stub entry that never got an arrival.
// It returns the index of the entry it touched.
func (r *DailyRecord) arrive(now time.Time, operatorID string, bypass bool, reason string) (int, error) {
	entry := newEntry(now, operatorID, bypass, reason)
	if last := r.Last(); last != nil && last.Open() {
		if last.Arrival != nil {
			return -1, ErrAlreadyCheckedIn
		}
		last.Arrival = entry.Arrival
		last.QRVerified = true
		last.QRVerificationTime = entry.QRVerificationTime
		last.EntryType = entry.EntryType
		last.Bypass = entry.Bypass
		return len(r.Logs) - 1, nil
	}
	r.Logs = append(r.Logs, entry)
	return len(r.Logs) - 1, nil
}

// depart closes the latest entry. A departure earlier than the arrival is
// still applied and reported with ErrNegativeDuration.
func (r *DailyRecord) depart(now time.Time, operatorID string) (int, error) {
	last := r.Last()
	if last == nil {
		return -1, ErrNoActiveEntry
	}
	if !last.Open() {
		return -1, ErrAlreadyDeparted
	}
	idx := len(r.Logs) - 1
	if last.Arrival == nil {
		return -1, fmt.Errorf("%w: entry %d has no arrival", ErrDataIntegrity, idx)
	}
	at, verified := now, now
	last.Departure = &at
	last.DepartureVerifiedBy = operatorID
	last.DepartureVerification = &verified
	d := at.Sub(*last.Arrival)
	last.Duration = FormatDuration(d)
	if d < 0 {
		return idx, fmt.Errorf("%w by %s", ErrNegativeDuration, -d)
	}
	return idx, nil
}

func (r *DailyRecord) confirmFace() (int, error) {
	last := r.Last()
	if last == nil || !last.Open() {
		return -1, ErrNoActiveEntry
	}
	last.FaceVerified = true
	return len(r.Logs) - 1, nil
}

// validate checks stored entries against the ledger invariants.
func (r *DailyRecord) validate() error {
	for i := range r.Logs {
		e := &r.Logs[i]
		if e.EntryType == "" {
			e.EntryType = EntryNormal
		}
		if !e.EntryType.valid() {
			return fmt.Errorf("%w: entry %d has unknown type %q", ErrDataIntegrity, i, e.EntryType)
		}
		if (e.EntryType == EntryBypass) != (e.Bypass != nil) {
			return fmt.Errorf("%w: entry %d bypass details do not match type %s", ErrDataIntegrity, i, e.EntryType)
		}
		if i < len(r.Logs)-1 && e.Open() {
			return fmt.Errorf("%w: entry %d is open but not the latest", ErrDataIntegrity, i)
		}
	}
	return nil
}

// FormatDuration renders d as H:MM:SS, prefixed with "-" when negative.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
}

// DayOf returns midnight of t's calendar day in t's location.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
