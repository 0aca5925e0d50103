package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatepass/internal/lock"
	"gatepass/internal/logging"
	"gatepass/internal/metrics"
)

// VisitorLookup answers whether a visitor is registered.
type VisitorLookup interface {
	Exists(ctx context.Context, visitorID string) (bool, error)
}

// Store persists daily records. Save must be a compare-and-swap on Version:
// Version 0 inserts, anything else updates only that version, and a lost race
// returns ErrVersionConflict. Get returns ErrRecordNotFound when absent.
type Store interface {
	Get(ctx context.Context, visitorID string, day time.Time) (*DailyRecord, error)
	Save(ctx context.Context, rec *DailyRecord) error
	ListByVisitor(ctx context.Context, visitorID string) ([]DailyRecord, error)
	ListByDate(ctx context.Context, day time.Time) ([]DailyRecord, error)
}

// ArrivalRequest is a QR scan (or manual bypass) at the gate.
type ArrivalRequest struct {
	VisitorID    string
	OperatorID   string
	Bypass       bool
	BypassReason string
}

// EntryResult describes the entry touched by a ledger operation.
type EntryResult struct {
	VisitorID     string       `json:"visitor_id"`
	EntryDate     string       `json:"entry_date"`
	Index         int          `json:"entry_index"`
	Entry         TimeLogEntry `json:"entry"`
	RecordCreated bool         `json:"record_created"`
	FaceCaptured  bool         `json:"is_image_captured"`
}

// Service owns the daily attendance records.
type Service struct {
	store    Store
	visitors VisitorLookup
	locker   lock.Locker
	clock    Clock
	ids      IDGen
	log      logging.Logger

	lockWait    time.Duration
	maxAttempts int
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }
func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }
func WithIDGen(g IDGen) Option { return func(s *Service) { s.ids = g } }
func WithLogger(l logging.Logger) Option { return func(s *Service) { s.log = l } }

// WithLockWait bounds how long an operation waits for the record lock.
func WithLockWait(d time.Duration) Option { return func(s *Service) { s.lockWait = d } }

// NewService creates a ledger. Without options it uses an in-process lock and
// a UTC clock.
func NewService(store Store, visitors VisitorLookup, opts ...Option) *Service {
	s := &Service{
		store:       store,
		visitors:    visitors,
		locker:      lock.NewLocal(),
		clock:       NewClock(time.UTC),
		ids:         ulidGen{},
		log:         logging.Discard(),
		lockWait:    5 * time.Second,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the ledger clock's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// RecordArrival opens a visit for today, creating the day's record if needed.
func (s *Service) RecordArrival(ctx context.Context, req ArrivalRequest) (EntryResult, error) {
	if req.VisitorID == "" || req.OperatorID == "" {
		return EntryResult{}, fmt.Errorf("%w: visitor and operator required", ErrInvalidRequest)
	}
	if err := s.ensureVisitor(ctx, req.VisitorID); err != nil {
		return EntryResult{}, s.rejected(ctx, "arrival", req.VisitorID, err)
	}

	rec, idx, created, err := s.mutate(ctx, req.VisitorID, true, func(rec *DailyRecord, now time.Time) (int, error) {
		if rec.OperatorID == "" {
			rec.OperatorID = req.OperatorID
		}
		return rec.arrive(now, req.OperatorID, req.Bypass, req.BypassReason)
	})
	if err != nil {
		return EntryResult{}, s.rejected(ctx, "arrival", req.VisitorID, err)
	}

	res := result(rec, idx, created)
	metrics.Arrivals.WithLabelValues(string(res.Entry.EntryType)).Inc()
	s.log.Info(ctx, "arrival recorded",
		"visitor_id", req.VisitorID, "operator_id", req.OperatorID,
		"entry_type", res.Entry.EntryType, "entry_index", idx, "record_created", created)
	return res, nil
}

// RecordDeparture closes today's latest entry. If the departure precedes the
// arrival the closed entry is still persisted and returned along with an error
// wrapping ErrNegativeDuration.
func (s *Service) RecordDeparture(ctx context.Context, visitorID, operatorID string) (EntryResult, error) {
	if visitorID == "" || operatorID == "" {
		return EntryResult{}, fmt.Errorf("%w: visitor and operator required", ErrInvalidRequest)
	}
	if err := s.ensureVisitor(ctx, visitorID); err != nil {
		return EntryResult{}, s.rejected(ctx, "departure", visitorID, err)
	}

	rec, idx, _, err := s.mutate(ctx, visitorID, false, func(rec *DailyRecord, now time.Time) (int, error) {
		return rec.depart(now, operatorID)
	})
	if rec == nil {
		return EntryResult{}, s.rejected(ctx, "departure", visitorID, err)
	}

	res := result(rec, idx, false)
	metrics.Departures.Inc()
	if err != nil {
		metrics.IntegrityAnomalies.Inc()
		s.log.Warn(ctx, "departure recorded with integrity anomaly",
			"visitor_id", visitorID, "operator_id", operatorID, "duration", res.Entry.Duration, "err", err)
		return res, err
	}
	s.log.Info(ctx, "departure recorded",
		"visitor_id", visitorID, "operator_id", operatorID, "duration", res.Entry.Duration)
	return res, nil
}

// AttachFaceImage stores the day's face capture reference on today's record.
func (s *Service) AttachFaceImage(ctx context.Context, visitorID, imageRef string) error {
	if visitorID == "" || imageRef == "" {
		return fmt.Errorf("%w: visitor and image reference required", ErrInvalidRequest)
	}
	if err := s.ensureVisitor(ctx, visitorID); err != nil {
		return s.rejected(ctx, "face_attach", visitorID, err)
	}
	_, _, _, err := s.mutate(ctx, visitorID, false, func(rec *DailyRecord, _ time.Time) (int, error) {
		rec.FaceImageRef = imageRef
		return -1, nil
	})
	if err != nil {
		return s.rejected(ctx, "face_attach", visitorID, err)
	}
	s.log.Info(ctx, "face image attached", "visitor_id", visitorID, "image_ref", imageRef)
	return nil
}

// ConfirmFace marks today's open entry as face verified. A closed visit is
// not changed and reports ErrNoActiveEntry.
func (s *Service) ConfirmFace(ctx context.Context, visitorID string) (EntryResult, error) {
	if visitorID == "" {
		return EntryResult{}, fmt.Errorf("%w: visitor required", ErrInvalidRequest)
	}
	if err := s.ensureVisitor(ctx, visitorID); err != nil {
		return EntryResult{}, s.rejected(ctx, "face_confirm", visitorID, err)
	}
	rec, idx, _, err := s.mutate(ctx, visitorID, false, func(rec *DailyRecord, _ time.Time) (int, error) {
		return rec.confirmFace()
	})
	if err != nil {
		return EntryResult{}, s.rejected(ctx, "face_confirm", visitorID, err)
	}
	return result(rec, idx, false), nil
}

// Today returns the visitor's record for the current day.
func (s *Service) Today(ctx context.Context, visitorID string) (*DailyRecord, error) {
	rec, err := s.store.Get(ctx, visitorID, DayOf(s.clock.Now()))
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrNoActiveEntry
	}
	if err != nil {
		return nil, fmt.Errorf("load daily record: %w", err)
	}
	return rec, nil
}

// History returns every record of the visitor, newest first.
func (s *Service) History(ctx context.Context, visitorID string) ([]DailyRecord, error) {
	recs, err := s.store.ListByVisitor(ctx, visitorID)
	if err != nil {
		return nil, fmt.Errorf("list visitor records: %w", err)
	}
	return recs, nil
}

// RecordsOn returns every record for the given day.
func (s *Service) RecordsOn(ctx context.Context, day time.Time) ([]DailyRecord, error) {
	recs, err := s.store.ListByDate(ctx, DayOf(day.In(s.clock.Now().Location())))
	if err != nil {
		return nil, fmt.Errorf("list day records: %w", err)
	}
	return recs, nil
}

func (s *Service) ensureVisitor(ctx context.Context, visitorID string) error {
	ok, err := s.visitors.Exists(ctx, visitorID)
	if err != nil {
		return fmt.Errorf("lookup visitor: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// mutate applies fn to today's record while holding the (visitor, day) lock
// and saves the whole record. Version conflicts from writers outside this
// process reload and reapply. When fn reports ErrNegativeDuration the record
// is still saved and that error is returned with it.
func (s *Service) mutate(ctx context.Context, visitorID string, create bool, fn func(*DailyRecord, time.Time) (int, error)) (*DailyRecord, int, bool, error) {
	now, unlock, err := s.lockDay(ctx, visitorID)
	if err != nil {
		return nil, -1, false, err
	}
	defer unlock()
	day := DayOf(now)

	for attempt := 1; ; attempt++ {
		rec, created, err := s.load(ctx, visitorID, day, create)
		if err != nil {
			return nil, -1, false, err
		}

		idx, applyErr := fn(rec, now)
		if applyErr != nil && !errors.Is(applyErr, ErrNegativeDuration) {
			return nil, -1, false, applyErr
		}

		err = s.store.Save(ctx, rec)
		if errors.Is(err, ErrVersionConflict) {
			metrics.VersionConflicts.Inc()
			if attempt < s.maxAttempts {
				continue
			}
			return nil, -1, false, ErrConcurrentUpdate
		}
		if err != nil {
			return nil, -1, false, fmt.Errorf("save daily record: %w", err)
		}
		return rec, idx, created, applyErr
	}
}

// lockDay takes the (visitor, day) lock and returns the time read while
// holding it, so timestamps follow lock order. If the day rolled over while
// waiting, the lock for the new day is taken instead.
func (s *Service) lockDay(ctx context.Context, visitorID string) (time.Time, func(), error) {
	day := DayOf(s.clock.Now())
	for {
		lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
		unlock, err := s.locker.Lock(lockCtx, visitorID+"|"+day.Format(DateLayout))
		cancel()
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("acquire record lock: %w", err)
		}
		now := s.clock.Now()
		if DayOf(now).Equal(day) {
			return now, unlock, nil
		}
		unlock()
		day = DayOf(now)
	}
}

func (s *Service) load(ctx context.Context, visitorID string, day time.Time, create bool) (*DailyRecord, bool, error) {
	rec, err := s.store.Get(ctx, visitorID, day)
	if errors.Is(err, ErrRecordNotFound) {
		if !create {
			return nil, false, ErrNoActiveEntry
		}
		id, err := s.ids.New()
		if err != nil {
			return nil, false, fmt.Errorf("generate record id: %w", err)
		}
		return &DailyRecord{ID: id, VisitorID: visitorID, EntryDate: day}, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load daily record: %w", err)
	}
	rec = rec.clone()
	if err := rec.validate(); err != nil {
		metrics.IntegrityAnomalies.Inc()
		return nil, false, err
	}
	return rec, false, nil
}

// rejected records metrics for business-rule failures and passes err through.
func (s *Service) rejected(ctx context.Context, op, visitorID string, err error) error {
	if reason := rejectionReason(err); reason != "" {
		metrics.LedgerRejections.WithLabelValues(reason).Inc()
		s.log.Info(ctx, "ledger operation rejected", "op", op, "visitor_id", visitorID, "reason", reason)
		return err
	}
	s.log.Error(ctx, "ledger operation failed", "op", op, "visitor_id", visitorID, "err", err)
	return err
}

func result(rec *DailyRecord, idx int, created bool) EntryResult {
	res := EntryResult{
		VisitorID:     rec.VisitorID,
		EntryDate:     rec.Date(),
		Index:         idx,
		RecordCreated: created,
		FaceCaptured:  rec.FaceImageRef != "",
	}
	if idx >= 0 && idx < len(rec.Logs) {
		res.Entry = rec.Logs[idx]
	}
	return res
}
