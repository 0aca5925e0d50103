// Package meals logs breakfast, lunch and dinner served to visitors.
package meals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatepass/internal/attendance"
	"gatepass/internal/lock"
	"gatepass/internal/logging"
	"gatepass/internal/metrics"
)

type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
)

func (m MealType) valid() bool {
	return m == Breakfast || m == Lunch || m == Dinner
}

var (
	ErrNotFound        = errors.New("visitor not found")
	ErrInvalidMeal     = errors.New("meal type must be breakfast, lunch or dinner")
	ErrAlreadyServed   = errors.New("meal already served today")
	ErrRecordNotFound  = errors.New("meal record not found")
	ErrVersionConflict = errors.New("meal record version conflict")
)

type Meal struct {
	MealType MealType  `json:"meal_type"`
	Time     time.Time `json:"time"`
}

// Record is every meal one visitor had on one day.
type Record struct {
	VisitorID string    `json:"visitor_id"`
	EntryDate time.Time `json:"-"`
	Meals     []Meal    `json:"meals"`
	Version   int64     `json:"-"`
}

func (r Record) Date() string { return r.EntryDate.Format(attendance.DateLayout) }

func (r Record) served(t MealType) bool {
	for _, m := range r.Meals {
		if m.MealType == t {
			return true
		}
	}
	return false
}

// Store saves with compare-and-swap on Version, like the attendance store.
type Store interface {
	Get(ctx context.Context, visitorID string, day time.Time) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}

type Service struct {
	store    Store
	visitors attendance.VisitorLookup
	locker   lock.Locker
	clock    attendance.Clock
	log      logging.Logger

	lockWait    time.Duration
	maxAttempts int
}

func NewService(st Store, visitors attendance.VisitorLookup, locker lock.Locker, clock attendance.Clock, log logging.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if clock == nil {
		clock = attendance.NewClock(time.UTC)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Service{
		store:       st,
		visitors:    visitors,
		locker:      locker,
		clock:       clock,
		log:         log,
		lockWait:    5 * time.Second,
		maxAttempts: 3,
	}
}

// Serve logs mealType for today. Each type is served at most once a day.
func (s *Service) Serve(ctx context.Context, visitorID string, mealType MealType) (Record, error) {
	if !mealType.valid() {
		return Record{}, ErrInvalidMeal
	}
	ok, err := s.visitors.Exists(ctx, visitorID)
	if err != nil {
		return Record{}, fmt.Errorf("lookup visitor: %w", err)
	}
	if !ok {
		return Record{}, ErrNotFound
	}

	now, unlock, err := s.lockDay(ctx, visitorID)
	if err != nil {
		return Record{}, err
	}
	defer unlock()
	day := attendance.DayOf(now)

	var rec *Record
	for attempt := 1; ; attempt++ {
		rec, err = s.store.Get(ctx, visitorID, day)
		if errors.Is(err, ErrRecordNotFound) {
			rec = &Record{VisitorID: visitorID, EntryDate: day}
		} else if err != nil {
			return Record{}, err
		}
		if rec.served(mealType) {
			return Record{}, ErrAlreadyServed
		}
		rec.Meals = append(rec.Meals, Meal{MealType: mealType, Time: now})

		err = s.store.Save(ctx, rec)
		if errors.Is(err, ErrVersionConflict) {
			metrics.VersionConflicts.Inc()
			if attempt < s.maxAttempts {
				continue
			}
			return Record{}, fmt.Errorf("serve %s after %d attempts: %w", mealType, attempt, err)
		}
		if err != nil {
			return Record{}, err
		}
		break
	}

	metrics.MealsServed.WithLabelValues(string(mealType)).Inc()
	s.log.Info(ctx, "meal served", "visitor_id", visitorID, "meal_type", mealType)
	return *rec, nil
}

// lockDay takes the (visitor, day) meal lock, waiting at most lockWait, and
// returns the time read while holding it. A day rollover during the wait
// moves the lock to the new day.
func (s *Service) lockDay(ctx context.Context, visitorID string) (time.Time, func(), error) {
	day := attendance.DayOf(s.clock.Now())
	for {
		lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
		unlock, err := s.locker.Lock(lockCtx, "meal|"+visitorID+"|"+day.Format(attendance.DateLayout))
		cancel()
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("acquire meal lock: %w", err)
		}
		now := s.clock.Now()
		if attendance.DayOf(now).Equal(day) {
			return now, unlock, nil
		}
		unlock()
		day = attendance.DayOf(now)
	}
}

// Today returns today's meals; an empty record when none were served.
func (s *Service) Today(ctx context.Context, visitorID string) (Record, error) {
	day := attendance.DayOf(s.clock.Now())
	rec, err := s.store.Get(ctx, visitorID, day)
	if errors.Is(err, ErrRecordNotFound) {
		return Record{VisitorID: visitorID, EntryDate: day, Meals: []Meal{}}, nil
	}
	if err != nil {
		return Record{}, err
	}
	return *rec, nil
}
