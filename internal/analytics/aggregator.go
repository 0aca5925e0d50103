// Package analytics folds daily attendance records into traffic, verification
// and duration statistics. It only reads.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatepass/internal/attendance"
	"gatepass/internal/logging"
	"gatepass/internal/metrics"
)

// DefaultWindow is the range used when no start date is given.
const DefaultWindow = 30 * 24 * time.Hour

var (
	ErrInvalidRange = errors.New("start date is after end date")
	ErrNoDirectory  = errors.New("institution data is not available")
)

// Source reads daily records whose entry date falls in [from, to]. An empty
// visitorID means every visitor.
type Source interface {
	RecordsBetween(ctx context.Context, from, to time.Time, visitorID string) ([]attendance.DailyRecord, error)
}

// Directory maps visitor ids to institution ids.
type Directory interface {
	Groups(ctx context.Context) (map[string]int64, error)
}

// Query selects the records to aggregate. Nil bounds take the defaults.
type Query struct {
	Start              *time.Time
	End                *time.Time
	InstitutionID      int64
	VisitorID          string
	GroupByInstitution bool
}

type Aggregator struct {
	src   Source
	dir   Directory
	clock attendance.Clock
	log   logging.Logger
}

type Option func(*Aggregator)

func WithClock(c attendance.Clock) Option { return func(a *Aggregator) { a.clock = c } }
func WithLogger(l logging.Logger) Option { return func(a *Aggregator) { a.log = l } }
func WithDirectory(d Directory) Option { return func(a *Aggregator) { a.dir = d } }

func New(src Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:   src,
		clock: attendance.NewClock(time.UTC),
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Window resolves q's bounds to whole days in the clock's timezone.
func (a *Aggregator) Window(q Query) (time.Time, time.Time, error) {
	now := a.clock.Now()
	loc := now.Location()

	end := now
	if q.End != nil {
		end = q.End.In(loc)
	}
	start := end.Add(-DefaultWindow)
	if q.Start != nil {
		start = q.Start.In(loc)
	}

	start = attendance.DayOf(start)
	y, m, d := end.Date()
	end = time.Date(y, m, d, 23, 59, 59, 999999000, loc)
	if start.After(end) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return start, end, nil
}

// Compute builds the report for q. A range without entries yields zero counts
// and zero rates.
func (a *Aggregator) Compute(ctx context.Context, q Query) (Report, error) {
	began := time.Now()
	defer func() { metrics.AnalyticsSeconds.Observe(time.Since(began).Seconds()) }()

	start, end, err := a.Window(q)
	if err != nil {
		return Report{}, err
	}
	loc := start.Location()

	var groups map[string]int64
	if q.InstitutionID != 0 || q.GroupByInstitution {
		if a.dir == nil {
			return Report{}, ErrNoDirectory
		}
		if groups, err = a.dir.Groups(ctx); err != nil {
			return Report{}, fmt.Errorf("load visitor groups: %w", err)
		}
	}

	records, err := a.src.RecordsBetween(ctx, start, end, q.VisitorID)
	if err != nil {
		return Report{}, fmt.Errorf("load records: %w", err)
	}

	total := newTally()
	days := make(map[string]*tally)
	byGroup := make(map[int64]*tally)
	skipped := 0

	for _, rec := range records {
		gid, known := groups[rec.VisitorID]
		if q.InstitutionID != 0 && (!known || gid != q.InstitutionID) {
			continue
		}
		part := newTally()
		for _, e := range rec.Logs {
			if e.Arrival == nil {
				skipped++
				continue
			}
			part.add(rec.VisitorID, e, loc)

			key := e.Arrival.In(loc).Format(attendance.DateLayout)
			day, ok := days[key]
			if !ok {
				day = newTally()
				days[key] = day
			}
			day.add(rec.VisitorID, e, loc)
		}
		total.merge(part)
		if q.GroupByInstitution && known {
			g, ok := byGroup[gid]
			if !ok {
				g = newTally()
				byGroup[gid] = g
			}
			g.merge(part)
		}
	}

	if skipped > 0 {
		a.log.Warn(ctx, "analytics skipped entries without arrival", "count", skipped)
	}

	report := Report{
		TimeRange: TimeRange{Start: start, End: end, Timezone: loc.String()},
		Traffic: Traffic{
			PeakHours:          total.peakHours(),
			HourlyDistribution: total.distribution(),
			BusiestPeriods:     total.busiest(3),
		},
		Performance: total.performance(),
		Entries: EntryStatistics{
			TotalEntries:           total.attempts,
			EntryTypes:             total.types,
			AverageDurationMinutes: total.averageMinutes(),
			DailyPatterns:          make(map[string]DayMetrics, len(days)),
			SkippedEntries:         skipped,
		},
	}
	for key, day := range days {
		report.Entries.DailyPatterns[key] = day.day()
	}
	if q.GroupByInstitution {
		report.Groups = make(map[int64]GroupMetrics, len(byGroup))
		for gid, g := range byGroup {
			report.Groups[gid] = g.group()
		}
	}
	return report, nil
}
