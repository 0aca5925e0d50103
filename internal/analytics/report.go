package analytics

import (
	"math"
	"sort"
	"time"

	"gatepass/internal/attendance"
)

// Report is the analytics response body.
type Report struct {
	TimeRange   TimeRange              `json:"time_range"`
	Traffic     Traffic                `json:"traffic_analysis"`
	Performance Performance            `json:"performance_metrics"`
	Entries     EntryStatistics        `json:"entry_statistics"`
	Groups      map[int64]GroupMetrics `json:"group_breakdown,omitempty"`
}

type TimeRange struct {
	Start    time.Time `json:"start_date"`
	End      time.Time `json:"end_date"`
	Timezone string    `json:"timezone"`
}

type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type Traffic struct {
	PeakHours          []int       `json:"peak_hours"`
	HourlyDistribution map[int]int `json:"hourly_distribution"`
	BusiestPeriods     []HourCount `json:"busiest_periods"`
}

type Performance struct {
	TotalAttempts        int     `json:"total_attempts"`
	FaceVerified         int     `json:"face_verified"`
	QRVerified           int     `json:"qr_verified"`
	BothVerified         int     `json:"both_verified"`
	Failures             int     `json:"failures"`
	SuccessRate          float64 `json:"success_rate"`
	FaceVerificationRate float64 `json:"face_verification_rate"`
	QRVerificationRate   float64 `json:"qr_verification_rate"`
}

type EntryStatistics struct {
	TotalEntries           int                   `json:"total_entries"`
	EntryTypes             map[string]int        `json:"entry_types"`
	AverageDurationMinutes float64               `json:"average_duration_minutes"`
	DailyPatterns          map[string]DayMetrics `json:"daily_patterns"`
	SkippedEntries         int                   `json:"skipped_entries"` // stored entries with no arrival
}

type DayMetrics struct {
	TotalEntries           int     `json:"total_entries"`
	SuccessfulEntries      int     `json:"successful_entries"`
	UniqueVisitors         int     `json:"unique_visitors"`
	SuccessRate            float64 `json:"success_rate"`
	TotalDurationMinutes   float64 `json:"total_duration_minutes"`
	AverageDurationMinutes float64 `json:"average_duration_minutes"`
}

// GroupMetrics is the per-institution slice of the global metrics.
type GroupMetrics struct {
	TotalEntries           int         `json:"total_entries"`
	UniqueVisitors         int         `json:"unique_visitors"`
	PeakHours              []int       `json:"peak_hours"`
	BusiestPeriods         []HourCount `json:"busiest_periods"`
	Performance            Performance `json:"performance_metrics"`
	AverageDurationMinutes float64     `json:"average_duration_minutes"`
}

// tally is a partial sum over entries. Tallies for disjoint record sets merge
// by addition; hour-derived outputs are read only after the last merge.
type tally struct {
	hours     [24]int
	attempts  int
	face      int
	qr        int
	both      int
	types     map[string]int
	visitors  map[string]struct{}
	durations []float64
}

func newTally() *tally {
	return &tally{types: make(map[string]int), visitors: make(map[string]struct{})}
}

func (t *tally) add(visitorID string, e attendance.TimeLogEntry, loc *time.Location) {
	t.hours[e.Arrival.In(loc).Hour()]++
	t.attempts++
	if e.FaceVerified {
		t.face++
	}
	if e.QRVerified {
		t.qr++
	}
	if e.FaceVerified && e.QRVerified {
		t.both++
	}
	typ := string(e.EntryType)
	if typ == "" {
		typ = string(attendance.EntryNormal)
	}
	t.types[typ]++
	t.visitors[visitorID] = struct{}{}
	if d, ok := e.Elapsed(); ok && d > 0 {
		t.durations = append(t.durations, d.Minutes())
	}
}

func (t *tally) merge(o *tally) {
	for h, n := range o.hours {
		t.hours[h] += n
	}
	t.attempts += o.attempts
	t.face += o.face
	t.qr += o.qr
	t.both += o.both
	for k, n := range o.types {
		t.types[k] += n
	}
	for v := range o.visitors {
		t.visitors[v] = struct{}{}
	}
	t.durations = append(t.durations, o.durations...)
}

func (t *tally) performance() Performance {
	return Performance{
		TotalAttempts:        t.attempts,
		FaceVerified:         t.face,
		QRVerified:           t.qr,
		BothVerified:         t.both,
		Failures:             t.attempts - t.both,
		SuccessRate:          percent(t.both, t.attempts),
		FaceVerificationRate: percent(t.face, t.attempts),
		QRVerificationRate:   percent(t.qr, t.attempts),
	}
}

func (t *tally) totalMinutes() float64 {
	var sum float64
	for _, d := range t.durations {
		sum += d
	}
	return sum
}

func (t *tally) averageMinutes() float64 {
	if len(t.durations) == 0 {
		return 0
	}
	return round2(t.totalMinutes() / float64(len(t.durations)))
}

func (t *tally) distribution() map[int]int {
	out := make(map[int]int)
	for h, n := range t.hours {
		if n > 0 {
			out[h] = n
		}
	}
	return out
}

// peakHours returns, ascending, every hour with at least 80% of the busiest
// hour's count.
func (t *tally) peakHours() []int {
	top := 0
	for _, n := range t.hours {
		if n > top {
			top = n
		}
	}
	peaks := []int{}
	if top == 0 {
		return peaks
	}
	for h, n := range t.hours {
		if n > 0 && float64(n) >= 0.8*float64(top) {
			peaks = append(peaks, h)
		}
	}
	return peaks
}

// busiest returns the top n hours by count. Equal counts keep hour order.
func (t *tally) busiest(n int) []HourCount {
	all := make([]HourCount, 0, len(t.hours))
	for h, c := range t.hours {
		if c > 0 {
			all = append(all, HourCount{Hour: h, Count: c})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Count > all[j].Count })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func (t *tally) day() DayMetrics {
	return DayMetrics{
		TotalEntries:           t.attempts,
		SuccessfulEntries:      t.both,
		UniqueVisitors:         len(t.visitors),
		SuccessRate:            percent(t.both, t.attempts),
		TotalDurationMinutes:   round2(t.totalMinutes()),
		AverageDurationMinutes: t.averageMinutes(),
	}
}

func (t *tally) group() GroupMetrics {
	return GroupMetrics{
		TotalEntries:           t.attempts,
		UniqueVisitors:         len(t.visitors),
		PeakHours:              t.peakHours(),
		BusiestPeriods:         t.busiest(3),
		Performance:            t.performance(),
		AverageDurationMinutes: t.averageMinutes(),
	}
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
