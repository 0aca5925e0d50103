package attendance

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type visitorSet map[string]bool

func (v visitorSet) Exists(_ context.Context, id string) (bool, error) {
	return v[id], nil
}

func newLedger(t *testing.T, st Store) (*Service, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, ist)}
	svc := NewService(st, visitorSet{"v1": true, "v2": true}, WithClock(clock))
	return svc, clock
}

func arrival(visitor string) ArrivalRequest {
	return ArrivalRequest{VisitorID: visitor, OperatorID: "op1"}
}

func TestRecordArrival_CreatesRecordWithNormalEntry(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()

	res, err := svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)

	assert.True(t, res.RecordCreated)
	assert.Equal(t, "2024-05-01", res.EntryDate)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, EntryNormal, res.Entry.EntryType)
	assert.True(t, res.Entry.QRVerified)
	assert.False(t, res.Entry.FaceVerified)
	assert.Nil(t, res.Entry.Bypass)
	require.NotNil(t, res.Entry.Arrival)
	assert.True(t, res.Entry.Arrival.Equal(clock.Now()))
	assert.True(t, res.Entry.Open())

	rec, err := st.Get(ctx, "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	assert.Len(t, rec.Logs, 1)
	assert.Equal(t, "op1", rec.OperatorID)
	assert.Equal(t, int64(1), rec.Version)
	assert.NotEmpty(t, rec.ID)
}

func TestArrivalThenDeparture_RoundTrip(t *testing.T) {
	svc, clock := newLedger(t, NewMemoryStore())
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)

	clock.advance(90*time.Minute + 15*time.Second)
	res, err := svc.RecordDeparture(ctx, "v1", "op2")
	require.NoError(t, err)

	e := res.Entry
	require.NotNil(t, e.Arrival)
	require.NotNil(t, e.Departure)
	assert.False(t, e.Departure.Before(*e.Arrival))
	d, ok := e.Elapsed()
	require.True(t, ok)
	assert.Equal(t, e.Departure.Sub(*e.Arrival), d)
	assert.Equal(t, "1:30:15", e.Duration)
	assert.Equal(t, "op2", e.DepartureVerifiedBy)
	require.NotNil(t, e.DepartureVerification)
	assert.True(t, e.DepartureVerification.Equal(*e.Departure))
	assert.False(t, res.RecordCreated)
}

func TestRecordDeparture_TwiceFailsAlreadyDeparted(t *testing.T) {
	svc, clock := newLedger(t, NewMemoryStore())
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)
	clock.advance(time.Hour)
	_, err = svc.RecordDeparture(ctx, "v1", "op1")
	require.NoError(t, err)

	_, err = svc.RecordDeparture(ctx, "v1", "op1")
	require.ErrorIs(t, err, ErrAlreadyDeparted)
}

func TestRecordArrival_BypassShape(t *testing.T) {
	svc, clock := newLedger(t, NewMemoryStore())
	ctx := context.Background()

	res, err := svc.RecordArrival(ctx, ArrivalRequest{VisitorID: "v1", OperatorID: "op9", Bypass: true, BypassReason: "no face"})
	require.NoError(t, err)
	assert.Equal(t, EntryBypass, res.Entry.EntryType)
	require.NotNil(t, res.Entry.Bypass)
	assert.Equal(t, "no face", res.Entry.Bypass.Reason)
	assert.Equal(t, "op9", res.Entry.Bypass.ApprovedBy)
	assert.True(t, res.Entry.Bypass.ApprovedAt.Equal(clock.Now()))

	res, err = svc.RecordArrival(ctx, ArrivalRequest{VisitorID: "v2", OperatorID: "op9", Bypass: false})
	require.NoError(t, err)
	assert.Equal(t, EntryNormal, res.Entry.EntryType)
	assert.Nil(t, res.Entry.Bypass)
}

func TestMultipleVisitsPerDay(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)
	clock.advance(time.Hour)
	_, err = svc.RecordDeparture(ctx, "v1", "op1")
	require.NoError(t, err)

	clock.advance(30 * time.Minute)
	res, err := svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.False(t, res.RecordCreated)

	clock.advance(2 * time.Hour)
	res, err = svc.RecordDeparture(ctx, "v1", "op1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, "2:00:00", res.Entry.Duration)

	rec, err := st.Get(ctx, "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	require.Len(t, rec.Logs, 2)
	assert.Equal(t, "1:00:00", rec.Logs[0].Duration)
	assert.False(t, rec.Logs[0].Open())
	assert.False(t, rec.Logs[1].Open())
}

func TestRecordArrival_WhileOpenFailsAlreadyCheckedIn(t *testing.T) {
	svc, _ := newLedger(t, NewMemoryStore())
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)
	_, err = svc.RecordArrival(ctx, ArrivalRequest{VisitorID: "v1", OperatorID: "op1", Bypass: true, BypassReason: "retry"})
	require.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestLedger_NotFoundAndNoActiveEntry(t *testing.T) {
	svc, _ := newLedger(t, NewMemoryStore())
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, arrival("ghost"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RecordDeparture(ctx, "ghost", "op1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RecordDeparture(ctx, "v1", "op1")
	require.ErrorIs(t, err, ErrNoActiveEntry)

	_, err = svc.RecordArrival(ctx, ArrivalRequest{VisitorID: "v1"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRecordDeparture_EmptyRecordIsNoActiveEntry(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	st.Put(DailyRecord{ID: "r1", VisitorID: "v1", EntryDate: DayOf(clock.Now())})

	_, err := svc.RecordDeparture(context.Background(), "v1", "op1")
	require.ErrorIs(t, err, ErrNoActiveEntry)
}

func TestRecordArrival_AppendsToEmptyRecord(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	st.Put(DailyRecord{ID: "r1", VisitorID: "v1", EntryDate: DayOf(clock.Now()), FaceImageRef: "faces/a.jpg"})

	res, err := svc.RecordArrival(context.Background(), arrival("v1"))
	require.NoError(t, err)
	assert.False(t, res.RecordCreated)
	assert.Equal(t, 0, res.Index)
	assert.True(t, res.FaceCaptured)
}

func TestRecordArrival_BackfillsStubWithoutArrival(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()

	earlier := clock.Now().Add(-2 * time.Hour)
	closed := clock.Now().Add(-time.Hour)
	st.Put(DailyRecord{
		ID: "r1", VisitorID: "v1", EntryDate: DayOf(clock.Now()),
		Logs: []TimeLogEntry{
			{Arrival: &earlier, Departure: &closed, EntryType: EntryNormal, QRVerified: true},
			{EntryType: EntryNormal},
		},
	})

	res, err := svc.RecordArrival(ctx, ArrivalRequest{VisitorID: "v1", OperatorID: "op1", Bypass: true, BypassReason: "scanner down"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	require.NotNil(t, res.Entry.Arrival)
	assert.True(t, res.Entry.QRVerified)
	assert.Equal(t, EntryBypass, res.Entry.EntryType)
	require.NotNil(t, res.Entry.Bypass)
	assert.Equal(t, "scanner down", res.Entry.Bypass.Reason)

	rec, err := st.Get(ctx, "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	assert.Len(t, rec.Logs, 2, "backfill must not append")
}

func TestRecordDeparture_NegativeDurationIsPersistedAndFlagged(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()

	future := clock.Now().Add(10 * time.Minute)
	st.Put(DailyRecord{
		ID: "r1", VisitorID: "v1", EntryDate: DayOf(clock.Now()),
		Logs: []TimeLogEntry{{Arrival: &future, EntryType: EntryNormal, QRVerified: true}},
	})

	res, err := svc.RecordDeparture(ctx, "v1", "op1")
	require.ErrorIs(t, err, ErrNegativeDuration)
	require.ErrorIs(t, err, ErrDataIntegrity)
	assert.Equal(t, "-0:10:00", res.Entry.Duration)
	require.NotNil(t, res.Entry.Departure)

	rec, err := st.Get(ctx, "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	assert.False(t, rec.Logs[0].Open(), "departure must be stored, not clamped or dropped")

	_, err = svc.RecordDeparture(ctx, "v1", "op1")
	require.ErrorIs(t, err, ErrAlreadyDeparted)
}

func TestLedger_RejectsMalformedStoredRecords(t *testing.T) {
	cases := map[string][]TimeLogEntry{
		"two open entries": {
			{Arrival: ptr(time.Date(2024, 5, 1, 8, 0, 0, 0, ist)), EntryType: EntryNormal},
			{Arrival: ptr(time.Date(2024, 5, 1, 8, 30, 0, 0, ist)), EntryType: EntryNormal},
		},
		"bypass without details": {
			{Arrival: ptr(time.Date(2024, 5, 1, 8, 0, 0, 0, ist)), EntryType: EntryBypass},
		},
		"details without bypass": {
			{Arrival: ptr(time.Date(2024, 5, 1, 8, 0, 0, 0, ist)), EntryType: EntryNormal, Bypass: &BypassDetails{Reason: "x"}},
		},
		"unknown type": {
			{Arrival: ptr(time.Date(2024, 5, 1, 8, 0, 0, 0, ist)), EntryType: "group"},
		},
	}
	for name, logs := range cases {
		t.Run(name, func(t *testing.T) {
			st := NewMemoryStore()
			svc, clock := newLedger(t, st)
			st.Put(DailyRecord{ID: "r1", VisitorID: "v1", EntryDate: DayOf(clock.Now()), Logs: logs})

			_, err := svc.RecordDeparture(context.Background(), "v1", "op1")
			require.ErrorIs(t, err, ErrDataIntegrity)
		})
	}
}

func TestRecordDeparture_StubWithoutArrivalIsIntegrityError(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	st.Put(DailyRecord{ID: "r1", VisitorID: "v1", EntryDate: DayOf(clock.Now()), Logs: []TimeLogEntry{{EntryType: EntryNormal}}})

	_, err := svc.RecordDeparture(context.Background(), "v1", "op1")
	require.ErrorIs(t, err, ErrDataIntegrity)

	rec, err := st.Get(context.Background(), "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version, "rejected departure must not write")
}

func TestAttachFaceImage(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()

	err := svc.AttachFaceImage(ctx, "v1", "faces/v1.jpg")
	require.ErrorIs(t, err, ErrNoActiveEntry)

	_, err = svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)
	require.NoError(t, svc.AttachFaceImage(ctx, "v1", "faces/v1.jpg"))

	rec, err := st.Get(ctx, "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, "faces/v1.jpg", rec.FaceImageRef)
	assert.Len(t, rec.Logs, 1)

	clock.advance(time.Hour)
	_, err = svc.RecordDeparture(ctx, "v1", "op1")
	require.NoError(t, err)
	clock.advance(time.Hour)
	res, err := svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)
	assert.True(t, res.FaceCaptured)
}

func TestConfirmFace_MarksLatestEntry(t *testing.T) {
	svc, _ := newLedger(t, NewMemoryStore())
	ctx := context.Background()

	_, err := svc.ConfirmFace(ctx, "v1")
	require.ErrorIs(t, err, ErrNoActiveEntry)

	_, err = svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)
	res, err := svc.ConfirmFace(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, res.Entry.FaceVerified)
	assert.True(t, res.Entry.QRVerified)

	_, err = svc.ConfirmFace(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmFace_ClosedVisitIsNotChanged(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()

	_, err := svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)
	clock.advance(time.Hour)
	_, err = svc.RecordDeparture(ctx, "v1", "op1")
	require.NoError(t, err)

	_, err = svc.ConfirmFace(ctx, "v1")
	require.ErrorIs(t, err, ErrNoActiveEntry)

	rec, err := st.Get(ctx, "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	assert.False(t, rec.Logs[0].FaceVerified)
}

// grantLocker hands every Lock call to the test, which decides when it is
// granted.
type grantLocker struct {
	calls chan lockCall
}

type lockCall struct {
	key   string
	grant chan struct{}
}

func (l *grantLocker) Lock(ctx context.Context, key string) (func(), error) {
	call := lockCall{key: key, grant: make(chan struct{})}
	select {
	case l.calls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case <-call.grant:
		return func() {}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestMutate_TimestampsFollowLockOrder(t *testing.T) {
	st := NewMemoryStore()
	clock := &fixedClock{now: time.Date(2024, 5, 1, 11, 0, 0, 0, ist)}
	locker := &grantLocker{calls: make(chan lockCall)}
	svc := NewService(st, visitorSet{"v1": true}, WithClock(clock), WithLocker(locker))
	ctx := context.Background()

	in, out := time.Date(2024, 5, 1, 9, 0, 0, 0, ist), time.Date(2024, 5, 1, 10, 0, 0, 0, ist)
	st.Put(DailyRecord{
		ID: "r1", VisitorID: "v1", EntryDate: DayOf(in),
		Logs: []TimeLogEntry{{Arrival: &in, Departure: &out, Duration: "1:00:00", EntryType: EntryNormal, QRVerified: true}},
	})

	type outcome struct {
		res EntryResult
		err error
	}
	departed := make(chan outcome, 1)
	go func() {
		res, err := svc.RecordDeparture(ctx, "v1", "op1")
		departed <- outcome{res, err}
	}()
	depCall := <-locker.calls
	assert.Equal(t, "v1|2024-05-01", depCall.key)

	clock.advance(time.Minute)
	arrived := make(chan outcome, 1)
	go func() {
		res, err := svc.RecordArrival(ctx, arrival("v1"))
		arrived <- outcome{res, err}
	}()
	close((<-locker.calls).grant)
	a := <-arrived
	require.NoError(t, a.err)

	clock.advance(time.Minute)
	close(depCall.grant)
	d := <-departed
	require.NoError(t, d.err)
	require.NotNil(t, d.res.Entry.Departure)
	assert.False(t, d.res.Entry.Departure.Before(*d.res.Entry.Arrival))
	assert.Equal(t, "0:01:00", d.res.Entry.Duration)

	rec, err := st.Get(ctx, "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	require.Len(t, rec.Logs, 2)
	for _, e := range rec.Logs {
		elapsed, ok := e.Elapsed()
		require.True(t, ok)
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	}
}

func TestMutate_RelocksWhenDayRollsOverWhileWaiting(t *testing.T) {
	st := NewMemoryStore()
	clock := &fixedClock{now: time.Date(2024, 5, 1, 23, 59, 59, 0, ist)}
	locker := &grantLocker{calls: make(chan lockCall)}
	svc := NewService(st, visitorSet{"v1": true}, WithClock(clock), WithLocker(locker))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.RecordArrival(ctx, arrival("v1"))
		done <- err
	}()
	first := <-locker.calls
	assert.Equal(t, "v1|2024-05-01", first.key)
	clock.advance(2 * time.Second)
	close(first.grant)

	second := <-locker.calls
	assert.Equal(t, "v1|2024-05-02", second.key)
	close(second.grant)
	require.NoError(t, <-done)

	_, err := st.Get(ctx, "v1", time.Date(2024, 5, 2, 0, 0, 0, 0, ist))
	require.NoError(t, err)
	_, err = st.Get(ctx, "v1", time.Date(2024, 5, 1, 0, 0, 0, 0, ist))
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDayBoundary_DepartureAfterMidnightSeesNewDay(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()
	clock.now = time.Date(2024, 5, 1, 23, 50, 0, 0, ist)

	_, err := svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)

	clock.advance(20 * time.Minute)
	_, err = svc.RecordDeparture(ctx, "v1", "op1")
	require.ErrorIs(t, err, ErrNoActiveEntry)
}

func TestConcurrentArrivals_OnlyOneOpens(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()

	const n = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordArrival(ctx, arrival("v1"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAlreadyCheckedIn):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, rejected)
	rec, err := st.Get(ctx, "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	assert.Len(t, rec.Logs, 1)
}

func TestRandomSequences_AtMostOneOpenEntryAndOnlyLast(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		clock.advance(time.Minute)
		if rnd.Intn(2) == 0 {
			_, _ = svc.RecordArrival(ctx, ArrivalRequest{VisitorID: "v1", OperatorID: "op1", Bypass: rnd.Intn(3) == 0})
		} else {
			_, _ = svc.RecordDeparture(ctx, "v1", "op1")
		}
		if clock.Now().Hour() >= 23 {
			break
		}
	}

	rec, err := st.Get(ctx, "v1", DayOf(clock.Now()))
	require.NoError(t, err)
	for i, e := range rec.Logs {
		if e.Open() {
			assert.Equal(t, len(rec.Logs)-1, i, "open entry must be the last one")
		}
		if d, ok := e.Elapsed(); ok {
			assert.GreaterOrEqual(t, d, time.Duration(0))
		}
		assert.Equal(t, e.EntryType == EntryBypass, e.Bypass != nil)
	}
}

type conflictingStore struct {
	*MemoryStore
	failures int
}

func (c *conflictingStore) Save(ctx context.Context, rec *DailyRecord) error {
	if c.failures > 0 {
		c.failures--
		return ErrVersionConflict
	}
	return c.MemoryStore.Save(ctx, rec)
}

func TestVersionConflict_RetriesThenGivesUp(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		svc, _ := newLedger(t, &conflictingStore{MemoryStore: NewMemoryStore(), failures: 2})
		_, err := svc.RecordArrival(context.Background(), arrival("v1"))
		require.NoError(t, err)
	})
	t.Run("exhausted", func(t *testing.T) {
		svc, _ := newLedger(t, &conflictingStore{MemoryStore: NewMemoryStore(), failures: 10})
		_, err := svc.RecordArrival(context.Background(), arrival("v1"))
		require.ErrorIs(t, err, ErrConcurrentUpdate)
	})
}

type brokenStore struct{ *MemoryStore }

func (brokenStore) Get(context.Context, string, time.Time) (*DailyRecord, error) {
	return nil, errors.New("connection refused")
}

func TestInfrastructureErrorsAreNotBusinessErrors(t *testing.T) {
	svc, _ := newLedger(t, brokenStore{NewMemoryStore()})
	_, err := svc.RecordArrival(context.Background(), arrival("v1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	for _, sentinel := range []error{ErrNotFound, ErrNoActiveEntry, ErrAlreadyCheckedIn, ErrAlreadyDeparted, ErrDataIntegrity} {
		assert.False(t, errors.Is(err, sentinel), "infra error matched %v", sentinel)
	}
}

func TestReadSide(t *testing.T) {
	st := NewMemoryStore()
	svc, clock := newLedger(t, st)
	ctx := context.Background()

	_, err := svc.Today(ctx, "v1")
	require.ErrorIs(t, err, ErrNoActiveEntry)

	yesterday := DayOf(clock.Now()).AddDate(0, 0, -1)
	st.Put(DailyRecord{ID: "old", VisitorID: "v1", EntryDate: yesterday})
	_, err = svc.RecordArrival(ctx, arrival("v1"))
	require.NoError(t, err)
	_, err = svc.RecordArrival(ctx, arrival("v2"))
	require.NoError(t, err)

	rec, err := svc.Today(ctx, "v1")
	require.NoError(t, err)
	assert.NotNil(t, rec.Active())

	hist, err := svc.History(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2024-05-01", hist[0].Date())
	assert.Equal(t, "2024-04-30", hist[1].Date())

	day, err := svc.RecordsOn(ctx, clock.Now())
	require.NoError(t, err)
	assert.Len(t, day, 2)
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                      "0:00:00",
		59 * time.Second:                       "0:00:59",
		90*time.Minute + 1500*time.Millisecond: "1:30:01",
		26 * time.Hour:                         "26:00:00",
		-5 * time.Minute:                       "-0:05:00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatDuration(in), in.String())
	}
}

func TestRecordIDsAreULIDs(t *testing.T) {
	id, err := ulidGen{}.New()
	require.NoError(t, err)
	assert.Len(t, id, 26)
	assert.Equal(t, strings.ToUpper(id), id)
}

func ptr(t time.Time) *time.Time { return &t }
