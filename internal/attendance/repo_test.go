package attendance

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewRepository(db, ist), mock, db
}

var recordCols = []string{"record_id", "visitor_id", "entry_date", "time_logs", "face_image_ref", "operator_id", "version", "created_at", "updated_at"}

func TestRepository_Get(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	logs := `[{"arrival":"2024-05-01T09:00:00+05:30","qr_verified":true,"face_verified":false},
	          {"arrival":"2024-05-01T11:00:00+05:30","entry_type":"bypass","qr_verified":true,"face_verified":true,
	           "bypass_details":{"reason":"no face","approved_by":"op1","approved_at":"2024-05-01T11:00:00+05:30"}}]`
	created := time.Date(2024, 5, 1, 3, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM daily_records\s+WHERE visitor_id = \$1 AND entry_date = \$2::date`).
		WithArgs("v1", "2024-05-01").
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow("r1", "v1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), logs, "faces/v1.jpg", "op1", int64(4), created, created))

	rec, err := repo.Get(context.Background(), "v1", time.Date(2024, 5, 1, 0, 0, 0, 0, ist))
	require.NoError(t, err)

	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, "2024-05-01", rec.Date())
	assert.Equal(t, ist, rec.EntryDate.Location())
	assert.Equal(t, int64(4), rec.Version)
	assert.Equal(t, "faces/v1.jpg", rec.FaceImageRef)
	require.Len(t, rec.Logs, 2)
	assert.Equal(t, EntryNormal, rec.Logs[0].EntryType, "missing entry_type defaults to normal")
	assert.Equal(t, 9, rec.Logs[0].Arrival.In(ist).Hour())
	assert.Equal(t, EntryBypass, rec.Logs[1].EntryType)
	require.NotNil(t, rec.Logs[1].Bypass)
	assert.Equal(t, "no face", rec.Logs[1].Bypass.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM daily_records`).
		WithArgs("v1", "2024-05-01").
		WillReturnRows(sqlmock.NewRows(recordCols))

	_, err := repo.Get(context.Background(), "v1", time.Date(2024, 5, 1, 0, 0, 0, 0, ist))
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRepository_GetMalformedLogs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM daily_records`).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow("r1", "v1", now, `[{"arrival":"not-a-time"}]`, "", "op1", int64(1), now, now))

	_, err := repo.Get(context.Background(), "v1", now)
	require.ErrorIs(t, err, ErrDataIntegrity)
}

func TestRepository_GetDBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM daily_records`).WillReturnError(errors.New("db is down"))

	_, err := repo.Get(context.Background(), "v1", time.Now())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRecordNotFound))
	assert.Contains(t, err.Error(), "db is down")
}

func TestRepository_SaveInsert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `INSERT INTO daily_records .* ON CONFLICT \(visitor_id, entry_date\) DO NOTHING`
	rec := &DailyRecord{ID: "r1", VisitorID: "v1", EntryDate: time.Date(2024, 5, 1, 0, 0, 0, 0, ist), OperatorID: "op1"}

	mock.ExpectExec(q).
		WithArgs("r1", "v1", "2024-05-01", "[]", "", "op1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Save(context.Background(), rec))
	assert.Equal(t, int64(1), rec.Version)

	other := &DailyRecord{ID: "r2", VisitorID: "v1", EntryDate: rec.EntryDate}
	mock.ExpectExec(q).
		WithArgs("r2", "v1", "2024-05-01", "[]", "", "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Save(context.Background(), other), ErrVersionConflict)
	assert.Equal(t, int64(0), other.Version)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SaveUpdateIsCompareAndSwap(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	arr := time.Date(2024, 5, 1, 9, 0, 0, 0, ist)
	rec := &DailyRecord{
		ID: "r1", VisitorID: "v1", EntryDate: DayOf(arr), Version: 3, FaceImageRef: "faces/x.jpg",
		Logs: []TimeLogEntry{{Arrival: &arr, EntryType: EntryNormal, QRVerified: true}},
	}

	q := `UPDATE daily_records\s+SET time_logs = \$1, face_image_ref = \$2, version = version \+ 1.*WHERE record_id = \$3 AND version = \$4`
	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "faces/x.jpg", "r1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Save(context.Background(), rec))
	assert.Equal(t, int64(4), rec.Version)

	stale := &DailyRecord{ID: "r1", VisitorID: "v1", EntryDate: DayOf(arr), Version: 3}
	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "", "r1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Save(context.Background(), stale), ErrVersionConflict)

	mock.ExpectExec(q).WillReturnError(errors.New("db is down"))
	err := repo.Save(context.Background(), rec)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrVersionConflict))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RecordsBetween(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	from := time.Date(2024, 4, 1, 0, 0, 0, 0, ist)
	to := time.Date(2024, 4, 30, 23, 59, 59, 0, ist)
	now := time.Now()

	mock.ExpectQuery(`WHERE entry_date BETWEEN \$1::date AND \$2::date\s+ORDER BY entry_date DESC`).
		WithArgs("2024-04-01", "2024-04-30").
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow("r1", "v1", now, `[]`, "", "op1", int64(1), now, now).
			AddRow("r2", "v2", now, `[]`, "", "op1", int64(1), now, now))

	recs, err := repo.RecordsBetween(context.Background(), from, to, "")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	mock.ExpectQuery(`WHERE entry_date BETWEEN \$1::date AND \$2::date AND visitor_id = \$3`).
		WithArgs("2024-04-01", "2024-04-30", "v2").
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow("r2", "v2", now, `[]`, "", "op1", int64(1), now, now))

	recs, err = repo.RecordsBetween(context.Background(), from, to, "v2")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "v2", recs[0].VisitorID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListByVisitorAndDate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	now := time.Now()

	mock.ExpectQuery(`WHERE visitor_id = \$1\s+ORDER BY entry_date DESC`).
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow("r1", "v1", now, `[]`, "", "op1", int64(1), now, now))
	recs, err := repo.ListByVisitor(context.Background(), "v1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	mock.ExpectQuery(`WHERE entry_date = \$1::date`).
		WithArgs("2024-05-01").
		WillReturnError(errors.New("timeout"))
	_, err = repo.ListByDate(context.Background(), time.Date(2024, 5, 1, 12, 0, 0, 0, ist))
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
