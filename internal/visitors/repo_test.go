package visitors

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewRepository(db), mock, db
}

var (
	visitorCols     = []string{"id", "name", "email", "institution_id", "name", "profile_image_ref", "qr_payload", "qr_code_ref", "card_ref", "created_at"}
	institutionCols = []string{"id", "name", "address", "contact_number", "email", "expected_count", "created_at"}
	uniqueViolation = &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
)

func TestRepository_Get(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM visitors v\s+JOIN institutions i ON i.id = v.institution_id WHERE v.id = \$1`).
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows(visitorCols).
			AddRow("v1", "Asha", "asha@example.com", int64(1), "IIT", "profiles/a.jpg", `{"visitor_id":"v1"}`, "", "", at))

	v, err := repo.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "IIT", v.InstitutionName)
	assert.Equal(t, "profiles/a.jpg", v.ProfileImageRef)

	mock.ExpectQuery(`WHERE v.id = \$1`).WithArgs("v2").WillReturnRows(sqlmock.NewRows(visitorCols))
	_, err = repo.Get(context.Background(), "v2")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Insert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	v := &Visitor{ID: "v1", Name: "Asha", Email: "asha@example.com", InstitutionID: 1, ProfileImageRef: "p.jpg", QRPayload: "{}"}

	mock.ExpectQuery(`INSERT INTO visitors .* RETURNING created_at`).
		WithArgs("v1", "Asha", "asha@example.com", int64(1), "p.jpg", "{}").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(at))
	require.NoError(t, repo.Insert(context.Background(), v))
	assert.True(t, v.CreatedAt.Equal(at))

	mock.ExpectQuery(`INSERT INTO visitors`).WillReturnError(uniqueViolation)
	require.ErrorIs(t, repo.Insert(context.Background(), v), ErrEmailTaken)

	mock.ExpectQuery(`INSERT INTO visitors`).WillReturnError(errors.New("conn reset"))
	err := repo.Insert(context.Background(), v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListAndGroups(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	at := time.Now()

	mock.ExpectQuery(`WHERE \(\$1::bigint = 0 OR v.institution_id = \$1\) ORDER BY v.name`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(visitorCols).
			AddRow("v1", "Asha", "a@x.com", int64(2), "NIT", "", "{}", "", "", at).
			AddRow("v2", "Bala", "b@x.com", int64(2), "NIT", "", "{}", "qr.png", "card.png", at))
	list, err := repo.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "card.png", list[1].CardRef)

	mock.ExpectQuery(`SELECT id, institution_id FROM visitors`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "institution_id"}).AddRow("v1", int64(2)).AddRow("v3", int64(1)))
	groups, err := repo.Groups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"v1": 2, "v3": 1}, groups)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SetMediaRefs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE visitors SET qr_code_ref = \$2, card_ref = \$3 WHERE id = \$1`).
		WithArgs("v1", "qr/v1.png", "cards/v1.png").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetMediaRefs(context.Background(), "v1", "qr/v1.png", "cards/v1.png"))

	mock.ExpectExec(`UPDATE visitors`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.SetMediaRefs(context.Background(), "gone", "", ""), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LoginHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT password_hash FROM institution_logins`).
		WithArgs(int64(1), "gate").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow("$2a$hash"))
	hash, err := repo.LoginHash(context.Background(), 1, "gate")
	require.NoError(t, err)
	assert.Equal(t, "$2a$hash", hash)

	mock.ExpectQuery(`SELECT password_hash`).WillReturnRows(sqlmock.NewRows([]string{"password_hash"}))
	_, err = repo.LoginHash(context.Background(), 1, "nobody")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_AddInstitution(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	at := time.Now()
	in := NewInstitution{Key: "k1", Name: "BITS", LoginID: "bits", ExpectedCount: 40, passwordHash: "h"}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE login_keys SET used = TRUE`).WithArgs("k1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO institutions`).
		WithArgs("BITS", "", "", "", 40).
		WillReturnRows(sqlmock.NewRows(institutionCols).AddRow(int64(7), "BITS", "", "", "", 40, at))
	mock.ExpectExec(`INSERT INTO institution_logins`).WithArgs("bits", int64(7), "h").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inst, err := repo.AddInstitution(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(7), inst.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_AddInstitutionRollsBack(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()
	in := NewInstitution{Key: "k1", Name: "BITS", LoginID: "bits", passwordHash: "h"}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE login_keys`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	_, err := repo.AddInstitution(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidKey)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE login_keys`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO institutions`).WillReturnError(uniqueViolation)
	mock.ExpectRollback()
	_, err = repo.AddInstitution(context.Background(), in)
	require.ErrorIs(t, err, ErrInstitutionExists)
	require.NoError(t, mock.ExpectationsWereMet())
}
