package visitors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"gatepass/internal/store"
)

// Repository stores visitors and institutions in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const visitorSelect = `
	SELECT v.id, v.name, v.email, v.institution_id, i.name, v.profile_image_ref,
	       v.qr_payload, v.qr_code_ref, v.card_ref, v.created_at
	FROM visitors v
	JOIN institutions i ON i.id = v.institution_id`

const institutionColumns = `id, name, address, contact_number, email, expected_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanVisitor(s scanner) (Visitor, error) {
	var v Visitor
	err := s.Scan(&v.ID, &v.Name, &v.Email, &v.InstitutionID, &v.InstitutionName,
		&v.ProfileImageRef, &v.QRPayload, &v.QRCodeRef, &v.CardRef, &v.CreatedAt)
	return v, err
}

func scanInstitution(s scanner) (Institution, error) {
	var i Institution
	err := s.Scan(&i.ID, &i.Name, &i.Address, &i.ContactNumber, &i.Email, &i.ExpectedCount, &i.CreatedAt)
	return i, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) Get(ctx context.Context, id string) (Visitor, error) {
	v, err := scanVisitor(r.db.QueryRowContext(ctx, visitorSelect+` WHERE v.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Visitor{}, ErrNotFound
	}
	if err != nil {
		return Visitor{}, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// List returns visitors ordered by name. institutionID 0 lists everyone.
func (r *Repository) List(ctx context.Context, institutionID int64) ([]Visitor, error) {
	q := visitorSelect + ` WHERE ($1::bigint = 0 OR v.institution_id = $1) ORDER BY v.name`
	rows, err := r.db.QueryContext(ctx, q, institutionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM visitors WHERE lower(email) = lower($1))`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Insert stores a new visitor and fills CreatedAt.
func (r *Repository) Insert(ctx context.Context, v *Visitor) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO visitors (id, name, email, institution_id, profile_image_ref, qr_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, v.ID, v.Name, v.Email, v.InstitutionID, v.ProfileImageRef, v.QRPayload).Scan(&v.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *Repository) SetMediaRefs(ctx context.Context, id, qrRef, cardRef string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE visitors SET qr_code_ref = $2, card_ref = $3 WHERE id = $1`, id, qrRef, cardRef)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Groups maps every visitor id to its institution id.
func (r *Repository) Groups(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, institution_id FROM visitors`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var inst int64
		if err := rows.Scan(&id, &inst); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out[id] = inst
	}
	return out, rows.Err()
}

func (r *Repository) InstitutionByName(ctx context.Context, name string) (Institution, error) {
	i, err := scanInstitution(r.db.QueryRowContext(ctx, `SELECT `+institutionColumns+` FROM institutions WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return Institution{}, ErrInstitutionNotFound
	}
	if err != nil {
		return Institution{}, fmt.Errorf("db error: %w", err)
	}
	return i, nil
}

// LoginHash returns the password hash of an institution login.
func (r *Repository) LoginHash(ctx context.Context, institutionID int64, loginID string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `
		SELECT password_hash FROM institution_logins
		WHERE institution_id = $1 AND login_id = $2
	`, institutionID, loginID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return hash, nil
}

func (r *Repository) ListInstitutions(ctx context.Context) ([]Institution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+institutionColumns+` FROM institutions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []Institution
	for rows.Next() {
		i, err := scanInstitution(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *Repository) CreateLoginKey(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO login_keys (key) VALUES ($1)`, key); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// AddInstitution claims the login key and creates the institution with its
// login in one transaction.
func (r *Repository) AddInstitution(ctx context.Context, in NewInstitution) (Institution, error) {
	var inst Institution
	err := store.WithTx(ctx, r.db, nil, func(ctx context.Context, tx store.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE login_keys SET used = TRUE, used_at = NOW()
			WHERE key = $1 AND NOT used
		`, in.Key)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInvalidKey
		}

		inst, err = scanInstitution(tx.QueryRowContext(ctx, `
			INSERT INTO institutions (name, address, contact_number, email, expected_count)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+institutionColumns,
			in.Name, in.Address, in.ContactNumber, in.Email, in.ExpectedCount))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO institution_logins (login_id, institution_id, password_hash)
			VALUES ($1, $2, $3)
		`, in.LoginID, inst.ID, in.passwordHash)
		return err
	})
	switch {
	case err == nil:
		return inst, nil
	case errors.Is(err, ErrInvalidKey):
		return Institution{}, err
	case isUniqueViolation(err):
		return Institution{}, ErrInstitutionExists
	default:
		return Institution{}, fmt.Errorf("db error: %w", err)
	}
}
