// Package operators manages the gate staff accounts that drive the ledger.
package operators

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"gatepass/internal/auth"
	"gatepass/internal/logging"
	"gatepass/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidInput       = errors.New("invalid operator input")
	ErrNotFound           = errors.New("operator not found")
)

type Operator struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store interface {
	Get(ctx context.Context, username string) (Operator, error)
	Insert(ctx context.Context, op *Operator) error
}

// Repository keeps operators in Postgres.
type Repository struct {
	db store.DBTX
}

func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, username string) (Operator, error) {
	var op Operator
	err := r.db.QueryRowContext(ctx, `
		SELECT username, email, role, password_hash, created_at
		FROM operators WHERE username = $1
	`, username).Scan(&op.Username, &op.Email, &op.Role, &op.PasswordHash, &op.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Operator{}, ErrNotFound
	}
	if err != nil {
		return Operator{}, fmt.Errorf("db error: %w", err)
	}
	return op, nil
}

func (r *Repository) Insert(ctx context.Context, op *Operator) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO operators (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, op.Username, op.Email, op.PasswordHash, op.Role).Scan(&op.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type Service struct {
	store   Store
	signer  *auth.Signer
	revoked auth.Revocations
	log     logging.Logger
}

func NewService(st Store, signer *auth.Signer, revoked auth.Revocations, log logging.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{store: st, signer: signer, revoked: revoked, log: log}
}

type CreateInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Create adds an operator. Role defaults to operator.
func (s *Service) Create(ctx context.Context, in CreateInput) (Operator, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || len(in.Password) < 6 {
		return Operator{}, fmt.Errorf("%w: username and a password of at least 6 characters are required", ErrInvalidInput)
	}
	switch in.Role {
	case "":
		in.Role = auth.RoleOperator
	case auth.RoleOperator, auth.RoleAdmin:
	default:
		return Operator{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Operator{}, err
	}
	op := Operator{Username: in.Username, Email: in.Email, Role: in.Role, PasswordHash: string(hash)}
	if err := s.store.Insert(ctx, &op); err != nil {
		return Operator{}, err
	}
	s.log.Info(ctx, "operator created", "username", op.Username, "role", op.Role)
	return op, nil
}

// Login checks the password and issues a token pair.
func (s *Service) Login(ctx context.Context, username, password string) (auth.TokenPair, Operator, error) {
	op, err := s.store.Get(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return auth.TokenPair{}, Operator{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.TokenPair{}, Operator{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) != nil {
		s.log.Warn(ctx, "operator login failed", "username", op.Username)
		return auth.TokenPair{}, Operator{}, ErrInvalidCredentials
	}
	pair, err := s.signer.Issue(op.Username, op.Role)
	if err != nil {
		return auth.TokenPair{}, Operator{}, fmt.Errorf("issue token: %w", err)
	}
	return pair, op, nil
}

// Logout revokes the presented access token until it expires.
func (s *Service) Logout(ctx context.Context, claims auth.Claims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return auth.ErrInvalidToken
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.log.Info(ctx, "operator logged out", "username", claims.Subject)
	return nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist.
func (s *Service) EnsureAdmin(ctx context.Context, username, password, email string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := s.store.Get(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.Create(ctx, CreateInput{Username: username, Email: email, Password: password, Role: auth.RoleAdmin})
	if errors.Is(err, ErrUsernameTaken) {
		return nil
	}
	return err
}
