package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked")
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims represents JWT payload. ID (jti) identifies the token for revocation.
type Claims struct {
	Role string `json:"role"`
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 operator tokens.
type Signer struct {
	Key        []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	now func() time.Time
}

func NewSigner(key, issuer string, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{Key: []byte(key), Issuer: issuer, AccessTTL: accessTTL, RefreshTTL: refreshTTL, now: time.Now}
}

// Issue issues signed access and refresh tokens for username.
func (s *Signer) Issue(username, role string) (TokenPair, error) {
	now := s.now()
	pair := TokenPair{AccessExp: now.Add(s.AccessTTL), RefreshExp: now.Add(s.RefreshTTL)}

	var err error
	pair.AccessToken, err = s.sign(username, role, "access", now, pair.AccessExp)
	if err != nil {
		return TokenPair{}, err
	}
	pair.RefreshToken, err = s.sign(username, role, "refresh", now, pair.RefreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *Signer) sign(subject, role, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
}

// Parse validates an access token and returns its claims.
func (s *Signer) Parse(tokenStr string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.Key, nil
	}, opts...)
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Kind != "access" || claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
