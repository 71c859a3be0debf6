package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-auth/pkg/utilities"
)

const (
	AccessTTL          = 15 * time.Minute
	RefreshTTL         = 7 * 24 * time.Hour
	ExtendedRefreshTTL = 30 * 24 * time.Hour
)

var (
	ErrInvalid = errors.New("token: invalid")
	ErrExpired = errors.New("token: expired")
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims carried by both token kinds. Extended is only set on refresh tokens.
type Claims struct {
	Role     string `json:"role,omitempty"`
	Type     Kind   `json:"typ"`
	Extended bool   `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the numeric subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject", ErrInvalid)
	}
	return id, nil
}

type Config struct {
	Issuer        string
	KeyID         string
	AccessSecret  []byte
	RefreshSecret []byte
}

// Issuer signs and verifies HS256 access and refresh tokens. It never consults
// storage; revocation is tracked by the refresh token table.
type Issuer struct {
	cfg Config
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// WithClock replaces the time source, for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// IssueAccess returns a 15 minute token binding identity and role.
func (i *Issuer) IssueAccess(userID int64, role string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(AccessTTL)
	claims := &Claims{
		Role:             role,
		Type:             KindAccess,
		RegisteredClaims: i.registered(userID, now, exp),
	}
	s, err := i.sign(claims, i.cfg.AccessSecret)
	return s, exp, err
}

// IssueRefresh returns a 7 day token, or 30 days when extended.
func (i *Issuer) IssueRefresh(userID int64, extended bool) (string, time.Time, error) {
	now := i.now()
	ttl := RefreshTTL
	if extended {
		ttl = ExtendedRefreshTTL
	}
	exp := now.Add(ttl)
	claims := &Claims{
		Type:             KindRefresh,
		Extended:         extended,
		RegisteredClaims: i.registered(userID, now, exp),
	}
	s, err := i.sign(claims, i.cfg.RefreshSecret)
	return s, exp, err
}

// Verify checks signature, expiry, issuer and kind.
func (i *Issuer) Verify(raw string, kind Kind) (*Claims, error) {
	secret := i.cfg.AccessSecret
	if kind == KindRefresh {
		secret = i.cfg.RefreshSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return secret, nil }, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.Type != kind {
		return nil, fmt.Errorf("%w: unexpected kind %q", ErrInvalid, claims.Type)
	}
	return claims, nil
}

func (i *Issuer) registered(userID int64, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    i.cfg.Issuer,
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        utilities.NewKSUID(),
	}
}

func (i *Issuer) sign(claims *Claims, secret []byte) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if i.cfg.KeyID != "" {
		tok.Header["kid"] = i.cfg.KeyID
	}
	return tok.SignedString(secret)
}
