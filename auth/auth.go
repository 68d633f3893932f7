/*
Package auth hashes customer credentials and issues the bearer tokens the
API uses to identify the calling customer.

PURPOSE:
  - Hasher: bcrypt password hashes stored on the customer
  - Tokens: HS256 JWTs whose subject is the customer id

The ledger never sees passwords or tokens; it receives a CustomerID that
the API extracted from a verified token.
*/
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/backoffice/ledger"
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ledger.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", ledger.ErrUnauthorized)
	ErrWeakPassword       = fmt.Errorf("%w: password must have at least %d characters", ledger.ErrInvalid, MinPasswordLength)
)

const MinPasswordLength = 8

// =============================================================================
// PASSWORDS
// =============================================================================

type Hasher struct {
	Cost int
}

func NewHasher() Hasher {
	return Hasher{Cost: bcrypt.DefaultCost}
}

func (h Hasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Compare returns ErrInvalidCredentials when password does not match hash.
func (h Hasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// =============================================================================
// TOKENS
// =============================================================================

type Tokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, issuer: "backoffice", now: time.Now}
}

// Issue returns a signed token for the customer and its expiry.
func (t *Tokens) Issue(id ledger.CustomerID) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   string(id),
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and issuer and returns the subject.
func (t *Tokens) Verify(token string) (ledger.CustomerID, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return ledger.CustomerID(claims.Subject), nil
}
