package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "reqtrack"

type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Email is the session subject.
func (c *SessionClaims) Email() string { return c.Subject }

// SessionIssuer signs and verifies HS256 session tokens. The lifetime is read
// from the shared SessionConfig at issue time.
type SessionIssuer struct {
	secret []byte
	cfg    *SessionConfig
	now    func() time.Time
}

func NewSessionIssuer(secret string, cfg *SessionConfig) *SessionIssuer {
	return &SessionIssuer{secret: []byte(secret), cfg: cfg, now: time.Now}
}

func (s *SessionIssuer) Sign(email, role string) (string, time.Time, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", time.Time{}, errors.New("email is required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("session secret is not configured")
	}
	now := s.now().UTC()
	exp := now.Add(s.cfg.Duration())
	claims := SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify returns ErrTokenExpired for a well-formed token past its expiry and
// ErrTokenInvalid for anything else that fails.
func (s *SessionIssuer) Verify(raw string) (*SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tok.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
