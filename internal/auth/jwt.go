// Package auth holds credential handling: signed access tokens, PIN hashing,
// one-time signup codes, GitHub sign-in for staff, and the HTTP middleware
// that turns a bearer token into a Principal on the request context.
//
// TOKEN SHAPE:
//
//	sub  = member id | business code | staff id | government user id
//	role = "member" | "business" | "staff" | "government"
//
// The role decides how the subject is interpreted, so handlers never guess
// what kind of identifier they were given.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "cardauth"

	// DefaultTokenTTL applies when NewTokenService is given a zero TTL.
	DefaultTokenTTL = 24 * time.Hour
)

// Role is the kind of account a token was issued to.
type Role string

const (
	RoleMember     Role = "member"
	RoleBusiness   Role = "business"
	RoleStaff      Role = "staff"
	RoleGovernment Role = "government"
)

func (r Role) valid() bool {
	switch r {
	case RoleMember, RoleBusiness, RoleStaff, RoleGovernment:
		return true
	}
	return false
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}

// TokenService signs and verifies HS256 access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; in production use 32 random bytes (openssl rand -hex 32).
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Generate issues a token for subject with the service's default lifetime.
func (s *TokenService) Generate(subject string, role Role) (string, error) {
	return s.GenerateWithDuration(subject, role, s.ttl)
}

// GenerateWithDuration issues a token with a custom lifetime. Tests use a
// negative duration to get an already-expired token.
func (s *TokenService) GenerateWithDuration(subject string, role Role, d time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("auth: token subject must not be empty")
	}
	if !role.valid() {
		return "", fmt.Errorf("auth: unknown role %q", role)
	}

	now := time.Now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate verifies signature, algorithm, issuer and expiry and returns the
// principal the token was issued to.
func (s *TokenService) Validate(tokenStr string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	if !c.Role.valid() {
		return nil, fmt.Errorf("auth: token has unknown role %q", c.Role)
	}

	return &Principal{Subject: c.Subject, Role: c.Role}, nil
}
