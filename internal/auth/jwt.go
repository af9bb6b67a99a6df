// Package auth issues and verifies signed tokens, hashes passwords, talks to
// the Google identity provider and guards routes with bearer access tokens.
//
// TOKEN KINDS:
// Three TokenService values exist at runtime, each with its own secret:
//
//	verification  5 minutes  emailed activation link
//	access        10 minutes Authorization: Bearer <token>
//	refresh       7 days     httpOnly "refreshToken" cookie
//
// A token signed with one secret never verifies under another, so a leaked
// verification link cannot be replayed as an access token.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"user_id":"1-ab..","role":"user","sub":"1-ab..","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "thoughts"

// Token lifetimes.
const (
	VerificationTTL = 5 * time.Minute
	AccessTTL       = 10 * time.Minute
	RefreshTTL      = 7 * 24 * time.Hour
)

var (
	// ErrTokenExpired means the signature was valid but exp is in the past.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers bad signatures, wrong secrets, wrong algorithms
	// and malformed tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// Identity is the payload every token carries.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == "admin"
}

type claims struct {
	Identity
	jwt.RegisteredClaims
}

// TokenService signs and verifies one kind of token.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService whose tokens live for ttl.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of tokens issued by Issue.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for id that expires after the service's ttl.
func (s *TokenService) Issue(id Identity) (string, error) {
	return s.IssueWithDuration(id, s.ttl)
}

// IssueWithDuration signs a token with a custom lifetime. Tests use a
// negative duration to mint already expired tokens.
func (s *TokenService) IssueWithDuration(id Identity, d time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("auth: identity has no user id")
	}
	now := s.now()

	c := claims{
		Identity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
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

// Verify parses tokenStr and returns its identity. The error wraps
// ErrTokenExpired or ErrTokenInvalid.
//
// jwt.WithValidMethods rejects "none" and every non-HS256 algorithm, which
// blocks algorithm confusion attacks.
func (s *TokenService) Verify(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.UserID == "" {
		return Identity{}, ErrTokenInvalid
	}
	return c.Identity, nil
}
