// Package auth issues and verifies credentials and authenticates requests.
//
// CREDENTIALS:
//   - Access token: HS256 JWT, short lived, carries the user id (sub),
//     email and role. Verified without touching the database.
//   - Refresh token: opaque random UUID. Meaningless on its own; the
//     session service looks it up in the store.
//
// JWT STRUCTURE:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:  {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"42","email":"a@b.c","role":"USER","iss":"jiaa-auth","iat":...,"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sakif/jiaa-auth/internal/model"
)

const (
	issuer = "jiaa-auth"

	// minSecretLen is the HS256 key size. Shorter secrets are padded with
	// 'x' up to this length unless strict mode is on.
	minSecretLen = 32
	secretPad    = 'x'
)

// Verification failures. Every one of them matches ErrAccessTokenInvalid,
// so callers that do not care about the reason check only that.
var (
	ErrAccessTokenInvalid   = errors.New("auth: invalid access token")
	ErrAccessTokenExpired   = fmt.Errorf("%w: expired", ErrAccessTokenInvalid)
	ErrAccessTokenMalformed = fmt.Errorf("%w: malformed", ErrAccessTokenInvalid)
	ErrAccessTokenSignature = fmt.Errorf("%w: bad signature", ErrAccessTokenInvalid)
	ErrAccessTokenClaims    = fmt.Errorf("%w: bad claims", ErrAccessTokenInvalid)
)

// Claims is the access token payload.
type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into a user id.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// TokenService signs and verifies access tokens and mints refresh tokens.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	padded bool
}

// TokenOption configures a TokenService.
type TokenOption func(*tokenOptions)

type tokenOptions struct {
	strict bool
	now    func() time.Time
}

// WithStrictSecret rejects secrets shorter than the HS256 key size instead
// of padding them.
func WithStrictSecret() TokenOption {
	return func(o *tokenOptions) { o.strict = true }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) TokenOption {
	return func(o *tokenOptions) { o.now = now }
}

// NewTokenService creates a TokenService issuing tokens valid for ttl.
//
// The secret is used as given when it is at least 32 bytes. A shorter,
// non-empty secret is right-padded with 'x' to 32 bytes (Padded reports
// this) unless WithStrictSecret is set. An empty secret is always rejected.
func NewTokenService(secret string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	o := tokenOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if secret == "" {
		return nil, errors.New("auth: JWT secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: access token TTL must be positive")
	}

	padded := false
	if len(secret) < minSecretLen {
		if o.strict {
			return nil, fmt.Errorf("auth: JWT secret must be at least %d bytes", minSecretLen)
		}
		secret += strings.Repeat(string(secretPad), minSecretLen-len(secret))
		padded = true
	}

	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    o.now,
		padded: padded,
	}, nil
}

// Padded reports whether the configured secret was too short and had to be
// padded. The server logs a warning when it is.
func (s *TokenService) Padded() bool { return s.padded }

// TTL is the lifetime of issued access tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// IssueAccessToken signs an access token for user.
func (s *TokenService) IssueAccessToken(user *model.User) (string, error) {
	if user == nil {
		return "", errors.New("auth: cannot issue token for nil user")
	}
	now := s.now()

	c := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
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

// VerifyAccessToken parses and verifies an access token.
//
// CHECKS:
//   - algorithm is HS256 (rejects "none" and algorithm confusion)
//   - signature matches the secret
//   - issuer is jiaa-auth
//   - exp is present and in the future
//   - sub is a decimal user id
//
// The returned error always matches ErrAccessTokenInvalid and, where the
// cause is known, one of the finer sentinels.
func (s *TokenService) VerifyAccessToken(tokenStr string) (*Claims, error) {
	c := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrAccessTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrAccessTokenMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrAccessTokenSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrAccessTokenClaims, err)
		}
	}
	if !token.Valid {
		return nil, ErrAccessTokenInvalid
	}
	if _, err := c.UserID(); err != nil {
		return nil, fmt.Errorf("%w: subject %q is not a user id", ErrAccessTokenClaims, c.Subject)
	}

	return c, nil
}

// NewRefreshToken returns a fresh opaque refresh token: a random (v4) UUID
// drawn from crypto/rand.
func (s *TokenService) NewRefreshToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("auth: generating refresh token: %w", err)
	}
	return id.String(), nil
}
