// Package auth implements session tokens and the HTTP session gate: signing
// and verifying JWTs, extracting credentials from requests, and binding the
// verified identity to the request context.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. Every class wraps ErrTokenInvalid so callers that
// do not care about the reason can match on it alone.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrTokenInvalid)
	ErrTokenSignature = fmt.Errorf("%w: signature mismatch", ErrTokenInvalid)
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrTokenInvalid)
)

// Identity is the authenticated principal carried by a session token.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Claims is the JWT payload of a session token.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Username: c.Username, Email: c.Email}
}

// Codec signs and verifies HS256 session tokens with a single process-wide secret.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type CodecOption func(*Codec)

// WithClock overrides the time source used for iat/exp and for expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// WithIssuer stamps and requires the iss claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for identity that expires ttl from now.
func (c *Codec) Issue(identity Identity, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}

	now := c.now()
	claims := Claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		Email:    identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks the signature first and only then the registered claims.
// A token is expired from the exact instant stored in exp.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, classify(err)
	}
	if !token.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.UserID) == "" || claims.UserID != claims.Subject {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrTokenSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
}
