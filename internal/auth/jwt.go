// Package auth provides the authentication capabilities attached to a user
// record: password hashing (password.go), password reset tokens (reset.go)
// and signed identity tokens (this file).
//
// WHY JWT?
// JWT (JSON Web Token) is stateless — the server doesn't need to store session
// data. The identity claims and the expiry live inside the signed token, and
// the signature ensures nobody can tamper with them without the key.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"id":"cv37rs3pp9olc6atsptg","email":"foo@bar.com","exp":1709296245}
//	- Signature: HMAC-SHA256 (or RSA-SHA256) over header+"."+payload
//
// "exp" is seconds since the Unix epoch, as RFC 7519 requires.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sakif/entity-auth/internal/apperror"
	"github.com/sakif/entity-auth/internal/entity"
)

const (
	defaultTokenTTL = 7 * 24 * time.Hour

	// minHMACKeyLen guards against trivially brute-forceable secrets.
	minHMACKeyLen = 16
)

// TokenConfig configures a SignedTokens capability.
type TokenConfig struct {
	// SigningKey is mandatory. A PEM-encoded RSA private key selects RS256;
	// anything else is used as an HMAC secret for HS256.
	SigningKey []byte
	// ExpiresIn is the token lifetime. Default: 7 days.
	ExpiresIn time.Duration
	// Issuer, when set, is written to "iss" and required on decode.
	Issuer string
	// IDField and EmailField name the identity columns. Default: "id", "email".
	IDField    string
	EmailField string
}

func (c *TokenConfig) normalize() {
	if c.ExpiresIn == 0 {
		c.ExpiresIn = defaultTokenTTL
	}
	if c.IDField == "" {
		c.IDField = "id"
	}
	if c.EmailField == "" {
		c.EmailField = "email"
	}
}

// Claims is the signed token payload.
//
// The identity lives in "id" and "email"; the embedded RegisteredClaims
// carries exp, iat, iss, sub and jti.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// SignedTokens issues and verifies signed identity tokens for a record.
type SignedTokens struct {
	cfg       TokenConfig
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	clock     Clock
}

// TokenOption customises a SignedTokens capability.
type TokenOption func(*SignedTokens)

// WithTokenClock replaces the time source used for iat/exp and for expiry
// checks on decode.
func WithTokenClock(c Clock) TokenOption {
	return func(s *SignedTokens) { s.clock = c }
}

// NewSignedTokens fails with ErrMissingSigningKey when no key is configured.
// There is no implicit default secret.
func NewSignedTokens(cfg TokenConfig, opts ...TokenOption) (*SignedTokens, error) {
	cfg.normalize()

	if len(cfg.SigningKey) == 0 {
		return nil, &apperror.AppError{
			Err:     apperror.ErrMissingSigningKey,
			Message: "auth: a signing key must be specified to issue tokens",
			Field:   "signing_key",
		}
	}
	if cfg.ExpiresIn < 0 {
		return nil, apperror.ValidationFailed("expires_in", "auth: token lifetime must be positive")
	}

	s := &SignedTokens{cfg: cfg, clock: realClock{}}
	if err := s.loadKey(cfg.SigningKey); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SignedTokens) loadKey(key []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(key), []byte("-----BEGIN")) {
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(key)
		if err != nil {
			return apperror.ValidationFailed("signing_key", fmt.Sprintf("auth: parsing RSA signing key: %v", err))
		}
		s.method = jwt.SigningMethodRS256
		s.signKey = priv
		s.verifyKey = &priv.PublicKey
		return nil
	}

	if len(key) < minHMACKeyLen {
		return apperror.ValidationFailed("signing_key", "auth: HMAC signing key must be at least 16 bytes")
	}
	s.method = jwt.SigningMethodHS256
	s.signKey = key
	s.verifyKey = key
	return nil
}

// Algorithm returns the JWT "alg" used for signing.
func (s *SignedTokens) Algorithm() string { return s.method.Alg() }

// Hooks implements entity.Capability. Tokens are issued on demand only.
func (s *SignedTokens) Hooks() []entity.Hook { return nil }

type issueOptions struct {
	ttl      time.Duration
	onIssued func(token string, expiresAt time.Time)
}

// IssueOption adjusts a single Issue call.
type IssueOption func(*issueOptions)

// WithTTL overrides the configured lifetime for one token.
func WithTTL(d time.Duration) IssueOption {
	return func(o *issueOptions) { o.ttl = d }
}

// OnIssued registers a callback that receives the token after signing,
// e.g. to set a cookie in the web layer.
func OnIssued(fn func(token string, expiresAt time.Time)) IssueOption {
	return func(o *issueOptions) { o.onIssued = fn }
}

// Issue signs a token carrying the record's id and email.
//
// A missing id or email fails with ErrMissingIdentity before anything is
// signed.
func (s *SignedTokens) Issue(ctx context.Context, rec entity.Record, opts ...IssueOption) (string, error) {
	id := rec.Field(s.cfg.IDField)
	if id == "" {
		return "", apperror.MissingIdentity(s.cfg.IDField)
	}
	email := rec.Field(s.cfg.EmailField)
	if email == "" {
		return "", apperror.MissingIdentity(s.cfg.EmailField)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	o := issueOptions{ttl: s.cfg.ExpiresIn}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		return "", apperror.ValidationFailed("expires_in", "auth: token lifetime must be positive")
	}

	now := s.clock.Now()
	expiresAt := now.Add(o.ttl)

	c := Claims{
		UserID: id,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, c).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	if o.onIssued != nil {
		o.onIssued(signed, c.ExpiresAt.Time)
	}

	return signed, nil
}

// Decode verifies the signature and expiry of tokenStr and returns its claims.
//
// Failures are reported as exactly one of ErrTokenExpired, ErrSignatureInvalid
// or ErrMalformedToken, each still wrapping the jwt library error.
//
// ALGORITHM CONFUSION ATTACK:
// Only the configured algorithm is accepted; a token signed with "none" or
// with HS256 against an RSA public key is rejected.
func (s *SignedTokens) Decode(ctx context.Context, tokenStr string) (*Claims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.cfg.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.verifyKey, nil
	}, parserOptions...)
	if err != nil {
		return nil, apperror.Token(classify(err), err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperror.Token(apperror.ErrMalformedToken, errors.New("auth: invalid token claims"))
	}
	if c.UserID == "" || c.Email == "" {
		return nil, apperror.Token(apperror.ErrMalformedToken, errors.New("auth: token has no identity"))
	}

	return c, nil
}

// classify maps a jwt parse error to its kind. Claims that parse but fail a
// policy check (wrong issuer, missing exp) are reported as malformed: the
// token is well signed but not one this service would have issued.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperror.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperror.ErrSignatureInvalid
	default:
		return apperror.ErrMalformedToken
	}
}
