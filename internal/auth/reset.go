// Password reset tokens.
//
// A reset token is 20 random bytes, hex-encoded, stored next to its expiry
// instant on the entity itself. Both fields are written with a partial
// update so unrelated, concurrently edited columns are never clobbered.
//
// Issuing a new token overwrites the previous one; only the latest is valid.
// Consuming a token (clearing it once the password has been reset) is left
// to the caller.

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/entity-auth/internal/apperror"
	"github.com/sakif/entity-auth/internal/entity"
)

const (
	resetTokenBytes = 20

	// ResetExpiryLayout is ISO-8601 in UTC with millisecond precision.
	ResetExpiryLayout = "2006-01-02T15:04:05.000Z"
)

// ResetConfig configures a ResetTokens capability.
type ResetConfig struct {
	// TokenField is the column holding the token. Default: "reset_password_token".
	TokenField string
	// ExpiryField is the column holding the expiry. Default: "reset_password_exp".
	ExpiryField string
	// ExpiresIn is the default token lifetime. Default: 1h.
	ExpiresIn time.Duration
}

func (c *ResetConfig) normalize() {
	if c.TokenField == "" {
		c.TokenField = "reset_password_token"
	}
	if c.ExpiryField == "" {
		c.ExpiryField = "reset_password_exp"
	}
	if c.ExpiresIn == 0 {
		c.ExpiresIn = time.Hour
	}
}

func (c ResetConfig) validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TokenField, validation.Required),
		validation.Field(&c.ExpiryField, validation.Required, validation.By(func(value interface{}) error {
			if value == c.TokenField {
				return fmt.Errorf("must differ from the token field")
			}
			return nil
		})),
		validation.Field(&c.ExpiresIn, validation.Min(time.Second)),
	)
}

// ResetTokens issues and checks password reset tokens.
type ResetTokens struct {
	cfg     ResetConfig
	patcher entity.Patcher
	clock   Clock
	random  io.Reader
}

// ResetOption customises a ResetTokens capability.
type ResetOption func(*ResetTokens)

// WithResetClock replaces the time source.
func WithResetClock(c Clock) ResetOption {
	return func(r *ResetTokens) { r.clock = c }
}

// WithRandom replaces the entropy source (crypto/rand by default).
func WithRandom(src io.Reader) ResetOption {
	return func(r *ResetTokens) { r.random = src }
}

// NewResetTokens validates cfg. The patcher persists the two token fields.
func NewResetTokens(cfg ResetConfig, patcher entity.Patcher, opts ...ResetOption) (*ResetTokens, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, apperror.ValidationFailed("reset config", fmt.Sprintf("auth: invalid reset config: %v", err))
	}
	if patcher == nil {
		return nil, fmt.Errorf("auth: reset tokens need a patcher")
	}

	r := &ResetTokens{
		cfg:     cfg,
		patcher: patcher,
		clock:   realClock{},
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Hooks implements entity.Capability. Reset tokens act only on demand.
func (r *ResetTokens) Hooks() []entity.Hook { return nil }

// Generate issues a token valid for the configured duration.
func (r *ResetTokens) Generate(ctx context.Context, rec entity.Record) (string, error) {
	return r.GenerateWithDuration(ctx, rec, r.cfg.ExpiresIn)
}

// GenerateWithDuration issues a token valid for d, sets it and its expiry
// on rec and persists exactly those two fields.
func (r *ResetTokens) GenerateWithDuration(ctx context.Context, rec entity.Record, d time.Duration) (string, error) {
	if d <= 0 {
		return "", apperror.ValidationFailed("expires_in", "auth: reset token lifetime must be positive")
	}
	buf := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(r.random, buf); err != nil {
		return "", apperror.Randomness(err)
	}

	token := hex.EncodeToString(buf)
	expiry := r.clock.Now().Add(d).UTC().Format(ResetExpiryLayout)

	changes := entity.Fields{
		r.cfg.TokenField:  token,
		r.cfg.ExpiryField: expiry,
	}
	if err := changes.Apply(rec); err != nil {
		return "", err
	}

	if err := r.patcher.Patch(ctx, rec, changes); err != nil {
		return "", fmt.Errorf("auth: persisting reset token: %w", err)
	}

	return token, nil
}

// ExpiresAt parses the expiry stored on rec.
func (r *ResetTokens) ExpiresAt(rec entity.Record) (time.Time, error) {
	raw := rec.Field(r.cfg.ExpiryField)
	if raw == "" {
		return time.Time{}, apperror.ValidationFailed(r.cfg.ExpiryField, "auth: no reset token expiry")
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, apperror.ValidationFailed(r.cfg.ExpiryField, fmt.Sprintf("auth: parsing reset token expiry: %v", err))
	}
	return t, nil
}

// Check reports whether token is the live reset token on rec. It does not
// consume the token.
func (r *ResetTokens) Check(rec entity.Record, token string) error {
	stored := rec.Field(r.cfg.TokenField)
	if stored == "" || token == "" ||
		subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return &apperror.AppError{Err: apperror.ErrInvalidResetToken, Message: "invalid or expired password reset token"}
	}

	exp, err := r.ExpiresAt(rec)
	if err != nil {
		return err
	}
	if !r.clock.Now().Before(exp) {
		return &apperror.AppError{Err: apperror.ErrResetTokenExpired, Message: "password reset token has expired"}
	}
	return nil
}

// Cleared returns the change set that consumes a reset token.
func (r *ResetTokens) Cleared() entity.Fields {
	return entity.Fields{
		r.cfg.TokenField:  "",
		r.cfg.ExpiryField: "",
	}
}
