// Password hashing.
//
// WHY BCRYPT?
// bcrypt is a password hashing function specifically designed to be slow.
// It generates a random salt per call, embeds the salt and cost in its output,
// and compares in constant time.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 rounds → 2^12 iterations)
//	 version
//
// Passwords attaches to an entity through two lifecycle hooks. Before an
// insert the password field is always run through GenerateHash; before an
// update only when the record being written carries the field. A value that
// is already a hash is left alone (or rejected, in strict mode), so re-saving
// a loaded record never double-hashes it.

package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/entity-auth/internal/apperror"
	"github.com/sakif/entity-auth/internal/entity"
)

// defaultCost is the bcrypt work factor.
//
// COST TUNING RULE OF THUMB:
// Set cost so that hashing takes ~200–300ms on your production hardware.
const defaultCost = 12

// maxPasswordBytes is where bcrypt stops reading input.
const maxPasswordBytes = 72

// PasswordConfig configures a Passwords capability. It is copied at
// construction and never changes afterwards.
type PasswordConfig struct {
	// Field is the column holding the password. Default: "password".
	Field string
	// Cost is the bcrypt work factor. Default: 12.
	Cost int
	// Strict turns an attempt to hash an existing hash into ErrRehashAttempt
	// instead of a pass-through.
	Strict bool
}

func (c *PasswordConfig) normalize() {
	if c.Field == "" {
		c.Field = "password"
	}
	if c.Cost == 0 {
		c.Cost = defaultCost
	}
}

func (c PasswordConfig) validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Field, validation.Required),
		validation.Field(&c.Cost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
	)
}

// Passwords hashes and verifies the password field of a record.
type Passwords struct {
	cfg PasswordConfig
}

// NewPasswords validates cfg and returns the capability.
func NewPasswords(cfg PasswordConfig) (*Passwords, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, apperror.ValidationFailed("password config", fmt.Sprintf("auth: invalid password config: %v", err))
	}
	return &Passwords{cfg: cfg}, nil
}

// NewPasswordsForTest creates a Passwords capability with bcrypt cost 4
// (the minimum allowed). Use it in tests in other packages to avoid the
// ~250ms overhead of cost 12 per hash.
//
// Do NOT use in production — cost 4 is far too weak.
func NewPasswordsForTest(strict bool) *Passwords {
	return &Passwords{cfg: PasswordConfig{Field: "password", Cost: bcrypt.MinCost, Strict: strict}}
}

// Field returns the configured password column.
func (p *Passwords) Field() string { return p.cfg.Field }

// Hooks implements entity.Capability.
func (p *Passwords) Hooks() []entity.Hook {
	return []entity.Hook{
		{Name: "hash-password", Event: entity.BeforeInsert, Fn: p.beforeInsert},
		{Name: "hash-password", Event: entity.BeforeUpdate, Fn: p.beforeUpdate},
	}
}

// beforeInsert does not require a password; presence is a schema concern.
func (p *Passwords) beforeInsert(ctx context.Context, rec entity.Record) error {
	return p.hashField(ctx, rec)
}

// beforeUpdate leaves the stored hash untouched unless the record being
// written carries a password.
func (p *Passwords) beforeUpdate(ctx context.Context, rec entity.Record) error {
	if rec.Field(p.cfg.Field) == "" {
		return nil
	}
	return p.hashField(ctx, rec)
}

func (p *Passwords) hashField(ctx context.Context, rec entity.Record) error {
	current := rec.Field(p.cfg.Field)
	hashed, err := p.GenerateHash(ctx, current)
	if err != nil {
		return err
	}
	if hashed == current {
		return nil
	}
	return rec.SetField(p.cfg.Field, hashed)
}

// GenerateHash returns the bcrypt hash of candidate.
//
//   - "" → "" (nothing to hash, the field is left alone)
//   - an existing hash → returned unchanged, or ErrRehashAttempt when strict
//   - anything else → a freshly salted hash
//
// Returns an error if the plaintext is longer than 72 bytes (a bcrypt limit).
func (p *Passwords) GenerateHash(ctx context.Context, candidate string) (string, error) {
	if candidate == "" {
		return "", nil
	}

	if IsHash(candidate) {
		if p.cfg.Strict {
			return "", apperror.RehashAttempt(p.cfg.Field)
		}
		return candidate, nil
	}

	if len(candidate) > maxPasswordBytes {
		return "", apperror.ValidationFailed(p.cfg.Field, "auth: password must be 72 bytes or fewer")
	}

	return p.hash(ctx, candidate)
}

// hash runs bcrypt on its own goroutine so a cancelled ctx stops the wait.
// The hash computation itself is not interrupted.
func (p *Passwords) hash(ctx context.Context, plaintext string) (string, error) {
	type result struct {
		hash []byte
		err  error
	}

	done := make(chan result, 1)
	go func() {
		h, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cfg.Cost)
		done <- result{hash: h, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("auth: hashing password: %w", r.err)
		}
		return string(r.hash), nil
	}
}

// Verify compares plaintext with the hash stored on rec.
//
// A mismatch is (false, nil). An error is returned only when the comparison
// itself fails, e.g. the stored value is not a valid bcrypt hash.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword compares in constant time.
func (p *Passwords) Verify(rec entity.Record, plaintext string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(rec.Field(p.cfg.Field)), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return true, nil
}

var (
	hashVersions = map[string]bool{"2a": true, "2b": true, "2y": true}
	digitsOnly   = regexp.MustCompile(`^\d+$`)
)

// IsHash reports whether s is already in bcrypt's modular crypt format:
// four '$'-separated segments, an empty first segment, a known version tag,
// a numeric cost and a 53-character salt+digest.
//
//	$2a$12$K2CtDP7zSGOKgjXjxD9SYey9mSZ9Udio9C95K6wCKZewSP9oBWyPO
//
// Anything else is treated as plaintext.
func IsHash(s string) bool {
	parts := strings.Split(s, "$")
	return len(parts) == 4 &&
		parts[0] == "" &&
		hashVersions[parts[1]] &&
		digitsOnly.MatchString(parts[2]) &&
		len(parts[3]) == 53
}
