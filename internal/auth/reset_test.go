package auth

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sakif/entity-auth/internal/apperror"
	"github.com/sakif/entity-auth/internal/entity"
)

// fixedClock always returns the same instant.
type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

// fakePatcher records every patch and optionally fails.
type fakePatcher struct {
	patches []entity.Fields
	err     error
}

func (f *fakePatcher) Patch(ctx context.Context, rec entity.Record, changes entity.Fields) error {
	if f.err != nil {
		return f.err
	}
	copied := entity.Fields{}
	for k, v := range changes {
		copied[k] = v
	}
	f.patches = append(f.patches, copied)
	return changes.Apply(rec)
}

type failingReader struct{ err error }

func (r failingReader) Read(p []byte) (int, error) { return 0, r.err }

var testNow = time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.UTC)

func newTestResetTokens(t *testing.T, p entity.Patcher, opts ...ResetOption) *ResetTokens {
	t.Helper()
	opts = append([]ResetOption{WithResetClock(&fixedClock{t: testNow})}, opts...)
	r, err := NewResetTokens(ResetConfig{}, p, opts...)
	if err != nil {
		t.Fatalf("NewResetTokens() error = %v", err)
	}
	return r
}

func TestNewResetTokens_Config(t *testing.T) {
	if _, err := NewResetTokens(ResetConfig{}, nil); err == nil {
		t.Error("NewResetTokens() should require a patcher")
	}

	_, err := NewResetTokens(ResetConfig{TokenField: "tok", ExpiryField: "tok"}, &fakePatcher{})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("same token/expiry field: error = %v, want ErrValidation", err)
	}

	_, err = NewResetTokens(ResetConfig{ExpiresIn: -time.Minute}, &fakePatcher{})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("negative ExpiresIn: error = %v, want ErrValidation", err)
	}
}

func TestGenerate_SetsTokenAndExpiry(t *testing.T) {
	p := &fakePatcher{}
	r := newTestResetTokens(t, p)
	rec := entity.Fields{"id": "u1", "password": "$hash"}

	token, err := r.Generate(context.Background(), rec)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(token) < 40 {
		t.Errorf("token length = %d, want >= 40", len(token))
	}
	if _, err := hex.DecodeString(token); err != nil {
		t.Errorf("token %q is not hex: %v", token, err)
	}
	if rec["reset_password_token"] != token {
		t.Errorf("record token = %q, want %q", rec["reset_password_token"], token)
	}
	if want := "2024-03-01T13:30:45.123Z"; rec["reset_password_exp"] != want {
		t.Errorf("record expiry = %q, want %q", rec["reset_password_exp"], want)
	}
}

func TestGenerate_PatchesExactlyTheTwoFields(t *testing.T) {
	p := &fakePatcher{}
	r := newTestResetTokens(t, p)

	if _, err := r.Generate(context.Background(), entity.Fields{"id": "u1", "name": "Foo"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(p.patches) != 1 {
		t.Fatalf("patch count = %d, want 1", len(p.patches))
	}
	names := p.patches[0].Names()
	if len(names) != 2 || names[0] != "reset_password_exp" || names[1] != "reset_password_token" {
		t.Errorf("patched fields = %v", names)
	}
}

func TestGenerateWithDuration_CustomExpiry(t *testing.T) {
	r := newTestResetTokens(t, &fakePatcher{})
	rec := entity.Fields{"id": "u1"}

	if _, err := r.GenerateWithDuration(context.Background(), rec, 7200*time.Second); err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	got, err := r.ExpiresAt(rec)
	if err != nil {
		t.Fatalf("ExpiresAt() error = %v", err)
	}
	if want := testNow.Add(2 * time.Hour); !got.Equal(want) {
		t.Errorf("expiry = %v, want %v", got, want)
	}
}

func TestGenerateWithDuration_RejectsNonPositive(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Minute} {
		p := &fakePatcher{}
		r := newTestResetTokens(t, p)
		rec := entity.Fields{"id": "u1"}

		_, err := r.GenerateWithDuration(context.Background(), rec, d)
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("GenerateWithDuration(%v) error = %v, want ErrValidation", d, err)
		}
		if len(p.patches) != 0 || rec.Field("reset_password_token") != "" {
			t.Errorf("GenerateWithDuration(%v) wrote a token", d)
		}
	}
}

func TestGenerate_SecondCallOverwrites(t *testing.T) {
	r := newTestResetTokens(t, &fakePatcher{})
	rec := entity.Fields{"id": "u1"}

	first, err := r.Generate(context.Background(), rec)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := r.Generate(context.Background(), rec)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if first == second {
		t.Error("two calls produced the same token")
	}
	if rec["reset_password_token"] != second {
		t.Errorf("record token = %q, want latest %q", rec["reset_password_token"], second)
	}
}

func TestGenerate_CustomFields(t *testing.T) {
	r, err := NewResetTokens(ResetConfig{TokenField: "tok", ExpiryField: "tok_exp", ExpiresIn: time.Minute},
		&fakePatcher{}, WithResetClock(&fixedClock{t: testNow}))
	if err != nil {
		t.Fatalf("NewResetTokens() error = %v", err)
	}
	rec := entity.Fields{}

	if _, err := r.Generate(context.Background(), rec); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if rec["tok"] == "" || rec["tok_exp"] != "2024-03-01T12:31:45.123Z" {
		t.Errorf("record = %v", rec)
	}
}

func TestGenerate_RandomnessFailure(t *testing.T) {
	p := &fakePatcher{}
	entropy := errors.New("entropy source unavailable")
	r := newTestResetTokens(t, p, WithRandom(failingReader{err: entropy}))
	rec := entity.Fields{"id": "u1"}

	_, err := r.Generate(context.Background(), rec)
	if !errors.Is(err, apperror.ErrRandomness) || !errors.Is(err, entropy) {
		t.Fatalf("Generate() error = %v, want ErrRandomness wrapping the source error", err)
	}
	if len(p.patches) != 0 || rec.Has("reset_password_token") {
		t.Error("a failed generation must not touch the record")
	}
}

func TestGenerate_ShortRandomRead(t *testing.T) {
	r := newTestResetTokens(t, &fakePatcher{}, WithRandom(bytes.NewReader(make([]byte, 10))))

	_, err := r.Generate(context.Background(), entity.Fields{})
	if !errors.Is(err, apperror.ErrRandomness) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Generate() error = %v, want ErrRandomness", err)
	}
}

func TestGenerate_PatchFailurePropagates(t *testing.T) {
	dbErr := apperror.Persistence("patching user", errors.New("database is locked"))
	r := newTestResetTokens(t, &fakePatcher{err: dbErr})

	_, err := r.Generate(context.Background(), entity.Fields{"id": "u1"})
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Fatalf("Generate() error = %v, want ErrPersistence", err)
	}
}

func TestCheck(t *testing.T) {
	clock := &fixedClock{t: testNow}
	r, err := NewResetTokens(ResetConfig{ExpiresIn: time.Hour}, &fakePatcher{}, WithResetClock(clock))
	if err != nil {
		t.Fatalf("NewResetTokens() error = %v", err)
	}
	rec := entity.Fields{"id": "u1"}
	token, err := r.Generate(context.Background(), rec)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if err := r.Check(rec, token); err != nil {
		t.Errorf("Check(live token) error = %v", err)
	}
	if err := r.Check(rec, "deadbeef"); !errors.Is(err, apperror.ErrInvalidResetToken) {
		t.Errorf("Check(wrong token) error = %v, want ErrInvalidResetToken", err)
	}
	if err := r.Check(rec, ""); !errors.Is(err, apperror.ErrInvalidResetToken) {
		t.Errorf("Check(empty) error = %v, want ErrInvalidResetToken", err)
	}

	clock.t = testNow.Add(time.Hour)
	if err := r.Check(rec, token); !errors.Is(err, apperror.ErrResetTokenExpired) {
		t.Errorf("Check(after expiry) error = %v, want ErrResetTokenExpired", err)
	}

	if err := r.Check(r.Cleared(), token); !errors.Is(err, apperror.ErrInvalidResetToken) {
		t.Errorf("Check(consumed) error = %v, want ErrInvalidResetToken", err)
	}
}
