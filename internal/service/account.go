// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// AccountService sits in the middle. It never sees an http.Request and never
// writes SQL. The auth capabilities do the cryptography; the repository runs
// their hooks before every write; this package decides which of them to call
// and in what order:
//
//	AccountHandler (HTTP) → AccountService → UserRepository (DB + hooks)
//	                                       ↘ Passwords / ResetTokens / SignedTokens
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/sakif/entity-auth/internal/apperror"
	"github.com/sakif/entity-auth/internal/auth"
	"github.com/sakif/entity-auth/internal/model"
	"github.com/sakif/entity-auth/internal/repository"
)

// errBadCredentials is deliberately vague: the caller must not learn whether
// the email exists.
var errBadCredentials = apperror.Unauthorized("invalid email or password")

// AccountService handles registration, login and password management.
//
// DEPENDENCIES (injected via NewAccountService):
//   - users      repository.UserRepository → read/write users; hashes passwords via hooks
//   - passwords  *auth.Passwords           → verify a plaintext against the stored hash
//   - resets     *auth.ResetTokens         → issue and check password reset tokens
//   - tokens     *auth.SignedTokens        → issue and decode identity tokens
//   - notifier   ResetNotifier             → deliver reset tokens out of band
//   - logger     *slog.Logger              → structured logging
type AccountService struct {
	users     repository.UserRepository
	passwords *auth.Passwords
	resets    *auth.ResetTokens
	tokens    *auth.SignedTokens
	notifier  ResetNotifier
	logger    *slog.Logger
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	users repository.UserRepository,
	passwords *auth.Passwords,
	resets *auth.ResetTokens,
	tokens *auth.SignedTokens,
	notifier ResetNotifier,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		passwords: passwords,
		resets:    resets,
		tokens:    tokens,
		notifier:  notifier,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate runs the registration rules.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Length(0, 200)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, passwordRules...),
	)
}

// Register creates a new account.
//
// The plaintext password goes straight into the model. The repository's
// before_insert hook replaces it with a bcrypt hash before the INSERT, so by
// the time Create returns the struct holds the hash and nothing else.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := invalid(in.Validate()); err != nil {
		return nil, err
	}

	user := &model.User{Name: in.Name, Email: in.Email, Password: in.Password}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to register user",
				slog.String("email", in.Email),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("registering %s: %w", in.Email, err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// LoginInput is the payload for Login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required),
	)
}

// Login checks the credentials and issues a signed token.
//
// Every way a login can fail (unknown email, wrong password, account without
// a password) returns the same ErrUnauthorized. opts are passed through to
// SignedTokens.Issue, e.g. OnIssued to set a cookie.
func (s *AccountService) Login(ctx context.Context, in LoginInput, opts ...auth.IssueOption) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := invalid(in.Validate()); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("looking up %s: %w", in.Email, err)
	}

	ok, err := s.passwords.Verify(user, in.Password)
	if err != nil {
		s.logger.Warn("stored password hash is unusable",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, errBadCredentials
	}
	if !ok {
		return nil, errBadCredentials
	}

	token, err := s.tokens.Issue(ctx, user, opts...)
	if err != nil {
		return nil, fmt.Errorf("issuing token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token}, nil
}

// Authenticate decodes a signed token and loads the user it names.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Decode(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, claims.UserID)
}

// GetUserByID returns the user for the given internal ID.
func (s *AccountService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	return user, nil
}

// ChangePasswordInput is the payload for ChangePassword.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (in ChangePasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CurrentPassword, validation.Required),
		validation.Field(&in.NewPassword, passwordRules...),
	)
}

// ChangePassword replaces the password of an authenticated user after
// re-checking the current one. Any pending reset token is cleared in the
// same write.
func (s *AccountService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := invalid(in.Validate()); err != nil {
		return err
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := s.passwords.Verify(user, in.CurrentPassword)
	if err != nil || !ok {
		return apperror.Unauthorized("current password is incorrect")
	}

	if err := s.setPassword(ctx, user, in.NewPassword); err != nil {
		return err
	}

	s.logger.Info("password changed", slog.String("userID", user.ID))
	return nil
}

// RequestPasswordReset issues a reset token for the account with this email
// and hands it to the notifier.
//
// An unknown email is not an error: the response must look the same whether
// or not the account exists, so nobody can probe for registered addresses.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return apperror.ValidationFailed("email", "email: "+err.Error())
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("looking up %s: %w", email, err)
	}

	token, err := s.resets.Generate(ctx, user)
	if err != nil {
		s.logger.Error("failed to issue reset token",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("issuing reset token for user %s: %w", user.ID, err)
	}

	expiresAt, err := s.resets.ExpiresAt(user)
	if err != nil {
		return err
	}

	if err := s.notifier.NotifyReset(ctx, user, token, expiresAt); err != nil {
		return fmt.Errorf("delivering reset token to user %s: %w", user.ID, err)
	}
	return nil
}

// ResetPasswordInput is the payload for ResetPassword.
type ResetPasswordInput struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (in ResetPasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Token, validation.Required),
		validation.Field(&in.NewPassword, passwordRules...),
	)
}

// ResetPassword sets a new password using a reset token and consumes the
// token, so it cannot be used twice.
//
// An unknown token is reported as ErrInvalidResetToken, a stale one as
// ErrResetTokenExpired.
func (s *AccountService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Token = strings.TrimSpace(in.Token)
	if err := invalid(in.Validate()); err != nil {
		return err
	}

	user, err := s.users.GetByResetToken(ctx, in.Token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &apperror.AppError{Err: apperror.ErrInvalidResetToken, Message: "invalid or expired password reset token"}
		}
		return fmt.Errorf("looking up reset token: %w", err)
	}

	if err := s.resets.Check(user, in.Token); err != nil {
		return err
	}

	if err := s.setPassword(ctx, user, in.NewPassword); err != nil {
		return err
	}

	s.logger.Info("password reset", slog.String("userID", user.ID))
	return nil
}

// setPassword patches the password (hashed by the store's before_update
// hook) and clears any pending reset token in one write.
func (s *AccountService) setPassword(ctx context.Context, user *model.User, plaintext string) error {
	changes := s.resets.Cleared()
	changes[s.passwords.Field()] = plaintext

	if err := s.users.Patch(ctx, user, changes); err != nil {
		return fmt.Errorf("updating password for user %s: %w", user.ID, err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
