package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/entity-auth/internal/model"
)

// ResetNotifier delivers a password reset token to the account owner,
// typically by email. The token must never be returned over the API.
type ResetNotifier interface {
	NotifyReset(ctx context.Context, user *model.User, token string, expiresAt time.Time) error
}

// LogNotifier writes reset tokens to the log. It stands in for a mailer in
// development.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) NotifyReset(ctx context.Context, user *model.User, token string, expiresAt time.Time) error {
	n.Logger.InfoContext(ctx, "password reset requested",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
		slog.String("token", token),
		slog.Time("expiresAt", expiresAt),
	)
	return nil
}
