package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/entity-auth/internal/auth"
	"github.com/sakif/entity-auth/internal/model"
	"github.com/sakif/entity-auth/internal/service"
)

// AccountHandler exposes the account operations over HTTP.
//
// Handlers only translate: JSON in → service call → JSON out. Every rule
// (validation, credential checks, token lifetimes) lives in the service.
type AccountHandler struct {
	accounts     *service.AccountService
	logger       *slog.Logger
	secureCookie bool
}

// NewAccountHandler creates an AccountHandler. secureCookie sets the Secure
// flag on the token cookie; turn it off only for plain-HTTP development.
func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger, secureCookie bool) *AccountHandler {
	return &AccountHandler{
		accounts:     accounts,
		logger:       logger,
		secureCookie: secureCookie,
	}
}

// LoginResponse is returned by POST /api/login. The token is also set as an
// HttpOnly cookie; the body copy is for non-browser clients that send it as
// a bearer header.
type LoginResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// HandleRegister handles POST /api/register.
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeBadRequest(w)
		return
	}

	user, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin handles POST /api/login.
//
// The cookie is set from the OnIssued callback, so it is written only when a
// token was actually signed and carries that token's exact expiry.
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeBadRequest(w)
		return
	}

	var expiresAt time.Time
	res, err := h.accounts.Login(r.Context(), in, auth.OnIssued(func(token string, exp time.Time) {
		expiresAt = exp
		h.setTokenCookie(w, token, exp)
	}))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{User: res.User, Token: res.Token, ExpiresAt: expiresAt})
}

// HandleLogout handles POST /api/logout. Tokens are stateless, so logging
// out just deletes the cookie.
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe handles GET /api/me. RequireAuth has already verified the token.
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	user, err := h.accounts.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Warn("HandleMe: user lookup failed", slog.String("userID", userID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleChangePassword handles PUT /api/password.
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	var in service.ChangePasswordInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeBadRequest(w)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), userID, in); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleForgotPassword handles POST /api/password/forgot.
//
// The response is the same whether or not the email is registered.
func (h *AccountHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in forgotPasswordRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeBadRequest(w)
		return
	}

	if err := h.accounts.RequestPasswordReset(r.Context(), in.Email); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "if an account exists for that email, a reset link has been sent",
	})
}

// HandleResetPassword handles POST /api/password/reset.
func (h *AccountHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in service.ResetPasswordInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeBadRequest(w)
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), in); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *AccountHandler) setTokenCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
