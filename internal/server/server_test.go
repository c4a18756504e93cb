package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/entity-auth/internal/config"
	"github.com/sakif/entity-auth/internal/model"
)

type inbox struct{ tokens []string }

func (i *inbox) NotifyReset(ctx context.Context, user *model.User, token string, expiresAt time.Time) error {
	i.tokens = append(i.tokens, token)
	return nil
}

func newTestServer(t *testing.T) (*Server, *inbox) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DBPath = ":memory:"
	cfg.JWTSecret = "integration-secret-0123456789"
	cfg.BcryptCost = 4
	cfg.SecureCookie = false
	require.NoError(t, cfg.Validate())

	box := &inbox{}
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), box)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, box
}

func do(t *testing.T, s *Server, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestNew_RejectsBadSigningKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DBPath = ":memory:"
	cfg.JWTSecret = "short"

	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	assert.Error(t, err)
}

func TestServer_AccountLifecycle(t *testing.T) {
	s, box := newTestServer(t)

	rr := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, s, http.MethodPost, "/api/register", `{"name":"Foo","email":"foo@bar.com","password":"password"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, s, http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, s, http.MethodPost, "/api/login", `{"email":"foo@bar.com","password":"password"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)

	rr = do(t, s, http.MethodGet, "/api/me", "", cookies[0])
	require.Equal(t, http.StatusOK, rr.Code)
	var me map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, "foo@bar.com", me["email"])

	rr = do(t, s, http.MethodPost, "/api/password/forgot", `{"email":"foo@bar.com"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, box.tokens, 1)

	rr = do(t, s, http.MethodPost, "/api/password/reset", `{"token":"`+box.tokens[0]+`","newPassword":"new-password"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, s, http.MethodPost, "/api/login", `{"email":"foo@bar.com","password":"password"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, s, http.MethodPost, "/api/login", `{"email":"foo@bar.com","password":"new-password"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	// The old cookie is still a valid token: tokens are stateless.
	rr = do(t, s, http.MethodPut, "/api/password", `{"currentPassword":"new-password","newPassword":"third-password"}`, cookies[0])
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, s, http.MethodPost, "/api/logout", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
