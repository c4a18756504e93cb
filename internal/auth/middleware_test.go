package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protected(t *testing.T, tokens *SignedTokens) http.Handler {
	t.Helper()
	return RequireAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(id))
	}))
}

func TestRequireAuth(t *testing.T) {
	clock := &fixedClock{t: time.Now()}
	tokens := newTestSignedTokens(t, clock)
	token, err := tokens.Issue(context.Background(), testUser())
	require.NoError(t, err)

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		rr := httptest.NewRecorder()

		protected(t, tokens).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "cv37rs3pp9olc6atsptg", rr.Body.String())
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		protected(t, tokens).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		protected(t, tokens).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"unauthorized"`)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rr := httptest.NewRecorder()

		protected(t, tokens).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"unauthorized"`)
	})

	t.Run("expired token", func(t *testing.T) {
		expiring := newTestSignedTokens(t, &fixedClock{t: clock.t.Add(-3 * time.Hour)})
		old, err := expiring.Issue(context.Background(), testUser())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: old})
		rr := httptest.NewRecorder()

		protected(t, tokens).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"token_expired"`)
	})
}

func TestUserIDFromContext_Anonymous(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)
}
