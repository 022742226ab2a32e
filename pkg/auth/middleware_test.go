package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/watchlog/watchlog/pkg/errcodes"
	"github.com/watchlog/watchlog/pkg/models"
)

func runAuthenticate(t *testing.T, m *Middleware, req *http.Request) (echo.Context, bool, error) {
	t.Helper()

	e := echo.New()
	rr := httptest.NewRecorder()
	c := e.NewContext(req, rr)

	called := false
	err := m.Authenticate(func(echo.Context) error {
		called = true
		return nil
	})(c)
	return c, called, err
}

func TestMiddlewareAuthenticate(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	svc := newTestService(db)
	m := NewMiddleware(svc)

	user, err := svc.SignUp(context.Background(), "viewer@example.com", "hunter22")
	require.NoError(t, err)
	token, err := svc.GenerateToken(user)
	require.NoError(t, err)

	t.Run("missing token", func(tt *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/entries", nil)
		_, called, err := runAuthenticate(tt, m, req)
		assert.ErrorIs(tt, err, errcodes.Unauthorized("Authentication required"))
		assert.False(tt, called)
	})

	t.Run("garbage token", func(tt *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/entries", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
		_, called, err := runAuthenticate(tt, m, req)
		assert.ErrorIs(tt, err, errcodes.Unauthorized("Invalid or expired token"))
		assert.False(tt, called)
	})

	t.Run("token signed with another secret", func(tt *testing.T) {
		other := NewService(db, "another-secret", time.Hour)
		forged, err := other.GenerateToken(user)
		require.NoError(tt, err)

		req := httptest.NewRequest(http.MethodGet, "/entries", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+forged)
		_, called, err := runAuthenticate(tt, m, req)
		require.Error(tt, err)
		assert.False(tt, called)
	})

	t.Run("expired token", func(tt *testing.T) {
		expired := NewService(db, "test-jwt-secret", time.Nanosecond)
		stale, err := expired.GenerateToken(user)
		require.NoError(tt, err)
		time.Sleep(time.Second)

		req := httptest.NewRequest(http.MethodGet, "/entries", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: stale})
		_, called, err := runAuthenticate(tt, m, req)
		require.Error(tt, err)
		assert.False(tt, called)
	})

	t.Run("deleted user", func(tt *testing.T) {
		ghost := &models.User{ID: 9999, Email: "ghost@example.com"}
		ghostToken, err := svc.GenerateToken(ghost)
		require.NoError(tt, err)

		req := httptest.NewRequest(http.MethodGet, "/entries", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: ghostToken})
		_, called, err := runAuthenticate(tt, m, req)
		assert.ErrorIs(tt, err, errcodes.Unauthorized("User not found"))
		assert.False(tt, called)
	})

	t.Run("cookie", func(tt *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/entries", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		c, called, err := runAuthenticate(tt, m, req)
		require.NoError(tt, err)
		assert.True(tt, called)

		id, ok := UserIDFromContext(c)
		require.True(tt, ok)
		assert.Equal(tt, user.ID, id)
		u, ok := UserFromContext(c)
		require.True(tt, ok)
		assert.Equal(tt, "viewer@example.com", u.Email)
	})

	t.Run("bearer header", func(tt *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/entries", nil)
		req.Header.Set(echo.HeaderAuthorization, "bearer "+token)
		_, called, err := runAuthenticate(tt, m, req)
		require.NoError(tt, err)
		assert.True(tt, called)
	})
}
