package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/watchlog/watchlog/pkg/errcodes"
	"github.com/watchlog/watchlog/pkg/models"
)

// CookieName is the name of the session cookie.
const CookieName = "watchlog_session"

type handler struct {
	authService *Service
}

func buildSessionResponse(user *models.User, expiresAt time.Time) SessionResponse {
	resp := SessionResponse{
		ID:    user.ID,
		Email: user.Email,
	}
	if !expiresAt.IsZero() {
		resp.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *handler) setSessionCookie(c echo.Context, token string, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) startSession(c echo.Context, user *models.User, status int) error {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return errors.WithStack(err)
	}
	h.setSessionCookie(c, token, int(h.authService.TokenExpiry().Seconds()))
	return c.JSON(status, buildSessionResponse(user, time.Now().Add(h.authService.TokenExpiry())))
}

// signup creates an account and signs the new user in.
func (h *handler) signup(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	params := SignUpPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.SignUp(ctx, params.Email, params.Password)
	if err != nil {
		return err
	}
	log.Info("user signed up", logger.Data{"user_id": user.ID})

	return h.startSession(c, user, http.StatusCreated)
}

// login handles user login.
func (h *handler) login(c echo.Context) error {
	ctx := c.Request().Context()

	params := LoginPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.Authenticate(ctx, params.Email, params.Password)
	if err != nil {
		return err
	}

	return h.startSession(c, user, http.StatusOK)
}

// logout clears the session cookie. Tokens are stateless so there is nothing
// to revoke server-side.
func (h *handler) logout(c echo.Context) error {
	h.setSessionCookie(c, "", -1)
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// session returns the current authenticated user.
func (h *handler) session(c echo.Context) error {
	user, ok := UserFromContext(c)
	if !ok {
		return errcodes.Unauthorized("Authentication required")
	}
	var expiresAt time.Time
	if claims, ok := c.Get(contextKeyClaims).(*JWTClaims); ok && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return c.JSON(http.StatusOK, buildSessionResponse(user, expiresAt))
}
