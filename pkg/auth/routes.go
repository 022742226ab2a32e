package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers all auth routes. Extra middleware, such as a rate
// limiter, is applied to the unauthenticated credential endpoints only.
func RegisterRoutes(e *echo.Echo, authService *Service, mw ...echo.MiddlewareFunc) *Middleware {
	h := &handler{
		authService: authService,
	}
	authMiddleware := NewMiddleware(authService)

	auth := e.Group("/auth")
	auth.POST("/signup", h.signup, mw...)
	auth.POST("/login", h.login, mw...)
	auth.POST("/logout", h.logout)
	auth.GET("/session", h.session, authMiddleware.Authenticate)

	return authMiddleware
}
