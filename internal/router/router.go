package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/davudsafarov/testtrack/internal/handler"
	"github.com/davudsafarov/testtrack/internal/middleware"
)

// RegisterRoutes wires the full HTTP surface of the auth service.
//
// The credential endpoints (register, login, refresh) are public but sit
// behind the distributed rate limiter. Logout and me require a valid
// Bearer access token: logout takes the refresh token in the body, and
// its idempotence applies only to that body value, not to the access
// token gate.
func RegisterRoutes(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	g := e.Group("/auth")

	public := g.Group("")
	if limiter != nil {
		public.Use(limiter)
	}
	public.POST("/register", a.Register)
	public.POST("/login", a.Login)
	public.POST("/refresh", a.Refresh)

	protected := g.Group("", middleware.JWTAuth(jwtSecret))
	protected.POST("/logout", a.Logout)
	protected.GET("/me", a.Me)
}
