// Package router maps URLs to handlers and attaches the middleware each
// group needs.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hyrox-registration/internal/handler"
	"github.com/iliyamo/hyrox-registration/internal/middleware"
	"github.com/iliyamo/hyrox-registration/internal/utils"
)

// RegisterRoutes exposes the health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterPublic exposes the browse endpoints.  cache wraps only these
// reads; nothing on the write path is ever cached.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", cache)
	g.GET("/event-dates", p.EventDates)
	g.GET("/slots", p.ListSlots)
	g.GET("/categories", p.ListCategories)
}

// RegisterBooking exposes the registration form submission behind the
// rate limiter.
func RegisterBooking(e *echo.Echo, r *handler.RegistrationHandler, limiter echo.MiddlewareFunc) {
	e.POST("/v1/slots/:id/registrations", r.Create, limiter)
}

// RegisterAdmin exposes the organiser login and the protected listing and
// export.  Login shares the limiter with booking so the password cannot be
// brute forced.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.POST("/v1/admin/login", a.Login, limiter)

	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(utils.RoleAdmin))
	g.GET("/registrations", a.List)
	g.GET("/registrations/export", a.Export)
}
