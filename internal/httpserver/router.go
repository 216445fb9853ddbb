package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/commandlinecommandos/campus-marketplace/internal/middleware"
	"github.com/commandlinecommandos/campus-marketplace/internal/models"
	"github.com/commandlinecommandos/campus-marketplace/internal/ratelimit"
)

type Deps struct {
	AuthHandler *AuthHTTP
	Auth        *middleware.BearerAuth
	AuthGate    *ratelimit.Gate
	GeneralGate *ratelimit.Gate
}

// Register wires the auth surface. The general rate profile covers the whole
// /auth group; the tight auth profile additionally guards the credential
// endpoints. Role requirements are declared per route.
func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	g := e.Group("/auth", ratelimit.Middleware(d.GeneralGate))

	authGateMw := ratelimit.Middleware(d.AuthGate)
	g.POST("/register", d.AuthHandler.Register, authGateMw)
	g.POST("/login", d.AuthHandler.Login, authGateMw)
	g.POST("/refresh", d.AuthHandler.Refresh, authGateMw)
	g.POST("/logout", d.AuthHandler.Logout)
	g.GET("/validate", d.AuthHandler.Validate, d.Auth.ValidateAuth)

	private := g.Group("", d.Auth.RequireAuth)
	private.POST("/logout-all", d.AuthHandler.LogoutAll)
	private.GET("/me", d.AuthHandler.Me)

	admin := private.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/users/:username/logout-all", d.AuthHandler.ForceLogoutUser)
	admin.POST("/tokens/prune", d.AuthHandler.PruneTokens)
}
