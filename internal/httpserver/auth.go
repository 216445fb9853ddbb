package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/commandlinecommandos/campus-marketplace/internal/logging"
	"github.com/commandlinecommandos/campus-marketplace/internal/middleware"
	"github.com/commandlinecommandos/campus-marketplace/internal/repo"
	"github.com/commandlinecommandos/campus-marketplace/internal/service"
	"github.com/commandlinecommandos/campus-marketplace/internal/tokens"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username, email and password are required")
	}

	res, err := h.Svc.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse(res))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password, req.DeviceInfo)
	if err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse(res))
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse(res))
}

// Logout always answers 200: revocation is idempotent and a retried logout
// must not surface an error to the client.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	var req refreshRequest
	if err := c.Bind(&req); err == nil && req.RefreshToken != "" {
		if err := h.Svc.Logout(ctx, req.RefreshToken); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) LogoutAll(c echo.Context) error {
	ctx := c.Request().Context()
	username, _ := c.Get(middleware.CtxUsername).(string)

	if err := h.Svc.LogoutAllDevices(ctx, username); err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out from all devices"})
}

// ForceLogoutUser is the admin hook for de-authorizing another account, e.g.
// on suspension.
func (h *AuthHTTP) ForceLogoutUser(c echo.Context) error {
	ctx := c.Request().Context()
	username := c.Param("username")

	if err := h.Svc.LogoutAllDevices(ctx, username); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user logged out from all devices"})
}

// PruneTokens removes expired ledger records; exposed for admin tooling in
// addition to the background loop.
func (h *AuthHTTP) PruneTokens(c echo.Context) error {
	ctx := c.Request().Context()

	pruned, err := h.Svc.PruneExpiredTokens(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"pruned": pruned})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()
	username, _ := c.Get(middleware.CtxUsername).(string)

	user, err := h.Svc.GetCurrentUser(ctx, username)
	if err != nil {
		return authError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"userId":   user.ID,
		"username": user.Username,
		"email":    user.Email,
		"roles":    user.RoleNames(),
		"active":   user.Active,
	})
}

func (h *AuthHTTP) Validate(c echo.Context) error {
	username, _ := c.Get(middleware.CtxUsername).(string)
	return c.JSON(http.StatusOK, echo.Map{
		"valid":    true,
		"username": username,
	})
}

func sessionResponse(res *service.LoginResult) echo.Map {
	return echo.Map{
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
		"tokenType":    res.TokenType,
		"expiresIn":    res.ExpiresIn,
		"roles":        res.Roles,
		"username":     res.Username,
		"userId":       res.UserID,
	}
}

// authError maps the error taxonomy onto transport codes: conflicts to 409,
// credential and token failures to 401, everything else to 500.
func authError(err error) error {
	switch {
	case errors.Is(err, repo.ErrUserAlreadyExist), errors.Is(err, repo.ErrEmailAlreadyExist):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountInactive),
		errors.Is(err, service.ErrRefreshExpired),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, repo.ErrTokenNotFound),
		errors.Is(err, repo.ErrTokenRevoked),
		errors.Is(err, tokens.ErrInvalidSignature),
		errors.Is(err, tokens.ErrExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
