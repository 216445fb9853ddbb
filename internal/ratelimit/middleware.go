package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/commandlinecommandos/campus-marketplace/internal/logging"
)

// Middleware denies with 429 once the client's window is exhausted. The body
// is distinguishable from a credential failure and carries a retry hint.
func Middleware(g *Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := g.Profile().Name + ":" + ClientKey(c.Request())
			allowed, retryAfter := g.TryConsume(key)
			if allowed {
				return next(c)
			}

			l := logging.FromContext(c.Request().Context())
			l.Warn("rate_limit_exceeded",
				"profile", g.Profile().Name,
				"client", ClientKey(c.Request()),
				"path", c.Request().URL.Path,
			)

			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":      "Rate limit exceeded",
				"message":    "Too many requests. Please try again later.",
				"retryAfter": strconv.Itoa(seconds),
			})
		}
	}
}

// ClientKey picks the client identity the way a service behind a reverse
// proxy must: forwarded-for first, then the real-IP header, then the raw
// connection address.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, ok := strings.Cut(xff, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
