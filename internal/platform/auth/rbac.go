package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ScopeDecode      = "hl7v2.decode"
	ScopeArchiveRead = "hl7v2.read"
)

// RequireScope rejects requests whose token lacks scope. Without a JWT
// middleware in front (auth disabled) every request passes.
func RequireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, authenticated := c.Get("auth_subject").(string); !authenticated {
				return next(c)
			}

			for _, granted := range ScopesFromContext(c.Request().Context()) {
				if matchScope(granted, scope) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("required scope: %s", scope))
		}
	}
}

// matchScope reports whether granted covers required. "*" covers everything
// and "hl7v2.*" covers every hl7v2 scope.
func matchScope(granted, required string) bool {
	if granted == required || granted == "*" {
		return true
	}
	prefix, ok := strings.CutSuffix(granted, ".*")
	return ok && strings.HasPrefix(required, prefix+".")
}
