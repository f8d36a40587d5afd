package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// grants maps a held role to every role it satisfies.
var grants = map[string][]string{
	RoleAdmin:     {RoleAdmin, RoleClinician},
	RoleClinician: {RoleClinician},
}

// HasRole reports whether any of held satisfies want.
func HasRole(held []string, want string) bool {
	for _, r := range held {
		for _, g := range grants[r] {
			if g == want {
				return true
			}
		}
	}
	return false
}

// RequireRole rejects callers whose roles do not satisfy role with 403.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasRole(RolesFromContext(c.Request().Context()), role) {
				return echo.NewHTTPError(http.StatusForbidden, "requires role "+role)
			}
			return next(c)
		}
	}
}
