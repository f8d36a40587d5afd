package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/health":           true,
	"/health/db":        true,
	"/api/openapi.json": true,
	"/api/docs":         true,
}

// AuthSkipper matches requests on a public route. Pass it as the Skipper on
// JWTConfig or to DevAuthMiddleware.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
