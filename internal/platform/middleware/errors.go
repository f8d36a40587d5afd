package middleware

import "github.com/labstack/echo/v4"

// errorBody writes the JSON error shape used by every API handler.
func errorBody(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"message": message})
}
