package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// BodyLimit answers 413 when a request body is longer than maxBytes. Bodies
// are small JSON documents, so they are read up front; a missing or false
// Content-Length cannot get past the limit.
func BodyLimit(maxBytes int64) echo.MiddlewareFunc {
	tooLarge := "request body exceeds " + strconv.FormatInt(maxBytes, 10) + " bytes"

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > maxBytes {
				return errorBody(c, http.StatusRequestEntityTooLarge, tooLarge)
			}

			body, err := io.ReadAll(io.LimitReader(req.Body, maxBytes+1))
			req.Body.Close()
			if err != nil {
				return errorBody(c, http.StatusBadRequest, "failed to read request body")
			}
			if int64(len(body)) > maxBytes {
				return errorBody(c, http.StatusRequestEntityTooLarge, tooLarge)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			return next(c)
		}
	}
}
