package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
)

const maxHeaderValueSize = 8 << 10

var scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)

// Sanitize rejects requests whose path, headers or query string carry
// traversal sequences, NUL bytes, header splitting or script markup. The
// diagnosis routes take symptom names in the query and disease slugs in the
// path, neither of which legitimately contains any of these.
func Sanitize() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if reason := inspect(c.Request()); reason != "" {
				return errorBody(c, http.StatusBadRequest, reason)
			}
			return next(c)
		}
	}
}

// inspect returns why req is rejected, or "" when it is clean.
func inspect(req *http.Request) string {
	for _, p := range []string{req.URL.Path, req.URL.RawPath} {
		lower := strings.ToLower(p)
		switch {
		case strings.Contains(p, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e"):
			return "path traversal detected"
		case hasNUL(p):
			return "null byte in path"
		}
	}
	for name, values := range req.Header {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "header too large: " + name
			}
			if strings.ContainsAny(v, "\r\n") {
				return "header injection detected: " + name
			}
		}
	}
	for key, values := range req.URL.Query() {
		for _, v := range values {
			if hasNUL(key) || hasNUL(v) {
				return "null byte in query parameter"
			}
			if scriptPattern.MatchString(key) || scriptPattern.MatchString(v) {
				return "script injection detected in query parameter"
			}
		}
	}
	return ""
}

func hasNUL(s string) bool {
	return strings.ContainsRune(s, 0) || strings.Contains(strings.ToLower(s), "%00")
}
