package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// ETagConfig controls conditional GET handling for knowledge base lookups.
type ETagConfig struct {
	// MaxAge is how long a client may reuse a response without revalidating.
	MaxAge time.Duration
	// Exclude lists paths answered without an ETag, such as live counters.
	Exclude []string
}

// ETag tags successful GET and HEAD responses with a hash of their body and
// answers a matching If-None-Match with 304. Tagged responses replace the
// no-store default of SecurityHeaders with "private, max-age=N" and vary on
// Authorization, since lookups are per caller but stable between reloads.
func ETag(cfg ETagConfig) echo.MiddlewareFunc {
	excluded := make(map[string]bool, len(cfg.Exclude))
	for _, p := range cfg.Exclude {
		excluded[p] = true
	}
	cacheControl := "private, max-age=" + strconv.Itoa(int(cfg.MaxAge/time.Second))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if (req.Method != http.MethodGet && req.Method != http.MethodHead) || excluded[req.URL.Path] {
				return next(c)
			}

			res := c.Response()
			orig := res.Writer
			buf := &bufferedWriter{ResponseWriter: orig, status: http.StatusOK}
			res.Writer = buf
			err := next(c)
			res.Writer = orig
			if err != nil {
				return err
			}

			if buf.status < 300 {
				sum := sha256.Sum256(buf.body.Bytes())
				tag := `W/"` + hex.EncodeToString(sum[:16]) + `"`
				h := res.Header()
				h.Set("ETag", tag)
				h.Set("Cache-Control", cacheControl)
				h.Set("Vary", "Authorization")
				if etagMatch(req.Header.Get("If-None-Match"), tag) {
					res.Status = http.StatusNotModified
					orig.WriteHeader(http.StatusNotModified)
					return nil
				}
			}
			orig.WriteHeader(buf.status)
			_, err = orig.Write(buf.body.Bytes())
			return err
		}
	}
}

// bufferedWriter holds the status and body back until the ETag is known.
type bufferedWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *bufferedWriter) WriteHeader(code int) { w.status = code }

func (w *bufferedWriter) Write(b []byte) (int, error) { return w.body.Write(b) }

// etagMatch applies the weak comparison of If-None-Match, including "*".
func etagMatch(header, tag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}
