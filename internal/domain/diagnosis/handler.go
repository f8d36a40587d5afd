package diagnosis

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"

	"github.com/ddx/ddx/internal/platform/auth"
	"github.com/ddx/ddx/pkg/pagination"
)

// DiagnoseRequest is the body of POST /api/v1/diagnose. Exactly one of
// Mentions or Text must be set.
type DiagnoseRequest struct {
	Mentions []string `json:"mentions"`
	Text     string   `json:"text"`
}

// Handler provides REST endpoints for diagnosis.
type Handler struct {
	svc *Service
}

// NewHandler creates a new diagnosis handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers diagnosis routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician))
	read.POST("/diagnose", h.Diagnose)
	read.GET("/symptoms", h.SearchSymptoms)
	read.GET("/diseases/:slug", h.GetDisease)
	read.GET("/kb/stats", h.Stats)

	admin := api.Group("/kb", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/reload", h.Reload)
}

// Diagnose handles POST /api/v1/diagnose
func (h *Handler) Diagnose(c echo.Context) error {
	var req DiagnoseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Text = cleanText(req.Text)
	hasText := req.Text != ""
	if hasText == (req.Mentions != nil) {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of 'mentions' or 'text' is required")
	}

	ctx := c.Request().Context()
	var (
		out *Outcome
		err error
	)
	if hasText {
		out, err = h.svc.DiagnoseText(ctx, req.Text)
	} else {
		out, err = h.svc.DiagnoseMentions(ctx, req.Mentions)
	}
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, out.Report())
}

// cleanText turns control characters in pasted notes into spaces so they
// neither hide words from the extractor nor reach the logs.
func cleanText(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s))
}

// SearchSymptoms handles GET /api/v1/symptoms?q=...
func (h *Handler) SearchSymptoms(c echo.Context) error {
	q := c.QueryParam("q")
	matches, err := h.svc.SearchSymptoms(q)
	if err != nil {
		return serviceError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Window(len(matches))
	resp := pagination.NewResponse(matches[start:end], len(matches), pg.Limit, pg.Offset)
	var extra []string
	if q != "" {
		extra = append(extra, "q="+url.QueryEscape(q))
	}
	resp.Links = pg.Links(c.Request().URL.Path, len(matches), extra...)
	return c.JSON(http.StatusOK, resp)
}

// GetDisease handles GET /api/v1/diseases/:slug
func (h *Handler) GetDisease(c echo.Context) error {
	key, err := url.PathUnescape(c.Param("slug"))
	if err != nil || strings.TrimSpace(key) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid disease identifier")
	}
	detail, err := h.svc.LookupDisease(key)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

// Stats handles GET /api/v1/kb/stats
func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats()
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// Reload handles POST /api/v1/kb/reload
func (h *Handler) Reload(c echo.Context) error {
	if _, err := h.svc.Reload(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	st, err := h.svc.Stats()
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownDisease):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoExtractor):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotLoaded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
