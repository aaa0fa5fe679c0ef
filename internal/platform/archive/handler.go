package archive

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7readable/pkg/pagination"
)

// Handler exposes the archive over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a new archive handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers archive endpoints on the provided route group.
//
//	GET /api/v1/hl7v2/messages?limit=&offset=  - List archived messages, newest first
func (h *Handler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/hl7v2/messages", h.ListMessages, m...)
}

// ListMessages handles GET /api/v1/hl7v2/messages.
func (h *Handler) ListMessages(c echo.Context) error {
	p := pagination.FromContext(c)

	entries, total, err := h.svc.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list archived messages",
		})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, p).WithLinks(c.Request().URL))
}
