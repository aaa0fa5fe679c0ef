package hl7v2

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Archiver persists a decoded message. Failures are logged and never fail
// the decode request.
type Archiver interface {
	Archive(ctx context.Context, raw string, res Result) error
}

// Observer is notified of every decoded message.
type Observer interface {
	ObserveReport(rep Report)
}

// Handler provides HTTP endpoints for HL7v2 message decoding.
type Handler struct {
	decoder  *Decoder
	archiver Archiver
	observer Observer
	logger   zerolog.Logger
}

// NewHandler creates a new HL7v2 handler. A nil decoder uses the built-in registry.
func NewHandler(decoder *Decoder, logger zerolog.Logger) *Handler {
	if decoder == nil {
		decoder = NewDecoder()
	}
	return &Handler{decoder: decoder, logger: logger}
}

// WithArchiver stores every decoded message through a.
func (h *Handler) WithArchiver(a Archiver) *Handler {
	h.archiver = a
	return h
}

// WithObserver reports every decode to o.
func (h *Handler) WithObserver(o Observer) *Handler {
	h.observer = o
	return h
}

// RegisterRoutes registers HL7v2 endpoints on the provided route group with
// optional route middleware.
//
//	POST /api/v1/hl7v2/decode                   - Decode HL7v2 message to keyed JSON
//	POST /api/v1/hl7v2/decode?diagnostics=true  - Same, wrapped with diagnostics
func (h *Handler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.POST("/hl7v2/decode", h.DecodeMessage, m...)
}

// DecodeMessage handles POST /api/v1/hl7v2/decode.
// It reads raw HL7v2 from the request body and returns the decoded Result.
func (h *Handler) DecodeMessage(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}

	if len(body) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "request body is empty",
		})
	}

	withDiagnostics, _ := strconv.ParseBool(c.QueryParam("diagnostics"))

	raw := string(body)
	rep := h.decoder.DecodeReport(raw)
	if h.observer != nil {
		h.observer.ObserveReport(rep)
	}

	if h.archiver != nil {
		if err := h.archiver.Archive(c.Request().Context(), raw, rep.Result); err != nil {
			rid, _ := c.Get("request_id").(string)
			h.logger.Error().Err(err).Str("request_id", rid).Msg("failed to archive decoded message")
		}
	}

	if withDiagnostics {
		return c.JSON(http.StatusOK, rep)
	}
	return c.JSON(http.StatusOK, rep.Result)
}
