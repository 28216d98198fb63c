package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-desk/internal/adapters/upstream"
	"github.com/eshaffer321/receipt-desk/internal/api/dto"
	"github.com/eshaffer321/receipt-desk/internal/application/auth"
	"github.com/eshaffer321/receipt-desk/internal/application/busy"
	"github.com/eshaffer321/receipt-desk/internal/application/receipts"
	"github.com/eshaffer321/receipt-desk/internal/domain/directory"
	"github.com/eshaffer321/receipt-desk/internal/domain/editor"
	"github.com/eshaffer321/receipt-desk/internal/domain/partners"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
)

// Base provides shared functionality for all handlers.
type Base struct {
	logger *slog.Logger
}

// NewBase creates a new base handler with the given logger.
func NewBase(logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(c *gin.Context, status int, err dto.APIError) {
	c.AbortWithStatusJSON(status, err)
}

// Fail logs err and answers with its classified status. message is shown for
// remote failures, where the raw error means nothing to staff.
func (b *Base) Fail(c *gin.Context, err error, message string) {
	if errors.Is(err, context.Canceled) {
		b.logger.Debug("request cancelled", "path", c.Request.URL.Path)
		c.Abort()
		return
	}

	status, apiErr := Classify(err, message)
	if status >= http.StatusInternalServerError {
		b.logger.Error(apiErr.Message, "path", c.Request.URL.Path, "code", apiErr.Code, "error", err)
	} else {
		b.logger.Warn(apiErr.Message, "path", c.Request.URL.Path, "code", apiErr.Code, "error", err)
	}
	b.WriteError(c, status, apiErr)
}

// Classify maps an error to a status code and error body.
func Classify(err error, message string) (int, dto.APIError) {
	if ue, ok := upstream.As(err); ok {
		apiErr := dto.NewAPIError(dto.ErrCodeUpstreamUnavailable, message)
		switch ue.Kind {
		case upstream.KindStatus:
			apiErr.Code = dto.ErrCodeUpstreamError
			apiErr.UpstreamStatus = ue.StatusCode
		case upstream.KindMalformed:
			apiErr.Code = dto.ErrCodeUpstreamMalformed
		}
		return http.StatusBadGateway, apiErr
	}

	switch {
	case errors.Is(err, busy.ErrInProgress):
		return http.StatusConflict, dto.NewAPIError(dto.ErrCodeInProgress, "This action is already in progress.")
	case errors.Is(err, editor.ErrNotEditing),
		errors.Is(err, editor.ErrNotViewing),
		errors.Is(err, receipts.ErrNoDraft):
		return http.StatusConflict, dto.NewAPIError(dto.ErrCodeInvalidState, err.Error())
	case errors.Is(err, editor.ErrUnknownField),
		errors.Is(err, editor.ErrReadOnlyField),
		errors.Is(err, editor.ErrItemIndex),
		errors.Is(err, receipts.ErrNotImage),
		errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, dto.ValidationError(err.Error())
	case errors.Is(err, partners.ErrUnknown):
		return http.StatusNotFound, dto.NotFoundError("delivery partner")
	case errors.Is(err, directory.ErrNotFound):
		return http.StatusNotFound, dto.NotFoundError("customer")
	}
	return http.StatusInternalServerError, dto.InternalError()
}

// State returns the session the session middleware resolved.
func State(c *gin.Context) session.State {
	st, _ := session.FromContext(c.Request.Context())
	return st
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(c *gin.Context, name string, defaultVal int) int {
	val := c.Query(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(c *gin.Context, name string, defaultVal bool) bool {
	val := c.Query(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}
