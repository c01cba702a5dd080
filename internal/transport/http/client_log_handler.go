package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apierrors "enrichdash/internal/errors"
	"enrichdash/internal/middleware"
)

// ClientLogHandler forwards browser log entries into the server log
type ClientLogHandler struct {
	validator *middleware.ValidationMiddleware
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewClientLogHandler creates a new client log handler
func NewClientLogHandler(errHandler *apierrors.ErrorHandler, logger *slog.Logger) *ClientLogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errHandler == nil {
		errHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &ClientLogHandler{
		validator: middleware.NewValidationMiddleware(logger, errHandler),
		errors:    errHandler,
		logger:    logger.With(slog.String("handler", "client_log")),
	}
}

// LogRequest is a log entry sent by the dashboard page
type LogRequest struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message" validate:"required,max=2000"`
	JobID   string                 `json:"job_id,omitempty"`
	Source  string                 `json:"source,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Handle handles POST /api/client-log
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	attrs := []slog.Attr{
		slog.String("client_source", req.Source),
		slog.String("remote_addr", middleware.GetRealIP(r)),
	}
	if req.JobID != "" {
		attrs = append(attrs, slog.String("job_id", req.JobID))
	}
	if req.Data != nil {
		attrs = append(attrs, slog.Any("data", req.Data))
	}

	h.logger.LogAttrs(r.Context(), clientLevel(req.Level), req.Message, attrs...)

	render.JSON(w, r, map[string]interface{}{
		"success": true,
	})
}

// clientLevel maps a browser level name to a slog level, defaulting to info
func clientLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return slog.LevelInfo
	}
	return l
}
