package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	apierrors "enrichdash/internal/errors"
	"enrichdash/internal/infrastructure"
	"enrichdash/internal/middleware"
	ws "enrichdash/internal/websocket"
)

// WebSocketHandler upgrades browser connections and joins them to a job room
type WebSocketHandler struct {
	hub       *ws.Hub
	tracker   ProgressTracker
	upgrader  websocket.Upgrader
	validator *middleware.ValidationMiddleware
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewWebSocketHandler creates the handler. An empty origin list accepts any
// origin. When tracker is set, connecting to a job starts tracking it.
func NewWebSocketHandler(hub *ws.Hub, tracker ProgressTracker, allowedOrigins []string, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errHandler == nil {
		errHandler = apierrors.NewErrorHandler(logger, false)
	}
	h := &WebSocketHandler{
		hub:       hub,
		tracker:   tracker,
		validator: middleware.NewValidationMiddleware(logger, errHandler),
		errors:    errHandler,
		logger:    logger.With(slog.String("handler", "websocket")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin(allowedOrigins),
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.logger.ErrorContext(r.Context(), "WebSocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
				slog.String("origin", r.Header.Get("Origin")))
			http.Error(w, http.StatusText(status), status)
		},
	}
	return h
}

// ServeHTTP handles GET /ws?job=<id>
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.URL.Query().Get("job")
	if err := h.validator.ValidateID("job", jobID); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	if h.tracker != nil {
		if _, err := h.tracker.Track(ctx, jobID); err != nil {
			h.logger.WarnContext(ctx, "Could not start tracking for websocket client",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))
			h.errors.HandleError(w, r, apierrors.Unavailable("Progress channel", err))
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	traceID := infrastructure.GetTraceID(ctx)
	if traceID == "" {
		traceID = middleware.GetRequestID(ctx)
	}
	client := ws.ServeWS(h.hub, conn, jobID, traceID, h.logger)

	h.logger.InfoContext(ctx, "WebSocket client connected",
		slog.String("client_id", client.ID()),
		slog.String("job_id", jobID),
		slog.String("remote_addr", middleware.GetRealIP(r)))
}

func (h *WebSocketHandler) checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		h.logger.WarnContext(r.Context(), "WebSocket origin not allowed",
			slog.String("origin", origin),
			slog.Any("allowed_origins", allowed))
		return false
	}
}
