package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "enrichdash/internal/errors"
	"enrichdash/internal/middleware"
	"enrichdash/internal/services"
	"enrichdash/pkg/contracts/events"
)

// ProgressTracker follows the progress of jobs on the push channel
type ProgressTracker interface {
	Track(ctx context.Context, jobID string) (events.ProgressSnapshot, error)
	Snapshot(jobID string) (events.ProgressSnapshot, error)
	Untrack(jobID string) error
	List() []services.TrackedJob
}

// ProgressHandler exposes reconciled job progress
type ProgressHandler struct {
	tracker   ProgressTracker
	validator *middleware.ValidationMiddleware
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(tracker ProgressTracker, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *ProgressHandler {
	if tracker == nil {
		panic("tracker cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if errHandler == nil {
		errHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &ProgressHandler{
		tracker:   tracker,
		validator: middleware.NewValidationMiddleware(logger, errHandler),
		errors:    errHandler,
		logger:    logger.With(slog.String("handler", "progress")),
	}
}

// TrackedJobsResponse lists the tracked jobs
type TrackedJobsResponse struct {
	Jobs []services.TrackedJob `json:"jobs"`
}

// Routes returns a chi router for the /api/progress endpoints
func (h *ProgressHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/{jobId}", h.Track)
	r.Get("/{jobId}", h.Snapshot)
	r.Delete("/{jobId}", h.Untrack)
	return r
}

// List handles GET /api/progress
func (h *ProgressHandler) List(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, TrackedJobsResponse{Jobs: h.tracker.List()})
}

// Track handles POST /api/progress/{jobId}
func (h *ProgressHandler) Track(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.tracker.Track(r.Context(), jobID)
	if err != nil {
		h.fail(w, r, jobID, err)
		return
	}
	render.JSON(w, r, snapshot)
}

// Snapshot handles GET /api/progress/{jobId}
func (h *ProgressHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.tracker.Snapshot(jobID)
	if err != nil {
		h.fail(w, r, jobID, err)
		return
	}
	render.JSON(w, r, snapshot)
}

// Untrack handles DELETE /api/progress/{jobId}
func (h *ProgressHandler) Untrack(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	if err := h.tracker.Untrack(jobID); err != nil && errors.Is(err, services.ErrJobNotTracked) {
		h.fail(w, r, jobID, err)
		return
	} else if err != nil {
		h.logger.WarnContext(r.Context(), "Untrack finished with error",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProgressHandler) jobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.validator.ValidateID("jobId", jobID); err != nil {
		h.errors.HandleError(w, r, err)
		return "", false
	}
	return jobID, true
}

func (h *ProgressHandler) fail(w http.ResponseWriter, r *http.Request, jobID string, err error) {
	switch {
	case errors.Is(err, services.ErrJobNotTracked):
		err = apierrors.ErrNotTracked
	case errors.Is(err, services.ErrInvalidInput):
		err = apierrors.ErrValidation("jobId", err.Error())
	case errors.Is(err, services.ErrChannelUnavailable):
		h.logger.ErrorContext(r.Context(), "Progress channel unavailable",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		err = apierrors.Unavailable("Progress channel", err)
	}
	h.errors.HandleError(w, r, err)
}
