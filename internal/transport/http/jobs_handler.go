package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"enrichdash/internal/config"
	apierrors "enrichdash/internal/errors"
	"enrichdash/internal/exporter"
	"enrichdash/internal/importer"
	"enrichdash/internal/jobs"
	"enrichdash/internal/middleware"
	"enrichdash/internal/report"
	"enrichdash/pkg/contracts/domain"
)

const maxUploadSize = 10 << 20

// JobAPI is the subset of the job API client used by JobsHandler
type JobAPI interface {
	ListJobs(ctx context.Context) ([]domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	Companies(ctx context.Context, jobID string) (*domain.CompaniesResponse, error)
	JobDetails(ctx context.Context, jobID string) (*domain.Job, *domain.CompaniesResponse, error)
	CreateLookupJob(ctx context.Context, req domain.CreateLookupJobRequest) (string, error)
	ProcessCompanies(ctx context.Context, req domain.ProcessCompaniesRequest) (string, error)
	DeleteJob(ctx context.Context, jobID string) error
	DeleteCompany(ctx context.Context, jobID, companyID string) error
	DownloadReport(ctx context.Context, companyID string) (*jobs.ReportDownload, error)
	DownloadResults(ctx context.Context, jobID string) (*jobs.ReportDownload, error)
	ReportContent(ctx context.Context, companyID string) (string, error)
	AuthStatus(ctx context.Context) (*domain.AuthStatus, error)
}

// JobsHandler proxies the job API for the dashboard
type JobsHandler struct {
	api       JobAPI
	validator *middleware.ValidationMiddleware
	query     *middleware.QueryParamValidator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(api JobAPI, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *JobsHandler {
	if api == nil {
		panic("api cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if errHandler == nil {
		errHandler = apierrors.NewErrorHandler(logger, false)
	}

	return &JobsHandler{
		api:       api,
		validator: middleware.NewValidationMiddleware(logger, errHandler),
		query:     middleware.NewQueryParamValidator(logger, errHandler),
		errors:    errHandler,
		logger:    logger.With(slog.String("handler", "jobs")),
	}
}

// EnrichRequest starts enrichment of selected companies. When Name is empty
// and SourceJobID is set, the name defaults to "Enrich <source job name>".
type EnrichRequest struct {
	CompanyIDs  []string `json:"companyIds"`
	Name        string   `json:"name"`
	SourceJobID string   `json:"sourceJobId"`
}

// Bind implements the render.Binder interface
func (e *EnrichRequest) Bind(r *http.Request) error {
	ids := e.CompanyIDs[:0]
	for _, id := range e.CompanyIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	e.CompanyIDs = ids
	e.Name = strings.TrimSpace(e.Name)
	if len(e.CompanyIDs) == 0 {
		return jobs.ErrEmptySelection
	}
	return nil
}

// JobDetailsResponse combines a job with its companies
type JobDetailsResponse struct {
	Job            *domain.Job      `json:"job"`
	TotalCompanies int              `json:"totalCompanies"`
	Companies      []domain.Company `json:"companies"`
}

// Routes returns a chi router for the /api/jobs endpoints
func (h *JobsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListJobs)
	r.Post("/company-lookup", h.CreateLookupJob)
	r.Post("/process-companies", h.ProcessCompanies)
	r.Get("/{jobId}", h.GetJob)
	r.Get("/company-lookup/{jobId}/companies", h.ListCompanies)
	r.Get("/company-lookup/{jobId}/export", h.ExportCompanies)
	r.Get("/company-lookup/{jobId}/download", h.DownloadResults)
	r.Delete("/company-lookup/{jobId}", h.DeleteJob)
	r.Delete("/company-lookup/{jobId}/companies/{companyId}", h.DeleteCompany)
	r.Get("/company/{companyId}/report", h.DownloadReport)
	r.Get("/company/{companyId}/report-content", h.ReportContent)

	return r
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.api.ListJobs(r.Context())
	if err != nil {
		h.fail(w, r, "list jobs", err)
		return
	}
	render.JSON(w, r, domain.JobsResponse{Jobs: list})
}

// GetJob handles GET /api/jobs/{jobId}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathID(w, r, "jobId")
	if !ok {
		return
	}

	job, companies, err := h.api.JobDetails(r.Context(), jobID)
	if err != nil {
		h.fail(w, r, "get job", err)
		return
	}
	render.JSON(w, r, JobDetailsResponse{
		Job:            job,
		TotalCompanies: companies.TotalCompanies,
		Companies:      companies.Companies,
	})
}

// ListCompanies handles GET /api/jobs/company-lookup/{jobId}/companies
func (h *JobsHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathID(w, r, "jobId")
	if !ok {
		return
	}

	companies, err := h.api.Companies(r.Context(), jobID)
	if err != nil {
		h.fail(w, r, "list companies", err)
		return
	}
	render.JSON(w, r, companies)
}

// CreateLookupJob handles POST /api/jobs/company-lookup. It accepts either a
// JSON body or a multipart upload with file, name and jobType fields.
func (h *JobsHandler) CreateLookupJob(w http.ResponseWriter, r *http.Request) {
	var (
		req domain.CreateLookupJobRequest
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = h.uploadRequest(r)
	} else {
		err = h.validator.DecodeAndValidate(r, &req)
	}
	if err != nil {
		h.fail(w, r, "create lookup job", err)
		return
	}

	jobID, err := h.api.CreateLookupJob(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create lookup job", err)
		return
	}

	h.logger.InfoContext(r.Context(), "Lookup job created",
		slog.String("job_id", jobID),
		slog.String("job_type", string(req.JobType)),
		slog.Int("companies", len(req.Companies)))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, domain.JobCreatedResponse{JobID: jobID})
}

func (h *JobsHandler) uploadRequest(r *http.Request) (domain.CreateLookupJobRequest, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return domain.CreateLookupJobRequest{}, apierrors.InvalidRequestWithError(err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return domain.CreateLookupJobRequest{}, apierrors.ErrValidation("file", "a CSV or XLSX file is required")
	}
	defer file.Close()

	format, err := importer.FormatFromName(header.Filename)
	if err != nil {
		return domain.CreateLookupJobRequest{}, apierrors.ErrValidation("file", err.Error())
	}

	jobType := domain.JobType(r.FormValue("jobType"))
	if jobType == "" {
		jobType = domain.JobTypeCompanyLookup
	}
	companies, err := importer.Parse(file, format, jobType)
	if err != nil {
		return domain.CreateLookupJobRequest{}, apierrors.ErrValidation("file", err.Error())
	}

	req := importer.NewLookupJobRequest(strings.TrimSpace(r.FormValue("name")), jobType, companies)
	if err := h.validator.ValidateStruct(req); err != nil {
		return domain.CreateLookupJobRequest{}, err
	}
	return req, nil
}

// ProcessCompanies handles POST /api/jobs/process-companies
func (h *JobsHandler) ProcessCompanies(w http.ResponseWriter, r *http.Request) {
	data := &EnrichRequest{}
	if err := render.Bind(r, data); err != nil {
		if !errors.Is(err, jobs.ErrEmptySelection) {
			err = apierrors.InvalidRequestWithError(err)
		}
		h.fail(w, r, "process companies", err)
		return
	}

	name := data.Name
	if name == "" {
		if data.SourceJobID == "" {
			h.errors.HandleError(w, r, apierrors.ErrValidation("name", "name is required when sourceJobId is not set"))
			return
		}
		job, err := h.api.GetJob(r.Context(), data.SourceJobID)
		if err != nil {
			h.fail(w, r, "process companies", err)
			return
		}
		name = jobs.EnrichmentName(job.Name)
	}

	jobID, err := h.api.ProcessCompanies(r.Context(), domain.ProcessCompaniesRequest{
		CompanyIDs: data.CompanyIDs,
		Name:       name,
	})
	if err != nil {
		h.fail(w, r, "process companies", err)
		return
	}

	h.logger.InfoContext(r.Context(), "Enrichment job started",
		slog.String("job_id", jobID),
		slog.String("name", name),
		slog.Int("companies", len(data.CompanyIDs)))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, domain.JobCreatedResponse{JobID: jobID})
}

// DeleteJob handles DELETE /api/jobs/company-lookup/{jobId}
func (h *JobsHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathID(w, r, "jobId")
	if !ok {
		return
	}
	if err := h.api.DeleteJob(r.Context(), jobID); err != nil {
		h.fail(w, r, "delete job", err)
		return
	}
	h.logger.InfoContext(r.Context(), "Job deleted", slog.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCompany handles DELETE /api/jobs/company-lookup/{jobId}/companies/{companyId}
func (h *JobsHandler) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathID(w, r, "jobId")
	if !ok {
		return
	}
	companyID, ok := h.pathID(w, r, "companyId")
	if !ok {
		return
	}
	if err := h.api.DeleteCompany(r.Context(), jobID, companyID); err != nil {
		h.fail(w, r, "delete company", err)
		return
	}
	h.logger.InfoContext(r.Context(), "Company deleted",
		slog.String("job_id", jobID),
		slog.String("company_id", companyID))
	w.WriteHeader(http.StatusNoContent)
}

// DownloadReport handles GET /api/jobs/company/{companyId}/report
func (h *JobsHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.pathID(w, r, "companyId")
	if !ok {
		return
	}

	download, err := h.api.DownloadReport(r.Context(), companyID)
	if err != nil {
		h.fail(w, r, "download report", err)
		return
	}
	h.stream(w, r, download, "report-"+companyID, slog.String("company_id", companyID))
}

// DownloadResults handles GET /api/jobs/company-lookup/{jobId}/download
func (h *JobsHandler) DownloadResults(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathID(w, r, "jobId")
	if !ok {
		return
	}

	download, err := h.api.DownloadResults(r.Context(), jobID)
	if err != nil {
		h.fail(w, r, "download results", err)
		return
	}
	h.stream(w, r, download, "results-"+jobID, slog.String("job_id", jobID))
}

// stream relays a download as an attachment, closing its body
func (h *JobsHandler) stream(w http.ResponseWriter, r *http.Request, download *jobs.ReportDownload, fallbackName string, subject slog.Attr) {
	defer download.Body.Close()

	contentType := download.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := download.FileName
	if name == "" {
		name = fallbackName
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if download.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(download.Size, 10))
	}

	n, err := io.Copy(w, download.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Download stream interrupted",
			subject,
			slog.Int64("bytes", n),
			slog.String("error", err.Error()))
	}
}

// ReportContent handles GET /api/jobs/company/{companyId}/report-content.
// format=text renders the report as plain text.
func (h *JobsHandler) ReportContent(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.pathID(w, r, "companyId")
	if !ok {
		return
	}
	format, ok := h.query.ValidateEnum(w, r, "format", []string{"html", "text"}, "html")
	if !ok {
		return
	}

	content, err := h.api.ReportContent(r.Context(), companyID)
	if err != nil {
		h.fail(w, r, "report content", err)
		return
	}

	if format == "text" {
		doc, err := report.Render(content)
		if err != nil {
			h.fail(w, r, "render report", err)
			return
		}
		render.PlainText(w, r, doc.String())
		return
	}
	render.HTML(w, r, content)
}

// ExportCompanies handles GET /api/jobs/company-lookup/{jobId}/export?format=csv|xlsx
func (h *JobsHandler) ExportCompanies(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.pathID(w, r, "jobId")
	if !ok {
		return
	}
	value, ok := h.query.ValidateEnum(w, r, "format", []string{string(exporter.FormatCSV), string(exporter.FormatXLSX)}, string(exporter.FormatCSV))
	if !ok {
		return
	}
	format := exporter.Format(value)

	companies, err := h.api.Companies(r.Context(), jobID)
	if err != nil {
		h.fail(w, r, "export companies", err)
		return
	}

	name := fmt.Sprintf("companies_%s_%s.%s", config.SafeFileName(jobID), time.Now().Format("20060102"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	switch format {
	case exporter.FormatXLSX:
		f, err := exporter.BuildWorkbook(companies.Companies)
		if err != nil {
			h.fail(w, r, "export companies", err)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = f.Write(w)
		h.logExport(r, jobID, format, len(companies.Companies), err)
	default:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = exporter.Encode(w, exporter.WriteOptions{
			Headers:   exporter.CompanyHeaders,
			Records:   exporter.CompanyRecords(companies.Companies),
			BOMPrefix: true,
		})
		h.logExport(r, jobID, format, len(companies.Companies), err)
	}
}

func (h *JobsHandler) logExport(r *http.Request, jobID string, format exporter.Format, rows int, err error) {
	if err != nil {
		h.logger.WarnContext(r.Context(), "Company export interrupted",
			slog.String("job_id", jobID),
			slog.String("format", string(format)),
			slog.String("error", err.Error()))
		return
	}
	h.logger.InfoContext(r.Context(), "Companies exported",
		slog.String("job_id", jobID),
		slog.String("format", string(format)),
		slog.Int("rows", rows))
}

// AuthStatus handles GET /auth/status
func (h *JobsHandler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.api.AuthStatus(r.Context())
	if err != nil {
		h.fail(w, r, "auth status", err)
		return
	}
	render.JSON(w, r, status)
}

func (h *JobsHandler) pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := chi.URLParam(r, name)
	if err := h.validator.ValidateID(name, value); err != nil {
		h.errors.HandleError(w, r, err)
		return "", false
	}
	return value, true
}

// fail logs a failed proxy call and renders it. Job API replies keep their
// client error status; transport failures become a bad gateway.
func (h *JobsHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	h.logger.WarnContext(r.Context(), "Jobs request failed",
		slog.String("action", action),
		slog.String("error", err.Error()))

	var (
		apiErr    *apierrors.APIError
		statusErr *jobs.StatusError
	)
	switch {
	case errors.As(err, &apiErr), errors.As(err, &statusErr):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, jobs.ErrEmptySelection):
		err = apierrors.ErrEmptySelection
	case errors.Is(err, jobs.ErrMissingID):
		err = apierrors.ErrMissingParameter
	case errors.Is(err, importer.ErrNoCompanies), errors.Is(err, importer.ErrUnsupportedFormat):
		err = apierrors.ErrValidation("file", err.Error())
	default:
		err = apierrors.UpstreamError(err)
	}
	h.errors.HandleError(w, r, err)
}
