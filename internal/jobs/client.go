package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"enrichdash/internal/infrastructure"
	"enrichdash/pkg/contracts/domain"
)

const (
	// RequestIDHeader correlates dashboard requests with job API logs
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 4 << 10
)

// Client talks to the job API
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	validate *validator.Validate
	logger   *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the job API rooted at baseURL.
// Outbound requests are traced through an otelhttp transport.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse job api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("job api url %q is not absolute", baseURL)
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	c := &Client{
		baseURL: u,
		http: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "jobapi " + r.Method + " " + r.URL.Path
				})),
		},
		validate: newValidator(),
		logger:   logger.With(slog.String("component", "jobs.client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// BaseURL returns the job API root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ListJobs returns every job known to the API
func (c *Client) ListJobs(ctx context.Context) ([]domain.Job, error) {
	var resp domain.JobsResponse
	if err := c.getJSON(ctx, "/api/jobs", &resp); err != nil {
		return nil, err
	}
	if resp.Jobs == nil {
		resp.Jobs = []domain.Job{}
	}
	return resp.Jobs, nil
}

// GetJob returns one job
func (c *Client) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("get job: %w", ErrMissingID)
	}
	var resp domain.JobResponse
	if err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(jobID), &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Companies returns the companies of a lookup job
func (c *Client) Companies(ctx context.Context, jobID string) (*domain.CompaniesResponse, error) {
	if jobID == "" {
		return nil, fmt.Errorf("list companies: %w", ErrMissingID)
	}
	var resp domain.CompaniesResponse
	p := "/api/jobs/company-lookup/" + url.PathEscape(jobID) + "/companies"
	if err := c.getJSON(ctx, p, &resp); err != nil {
		return nil, err
	}
	if resp.Companies == nil {
		resp.Companies = []domain.Company{}
	}
	return &resp, nil
}

// JobDetails fetches a job and its companies concurrently
func (c *Client) JobDetails(ctx context.Context, jobID string) (*domain.Job, *domain.CompaniesResponse, error) {
	var (
		job       *domain.Job
		companies *domain.CompaniesResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		job, err = c.GetJob(gctx, jobID)
		return err
	})
	g.Go(func() error {
		var err error
		companies, err = c.Companies(gctx, jobID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return job, companies, nil
}

// CreateLookupJob submits a lookup job and returns its id
func (c *Client) CreateLookupJob(ctx context.Context, req domain.CreateLookupJobRequest) (string, error) {
	if err := c.validate.Struct(req); err != nil {
		return "", fmt.Errorf("create lookup job: %w", err)
	}
	var resp domain.JobCreatedResponse
	if err := c.postJSON(ctx, "/api/jobs/company-lookup", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// ProcessCompanies starts enrichment of the selected companies and returns the new job id
func (c *Client) ProcessCompanies(ctx context.Context, req domain.ProcessCompaniesRequest) (string, error) {
	if len(req.CompanyIDs) == 0 {
		return "", ErrEmptySelection
	}
	if err := c.validate.Struct(req); err != nil {
		return "", fmt.Errorf("process companies: %w", err)
	}
	var resp domain.JobCreatedResponse
	if err := c.postJSON(ctx, "/api/jobs/process-companies", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// EnrichmentName is the default name of an enrichment started from a job
func EnrichmentName(jobName string) string {
	return "Enrich " + jobName
}

// DeleteJob removes a lookup job
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("delete job: %w", ErrMissingID)
	}
	return c.delete(ctx, "/api/jobs/company-lookup/"+url.PathEscape(jobID))
}

// DeleteCompany removes one company from a lookup job
func (c *Client) DeleteCompany(ctx context.Context, jobID, companyID string) error {
	if jobID == "" || companyID == "" {
		return fmt.Errorf("delete company: %w", ErrMissingID)
	}
	return c.delete(ctx, "/api/jobs/company-lookup/"+url.PathEscape(jobID)+"/companies/"+url.PathEscape(companyID))
}

// ReportDownload is an open report or results body. Callers must close Body.
type ReportDownload struct {
	Body        io.ReadCloser
	ContentType string
	FileName    string
	Size        int64
}

// DownloadReport opens the report of a company
func (c *Client) DownloadReport(ctx context.Context, companyID string) (*ReportDownload, error) {
	if companyID == "" {
		return nil, fmt.Errorf("download report: %w", ErrMissingID)
	}
	return c.download(ctx, "/api/jobs/company/"+url.PathEscape(companyID)+"/report")
}

// DownloadResults opens the results file of a finished lookup job
func (c *Client) DownloadResults(ctx context.Context, jobID string) (*ReportDownload, error) {
	if jobID == "" {
		return nil, fmt.Errorf("download results: %w", ErrMissingID)
	}
	return c.download(ctx, "/api/jobs/company-lookup/"+url.PathEscape(jobID)+"/download")
}

func (c *Client) download(ctx context.Context, p string) (*ReportDownload, error) {
	resp, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, err
	}
	return &ReportDownload{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		FileName:    fileName(resp.Header.Get("Content-Disposition")),
		Size:        resp.ContentLength,
	}, nil
}

// ReportContent returns the inline HTML of a company report. A JSON reply
// carrying the markup in a content or html member is unwrapped.
func (c *Client) ReportContent(ctx context.Context, companyID string) (string, error) {
	if companyID == "" {
		return "", fmt.Errorf("report content: %w", ErrMissingID)
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/jobs/company/"+url.PathEscape(companyID)+"/report-content", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read report content: %w", err)
	}

	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "application/json" {
		var wrapped struct {
			Content string `json:"content"`
			HTML    string `json:"html"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return "", fmt.Errorf("%w: report content: %v", ErrInvalidResponse, err)
		}
		if wrapped.Content != "" {
			return wrapped.Content, nil
		}
		return wrapped.HTML, nil
	}
	return string(body), nil
}

// AuthStatus reports whether the dashboard session is authenticated
func (c *Client) AuthStatus(ctx context.Context) (*domain.AuthStatus, error) {
	var status domain.AuthStatus
	if err := c.getJSON(ctx, "/auth/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) getJSON(ctx context.Context, p string, dst interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp, p, dst)
}

func (c *Client) postJSON(ctx context.Context, p string, body, dst interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", p, err)
	}
	resp, err := c.do(ctx, http.MethodPost, p, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp, p, dst)
}

func (c *Client) delete(ctx context.Context, p string) error {
	resp, err := c.do(ctx, http.MethodDelete, p, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) decode(resp *http.Response, p string, dst interface{}) error {
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, p, err)
	}
	if err := c.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, p, err)
	}
	return nil
}

// do sends a request and returns the response of a 2xx reply. Other replies are
// drained and returned as *StatusError.
func (c *Client) do(ctx context.Context, method, p string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+p, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, p, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	reqID := infrastructure.GetTraceID(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Job API request failed",
			slog.String("method", method),
			slog.String("path", p),
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("job api %s %s: %w", method, p, err)
	}

	c.logger.DebugContext(ctx, "Job API request",
		slog.String("method", method),
		slog.String("path", p),
		slog.String("request_id", reqID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:     method,
			Path:       p,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
	}
	return resp, nil
}

// fileName returns the filename parameter of a Content-Disposition header
func fileName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if name == "" {
		return ""
	}
	return path.Base(name)
}
