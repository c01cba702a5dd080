package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrichdash/internal/shared/testutil"
	"enrichdash/pkg/contracts/domain"
)

type fakeAPI struct {
	mu        sync.Mutex
	jobs      map[string]domain.Job
	companies map[string][]domain.Company
	created   []json.RawMessage
	deleted   []string
	requestID string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		jobs: map[string]domain.Job{
			"job-1": testutil.NewJob("job-1", 3),
		},
		companies: map[string][]domain.Company{
			"job-1": testutil.NewCompanies(3),
		},
	}
}

func (f *fakeAPI) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.requestID = r.Header.Get(RequestIDHeader)
			f.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		resp := domain.JobsResponse{}
		for _, job := range f.jobs {
			resp.Jobs = append(resp.Jobs, job)
		}
		writeJSON(w, http.StatusOK, resp)
	})
	r.Get("/api/jobs/{jobId}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		job, ok := f.jobs[chi.URLParam(r, "jobId")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
			return
		}
		writeJSON(w, http.StatusOK, domain.JobResponse{Job: job})
	})
	r.Get("/api/jobs/company-lookup/{jobId}/companies", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		jobID := chi.URLParam(r, "jobId")
		companies, ok := f.companies[jobID]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
			return
		}
		writeJSON(w, http.StatusOK, domain.CompaniesResponse{
			Success:        true,
			JobID:          jobID,
			TotalCompanies: len(companies),
			Companies:      companies,
		})
	})
	r.Post("/api/jobs/company-lookup", f.create("lookup-1"))
	r.Post("/api/jobs/process-companies", f.create("enrich-1"))
	r.Delete("/api/jobs/company-lookup/{jobId}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deleted = append(f.deleted, chi.URLParam(r, "jobId"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/api/jobs/company-lookup/{jobId}/companies/{companyId}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deleted = append(f.deleted, chi.URLParam(r, "jobId")+"/"+chi.URLParam(r, "companyId"))
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
	r.Get("/api/jobs/company/{companyId}/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="report-`+chi.URLParam(r, "companyId")+`.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.4 report"))
	})
	r.Get("/api/jobs/company-lookup/{jobId}/download", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "jobId") == "pending" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Job not finished"})
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="results-`+chi.URLParam(r, "jobId")+`.csv"`)
		_, _ = w.Write([]byte("name,domain\nAcme,acme.test\n"))
	})
	r.Get("/api/jobs/company/{companyId}/report-content", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "companyId") == "json" {
			writeJSON(w, http.StatusOK, map[string]string{"content": "<h1>Wrapped</h1>"})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Report</h1>"))
	})
	r.Get("/auth/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.AuthStatus{IsAuthenticated: true})
	})
	return r
}

func (f *fakeAPI) create(jobID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.created = append(f.created, body)
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, domain.JobCreatedResponse{JobID: jobID})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api.router())
	t.Cleanup(srv.Close)

	logger, _ := testutil.NewTestLogger(t)
	client, err := NewClient(srv.URL+"/", 5*time.Second, logger)
	require.NoError(t, err)
	return client, api
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient("/api", time.Second, nil)
	assert.Error(t, err)

	_, err = NewClient("localhost:3000", time.Second, nil)
	assert.Error(t, err)
}

func TestListJobs(t *testing.T) {
	client, api := newTestClient(t)

	jobs, err := client.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, domain.JobStatusProcessing, jobs[0].Status)
	assert.NotEmpty(t, api.requestID)
}

func TestListJobsEmpty(t *testing.T) {
	client, api := newTestClient(t)
	api.jobs = map[string]domain.Job{}

	jobs, err := client.ListJobs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestGetJobNotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.HTTPStatus())
	assert.Equal(t, "Job not found", se.Message)
}

func TestGetJobRequiresID(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetJob(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestJobDetails(t *testing.T) {
	client, _ := newTestClient(t)

	job, companies, err := client.JobDetails(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Job job-1", job.Name)
	assert.True(t, companies.Success)
	assert.Equal(t, 3, companies.TotalCompanies)
	assert.Len(t, companies.Companies, 3)
}

func TestJobDetailsPropagatesFailure(t *testing.T) {
	client, api := newTestClient(t)
	delete(api.companies, "job-1")

	_, _, err := client.JobDetails(context.Background(), "job-1")
	assert.True(t, IsNotFound(err))
}

func TestCompaniesRejectsInvalidPayload(t *testing.T) {
	client, api := newTestClient(t)
	bad := testutil.NewCompanies(1)
	bad[0].ID = ""
	api.companies["job-1"] = bad

	_, err := client.Companies(context.Background(), "job-1")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestCreateLookupJob(t *testing.T) {
	client, api := newTestClient(t)
	domainName := "acme.example"

	id, err := client.CreateLookupJob(context.Background(), domain.CreateLookupJobRequest{
		Companies: []domain.CompanyInput{{Name: "Acme", Domain: &domainName}},
		JobType:   domain.JobTypeVMSCheck,
		Name:      "March import",
	})
	require.NoError(t, err)
	assert.Equal(t, "lookup-1", id)

	require.Len(t, api.created, 1)
	assert.JSONEq(t,
		`{"companies":[{"name":"Acme","domain":"acme.example"}],"jobType":"vms_check","name":"March import"}`,
		string(api.created[0]))
}

func TestCreateLookupJobValidates(t *testing.T) {
	client, api := newTestClient(t)

	_, err := client.CreateLookupJob(context.Background(), domain.CreateLookupJobRequest{
		JobType: domain.JobTypeCompanyLookup,
		Name:    "empty",
	})
	assert.Error(t, err)
	assert.Empty(t, api.created)
}

func TestProcessCompanies(t *testing.T) {
	client, api := newTestClient(t)

	id, err := client.ProcessCompanies(context.Background(), domain.ProcessCompaniesRequest{
		CompanyIDs: []string{"c-1", "c-2"},
		Name:       EnrichmentName("Job job-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "enrich-1", id)
	assert.JSONEq(t, `{"companyIds":["c-1","c-2"],"name":"Enrich Job job-1"}`, string(api.created[0]))
}

func TestProcessCompaniesEmptySelection(t *testing.T) {
	client, api := newTestClient(t)

	_, err := client.ProcessCompanies(context.Background(), domain.ProcessCompaniesRequest{Name: "Enrich x"})
	assert.ErrorIs(t, err, ErrEmptySelection)
	assert.Empty(t, api.created)
}

func TestDeletes(t *testing.T) {
	client, api := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.DeleteJob(ctx, "job-1"))
	require.NoError(t, client.DeleteCompany(ctx, "job-1", "c-2"))
	assert.Equal(t, []string{"job-1", "job-1/c-2"}, api.deleted)

	assert.ErrorIs(t, client.DeleteCompany(ctx, "job-1", ""), ErrMissingID)
}

func TestDownloadReport(t *testing.T) {
	client, _ := newTestClient(t)

	report, err := client.DownloadReport(context.Background(), "c-1")
	require.NoError(t, err)
	defer report.Body.Close()

	body, err := io.ReadAll(report.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 report", string(body))
	assert.Equal(t, "application/pdf", report.ContentType)
	assert.Equal(t, "report-c-1.pdf", report.FileName)
}

func TestDownloadResults(t *testing.T) {
	client, _ := newTestClient(t)

	results, err := client.DownloadResults(context.Background(), "job-1")
	require.NoError(t, err)
	defer results.Body.Close()

	body, err := io.ReadAll(results.Body)
	require.NoError(t, err)
	assert.Equal(t, "name,domain\nAcme,acme.test\n", string(body))
	assert.Equal(t, "results-job-1.csv", results.FileName)

	_, err = client.DownloadResults(context.Background(), "pending")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)

	_, err = client.DownloadResults(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestReportContent(t *testing.T) {
	client, _ := newTestClient(t)

	html, err := client.ReportContent(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Report</h1>", html)

	html, err = client.ReportContent(context.Background(), "json")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Wrapped</h1>", html)
}

func TestAuthStatus(t *testing.T) {
	client, _ := newTestClient(t)

	status, err := client.AuthStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsAuthenticated)
}

func TestServerErrorBecomesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue backend down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second, nil)
	require.NoError(t, err)

	_, err = client.ListJobs(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "queue backend down", se.Message)
	assert.Contains(t, se.Error(), "GET /api/jobs")
}

func TestContextCancellation(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListJobs(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"message":"boom"}`)))
	assert.Equal(t, "bad", errorMessage([]byte(`{"error":"bad"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte("  plain text\n")))
	assert.Len(t, errorMessage([]byte(string(make([]byte, 500)))), 200)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "a.pdf", fileName(`attachment; filename="a.pdf"`))
	assert.Equal(t, "b.pdf", fileName(`attachment; filename="../../b.pdf"`))
	assert.Empty(t, fileName(""))
	assert.Empty(t, fileName("attachment"))
}
