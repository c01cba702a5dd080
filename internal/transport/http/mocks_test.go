package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"

	apierrors "enrichdash/internal/errors"
	"enrichdash/internal/jobs"
	"enrichdash/internal/services"
	"enrichdash/pkg/contracts/domain"
	"enrichdash/pkg/contracts/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testErrorHandler() *apierrors.ErrorHandler {
	return apierrors.NewErrorHandler(testLogger(), false)
}

// MockJobAPI is a testify mock of the job API client
type MockJobAPI struct {
	mock.Mock
}

func (m *MockJobAPI) ListJobs(ctx context.Context) ([]domain.Job, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]domain.Job)
	return list, args.Error(1)
}

func (m *MockJobAPI) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *MockJobAPI) Companies(ctx context.Context, jobID string) (*domain.CompaniesResponse, error) {
	args := m.Called(ctx, jobID)
	resp, _ := args.Get(0).(*domain.CompaniesResponse)
	return resp, args.Error(1)
}

func (m *MockJobAPI) JobDetails(ctx context.Context, jobID string) (*domain.Job, *domain.CompaniesResponse, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*domain.Job)
	resp, _ := args.Get(1).(*domain.CompaniesResponse)
	return job, resp, args.Error(2)
}

func (m *MockJobAPI) CreateLookupJob(ctx context.Context, req domain.CreateLookupJobRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockJobAPI) ProcessCompanies(ctx context.Context, req domain.ProcessCompaniesRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockJobAPI) DeleteJob(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockJobAPI) DeleteCompany(ctx context.Context, jobID, companyID string) error {
	return m.Called(ctx, jobID, companyID).Error(0)
}

func (m *MockJobAPI) DownloadReport(ctx context.Context, companyID string) (*jobs.ReportDownload, error) {
	args := m.Called(ctx, companyID)
	d, _ := args.Get(0).(*jobs.ReportDownload)
	return d, args.Error(1)
}

func (m *MockJobAPI) DownloadResults(ctx context.Context, jobID string) (*jobs.ReportDownload, error) {
	args := m.Called(ctx, jobID)
	d, _ := args.Get(0).(*jobs.ReportDownload)
	return d, args.Error(1)
}

func (m *MockJobAPI) ReportContent(ctx context.Context, companyID string) (string, error) {
	args := m.Called(ctx, companyID)
	return args.String(0), args.Error(1)
}

func (m *MockJobAPI) AuthStatus(ctx context.Context) (*domain.AuthStatus, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*domain.AuthStatus)
	return s, args.Error(1)
}

// MockTracker is a testify mock of the progress service
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) Track(ctx context.Context, jobID string) (events.ProgressSnapshot, error) {
	args := m.Called(ctx, jobID)
	s, _ := args.Get(0).(events.ProgressSnapshot)
	return s, args.Error(1)
}

func (m *MockTracker) Snapshot(jobID string) (events.ProgressSnapshot, error) {
	args := m.Called(jobID)
	s, _ := args.Get(0).(events.ProgressSnapshot)
	return s, args.Error(1)
}

func (m *MockTracker) Untrack(jobID string) error {
	return m.Called(jobID).Error(0)
}

func (m *MockTracker) List() []services.TrackedJob {
	list, _ := m.Called().Get(0).([]services.TrackedJob)
	return list
}

// mount serves a handler's routes the way the application router does
func mount(prefix string, routes chi.Router) http.Handler {
	r := chi.NewRouter()
	r.Mount(prefix, routes)
	return r
}
