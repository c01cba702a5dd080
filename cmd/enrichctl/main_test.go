package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrichdash/internal/progress"
	"enrichdash/internal/shared/testutil"
	"enrichdash/pkg/contracts"
	"enrichdash/pkg/contracts/domain"
	"enrichdash/pkg/contracts/events"
)

// jobAPI is an in-memory job API with a push channel
type jobAPI struct {
	*httptest.Server

	mu      sync.Mutex
	created *domain.CreateLookupJobRequest
	process *domain.ProcessCompaniesRequest
	deleted []string

	// frames sent to a channel client after it joins a room
	onJoin []events.Frame
	// frames sent after it subscribes to a lookup job
	onSubscribe []events.Frame
	subscribed  []string
}

func newJobAPI(t *testing.T) *jobAPI {
	t.Helper()
	api := &jobAPI{}
	upgrader := websocket.Upgrader{}

	r := chi.NewRouter()
	r.Get("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.JobsResponse{Jobs: []domain.Job{testutil.NewJob("job-1", 2)}})
	})
	r.Get("/api/jobs/{jobId}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.JobResponse{Job: testutil.NewJob(chi.URLParam(r, "jobId"), 2)})
	})
	r.Get("/api/jobs/company-lookup/{jobId}/companies", func(w http.ResponseWriter, r *http.Request) {
		companies := append(testutil.NewCompanies(1), testutil.CompletedCompany("c-2", true))
		writeJSON(w, http.StatusOK, domain.CompaniesResponse{
			Success:        true,
			JobID:          chi.URLParam(r, "jobId"),
			TotalCompanies: len(companies),
			Companies:      companies,
		})
	})
	r.Post("/api/jobs/company-lookup", func(w http.ResponseWriter, r *http.Request) {
		var req domain.CreateLookupJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		api.mu.Lock()
		api.created = &req
		api.mu.Unlock()
		writeJSON(w, http.StatusCreated, domain.JobCreatedResponse{JobID: "job-new"})
	})
	r.Post("/api/jobs/process-companies", func(w http.ResponseWriter, r *http.Request) {
		var req domain.ProcessCompaniesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		api.mu.Lock()
		api.process = &req
		api.mu.Unlock()
		writeJSON(w, http.StatusCreated, domain.JobCreatedResponse{JobID: "job-enrich"})
	})
	r.Delete("/api/jobs/company-lookup/*", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.deleted = append(api.deleted, r.URL.Path)
		api.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/jobs/company/{companyId}/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="acme.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.4 report"))
	})
	r.Get("/api/jobs/company/{companyId}/report-content", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Acme</title></head><body><h1>Summary</h1><p>Uses a VMS</p></body></html>`))
	})
	r.Get("/api/jobs/company-lookup/{jobId}/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
		_, _ = w.Write([]byte("name,domain\nAcme,acme.example\n"))
	})
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var f events.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			var replies []events.Frame
			switch f.Event {
			case events.EventJoin:
				replies = api.onJoin
			case events.EventSubscribeToJob:
				var jobID string
				_ = json.Unmarshal(f.Data, &jobID)
				api.mu.Lock()
				api.subscribed = append(api.subscribed, jobID)
				api.mu.Unlock()
				replies = api.onSubscribe
			}
			for _, out := range replies {
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			}
		}
	})

	api.Server = httptest.NewServer(r)
	t.Cleanup(api.Close)
	return api
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// runCLI runs one command line against api with a temporary data directory
func runCLI(t *testing.T, api *jobAPI, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"-api", api.URL, "-data", t.TempDir()}, args...)
	code := run(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitUsage, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Commands:")

	stderr.Reset()
	assert.Equal(t, exitUsage, run(context.Background(), []string{"bogus"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "bogus"`)

	assert.Equal(t, exitOK, run(context.Background(), []string{"-h"}, &stdout, &stderr))

	assert.Equal(t, exitOK, run(context.Background(), []string{"version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), contracts.Version)
}

func TestRun_MissingArguments(t *testing.T) {
	api := newJobAPI(t)

	for _, args := range [][]string{
		{"companies"},
		{"watch"},
		{"delete"},
		{"delete", "a", "b", "c"},
		{"report"},
		{"export", "-format", "pdf", "job-1"},
		{"enrich", "-all"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, _, _ := runCLI(t, api, args...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestRun_Jobs(t *testing.T) {
	api := newJobAPI(t)

	code, out, _ := runCLI(t, api, "jobs")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "Job job-1")
	assert.Contains(t, out, "Company Lookup")
	assert.Contains(t, out, "Processing")
	assert.Contains(t, out, "0/2")

	code, out, _ = runCLI(t, api, "jobs", "-json")
	require.Equal(t, exitOK, code)
	var resp domain.JobsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "job-1", resp.Jobs[0].ID)
}

func TestRun_JobAPIUnreachable(t *testing.T) {
	api := newJobAPI(t)
	api.Close()

	code, _, stderr := runCLI(t, api, "jobs")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "Error:")
}

func TestRun_Companies(t *testing.T) {
	api := newJobAPI(t)

	code, out, _ := runCLI(t, api, "companies", "job-1")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Company 1")
	assert.Contains(t, out, "company1.example")
	assert.Contains(t, out, "Unknown")
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "2 companies")
}

func TestRun_Create(t *testing.T) {
	api := newJobAPI(t)
	file := filepath.Join(t.TempDir(), "prospects.csv")
	require.NoError(t, os.WriteFile(file, []byte("name\nAcme\nGlobex\n"), 0644))

	code, out, stderr := runCLI(t, api, "create", file)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "Created job job-new with 2 companies")

	api.mu.Lock()
	defer api.mu.Unlock()
	require.NotNil(t, api.created)
	assert.Equal(t, "prospects", api.created.Name)
	assert.Equal(t, domain.JobTypeCompanyLookup, api.created.JobType)
	require.Len(t, api.created.Companies, 2)
	assert.Equal(t, "Acme", api.created.Companies[0].Name)
	assert.Nil(t, api.created.Companies[0].Domain)
}

func TestRun_CreateWait(t *testing.T) {
	api := newJobAPI(t)
	api.onSubscribe = []events.Frame{
		lookupFrame(t, events.EventJobProgress, map[string]float64{"progress": 40}),
		lookupFrame(t, events.EventJobProgress, map[string]float64{"progress": 100}),
		lookupFrame(t, events.EventJobCompleted, nil),
	}
	file := filepath.Join(t.TempDir(), "prospects.csv")
	require.NoError(t, os.WriteFile(file, []byte("name\nAcme\n"), 0644))
	dest := filepath.Join(t.TempDir(), "results.csv")

	code, out, stderr := runCLI(t, api, "create", "-wait", "-timeout", "5s", "-out", dest, file)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "Created job job-new with 1 companies")
	assert.Contains(t, out, "Job job-new: 100%")
	assert.Contains(t, out, "Saved results to "+dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "name,domain\nAcme,acme.example\n", string(data))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"job-new"}, api.subscribed)
}

func TestRun_CreateWaitFailed(t *testing.T) {
	api := newJobAPI(t)
	api.onSubscribe = []events.Frame{
		lookupFrame(t, events.EventJobFailed, map[string]string{"error": "no companies resolved"}),
	}
	file := filepath.Join(t.TempDir(), "prospects.csv")
	require.NoError(t, os.WriteFile(file, []byte("name\nAcme\n"), 0644))
	dest := filepath.Join(t.TempDir(), "results.csv")

	code, _, stderr := runCLI(t, api, "create", "-wait", "-timeout", "5s", "-out", dest, file)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "lookup job job-new failed: no companies resolved")
	assert.NoFileExists(t, dest)
}

func TestRun_CreateWaitTimeout(t *testing.T) {
	api := newJobAPI(t)
	file := filepath.Join(t.TempDir(), "prospects.csv")
	require.NoError(t, os.WriteFile(file, []byte("name\nAcme\n"), 0644))

	code, _, stderr := runCLI(t, api, "create", "-wait", "-timeout", "200ms", file)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "job job-new still running after 200ms")
}

func lookupFrame(t *testing.T, name events.EventName, data any) events.Frame {
	t.Helper()
	frame, err := events.NewFrame(name, data)
	require.NoError(t, err)
	return frame
}

func TestRun_CreateRejectsBadRows(t *testing.T) {
	api := newJobAPI(t)
	file := filepath.Join(t.TempDir(), "vms.csv")
	require.NoError(t, os.WriteFile(file, []byte("name,domain\nAcme,\n"), 0644))

	code, _, stderr := runCLI(t, api, "create", "-type", "vms_check", "-name", "VMS", file)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "row 2")

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Nil(t, api.created)
}

func TestRun_Enrich(t *testing.T) {
	t.Run("all companies of the source job", func(t *testing.T) {
		api := newJobAPI(t)

		code, out, stderr := runCLI(t, api, "enrich", "-source", "job-1", "-all")
		require.Equal(t, exitOK, code, stderr)
		assert.Contains(t, out, "Started enrichment job job-enrich for 2 companies")

		api.mu.Lock()
		defer api.mu.Unlock()
		require.NotNil(t, api.process)
		assert.Equal(t, []string{"c-1", "c-2"}, api.process.CompanyIDs)
		assert.Equal(t, "Enrich Job job-1", api.process.Name)
	})

	t.Run("explicit selection and name", func(t *testing.T) {
		api := newJobAPI(t)

		code, _, stderr := runCLI(t, api, "enrich", "-name", "Batch", "c-9")
		require.Equal(t, exitOK, code, stderr)

		api.mu.Lock()
		defer api.mu.Unlock()
		assert.Equal(t, []string{"c-9"}, api.process.CompanyIDs)
		assert.Equal(t, "Batch", api.process.Name)
	})

	t.Run("empty selection", func(t *testing.T) {
		api := newJobAPI(t)

		code, _, stderr := runCLI(t, api, "enrich", "-name", "Batch")
		assert.Equal(t, exitError, code)
		assert.Contains(t, stderr, "select at least one company")
	})
}

func TestRun_Delete(t *testing.T) {
	api := newJobAPI(t)

	code, out, _ := runCLI(t, api, "delete", "job-1")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Deleted job job-1")

	code, out, _ = runCLI(t, api, "delete", "job-1", "c-1")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Deleted company c-1 from job job-1")

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{
		"/api/jobs/company-lookup/job-1",
		"/api/jobs/company-lookup/job-1/companies/c-1",
	}, api.deleted)
}

func TestRun_Report(t *testing.T) {
	api := newJobAPI(t)

	code, out, _ := runCLI(t, api, "report", "-text", "c-2")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "Summary")
	assert.Contains(t, out, "Uses a VMS")

	dest := filepath.Join(t.TempDir(), "out", "acme.pdf")
	code, out, stderr := runCLI(t, api, "report", "-out", dest, "c-2")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 report", string(data))
}

func TestRun_Export(t *testing.T) {
	api := newJobAPI(t)

	for _, format := range []string{"csv", "xlsx"} {
		t.Run(format, func(t *testing.T) {
			code, out, stderr := runCLI(t, api, "export", "-format", format, "job-1")
			require.Equal(t, exitOK, code, stderr)
			assert.Contains(t, out, "Exported 2 companies to ")

			fields := strings.Fields(out)
			path := fields[len(fields)-1]
			assert.Equal(t, "companies_job-1."+format, filepath.Base(path))
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Greater(t, info.Size(), int64(0))
		})
	}
}

func TestRun_Watch(t *testing.T) {
	api := newJobAPI(t)
	api.onJoin = []events.Frame{
		testutil.ProgressFrame(t, events.QueueURLValidation, 2, 2, 0),
		testutil.ProgressFrame(t, events.QueueWebScraping, 1, 2, -1),
		testutil.CompletedFrame(),
	}

	code, out, stderr := runCLI(t, api, "watch", "-timeout", "5s", "job-1")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "Job job-1: Completed (100%)")
	assert.Contains(t, out, "Validating URLs")
	assert.Contains(t, out, "Generating Reports")
}

func TestRun_WatchFailed(t *testing.T) {
	api := newJobAPI(t)
	api.onJoin = []events.Frame{
		testutil.FailedFrame(t, "job-1", events.QueueWebScraping, "scraper crashed", 1, 2),
	}

	code, out, stderr := runCLI(t, api, "watch", "-timeout", "5s", "job-1")
	assert.Equal(t, exitError, code)
	assert.Contains(t, out, "Failed")
	assert.Contains(t, stderr, "scraper crashed")
}

func TestRun_WatchTimeout(t *testing.T) {
	api := newJobAPI(t)

	code, out, stderr := runCLI(t, api, "watch", "-timeout", "200ms", "job-1")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "job job-1 still running after 200ms")
	assert.Contains(t, out, "Waiting")
}

func TestStatusLine(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(&buf)
	state := progress.NewJobProgressState("job-1", time.Now())
	bar.Render(state)
	bar.Render(state)

	assert.Equal(t, 1, strings.Count(buf.String(), "\r"), "identical lines are drawn once")
	assert.Contains(t, buf.String(), "["+strings.Repeat(".", barWidth)+"]   0%  Starting...")
}
