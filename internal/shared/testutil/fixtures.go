package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"enrichdash/pkg/contracts/domain"
	"enrichdash/pkg/contracts/events"
)

// FixedTime is the creation time stamped on every fixture
var FixedTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// NewJob returns a processing job with the given ID and company count
func NewJob(id string, companies int) domain.Job {
	return domain.Job{
		ID:             id,
		Name:           "Job " + id,
		Status:         domain.JobStatusProcessing,
		Tag:            domain.JobTypeCompanyLookup,
		TotalCompanies: companies,
		CreatedAt:      FixedTime,
	}
}

// NewCompanies returns n pending companies named Company 1..n
func NewCompanies(n int) []domain.Company {
	companies := make([]domain.Company, 0, n)
	for i := 1; i <= n; i++ {
		companies = append(companies, domain.Company{
			ID:        fmt.Sprintf("c-%d", i),
			Name:      fmt.Sprintf("Company %d", i),
			Domain:    fmt.Sprintf("company%d.example", i),
			CreatedAt: FixedTime,
		})
	}
	return companies
}

// CompletedCompany returns a company with a finished report and the given VMS flag
func CompletedCompany(id string, vms bool) domain.Company {
	status := domain.CompanyStatusCompleted
	ready := true
	return domain.Company{
		ID:          id,
		Name:        "Company " + id,
		Domain:      id + ".example",
		VMS:         &vms,
		ReportReady: &ready,
		Status:      &status,
		CreatedAt:   FixedTime,
	}
}

// Int returns a pointer to v
func Int(v int) *int {
	return &v
}

// ProgressFrame builds a pipeline_progress frame for queue.
// A negative skipped leaves skippedCount out of the payload.
func ProgressFrame(t *testing.T, queue string, processed, total, skipped int) events.Frame {
	t.Helper()

	payload := events.PipelineProgress{
		QueueName:      queue,
		ProcessedCount: Int(processed),
		TotalCompanies: Int(total),
	}
	if skipped >= 0 {
		payload.SkippedCount = Int(skipped)
	}
	frame, err := events.NewFrame(events.EventPipelineProgress, payload)
	require.NoError(t, err)
	return frame
}

// FailedFrame builds a pipeline_job_failed frame carrying counts
func FailedFrame(t *testing.T, jobID, queue, message string, processed, total int) events.Frame {
	t.Helper()

	frame, err := events.NewFrame(events.EventPipelineJobFailed, events.PipelineJobFailed{
		JobID:          jobID,
		QueueName:      queue,
		Error:          message,
		ProcessedCount: Int(processed),
		TotalCompanies: Int(total),
	})
	require.NoError(t, err)
	return frame
}

// CompletedFrame builds a pipeline_job_completed frame
func CompletedFrame() events.Frame {
	return events.Frame{Event: events.EventPipelineJobCompleted, Data: []byte("{}")}
}
