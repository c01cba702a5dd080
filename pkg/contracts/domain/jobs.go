// Package domain contains the job and company types served by the job API.
package domain

import "time"

// JobStatus is the lifecycle status of a job as listed by the job API
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusPending    JobStatus = "pending"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusStalled    JobStatus = "stalled"
)

// Label returns the display label of the status
func (s JobStatus) Label() string {
	switch s {
	case JobStatusProcessing:
		return "Processing"
	case JobStatusPending:
		return "Pending"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusFailed:
		return "Failed"
	case JobStatusStalled:
		return "Stalled"
	default:
		return string(s)
	}
}

// JobType selects how a lookup job treats its companies
type JobType string

const (
	JobTypeCompanyLookup  JobType = "company_lookup"
	JobTypeDataEnrichment JobType = "data_enrichment"
	JobTypeSearchIndex    JobType = "search_index"
	JobTypeVMSCheck       JobType = "vms_check"
)

// Label returns the display label of the job type
func (t JobType) Label() string {
	switch t {
	case JobTypeCompanyLookup:
		return "Company Lookup"
	case JobTypeDataEnrichment:
		return "Data Enrichment"
	case JobTypeSearchIndex:
		return "Search Index"
	case JobTypeVMSCheck:
		return "VMS Check"
	default:
		return "-"
	}
}

// Job is a registered lookup or enrichment job
type Job struct {
	ID                 string    `json:"id" validate:"required"`
	Name               string    `json:"name"`
	Status             JobStatus `json:"status"`
	Tag                JobType   `json:"tag,omitempty"`
	TotalCompanies     int       `json:"total_companies"`
	ProcessedCompanies int       `json:"processed_companies"`
	CreatedAt          time.Time `json:"created_at"`
}

// JobsResponse wraps the job listing
type JobsResponse struct {
	Jobs []Job `json:"jobs" validate:"dive"`
}

// JobResponse wraps a single job
type JobResponse struct {
	Job Job `json:"job"`
}

// CreateLookupJobRequest submits a new lookup job built from an uploaded file
type CreateLookupJobRequest struct {
	Companies []CompanyInput `json:"companies" validate:"required,min=1,dive"`
	JobType   JobType        `json:"jobType" validate:"required,oneof=company_lookup vms_check"`
	Name      string         `json:"name" validate:"required"`
}

// ProcessCompaniesRequest starts an enrichment job for selected companies
type ProcessCompaniesRequest struct {
	CompanyIDs []string `json:"companyIds" validate:"required,min=1,dive,required"`
	Name       string   `json:"name" validate:"required"`
}

// JobCreatedResponse is returned when the job API accepts a new job
type JobCreatedResponse struct {
	JobID string `json:"jobId" validate:"required"`
}

// AuthStatus is returned by the auth status endpoint
type AuthStatus struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}
