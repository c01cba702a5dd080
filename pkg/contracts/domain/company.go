package domain

import "time"

// CompanyStatus is the per-company outcome reported once enrichment finishes
type CompanyStatus string

const (
	CompanyStatusCompleted CompanyStatus = "completed"
	CompanyStatusFailed    CompanyStatus = "failed"
)

// Company is one row of a lookup job
type Company struct {
	ID            string         `json:"id" validate:"required"`
	Name          string         `json:"name"`
	Domain        string         `json:"domain"`
	VMS           *bool          `json:"vms"`
	ReportReady   *bool          `json:"report_ready"`
	Status        *CompanyStatus `json:"status" validate:"omitempty,oneof=completed failed"`
	StatusMessage *string        `json:"status_message"`
	CreatedAt     time.Time      `json:"created_at"`
}

// HasReport reports whether a report can be downloaded for the company
func (c Company) HasReport() bool {
	return c.ReportReady != nil && *c.ReportReady
}

// StatusLabel returns the status shown in company tables
func (c Company) StatusLabel() string {
	if c.Status == nil {
		return "Pending"
	}
	return string(*c.Status)
}

// VMSLabel renders the tri-state VMS flag
func (c Company) VMSLabel() string {
	switch {
	case c.VMS == nil:
		return "Unknown"
	case *c.VMS:
		return "Yes"
	default:
		return "No"
	}
}

// CompaniesResponse is returned by the companies listing of a job
type CompaniesResponse struct {
	Success        bool      `json:"success"`
	JobID          string    `json:"jobId" validate:"required"`
	TotalCompanies int       `json:"totalCompanies" validate:"gte=0"`
	Companies      []Company `json:"companies" validate:"dive"`
}

// CompanyInput is a company submitted when creating a lookup job.
// Domain is nil for company_lookup jobs.
type CompanyInput struct {
	Name   string  `json:"name" validate:"required"`
	Domain *string `json:"domain"`
}
