package progress

import (
	"time"

	"enrichdash/pkg/contracts/events"
)

// Status is the overall state of a tracked job
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further status change is possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Label returns the badge text for the status
func (s Status) Label() string {
	switch s {
	case StatusWaiting:
		return "Waiting"
	case StatusProcessing:
		return "Processing"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// StageProgress is the bookkeeping for one stage
type StageProgress struct {
	ProcessedCount  int `json:"processed_count"`
	TotalCompanies  int `json:"total_companies"`
	SkippedCount    int `json:"skipped_count"`
	FailedCount     int `json:"failed_count"`
	PercentComplete int `json:"percent_complete"`
}

// JobProgressState is the reconciled view of one job.
// Values handed out by the Reconciler are never modified afterwards; every update
// produces a new state.
type JobProgressState struct {
	JobID       string                  `json:"job_id"`
	Stages      map[Stage]StageProgress `json:"stages"`
	ActiveStage Stage                   `json:"active_stage,omitempty"`
	Status      Status                  `json:"status"`
	Connected   bool                    `json:"connected"`
	LastError   string                  `json:"last_error,omitempty"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// NewJobProgressState returns the zero state of a freshly subscribed job
func NewJobProgressState(jobID string, now time.Time) *JobProgressState {
	stages := make(map[Stage]StageProgress, len(Stages))
	for _, stage := range Stages {
		stages[stage] = StageProgress{}
	}
	return &JobProgressState{
		JobID:     jobID,
		Stages:    stages,
		Status:    StatusWaiting,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the state
func (s *JobProgressState) Clone() *JobProgressState {
	clone := *s
	clone.Stages = make(map[Stage]StageProgress, len(s.Stages))
	for stage, sp := range s.Stages {
		clone.Stages[stage] = sp
	}
	return &clone
}

// Stage returns the progress of one stage
func (s *JobProgressState) Stage(stage Stage) StageProgress {
	return s.Stages[stage]
}

// Overall returns the weighted sum of the stage bars, floored and clamped to [0,100]
func (s *JobProgressState) Overall() int {
	total := 0
	for _, stage := range Stages {
		total += stageTable[stage].points * s.Stages[stage].PercentComplete
	}
	return clampPercent(total / 100)
}

// ActiveLabel returns the label of the stage that reported last
func (s *JobProgressState) ActiveLabel() string {
	if s.ActiveStage == "" {
		return "Starting..."
	}
	return s.ActiveStage.Label()
}

// ToSnapshot converts the state into the message pushed to dashboards
func (s *JobProgressState) ToSnapshot() events.ProgressSnapshot {
	snapshot := events.ProgressSnapshot{
		JobID:       s.JobID,
		Status:      string(s.Status),
		Progress:    s.Overall(),
		CurrentStep: string(s.ActiveStage),
		Label:       s.ActiveLabel(),
		Connected:   s.Connected,
		Stages:      make([]events.StageSnapshot, 0, len(Stages)),
		UpdatedAt:   s.UpdatedAt,
		Error:       s.LastError,
	}
	for _, stage := range Stages {
		sp := s.Stages[stage]
		snapshot.Stages = append(snapshot.Stages, events.StageSnapshot{
			ID:             string(stage),
			Name:           stage.Label(),
			Queue:          stage.QueueName(),
			Progress:       sp.PercentComplete,
			ProcessedCount: sp.ProcessedCount,
			TotalCompanies: sp.TotalCompanies,
			SkippedCount:   sp.SkippedCount,
			FailedCount:    sp.FailedCount,
		})
	}
	return snapshot
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
