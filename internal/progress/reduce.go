package progress

import (
	"fmt"
	"time"

	"enrichdash/pkg/contracts/events"
)

// reduce applies one decoded event to prev. It never mutates prev. When the event
// changes nothing, prev itself is returned. cause describes why the job failed and
// is only meaningful when the returned state is failed.
func reduce(prev *JobProgressState, evt events.Event, now time.Time) (next *JobProgressState, cause error) {
	switch e := evt.(type) {
	case events.PipelineProgress:
		next, cause = applyProgress(prev, e)
	case events.PipelineJobFailed:
		next, cause = applyJobFailed(prev, e)
	case events.PipelineJobCompleted:
		next = applyJobCompleted(prev)
	default:
		return prev, nil
	}
	if sameProgress(prev, next) {
		return prev, nil
	}
	next.UpdatedAt = now
	return next, cause
}

func applyProgress(prev *JobProgressState, evt events.PipelineProgress) (*JobProgressState, error) {
	stage, ok := StageFromQueue(evt.QueueName)
	if !ok {
		return prev, nil
	}

	next := prev.Clone()
	next.ActiveStage = stage
	sp := next.Stages[stage]
	sp.SkippedCount = evt.Skipped()
	next.Stages[stage] = sp

	total := *evt.TotalCompanies
	effective := total - skippedTotal(next) - failedTotal(next)
	if effective <= 0 {
		exhaust(next, ErrWorkExhausted)
		return next, ErrWorkExhausted
	}

	sp.ProcessedCount = max(sp.ProcessedCount, *evt.ProcessedCount)
	sp.TotalCompanies = total
	sp.PercentComplete = max(sp.PercentComplete, percentOf(sp.ProcessedCount, effective))
	next.Stages[stage] = sp

	if next.Status.IsTerminal() {
		return next, nil
	}
	next.Status = StatusProcessing
	if stage == TerminalStage && sp.PercentComplete == 100 {
		next.Status = StatusCompleted
	}
	return next, nil
}

func applyJobFailed(prev *JobProgressState, evt events.PipelineJobFailed) (*JobProgressState, error) {
	stage, ok := StageFromQueue(evt.QueueName)
	if !ok {
		return prev, nil
	}

	next := prev.Clone()
	next.ActiveStage = stage
	sp := next.Stages[stage]
	sp.FailedCount++
	if evt.ProcessedCount != nil {
		sp.ProcessedCount = max(sp.ProcessedCount, *evt.ProcessedCount)
	}
	if evt.TotalCompanies != nil && *evt.TotalCompanies > 0 {
		sp.TotalCompanies = *evt.TotalCompanies
	}
	next.Stages[stage] = sp

	failure := &StageFailure{JobID: evt.JobID, Stage: stage, Message: evt.Error}

	// Without a known total there is no denominator; only the failure is recorded.
	if sp.TotalCompanies > 0 {
		effective := sp.TotalCompanies - skippedTotal(next) - failedTotal(next)
		if effective <= 0 {
			cause := fmt.Errorf("%w: %w", ErrWorkExhausted, failure)
			exhaust(next, cause)
			return next, cause
		}
		sp.PercentComplete = max(sp.PercentComplete, percentOf(sp.ProcessedCount, effective))
		next.Stages[stage] = sp
	}

	if next.Status != StatusCompleted {
		markFailed(next, failure)
	}
	return next, failure
}

func applyJobCompleted(prev *JobProgressState) *JobProgressState {
	next := prev.Clone()
	fillStages(next)
	if !next.Status.IsTerminal() {
		next.Status = StatusCompleted
	}
	return next
}

// exhaust forces every bar to 100 and fails the job unless it already ended
func exhaust(s *JobProgressState, cause error) {
	fillStages(s)
	markFailed(s, cause)
}

func markFailed(s *JobProgressState, cause error) {
	if s.Status.IsTerminal() {
		return
	}
	s.Status = StatusFailed
	s.LastError = cause.Error()
}

func fillStages(s *JobProgressState) {
	for stage, sp := range s.Stages {
		sp.PercentComplete = 100
		s.Stages[stage] = sp
	}
}

func skippedTotal(s *JobProgressState) int {
	n := 0
	for _, sp := range s.Stages {
		n += sp.SkippedCount
	}
	return n
}

func failedTotal(s *JobProgressState) int {
	n := 0
	for _, sp := range s.Stages {
		n += sp.FailedCount
	}
	return n
}

func percentOf(processed, effective int) int {
	return clampPercent(processed * 100 / effective)
}

func sameProgress(a, b *JobProgressState) bool {
	if a == b {
		return true
	}
	if a.Status != b.Status || a.ActiveStage != b.ActiveStage || a.LastError != b.LastError {
		return false
	}
	for _, stage := range Stages {
		if a.Stages[stage] != b.Stages[stage] {
			return false
		}
	}
	return true
}
