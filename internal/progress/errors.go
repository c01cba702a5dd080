package progress

import (
	"errors"
	"fmt"
)

// ErrWorkExhausted is the failure cause when skipped and failed companies leave
// nothing to process
var ErrWorkExhausted = errors.New("no processable companies left")

// StageFailure is a failure reported by the pipeline for one stage
type StageFailure struct {
	JobID   string
	Stage   Stage
	Message string
}

func (e *StageFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stage %s failed", e.Stage)
	}
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Message)
}

// ErrChannelLost is returned when the push channel gave up reconnecting
// before a followed job finished
var ErrChannelLost = errors.New("progress channel lost")

// LookupFailure is the job_failed outcome of a followed lookup job
type LookupFailure struct {
	JobID   string
	Message string
}

func (e *LookupFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lookup job %s failed", e.JobID)
	}
	return fmt.Sprintf("lookup job %s failed: %s", e.JobID, e.Message)
}
