package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// EventName identifies the payload schema of a frame
type EventName string

const (
	// Client to server
	EventJoin  EventName = "join"
	EventLeave EventName = "leave"

	// Pipeline events
	EventPipelineProgress     EventName = "pipeline_progress"
	EventPipelineJobCompleted EventName = "pipeline_job_completed"
	EventPipelineJobFailed    EventName = "pipeline_job_failed"

	// Transport events, surfaced as connectivity only
	EventConnect      EventName = "connect"
	EventConnectError EventName = "connect_error"
	EventDisconnect   EventName = "disconnect"

	// Dashboard push
	EventProgressSnapshot EventName = "progress:snapshot"
)

// Queue names as published by the pipeline, in display order
const (
	QueueURLValidation    = "url-validation-queue"
	QueueWebScraping      = "web-scraping-queue"
	QueueVMSCheck         = "vms-check-queue"
	QueueReportGeneration = "report-generation-queue"
)

var (
	// ErrUnknownEvent is returned for frames whose event name has no pipeline schema
	ErrUnknownEvent = errors.New("unknown event")

	// ErrMalformedEvent is returned when a payload does not match its schema
	ErrMalformedEvent = errors.New("malformed event")
)

// Event is a decoded pipeline event. The concrete type is selected by the frame's event name.
type Event interface {
	Name() EventName
}

// PipelineProgress reports how far one queue has got through the job's companies
type PipelineProgress struct {
	QueueName      string `json:"queueName" validate:"required,oneof=url-validation-queue web-scraping-queue vms-check-queue report-generation-queue"`
	ProcessedCount *int   `json:"processedCount" validate:"required,gte=0"`
	TotalCompanies *int   `json:"totalCompanies" validate:"required,gt=0"`
	SkippedCount   *int   `json:"skippedCount,omitempty" validate:"omitempty,gte=0"`
}

// Name implements Event
func (PipelineProgress) Name() EventName { return EventPipelineProgress }

// Skipped returns the reported skipped count, zero when absent
func (p PipelineProgress) Skipped() int {
	if p.SkippedCount == nil {
		return 0
	}
	return *p.SkippedCount
}

// PipelineJobCompleted signals that the backend finished the whole job
type PipelineJobCompleted struct{}

// Name implements Event
func (PipelineJobCompleted) Name() EventName { return EventPipelineJobCompleted }

// PipelineJobFailed reports a failure of one company in one queue.
// Counts are optional; receivers fall back to what they last saw for the queue.
type PipelineJobFailed struct {
	JobID          string `json:"jobId,omitempty"`
	QueueName      string `json:"queueName" validate:"required,oneof=url-validation-queue web-scraping-queue vms-check-queue report-generation-queue"`
	Error          string `json:"error,omitempty"`
	ProcessedCount *int   `json:"processedCount,omitempty" validate:"omitempty,gte=0"`
	TotalCompanies *int   `json:"totalCompanies,omitempty" validate:"omitempty,gte=0"`
}

// Name implements Event
func (PipelineJobFailed) Name() EventName { return EventPipelineJobFailed }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode turns a pipeline frame into its typed event.
// Frames that are not pipeline events return ErrUnknownEvent; payloads that fail
// their schema return an error wrapping ErrMalformedEvent.
func Decode(frame Frame) (Event, error) {
	switch frame.Event {
	case EventPipelineProgress:
		var evt PipelineProgress
		if err := decodePayload(frame, &evt); err != nil {
			return nil, err
		}
		return evt, nil

	case EventPipelineJobCompleted:
		return PipelineJobCompleted{}, nil

	case EventPipelineJobFailed:
		var evt PipelineJobFailed
		if err := decodePayload(frame, &evt); err != nil {
			return nil, err
		}
		return evt, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
}

func decodePayload(frame Frame, dst interface{}) error {
	data := bytes.TrimSpace(frame.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedEvent, frame.Event)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, frame.Event, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, frame.Event, err)
	}
	return nil
}

// ProgressSnapshot is the complete reconciled state of one job pushed to dashboards
type ProgressSnapshot struct {
	JobID       string          `json:"job_id"`
	Status      string          `json:"status"`   // waiting|processing|completed|failed
	Progress    int             `json:"progress"` // 0-100
	CurrentStep string          `json:"current_step,omitempty"`
	Label       string          `json:"label"`
	Connected   bool            `json:"connected"`
	Stages      []StageSnapshot `json:"stages"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Error       string          `json:"error,omitempty"`
}

// StageSnapshot represents the state of a single pipeline stage
type StageSnapshot struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Queue          string `json:"queue"`
	Progress       int    `json:"progress"` // 0-100
	ProcessedCount int    `json:"processed_count"`
	TotalCompanies int    `json:"total_companies"`
	SkippedCount   int    `json:"skipped_count"`
	FailedCount    int    `json:"failed_count"`
}

// WebSocketMessage is the envelope pushed to dashboard browsers
type WebSocketMessage struct {
	Type      EventName   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}
