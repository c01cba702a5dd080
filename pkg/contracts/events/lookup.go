package events

import (
	"bytes"
	"fmt"
	"strings"
)

// LookupRoomPrefix marks rooms that follow a lookup job with the
// subscribe_to_job protocol instead of join/leave.
const LookupRoomPrefix = "lookup:"

// Lookup job events. A freshly created lookup job reports a single overall
// percentage and one terminal event.
const (
	EventSubscribeToJob     EventName = "subscribe_to_job"
	EventUnsubscribeFromJob EventName = "unsubscribe_from_job"

	EventJobProgress  EventName = "job_progress"
	EventJobCompleted EventName = "job_completed"
	EventJobFailed    EventName = "job_failed"
)

// RoomForLookup returns the room identifier used to follow a lookup job
func RoomForLookup(jobID string) string {
	return LookupRoomPrefix + jobID
}

// JobProgress reports the overall progress of a lookup job
type JobProgress struct {
	Progress *float64 `json:"progress" validate:"required,gte=0"`
}

// Name implements Event
func (JobProgress) Name() EventName { return EventJobProgress }

// Percent returns the progress rounded to a whole percentage in [0,100]
func (p JobProgress) Percent() int {
	if p.Progress == nil {
		return 0
	}
	v := int(*p.Progress + 0.5)
	if v > 100 {
		return 100
	}
	return v
}

// JobCompleted signals that the results of a lookup job are ready to download
type JobCompleted struct{}

// Name implements Event
func (JobCompleted) Name() EventName { return EventJobCompleted }

// JobFailed signals that a lookup job stopped with an error
type JobFailed struct {
	Error string `json:"error"`
}

// Name implements Event
func (JobFailed) Name() EventName { return EventJobFailed }

// DecodeLookup turns a lookup job frame into its typed event. Frames of any
// other kind return ErrUnknownEvent.
func DecodeLookup(frame Frame) (Event, error) {
	switch frame.Event {
	case EventJobProgress:
		var evt JobProgress
		if err := decodePayload(frame, &evt); err != nil {
			return nil, err
		}
		return evt, nil

	case EventJobCompleted:
		return JobCompleted{}, nil

	case EventJobFailed:
		var evt JobFailed
		if data := bytes.TrimSpace(frame.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
			if err := decodePayload(frame, &evt); err != nil {
				return nil, err
			}
		}
		return evt, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
}

// membershipFrame builds the join or leave frame for room. Lookup rooms carry
// the bare job ID, as the backend expects.
func membershipFrame(room string, join bool) Frame {
	if jobID, ok := strings.CutPrefix(room, LookupRoomPrefix); ok {
		name := EventUnsubscribeFromJob
		if join {
			name = EventSubscribeToJob
		}
		frame, _ := NewFrame(name, jobID)
		return frame
	}
	name := EventLeave
	if join {
		name = EventJoin
	}
	frame, _ := NewFrame(name, room)
	return frame
}
