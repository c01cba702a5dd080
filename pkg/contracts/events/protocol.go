// Package events contains the event contracts exchanged over the job push channel
// and the snapshot messages pushed to dashboard browsers.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Protocol version
const (
	ProtocolVersion = "1.0"
	ProtocolName    = "enrichdash-channel"
)

// RoomPrefix scopes channel rooms to a single job.
const RoomPrefix = "job:"

// RoomForJob returns the room identifier used to join a job's event stream.
func RoomForJob(jobID string) string {
	return RoomPrefix + jobID
}

// ConnectionState describes the transport-level connectivity of a subscription
type ConnectionState string

const (
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
	ConnectionStateDisconnected ConnectionState = "disconnected"
)

// Frame is the envelope of every message on the push channel.
// Data holds the event-specific payload, decoded by Decode.
type Frame struct {
	Event     EventName       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// NewFrame builds a frame carrying the JSON encoding of data
func NewFrame(name EventName, data interface{}) (Frame, error) {
	frame := Frame{Event: name}
	if data == nil {
		return frame, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	frame.Data = raw
	return frame, nil
}

// JoinFrame returns the frame that subscribes the connection to room
func JoinFrame(room string) Frame {
	return membershipFrame(room, true)
}

// LeaveFrame returns the frame that releases the connection's interest in room
func LeaveFrame(room string) Frame {
	return membershipFrame(room, false)
}

// Handler receives frames and connectivity changes from a channel subscription.
// Calls are serialized: a subscription never invokes its handler concurrently.
type Handler interface {
	HandleFrame(frame Frame)
	HandleConnectivity(state ConnectionState, err error)
}

// Subscription is an open handle on a job room
type Subscription interface {
	// Room returns the room this handle joined
	Room() string

	// Leave sends the leave signal for the room. Only the first call has an effect.
	// With no live connection there is no room to leave and Leave returns nil.
	Leave() error

	// Close releases the underlying connection without waiting for it to drain.
	Close() error
}
