package websocket

import (
	"time"

	"enrichdash/pkg/contracts/events"
)

// Connection is the subset of a websocket connection the hub relies on.
// It lets tests run clients without a network.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	RemoteAddr() string
}

// SnapshotBroadcaster pushes reconciled job progress to the browsers watching a job
type SnapshotBroadcaster interface {
	BroadcastSnapshot(snapshot events.ProgressSnapshot)
	Forget(jobID string)
}
