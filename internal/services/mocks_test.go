package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"enrichdash/pkg/contracts/events"
)

// MockBroadcaster is a mock for the websocket.SnapshotBroadcaster interface
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) BroadcastSnapshot(snapshot events.ProgressSnapshot) {
	m.Called(snapshot)
}

func (m *MockBroadcaster) Forget(jobID string) {
	m.Called(jobID)
}

func newMockBroadcaster() *MockBroadcaster {
	m := new(MockBroadcaster)
	m.On("BroadcastSnapshot", mock.Anything).Return()
	m.On("Forget", mock.Anything).Return()
	return m
}

// snapshots returns the broadcast snapshots of jobID in order
func (m *MockBroadcaster) snapshots(jobID string) []events.ProgressSnapshot {
	var out []events.ProgressSnapshot
	for _, call := range m.Calls {
		if call.Method != "BroadcastSnapshot" {
			continue
		}
		if s := call.Arguments.Get(0).(events.ProgressSnapshot); s.JobID == jobID {
			out = append(out, s)
		}
	}
	return out
}

type fakeSubscription struct {
	mu     sync.Mutex
	room   string
	leaves int
	closed bool
}

func (s *fakeSubscription) Room() string { return s.room }

func (s *fakeSubscription) Leave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves++
	return nil
}

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeChannel hands out one subscription per room and lets tests push frames into it
type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string]events.Handler
	subs     map[string]*fakeSubscription
	opens    int
	openErr  error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers: make(map[string]events.Handler),
		subs:     make(map[string]*fakeSubscription),
	}
}

func (c *fakeChannel) Open(_ context.Context, room string, h events.Handler) (events.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.opens++
	c.handlers[room] = h
	sub := &fakeSubscription{room: room}
	c.subs[room] = sub
	return sub, nil
}

func (c *fakeChannel) send(t *testing.T, jobID string, frame events.Frame) {
	t.Helper()
	c.mu.Lock()
	h := c.handlers[events.RoomForJob(jobID)]
	c.mu.Unlock()
	require.NotNil(t, h, "job %s was never subscribed", jobID)
	h.HandleFrame(frame)
}

func (c *fakeChannel) sub(jobID string) *fakeSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[events.RoomForJob(jobID)]
}
