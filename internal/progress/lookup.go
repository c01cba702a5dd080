package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"enrichdash/pkg/contracts/events"
)

// FollowLookup follows a freshly created lookup job until it completes, fails
// or ctx is done. onProgress, when set, receives the overall percentage each
// time it grows; it runs on the channel's delivery goroutine.
//
// A nil return means the job completed and its results can be downloaded.
// A job_failed event is returned as *LookupFailure.
func FollowLookup(ctx context.Context, ch Channel, jobID string, onProgress func(percent int), logger *slog.Logger) error {
	if jobID == "" {
		return errors.New("follow lookup: job id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &lookupFollower{
		jobID:      jobID,
		onProgress: onProgress,
		logger:     logger.With(slog.String("component", "lookup_follower"), slog.String("job_id", jobID)),
		metrics:    GetMetrics(),
		percent:    -1,
		result:     make(chan error, 1),
	}

	sub, err := ch.Open(ctx, events.RoomForLookup(jobID), f)
	if err != nil {
		return fmt.Errorf("follow lookup job %s: %w", jobID, err)
	}
	f.metrics.RecordSubscription(ctx, 1)
	defer func() {
		f.stop()
		if err := errors.Join(sub.Leave(), sub.Close()); err != nil {
			f.logger.Warn("Lookup subscription did not close cleanly", slog.String("error", err.Error()))
		}
		f.metrics.RecordSubscription(context.Background(), -1)
	}()

	select {
	case err := <-f.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lookupFollower turns lookup job events into one outcome
type lookupFollower struct {
	jobID      string
	onProgress func(int)
	logger     *slog.Logger
	metrics    *Metrics

	mu      sync.Mutex // serializes delivery with stop
	stopped bool
	percent int
	result  chan error
}

func (f *lookupFollower) stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

// finish records the outcome; later outcomes are ignored. Callers hold mu.
func (f *lookupFollower) finish(err error) {
	f.stopped = true
	f.result <- err
}

// HandleFrame implements events.Handler
func (f *lookupFollower) HandleFrame(frame events.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}

	ctx := context.Background()
	evt, err := events.DecodeLookup(frame)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, events.ErrUnknownEvent) {
			reason = "unknown"
		}
		f.logger.Debug("Dropping lookup event",
			slog.String("event", string(frame.Event)),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		f.metrics.RecordDropped(ctx, string(frame.Event), reason)
		return
	}
	f.metrics.RecordApplied(ctx, string(frame.Event))

	switch e := evt.(type) {
	case events.JobProgress:
		// Percentages only move forward, even when events arrive out of order.
		if p := e.Percent(); p > f.percent {
			f.percent = p
			if f.onProgress != nil {
				f.onProgress(p)
			}
		}
	case events.JobCompleted:
		f.logger.Info("Lookup job completed")
		f.metrics.RecordOutcome(ctx, StatusCompleted)
		f.finish(nil)
	case events.JobFailed:
		f.logger.Warn("Lookup job failed", slog.String("error", e.Error))
		f.metrics.RecordOutcome(ctx, StatusFailed)
		f.finish(&LookupFailure{JobID: f.jobID, Message: e.Error})
	}
}

// HandleConnectivity implements events.Handler. Only a channel that stopped
// reconnecting ends the follow.
func (f *lookupFollower) HandleConnectivity(state events.ConnectionState, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped || state != events.ConnectionStateDisconnected {
		return
	}
	if err != nil {
		f.finish(fmt.Errorf("%w: %v", ErrChannelLost, err))
		return
	}
	f.finish(ErrChannelLost)
}
