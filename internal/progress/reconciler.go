package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"enrichdash/pkg/contracts/events"
)

// Channel opens job-scoped subscriptions on the push channel
type Channel interface {
	Open(ctx context.Context, room string, handler events.Handler) (events.Subscription, error)
}

// Callbacks receive the reconciled signal. States passed to callbacks are
// read-only. OnComplete and OnError together fire at most once per subscription.
type Callbacks struct {
	OnUpdate   func(state *JobProgressState)
	OnComplete func(state *JobProgressState)
	OnError    func(state *JobProgressState, cause error)
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithMetrics overrides the instruments used by the reconciler
func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock overrides the time source stamped on state updates
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// Reconciler tracks one job subscription at a time
type Reconciler struct {
	channel   Channel
	callbacks Callbacks
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time

	lifeMu sync.Mutex // serializes Subscribe and Unsubscribe
	sub    events.Subscription

	mu    sync.Mutex // guards jobID and state
	jobID string
	state *JobProgressState

	deliverMu sync.Mutex // held while an inbound event is applied and dispatched
	active    atomic.Bool
}

// NewReconciler creates a reconciler reading events from ch
func NewReconciler(ch Channel, callbacks Callbacks, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		channel:   ch,
		callbacks: callbacks,
		logger:    logger.With(slog.String("component", "progress_reconciler")),
		metrics:   GetMetrics(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe starts tracking jobID with a fresh waiting state.
// Subscribing again to the same job keeps the open handle; a different job
// replaces the current subscription. It must not be called from a callback.
func (r *Reconciler) Subscribe(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("subscribe: job id is required")
	}

	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	if r.sub != nil {
		if r.JobID() == jobID {
			return nil
		}
		if err := r.unsubscribeLocked(true); err != nil {
			r.logger.Warn("Previous subscription did not close cleanly", slog.String("error", err.Error()))
		}
	}

	r.mu.Lock()
	r.jobID = jobID
	r.state = NewJobProgressState(jobID, r.now())
	r.mu.Unlock()
	r.active.Store(true)

	room := events.RoomForJob(jobID)
	sub, err := r.channel.Open(ctx, room, r)
	if err != nil {
		r.active.Store(false)
		r.mu.Lock()
		r.jobID = ""
		r.state = nil
		r.mu.Unlock()
		return fmt.Errorf("subscribe to job %s: %w", jobID, err)
	}
	r.sub = sub
	r.metrics.RecordSubscription(ctx, 1)

	r.logger.Info("Subscribed to job progress",
		slog.String("job_id", jobID),
		slog.String("room", room))
	return nil
}

// Unsubscribe sends the leave signal and releases the channel handle.
// It is a no-op when nothing is subscribed. A callback already running is
// waited for, and no callback runs after Unsubscribe returns. Callbacks must
// use UnsubscribeFromCallback instead.
func (r *Reconciler) Unsubscribe() error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	return r.unsubscribeLocked(true)
}

// UnsubscribeFromCallback ends the subscription from inside one of the
// callbacks, where waiting for the current delivery would deadlock. The calling
// callback is the last one to run. When another goroutine is already
// unsubscribing, it only mutes delivery and leaves the release to that caller.
func (r *Reconciler) UnsubscribeFromCallback() error {
	if !r.lifeMu.TryLock() {
		r.active.Store(false)
		return nil
	}
	defer r.lifeMu.Unlock()
	return r.unsubscribeLocked(false)
}

func (r *Reconciler) unsubscribeLocked(waitForDelivery bool) error {
	sub := r.sub
	if sub == nil {
		return nil
	}
	r.sub = nil
	r.active.Store(false)

	// Deliveries check active under deliverMu, so once the in-flight one is
	// drained nothing else reaches the callbacks.
	if waitForDelivery {
		r.deliverMu.Lock()
		r.deliverMu.Unlock()
	}

	r.mu.Lock()
	jobID := r.jobID
	r.jobID = ""
	r.state = nil
	r.mu.Unlock()

	err := errors.Join(sub.Leave(), sub.Close())
	r.metrics.RecordSubscription(context.Background(), -1)

	if err != nil {
		r.logger.Warn("Unsubscribed with errors",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		return fmt.Errorf("unsubscribe from job %s: %w", jobID, err)
	}
	r.logger.Info("Unsubscribed from job progress", slog.String("job_id", jobID))
	return nil
}

// JobID returns the subscribed job, empty when idle
func (r *Reconciler) JobID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobID
}

// Snapshot returns the current state, or false when not subscribed
func (r *Reconciler) Snapshot() (*JobProgressState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.state != nil
}

// HandleFrame implements events.Handler
func (r *Reconciler) HandleFrame(frame events.Frame) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	if !r.active.Load() {
		return
	}

	ctx := context.Background()
	evt, err := events.Decode(frame)
	if err != nil {
		level, reason := slog.LevelWarn, "malformed"
		if errors.Is(err, events.ErrUnknownEvent) {
			level, reason = slog.LevelDebug, "unknown"
		}
		r.logger.Log(ctx, level, "Dropping pipeline event",
			slog.String("event", string(frame.Event)),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		r.metrics.RecordDropped(ctx, string(frame.Event), reason)
		return
	}

	r.mu.Lock()
	prev := r.state
	if prev == nil {
		r.mu.Unlock()
		return
	}
	next, cause := reduce(prev, evt, r.now())
	r.state = next
	r.mu.Unlock()

	if next == prev {
		r.logger.Debug("Pipeline event changed nothing", slog.String("event", string(frame.Event)))
		return
	}
	r.metrics.RecordApplied(ctx, string(frame.Event))

	r.logger.Debug("Applied pipeline event",
		slog.String("job_id", next.JobID),
		slog.String("event", string(frame.Event)),
		slog.String("stage", string(next.ActiveStage)),
		slog.String("status", string(next.Status)),
		slog.Int("progress", next.Overall()))

	r.dispatch(ctx, prev, next, cause)
}

// HandleConnectivity implements events.Handler. Connectivity only flips the
// connected flag; it never changes job status.
func (r *Reconciler) HandleConnectivity(state events.ConnectionState, err error) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	if !r.active.Load() {
		return
	}

	attrs := []any{slog.String("state", string(state))}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if state == events.ConnectionStateConnected {
		r.logger.Info("Channel connected", attrs...)
	} else {
		r.logger.Warn("Channel connectivity changed", attrs...)
	}

	connected := state == events.ConnectionStateConnected
	r.mu.Lock()
	prev := r.state
	if prev == nil || prev.Connected == connected {
		r.mu.Unlock()
		return
	}
	next := prev.Clone()
	next.Connected = connected
	next.UpdatedAt = r.now()
	r.state = next
	r.mu.Unlock()

	r.dispatch(context.Background(), prev, next, nil)
}

// dispatch runs on the delivering goroutine with deliverMu held. The active
// checks stop later callbacks once one of them has called UnsubscribeFromCallback.
func (r *Reconciler) dispatch(ctx context.Context, prev, next *JobProgressState, cause error) {
	if r.callbacks.OnUpdate != nil && r.active.Load() {
		r.callbacks.OnUpdate(next)
	}

	if prev.Status.IsTerminal() || !next.Status.IsTerminal() {
		return
	}
	r.metrics.RecordOutcome(ctx, next.Status)

	switch next.Status {
	case StatusCompleted:
		r.logger.Info("Job completed", slog.String("job_id", next.JobID))
		if r.callbacks.OnComplete != nil && r.active.Load() {
			r.callbacks.OnComplete(next)
		}
	case StatusFailed:
		if cause == nil {
			cause = errors.New("job failed")
		}
		r.logger.Warn("Job failed",
			slog.String("job_id", next.JobID),
			slog.String("error", cause.Error()))
		if r.callbacks.OnError != nil && r.active.Load() {
			r.callbacks.OnError(next, cause)
		}
	}
}
