package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"enrichdash/internal/progress"
	ws "enrichdash/internal/websocket"
	"enrichdash/pkg/contracts/events"
)

// ProgressService keeps one reconciler per tracked job and pushes every
// reconciled state to the browsers watching that job.
type ProgressService struct {
	channel     progress.Channel
	broadcaster ws.SnapshotBroadcaster
	logger      *slog.Logger
	opts        []progress.Option

	mu       sync.Mutex
	trackers map[string]*tracker
}

type tracker struct {
	jobID      string
	reconciler *progress.Reconciler
	startedAt  time.Time

	mu       sync.Mutex
	last     *progress.JobProgressState
	finished bool
}

// TrackedJob describes a job the service follows
type TrackedJob struct {
	JobID     string                  `json:"job_id"`
	StartedAt time.Time               `json:"started_at"`
	Finished  bool                    `json:"finished"`
	Snapshot  events.ProgressSnapshot `json:"snapshot"`
}

// NewProgressService creates the service. Reconciler options are applied to every tracked job.
func NewProgressService(channel progress.Channel, broadcaster ws.SnapshotBroadcaster, logger *slog.Logger, opts ...progress.Option) *ProgressService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ProgressService{
		channel:     channel,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("service", "progress")),
		opts:        opts,
		trackers:    make(map[string]*tracker),
	}
	s.logger.Info("ProgressService initialized")
	return s
}

// Track starts following jobID and returns its current snapshot. Tracking a job
// that is already followed returns its snapshot without opening a new subscription.
func (s *ProgressService) Track(ctx context.Context, jobID string) (events.ProgressSnapshot, error) {
	if jobID == "" {
		return events.ProgressSnapshot{}, fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.trackers[jobID]; ok {
		return t.snapshot(), nil
	}

	t := &tracker{jobID: jobID, startedAt: time.Now()}
	t.reconciler = progress.NewReconciler(s.channel, progress.Callbacks{
		OnUpdate:   func(state *progress.JobProgressState) { s.publish(t, state) },
		OnComplete: func(state *progress.JobProgressState) { s.finish(t, state, nil) },
		OnError:    func(state *progress.JobProgressState, cause error) { s.finish(t, state, cause) },
	}, s.logger, s.opts...)

	if err := t.reconciler.Subscribe(ctx, jobID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to track job progress",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		return events.ProgressSnapshot{}, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	if state, ok := t.reconciler.Snapshot(); ok {
		t.mu.Lock()
		initial := t.last == nil
		if initial {
			t.last = state
		}
		t.mu.Unlock()
		if initial {
			s.broadcaster.BroadcastSnapshot(state.ToSnapshot())
		}
	}

	s.trackers[jobID] = t
	s.logger.InfoContext(ctx, "Tracking job progress",
		slog.String("job_id", jobID),
		slog.Int("tracked_jobs", len(s.trackers)))
	return t.snapshot(), nil
}

// Snapshot returns the latest reconciled state of a tracked job
func (s *ProgressService) Snapshot(jobID string) (events.ProgressSnapshot, error) {
	s.mu.Lock()
	t, ok := s.trackers[jobID]
	s.mu.Unlock()
	if !ok {
		return events.ProgressSnapshot{}, ErrJobNotTracked
	}
	return t.snapshot(), nil
}

// Untrack stops following jobID and drops its cached snapshot
func (s *ProgressService) Untrack(jobID string) error {
	s.mu.Lock()
	t, ok := s.trackers[jobID]
	delete(s.trackers, jobID)
	s.mu.Unlock()
	if !ok {
		return ErrJobNotTracked
	}

	err := t.reconciler.Unsubscribe()
	s.broadcaster.Forget(jobID)
	s.logger.Info("Stopped tracking job progress",
		slog.String("job_id", jobID),
		slog.Duration("tracked_for", time.Since(t.startedAt)))
	return err
}

// List returns the tracked jobs ordered by id
func (s *ProgressService) List() []TrackedJob {
	s.mu.Lock()
	trackers := make([]*tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		trackers = append(trackers, t)
	}
	s.mu.Unlock()

	jobs := make([]TrackedJob, 0, len(trackers))
	for _, t := range trackers {
		t.mu.Lock()
		finished := t.finished
		t.mu.Unlock()
		jobs = append(jobs, TrackedJob{
			JobID:     t.jobID,
			StartedAt: t.startedAt,
			Finished:  finished,
			Snapshot:  t.snapshot(),
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].JobID < jobs[j].JobID })
	return jobs
}

// ActiveCount returns how many tracked jobs have not reached a terminal state
func (s *ProgressService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.trackers {
		t.mu.Lock()
		if !t.finished {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// Shutdown stops tracking every job
func (s *ProgressService) Shutdown() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.trackers))
	for id := range s.trackers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := s.Untrack(id); err != nil && !errors.Is(err, ErrJobNotTracked) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *ProgressService) publish(t *tracker, state *progress.JobProgressState) {
	t.mu.Lock()
	t.last = state
	t.mu.Unlock()
	s.broadcaster.BroadcastSnapshot(state.ToSnapshot())
}

// finish releases the subscription of a job that reached a terminal state.
// The final snapshot stays available until the job is untracked.
func (s *ProgressService) finish(t *tracker, state *progress.JobProgressState, cause error) {
	t.mu.Lock()
	t.finished = true
	t.last = state
	t.mu.Unlock()

	attrs := []any{
		slog.String("job_id", t.jobID),
		slog.String("status", string(state.Status)),
		slog.Int("progress", state.Overall()),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	s.logger.Info("Job reached terminal state", attrs...)

	if err := t.reconciler.UnsubscribeFromCallback(); err != nil {
		s.logger.Warn("Failed to release finished job subscription",
			slog.String("job_id", t.jobID),
			slog.String("error", err.Error()))
	}
}

func (t *tracker) snapshot() events.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return progress.NewJobProgressState(t.jobID, t.startedAt).ToSnapshot()
	}
	return t.last.ToSnapshot()
}
