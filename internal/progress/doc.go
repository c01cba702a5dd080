// Package progress reconciles the live event stream of one enrichment job into a
// single, monotonic progress signal.
//
// A job runs through four fixed pipeline stages. The push channel reports per-queue
// progress at least once, possibly duplicated and in any cross-stage order. The
// Reconciler folds those events into a JobProgressState and reports two things to
// its caller:
//
//   - every accepted update, through Callbacks.OnUpdate
//   - exactly one terminal outcome per subscription, OnComplete or OnError
//
// Progress model:
//
// Each stage carries its own bar: processed companies over the effective total
// (total minus everything skipped or failed anywhere in the pipeline). The overall
// percentage is the weighted sum of the stage bars, with weights 20/30/30/20.
// Reaching 100% on the VMS check stage completes the job. When skipped and failed
// companies consume the whole job the state is forced to failed with every bar full.
//
// Example usage:
//
//	r := progress.NewReconciler(channelClient, progress.Callbacks{
//		OnUpdate:   func(s *progress.JobProgressState) { render(s.ToSnapshot()) },
//		OnComplete: func(s *progress.JobProgressState) { close(done) },
//		OnError:    func(s *progress.JobProgressState, err error) { close(done) },
//	}, logger)
//	if err := r.Subscribe(ctx, jobID); err != nil {
//		return err
//	}
//	defer r.Unsubscribe()
//
// Unsubscribe waits for a callback that is already running. A callback that
// ends its own subscription calls UnsubscribeFromCallback instead.
//
// FollowLookup is the simpler counterpart for lookup jobs: it blocks until the
// job completes or fails and reports only the overall percentage.
package progress
