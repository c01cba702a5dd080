package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"enrichdash/internal/progress"
)

const barWidth = 30

func (c *cli) cmdWatch(ctx context.Context, args []string) error {
	fs := c.flagSet("watch")
	timeout := fs.Duration("timeout", 0, "give up after this long (0 waits until the job ends)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID, err := oneArg(fs.Args(), "jobId")
	if err != nil {
		return err
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	bar := newProgressBar(c.stdout)
	done := make(chan error, 1)
	rec := progress.NewReconciler(c.channel, progress.Callbacks{
		OnUpdate: bar.Render,
		OnComplete: func(*progress.JobProgressState) {
			done <- nil
		},
		OnError: func(_ *progress.JobProgressState, cause error) {
			done <- cause
		},
	}, c.logger)

	if err := rec.Subscribe(ctx, jobID); err != nil {
		return err
	}
	defer rec.Unsubscribe()

	var result error
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ctx.Err()
		if errors.Is(result, context.DeadlineExceeded) {
			result = fmt.Errorf("job %s still running after %s", jobID, *timeout)
		}
	}

	if state, ok := rec.Snapshot(); ok {
		bar.Summary(state)
	}
	return result
}

// progressBar redraws a single status line and prints the stage table at the end
type progressBar struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

func newProgressBar(out io.Writer) *progressBar {
	return &progressBar{out: out}
}

// Render redraws the line when its text changes
func (b *progressBar) Render(state *progress.JobProgressState) {
	line := statusLine(state)

	b.mu.Lock()
	defer b.mu.Unlock()
	if line == b.last {
		return
	}
	pad := ""
	if n := len(b.last) - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(b.out, "\r%s%s", line, pad)
	b.last = line
}

// Summary ends the status line and prints per-stage counts
func (b *progressBar) Summary(state *progress.JobProgressState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last != "" {
		fmt.Fprintln(b.out)
	}
	fmt.Fprintf(b.out, "Job %s: %s (%d%%)\n", state.JobID, state.Status.Label(), state.Overall())
	for _, stage := range progress.Stages {
		sp := state.Stage(stage)
		fmt.Fprintf(b.out, "  %-20s %3d%%  %d/%d processed, %d skipped, %d failed\n",
			stage.Label(), sp.PercentComplete, sp.ProcessedCount, sp.TotalCompanies,
			sp.SkippedCount, sp.FailedCount)
	}
	if state.LastError != "" {
		fmt.Fprintf(b.out, "  error: %s\n", state.LastError)
	}
}

func statusLine(state *progress.JobProgressState) string {
	pct := state.Overall()
	filled := pct * barWidth / 100
	line := fmt.Sprintf("[%s%s] %3d%%  %s",
		strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled),
		pct, state.ActiveLabel())
	if !state.Connected && state.Status != progress.StatusWaiting {
		line += "  (disconnected)"
	}
	return line
}
