package progress_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrichdash/internal/progress"
	"enrichdash/pkg/contracts/events"
)

func TestStageTable(t *testing.T) {
	tests := []struct {
		stage   progress.Stage
		ordinal int
		weight  float64
		offset  float64
		queue   string
		label   string
	}{
		{progress.StageURLValidation, 0, 0.2, 0, events.QueueURLValidation, "Validating URLs"},
		{progress.StageWebScraping, 1, 0.3, 0.2, events.QueueWebScraping, "Scraping Websites"},
		{progress.StageVMSCheck, 2, 0.3, 0.5, events.QueueVMSCheck, "Checking VMS"},
		{progress.StageReportGeneration, 3, 0.2, 0.8, events.QueueReportGeneration, "Generating Reports"},
	}

	sum := 0.0
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.True(t, tt.stage.Valid())
			assert.Equal(t, tt.ordinal, tt.stage.Ordinal())
			assert.InDelta(t, tt.weight, tt.stage.Weight(), 1e-9)
			assert.InDelta(t, tt.offset, tt.stage.BaseOffset(), 1e-9)
			assert.Equal(t, tt.queue, tt.stage.QueueName())
			assert.Equal(t, tt.label, tt.stage.Label())

			stage, ok := progress.StageFromQueue(tt.queue)
			require.True(t, ok)
			assert.Equal(t, tt.stage, stage)
		})
		sum += tt.stage.Weight()
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, progress.StageVMSCheck, progress.TerminalStage)
}

func TestUnknownStage(t *testing.T) {
	s := progress.Stage("billing")
	assert.False(t, s.Valid())
	assert.Equal(t, -1, s.Ordinal())
	assert.Equal(t, "Processing", s.Label())

	_, ok := progress.StageFromQueue("billing-queue")
	assert.False(t, ok)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, progress.StatusWaiting.IsTerminal())
	assert.False(t, progress.StatusProcessing.IsTerminal())
	assert.True(t, progress.StatusCompleted.IsTerminal())
	assert.True(t, progress.StatusFailed.IsTerminal())
	assert.Equal(t, "Failed", progress.StatusFailed.Label())
}

func TestOverallIsWeightedSumOfBars(t *testing.T) {
	state := progress.NewJobProgressState("job-1", time.Now())
	assert.Equal(t, 0, state.Overall())

	state.Stages[progress.StageURLValidation] = progress.StageProgress{PercentComplete: 100}
	state.Stages[progress.StageWebScraping] = progress.StageProgress{PercentComplete: 50}
	assert.Equal(t, 35, state.Overall())

	state.Stages[progress.StageWebScraping] = progress.StageProgress{PercentComplete: 33}
	assert.Equal(t, 29, state.Overall()) // 20 + 9.9

	for _, stage := range progress.Stages {
		state.Stages[stage] = progress.StageProgress{PercentComplete: 100}
	}
	assert.Equal(t, 100, state.Overall())
}

func TestCloneIsDeep(t *testing.T) {
	state := progress.NewJobProgressState("job-1", time.Now())
	clone := state.Clone()
	clone.Stages[progress.StageVMSCheck] = progress.StageProgress{PercentComplete: 70}
	clone.Status = progress.StatusProcessing

	assert.Equal(t, 0, state.Stage(progress.StageVMSCheck).PercentComplete)
	assert.Equal(t, progress.StatusWaiting, state.Status)
}

func TestToSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := progress.NewJobProgressState("job-9", now)
	state.Status = progress.StatusProcessing
	state.ActiveStage = progress.StageWebScraping
	state.Connected = true
	state.Stages[progress.StageURLValidation] = progress.StageProgress{
		ProcessedCount: 8, TotalCompanies: 10, SkippedCount: 2, PercentComplete: 100,
	}
	state.Stages[progress.StageWebScraping] = progress.StageProgress{
		ProcessedCount: 4, TotalCompanies: 10, FailedCount: 1, PercentComplete: 57,
	}

	snap := state.ToSnapshot()
	assert.Equal(t, "job-9", snap.JobID)
	assert.Equal(t, "processing", snap.Status)
	assert.Equal(t, 37, snap.Progress)
	assert.Equal(t, "web-scraping", snap.CurrentStep)
	assert.Equal(t, "Scraping Websites", snap.Label)
	assert.True(t, snap.Connected)
	assert.Equal(t, now, snap.UpdatedAt)

	require.Len(t, snap.Stages, 4)
	assert.Equal(t, "url-validation", snap.Stages[0].ID)
	assert.Equal(t, events.QueueURLValidation, snap.Stages[0].Queue)
	assert.Equal(t, 2, snap.Stages[0].SkippedCount)
	assert.Equal(t, 1, snap.Stages[1].FailedCount)
	assert.Equal(t, "Generating Reports", snap.Stages[3].Name)
}
