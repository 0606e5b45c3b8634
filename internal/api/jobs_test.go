package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobManagerLifecycle(t *testing.T) {
	t.Parallel()

	m := NewJobManager()
	id, snapshot := m.CreateJob(JobKindStudy, "ws-1")
	assert.Equal(t, JobStatusPending, snapshot.Status)
	assert.True(t, m.Running("ws-1", JobKindStudy))
	assert.False(t, m.Running("ws-1", JobKindTest))
	assert.False(t, m.Running("ws-2", JobKindStudy))

	m.MarkProcessing(id)
	m.UpdateProgress(id, "generate", "Generating question 1 of 4", 45, 100)
	job, ok := m.GetJob(id)
	require.True(t, ok)
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.Equal(t, 45, job.Percent)
	assert.Equal(t, "generate", job.Step)

	// snapshots are copies
	job.Status = "tampered"
	again, _ := m.GetJob(id)
	assert.Equal(t, JobStatusProcessing, again.Status)

	m.MarkCompleted(id, 4)
	job, _ = m.GetJob(id)
	assert.Equal(t, JobStatusComplete, job.Status)
	assert.Equal(t, 100, job.Percent)
	assert.Equal(t, 4, job.Questions)
	assert.False(t, m.Running("ws-1", JobKindStudy))

	_, ok = m.GetJob("missing")
	assert.False(t, ok)
	m.MarkFailed("missing", "ignored")
}

func TestJobManagerFailAndPrune(t *testing.T) {
	t.Parallel()

	m := NewJobManager()
	failed, _ := m.CreateJob(JobKindTest, "ws-1")
	pending, _ := m.CreateJob(JobKindTest, "ws-1")

	m.MarkFailed(failed, "  ")
	job, _ := m.GetJob(failed)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "generation failed", job.Error)

	removed := m.Prune(time.Now().Add(time.Minute))
	assert.Equal(t, 1, removed)
	_, ok := m.GetJob(failed)
	assert.False(t, ok)
	_, ok = m.GetJob(pending)
	assert.True(t, ok, "unfinished jobs are kept")
}

func TestPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		current, total, want int
	}{
		{0, 100, 0},
		{45, 100, 45},
		{3, 7, 42},
		{8, 7, 100},
		{50, 0, 50},
		{150, 0, 100},
		{-1, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percent(tt.current, tt.total))
	}
}
