package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"

	JobKindStudy = "study"
	JobKindTest  = "test"
)

// GenerationJob tracks one asynchronous question generation run that the
// frontend polls.
type GenerationJob struct {
	ID          string    `json:"jobId"`
	Kind        string    `json:"kind"`
	WorkspaceID string    `json:"-"`
	Status      string    `json:"status"`
	Step        string    `json:"step,omitempty"`
	Message     string    `json:"message,omitempty"`
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	Percent     int       `json:"percent"`
	Questions   int       `json:"questions"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*GenerationJob
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*GenerationJob),
	}
}

func (m *JobManager) CreateJob(kind, workspaceID string) (string, *GenerationJob) {
	now := time.Now().UTC()
	job := &GenerationJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		WorkspaceID: workspaceID,
		Status:      JobStatusPending,
		Total:       100,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, job.clone()
}

func (m *JobManager) GetJob(id string) (*GenerationJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// Running reports whether workspaceID has a job of kind still in flight.
func (m *JobManager) Running(workspaceID, kind string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		if job.WorkspaceID == workspaceID && job.Kind == kind &&
			(job.Status == JobStatusPending || job.Status == JobStatusProcessing) {
			return true
		}
	}
	return false
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusProcessing
		job.Message = "Starting"
	})
}

func (m *JobManager) UpdateProgress(id string, step, message string, current, total int) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusProcessing
		job.Step = step
		job.Message = message
		job.Current = current
		job.Total = total
		job.Percent = percent(current, total)
	})
}

func (m *JobManager) MarkCompleted(id string, questions int) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusComplete
		job.Step = "complete"
		job.Current = job.Total
		job.Percent = 100
		job.Questions = questions
		job.Error = ""
	})
}

func (m *JobManager) MarkFailed(id string, msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "generation failed"
	}
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusFailed
		job.Step = "error"
		job.Message = msg
		job.Error = msg
	})
}

// Prune drops finished jobs last updated before cutoff.
func (m *JobManager) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, job := range m.jobs {
		finished := job.Status == JobStatusComplete || job.Status == JobStatusFailed
		if finished && job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

func (m *JobManager) withJob(id string, fn func(job *GenerationJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (job *GenerationJob) clone() *GenerationJob {
	if job == nil {
		return nil
	}
	cp := *job
	return &cp
}

func percent(current, total int) int {
	if total <= 0 {
		if current <= 0 {
			return 0
		}
		if current > 100 {
			return 100
		}
		return current
	}
	if current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
