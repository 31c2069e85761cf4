package delegation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/errors"
)

// Job is a snapshot of one delegated run.
type Job struct {
	ID         string
	ProfileID  string
	Name       string
	Role       string
	Task       string
	OutputPath string
	Status     core.Status
	// Reason is set when Status is failed.
	Reason     string
	Summary    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// StatusText is "Running", "Completed" or "Failed: <reason>".
func (j Job) StatusText() string {
	switch j.Status {
	case core.StatusRunning:
		return "Running"
	case core.StatusCompleted:
		return "Completed"
	case core.StatusFailed:
		return "Failed: " + j.Reason
	default:
		return string(j.Status)
	}
}

// JobRegistry tracks delegated jobs for the lifetime of the process.
// Job status only moves from running to a terminal state.
type JobRegistry struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	now   func() time.Time
}

// NewJobRegistry creates an empty registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Register records job as running. Ids must be unique.
func (r *JobRegistry) Register(job Job) (Job, error) {
	if strings.TrimSpace(job.ID) == "" {
		return Job{}, errors.New(errors.CodeInvalidInput, "job id is empty", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return Job{}, errors.Newf(errors.CodeInvalidInput, "job '%s' already exists", job.ID)
	}
	job.Status = core.StatusRunning
	job.Reason = ""
	job.FinishedAt = time.Time{}
	if job.StartedAt.IsZero() {
		job.StartedAt = r.now()
	}
	stored := job
	r.jobs[job.ID] = &stored
	r.order = append(r.order, job.ID)
	return stored, nil
}

// Complete marks a running job completed.
func (r *JobRegistry) Complete(id, summary string) error {
	return r.finish(id, core.StatusCompleted, "", summary)
}

// Fail marks a running job failed with reason.
func (r *JobRegistry) Fail(id, reason string) error {
	return r.finish(id, core.StatusFailed, reason, "")
}

func (r *JobRegistry) finish(id string, status core.Status, reason, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return errors.Newf(errors.CodeNotFound, "job '%s' not found", id)
	}
	if !job.Status.CanTransition(status) {
		return errors.Newf(errors.CodeInvalidInput, "job '%s' is already %s", id, job.Status)
	}
	job.Status = status
	job.Reason = reason
	if summary != "" {
		job.Summary = summary
	}
	job.FinishedAt = r.now()
	return nil
}

// Get returns a copy of the job.
func (r *JobRegistry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns jobs in registration order. Terminal jobs are included only
// when includeFinished is set.
func (r *JobRegistry) List(includeFinished bool) []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.order))
	for _, id := range r.order {
		job := r.jobs[id]
		if job.Status.Terminal() && !includeFinished {
			continue
		}
		out = append(out, *job)
	}
	return out
}

// Len returns the number of recorded jobs.
func (r *JobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// NewID returns "<prefix>_YYYYMMDD_HHMMSS_xxxx" with a random hex suffix.
func NewID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("%s_%s_%s", prefix, now.UTC().Format("20060102_150405"), suffix)
}

// NewJobID returns a fresh job id.
func NewJobID(now time.Time) string { return NewID("job", now) }
