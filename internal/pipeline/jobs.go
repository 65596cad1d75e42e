package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/treegest/internal/render"
)

// JobStatus represents the state of a capture job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusCapturing JobStatus = "capturing"
	StatusRendering JobStatus = "rendering"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job tracks one page capture from queueing to its rendered tree.
type Job struct {
	mu sync.Mutex

	ID     string        `json:"job_id"`
	URL    string        `json:"url"`
	Params render.Params `json:"params"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	result *render.Result
	errors []string
}

// Progress tracks capture attempts and failures.
type Progress struct {
	Attempts int      `json:"attempts"`
	Elements int      `json:"elements"`
	Errors   []string `json:"errors"`
}

// NewJob creates a queued job with a fresh id.
func NewJob(url string, params render.Params) *Job {
	now := time.Now()
	return &Job{
		ID:        generateULID(),
		URL:       url,
		Params:    params,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// IncrAttempts counts one capture attempt.
func (j *Job) IncrAttempts() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Attempts++
	j.UpdatedAt = time.Now()
}

// SetElements records how many elements the captured page produced.
func (j *Job) SetElements(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Elements = n
	j.UpdatedAt = time.Now()
}

// SetResult stores the rendered tree.
func (j *Job) SetResult(res *render.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.UpdatedAt = time.Now()
}

// Result returns the rendered tree, nil until the job completes.
func (j *Job) Result() *render.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string         `json:"job_id"`
	URL       string         `json:"url"`
	Status    JobStatus      `json:"status"`
	Phase     string         `json:"phase"`
	Progress  Progress       `json:"progress"`
	Result    *render.Result `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	return JobSnapshot{
		ID:     j.ID,
		URL:    j.URL,
		Status: j.Status,
		Phase:  j.Phase,
		Progress: Progress{
			Attempts: j.Progress.Attempts,
			Elements: j.Progress.Elements,
			Errors:   errs,
		},
		Result:    j.result,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
