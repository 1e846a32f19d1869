package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobType says which operation a job runs.
type JobType string

const (
	JobTypeEnroll JobType = "enroll"
	JobTypeVerify JobType = "verify"
)

// Job represents an async enroll or verify request.
type Job struct {
	EventBroadcaster

	ID          string
	Type        JobType
	Status      JobStatus
	Error       string
	ErrorKind   string
	HTTPStatus  int
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      any
}

// JobView is the JSON representation of a job.
type JobView struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	HTTPStatus  int        `json:"http_status,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// View returns a consistent copy of the job state.
func (j *Job) View() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Error:       j.Error,
		ErrorKind:   j.ErrorKind,
		HTTPStatus:  j.HTTPStatus,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

// GetStatus returns the current job status (implements SSEJob).
func (j *Job) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

func (j *Job) start() {
	j.mu.Lock()
	j.Status = JobStatusRunning
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "started", Message: string(j.Type) + " job started"})
}

func (j *Job) complete(result any) {
	now := time.Now()
	j.mu.Lock()
	j.Status = JobStatusCompleted
	j.Result = result
	j.CompletedAt = &now
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: jobEventCompleted, Data: result})
}

func (j *Job) fail(err error, result any) {
	now := time.Now()
	j.mu.Lock()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.ErrorKind = attendance.KindOf(err).String()
	j.HTTPStatus = statusForError(err)
	j.Result = result
	j.CompletedAt = &now
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: jobEventError, Message: err.Error()})
}

// Terminal event types; a stream ends after sending one.
const (
	jobEventCompleted = "completed"
	jobEventError     = "job_error"
)

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// JobManager manages async jobs.
type JobManager struct {
	jobs      map[string]*Job
	retention time.Duration
	mu        sync.RWMutex
	wg        sync.WaitGroup
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:      make(map[string]*Job),
		retention: constants.JobRetention,
	}
}

// CreateJob registers a pending job.
func (m *JobManager) CreateJob(id string, typ JobType) *Job {
	job := &Job{
		ID:        id,
		Type:      typ,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.pruneLocked(time.Now())
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// Run executes fn for job on a new goroutine. fn gets a context bounded by
// constants.JobTimeout and independent of the submitting request. A non-nil
// error fails the job; result is kept either way.
func (m *JobManager) Run(job *Job, fn func(ctx context.Context) (any, error)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), constants.JobTimeout)
		defer cancel()

		job.start()
		result, err := fn(ctx)
		if err != nil {
			job.fail(err, result)
			return
		}
		job.complete(result)
	}()
}

// Wait blocks until all running jobs finish.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// pruneLocked drops finished jobs older than the retention window.
func (m *JobManager) pruneLocked(now time.Time) {
	for id, job := range m.jobs {
		job.mu.RLock()
		done := job.CompletedAt
		job.mu.RUnlock()
		if done != nil && now.Sub(*done) > m.retention {
			delete(m.jobs, id)
		}
	}
}
