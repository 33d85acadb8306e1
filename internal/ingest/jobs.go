package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notesrag/internal/tenant"
)

// finishedJobTTL is how long a completed job stays queryable.
const finishedJobTTL = time.Hour

// JobState is the lifecycle of an asynchronous ingestion.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
)

// Notifier is told about job progress and completion.
type Notifier interface {
	IngestProgress(jobID string, p Progress)
	IngestCompleted(jobID string, results []Result)
}

// Job is a handle to an ingestion running in the background.
type Job struct {
	ID string

	mu         sync.Mutex
	state      JobState
	progress   Progress
	results    []Result
	finishedAt time.Time
	done       chan struct{}
}

// JobSnapshot is a point-in-time view of a job.
type JobSnapshot struct {
	ID       string   `json:"jobId"`
	State    JobState `json:"state"`
	Embedded int      `json:"embedded"`
	Total    int      `json:"total"`
	Results  []Result `json:"results,omitempty"`
}

// Done is closed when every file has a result.
func (j *Job) Done() <-chan struct{} { return j.done }

// Progress returns the latest embedded/total counts.
func (j *Job) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Results returns per-file results, or nil while the job is running.
func (j *Job) Results() []Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.results
}

// Wait blocks until the job finishes or ctx is done. Giving up on the wait
// does not stop the job.
func (j *Job) Wait(ctx context.Context) ([]Result, error) {
	select {
	case <-j.done:
		return j.Results(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot returns the job's current state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:       j.ID,
		State:    j.state,
		Embedded: j.progress.Embedded,
		Total:    j.progress.Total,
		Results:  j.results,
	}
}

func (j *Job) setProgress(p Progress) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
}

func (j *Job) finish(results []Result) {
	j.mu.Lock()
	j.results = results
	j.state = JobCompleted
	j.finishedAt = time.Now()
	j.mu.Unlock()
	close(j.done)
}

// Jobs runs ingestions asynchronously and keeps their handles for lookup.
type Jobs struct {
	pipeline *Pipeline
	notifier Notifier
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewJobs creates a job registry. notifier may be nil.
func NewJobs(p *Pipeline, notifier Notifier, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{pipeline: p, notifier: notifier, logger: logger, jobs: make(map[string]*Job)}
}

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("ingest: job not found")

// Start launches an ingestion and returns immediately. The job outlives
// ctx's cancellation; ctx values are kept.
func (js *Jobs) Start(ctx context.Context, key tenant.Key, files []File) *Job {
	job := &Job{ID: uuid.NewString(), state: JobRunning, done: make(chan struct{})}

	js.mu.Lock()
	js.pruneLocked(time.Now())
	js.jobs[job.ID] = job
	js.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	go func() {
		results := js.pipeline.Ingest(runCtx, key, files, func(p Progress) {
			job.setProgress(p)
			if js.notifier != nil {
				js.notifier.IngestProgress(job.ID, p)
			}
		})
		job.finish(results)
		js.logger.Info("ingest: job completed", slog.String("job_id", job.ID), slog.Int("files", len(results)))
		if js.notifier != nil {
			js.notifier.IngestCompleted(job.ID, results)
		}
	}()
	return job
}

// Get returns a job by id.
func (js *Jobs) Get(id string) (*Job, error) {
	js.mu.Lock()
	defer js.mu.Unlock()
	job, ok := js.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (js *Jobs) pruneLocked(now time.Time) {
	for id, job := range js.jobs {
		job.mu.Lock()
		expired := job.state == JobCompleted && now.Sub(job.finishedAt) > finishedJobTTL
		job.mu.Unlock()
		if expired {
			delete(js.jobs, id)
		}
	}
}
