package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notesrag/internal/testutil"
)

type recordingNotifier struct {
	mu        sync.Mutex
	progress  []Progress
	completed map[string][]Result
}

func (r *recordingNotifier) IngestProgress(_ string, p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingNotifier) IngestCompleted(jobID string, results []Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed == nil {
		r.completed = map[string][]Result{}
	}
	r.completed[jobID] = results
}

func TestJobs_StartAndWait(t *testing.T) {
	n := &recordingNotifier{}
	p := NewPipeline(nil, &testutil.Embedder{}, newMemStore(), Config{}, nil)
	jobs := NewJobs(p, n, nil)

	job := jobs.Start(context.Background(), testKey(t), []File{{Name: "a.txt", Text: "hello"}, {Name: "b.txt"}})
	require.NotEmpty(t, job.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := job.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, StatusProcessed, results[0].Status)
	assert.Equal(t, StatusSkipped, results[1].Status)

	snap := job.Snapshot()
	assert.Equal(t, JobCompleted, snap.State)
	assert.Equal(t, 1, snap.Embedded)
	assert.Equal(t, 1, snap.Total)

	got, err := jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Same(t, job, got)

	assert.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		_, ok := n.completed[job.ID]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJobs_SurvivesCallerCancellation(t *testing.T) {
	p := NewPipeline(nil, &testutil.Embedder{}, newMemStore(), Config{}, nil)
	jobs := NewJobs(p, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	job := jobs.Start(ctx, testKey(t), []File{{Name: "a.txt", Text: "hello"}})
	cancel()

	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
	assert.Equal(t, StatusProcessed, job.Results()[0].Status)
}

func TestJobs_GetUnknown(t *testing.T) {
	jobs := NewJobs(NewPipeline(nil, &testutil.Embedder{}, newMemStore(), Config{}, nil), nil, nil)
	_, err := jobs.Get("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobs_PrunesExpired(t *testing.T) {
	jobs := NewJobs(NewPipeline(nil, &testutil.Embedder{}, newMemStore(), Config{}, nil), nil, nil)
	old := &Job{ID: "old", state: JobCompleted, finishedAt: time.Now().Add(-2 * finishedJobTTL), done: make(chan struct{})}
	jobs.jobs[old.ID] = old

	jobs.mu.Lock()
	jobs.pruneLocked(time.Now())
	jobs.mu.Unlock()

	_, err := jobs.Get("old")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
