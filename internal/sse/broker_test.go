package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notesrag/internal/ingest"
)

func drain(ch chan []byte, wait time.Duration) []string {
	time.Sleep(wait)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func eventType(msg string) string {
	line, _, _ := strings.Cut(msg, "\n")
	return strings.TrimPrefix(line, "event: ")
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100*time.Millisecond, nil)
	defer b.Close()
	assert.Equal(t, 0, b.ClientCount())
	ch := b.Subscribe()
	assert.Equal(t, 1, b.ClientCount())
	b.Unsubscribe(ch)
	assert.Equal(t, 0, b.ClientCount())
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100*time.Millisecond, nil)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeDocumentIngested, Data: map[string]string{"name": "a.md"}})

	select {
	case msg := <-ch:
		assert.Equal(t, TypeDocumentIngested, eventType(string(msg)))
		assert.Contains(t, string(msg), `"name":"a.md"`)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestIngestProgress_Throttled(t *testing.T) {
	b := NewBroker(time.Hour, nil)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.IngestProgress("job-1", ingest.Progress{Embedded: 1, Total: 4})
	b.IngestProgress("job-1", ingest.Progress{Embedded: 2, Total: 4})
	b.IngestProgress("job-1", ingest.Progress{Embedded: 3, Total: 4})
	b.IngestProgress("job-2", ingest.Progress{Embedded: 1, Total: 9})
	b.IngestProgress("job-1", ingest.Progress{Embedded: 4, Total: 4})

	msgs := drain(ch, 50*time.Millisecond)
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], `"jobId":"job-1","embedded":1,"total":4`)
	assert.Contains(t, msgs[1], `"jobId":"job-2"`)
	assert.Contains(t, msgs[2], `"embedded":4,"total":4`, "final progress must not be throttled")
}

func TestIngestCompleted(t *testing.T) {
	b := NewBroker(time.Second, nil)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.IngestCompleted("job-1", []ingest.Result{{Name: "a.txt", Status: ingest.StatusProcessed, ChunkCount: 2}})

	msgs := drain(ch, 50*time.Millisecond)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeIngestCompleted, eventType(msgs[0]))
	assert.Contains(t, msgs[0], `"chunkCount":2`)
}

func TestIngestCompleted_AfterFinalProgress(t *testing.T) {
	b := NewBroker(time.Hour, nil)
	ch := b.Subscribe()

	const jobs = 20
	for i := range jobs {
		id := fmt.Sprintf("job-%d", i)
		b.IngestProgress(id, ingest.Progress{Embedded: 1, Total: 2})
		b.IngestProgress(id, ingest.Progress{Embedded: 2, Total: 2})
		b.IngestCompleted(id, nil)
	}

	msgs := drain(ch, 50*time.Millisecond)
	require.Len(t, msgs, jobs*3)
	want := []string{TypeIngestProgress, TypeIngestProgress, TypeIngestCompleted}
	for i := range jobs {
		id := fmt.Sprintf(`"jobId":"job-%d",`, i)
		var got []string
		for _, m := range msgs {
			if strings.Contains(m, id) {
				got = append(got, eventType(m))
			}
		}
		assert.Equal(t, want, got, "job-%d", i)
	}

	b.Close()
	assert.Empty(t, b.lastProgress, "throttle state kept for finished jobs")
}

func TestIngestEvents_QueuedBeforeLoop(t *testing.T) {
	b := newBroker(time.Hour, nil)
	b.IngestProgress("job-1", ingest.Progress{Embedded: 1, Total: 3})
	b.IngestProgress("job-1", ingest.Progress{Embedded: 3, Total: 3})
	b.IngestCompleted("job-1", nil)
	b.IngestProgress("job-2", ingest.Progress{Embedded: 1, Total: 3})

	var got []string
	now := time.Now()
	for len(b.jobCh) > 0 {
		if event, ok := b.jobEvent(<-b.jobCh, now); ok {
			got = append(got, event.Type)
		}
	}
	assert.Equal(t, []string{TypeIngestProgress, TypeIngestProgress, TypeIngestCompleted, TypeIngestProgress}, got)
	assert.NotContains(t, b.lastProgress, "job-1", "completed job still tracked")
	assert.Contains(t, b.lastProgress, "job-2")
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100*time.Millisecond, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	b.IngestCompleted("job-9", nil)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	assert.Contains(t, w.Body.String(), "event: ingest.completed")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond,
		"client not cleaned up after disconnect")
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second, nil)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// client buffer holds 64
	for range 70 {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	assert.Len(t, drain(ch, 50*time.Millisecond), 64)
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100*time.Millisecond, nil)
	ch := b.Subscribe()
	require.Equal(t, 1, b.ClientCount())

	b.Close()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected subscriber channel to be closed")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	assert.Equal(t, 0, b.ClientCount())

	b.Publish(Event{Type: "x"})
	b.IngestProgress("j", ingest.Progress{})
	b.IngestCompleted("j", nil)
}
