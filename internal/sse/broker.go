// Package sse streams ingestion progress and completion to browser clients
// over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/notesrag/internal/ingest"
)

// Event types.
const (
	TypeIngestProgress   = "ingest.progress"
	TypeIngestCompleted  = "ingest.completed"
	TypeDocumentIngested = "document.ingested"
)

// Event is one SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ProgressData is the payload of ingest.progress.
type ProgressData struct {
	JobID    string `json:"jobId"`
	Embedded int    `json:"embedded"`
	Total    int    `json:"total"`
}

// CompletedData is the payload of ingest.completed.
type CompletedData struct {
	JobID   string          `json:"jobId"`
	Results []ingest.Result `json:"results"`
}

// jobReq carries one job notification. Progress and completion share a
// channel so a job's completion is never delivered before its last progress.
type jobReq struct {
	jobID     string
	progress  ingest.Progress
	results   []ingest.Result
	completed bool
}

// Broker fans events out to connected clients.
//
// A single loop goroutine owns the client set and the per-job progress
// throttle; public methods talk to it over channels.
type Broker struct {
	progressMin time.Duration
	logger      *slog.Logger

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	jobCh         chan jobReq
	countReqCh    chan chan int

	// owned by the loop goroutine
	lastProgress map[string]time.Time

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

var _ ingest.Notifier = (*Broker)(nil)

// NewBroker creates a broker that sends at most one progress event per job
// every progressThrottle, plus the final one.
func NewBroker(progressThrottle time.Duration, logger *slog.Logger) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := newBroker(progressThrottle, logger)
	go b.run()
	return b
}

func newBroker(progressThrottle time.Duration, logger *slog.Logger) *Broker {
	return &Broker{
		progressMin:   progressThrottle,
		logger:        logger,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		jobCh:         make(chan jobReq, 256),
		countReqCh:    make(chan chan int),
		lastProgress:  make(map[string]time.Time),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

func encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})

	broadcast := func(event Event) {
		raw, err := encode(event)
		if err != nil {
			b.logger.Warn("sse: encode event", slog.String("type", event.Type), slog.String("error", err.Error()))
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// slow client; drop rather than stall the loop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.jobCh:
			if event, ok := b.jobEvent(req, time.Now()); ok {
				broadcast(event)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// jobEvent turns a job notification into the event to broadcast, or reports
// false when progress is throttled. Only the loop goroutine calls it.
func (b *Broker) jobEvent(req jobReq, now time.Time) (Event, bool) {
	if req.completed {
		delete(b.lastProgress, req.jobID)
		return Event{Type: TypeIngestCompleted, Data: CompletedData{JobID: req.jobID, Results: req.results}}, true
	}
	if req.progress.Embedded >= req.progress.Total {
		// the final count is never throttled and nothing follows it
		delete(b.lastProgress, req.jobID)
	} else {
		if now.Sub(b.lastProgress[req.jobID]) < b.progressMin {
			return Event{}, false
		}
		b.lastProgress[req.jobID] = now
	}
	return Event{Type: TypeIngestProgress, Data: ProgressData{
		JobID:    req.jobID,
		Embedded: req.progress.Embedded,
		Total:    req.progress.Total,
	}}, true
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all clients unthrottled.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// IngestProgress publishes throttled progress for a job.
func (b *Broker) IngestProgress(jobID string, p ingest.Progress) {
	if b.closed.Load() {
		return
	}
	select {
	case b.jobCh <- jobReq{jobID: jobID, progress: p}:
	case <-b.stopped:
	}
}

// IngestCompleted publishes a job's per-file results.
func (b *Broker) IngestCompleted(jobID string, results []ingest.Result) {
	if b.closed.Load() {
		return
	}
	select {
	case b.jobCh <- jobReq{jobID: jobID, results: results, completed: true}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
