package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/pipeline"
	"github.com/ayusman/abhinaya/internal/store"
	"github.com/ayusman/abhinaya/internal/timeutil"
)

const (
	recorderQueueSize = 256
	// PruneInterval is how often old events are removed when a retention
	// period is set.
	PruneInterval = time.Hour
)

// Recorder is a pipeline observer that appends committed gestures to the
// event log off the pipeline goroutine, and prunes events older than the
// retention period.
type Recorder struct {
	events    *store.EventRepository
	retention time.Duration
	clock     timeutil.Clock

	mu      sync.RWMutex
	queue   chan gesture.Event
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewRecorder creates a Recorder. A zero retention keeps every event. A nil
// clock uses the wall clock.
func NewRecorder(events *store.EventRepository, retention time.Duration, clock timeutil.Clock) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{
		events:    events,
		retention: retention,
		clock:     clock,
		queue:     make(chan gesture.Event, recorderQueueSize),
	}
}

// OnEvent queues gesture events; other kinds are ignored.
func (r *Recorder) OnEvent(e pipeline.Event) {
	if e.Kind != pipeline.KindGesture || e.Gesture == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- *e.Gesture:
	default:
		if n := r.dropped.Add(1); n%100 == 1 {
			log.Warn("event log queue full, dropping events", "dropped", n)
		}
	}
}

// Start launches the writer and, with a retention period, the pruner.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.write()

	if r.retention > 0 {
		r.wg.Add(1)
		go r.prune(ctx)
	}
}

// Close stops accepting events and waits for queued ones to be written.
// The pruner stops with the context passed to Start.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// Prune deletes events older than the retention period.
func (r *Recorder) Prune(now time.Time) (int64, error) {
	if r.retention <= 0 {
		return 0, nil
	}
	return r.events.DeleteBefore(now.Add(-r.retention))
}

func (r *Recorder) write() {
	defer r.wg.Done()
	for e := range r.queue {
		if err := r.events.Create(e); err != nil {
			log.Error("failed to record gesture", "gesture", e.Type, "entity", e.Entity, "error", err)
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	defer r.wg.Done()

	timer := r.clock.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			n, err := r.Prune(r.clock.Now())
			if err != nil {
				log.Error("failed to prune event log", "error", err)
			} else if n > 0 {
				log.Info("pruned event log", "deleted", n, "retention", r.retention)
			}
			timer.Reset(PruneInterval)
		}
	}
}
