package hook

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/pipeline"
	"github.com/ayusman/abhinaya/internal/store"
)

const gestureEvent = string(pipeline.KindGesture)

// DefaultQueueSize bounds the events waiting to be planned and run.
const DefaultQueueSize = 32

// BindingSource looks up stored gesture bindings.
type BindingSource interface {
	ListByGesture(t gesture.Type) ([]*store.Binding, error)
}

// Invocation is one planned hook run.
type Invocation struct {
	Hook    *Hook
	Request *Request
}

// ResultFunc is called after every run.
type ResultFunc func(inv Invocation, resp *Response, err error)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithResultFunc registers a callback for finished runs.
func WithResultFunc(fn ResultFunc) DispatcherOption {
	return func(d *Dispatcher) {
		d.onResult = fn
	}
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// Dispatcher is a pipeline observer that runs hooks on a worker pool.
// OnEvent never blocks and never touches the binding store: events are
// planned on the workers, and events beyond the queue capacity are dropped.
type Dispatcher struct {
	manager   *Manager
	executor  *Executor
	bindings  BindingSource
	workers   int
	queueSize int
	onResult  ResultFunc

	mu     sync.RWMutex
	events chan pipeline.Event
	closed bool
	wg     sync.WaitGroup

	dispatched atomic.Int64
	dropped    atomic.Int64
	failed     atomic.Int64
}

// NewDispatcher creates a Dispatcher. bindings may be nil.
func NewDispatcher(m *Manager, ex *Executor, bindings BindingSource, workers int, opts ...DispatcherOption) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		manager:   m,
		executor:  ex,
		bindings:  bindings,
		workers:   workers,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.events = make(chan pipeline.Event, d.queueSize)
	return d
}

// Start launches the workers. Runs in flight are cancelled with ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	d.wg.Wait()
}

// OnEvent queues an event for the workers if it can trigger any run.
func (d *Dispatcher) OnEvent(e pipeline.Event) {
	if !d.triggers(e) {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.events <- e:
	default:
		d.dropped.Add(1)
		log.Warn("hook queue full, dropping event", "event", e.Kind)
	}
}

// triggers reports whether e might plan a run. Gestures are always queued
// when bindings are configured; other events only when a manifest wants them.
func (d *Dispatcher) triggers(e pipeline.Event) bool {
	var gestureType string
	if e.Gesture != nil {
		if d.bindings != nil {
			return true
		}
		gestureType = string(e.Gesture.Type)
	}
	for _, h := range d.manager.List() {
		if h.Wants(string(e.Kind), gestureType) {
			return true
		}
	}
	return false
}

// Plan returns the runs an event triggers: every hook whose manifest
// subscribes to it, then every enabled binding for the gesture. Bindings
// naming an unknown hook are skipped.
func (d *Dispatcher) Plan(e pipeline.Event) []Invocation {
	params, err := json.Marshal(e)
	if err != nil {
		log.Error("failed to encode event for hooks", "kind", e.Kind, "error", err)
		return nil
	}

	base := Request{
		Event:     string(e.Kind),
		Timestamp: e.Timestamp.UnixMilli(),
		Params:    params,
	}
	var gestureType string
	if e.Gesture != nil {
		gestureType = string(e.Gesture.Type)
		base.Gesture = gestureType
		base.Entity = string(e.Gesture.Entity)
	}

	var out []Invocation
	for _, h := range d.manager.List() {
		if !h.Wants(base.Event, gestureType) {
			continue
		}
		req := base
		req.ID = uuid.New().String()
		req.Action = h.Action()
		req.Config = h.Manifest.Config
		out = append(out, Invocation{Hook: h, Request: &req})
	}

	if e.Gesture == nil || d.bindings == nil {
		return out
	}

	bindings, err := d.bindings.ListByGesture(e.Gesture.Type)
	if err != nil {
		log.Error("failed to load bindings", "gesture", gestureType, "error", err)
		return out
	}
	for _, b := range bindings {
		if !b.Matches(*e.Gesture) {
			continue
		}
		h, err := d.manager.Get(b.Hook)
		if err != nil {
			log.Warn("binding references unknown hook", "binding", b.ID, "hook", b.Hook)
			continue
		}
		req := base
		req.ID = uuid.New().String()
		req.Action = b.Action
		req.Config = b.Config
		if len(req.Config) == 0 {
			req.Config = h.Manifest.Config
		}
		out = append(out, Invocation{Hook: h, Request: &req})
	}
	return out
}

// Stats returns how many runs were started and failed, and how many events
// were dropped on a full queue.
func (d *Dispatcher) Stats() (dispatched, dropped, failed int64) {
	return d.dispatched.Load(), d.dropped.Load(), d.failed.Load()
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for e := range d.events {
		for _, inv := range d.Plan(e) {
			d.dispatched.Add(1)
			d.run(ctx, inv)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, inv Invocation) {
	resp, err := d.executor.Execute(ctx, inv.Hook, inv.Request)
	switch {
	case err != nil:
		d.failed.Add(1)
		log.Error("hook run failed", "hook", inv.Hook.Manifest.Name, "id", inv.Request.ID, "error", err)
	case !resp.Success:
		d.failed.Add(1)
		log.Warn("hook reported failure", "hook", inv.Hook.Manifest.Name, "id", inv.Request.ID, "error", resp.Error)
	default:
		log.Debug("hook run succeeded", "hook", inv.Hook.Manifest.Name, "id", inv.Request.ID)
	}
	if d.onResult != nil {
		d.onResult(inv, resp, err)
	}
}
