package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/abhinaya/internal/calibration"
	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/source"
	"github.com/ayusman/abhinaya/internal/timeutil"
)

// QueueSize is the number of commands and frames the runner buffers.
const QueueSize = 64

// ErrNotRunning is returned when the runner's loop is not running.
var ErrNotRunning = errors.New("pipeline not running")

// Runner owns the engine on a single goroutine. Frames and control calls
// are queued as commands and executed in arrival order; every command
// re-arms the step timer before it completes.
type Runner struct {
	engine *Engine
	clock  timeutil.Clock
	timer  timeutil.Timer

	cmds    chan func()
	quit    chan struct{}
	stopped chan struct{}

	running  atomic.Bool
	stopOnce sync.Once

	// enabled is only touched on the loop.
	enabled bool
	dropped atomic.Int64
}

// NewRunner wraps engine. A nil clock uses the wall clock.
func NewRunner(engine *Engine, clock timeutil.Clock) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{
		engine:  engine,
		clock:   clock,
		cmds:    make(chan func(), QueueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Engine returns the wrapped engine. Calling it directly while the runner
// is running is not safe.
func (r *Runner) Engine() *Engine {
	return r.engine
}

// Start launches the loop. It returns when the loop is accepting commands;
// the loop exits on Stop or when ctx is done.
func (r *Runner) Start(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	r.timer = r.clock.NewTimer(time.Hour)
	r.timer.Stop()
	go r.loop(ctx)
	log.Info("pipeline started")
}

// Stop ends the loop and any calibration session. Frames still queued are
// discarded. It returns after the loop has exited.
func (r *Runner) Stop() {
	if !r.running.Load() {
		return
	}
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.stopped
}

// Submit queues a frame. It reports false when the frame was dropped
// because the queue is full or the runner is not running.
func (r *Runner) Submit(b landmark.Bundle) bool {
	if !r.running.Load() {
		return false
	}
	select {
	case <-r.stopped:
		return false
	default:
	}
	select {
	case r.cmds <- r.frame(b):
		return true
	default:
		if n := r.dropped.Add(1); n%100 == 1 {
			log.Warn("pipeline queue full, dropping frames", "dropped", n)
		}
		return false
	}
}

// submitWait queues a frame, waiting for room in the queue.
func (r *Runner) submitWait(ctx context.Context, b landmark.Bundle) error {
	if !r.running.Load() {
		return ErrNotRunning
	}
	select {
	case <-r.stopped:
		return ErrNotRunning
	default:
	}
	select {
	case r.cmds <- r.frame(b):
		return nil
	case <-r.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) frame(b landmark.Bundle) func() {
	return func() {
		r.process(b)
		r.arm()
	}
}

// Dropped returns the number of frames dropped on a full queue.
func (r *Runner) Dropped() int64 {
	return r.dropped.Load()
}

// SetEnabled turns recognition on or off. Disabling also abandons any
// calibration session; frames queued before the call are still processed,
// later ones are ignored.
func (r *Runner) SetEnabled(enabled bool) error {
	return r.do(func() {
		if r.enabled == enabled {
			return
		}
		r.enabled = enabled
		if !enabled {
			r.engine.StopCalibration()
			r.engine.Reset()
		}
		log.Info("recognition toggled", "enabled", enabled)
	})
}

// Enabled reports whether recognition is on. It returns false when the
// runner is not running.
func (r *Runner) Enabled() bool {
	var enabled bool
	r.do(func() { enabled = r.enabled })
	return enabled
}

// StartCalibration begins a calibration session and enables recognition.
func (r *Runner) StartCalibration() error {
	var err error
	if doErr := r.do(func() {
		r.enabled = true
		err = r.engine.StartCalibration(r.clock.Now())
	}); doErr != nil {
		return doErr
	}
	return err
}

// StopCalibration abandons the active session. It reports whether one was
// running.
func (r *Runner) StopCalibration() bool {
	var stopped bool
	r.do(func() { stopped = r.engine.StopCalibration() })
	return stopped
}

// Progress reports calibration progress.
func (r *Runner) Progress() calibration.Progress {
	var p calibration.Progress
	if err := r.do(func() { p = r.engine.Progress() }); err != nil {
		return calibration.Progress{State: calibration.StateIdle}
	}
	return p
}

// Steps returns the calibration protocol.
func (r *Runner) Steps() []calibration.Step {
	return r.engine.Steps()
}

// History returns the recent committed events, newest first.
func (r *Runner) History() []gesture.Event {
	var events []gesture.Event
	r.do(func() { events = r.engine.Recognizer().History().Recent() })
	return events
}

// MatchSequence checks the recent history for pattern, given oldest first.
func (r *Runner) MatchSequence(pattern []gesture.Type, maxGap time.Duration, entity gesture.Entity) bool {
	var matched bool
	r.do(func() { matched = r.engine.Recognizer().History().MatchSequence(pattern, maxGap, entity) })
	return matched
}

// IsActive reports whether t is the committed gesture of entity. An empty
// entity matches either hand.
func (r *Runner) IsActive(t gesture.Type, entity gesture.Entity) bool {
	var active bool
	r.do(func() { active = r.engine.Recognizer().IsActive(t, entity) })
	return active
}

// Active returns the committed label of every entity that has one.
func (r *Runner) Active() map[gesture.Entity]gesture.Type {
	var active map[gesture.Entity]gesture.Type
	r.do(func() { active = r.engine.Recognizer().Active() })
	return active
}

// Feed pumps src into the runner until ctx is done or the source ends.
// Unlike Submit it waits for room in the queue, so no frame is dropped.
// io.EOF is a clean end; ErrNotRunning is returned if the runner stops first.
func (r *Runner) Feed(ctx context.Context, src source.Source) error {
	for {
		b, err := src.Next(ctx)
		if err == nil {
			err = r.submitWait(ctx, b)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// do executes fn on the loop and waits for it.
func (r *Runner) do(fn func()) error {
	if !r.running.Load() {
		return ErrNotRunning
	}
	done := make(chan struct{})
	cmd := func() {
		fn()
		r.arm()
		close(done)
	}
	select {
	case r.cmds <- cmd:
	case <-r.stopped:
		return ErrNotRunning
	}
	select {
	case <-done:
		return nil
	case <-r.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrNotRunning
		}
	}
}

func (r *Runner) process(b landmark.Bundle) {
	if !r.enabled {
		return
	}
	r.engine.ProcessBundle(b, r.clock.Now())
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.stopped)
	defer r.timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case <-r.quit:
			r.shutdown()
			return
		case cmd := <-r.cmds:
			cmd()
		case <-r.timer.C():
			r.engine.Tick(r.clock.Now())
			r.arm()
		}
	}
}

// arm points the timer at the active step's deadline, or disarms it.
func (r *Runner) arm() {
	r.timer.Stop()
	if deadline, ok := r.engine.Deadline(); ok {
		r.timer.Reset(deadline.Sub(r.clock.Now()))
	}
}

func (r *Runner) shutdown() {
	if r.engine.StopCalibration() {
		log.Info("calibration abandoned on shutdown")
	}
	log.Info("pipeline stopped")
}
