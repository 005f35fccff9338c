// Package pipeline composes smoothing, feature extraction, gesture
// recognition and calibration into one frame-driven engine, and owns the
// goroutine that feeds it.
package pipeline

import (
	"fmt"
	"time"

	"github.com/ayusman/abhinaya/internal/calibration"
	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/log"
)

// EventKind names an outgoing pipeline event.
type EventKind string

// Event kinds. The calibration kinds share their names with calibration
// notices.
const (
	KindGesture              EventKind = "gesture-detected"
	KindStepStarted          EventKind = EventKind(calibration.NoticeStepStarted)
	KindCalibrationGesture   EventKind = EventKind(calibration.NoticeGestureDetected)
	KindStepCompleted        EventKind = EventKind(calibration.NoticeStepCompleted)
	KindCalibrationCompleted EventKind = EventKind(calibration.NoticeCompleted)
)

// Event is what observers receive. Exactly one of Gesture, Step and Report
// is set, depending on Kind.
type Event struct {
	Kind      EventKind               `json:"kind"`
	Timestamp time.Time               `json:"timestamp"`
	Gesture   *gesture.Event          `json:"gesture,omitempty"`
	Step      *calibration.StepNotice `json:"step,omitempty"`
	Report    *calibration.Report     `json:"report,omitempty"`
}

// Observer receives pipeline events. Observers run on the pipeline's
// goroutine and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Config holds the engine's tunables.
type Config struct {
	SmoothingFactor float64
	Gesture         gesture.Config
	Steps           []calibration.Step
	MinConfidence   float64
}

// DefaultConfig returns the stock tuning and calibration protocol.
func DefaultConfig() Config {
	return Config{
		SmoothingFactor: landmark.DefaultSmoothingFactor,
		Gesture:         gesture.DefaultConfig(),
		Steps:           calibration.DefaultSteps(),
		MinConfidence:   calibration.DefaultMinConfidence,
	}
}

// Engine is the synchronous pipeline. It is not safe for concurrent use;
// Runner serializes access to it.
type Engine struct {
	smoother   *landmark.Smoother
	recognizer *gesture.Recognizer
	machine    *calibration.Machine
	observers  []Observer
}

// NewEngine builds an engine. storage receives finished calibration reports
// and may be nil.
func NewEngine(cfg Config, storage calibration.Storage) (*Engine, error) {
	if err := cfg.Gesture.Validate(); err != nil {
		return nil, fmt.Errorf("gesture config: %w", err)
	}
	smoother, err := landmark.NewSmoother(cfg.SmoothingFactor)
	if err != nil {
		return nil, err
	}
	machine, err := calibration.NewMachine(cfg.Steps, storage, calibration.WithMinConfidence(cfg.MinConfidence))
	if err != nil {
		return nil, fmt.Errorf("calibration steps: %w", err)
	}
	return &Engine{
		smoother:   smoother,
		recognizer: gesture.NewRecognizer(cfg.Gesture),
		machine:    machine,
	}, nil
}

// Subscribe registers an observer. Observers are invoked in registration
// order.
func (e *Engine) Subscribe(o Observer) {
	e.observers = append(e.observers, o)
}

// ProcessBundle runs one estimator emission through every stage. Hands with
// unknown handedness are skipped. Entities absent from b lose their
// smoothing baseline and pending candidate.
func (e *Engine) ProcessBundle(b landmark.Bundle, now time.Time) {
	e.Tick(now)

	if b.Environment != nil {
		e.machine.SetEnvironment(*b.Environment)
	}

	seen := make(map[gesture.Entity]bool, len(gesture.Entities))
	for _, h := range b.Hands {
		entity, ok := gesture.EntityForHandedness(h.Handedness)
		if !ok {
			log.Debug("skipping hand with unknown handedness", "handedness", h.Handedness)
			continue
		}
		seen[entity] = true
		frame := e.smoother.Apply(string(entity), h.Frame())
		ev, committed := e.recognizer.ObserveHand(entity, frame, now)
		if !committed {
			continue
		}
		log.Debug("gesture committed", "gesture", ev.Type, "entity", ev.Entity)
		e.emit(Event{Kind: KindGesture, Timestamp: now, Gesture: &ev})
		e.emitNotices(e.machine.Observe(ev))
	}

	if len(b.Body) > 0 {
		seen[gesture.Body] = true
		frame := e.smoother.Apply(string(gesture.Body), landmark.Frame{Points: b.Body})
		e.recognizer.ObserveBody(frame)
	}
	if len(b.Face) > 0 {
		seen[gesture.Face] = true
		frame := e.smoother.Apply(string(gesture.Face), landmark.Frame{Points: b.Face})
		e.recognizer.ObserveFace(frame)
	}

	// An entity missing from the bundle is re-detected from scratch: no
	// smoothing against the old baseline and a fresh hold time.
	for _, entity := range gesture.Entities {
		if !seen[entity] {
			e.smoother.Reset(string(entity))
			e.recognizer.Lose(entity)
		}
	}
}

// Tick completes calibration steps whose duration has elapsed.
func (e *Engine) Tick(now time.Time) {
	e.emitNotices(e.machine.Tick(now))
}

// StartCalibration begins a calibration session.
func (e *Engine) StartCalibration(now time.Time) error {
	notices, err := e.machine.Start(now)
	if err != nil {
		return err
	}
	e.emitNotices(notices)
	return nil
}

// StopCalibration abandons the active session. It reports whether one was
// running.
func (e *Engine) StopCalibration() bool {
	return e.machine.Stop()
}

// Deadline returns when the active calibration step times out.
func (e *Engine) Deadline() (time.Time, bool) {
	return e.machine.Deadline()
}

// Progress reports calibration progress.
func (e *Engine) Progress() calibration.Progress {
	return e.machine.Progress()
}

// Steps returns the calibration protocol.
func (e *Engine) Steps() []calibration.Step {
	return e.machine.Steps()
}

// Recognizer exposes the gesture recognizer.
func (e *Engine) Recognizer() *gesture.Recognizer {
	return e.recognizer
}

// Reset forgets smoothing baselines and recognizer state.
func (e *Engine) Reset() {
	e.smoother.ResetAll()
	e.recognizer.Reset()
}

func (e *Engine) emitNotices(notices []calibration.Notice) {
	for _, n := range notices {
		e.emit(Event{Kind: EventKind(n.Kind), Timestamp: n.At, Step: n.Step, Report: n.Report})
	}
}

func (e *Engine) emit(ev Event) {
	for _, o := range e.observers {
		o.OnEvent(ev)
	}
}
