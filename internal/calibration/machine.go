package calibration

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/log"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("calibration already running")
	// ErrNotRunning is returned when an operation needs an active session.
	ErrNotRunning = errors.New("calibration not running")
	// ErrNoSteps is returned for a protocol without steps.
	ErrNoSteps = errors.New("calibration has no steps")
)

// Storage receives finished reports.
type Storage interface {
	SaveReport(r *Report) error
}

// State is the machine's lifecycle state.
type State string

// Machine states.
const (
	StateIdle       State = "idle"
	StateStepActive State = "step_active"
	StateFinalizing State = "finalizing"
)

// NoticeKind names an outgoing calibration notification.
type NoticeKind string

// Notification kinds.
const (
	NoticeStepStarted     NoticeKind = "calibration-step-started"
	NoticeGestureDetected NoticeKind = "calibration-gesture-detected"
	NoticeStepCompleted   NoticeKind = "calibration-step-completed"
	NoticeCompleted       NoticeKind = "calibration-completed"
)

// StepNotice is the payload of step notifications. Gesture and Detected
// are only set on gesture-detected notices.
type StepNotice struct {
	StepID              string         `json:"stepId"`
	StepIndex           int            `json:"stepIndex"`
	AllRequiredDetected bool           `json:"allRequiredDetected"`
	Gesture             gesture.Type   `json:"gesture,omitempty"`
	Detected            []gesture.Type `json:"detected,omitempty"`
}

// Notice is one notification produced by a transition.
type Notice struct {
	Kind   NoticeKind
	At     time.Time
	Step   *StepNotice
	Report *Report
}

// Progress describes how far the active session has got.
type Progress struct {
	State           State   `json:"state"`
	StepID          string  `json:"stepId,omitempty"`
	CurrentStep     int     `json:"currentStep"`
	TotalSteps      int     `json:"totalSteps"`
	PercentComplete float64 `json:"percentComplete"`
}

// Option configures a Machine.
type Option func(*Machine)

// WithMinConfidence overrides the per-category warning threshold.
func WithMinConfidence(v float64) Option {
	return func(m *Machine) {
		m.minConfidence = v
	}
}

// session is the state of one calibration run.
type session struct {
	startedAt   time.Time
	stepStart   time.Time
	detected    map[gesture.Type]bool
	results     []StepResult
	motionRange map[gesture.Entity]Bounds
}

// Machine is the calibration state machine. Time is passed in by the caller;
// the machine never reads the clock and never blocks. It is not safe for
// concurrent use.
type Machine struct {
	steps         []Step
	storage       Storage
	minConfidence float64
	environment   *landmark.Environment

	state   State
	index   int
	session *session
}

// NewMachine creates an idle machine. storage may be nil.
func NewMachine(steps []Step, storage Storage, opts ...Option) (*Machine, error) {
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	m := &Machine{
		steps:         append([]Step(nil), steps...),
		storage:       storage,
		minConfidence: DefaultMinConfidence,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	return m.state
}

// Active reports whether a session is running.
func (m *Machine) Active() bool {
	return m.state == StateStepActive
}

// Steps returns the protocol.
func (m *Machine) Steps() []Step {
	return append([]Step(nil), m.steps...)
}

// SetEnvironment records the capture conditions for the next report.
func (m *Machine) SetEnvironment(env landmark.Environment) {
	m.environment = &env
}

// Start begins a new session at step 0.
func (m *Machine) Start(now time.Time) ([]Notice, error) {
	if m.state != StateIdle {
		return nil, ErrAlreadyRunning
	}

	m.session = &session{
		startedAt:   now,
		motionRange: make(map[gesture.Entity]Bounds),
	}
	log.Info("calibration started", "steps", len(m.steps))

	notices := m.enterStep(0, now)
	return append(notices, m.Tick(now)...), nil
}

// Stop abandons the active session without producing a report. It reports
// whether a session was running.
func (m *Machine) Stop() bool {
	if m.state != StateStepActive {
		return false
	}
	log.Info("calibration stopped", "step", m.steps[m.index].ID)
	m.reset()
	return true
}

// Deadline returns when the active step is forced to complete.
func (m *Machine) Deadline() (time.Time, bool) {
	if m.state != StateStepActive {
		return time.Time{}, false
	}
	return m.session.stepStart.Add(m.steps[m.index].Duration), true
}

// Observe feeds a committed gesture. Required gestures are marked detected,
// widen the entity's motion range and produce a gesture-detected notice; the
// step completes early once every required gesture has been seen.
func (m *Machine) Observe(e gesture.Event) []Notice {
	if m.state != StateStepActive {
		return nil
	}

	step := m.steps[m.index]
	if !step.Requires(e.Type) {
		return nil
	}

	m.session.detected[e.Type] = true
	if b, ok := m.session.motionRange[e.Entity]; ok {
		m.session.motionRange[e.Entity] = b.Extend(e.Position)
	} else {
		m.session.motionRange[e.Entity] = newBounds(e.Position)
	}

	all := m.allDetected()
	var detected []gesture.Type
	for _, g := range step.RequiredGestures {
		if m.session.detected[g] {
			detected = append(detected, g)
		}
	}
	notices := []Notice{{
		Kind: NoticeGestureDetected,
		At:   e.Timestamp,
		Step: &StepNotice{
			StepID:              step.ID,
			StepIndex:           m.index,
			AllRequiredDetected: all,
			Gesture:             e.Type,
			Detected:            detected,
		},
	}}
	if !all {
		return notices
	}
	return append(notices, m.completeStep(e.Timestamp)...)
}

// Tick completes every step whose duration has elapsed by now.
func (m *Machine) Tick(now time.Time) []Notice {
	var notices []Notice
	for m.state == StateStepActive {
		deadline, _ := m.Deadline()
		if now.Before(deadline) {
			break
		}
		notices = append(notices, m.completeStep(now)...)
	}
	return notices
}

// Progress reports the position within the protocol.
func (m *Machine) Progress() Progress {
	p := Progress{State: m.state, TotalSteps: len(m.steps)}
	if m.state != StateStepActive {
		return p
	}
	p.StepID = m.steps[m.index].ID
	p.CurrentStep = m.index + 1
	p.PercentComplete = float64(m.index) / float64(len(m.steps)) * 100
	return p
}

func (m *Machine) enterStep(i int, now time.Time) []Notice {
	m.state = StateStepActive
	m.index = i
	m.session.stepStart = now
	m.session.detected = make(map[gesture.Type]bool, len(m.steps[i].RequiredGestures))
	for _, g := range m.steps[i].RequiredGestures {
		m.session.detected[g] = false
	}

	log.Debug("calibration step started", "step", m.steps[i].ID, "index", i)
	return []Notice{{
		Kind: NoticeStepStarted,
		At:   now,
		Step: &StepNotice{StepID: m.steps[i].ID, StepIndex: i},
	}}
}

func (m *Machine) allDetected() bool {
	for _, ok := range m.session.detected {
		if !ok {
			return false
		}
	}
	return true
}

func (m *Machine) completeStep(now time.Time) []Notice {
	step := m.steps[m.index]
	all := m.allDetected()

	detected := make(map[gesture.Type]bool, len(m.session.detected))
	for g, ok := range m.session.detected {
		detected[g] = ok
	}
	m.session.results = append(m.session.results, StepResult{
		ID:                  step.ID,
		Category:            step.Category,
		Completed:           true,
		AllRequiredDetected: all,
		Detected:            detected,
		StartedAt:           m.session.stepStart,
		Duration:            now.Sub(m.session.stepStart),
	})

	log.Debug("calibration step completed", "step", step.ID, "all_detected", all)
	notices := []Notice{{
		Kind: NoticeStepCompleted,
		At:   now,
		Step: &StepNotice{StepID: step.ID, StepIndex: m.index, AllRequiredDetected: all},
	}}

	if m.index+1 < len(m.steps) {
		return append(notices, m.enterStep(m.index+1, now)...)
	}
	return append(notices, m.finalize(now))
}

func (m *Machine) finalize(now time.Time) Notice {
	m.state = StateFinalizing

	report := &Report{
		ID:          uuid.New().String(),
		StartedAt:   m.session.startedAt,
		CompletedAt: now,
		Steps:       m.session.results,
		MotionRange: m.session.motionRange,
		Environment: m.environment,
	}
	summarize(report, m.steps, m.minConfidence)

	if m.storage != nil {
		if err := m.storage.SaveReport(report); err != nil {
			log.Error("failed to store calibration report", "report", report.ID, "error", err)
		}
	}
	log.Info("calibration completed", "report", report.ID, "ready", report.Ready, "missed", len(report.Missed))

	m.reset()
	return Notice{Kind: NoticeCompleted, At: now, Report: report}
}

func (m *Machine) reset() {
	m.state = StateIdle
	m.index = 0
	m.session = nil
}
