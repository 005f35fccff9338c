package gesture

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/abhinaya/internal/feature"
	"github.com/ayusman/abhinaya/internal/landmark"
)

// EntityState is the tracked state of one hand, body or face.
type EntityState struct {
	Entity           Entity
	Position         r3.Vec
	PreviousPosition r3.Vec
	HasPosition      bool
	HasPrevious      bool
	Velocity         r3.Vec
	Fingers          [feature.NumFingers]feature.FingerState

	// Committed is the last committed label; for the body it is the current pose.
	Committed Type
	// Candidate is the label waiting out its hold time, None when idle.
	Candidate      Type
	CandidateSince time.Time
	LastCommit     time.Time
}

// moveTo shifts the current position into the previous one and recomputes
// the per-frame velocity.
func (s *EntityState) moveTo(pos r3.Vec) {
	if s.HasPosition {
		s.PreviousPosition = s.Position
		s.HasPrevious = true
		s.Velocity = feature.Velocity(pos, s.PreviousPosition)
	}
	s.Position = pos
	s.HasPosition = true
}

// lose forgets everything that only holds while the entity stays in view.
// The committed label and the cooldown survive.
func (s *EntityState) lose() {
	s.Position = r3.Vec{}
	s.PreviousPosition = r3.Vec{}
	s.HasPosition = false
	s.HasPrevious = false
	s.Velocity = r3.Vec{}
	s.Fingers = [feature.NumFingers]feature.FingerState{}
	s.Candidate = None
	s.CandidateSince = time.Time{}
}

// advance runs the hold-time and cooldown hysteresis for one candidate and
// reports whether it committed.
func (s *EntityState) advance(candidate Type, now time.Time, cfg Config) bool {
	if candidate == None || candidate == s.Committed {
		s.Candidate = None
		s.CandidateSince = time.Time{}
		return false
	}

	if candidate != s.Candidate {
		s.Candidate = candidate
		s.CandidateSince = now
	}

	if now.Sub(s.CandidateSince) < cfg.HoldTime {
		return false
	}
	if !s.LastCommit.IsZero() && now.Sub(s.LastCommit) < cfg.Cooldown {
		return false
	}

	s.Committed = candidate
	s.LastCommit = now
	s.Candidate = None
	s.CandidateSince = time.Time{}
	return true
}

// Recognizer owns the per-entity states and the history of committed events.
// It is not safe for concurrent use; the pipeline serializes access.
type Recognizer struct {
	config  Config
	states  map[Entity]*EntityState
	history *History
}

// NewRecognizer creates a Recognizer with the given thresholds.
func NewRecognizer(cfg Config) *Recognizer {
	r := &Recognizer{
		config:  cfg,
		history: NewHistory(),
	}
	r.Reset()
	return r
}

// Config returns the thresholds in use.
func (r *Recognizer) Config() Config {
	return r.config
}

// Reset forgets every entity state and clears the history.
func (r *Recognizer) Reset() {
	r.states = make(map[Entity]*EntityState, len(Entities))
	for _, e := range Entities {
		r.states[e] = &EntityState{Entity: e}
	}
	r.history.Clear()
}

// ObserveHand feeds one hand frame and returns the event if a gesture committed.
// Missing points leave the dependent parts of the state untouched.
func (r *Recognizer) ObserveHand(entity Entity, frame landmark.Frame, now time.Time) (Event, bool) {
	s, ok := r.states[entity]
	if !ok || !entity.IsHand() {
		return Event{}, false
	}

	h := feature.ExtractHand(frame, r.config.FingerLength)
	if h.HasWrist {
		s.moveTo(h.Wrist)
	}
	for f, fs := range h.Fingers {
		if fs.HasTip {
			s.Fingers[f].Tip = fs.Tip
			s.Fingers[f].HasTip = true
		}
		if fs.OK {
			s.Fingers[f].Extended = fs.Extended
			s.Fingers[f].OK = true
		}
	}

	candidate := None
	if s.HasPosition {
		candidate = Classify(PoseOf(s.Fingers, r.config), s.Velocity, r.config)
	}
	if !s.advance(candidate, now, r.config) {
		return Event{}, false
	}

	e := Event{
		Type:      s.Committed,
		Entity:    entity,
		Timestamp: now,
		Position:  s.Position,
		Velocity:  s.Velocity,
	}
	r.history.Add(e)
	return e, true
}

// ObserveBody feeds one body frame. The pose replaces the body's committed
// label immediately; body poses are not recorded in the history.
func (r *Recognizer) ObserveBody(frame landmark.Frame) Type {
	s := r.states[Body]
	b := feature.ExtractBody(frame)
	if center, ok := b.Center(); ok {
		s.moveTo(center)
	}
	s.Committed = ClassifyBody(b, r.config)
	return s.Committed
}

// ObserveFace feeds one face frame.
func (r *Recognizer) ObserveFace(frame landmark.Frame) Type {
	s := r.states[Face]
	if pos, ok := feature.ExtractFace(frame); ok {
		s.moveTo(pos)
	}
	s.Committed = ClassifyFace(s.Position)
	return s.Committed
}

// Lose marks entity as absent from the current frame. A pending candidate
// restarts its hold time and the next position starts a fresh velocity.
func (r *Recognizer) Lose(entity Entity) {
	if s, ok := r.states[entity]; ok {
		s.lose()
	}
}

// IsActive reports whether t is the committed label of entity. An empty
// entity matches either hand.
func (r *Recognizer) IsActive(t Type, entity Entity) bool {
	if t == None {
		return false
	}
	if entity == "" {
		return r.states[LeftHand].Committed == t || r.states[RightHand].Committed == t
	}
	s, ok := r.states[entity]
	return ok && s.Committed == t
}

// State returns a copy of an entity's state.
func (r *Recognizer) State(entity Entity) (EntityState, bool) {
	s, ok := r.states[entity]
	if !ok {
		return EntityState{}, false
	}
	return *s, true
}

// Active returns the committed label of every entity that has one.
func (r *Recognizer) Active() map[Entity]Type {
	active := make(map[Entity]Type)
	for e, s := range r.states {
		if s.Committed != None {
			active[e] = s.Committed
		}
	}
	return active
}

// History returns the committed event log.
func (r *Recognizer) History() *History {
	return r.history
}
