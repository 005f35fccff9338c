// Package gesture turns hand, body and face features into discrete gesture
// labels and keeps the log of committed gestures.
package gesture

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Type is a gesture or pose label.
type Type string

// None is the absent label.
const None Type = ""

// Hand gestures.
const (
	// Punch is a fist moving forward fast.
	Punch Type = "punch"
	// Block is an open hand moving upward fast.
	Block Type = "block"
	// SwipeLeft is an open hand moving fast towards negative x.
	SwipeLeft Type = "swipe_left"
	// SwipeRight is an open hand moving fast towards positive x.
	SwipeRight Type = "swipe_right"
	// Pinch is the thumb tip touching the index tip.
	Pinch Type = "pinch"
	// Point is only the index finger extended.
	Point Type = "point"
	// Peace is the index and middle fingers extended.
	Peace Type = "peace"
	// Fist is every finger retracted.
	Fist Type = "fist"
	// OpenHand is every finger extended.
	OpenHand Type = "open_hand"
)

// Body poses.
const (
	Stand     Type = "stand"
	Crouch    Type = "crouch"
	LeanLeft  Type = "lean_left"
	LeanRight Type = "lean_right"
)

// HandGestures lists every hand label in classification priority order.
var HandGestures = []Type{Punch, Block, SwipeLeft, SwipeRight, Pinch, Point, Peace, Fist, OpenHand}

// Entity identifies a tracked hand, body or face.
type Entity string

// Tracked entities.
const (
	LeftHand  Entity = "left_hand"
	RightHand Entity = "right_hand"
	Body      Entity = "body"
	Face      Entity = "face"
)

// Entities lists every tracked entity.
var Entities = []Entity{LeftHand, RightHand, Body, Face}

// IsHand reports whether the entity is one of the two hands.
func (e Entity) IsHand() bool {
	return e == LeftHand || e == RightHand
}

// Valid reports whether the entity is known.
func (e Entity) Valid() bool {
	switch e {
	case LeftHand, RightHand, Body, Face:
		return true
	}
	return false
}

// EntityForHandedness maps the estimator's handedness label to a hand entity.
func EntityForHandedness(handedness string) (Entity, bool) {
	switch strings.ToLower(handedness) {
	case "left":
		return LeftHand, true
	case "right":
		return RightHand, true
	}
	return "", false
}

// Event is a committed gesture. It is never modified after creation.
type Event struct {
	Type      Type
	Entity    Entity
	Timestamp time.Time
	Position  r3.Vec
	Velocity  r3.Vec
}

// Validate checks that the event carries a label, a known entity and a timestamp.
func (e Event) Validate() error {
	if e.Type == None {
		return errors.New("gesture event has no type")
	}
	if !e.Entity.Valid() {
		return errors.New("gesture event has unknown entity " + string(e.Entity))
	}
	if e.Timestamp.IsZero() {
		return errors.New("gesture event has no timestamp")
	}
	return nil
}

// Vector is the wire form of an r3.Vec.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewVector converts an r3.Vec.
func NewVector(v r3.Vec) Vector {
	return Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// Vec converts back to an r3.Vec.
func (v Vector) Vec() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

type eventJSON struct {
	Type      Type   `json:"type"`
	Entity    Entity `json:"entity"`
	Timestamp int64  `json:"timestamp"`
	Position  Vector `json:"position"`
	Velocity  Vector `json:"velocity"`
}

// MarshalJSON encodes the event with a millisecond timestamp.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Type:      e.Type,
		Entity:    e.Entity,
		Timestamp: e.Timestamp.UnixMilli(),
		Position:  NewVector(e.Position),
		Velocity:  NewVector(e.Velocity),
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{
		Type:      raw.Type,
		Entity:    raw.Entity,
		Timestamp: time.UnixMilli(raw.Timestamp),
		Position:  raw.Position.Vec(),
		Velocity:  raw.Velocity.Vec(),
	}
	return nil
}
