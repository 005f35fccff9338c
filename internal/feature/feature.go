// Package feature derives geometric features from smoothed landmark frames:
// finger extension, inter-point distances and per-frame velocities.
package feature

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/abhinaya/internal/landmark"
)

// DefaultFingerLength is the minimum base-to-tip length, in input units,
// for a finger to count as extended.
const DefaultFingerLength = 30

// Finger identifies one of the five digits.
type Finger int

// Fingers in thumb-to-pinky order.
const (
	Thumb Finger = iota
	Index
	Middle
	Ring
	Pinky
	NumFingers
)

var fingerNames = [NumFingers]string{"thumb", "index", "middle", "ring", "pinky"}

// String returns the landmark prefix of the finger.
func (f Finger) String() string {
	if f < 0 || f >= NumFingers {
		return "unknown"
	}
	return fingerNames[f]
}

// BaseName returns the MCP landmark name of the finger.
func (f Finger) BaseName() string { return f.String() + "_mcp" }

// TipName returns the fingertip landmark name of the finger.
func (f Finger) TipName() string { return f.String() + "_tip" }

// Vec converts a landmark to a vector, treating a missing z as 0.
func Vec(p landmark.Point) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.ZOrZero()}
}

// Distance returns the 3D Euclidean distance between two landmarks.
func Distance(a, b landmark.Point) float64 {
	return r3.Norm(r3.Sub(Vec(a), Vec(b)))
}

// Velocity returns the displacement between two consecutive positions.
// It is expressed per observed frame, not per unit of time.
func Velocity(current, previous r3.Vec) r3.Vec {
	return r3.Sub(current, previous)
}

// Speed returns the magnitude of a velocity.
func Speed(v r3.Vec) float64 {
	return r3.Norm(v)
}

// FingerExtended reports whether the finger with base b and tip t points away
// from wrist w and is longer than minLength. The test is planar (x, y).
func FingerExtended(w, b, t landmark.Point, minLength float64) bool {
	wristToBase := r3.Vec{X: b.X - w.X, Y: b.Y - w.Y}
	wristToTip := r3.Vec{X: t.X - w.X, Y: t.Y - w.Y}
	length := math.Hypot(t.X-b.X, t.Y-b.Y)
	return r3.Dot(wristToBase, wristToTip) > 0 && length > minLength
}

// FingerState is the extension flag and tip position of one finger.
// OK is false when the frame lacked the points needed for the extension test;
// HasTip is false when the tip itself was missing.
type FingerState struct {
	Extended bool
	Tip      r3.Vec
	HasTip   bool
	OK       bool
}

// Hand holds the features of one hand frame.
type Hand struct {
	Wrist    r3.Vec
	HasWrist bool
	Fingers  [NumFingers]FingerState
}

// ExtractHand computes wrist position and finger states for a hand frame.
// Fingers whose wrist, base or tip are missing are left with OK=false.
func ExtractHand(frame landmark.Frame, minLength float64) Hand {
	var h Hand

	wrist, ok := frame.Get("wrist")
	if ok {
		h.Wrist = Vec(wrist)
		h.HasWrist = true
	}

	for f := Thumb; f < NumFingers; f++ {
		tip, okTip := frame.Get(f.TipName())
		if !okTip {
			continue
		}
		state := FingerState{Tip: Vec(tip), HasTip: true}
		if base, okBase := frame.Get(f.BaseName()); okBase && ok {
			state.Extended = FingerExtended(wrist, base, tip, minLength)
			state.OK = true
		}
		h.Fingers[f] = state
	}

	return h
}

// Body joint names used by pose classification.
const (
	Nose          = "nose"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	NoseTip       = "noseTip"
)

// Body holds the joints of a body frame that are present.
type Body struct {
	Joints map[string]r3.Vec
}

// ExtractBody collects the pose-relevant joints of a body frame.
func ExtractBody(frame landmark.Frame) Body {
	b := Body{Joints: make(map[string]r3.Vec)}
	for _, name := range []string{Nose, LeftShoulder, RightShoulder, LeftHip, RightHip, LeftKnee, RightKnee} {
		if p, ok := frame.Get(name); ok {
			b.Joints[name] = Vec(p)
		}
	}
	return b
}

// Joint returns a named joint.
func (b Body) Joint(name string) (r3.Vec, bool) {
	v, ok := b.Joints[name]
	return v, ok
}

// Center returns the shoulder midpoint, which tracks the body position.
func (b Body) Center() (r3.Vec, bool) {
	l, okL := b.Joints[LeftShoulder]
	r, okR := b.Joints[RightShoulder]
	if !okL || !okR {
		return r3.Vec{}, false
	}
	return r3.Scale(0.5, r3.Add(l, r)), true
}

// ExtractFace returns the nose tip position of a face frame.
func ExtractFace(frame landmark.Frame) (r3.Vec, bool) {
	p, ok := frame.Get(NoseTip)
	if !ok {
		return r3.Vec{}, false
	}
	return Vec(p), true
}
