package gesture

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/abhinaya/internal/feature"
)

// Pose is the set of static hand predicates derived from finger states.
// Pinch is independent of the others and may co-occur with them.
type Pose struct {
	Fist     bool
	OpenHand bool
	Pointing bool
	Peace    bool
	Pinch    bool
}

// PoseOf derives the hand predicates from finger states. Fingers never seen
// count as retracted. Pinch needs both the thumb and index tips.
func PoseOf(fingers [feature.NumFingers]feature.FingerState, cfg Config) Pose {
	var ext [feature.NumFingers]bool
	for f := range fingers {
		ext[f] = fingers[f].Extended
	}
	thumb, index, middle, ring, pinky := ext[feature.Thumb], ext[feature.Index], ext[feature.Middle], ext[feature.Ring], ext[feature.Pinky]

	p := Pose{
		Fist:     !thumb && !index && !middle && !ring && !pinky,
		OpenHand: thumb && index && middle && ring && pinky,
		Pointing: !thumb && index && !middle && !ring && !pinky,
		Peace:    !thumb && index && middle && !ring && !pinky,
	}

	t, i := fingers[feature.Thumb], fingers[feature.Index]
	if t.HasTip && i.HasTip {
		p.Pinch = r3.Norm(r3.Sub(t.Tip, i.Tip)) < cfg.PinchDistance
	}
	return p
}

// Classify picks the hand label for one frame. Motion gestures win over
// static poses; the first matching rule wins.
func Classify(p Pose, v r3.Vec, cfg Config) Type {
	speed := feature.Speed(v)

	switch {
	case p.Fist && speed > cfg.PunchVelocity && v.Z < 0:
		return Punch
	case p.OpenHand && speed > cfg.BlockVelocity && v.Y < 0:
		return Block
	case p.OpenHand && speed > cfg.SwipeVelocity && math.Abs(v.X) > math.Abs(v.Y):
		if v.X > 0 {
			return SwipeRight
		}
		return SwipeLeft
	case p.Pinch:
		return Pinch
	case p.Pointing:
		return Point
	case p.Peace:
		return Peace
	case p.Fist:
		return Fist
	case p.OpenHand:
		return OpenHand
	}
	return None
}

// ClassifyBody derives a whole-body pose. It needs the nose, both shoulders
// and both hips; knees are only consulted for crouching.
func ClassifyBody(b feature.Body, cfg Config) Type {
	_, okNose := b.Joint(feature.Nose)
	ls, okLS := b.Joint(feature.LeftShoulder)
	rs, okRS := b.Joint(feature.RightShoulder)
	lh, okLH := b.Joint(feature.LeftHip)
	rh, okRH := b.Joint(feature.RightHip)
	if !okNose || !okLS || !okRS || !okLH || !okRH {
		return None
	}

	lk, okLK := b.Joint(feature.LeftKnee)
	rk, okRK := b.Joint(feature.RightKnee)
	if okLK && okRK && lk.Y > lh.Y+cfg.CrouchDepth && rk.Y > rh.Y+cfg.CrouchDepth {
		return Crouch
	}

	if ls.Y < lh.Y && rs.Y < rh.Y {
		lean := (ls.X+rs.X)/2 - (lh.X+rh.X)/2
		switch {
		case lean < -cfg.LeanOffset:
			return LeanLeft
		case lean > cfg.LeanOffset:
			return LeanRight
		}
		return Stand
	}
	return None
}

// ClassifyFace is a placeholder for expression recognition and never
// detects anything.
func ClassifyFace(position r3.Vec) Type {
	return None
}
