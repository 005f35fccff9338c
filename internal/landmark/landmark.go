// Package landmark defines the landmark frames delivered by the pose estimator
// and the exponential smoother applied to them.
package landmark

import "time"

// Hand landmark names in MediaPipe index order.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
var HandPointNames = [NumHandPoints]string{
	"wrist",
	"thumb_cmc", "thumb_mcp", "thumb_ip", "thumb_tip",
	"index_mcp", "index_pip", "index_dip", "index_tip",
	"middle_mcp", "middle_pip", "middle_dip", "middle_tip",
	"ring_mcp", "ring_pip", "ring_dip", "ring_tip",
	"pinky_mcp", "pinky_pip", "pinky_dip", "pinky_tip",
}

// NumHandPoints is the size of the MediaPipe hand topology.
const NumHandPoints = 21

// Point is a named landmark. Z and Score are optional.
type Point struct {
	Name  string   `json:"name"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Z     *float64 `json:"z,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// HasZ reports whether the point carries a depth coordinate.
func (p Point) HasZ() bool {
	return p.Z != nil
}

// ZOrZero returns the depth coordinate, treating a missing z as 0.
func (p Point) ZOrZero() float64 {
	if p.Z == nil {
		return 0
	}
	return *p.Z
}

// Float returns a pointer to v, for building optional coordinates.
func Float(v float64) *float64 {
	return &v
}

// Frame is the ordered set of points observed for one entity in one estimator emission.
type Frame struct {
	Points []Point `json:"points"`
}

// Len returns the number of points in the frame.
func (f Frame) Len() int {
	return len(f.Points)
}

// Get returns the first point with the given name.
func (f Frame) Get(name string) (Point, bool) {
	for _, p := range f.Points {
		if p.Name == name {
			return p, true
		}
	}
	return Point{}, false
}

// Hand is a hand frame tagged with the estimator's handedness ("Left" or "Right").
type Hand struct {
	Handedness string  `json:"handedness"`
	Points     []Point `json:"points"`
}

// Frame returns the hand's points as a Frame. Unnamed points of a full
// 21-point hand get their MediaPipe names.
func (h Hand) Frame() Frame {
	if len(h.Points) != NumHandPoints {
		return Frame{Points: h.Points}
	}
	points := make([]Point, len(h.Points))
	copy(points, h.Points)
	for i := range points {
		if points[i].Name == "" {
			points[i].Name = HandPointNames[i]
		}
	}
	return Frame{Points: points}
}

// Environment describes the capture conditions reported by the estimator.
type Environment struct {
	VideoWidth  int     `json:"videoWidth"`
	VideoHeight int     `json:"videoHeight"`
	AspectRatio float64 `json:"aspectRatio"`
}

// Bundle is one estimator emission covering every tracked entity kind.
// Empty slices mean the entity was not seen in this emission.
type Bundle struct {
	Timestamp   time.Time    `json:"timestamp"`
	Hands       []Hand       `json:"hands,omitempty"`
	Body        []Point      `json:"body,omitempty"`
	Face        []Point      `json:"face,omitempty"`
	Environment *Environment `json:"environment,omitempty"`
}

// Empty reports whether the bundle carries no landmarks at all.
func (b Bundle) Empty() bool {
	return len(b.Hands) == 0 && len(b.Body) == 0 && len(b.Face) == 0
}
