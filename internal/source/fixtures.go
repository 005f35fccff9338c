package source

import (
	"time"

	"github.com/ayusman/abhinaya/internal/landmark"
)

// Offsets of the synthetic hand used by the fixtures, in input units.
const (
	fixtureBaseRise      = 40
	fixtureExtendedRise  = 100
	fixtureRetractedRise = 45
	fixtureFingerSpacing = 15
)

// HandPose builds a 21-point hand with the wrist at (x, y, z) and the given
// fingers (thumb to pinky) extended straight up. Retracted fingers curl to
// just past their base.
func HandPose(handedness string, x, y, z float64, extended [5]bool) landmark.Hand {
	h := landmark.Hand{
		Handedness: handedness,
		Points:     make([]landmark.Point, landmark.NumHandPoints),
	}
	for i := range h.Points {
		h.Points[i] = landmark.Point{Name: landmark.HandPointNames[i], X: x, Y: y, Z: landmark.Float(z)}
	}

	// base and tip indices per finger in MediaPipe order
	fingers := [5][2]int{{2, 4}, {5, 8}, {9, 12}, {13, 16}, {17, 20}}
	for f, idx := range fingers {
		bx := x + float64(f-2)*fixtureFingerSpacing
		h.Points[idx[0]].X = bx
		h.Points[idx[0]].Y = y - fixtureBaseRise

		rise := float64(fixtureRetractedRise)
		if extended[f] {
			rise = fixtureExtendedRise
		}
		for j := idx[0] + 1; j <= idx[1]; j++ {
			h.Points[j].X = bx
			h.Points[j].Y = y - rise
		}
	}
	return h
}

// OpenHand returns a hand with every finger extended.
func OpenHand(handedness string, x, y, z float64) landmark.Hand {
	return HandPose(handedness, x, y, z, [5]bool{true, true, true, true, true})
}

// Fist returns a hand with every finger retracted.
func Fist(handedness string, x, y, z float64) landmark.Hand {
	return HandPose(handedness, x, y, z, [5]bool{})
}

// Pointing returns a hand with only the index finger extended.
func Pointing(handedness string, x, y, z float64) landmark.Hand {
	return HandPose(handedness, x, y, z, [5]bool{false, true, false, false, false})
}

// Peace returns a hand with the index and middle fingers extended.
func Peace(handedness string, x, y, z float64) landmark.Hand {
	return HandPose(handedness, x, y, z, [5]bool{false, true, true, false, false})
}

// Pinch returns a curled hand whose thumb tip touches the index tip.
func Pinch(handedness string, x, y, z float64) landmark.Hand {
	h := Fist(handedness, x, y, z)
	indexTip := h.Points[8]
	for _, i := range []int{3, 4} {
		h.Points[i].X = indexTip.X
		h.Points[i].Y = indexTip.Y
	}
	return h
}

// Body returns a body frame with shoulders 100 units above the hips.
// lean shifts the shoulders horizontally; kneeDrop places the knees
// that far below the hips.
func Body(x, y, lean, kneeDrop float64) []landmark.Point {
	return []landmark.Point{
		{Name: "nose", X: x + lean, Y: y - 150},
		{Name: "left_shoulder", X: x + lean - 40, Y: y - 100},
		{Name: "right_shoulder", X: x + lean + 40, Y: y - 100},
		{Name: "left_hip", X: x - 30, Y: y},
		{Name: "right_hip", X: x + 30, Y: y},
		{Name: "left_knee", X: x - 30, Y: y + kneeDrop},
		{Name: "right_knee", X: x + 30, Y: y + kneeDrop},
	}
}

// Face returns a minimal face frame with the nose tip at (x, y).
func Face(x, y float64) []landmark.Point {
	return []landmark.Point{
		{Name: "noseTip", X: x, Y: y, Z: landmark.Float(0)},
		{Name: "leftEye", X: x - 20, Y: y - 20},
		{Name: "rightEye", X: x + 20, Y: y - 20},
	}
}

// Bundle wraps hands in a bundle stamped ms milliseconds after the Unix epoch.
func Bundle(ms int64, hands ...landmark.Hand) landmark.Bundle {
	return landmark.Bundle{Timestamp: time.UnixMilli(ms).UTC(), Hands: hands}
}
