// Package calibration drives the onboarding protocol: an ordered list of
// timed steps that each wait for a set of gestures, aggregated into a report.
package calibration

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/abhinaya/internal/gesture"
)

// Category groups steps for confidence scoring.
type Category string

// Step categories.
const (
	CategorySetup   Category = "setup"
	CategoryHand    Category = "hand"
	CategoryMotion  Category = "motion"
	CategoryGesture Category = "gesture"
	CategoryPose    Category = "pose"
	CategoryFace    Category = "face"
)

// Step is one stage of the protocol.
type Step struct {
	ID               string
	Name             string
	Instructions     string
	Category         Category
	RequiredGestures []gesture.Type
	Duration         time.Duration
}

// Requires reports whether t is one of the step's required gestures.
func (s Step) Requires(t gesture.Type) bool {
	for _, r := range s.RequiredGestures {
		if r == t {
			return true
		}
	}
	return false
}

// DefaultSteps returns the stock protocol.
func DefaultSteps() []Step {
	return []Step{
		{
			ID:           "intro",
			Name:         "Calibration Setup",
			Instructions: "Position yourself in front of the camera with your full upper body visible.",
			Category:     CategorySetup,
			Duration:     3 * time.Second,
		},
		{
			ID:               "hand-visibility",
			Name:             "Hand Visibility Check",
			Instructions:     "Raise both hands in front of you with palms facing the camera.",
			Category:         CategoryHand,
			RequiredGestures: []gesture.Type{gesture.OpenHand},
			Duration:         5 * time.Second,
		},
		{
			ID:               "range-of-motion",
			Name:             "Range of Motion",
			Instructions:     "Move your hands from side to side, covering your full comfortable range of motion.",
			Category:         CategoryMotion,
			RequiredGestures: []gesture.Type{gesture.SwipeLeft, gesture.SwipeRight},
			Duration:         5 * time.Second,
		},
		{
			ID:               "punch-calibration",
			Name:             "Punch Calibration",
			Instructions:     "Perform a few punching motions toward the camera.",
			Category:         CategoryMotion,
			RequiredGestures: []gesture.Type{gesture.Punch},
			Duration:         5 * time.Second,
		},
		{
			ID:               "block-calibration",
			Name:             "Block Calibration",
			Instructions:     "Perform a few blocking motions with your open hands.",
			Category:         CategoryMotion,
			RequiredGestures: []gesture.Type{gesture.Block},
			Duration:         5 * time.Second,
		},
		{
			ID:               "gesture-test",
			Name:             "Gesture Test",
			Instructions:     "Try making a fist, pointing, and pinching to test gesture recognition.",
			Category:         CategoryGesture,
			RequiredGestures: []gesture.Type{gesture.Fist, gesture.Point, gesture.Pinch},
			Duration:         8 * time.Second,
		},
		{
			ID:           "completion",
			Name:         "Calibration Complete",
			Instructions: "Great job! Your motion tracking is now calibrated.",
			Category:     CategorySetup,
			Duration:     3 * time.Second,
		},
	}
}

// ValidateSteps checks that a protocol is usable: at least one step, unique
// ids and non-negative durations.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return ErrNoSteps
	}
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			return fmt.Errorf("step %d has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Duration < 0 {
			return fmt.Errorf("step %q has negative duration %v", s.ID, s.Duration)
		}
		for _, g := range s.RequiredGestures {
			if g == gesture.None {
				return errors.New("step " + s.ID + " requires an empty gesture")
			}
		}
	}
	return nil
}
