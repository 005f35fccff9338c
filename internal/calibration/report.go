package calibration

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/landmark"
)

// DefaultMinConfidence is the per-category detection fraction below which a
// warning is raised.
const DefaultMinConfidence = 0.7

// Severity of a recommendation.
type Severity string

// Recommendation severities.
const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// RecommendationKind classifies a recommendation.
type RecommendationKind string

// Recommendation kinds.
const (
	KindConfidence     RecommendationKind = "confidence"
	KindReady          RecommendationKind = "ready"
	KindMissedGestures RecommendationKind = "missed_gestures"
)

// Recommendation is one piece of advice attached to a report.
type Recommendation struct {
	Severity Severity           `json:"severity"`
	Kind     RecommendationKind `json:"kind"`
	Category Category           `json:"category,omitempty"`
	Message  string             `json:"message"`
}

var lowConfidenceMessages = map[Category]string{
	CategoryHand:    "Hand tracking confidence is low. Try to ensure your hands are clearly visible and well-lit.",
	CategoryMotion:  "Motion tracking confidence is low. Try making larger, faster movements within the camera view.",
	CategoryGesture: "Gesture recognition confidence is low. Try to make more distinct gestures.",
	CategoryPose:    "Pose detection confidence is low. Try to ensure your full upper body is visible and well-lit.",
	CategoryFace:    "Face tracking confidence is low. Try to ensure your face is clearly visible and well-lit.",
}

const readyMessage = "Calibration completed successfully! You are ready to play."

func lowConfidenceMessage(c Category) string {
	if msg, ok := lowConfidenceMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("Detection confidence for %s steps is low. Try repeating the movements more clearly.", c)
}

func missedMessage(missed []gesture.Type) string {
	names := make([]string, len(missed))
	for i, m := range missed {
		names[i] = string(m)
	}
	return "Some gestures were not detected properly: " + strings.Join(names, ", ") +
		". Try adjusting your movements to be more pronounced."
}

// Bounds is the observed min/max position of one entity.
type Bounds struct {
	Min gesture.Vector `json:"min"`
	Max gesture.Vector `json:"max"`
}

func newBounds(p r3.Vec) Bounds {
	return Bounds{Min: gesture.NewVector(p), Max: gesture.NewVector(p)}
}

// Extend widens the bounds to include p.
func (b Bounds) Extend(p r3.Vec) Bounds {
	return Bounds{
		Min: gesture.Vector{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)},
		Max: gesture.Vector{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)},
	}
}

// Size returns the extent of the bounds along each axis.
func (b Bounds) Size() r3.Vec {
	return r3.Sub(b.Max.Vec(), b.Min.Vec())
}

// StepResult records how one step ended.
type StepResult struct {
	ID                  string                `json:"id"`
	Category            Category              `json:"category"`
	Completed           bool                  `json:"completed"`
	AllRequiredDetected bool                  `json:"allGesturesDetected"`
	Detected            map[gesture.Type]bool `json:"detectedGestures"`
	StartedAt           time.Time             `json:"startedAt"`
	Duration            time.Duration         `json:"duration"`
}

// Missed returns the step's required gestures that were not detected, in
// declaration order.
func (r StepResult) Missed(step Step) []gesture.Type {
	var missed []gesture.Type
	for _, g := range step.RequiredGestures {
		if !r.Detected[g] {
			missed = append(missed, g)
		}
	}
	return missed
}

// Report is the finished calibration session.
type Report struct {
	ID              string                    `json:"id"`
	StartedAt       time.Time                 `json:"startedAt"`
	CompletedAt     time.Time                 `json:"completedAt"`
	Steps           []StepResult              `json:"steps"`
	MotionRange     map[gesture.Entity]Bounds `json:"motionRange"`
	Confidence      map[Category]float64      `json:"confidence"`
	Missed          []gesture.Type            `json:"missedGestures"`
	Recommendations []Recommendation          `json:"recommendations"`
	Environment     *landmark.Environment     `json:"environment,omitempty"`
	Ready           bool                      `json:"ready"`
}

// Warnings returns the warning recommendations.
func (r *Report) Warnings() []Recommendation {
	var out []Recommendation
	for _, rec := range r.Recommendations {
		if rec.Severity == SeverityWarning {
			out = append(out, rec)
		}
	}
	return out
}

// summarize fills confidence, missed gestures and recommendations from the
// step results. Categories without required gestures are not scored.
func summarize(r *Report, steps []Step, minConfidence float64) {
	required := make(map[Category]int)
	detected := make(map[Category]int)
	var order []Category
	seenMissed := make(map[gesture.Type]bool)

	for i, res := range r.Steps {
		step := steps[i]
		if len(step.RequiredGestures) == 0 {
			continue
		}
		if _, ok := required[step.Category]; !ok {
			order = append(order, step.Category)
		}
		required[step.Category] += len(step.RequiredGestures)
		for _, g := range step.RequiredGestures {
			if res.Detected[g] {
				detected[step.Category]++
			}
		}
		for _, g := range res.Missed(step) {
			if !seenMissed[g] {
				seenMissed[g] = true
				r.Missed = append(r.Missed, g)
			}
		}
	}

	r.Confidence = make(map[Category]float64, len(order))
	for _, c := range order {
		conf := float64(detected[c]) / float64(required[c])
		r.Confidence[c] = conf
		if conf < minConfidence {
			r.Recommendations = append(r.Recommendations, Recommendation{
				Severity: SeverityWarning,
				Kind:     KindConfidence,
				Category: c,
				Message:  lowConfidenceMessage(c),
			})
		}
	}

	r.Ready = len(r.Recommendations) == 0
	if r.Ready {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Severity: SeverityInfo,
			Kind:     KindReady,
			Message:  readyMessage,
		})
	}

	if len(r.Missed) > 0 {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Severity: SeverityInfo,
			Kind:     KindMissedGestures,
			Message:  missedMessage(r.Missed),
		})
	}
}
