package gesture

import (
	"fmt"
	"time"

	"github.com/ayusman/abhinaya/internal/feature"
)

// Config holds classification thresholds and hysteresis timing.
// Distances and velocities are in input coordinate units; velocities are per frame.
type Config struct {
	// HoldTime is how long a candidate must be observed before it commits.
	HoldTime time.Duration
	// Cooldown is the minimum time between two commits on the same entity.
	Cooldown time.Duration

	PinchDistance float64
	PunchVelocity float64
	BlockVelocity float64
	SwipeVelocity float64

	// FingerLength is the minimum base-to-tip length of an extended finger.
	FingerLength float64
	// LeanOffset is the shoulder-over-hip horizontal offset that counts as leaning.
	LeanOffset float64
	// CrouchDepth is how far below the hips both knees must be to count as crouching.
	CrouchDepth float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		HoldTime:      200 * time.Millisecond,
		Cooldown:      500 * time.Millisecond,
		PinchDistance: 0.05,
		PunchVelocity: 25,
		BlockVelocity: 10,
		SwipeVelocity: 15,
		FingerLength:  feature.DefaultFingerLength,
		LeanOffset:    30,
		CrouchDepth:   50,
	}
}

// Validate rejects negative thresholds.
func (c Config) Validate() error {
	if c.HoldTime < 0 {
		return fmt.Errorf("hold time must be non-negative, got %v", c.HoldTime)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be non-negative, got %v", c.Cooldown)
	}
	thresholds := map[string]float64{
		"pinch distance": c.PinchDistance,
		"punch velocity": c.PunchVelocity,
		"block velocity": c.BlockVelocity,
		"swipe velocity": c.SwipeVelocity,
		"finger length":  c.FingerLength,
		"lean offset":    c.LeanOffset,
		"crouch depth":   c.CrouchDepth,
	}
	for name, v := range thresholds {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %v", name, v)
		}
	}
	return nil
}
