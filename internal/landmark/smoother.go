package landmark

import (
	"fmt"
	"sync"
)

// DefaultSmoothingFactor weights the previous frame at 70%.
const DefaultSmoothingFactor = 0.7

// Smooth exponentially blends next towards prev:
// c = prev + (next - prev) * (1 - factor).
//
// When prev is empty or the topology changed (point count or names differ),
// next is returned unchanged and becomes the new baseline. Scores are never
// smoothed; z is blended only when both frames carry it.
func Smooth(prev, next Frame, factor float64) Frame {
	if !sameTopology(prev, next) {
		return next
	}

	gain := 1 - factor
	out := Frame{Points: make([]Point, len(next.Points))}
	for i, n := range next.Points {
		p := prev.Points[i]
		s := Point{
			Name:  n.Name,
			X:     p.X + (n.X-p.X)*gain,
			Y:     p.Y + (n.Y-p.Y)*gain,
			Score: n.Score,
		}
		switch {
		case p.Z != nil && n.Z != nil:
			s.Z = Float(*p.Z + (*n.Z-*p.Z)*gain)
		case n.Z != nil:
			s.Z = Float(*n.Z)
		}
		out.Points[i] = s
	}
	return out
}

func sameTopology(prev, next Frame) bool {
	if len(prev.Points) == 0 || len(prev.Points) != len(next.Points) {
		return false
	}
	for i := range next.Points {
		if prev.Points[i].Name != next.Points[i].Name {
			return false
		}
	}
	return true
}

// Smoother keeps one smoothed baseline per entity.
type Smoother struct {
	factor    float64
	baselines map[string]Frame
	mu        sync.Mutex
}

// NewSmoother creates a Smoother. The factor must lie in [0, 1).
func NewSmoother(factor float64) (*Smoother, error) {
	if factor < 0 || factor >= 1 {
		return nil, fmt.Errorf("smoothing factor must be in [0, 1), got %v", factor)
	}
	return &Smoother{
		factor:    factor,
		baselines: make(map[string]Frame),
	}, nil
}

// Factor returns the configured smoothing factor.
func (s *Smoother) Factor() float64 {
	return s.factor
}

// Apply smooths frame against the entity's baseline and stores the result
// as the new baseline.
func (s *Smoother) Apply(entity string, frame Frame) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Smooth(s.baselines[entity], frame, s.factor)
	s.baselines[entity] = out
	return out
}

// Reset drops the baseline for one entity.
func (s *Smoother) Reset(entity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.baselines, entity)
}

// ResetAll drops every baseline.
func (s *Smoother) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines = make(map[string]Frame)
}
