package landmark

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameOf(points ...Point) Frame {
	return Frame{Points: points}
}

func TestSmooth_BlendsTowardsNewFrame(t *testing.T) {
	prev := frameOf(Point{Name: "wrist", X: 0, Y: 100, Z: Float(0)})
	next := frameOf(Point{Name: "wrist", X: 10, Y: 0, Z: Float(-1)})

	out := Smooth(prev, next, 0.7)

	require.Equal(t, 1, out.Len())
	assert.InDelta(t, 3.0, out.Points[0].X, 1e-9)
	assert.InDelta(t, 70.0, out.Points[0].Y, 1e-9)
	require.True(t, out.Points[0].HasZ())
	assert.InDelta(t, -0.3, *out.Points[0].Z, 1e-9)
}

func TestSmooth_ConvergesMonotonically(t *testing.T) {
	target := frameOf(Point{Name: "wrist", X: 50, Y: -20})
	current := frameOf(Point{Name: "wrist", X: 0, Y: 80})

	prevResidual := math.Inf(1)
	for i := 0; i < 40; i++ {
		current = Smooth(current, target, 0.7)
		p := current.Points[0]

		assert.LessOrEqual(t, p.X, 50.0, "x overshot at step %d", i)
		assert.GreaterOrEqual(t, p.Y, -20.0, "y overshot at step %d", i)

		residual := math.Hypot(50-p.X, -20-p.Y)
		assert.Less(t, residual, prevResidual, "residual did not decrease at step %d", i)
		prevResidual = residual
	}
}

func TestSmooth_BypassesOnTopologyChange(t *testing.T) {
	tests := []struct {
		name string
		prev Frame
		next Frame
	}{
		{
			name: "no baseline",
			prev: Frame{},
			next: frameOf(Point{Name: "nose", X: 5}),
		},
		{
			name: "cardinality differs",
			prev: frameOf(Point{Name: "nose", X: 1}),
			next: frameOf(Point{Name: "nose", X: 5}, Point{Name: "left_eye", X: 6}),
		},
		{
			name: "names differ",
			prev: frameOf(Point{Name: "nose", X: 1}),
			next: frameOf(Point{Name: "chin", X: 5}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.next, Smooth(tt.prev, tt.next, 0.7))
		})
	}
}

func TestSmooth_LeavesScoreAndOneSidedZ(t *testing.T) {
	prev := frameOf(Point{Name: "wrist", X: 0, Score: Float(0.2)})
	next := frameOf(Point{Name: "wrist", X: 10, Z: Float(4), Score: Float(0.9)})

	out := Smooth(prev, next, 0.5)

	p := out.Points[0]
	require.NotNil(t, p.Score)
	assert.Equal(t, 0.9, *p.Score)
	require.NotNil(t, p.Z)
	assert.Equal(t, 4.0, *p.Z)
	assert.InDelta(t, 5.0, p.X, 1e-9)

	out = Smooth(next, frameOf(Point{Name: "wrist", X: 10}), 0.5)
	assert.False(t, out.Points[0].HasZ())
}

func TestNewSmoother_ValidatesFactor(t *testing.T) {
	for _, factor := range []float64{-0.1, 1, 1.5} {
		_, err := NewSmoother(factor)
		assert.Error(t, err, "factor %v", factor)
	}

	s, err := NewSmoother(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Factor())
}

func TestSmoother_TracksEntitiesSeparately(t *testing.T) {
	s, err := NewSmoother(DefaultSmoothingFactor)
	require.NoError(t, err)

	s.Apply("left_hand", frameOf(Point{Name: "wrist", X: 0}))
	s.Apply("right_hand", frameOf(Point{Name: "wrist", X: 100}))

	left := s.Apply("left_hand", frameOf(Point{Name: "wrist", X: 10}))
	right := s.Apply("right_hand", frameOf(Point{Name: "wrist", X: 110}))

	assert.InDelta(t, 3.0, left.Points[0].X, 1e-9)
	assert.InDelta(t, 103.0, right.Points[0].X, 1e-9)

	s.Reset("left_hand")
	left = s.Apply("left_hand", frameOf(Point{Name: "wrist", X: 40}))
	assert.Equal(t, 40.0, left.Points[0].X)
}

func TestHand_FrameNamesMediaPipePoints(t *testing.T) {
	h := Hand{Handedness: "Left", Points: make([]Point, NumHandPoints)}
	h.Points[4].Name = "custom"

	f := h.Frame()

	_, ok := f.Get("wrist")
	assert.True(t, ok)
	_, ok = f.Get("index_tip")
	assert.True(t, ok)
	_, ok = f.Get("custom")
	assert.True(t, ok)
	assert.Empty(t, h.Points[0].Name, "original points must not be renamed")
}
