package source

import (
	"context"
	"io"
	"sync"

	"github.com/ayusman/abhinaya/internal/landmark"
)

// MockSource replays a fixed list of bundles.
type MockSource struct {
	mu      sync.Mutex
	bundles []landmark.Bundle
	err     error
	closed  bool
}

// NewMockSource returns a source yielding bundles in order, then io.EOF.
func NewMockSource(bundles ...landmark.Bundle) *MockSource {
	return &MockSource{bundles: bundles}
}

// SetError makes Next fail with err once the bundles run out.
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Next returns the next bundle.
func (m *MockSource) Next(ctx context.Context) (landmark.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return landmark.Bundle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return landmark.Bundle{}, io.EOF
	}
	if len(m.bundles) == 0 {
		if m.err != nil {
			return landmark.Bundle{}, m.err
		}
		return landmark.Bundle{}, io.EOF
	}
	b := m.bundles[0]
	m.bundles = m.bundles[1:]
	return b, nil
}

// Close marks the source finished.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
