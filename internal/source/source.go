// Package source delivers landmark bundles from an external pose estimator.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ayusman/abhinaya/internal/landmark"
)

// MaxLineSize bounds one encoded bundle.
const MaxLineSize = 1 << 20

// Source yields landmark bundles in arrival order. Next returns io.EOF when
// the stream has ended.
type Source interface {
	Next(ctx context.Context) (landmark.Bundle, error)
	Close() error
}

// Decoder reads newline-delimited JSON bundles.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Decoder{scanner: s}
}

// Decode returns the next bundle. Blank lines are skipped.
func (d *Decoder) Decode() (landmark.Bundle, error) {
	for d.scanner.Scan() {
		d.line++
		data := d.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var b landmark.Bundle
		if err := json.Unmarshal(data, &b); err != nil {
			return landmark.Bundle{}, fmt.Errorf("line %d: decode bundle: %w", d.line, err)
		}
		return b, nil
	}
	if err := d.scanner.Err(); err != nil {
		return landmark.Bundle{}, fmt.Errorf("read bundle: %w", err)
	}
	return landmark.Bundle{}, io.EOF
}

// ReaderSource adapts a Decoder to Source. Reads run on a background
// goroutine so that Next honours ctx.
type ReaderSource struct {
	closer  io.Closer
	results chan result
	done    chan struct{}
}

type result struct {
	bundle landmark.Bundle
	err    error
}

// NewReaderSource decodes bundles from r. If r is an io.Closer it is closed
// by Close.
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{
		results: make(chan result),
		done:    make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	go s.read(NewDecoder(r))
	return s
}

func (s *ReaderSource) read(d *Decoder) {
	for {
		b, err := d.Decode()
		select {
		case s.results <- result{bundle: b, err: err}:
		case <-s.done:
			return
		}
		if err == io.EOF {
			return
		}
	}
}

// Next returns the next bundle.
func (s *ReaderSource) Next(ctx context.Context) (landmark.Bundle, error) {
	select {
	case <-ctx.Done():
		return landmark.Bundle{}, ctx.Err()
	case <-s.done:
		return landmark.Bundle{}, io.EOF
	case r := <-s.results:
		return r.bundle, r.err
	}
}

// Close stops reading.
func (s *ReaderSource) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
