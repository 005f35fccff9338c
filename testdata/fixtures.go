// Package testdata holds recorded estimator sessions for end-to-end tests.
package testdata

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/source"
)

//go:embed sessions/*.jsonl
var sessionsFS embed.FS

// Session names.
const (
	// FistHold is a left fist held still for half a second.
	FistHold = "fist_hold"
	// SwipeRight is a right open hand that rests, sweeps right and rests again.
	SwipeRight = "swipe_right"
)

// Raw returns the newline-delimited JSON of a recorded session.
func Raw(name string) ([]byte, error) {
	data, err := sessionsFS.ReadFile(path.Join("sessions", name+".jsonl"))
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", name, err)
	}
	return data, nil
}

// LoadSession decodes a recorded session.
func LoadSession(name string) ([]landmark.Bundle, error) {
	data, err := Raw(name)
	if err != nil {
		return nil, err
	}

	var bundles []landmark.Bundle
	dec := source.NewDecoder(bytes.NewReader(data))
	for {
		b, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return bundles, nil
		}
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", name, err)
		}
		bundles = append(bundles, b)
	}
}

// Sessions lists the recorded session names.
func Sessions() ([]string, error) {
	entries, err := sessionsFS.ReadDir("sessions")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".jsonl"))
	}
	return names, nil
}
