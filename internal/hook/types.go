// Package hook runs external executables in response to pipeline events.
// Each hook lives in its own directory with a hook.json manifest.
package hook

import "encoding/json"

// ManifestFile is the manifest name inside a hook directory.
const ManifestFile = "hook.json"

// AnyGesture in a manifest's gestures list matches every gesture.
const AnyGesture = "*"

// Manifest describes a hook and the events that trigger it.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Actions     []string        `json:"actions,omitempty"`
	Events      []string        `json:"events,omitempty"`
	Gestures    []string        `json:"gestures,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request is written to the hook's stdin as JSON.
type Request struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Event     string          `json:"event"`
	Gesture   string          `json:"gesture,omitempty"`
	Entity    string          `json:"entity,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Config    json.RawMessage `json:"config,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Response is read from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// DefaultAction is the action sent when the manifest lists none.
const DefaultAction = "trigger"

// Action returns the action requested for manifest-triggered runs.
func (h *Hook) Action() string {
	if len(h.Manifest.Actions) == 0 {
		return DefaultAction
	}
	return h.Manifest.Actions[0]
}

// Wants reports whether the manifest subscribes to an event kind and, for
// gesture events, the gesture type. A manifest without events listens to
// gesture events only; one without gestures listens to none of them.
func (h *Hook) Wants(event, gestureType string) bool {
	if !h.wantsEvent(event) {
		return false
	}
	if gestureType == "" {
		return true
	}
	for _, g := range h.Manifest.Gestures {
		if g == AnyGesture || g == gestureType {
			return true
		}
	}
	return false
}

func (h *Hook) wantsEvent(event string) bool {
	if len(h.Manifest.Events) == 0 {
		return event == gestureEvent
	}
	for _, e := range h.Manifest.Events {
		if e == event {
			return true
		}
	}
	return false
}
