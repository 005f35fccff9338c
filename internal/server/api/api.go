// Package api implements the JSON handlers behind /api.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/abhinaya/internal/calibration"
	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/hook"
	"github.com/ayusman/abhinaya/internal/landmark"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/pipeline"
	"github.com/ayusman/abhinaya/internal/store"
)

// Controller is the running pipeline as seen by the handlers.
type Controller interface {
	Submit(b landmark.Bundle) bool
	SetEnabled(enabled bool) error
	Enabled() bool
	StartCalibration() error
	StopCalibration() bool
	Progress() calibration.Progress
	Steps() []calibration.Step
	History() []gesture.Event
	MatchSequence(pattern []gesture.Type, maxGap time.Duration, entity gesture.Entity) bool
	Active() map[gesture.Entity]gesture.Type
}

// HookCatalog looks up discovered hooks.
type HookCatalog interface {
	Get(name string) (*hook.Hook, error)
	List() []*hook.Hook
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure maps err to a status code. Unknown errors are logged and
// reported with message.
func writeFailure(w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error(message, "error", err)
		writeError(w, status, message)
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, hook.ErrHookNotFound):
		return http.StatusNotFound
	case errors.Is(err, calibration.ErrAlreadyRunning), errors.Is(err, calibration.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrNotRunning):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// trimID returns the path segment after prefix, or "" for the collection.
func trimID(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// knownGesture reports whether t is a hand gesture or body pose label.
func knownGesture(t gesture.Type) bool {
	for _, g := range gesture.HandGestures {
		if g == t {
			return true
		}
	}
	switch t {
	case gesture.Stand, gesture.Crouch, gesture.LeanLeft, gesture.LeanRight:
		return true
	}
	return false
}
