package api

import (
	"net/http"

	"github.com/ayusman/abhinaya/internal/calibration"
	"github.com/ayusman/abhinaya/internal/gesture"
)

// CalibrationHandler serves /api/calibration.
type CalibrationHandler struct {
	ctl Controller
}

// NewCalibrationHandler creates a CalibrationHandler.
func NewCalibrationHandler(ctl Controller) *CalibrationHandler {
	return &CalibrationHandler{ctl: ctl}
}

type stepResponse struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	Instructions     string               `json:"instructions"`
	Category         calibration.Category `json:"category"`
	RequiredGestures []gesture.Type       `json:"requiredGestures"`
	DurationMs       int64                `json:"durationMs"`
}

type calibrationResponse struct {
	calibration.Progress
	Steps []stepResponse `json:"steps"`
}

type stopResponse struct {
	Stopped bool `json:"stopped"`
}

// ServeHTTP implements http.Handler.
func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.status())
	case http.MethodPost:
		if err := h.ctl.StartCalibration(); err != nil {
			writeFailure(w, err, "Failed to start calibration")
			return
		}
		writeJSON(w, http.StatusAccepted, h.status())
	case http.MethodDelete:
		writeJSON(w, http.StatusOK, stopResponse{Stopped: h.ctl.StopCalibration()})
	default:
		methodNotAllowed(w)
	}
}

func (h *CalibrationHandler) status() calibrationResponse {
	steps := h.ctl.Steps()
	resp := calibrationResponse{
		Progress: h.ctl.Progress(),
		Steps:    make([]stepResponse, 0, len(steps)),
	}
	for _, s := range steps {
		required := s.RequiredGestures
		if required == nil {
			required = []gesture.Type{}
		}
		resp.Steps = append(resp.Steps, stepResponse{
			ID:               s.ID,
			Name:             s.Name,
			Instructions:     s.Instructions,
			Category:         s.Category,
			RequiredGestures: required,
			DurationMs:       s.Duration.Milliseconds(),
		})
	}
	return resp
}
