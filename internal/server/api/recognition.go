package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/store"
)

// RecognitionHandler serves /api/recognition. The flag is persisted when a
// store is configured.
type RecognitionHandler struct {
	ctl   Controller
	store *store.Store
}

// NewRecognitionHandler creates a RecognitionHandler. s may be nil.
func NewRecognitionHandler(ctl Controller, s *store.Store) *RecognitionHandler {
	return &RecognitionHandler{ctl: ctl, store: s}
}

type recognitionBody struct {
	Enabled *bool `json:"enabled"`
}

type recognitionResponse struct {
	Enabled bool `json:"enabled"`
}

// ServeHTTP implements http.Handler.
func (h *RecognitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, recognitionResponse{Enabled: h.ctl.Enabled()})
	case http.MethodPut:
		h.update(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *RecognitionHandler) update(w http.ResponseWriter, r *http.Request) {
	var req recognitionBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := h.ctl.SetEnabled(*req.Enabled); err != nil {
		writeFailure(w, err, "Failed to toggle recognition")
		return
	}
	if h.store != nil {
		if err := h.store.Settings().SetBool(store.SettingRecognitionEnabled, *req.Enabled); err != nil {
			log.Error("failed to persist recognition flag", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, recognitionResponse{Enabled: *req.Enabled})
}
