package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/hook"
	"github.com/ayusman/abhinaya/internal/store"
)

// BindingHandler handles HTTP requests for gesture bindings.
type BindingHandler struct {
	store *store.Store
	hooks HookCatalog
}

// NewBindingHandler creates a BindingHandler. When hooks is non-nil, new
// and updated bindings must name a discovered hook.
func NewBindingHandler(s *store.Store, hooks HookCatalog) *BindingHandler {
	return &BindingHandler{store: s, hooks: hooks}
}

// ServeHTTP routes /api/bindings and /api/bindings/{id}.
func (h *BindingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := trimID(r.URL.Path, "/api/bindings")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w)
		case http.MethodPost:
			h.create(w, r)
		default:
			methodNotAllowed(w)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		methodNotAllowed(w)
	}
}

type bindingRequest struct {
	Gesture gesture.Type    `json:"gesture"`
	Entity  *gesture.Entity `json:"entity"`
	Hook    string          `json:"hook"`
	Action  string          `json:"action"`
	Config  json.RawMessage `json:"config"`
	Enabled *bool           `json:"enabled"`
}

type listBindingsResponse struct {
	Bindings []*store.Binding `json:"bindings"`
}

func (h *BindingHandler) list(w http.ResponseWriter) {
	bindings, err := h.store.Bindings().List()
	if err != nil {
		writeFailure(w, err, "Failed to list bindings")
		return
	}
	if bindings == nil {
		bindings = []*store.Binding{}
	}
	writeJSON(w, http.StatusOK, listBindingsResponse{Bindings: bindings})
}

func (h *BindingHandler) get(w http.ResponseWriter, id string) {
	b, err := h.store.Bindings().GetByID(id)
	if err != nil {
		writeFailure(w, err, "Failed to get binding")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BindingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Gesture == gesture.None {
		writeError(w, http.StatusBadRequest, "gesture is required")
		return
	}
	if req.Hook == "" {
		writeError(w, http.StatusBadRequest, "hook is required")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	b := &store.Binding{
		ID:      uuid.New().String(),
		Gesture: req.Gesture,
		Hook:    req.Hook,
		Action:  req.Action,
		Config:  req.Config,
		Enabled: true,
	}
	if req.Entity != nil {
		b.Entity = *req.Entity
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}
	if !h.validate(w, b) {
		return
	}

	if err := h.store.Bindings().Create(b); err != nil {
		writeFailure(w, err, "Failed to create binding")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BindingHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.store.Bindings().GetByID(id)
	if err != nil {
		writeFailure(w, err, "Failed to get binding")
		return
	}

	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Gesture != gesture.None {
		b.Gesture = req.Gesture
	}
	if req.Entity != nil {
		b.Entity = *req.Entity
	}
	if req.Hook != "" {
		b.Hook = req.Hook
	}
	if req.Action != "" {
		b.Action = req.Action
	}
	if req.Config != nil {
		b.Config = req.Config
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}
	if !h.validate(w, b) {
		return
	}

	if err := h.store.Bindings().Update(b); err != nil {
		writeFailure(w, err, "Failed to update binding")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BindingHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Bindings().Delete(id); err != nil {
		writeFailure(w, err, "Failed to delete binding")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BindingHandler) validate(w http.ResponseWriter, b *store.Binding) bool {
	if !knownGesture(b.Gesture) {
		writeError(w, http.StatusBadRequest, "Unknown gesture "+string(b.Gesture))
		return false
	}
	if b.Entity != "" && !b.Entity.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown entity "+string(b.Entity))
		return false
	}
	if len(b.Config) > 0 && !json.Valid(b.Config) {
		writeError(w, http.StatusBadRequest, "config must be valid JSON")
		return false
	}
	if h.hooks == nil {
		return true
	}
	if _, err := h.hooks.Get(b.Hook); err != nil {
		if errors.Is(err, hook.ErrHookNotFound) {
			writeError(w, http.StatusBadRequest, "Hook not found")
			return false
		}
		writeFailure(w, err, "Failed to verify hook")
		return false
	}
	return true
}

// HookHandler lists discovered hooks at /api/hooks.
type HookHandler struct {
	hooks HookCatalog
}

// NewHookHandler creates a HookHandler.
func NewHookHandler(hooks HookCatalog) *HookHandler {
	return &HookHandler{hooks: hooks}
}

type listHooksResponse struct {
	Hooks []hook.Manifest `json:"hooks"`
}

// ServeHTTP implements http.Handler.
func (h *HookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp := listHooksResponse{Hooks: []hook.Manifest{}}
	for _, hk := range h.hooks.List() {
		resp.Hooks = append(resp.Hooks, hk.Manifest)
	}
	writeJSON(w, http.StatusOK, resp)
}
