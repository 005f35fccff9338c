package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/store"
)

// HistoryHandler serves the in-memory gesture history under /api/history.
type HistoryHandler struct {
	ctl Controller
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(ctl Controller) *HistoryHandler {
	return &HistoryHandler{ctl: ctl}
}

type historyResponse struct {
	Events []gesture.Event                 `json:"events"`
	Active map[gesture.Entity]gesture.Type `json:"active"`
}

type matchRequest struct {
	Pattern  []gesture.Type `json:"pattern"`
	MaxGapMs int64          `json:"maxGapMs"`
	Entity   gesture.Entity `json:"entity"`
}

type matchResponse struct {
	Matched bool `json:"matched"`
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch trimID(r.URL.Path, "/api/history") {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.list(w, r)
	case "match":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.match(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *HistoryHandler) list(w http.ResponseWriter, r *http.Request) {
	entity, ok := parseEntity(r.URL.Query().Get("entity"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown entity")
		return
	}

	events := make([]gesture.Event, 0)
	for _, e := range h.ctl.History() {
		if entity == "" || e.Entity == entity {
			events = append(events, e)
		}
	}
	writeJSON(w, http.StatusOK, historyResponse{Events: events, Active: h.ctl.Active()})
}

func (h *HistoryHandler) match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.MaxGapMs < 0 {
		writeError(w, http.StatusBadRequest, "maxGapMs must not be negative")
		return
	}
	if req.Entity != "" && !req.Entity.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown entity")
		return
	}

	matched := h.ctl.MatchSequence(req.Pattern, time.Duration(req.MaxGapMs)*time.Millisecond, req.Entity)
	writeJSON(w, http.StatusOK, matchResponse{Matched: matched})
}

// EventLogHandler serves the persisted gesture log at /api/events/log.
type EventLogHandler struct {
	store *store.Store
}

// NewEventLogHandler creates an EventLogHandler.
func NewEventLogHandler(s *store.Store) *EventLogHandler {
	return &EventLogHandler{store: s}
}

type eventLogResponse struct {
	Events []gesture.Event `json:"events"`
}

// ServeHTTP implements http.Handler.
func (h *EventLogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	entity, ok := parseEntity(q.Get("entity"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown entity")
		return
	}
	limit := store.DefaultEventLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.store.Events().List(limit, entity)
	if err != nil {
		writeFailure(w, err, "Failed to list events")
		return
	}
	if events == nil {
		events = []gesture.Event{}
	}
	writeJSON(w, http.StatusOK, eventLogResponse{Events: events})
}

func parseEntity(s string) (gesture.Entity, bool) {
	if s == "" {
		return "", true
	}
	e := gesture.Entity(strings.ToLower(s))
	return e, e.Valid()
}
