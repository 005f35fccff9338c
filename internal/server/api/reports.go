package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/abhinaya/internal/calibration"
	"github.com/ayusman/abhinaya/internal/store"
)

// LatestReportID is the path segment that selects the newest report.
const LatestReportID = "latest"

// ReportHandler serves the calibration report archive under /api/reports.
type ReportHandler struct {
	store *store.Store
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(s *store.Store) *ReportHandler {
	return &ReportHandler{store: s}
}

type listReportsResponse struct {
	Reports []store.ReportSummary `json:"reports"`
}

// ServeHTTP implements http.Handler.
func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := trimID(r.URL.Path, "/api/reports")

	if id == "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodDelete:
		if id == LatestReportID {
			methodNotAllowed(w)
			return
		}
		h.delete(w, id)
	default:
		methodNotAllowed(w)
	}
}

func (h *ReportHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	summaries, err := h.store.Reports().List(limit)
	if err != nil {
		writeFailure(w, err, "Failed to list reports")
		return
	}
	if summaries == nil {
		summaries = []store.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, listReportsResponse{Reports: summaries})
}

func (h *ReportHandler) get(w http.ResponseWriter, id string) {
	var (
		report *calibration.Report
		err    error
	)
	if id == LatestReportID {
		report, err = h.store.Reports().Latest()
	} else {
		report, err = h.store.Reports().GetByID(id)
	}
	if err != nil {
		writeFailure(w, err, "Failed to get report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Reports().Delete(id); err != nil {
		writeFailure(w, err, "Failed to delete report")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
