package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"scamwatch/internal/infrastructure/database/repository"
	"scamwatch/pkg/logger"
)

const defaultReportListLimit = 30

// ReportsHandler serves nightly detection reports
type ReportsHandler struct {
	reports *repository.NightlyReportRepository
	logger  *logger.Logger
}

// NewReportsHandler creates a new ReportsHandler
func NewReportsHandler(reports *repository.NightlyReportRepository, log *logger.Logger) *ReportsHandler {
	return &ReportsHandler{
		reports: reports,
		logger:  log.WithComponent("reports-handler"),
	}
}

// List handles GET /api/v1/reports - most recent reports first
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 365 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1,365]")
			return
		}
		limit = n
	}

	reports, err := h.reports.List(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list reports")
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

// Get handles GET /api/v1/reports/{date} - date is YYYY-MM-DD
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "date")
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
		return
	}

	report, err := h.reports.GetByDate(r.Context(), date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", raw).Msg("failed to load report")
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "no report for date "+raw)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
