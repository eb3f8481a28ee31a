package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"scamwatch/internal/domain/models"
	"scamwatch/internal/infrastructure/cache"
	"scamwatch/internal/infrastructure/database/repository"
	"scamwatch/internal/jobs"
	"scamwatch/pkg/logger"
)

const (
	defaultManualWindow = time.Hour
	maxManualWindow     = 7 * 24 * time.Hour
	manualScanLockTTL   = 10 * time.Minute
)

// ScansHandler triggers manual detection runs and exposes run records
type ScansHandler struct {
	scanner *jobs.Scanner
	runs    *repository.DetectionRunRepository
	cache   *cache.RedisCache
	logger  *logger.Logger
}

// NewScansHandler creates a new ScansHandler
func NewScansHandler(scanner *jobs.Scanner, runs *repository.DetectionRunRepository, c *cache.RedisCache, log *logger.Logger) *ScansHandler {
	return &ScansHandler{
		scanner: scanner,
		runs:    runs,
		cache:   c,
		logger:  log.WithComponent("scans-handler"),
	}
}

// TriggerRequest is the request body for a manual scan
type TriggerRequest struct {
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
}

// Trigger handles POST /api/v1/scan - runs a manual scan over the
// requested window (default: the last hour). The scan lock is shared
// with the periodic worker so only one scan runs at a time.
func (h *ScansHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	end := time.Now().UTC()
	if req.WindowEnd != nil {
		end = req.WindowEnd.UTC()
	}
	start := end.Add(-defaultManualWindow)
	if req.WindowStart != nil {
		start = req.WindowStart.UTC()
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "window_start must be before window_end")
		return
	}
	if end.Sub(start) > maxManualWindow {
		writeError(w, http.StatusBadRequest, "scan window may not exceed 7 days")
		return
	}

	acquired, err := h.cache.AcquireLock(r.Context(), cache.KeyScanJob, manualScanLockTTL)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to acquire scan lock")
		writeError(w, http.StatusInternalServerError, "failed to acquire scan lock")
		return
	}
	if !acquired {
		writeError(w, http.StatusConflict, "a scan is already in progress")
		return
	}
	defer func() {
		if err := h.cache.ReleaseLock(r.Context(), cache.KeyScanJob); err != nil {
			h.logger.Error().Err(err).Msg("failed to release scan lock")
		}
	}()

	run, err := h.scanner.Run(r.Context(), models.RunTypeManual, start, end)
	if err != nil {
		h.logger.Error().Err(err).Msg("manual scan failed")
		if run != nil {
			writeJSON(w, http.StatusInternalServerError, run)
			return
		}
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// Latest handles GET /api/v1/runs/latest
func (h *ScansHandler) Latest(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Latest(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load latest run")
		writeError(w, http.StatusInternalServerError, "failed to load latest run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no detection runs recorded")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Get handles GET /api/v1/runs/{id}
func (h *ScansHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id.String()).Msg("failed to load run")
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
