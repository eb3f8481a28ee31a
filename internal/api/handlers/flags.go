package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"scamwatch/internal/domain/models"
	"scamwatch/internal/infrastructure/database/repository"
	"scamwatch/pkg/logger"
)

const defaultUnreviewedLimit = 50

// FlagsHandler serves scam flags and their review workflow
type FlagsHandler struct {
	flags  *repository.ScamFlagRepository
	logger *logger.Logger
}

// NewFlagsHandler creates a new FlagsHandler
func NewFlagsHandler(flags *repository.ScamFlagRepository, log *logger.Logger) *FlagsHandler {
	return &FlagsHandler{
		flags:  flags,
		logger: log.WithComponent("flags-handler"),
	}
}

// ListByDay handles GET /api/v1/flags?date=YYYY-MM-DD (defaults to today UTC)
func (h *FlagsHandler) ListByDay(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
			return
		}
		day = parsed
	}

	flags, err := h.flags.ListByDay(r.Context(), day)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list flags")
		writeError(w, http.StatusInternalServerError, "failed to list flags")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":  day.Format("2006-01-02"),
		"flags": flags,
		"count": len(flags),
	})
}

// ListUnreviewed handles GET /api/v1/flags/unreviewed - high-risk flags
// awaiting human review, for the given day
func (h *FlagsHandler) ListUnreviewed(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
			return
		}
		day = parsed
	}

	limit := defaultUnreviewedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1,500]")
			return
		}
		limit = n
	}

	flags, err := h.flags.ListUnreviewedHighRisk(r.Context(), day, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list unreviewed flags")
		writeError(w, http.StatusInternalServerError, "failed to list unreviewed flags")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":  day.Format("2006-01-02"),
		"flags": flags,
		"count": len(flags),
	})
}

// ReviewRequest is the request body for bulk flag review
type ReviewRequest struct {
	FlagIDs    []uuid.UUID         `json:"flag_ids"`
	Status     models.ReviewStatus `json:"status"`
	ReviewedBy string              `json:"reviewed_by"`
	Notes      string              `json:"notes,omitempty"`
}

// Review handles POST /api/v1/flags/review - marks flags as confirmed
// scams or false positives. Review outcomes feed the nightly false
// positive rate.
func (h *FlagsHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.FlagIDs) == 0 {
		writeError(w, http.StatusBadRequest, "flag_ids is required")
		return
	}
	if len(req.FlagIDs) > 100 {
		writeError(w, http.StatusBadRequest, "maximum 100 flags per review request")
		return
	}
	if !req.Status.Valid() || req.Status == models.ReviewStatusPending {
		writeError(w, http.StatusBadRequest, "status must be confirmed_scam or false_positive")
		return
	}
	if req.ReviewedBy == "" {
		writeError(w, http.StatusBadRequest, "reviewed_by is required")
		return
	}

	updated, err := h.flags.UpdateReviewStatus(r.Context(), req.FlagIDs, req.Status, req.ReviewedBy, req.Notes)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to update review status")
		writeError(w, http.StatusInternalServerError, "failed to update review status")
		return
	}

	h.logger.Info().
		Int64("updated", updated).
		Str("status", string(req.Status)).
		Str("reviewed_by", req.ReviewedBy).
		Msg("flags reviewed")

	writeJSON(w, http.StatusOK, map[string]any{
		"updated": updated,
		"status":  req.Status,
	})
}
