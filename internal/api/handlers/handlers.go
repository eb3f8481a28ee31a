package handlers

import (
	"encoding/json"
	"net/http"

	"scamwatch/internal/infrastructure/cache"
	"scamwatch/internal/infrastructure/database"
	"scamwatch/internal/infrastructure/database/repository"
	"scamwatch/internal/jobs"
	"scamwatch/pkg/logger"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Health  *HealthHandler
	Reports *ReportsHandler
	Flags   *FlagsHandler
	Scans   *ScansHandler
}

// NewHandlers creates all handlers
func NewHandlers(db *database.PostgresDB, c *cache.RedisCache, repos *repository.Repositories, scanner *jobs.Scanner, log *logger.Logger) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(db, c, log),
		Reports: NewReportsHandler(repos.Reports, log),
		Flags:   NewFlagsHandler(repos.Flags, log),
		Scans:   NewScansHandler(scanner, repos.Runs, c, log),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
