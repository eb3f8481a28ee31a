package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles all repositories over a shared connection pool
type Repositories struct {
	Flags   *ScamFlagRepository
	Runs    *DetectionRunRepository
	Reports *NightlyReportRepository
}

// NewRepositories creates all repositories
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Flags:   NewScamFlagRepository(pool),
		Runs:    NewDetectionRunRepository(pool),
		Reports: NewNightlyReportRepository(pool),
	}
}
