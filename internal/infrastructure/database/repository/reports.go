package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scamwatch/internal/domain/models"
)

// NightlyReportRepository handles nightly report persistence
type NightlyReportRepository struct {
	pool *pgxpool.Pool
}

// NewNightlyReportRepository creates a new nightly report repository
func NewNightlyReportRepository(pool *pgxpool.Pool) *NightlyReportRepository {
	return &NightlyReportRepository{pool: pool}
}

// Insert persists a report. Reports are unique per report date and
// immutable: re-running a date that already has one is a loud failure
// (ErrDuplicate), never a silent overwrite.
func (r *NightlyReportRepository) Insert(ctx context.Context, report *models.NightlyReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	report.CreatedAt = time.Now().UTC()

	byRisk, err := json.Marshal(report.ScamsByRiskLevel)
	if err != nil {
		return fmt.Errorf("failed to marshal risk level counts: %w", err)
	}
	byCategory, err := json.Marshal(report.ScamsByCategory)
	if err != nil {
		return fmt.Errorf("failed to marshal category counts: %w", err)
	}
	byMethod, err := json.Marshal(report.DetectionMethods)
	if err != nil {
		return fmt.Errorf("failed to marshal method counts: %w", err)
	}
	newPatterns, err := json.Marshal(report.NewPatterns)
	if err != nil {
		return fmt.Errorf("failed to marshal new patterns: %w", err)
	}
	actionItems, err := json.Marshal(report.ActionItems)
	if err != nil {
		return fmt.Errorf("failed to marshal action items: %w", err)
	}

	query := `
		INSERT INTO nightly_reports (
			id, report_date, total_scams_detected,
			scams_by_risk_level, scams_by_category, detection_methods,
			false_positive_rate, new_patterns_learned, ai_summary, action_items, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.pool.Exec(ctx, query,
		report.ID, report.ReportDate, report.TotalScamsDetected,
		byRisk, byCategory, byMethod,
		report.FalsePositiveRate, newPatterns, nullString(report.AISummary), actionItems,
		report.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("report for %s already exists: %w",
				report.ReportDate.Format("2006-01-02"), ErrDuplicate)
		}
		return fmt.Errorf("failed to insert nightly report: %w", err)
	}
	return nil
}

const nightlyReportColumns = `
	id, report_date, total_scams_detected,
	scams_by_risk_level, scams_by_category, detection_methods,
	false_positive_rate, new_patterns_learned, ai_summary, action_items, created_at`

// GetByDate retrieves the report for a date, or nil if none exists
func (r *NightlyReportRepository) GetByDate(ctx context.Context, date time.Time) (*models.NightlyReport, error) {
	query := `SELECT ` + nightlyReportColumns + ` FROM nightly_reports WHERE report_date = $1`
	report, err := scanReport(r.pool.QueryRow(ctx, query, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get nightly report: %w", err)
	}
	return report, nil
}

// List retrieves the most recent reports, newest first
func (r *NightlyReportRepository) List(ctx context.Context, limit int) ([]*models.NightlyReport, error) {
	query := `SELECT ` + nightlyReportColumns + ` FROM nightly_reports ORDER BY report_date DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list nightly reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.NightlyReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan nightly report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read nightly report rows: %w", err)
	}
	return reports, nil
}

func scanReport(row pgx.Row) (*models.NightlyReport, error) {
	var (
		report      models.NightlyReport
		byRisk      []byte
		byCategory  []byte
		byMethod    []byte
		newPatterns []byte
		aiSummary   *string
		actionItems []byte
	)

	err := row.Scan(
		&report.ID, &report.ReportDate, &report.TotalScamsDetected,
		&byRisk, &byCategory, &byMethod,
		&report.FalsePositiveRate, &newPatterns, &aiSummary, &actionItems,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if aiSummary != nil {
		report.AISummary = *aiSummary
	}
	for _, field := range []struct {
		data []byte
		dest any
	}{
		{byRisk, &report.ScamsByRiskLevel},
		{byCategory, &report.ScamsByCategory},
		{byMethod, &report.DetectionMethods},
		{newPatterns, &report.NewPatterns},
		{actionItems, &report.ActionItems},
	} {
		if len(field.data) == 0 {
			continue
		}
		if err := json.Unmarshal(field.data, field.dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report field: %w", err)
		}
	}
	return &report, nil
}
