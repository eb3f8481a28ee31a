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

// ErrRunNotRunning is returned when finalizing a run that is not in the
// running state. Each run is finalized exactly once.
var ErrRunNotRunning = errors.New("detection run is not running")

// DetectionRunRepository handles detection run persistence
type DetectionRunRepository struct {
	pool *pgxpool.Pool
}

// NewDetectionRunRepository creates a new detection run repository
func NewDetectionRunRepository(pool *pgxpool.Pool) *DetectionRunRepository {
	return &DetectionRunRepository{pool: pool}
}

// Create inserts a run in the running state. Called at the start of a
// scan so a crash mid-run leaves visible evidence.
func (r *DetectionRunRepository) Create(ctx context.Context, run *models.DetectionRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now().UTC()
	if run.StartTime.IsZero() {
		run.StartTime = now
	}
	run.Status = models.RunStatusRunning
	run.CreatedAt = now

	query := `
		INSERT INTO detection_runs (id, run_type, start_time, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, run.ID, run.RunType, run.StartTime, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create detection run: %w", err)
	}
	return nil
}

// Finalize transitions a running run to completed or failed. The status
// guard in the WHERE clause makes finalization a one-shot operation even
// under concurrent callers.
func (r *DetectionRunRepository) Finalize(ctx context.Context, run *models.DetectionRun) error {
	if run.Status != models.RunStatusCompleted && run.Status != models.RunStatusFailed {
		return fmt.Errorf("cannot finalize run to status %q", run.Status)
	}

	breakdown, err := json.Marshal(run.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal detection breakdown: %w", err)
	}

	endTime := time.Now().UTC()
	run.EndTime = &endTime

	query := `
		UPDATE detection_runs
		SET status = $2,
		    end_time = $3,
		    messages_scanned = $4,
		    scams_detected = $5,
		    detection_breakdown = $6,
		    error_message = $7
		WHERE id = $1 AND status = 'running'`

	tag, err := r.pool.Exec(ctx, query,
		run.ID, run.Status, run.EndTime,
		run.MessagesScanned, run.ScamsDetected, breakdown,
		nullString(run.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize detection run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrRunNotRunning)
	}
	return nil
}

const detectionRunColumns = `
	id, run_type, start_time, end_time, status,
	messages_scanned, scams_detected, detection_breakdown, error_message, created_at`

// GetByID retrieves a run by ID, or nil if none exists
func (r *DetectionRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DetectionRun, error) {
	query := `SELECT ` + detectionRunColumns + ` FROM detection_runs WHERE id = $1`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get detection run: %w", err)
	}
	return run, nil
}

// Latest retrieves the most recently started run, or nil if none exist
func (r *DetectionRunRepository) Latest(ctx context.Context) (*models.DetectionRun, error) {
	query := `SELECT ` + detectionRunColumns + ` FROM detection_runs ORDER BY start_time DESC, id LIMIT 1`
	run, err := scanRun(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest detection run: %w", err)
	}
	return run, nil
}

func scanRun(row pgx.Row) (*models.DetectionRun, error) {
	var (
		run          models.DetectionRun
		breakdown    []byte
		errorMessage *string
	)

	err := row.Scan(
		&run.ID, &run.RunType, &run.StartTime, &run.EndTime, &run.Status,
		&run.MessagesScanned, &run.ScamsDetected, &breakdown, &errorMessage, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &run.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal detection breakdown: %w", err)
		}
	}
	return &run, nil
}
