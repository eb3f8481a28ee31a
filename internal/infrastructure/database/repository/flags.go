package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"scamwatch/internal/domain/models"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
var ErrDuplicate = errors.New("duplicate row")

// pgUniqueViolation is the Postgres error code for unique_violation
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// ScamFlagRepository handles scam flag persistence
type ScamFlagRepository struct {
	pool *pgxpool.Pool
}

// NewScamFlagRepository creates a new scam flag repository
func NewScamFlagRepository(pool *pgxpool.Pool) *ScamFlagRepository {
	return &ScamFlagRepository{pool: pool}
}

// Insert persists a new scam flag. A uniqueness violation on message_id
// surfaces as ErrDuplicate so the caller can treat a concurrent insert
// of the same message as the dedup-skip path.
func (r *ScamFlagRepository) Insert(ctx context.Context, f *models.ScamFlag) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	now := time.Now().UTC()
	if f.FlaggedAt.IsZero() {
		f.FlaggedAt = now
	}
	f.CreatedAt = now
	f.UpdatedAt = now

	behavioralFlags, err := json.Marshal(f.BehavioralFlags)
	if err != nil {
		return fmt.Errorf("failed to marshal behavioral flags: %w", err)
	}

	query := `
		INSERT INTO scam_flags (
			id, message_id, account_id, is_scam, risk_level, risk_score,
			detection_method, detection_category, matched_patterns, behavioral_flags,
			message_text, from_number, to_number, sent_at,
			reviewed, review_status, flagged_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)`

	_, err = r.pool.Exec(ctx, query,
		f.ID, f.MessageID, f.AccountID, f.IsScam, f.RiskLevel, f.RiskScore,
		f.Method, nullString(f.Category), f.MatchedPatterns, behavioralFlags,
		f.MessageText, f.FromNumber, f.ToNumber, f.SentAt,
		f.Reviewed, f.ReviewStatus, f.FlaggedAt, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("flag for message %s: %w", f.MessageID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert scam flag: %w", err)
	}
	return nil
}

const scamFlagColumns = `
	id, message_id, account_id, is_scam, risk_level, risk_score,
	detection_method, detection_category, matched_patterns, behavioral_flags,
	message_text, from_number, to_number, sent_at,
	reviewed, review_status, review_notes, reviewed_by, reviewed_at,
	flagged_at, created_at, updated_at`

// GetByMessageID retrieves the flag for a message, or nil if none exists.
// This is the idempotency check used by the scan orchestrator.
func (r *ScamFlagRepository) GetByMessageID(ctx context.Context, messageID uuid.UUID) (*models.ScamFlag, error) {
	query := `SELECT ` + scamFlagColumns + ` FROM scam_flags WHERE message_id = $1`
	f, err := scanFlag(r.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get flag by message ID: %w", err)
	}
	return f, nil
}

// ListByDay retrieves all flags whose flagged timestamp falls within the
// UTC calendar day starting at dayStart.
func (r *ScamFlagRepository) ListByDay(ctx context.Context, dayStart time.Time) ([]*models.ScamFlag, error) {
	query := `
		SELECT ` + scamFlagColumns + `
		FROM scam_flags
		WHERE flagged_at >= $1 AND flagged_at < $2
		ORDER BY flagged_at, id`

	rows, err := r.pool.Query(ctx, query, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to list flags by day: %w", err)
	}
	defer rows.Close()

	return collectFlags(rows)
}

// ListUnreviewedHighRisk retrieves up to limit unreviewed CRITICAL/HIGH
// flags for the given UTC day, newest first. The secondary id ordering
// keeps the selection deterministic when timestamps tie.
func (r *ScamFlagRepository) ListUnreviewedHighRisk(ctx context.Context, dayStart time.Time, limit int) ([]*models.ScamFlag, error) {
	query := `
		SELECT ` + scamFlagColumns + `
		FROM scam_flags
		WHERE flagged_at >= $1 AND flagged_at < $2
		  AND risk_level IN ('CRITICAL', 'HIGH')
		  AND reviewed = false
		ORDER BY flagged_at DESC, id
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, dayStart, dayStart.Add(24*time.Hour), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unreviewed high-risk flags: %w", err)
	}
	defer rows.Close()

	return collectFlags(rows)
}

// UpdateReviewStatus applies a review decision to a batch of flags.
// Only the review workflow goes through here; the detection pipeline
// never mutates flags after creation.
func (r *ScamFlagRepository) UpdateReviewStatus(ctx context.Context, ids []uuid.UUID, status models.ReviewStatus, reviewedBy, notes string) (int64, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("invalid review status %q", status)
	}

	query := `
		UPDATE scam_flags
		SET reviewed = true,
		    review_status = $2,
		    reviewed_by = $3,
		    review_notes = $4,
		    reviewed_at = now(),
		    updated_at = now()
		WHERE id = ANY($1)`

	tag, err := r.pool.Exec(ctx, query, ids, status, reviewedBy, nullString(notes))
	if err != nil {
		return 0, fmt.Errorf("failed to update review status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectFlags(rows pgx.Rows) ([]*models.ScamFlag, error) {
	var flags []*models.ScamFlag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scam flag: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scam flag rows: %w", err)
	}
	return flags, nil
}

func scanFlag(row pgx.Row) (*models.ScamFlag, error) {
	var (
		f               models.ScamFlag
		category        *string
		behavioralFlags []byte
		reviewStatus    *string
		reviewNotes     *string
		reviewedBy      *string
	)

	err := row.Scan(
		&f.ID, &f.MessageID, &f.AccountID, &f.IsScam, &f.RiskLevel, &f.RiskScore,
		&f.Method, &category, &f.MatchedPatterns, &behavioralFlags,
		&f.MessageText, &f.FromNumber, &f.ToNumber, &f.SentAt,
		&f.Reviewed, &reviewStatus, &reviewNotes, &reviewedBy, &f.ReviewedAt,
		&f.FlaggedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if category != nil {
		f.Category = *category
	}
	if reviewStatus != nil {
		f.ReviewStatus = models.ReviewStatus(*reviewStatus)
	}
	if reviewNotes != nil {
		f.ReviewNotes = *reviewNotes
	}
	if reviewedBy != nil {
		f.ReviewedBy = *reviewedBy
	}
	if len(behavioralFlags) > 0 {
		if err := json.Unmarshal(behavioralFlags, &f.BehavioralFlags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal behavioral flags: %w", err)
		}
	}
	return &f, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
