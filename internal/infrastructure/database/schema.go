package database

import (
	"context"
	"fmt"
)

const schema = `
	CREATE TABLE IF NOT EXISTS scam_flags (
		id UUID PRIMARY KEY,
		message_id UUID NOT NULL UNIQUE,
		account_id UUID NOT NULL,
		is_scam BOOLEAN NOT NULL,
		risk_level VARCHAR(10) NOT NULL CHECK (risk_level IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL')),
		risk_score DOUBLE PRECISION NOT NULL CHECK (risk_score >= 0 AND risk_score <= 100),
		detection_method VARCHAR(20) NOT NULL,
		detection_category VARCHAR(50),
		matched_patterns TEXT[] NOT NULL DEFAULT '{}',
		behavioral_flags JSONB NOT NULL DEFAULT '{}',
		message_text TEXT NOT NULL,
		from_number VARCHAR(32) NOT NULL,
		to_number VARCHAR(32) NOT NULL,
		sent_at TIMESTAMPTZ NOT NULL,
		reviewed BOOLEAN NOT NULL DEFAULT false,
		review_status VARCHAR(20) NOT NULL DEFAULT 'pending'
			CHECK (review_status IN ('pending', 'confirmed_scam', 'false_positive')),
		review_notes TEXT,
		reviewed_by VARCHAR(100),
		reviewed_at TIMESTAMPTZ,
		flagged_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	-- Backs ListByDay and ListUnreviewedHighRisk
	CREATE INDEX IF NOT EXISTS idx_scam_flags_flagged_at ON scam_flags(flagged_at);
	CREATE INDEX IF NOT EXISTS idx_scam_flags_review ON scam_flags(reviewed, risk_level, flagged_at);

	CREATE TABLE IF NOT EXISTS detection_runs (
		id UUID PRIMARY KEY,
		run_type VARCHAR(20) NOT NULL CHECK (run_type IN ('periodic', 'nightly', 'manual')),
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		status VARCHAR(20) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
		messages_scanned INTEGER NOT NULL DEFAULT 0,
		scams_detected INTEGER NOT NULL DEFAULT 0,
		detection_breakdown JSONB NOT NULL DEFAULT '{}',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_detection_runs_start_time ON detection_runs(start_time DESC);

	CREATE TABLE IF NOT EXISTS nightly_reports (
		id UUID PRIMARY KEY,
		report_date DATE NOT NULL UNIQUE,
		total_scams_detected INTEGER NOT NULL DEFAULT 0,
		scams_by_risk_level JSONB NOT NULL DEFAULT '{}',
		scams_by_category JSONB NOT NULL DEFAULT '{}',
		detection_methods JSONB NOT NULL DEFAULT '{}',
		false_positive_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		new_patterns_learned JSONB NOT NULL DEFAULT '[]',
		ai_summary TEXT,
		action_items JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

// InitSchema creates the tables if they don't exist
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
