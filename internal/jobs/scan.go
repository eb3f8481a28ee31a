package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scamwatch/internal/ai"
	"scamwatch/internal/detection"
	"scamwatch/internal/domain/models"
	"scamwatch/internal/infrastructure/database/repository"
	"scamwatch/pkg/logger"
)

// MessageSource supplies all messages sent within a time window.
// Pagination and transport retries are its responsibility; the returned
// set is complete and non-duplicated.
type MessageSource interface {
	FetchWindow(ctx context.Context, start, end time.Time) ([]models.Message, error)
}

// FlagStore is the persistence surface the jobs need for scam flags
type FlagStore interface {
	Insert(ctx context.Context, f *models.ScamFlag) error
	GetByMessageID(ctx context.Context, messageID uuid.UUID) (*models.ScamFlag, error)
	ListByDay(ctx context.Context, dayStart time.Time) ([]*models.ScamFlag, error)
	ListUnreviewedHighRisk(ctx context.Context, dayStart time.Time, limit int) ([]*models.ScamFlag, error)
}

// RunStore persists detection run records
type RunStore interface {
	Create(ctx context.Context, run *models.DetectionRun) error
	Finalize(ctx context.Context, run *models.DetectionRun) error
}

// ReportStore persists nightly reports
type ReportStore interface {
	Insert(ctx context.Context, report *models.NightlyReport) error
}

// Reviewer is the AI review connector consumed by the nightly job
type Reviewer interface {
	Review(ctx context.Context, messageText, currentCategory string) (*ai.Insight, error)
	Summarize(ctx context.Context, totalScams int, byRisk map[string]int, falsePositiveRate float64) (string, error)
}

// Scanner applies the detector to a window of messages, persisting new
// scam flags and bookkeeping the run.
type Scanner struct {
	source   MessageSource
	detector *detection.Detector
	flags    FlagStore
	runs     RunStore
	logger   *logger.Logger
}

// NewScanner creates a scan orchestrator
func NewScanner(source MessageSource, detector *detection.Detector, flags FlagStore, runs RunStore, log *logger.Logger) *Scanner {
	return &Scanner{
		source:   source,
		detector: detector,
		flags:    flags,
		runs:     runs,
		logger:   log.WithComponent("scanner"),
	}
}

// Run executes one scan over the window. The run record is created in
// the running state before any work starts and is finalized exactly once
// on every exit path, including panics and context cancellation, so a
// run is never left permanently running.
//
// Re-scanning an overlapping window is safe: messages that already have
// a flag are skipped, so at most one flag exists per message.
func (s *Scanner) Run(ctx context.Context, runType models.RunType, windowStart, windowEnd time.Time) (run *models.DetectionRun, err error) {
	run = &models.DetectionRun{
		RunType: runType,
		Breakdown: models.DetectionBreakdown{
			ByRiskLevel: map[string]int{},
			ByMethod:    map[string]int{},
		},
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create detection run: %w", err)
	}

	log := s.logger.WithRunID(run.ID)
	log.Info().
		Str("run_type", string(runType)).
		Time("window_start", windowStart).
		Time("window_end", windowEnd).
		Msg("starting scan")

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scan panicked: %v", p)
		}
		s.finalize(run, err, log)
	}()

	messages, err := s.source.FetchWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return run, fmt.Errorf("failed to fetch messages: %w", err)
	}
	run.MessagesScanned = len(messages)

	for _, msg := range messages {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}
		s.scanMessage(ctx, run, msg, log)
	}

	log.Info().
		Int("messages_scanned", run.MessagesScanned).
		Int("scams_detected", run.ScamsDetected).
		Msg("scan completed")

	return run, nil
}

// scanMessage classifies and, if needed, flags one message. Failures
// here are per-message: logged and skipped so one bad message cannot
// abort the batch.
func (s *Scanner) scanMessage(ctx context.Context, run *models.DetectionRun, msg models.Message, log *logger.Logger) {
	result, err := s.detector.Classify(ctx, msg)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to analyze message")
		return
	}
	if result == nil {
		return
	}

	// Idempotency check: overlapping or re-run windows must not produce
	// a second flag for the same message.
	existing, err := s.flags.GetByMessageID(ctx, msg.ID)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to check existing flag")
		return
	}
	if existing != nil {
		log.Debug().Str("message_id", msg.ID.String()).Msg("message already flagged, skipping")
		return
	}

	flag := models.NewScamFlag(msg, result)
	if err := s.flags.Insert(ctx, flag); err != nil {
		// A concurrent writer won the insert between our check and now;
		// same outcome as the dedup skip above.
		if errors.Is(err, repository.ErrDuplicate) {
			log.Debug().Str("message_id", msg.ID.String()).Msg("flag inserted concurrently, skipping")
			return
		}
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to save scam flag")
		return
	}

	run.ScamsDetected++
	run.Breakdown.ByRiskLevel[string(result.RiskLevel)]++
	run.Breakdown.ByMethod[string(result.Method)]++
}

// finalize transitions the run out of the running state. It uses a
// background context with a short timeout so a cancelled scan can still
// record its failure.
func (s *Scanner) finalize(run *models.DetectionRun, runErr error, log *logger.Logger) {
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = runErr.Error()
	} else {
		run.Status = models.RunStatusCompleted
	}

	finalizeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.runs.Finalize(finalizeCtx, run); err != nil {
		log.Error().Err(err).Str("status", string(run.Status)).Msg("failed to finalize detection run")
		return
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("scan failed")
	}
}
