package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamwatch/internal/config"
	"scamwatch/internal/detection"
	"scamwatch/internal/domain/models"
	"scamwatch/internal/infrastructure/database/repository"
	"scamwatch/pkg/logger"
)

// fakeSource serves a fixed message set, or fails
type fakeSource struct {
	messages []models.Message
	err      error
}

func (s *fakeSource) FetchWindow(ctx context.Context, start, end time.Time) ([]models.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.messages, nil
}

// fakeFlagStore is an in-memory FlagStore keyed by message ID
type fakeFlagStore struct {
	mu        sync.Mutex
	byMessage map[uuid.UUID]*models.ScamFlag
	insertErr error
}

func newFakeFlagStore() *fakeFlagStore {
	return &fakeFlagStore{byMessage: make(map[uuid.UUID]*models.ScamFlag)}
}

func (s *fakeFlagStore) Insert(ctx context.Context, f *models.ScamFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.byMessage[f.MessageID]; ok {
		return fmt.Errorf("flag for message %s: %w", f.MessageID, repository.ErrDuplicate)
	}
	s.byMessage[f.MessageID] = f
	return nil
}

func (s *fakeFlagStore) GetByMessageID(ctx context.Context, messageID uuid.UUID) (*models.ScamFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byMessage[messageID], nil
}

func (s *fakeFlagStore) ListByDay(ctx context.Context, dayStart time.Time) ([]*models.ScamFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScamFlag
	for _, f := range s.byMessage {
		if !f.FlaggedAt.Before(dayStart) && f.FlaggedAt.Before(dayStart.Add(24*time.Hour)) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeFlagStore) ListUnreviewedHighRisk(ctx context.Context, dayStart time.Time, limit int) ([]*models.ScamFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScamFlag
	for _, f := range s.byMessage {
		if f.Reviewed {
			continue
		}
		if f.RiskLevel != models.RiskLevelCritical && f.RiskLevel != models.RiskLevelHigh {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, f)
	}
	return out, nil
}

// fakeRunStore records run lifecycle transitions
type fakeRunStore struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*models.DetectionRun
	finalized []models.DetectionRun
	createErr error
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[uuid.UUID]*models.DetectionRun)}
}

func (s *fakeRunStore) Create(ctx context.Context, run *models.DetectionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	run.ID = uuid.New()
	run.Status = models.RunStatusRunning
	run.StartTime = time.Now().UTC()
	snapshot := *run
	s.runs[run.ID] = &snapshot
	return nil
}

func (s *fakeRunStore) Finalize(ctx context.Context, run *models.DetectionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.runs[run.ID]
	if !ok || stored.Status != models.RunStatusRunning {
		return repository.ErrRunNotRunning
	}
	endTime := time.Now().UTC()
	run.EndTime = &endTime
	snapshot := *run
	s.runs[run.ID] = &snapshot
	s.finalized = append(s.finalized, snapshot)
	return nil
}

func (s *fakeRunStore) finalizedRuns() []models.DetectionRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DetectionRun(nil), s.finalized...)
}

func newScanTestDetector(t *testing.T) *detection.Detector {
	t.Helper()
	log := logger.NewDefault()
	rules := detection.NewRuleLibrary(log)
	behavioral := detection.NewBehavioralScorer(detection.NewMemorySenderReputation(), log)
	cfg := config.DetectionConfig{
		RuleWeight:       60,
		BehavioralWeight: 40,
		Thresholds:       config.ThresholdsConfig{Critical: 0.9, High: 0.7, Medium: 0.4},
	}
	return detection.NewDetector(rules, behavioral, cfg, log)
}

func scamMessage() models.Message {
	return models.Message{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		Body:       "URGENT payment required: your account is suspended",
		FromNumber: "+15550001111",
		ToNumber:   "+15559998888",
		SentAt:     time.Now().UTC(),
	}
}

func cleanMessage() models.Message {
	return models.Message{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		Body:       "Running ten minutes late, sorry",
		FromNumber: "+15550002222",
		ToNumber:   "+15559998888",
		SentAt:     time.Now().UTC(),
	}
}

func TestScanner_Run(t *testing.T) {
	scam := scamMessage()
	source := &fakeSource{messages: []models.Message{scam, cleanMessage(), cleanMessage()}}
	flags := newFakeFlagStore()
	runs := newFakeRunStore()
	scanner := NewScanner(source, newScanTestDetector(t), flags, runs, logger.NewDefault())

	end := time.Now().UTC()
	run, err := scanner.Run(context.Background(), models.RunTypePeriodic, end.Add(-time.Hour), end)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.MessagesScanned)
	assert.Equal(t, 1, run.ScamsDetected)
	assert.NotNil(t, run.EndTime)

	flag, err := flags.GetByMessageID(context.Background(), scam.ID)
	require.NoError(t, err)
	require.NotNil(t, flag)
	assert.True(t, flag.IsScam)
	assert.Equal(t, scam.Body, flag.MessageText)
	assert.Equal(t, models.ReviewStatusPending, flag.ReviewStatus)

	// Breakdown counts only the new flag
	total := 0
	for _, n := range run.Breakdown.ByRiskLevel {
		total += n
	}
	assert.Equal(t, 1, total)
}

func TestScanner_RunIdempotent(t *testing.T) {
	scam := scamMessage()
	source := &fakeSource{messages: []models.Message{scam}}
	flags := newFakeFlagStore()
	runs := newFakeRunStore()
	scanner := NewScanner(source, newScanTestDetector(t), flags, runs, logger.NewDefault())

	ctx := context.Background()
	end := time.Now().UTC()

	first, err := scanner.Run(ctx, models.RunTypePeriodic, end.Add(-time.Hour), end)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ScamsDetected)

	// Re-scanning the same window flags nothing new
	second, err := scanner.Run(ctx, models.RunTypePeriodic, end.Add(-time.Hour), end)
	require.NoError(t, err)
	assert.Equal(t, 1, second.MessagesScanned)
	assert.Equal(t, 0, second.ScamsDetected)
	assert.Empty(t, second.Breakdown.ByRiskLevel)

	flag, err := flags.GetByMessageID(ctx, scam.ID)
	require.NoError(t, err)
	require.NotNil(t, flag)
}

func TestScanner_ConcurrentInsertCountsOnce(t *testing.T) {
	scam := scamMessage()
	source := &fakeSource{messages: []models.Message{scam}}
	flags := newFakeFlagStore()
	runs := newFakeRunStore()
	scanner := NewScanner(source, newScanTestDetector(t), flags, runs, logger.NewDefault())

	// Simulate a concurrent writer winning between the dedup check and
	// the insert: pre-insert the flag directly.
	existing := models.NewScamFlag(scam, &models.DetectionResult{
		IsScam:    true,
		RiskLevel: models.RiskLevelHigh,
		RiskScore: 75,
		Method:    models.MethodPatternMatch,
	})
	require.NoError(t, flags.Insert(context.Background(), existing))

	end := time.Now().UTC()
	run, err := scanner.Run(context.Background(), models.RunTypePeriodic, end.Add(-time.Hour), end)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.ScamsDetected)
}

func TestScanner_FetchFailureFinalizesRunAsFailed(t *testing.T) {
	source := &fakeSource{err: errors.New("portal unreachable")}
	runs := newFakeRunStore()
	scanner := NewScanner(source, newScanTestDetector(t), newFakeFlagStore(), runs, logger.NewDefault())

	end := time.Now().UTC()
	run, err := scanner.Run(context.Background(), models.RunTypePeriodic, end.Add(-time.Hour), end)
	require.Error(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "portal unreachable")

	finalized := runs.finalizedRuns()
	require.Len(t, finalized, 1)
	assert.Equal(t, models.RunStatusFailed, finalized[0].Status)
}

func TestScanner_CreateFailureDoesNotScan(t *testing.T) {
	runs := newFakeRunStore()
	runs.createErr = errors.New("db down")
	source := &fakeSource{messages: []models.Message{scamMessage()}}
	scanner := NewScanner(source, newScanTestDetector(t), newFakeFlagStore(), runs, logger.NewDefault())

	end := time.Now().UTC()
	run, err := scanner.Run(context.Background(), models.RunTypePeriodic, end.Add(-time.Hour), end)
	require.Error(t, err)
	assert.Nil(t, run)
	assert.Empty(t, runs.finalizedRuns())
}

func TestScanner_ContextCancellationFailsRun(t *testing.T) {
	messages := make([]models.Message, 5)
	for i := range messages {
		messages[i] = cleanMessage()
	}
	source := &fakeSource{messages: messages}
	runs := newFakeRunStore()
	scanner := NewScanner(source, newScanTestDetector(t), newFakeFlagStore(), runs, logger.NewDefault())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	end := time.Now().UTC()
	run, err := scanner.Run(ctx, models.RunTypePeriodic, end.Add(-time.Hour), end)
	require.Error(t, err)
	require.NotNil(t, run)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	finalized := runs.finalizedRuns()
	require.Len(t, finalized, 1)
	assert.Equal(t, models.RunStatusFailed, finalized[0].Status)
}

func TestScanner_InsertErrorSkipsMessage(t *testing.T) {
	scam := scamMessage()
	source := &fakeSource{messages: []models.Message{scam}}
	flags := newFakeFlagStore()
	flags.insertErr = errors.New("disk full")
	runs := newFakeRunStore()
	scanner := NewScanner(source, newScanTestDetector(t), flags, runs, logger.NewDefault())

	end := time.Now().UTC()
	run, err := scanner.Run(context.Background(), models.RunTypePeriodic, end.Add(-time.Hour), end)
	require.NoError(t, err)

	// The failed message is skipped, not fatal to the run
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.ScamsDetected)
}
