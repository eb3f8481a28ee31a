package detection

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamwatch/internal/config"
	"scamwatch/internal/domain/models"
	"scamwatch/pkg/logger"
)

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		RuleWeight:       60,
		BehavioralWeight: 40,
		Thresholds: config.ThresholdsConfig{
			Critical: 0.9,
			High:     0.7,
			Medium:   0.4,
		},
	}
}

func newTestDetector(t *testing.T) (*Detector, *MemorySenderReputation) {
	t.Helper()
	log := logger.NewDefault()
	reputation := NewMemorySenderReputation()
	rules := NewRuleLibrary(log)
	behavioral := NewBehavioralScorer(reputation, log)
	return NewDetector(rules, behavioral, testDetectionConfig(), log), reputation
}

func testMessage(body, from string) models.Message {
	return models.Message{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		Body:       body,
		FromNumber: from,
		ToNumber:   "+15559876543",
		SentAt:     time.Now().UTC(),
	}
}

func TestDetector_ClassifyCleanMessage(t *testing.T) {
	detector, _ := newTestDetector(t)

	result, err := detector.Classify(context.Background(), testMessage(
		"Hi mum, I'll be home around seven tonight", "+15551234567"))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDetector_ClassifyRuleOnly(t *testing.T) {
	detector, _ := newTestDetector(t)

	// "verify...account" matches at 0.7; no behavioral signal fires.
	// Score = 0.7*60 = 42 -> MEDIUM (0.42 >= 0.4).
	result, err := detector.Classify(context.Background(), testMessage(
		"please verify your account details when you have a moment", "+15551234567"))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.IsScam)
	assert.InDelta(t, 42, result.RiskScore, 0.001)
	assert.Equal(t, models.RiskLevelMedium, result.RiskLevel)
	assert.Equal(t, models.MethodPatternMatch, result.Method)
	assert.Equal(t, "phishing", result.Category)
	assert.NotEmpty(t, result.MatchedPatterns)
}

func TestDetector_ClassifyBehavioralOnly(t *testing.T) {
	detector, reputation := newTestDetector(t)
	require.NoError(t, reputation.Mark(context.Background(), "+15550009999"))

	// Known scammer sender, rule-clean text. Behavioral confidence 0.9,
	// score = 0.9*40 = 36 -> LOW (0.36 < 0.4).
	result, err := detector.Classify(context.Background(), testMessage(
		"hello there, just checking in", "+15550009999"))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.InDelta(t, 36, result.RiskScore, 0.001)
	assert.Equal(t, models.RiskLevelLow, result.RiskLevel)
	assert.Equal(t, models.MethodBehavioral, result.Method)
	assert.Equal(t, "behavioral_analysis", result.Category)
	assert.True(t, result.BehavioralFlags[FlagKnownScammer])
}

func TestDetector_ClassifyHybrid(t *testing.T) {
	detector, reputation := newTestDetector(t)
	require.NoError(t, reputation.Mark(context.Background(), "+15550009999"))

	// Rule: "(tax|IRS|government).*owe" at 0.9. Behavioral: known scammer
	// 0.9 plus keyword signal does not fire (one keyword only), so 0.9.
	// Score = 0.9*60 + 0.9*40 = 90 -> CRITICAL (0.9 >= 0.9, inclusive).
	result, err := detector.Classify(context.Background(), testMessage(
		"IRS final notice: you owe back taxes", "+15550009999"))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.InDelta(t, 90, result.RiskScore, 0.001)
	assert.Equal(t, models.RiskLevelCritical, result.RiskLevel)
	assert.Equal(t, models.MethodHybrid, result.Method)
	// Rule category wins over the behavioral one
	assert.Equal(t, "social_engineering", result.Category)
}

func TestDetector_RiskLevelThresholds(t *testing.T) {
	detector, _ := newTestDetector(t)

	tests := []struct {
		score float64
		level models.RiskLevel
	}{
		{0, models.RiskLevelLow},
		{39.9, models.RiskLevelLow},
		{40, models.RiskLevelMedium}, // inclusive lower bound
		{69.9, models.RiskLevelMedium},
		{70, models.RiskLevelHigh},
		{89.9, models.RiskLevelHigh},
		{90, models.RiskLevelCritical},
		{100, models.RiskLevelCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, detector.riskLevel(tt.score), "score %v", tt.score)
	}
}

func TestDetector_RiskScoreClamped(t *testing.T) {
	detector, _ := newTestDetector(t)

	score := detector.riskScore(
		RuleMatch{Matched: true, Confidence: 1.0},
		BehavioralResult{Suspicious: true, Confidence: 1.0},
	)
	assert.Equal(t, 100.0, score)

	score = detector.riskScore(RuleMatch{}, BehavioralResult{})
	assert.Equal(t, 0.0, score)
}

func TestDetector_UnfiredSignalContributesZero(t *testing.T) {
	detector, _ := newTestDetector(t)

	// Behavioral confidence is below the suspicion threshold, so even a
	// nonzero confidence contributes nothing.
	score := detector.riskScore(
		RuleMatch{Matched: true, Confidence: 0.5},
		BehavioralResult{Suspicious: false, Confidence: 0.3},
	)
	assert.InDelta(t, 30, score, 0.001)
}

func TestDetectionMethod(t *testing.T) {
	assert.Equal(t, models.MethodHybrid, detectionMethod(true, true))
	assert.Equal(t, models.MethodPatternMatch, detectionMethod(true, false))
	assert.Equal(t, models.MethodBehavioral, detectionMethod(false, true))
	assert.Equal(t, models.MethodUnknown, detectionMethod(false, false))
}
