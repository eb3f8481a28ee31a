package detection

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamwatch/pkg/logger"
)

func newTestRuleLibrary(t *testing.T) *RuleLibrary {
	t.Helper()
	return NewRuleLibrary(logger.NewDefault())
}

func TestRuleLibrary_Evaluate(t *testing.T) {
	lib := newTestRuleLibrary(t)

	tests := []struct {
		name             string
		text             string
		matched          bool
		category         string
		confidence       float64
		minPatternsCount int
	}{
		{
			name:    "clean message",
			text:    "Hey, are we still on for lunch tomorrow?",
			matched: false,
		},
		{
			name:             "account verification phishing",
			text:             "Please verify your account immediately",
			matched:          true,
			category:         "phishing",
			confidence:       0.7,
			minPatternsCount: 1,
		},
		{
			name:             "case insensitive match",
			text:             "SUSPENDED ACCOUNT: action required",
			matched:          true,
			category:         "phishing",
			confidence:       0.8,
			minPatternsCount: 1,
		},
		{
			name:             "government impersonation wins over weaker matches",
			text:             "IRS notice: you owe back taxes, act now before this expires soon",
			matched:          true,
			category:         "social_engineering",
			confidence:       0.9,
			minPatternsCount: 2,
		},
		{
			name:             "courier impersonation",
			text:             "USPS: schedule your redelivery at the link",
			matched:          true,
			category:         "package_delivery",
			confidence:       0.8,
			minPatternsCount: 1,
		},
		{
			name:             "prize scam",
			text:             "You are a winner! Claim your prize today",
			matched:          true,
			category:         "financial_fraud",
			confidence:       0.7,
			minPatternsCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := lib.Evaluate(tt.text)
			assert.Equal(t, tt.matched, match.Matched)
			if !tt.matched {
				assert.Empty(t, match.Descriptions)
				assert.Zero(t, match.Confidence)
				return
			}
			assert.Equal(t, tt.category, match.Category)
			assert.InDelta(t, tt.confidence, match.Confidence, 0.001)
			assert.GreaterOrEqual(t, len(match.Descriptions), tt.minPatternsCount)
		})
	}
}

func TestRuleLibrary_EvaluateTieBreak(t *testing.T) {
	lib := newTestRuleLibrary(t)

	// "suspend...account" (phishing, 0.8) and "urgent...payment"
	// (financial_fraud, 0.8) tie on confidence; the first registered
	// category wins.
	match := lib.Evaluate("your account is suspended, urgent payment required")
	require.True(t, match.Matched)
	assert.InDelta(t, 0.8, match.Confidence, 0.001)
	assert.Equal(t, "phishing", match.Category)
}

func TestRuleLibrary_EvaluateCollectsAllDescriptions(t *testing.T) {
	lib := newTestRuleLibrary(t)

	match := lib.Evaluate("URGENT payment needed: verify your account, click here")
	require.True(t, match.Matched)
	assert.Contains(t, match.Descriptions, "Account verification request")
	assert.Contains(t, match.Descriptions, "Suspicious link request")
	assert.Contains(t, match.Descriptions, "Urgent payment request")
}

func TestRuleLibrary_RegisterRule(t *testing.T) {
	lib := newTestRuleLibrary(t)
	before := lib.RuleCount()

	err := lib.RegisterRule("crypto", `(bitcoin|crypto).*double`, 0.85, "Crypto doubling scam")
	require.NoError(t, err)
	assert.Equal(t, before+1, lib.RuleCount())
	assert.Contains(t, lib.Categories(), "crypto")

	match := lib.Evaluate("Send us Bitcoin and we will DOUBLE it")
	require.True(t, match.Matched)
	assert.Equal(t, "crypto", match.Category)
	assert.InDelta(t, 0.85, match.Confidence, 0.001)
}

func TestRuleLibrary_RegisterRuleValidation(t *testing.T) {
	lib := newTestRuleLibrary(t)

	err := lib.RegisterRule("x", `valid`, 1.5, "confidence out of range")
	assert.Error(t, err)

	err = lib.RegisterRule("x", `valid`, -0.1, "confidence out of range")
	assert.Error(t, err)

	err = lib.RegisterRule("x", `(unclosed`, 0.5, "bad regex")
	assert.Error(t, err)

	// Nothing was registered by the failed attempts
	assert.NotContains(t, lib.Categories(), "x")
}

func TestRuleLibrary_ConcurrentRegisterAndEvaluate(t *testing.T) {
	lib := newTestRuleLibrary(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 8; i++ {
			err := lib.RegisterRule("load", fmt.Sprintf(`loadtest%d`, i), 0.5, fmt.Sprintf("load rule %d", i))
			assert.NoError(t, err)
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				match := lib.Evaluate("verify your account now")
				assert.True(t, match.Matched)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, lib.Categories(), 6)
}
