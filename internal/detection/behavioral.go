package detection

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"scamwatch/pkg/logger"
)

// SenderReputation is the store of senders known to send scams.
// The scorer is injected with an implementation rather than owning the
// set, so reputation survives process restarts when backed by Redis.
type SenderReputation interface {
	IsKnown(ctx context.Context, address string) (bool, error)
	Mark(ctx context.Context, address string) error
}

// MemorySenderReputation is an in-process SenderReputation, used in
// tests and as a degraded-mode fallback.
type MemorySenderReputation struct {
	mu    sync.RWMutex
	known map[string]struct{}
}

// NewMemorySenderReputation creates an empty in-memory reputation store
func NewMemorySenderReputation() *MemorySenderReputation {
	return &MemorySenderReputation{known: make(map[string]struct{})}
}

func (m *MemorySenderReputation) IsKnown(_ context.Context, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.known[address]
	return ok, nil
}

func (m *MemorySenderReputation) Mark(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.known[address] = struct{}{}
	return nil
}

// BehavioralResult is the outcome of behavioral scoring for one message
type BehavioralResult struct {
	Suspicious bool            `json:"is_suspicious"`
	Confidence float64         `json:"confidence"`
	Flags      map[string]bool `json:"flags"`
	Category   string          `json:"category,omitempty"`
}

// Behavioral flag names
const (
	FlagKnownScammer       = "known_scammer"
	FlagShortMessageLink   = "short_message_with_link"
	FlagExcessiveCaps      = "excessive_caps"
	FlagExcessiveExclaim   = "excessive_exclamation"
	FlagSuspiciousKeywords = "multiple_suspicious_keywords"
	FlagInternationalNum   = "international_number"
)

// behavioralCategory is the fixed category label for behavioral detections
const behavioralCategory = "behavioral_analysis"

// suspicionThreshold is the minimum summed weight to flag a message
const suspicionThreshold = 0.4

// linkHints are substrings that make a very short message look like a lure
var linkHints = []string{"http", "bit.ly", "click"}

// suspiciousKeywords trigger the keyword signal when two or more appear
var suspiciousKeywords = []string{
	"congratulations",
	"winner",
	"free money",
	"act now",
	"limited time",
	"expires",
	"verify account",
	"suspended",
	"locked",
}

// BehavioralScorer derives a suspicion score from the shape of a message
// and its sender, summing fixed weights for independent signals.
type BehavioralScorer struct {
	reputation SenderReputation
	logger     *logger.Logger
}

// NewBehavioralScorer creates a scorer backed by the given reputation store
func NewBehavioralScorer(reputation SenderReputation, log *logger.Logger) *BehavioralScorer {
	return &BehavioralScorer{
		reputation: reputation,
		logger:     log.WithComponent("behavioral-scorer"),
	}
}

// Evaluate checks the message against all behavioral signals.
// Weights are additive and only clamped at the end, so several
// simultaneous signals saturate the confidence quickly.
func (s *BehavioralScorer) Evaluate(ctx context.Context, sender, text, accountID string) BehavioralResult {
	flags := make(map[string]bool)
	score := 0.0
	lower := strings.ToLower(text)

	// Known scam sender. A reputation store failure is soft: the signal
	// simply contributes nothing to this evaluation.
	known, err := s.reputation.IsKnown(ctx, sender)
	if err != nil {
		s.logger.Warn().Err(err).Str("sender", sender).Msg("sender reputation lookup failed")
	} else if known {
		flags[FlagKnownScammer] = true
		score += 0.9
	}

	// Very short messages carrying a link
	if len(text) < 20 && containsAny(lower, linkHints) {
		flags[FlagShortMessageLink] = true
		score += 0.6
	}

	// Excessive capitalization
	if len(text) > 10 {
		upper := 0
		for _, r := range text {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if float64(upper)/float64(len(text)) > 0.5 {
			flags[FlagExcessiveCaps] = true
			score += 0.4
		}
	}

	// Multiple exclamation marks
	if strings.Count(text, "!") >= 3 {
		flags[FlagExcessiveExclaim] = true
		score += 0.3
	}

	// Two or more suspicious keywords
	matches := 0
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	if matches >= 2 {
		flags[FlagSuspiciousKeywords] = true
		score += 0.5
	}

	// Long sender numbers are often international spoofed routes
	if digitCount(sender) > 11 {
		flags[FlagInternationalNum] = true
		score += 0.2
	}

	confidence := min(1.0, score)
	suspicious := confidence >= suspicionThreshold

	result := BehavioralResult{
		Suspicious: suspicious,
		Confidence: confidence,
		Flags:      flags,
	}
	if suspicious {
		result.Category = behavioralCategory
		flagNames := make([]string, 0, len(flags))
		for name := range flags {
			flagNames = append(flagNames, name)
		}
		s.logger.Debug().
			Strs("flags", flagNames).
			Float64("confidence", confidence).
			Str("account_id", accountID).
			Msg("behavioral flags detected")
	}

	return result
}

// MarkSenderAsScam records the sender in the reputation store
func (s *BehavioralScorer) MarkSenderAsScam(ctx context.Context, address string) error {
	if err := s.reputation.Mark(ctx, address); err != nil {
		return err
	}
	s.logger.Info().Str("sender", address).Msg("marked sender as known scammer")
	return nil
}

func containsAny(text string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
