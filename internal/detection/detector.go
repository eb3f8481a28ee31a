package detection

import (
	"context"

	"scamwatch/internal/config"
	"scamwatch/internal/domain/models"
	"scamwatch/pkg/logger"
)

// Detector blends the rule library and behavioral scorer into a single
// classification. This is the central policy surface: the score weights
// and risk thresholds come from configuration, not code.
type Detector struct {
	rules      *RuleLibrary
	behavioral *BehavioralScorer
	cfg        config.DetectionConfig
	logger     *logger.Logger
}

// NewDetector creates a detector over the given signal sources
func NewDetector(rules *RuleLibrary, behavioral *BehavioralScorer, cfg config.DetectionConfig, log *logger.Logger) *Detector {
	return &Detector{
		rules:      rules,
		behavioral: behavioral,
		cfg:        cfg,
		logger:     log.WithComponent("detector"),
	}
}

// Classify analyzes a message and returns a detection result, or nil if
// neither signal judged it suspicious. The nil path is what keeps the
// flag table small: clean traffic is never persisted.
func (d *Detector) Classify(ctx context.Context, msg models.Message) (*models.DetectionResult, error) {
	ruleMatch := d.rules.Evaluate(msg.Body)
	behavioral := d.behavioral.Evaluate(ctx, msg.FromNumber, msg.Body, msg.AccountID.String())

	if !ruleMatch.Matched && !behavioral.Suspicious {
		return nil, nil
	}

	score := d.riskScore(ruleMatch, behavioral)

	result := &models.DetectionResult{
		IsScam:          true,
		RiskScore:       score,
		RiskLevel:       d.riskLevel(score),
		Method:          detectionMethod(ruleMatch.Matched, behavioral.Suspicious),
		Category:        ruleMatch.Category,
		MatchedPatterns: ruleMatch.Descriptions,
		BehavioralFlags: behavioral.Flags,
	}
	if result.Category == "" {
		result.Category = behavioral.Category
	}

	d.logger.Debug().
		Str("message_id", msg.ID.String()).
		Float64("risk_score", score).
		Str("risk_level", string(result.RiskLevel)).
		Str("method", string(result.Method)).
		Msg("message classified as scam")

	return result, nil
}

// riskScore combines the signal confidences into a 0-100 score.
// Rule evidence carries more weight than behavioral evidence because a
// pattern match is the more specific signal. A signal that did not fire
// contributes zero.
func (d *Detector) riskScore(ruleMatch RuleMatch, behavioral BehavioralResult) float64 {
	score := 0.0
	if ruleMatch.Matched {
		score += ruleMatch.Confidence * d.cfg.RuleWeight
	}
	if behavioral.Suspicious {
		score += behavioral.Confidence * d.cfg.BehavioralWeight
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// riskLevel maps a score to an ordinal level. Thresholds are inclusive
// lower bounds evaluated in descending order.
func (d *Detector) riskLevel(score float64) models.RiskLevel {
	frac := score / 100
	t := d.cfg.Thresholds
	switch {
	case frac >= t.Critical:
		return models.RiskLevelCritical
	case frac >= t.High:
		return models.RiskLevelHigh
	case frac >= t.Medium:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

func detectionMethod(ruleMatched, behavioralMatched bool) models.DetectionMethod {
	switch {
	case ruleMatched && behavioralMatched:
		return models.MethodHybrid
	case ruleMatched:
		return models.MethodPatternMatch
	case behavioralMatched:
		return models.MethodBehavioral
	default:
		return models.MethodUnknown
	}
}

// Rules exposes the rule library, e.g. for registering reviewed patterns
func (d *Detector) Rules() *RuleLibrary {
	return d.rules
}

// Behavioral exposes the behavioral scorer
func (d *Detector) Behavioral() *BehavioralScorer {
	return d.behavioral
}
