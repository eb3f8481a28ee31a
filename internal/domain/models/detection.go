package models

// RiskLevel is the ordinal classification of a flagged message
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// Rank returns the ordinal position of the risk level (LOW=0 ... CRITICAL=3)
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevelCritical:
		return 3
	case RiskLevelHigh:
		return 2
	case RiskLevelMedium:
		return 1
	default:
		return 0
	}
}

// DetectionMethod identifies which signal(s) produced a classification
type DetectionMethod string

const (
	MethodPatternMatch DetectionMethod = "pattern_match"
	MethodBehavioral   DetectionMethod = "behavioral"
	MethodHybrid       DetectionMethod = "hybrid"
	MethodUnknown      DetectionMethod = "unknown"
)

// DetectionResult is the transient per-message classification produced by
// the detector. A nil result means the message is not considered a scam.
type DetectionResult struct {
	IsScam          bool            `json:"is_scam"`
	RiskScore       float64         `json:"risk_score"` // 0-100
	RiskLevel       RiskLevel       `json:"risk_level"`
	Method          DetectionMethod `json:"detection_method"`
	Category        string          `json:"detection_category,omitempty"`
	MatchedPatterns []string        `json:"matched_patterns,omitempty"`
	BehavioralFlags map[string]bool `json:"behavioral_flags,omitempty"`
}
