package models

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus tracks the human review lifecycle of a scam flag
type ReviewStatus string

const (
	ReviewStatusPending       ReviewStatus = "pending"
	ReviewStatusConfirmedScam ReviewStatus = "confirmed_scam"
	ReviewStatusFalsePositive ReviewStatus = "false_positive"
)

// Valid reports whether the status is one of the allowed values
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusConfirmedScam, ReviewStatusFalsePositive:
		return true
	}
	return false
}

// ScamFlag is a persisted classification of a single message.
// Unique on MessageID; created once by the scan orchestrator and only
// ever mutated afterwards by the review workflow.
type ScamFlag struct {
	ID        uuid.UUID `json:"id"`
	MessageID uuid.UUID `json:"message_id"`
	AccountID uuid.UUID `json:"account_id"`

	// Classification
	IsScam    bool      `json:"is_scam"`
	RiskLevel RiskLevel `json:"risk_level"`
	RiskScore float64   `json:"risk_score"`

	// Detection details
	Method          DetectionMethod `json:"detection_method"`
	Category        string          `json:"detection_category,omitempty"`
	MatchedPatterns []string        `json:"matched_patterns,omitempty"`
	BehavioralFlags map[string]bool `json:"behavioral_flags"`

	// Message details (denormalized)
	MessageText string    `json:"message_text"`
	FromNumber  string    `json:"from_number"`
	ToNumber    string    `json:"to_number"`
	SentAt      time.Time `json:"sent_at"`

	// Review tracking
	Reviewed     bool         `json:"reviewed"`
	ReviewStatus ReviewStatus `json:"review_status,omitempty"`
	ReviewNotes  string       `json:"review_notes,omitempty"`
	ReviewedBy   string       `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time   `json:"reviewed_at,omitempty"`

	FlaggedAt time.Time `json:"flagged_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewScamFlag builds a flag from a detection result and the message it
// classified. Review status starts as pending.
func NewScamFlag(msg Message, result *DetectionResult) *ScamFlag {
	flags := result.BehavioralFlags
	if flags == nil {
		flags = map[string]bool{}
	}
	return &ScamFlag{
		ID:              uuid.New(),
		MessageID:       msg.ID,
		AccountID:       msg.AccountID,
		IsScam:          true,
		RiskLevel:       result.RiskLevel,
		RiskScore:       result.RiskScore,
		Method:          result.Method,
		Category:        result.Category,
		MatchedPatterns: result.MatchedPatterns,
		BehavioralFlags: flags,
		MessageText:     msg.Body,
		FromNumber:      msg.FromNumber,
		ToNumber:        msg.ToNumber,
		SentAt:          msg.SentAt,
		ReviewStatus:    ReviewStatusPending,
	}
}

// RunType identifies what triggered a detection run
type RunType string

const (
	RunTypePeriodic RunType = "periodic"
	RunTypeNightly  RunType = "nightly"
	RunTypeManual   RunType = "manual"
)

// RunStatus is the lifecycle state of a detection run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// DetectionBreakdown groups flag counts produced by a run
type DetectionBreakdown struct {
	ByRiskLevel map[string]int `json:"by_risk_level"`
	ByMethod    map[string]int `json:"by_method"`
}

// DetectionRun records one execution of the scan orchestrator.
// Lifecycle: running -> completed, or running -> failed. Finalized
// exactly once and never re-opened.
type DetectionRun struct {
	ID              uuid.UUID          `json:"id"`
	RunType         RunType            `json:"run_type"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         *time.Time         `json:"end_time,omitempty"`
	Status          RunStatus          `json:"status"`
	MessagesScanned int                `json:"messages_scanned"`
	ScamsDetected   int                `json:"scams_detected"`
	Breakdown       DetectionBreakdown `json:"detection_breakdown"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ProposedPattern is a detection rule candidate extracted by the AI
// reviewer during the nightly summary. It is recorded in the report for
// human review; nothing auto-registers it into the rule library.
type ProposedPattern struct {
	Pattern        string  `json:"pattern"`
	ScamType       string  `json:"scam_type"`
	Confidence     float64 `json:"confidence"`
	ExampleMessage string  `json:"example_message"`
}

// ActionItem is a recommended operator action derived from report metrics
type ActionItem struct {
	Priority       string `json:"priority"`
	Action         string `json:"action"`
	Recommendation string `json:"recommendation"`
}

// NightlyReport aggregates one calendar day of scam flags.
// Unique on ReportDate and immutable once written.
type NightlyReport struct {
	ID                 uuid.UUID         `json:"id"`
	ReportDate         time.Time         `json:"report_date"`
	TotalScamsDetected int               `json:"total_scams_detected"`
	ScamsByRiskLevel   map[string]int    `json:"scams_by_risk_level"`
	ScamsByCategory    map[string]int    `json:"scams_by_category"`
	DetectionMethods   map[string]int    `json:"detection_methods"`
	FalsePositiveRate  float64           `json:"false_positive_rate"` // 0-100 percentage
	NewPatterns        []ProposedPattern `json:"new_patterns_learned"`
	AISummary          string            `json:"ai_summary,omitempty"`
	ActionItems        []ActionItem      `json:"action_items"`
	CreatedAt          time.Time         `json:"created_at"`
}
