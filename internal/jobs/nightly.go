package jobs

import (
	"context"
	"fmt"
	"time"

	"scamwatch/internal/config"
	"scamwatch/internal/domain/models"
	"scamwatch/pkg/logger"
)

// AIBudget bounds the number of reviewer calls across reruns of the
// nightly job for the same date. A nil budget grants everything.
type AIBudget interface {
	ConsumeAIBudget(ctx context.Context, date string, requested, dailyLimit int) (int, error)
}

// patternConfidenceFloor is the minimum reviewer confidence for a
// proposed pattern to be recorded (strictly greater than).
const patternConfidenceFloor = 0.8

// exampleMaxLen bounds the example message stored with a proposed pattern
const exampleMaxLen = 100

// Aggregator computes the nightly detection-quality report: metrics over
// a day's scam flags, AI-assisted rule candidates, a narrative summary,
// and recommended actions.
//
// It is a read-only consumer of scam flags; the only rows it creates
// are nightly reports. Proposed patterns are recorded for human review,
// never auto-registered into the rule library.
type Aggregator struct {
	flags    FlagStore
	reports  ReportStore
	reviewer Reviewer
	budget   AIBudget
	cfg      config.DetectionConfig
	logger   *logger.Logger
}

// NewAggregator creates a nightly aggregator
func NewAggregator(flags FlagStore, reports ReportStore, reviewer Reviewer, budget AIBudget, cfg config.DetectionConfig, log *logger.Logger) *Aggregator {
	return &Aggregator{
		flags:    flags,
		reports:  reports,
		reviewer: reviewer,
		budget:   budget,
		cfg:      cfg,
		logger:   log.WithComponent("nightly-aggregator"),
	}
}

// Run builds and persists the report for the given calendar day (UTC).
// A report already existing for the date is a hard failure: reports are
// immutable and never overwritten.
func (a *Aggregator) Run(ctx context.Context, reportDate time.Time) (*models.NightlyReport, error) {
	dayStart := time.Date(reportDate.Year(), reportDate.Month(), reportDate.Day(), 0, 0, 0, 0, time.UTC)
	day := dayStart.Format("2006-01-02")
	log := &logger.Logger{Logger: a.logger.With().Str("report_date", day).Logger()}

	flags, err := a.flags.ListByDay(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load flags for report: %w", err)
	}
	log.Info().Int("flags", len(flags)).Msg("starting nightly summary")

	report := &models.NightlyReport{
		ReportDate:         dayStart,
		TotalScamsDetected: len(flags),
		ScamsByRiskLevel:   countBy(flags, func(f *models.ScamFlag) string { return string(f.RiskLevel) }),
		ScamsByCategory:    countBy(flags, func(f *models.ScamFlag) string { return f.Category }),
		DetectionMethods:   countBy(flags, func(f *models.ScamFlag) string { return string(f.Method) }),
		FalsePositiveRate:  falsePositiveRate(flags),
		NewPatterns:        []models.ProposedPattern{},
		ActionItems:        []models.ActionItem{},
	}

	report.NewPatterns = a.extractPatterns(ctx, dayStart, day, log)

	summary, err := a.reviewer.Summarize(ctx, report.TotalScamsDetected, report.ScamsByRiskLevel, report.FalsePositiveRate)
	if err != nil {
		// A missing narrative must not fail the report
		log.Error().Err(err).Msg("failed to generate AI summary")
		summary = fmt.Sprintf("Error generating summary: %v", err)
	}
	report.AISummary = summary

	report.ActionItems = actionItems(report.TotalScamsDetected, report.FalsePositiveRate, len(report.NewPatterns))

	if err := a.reports.Insert(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to persist nightly report: %w", err)
	}

	log.Info().
		Int("total_scams", report.TotalScamsDetected).
		Int("new_patterns", len(report.NewPatterns)).
		Float64("false_positive_rate", report.FalsePositiveRate).
		Msg("nightly summary completed")

	return report, nil
}

// extractPatterns runs the AI reviewer over the day's unreviewed
// high-risk flags and collects confident rule candidates. Reviewer
// failures are soft: the flag is skipped and the report proceeds.
func (a *Aggregator) extractPatterns(ctx context.Context, dayStart time.Time, day string, log *logger.Logger) []models.ProposedPattern {
	patterns := []models.ProposedPattern{}

	limit := a.cfg.MaxAIReviewsPerDay
	if limit <= 0 {
		return patterns
	}

	candidates, err := a.flags.ListUnreviewedHighRisk(ctx, dayStart, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to load high-risk flags for AI review")
		return patterns
	}
	if len(candidates) == 0 {
		return patterns
	}

	granted := len(candidates)
	if a.budget != nil {
		granted, err = a.budget.ConsumeAIBudget(ctx, day, len(candidates), limit)
		if err != nil {
			log.Error().Err(err).Msg("failed to consume AI review budget")
			return patterns
		}
		if granted < len(candidates) {
			log.Warn().
				Int("candidates", len(candidates)).
				Int("granted", granted).
				Msg("daily AI review budget limits candidates")
		}
	}

	log.Info().Int("count", granted).Msg("reviewing high-risk flags with AI")

	for _, flag := range candidates[:granted] {
		insight, err := a.reviewer.Review(ctx, flag.MessageText, flag.Category)
		if err != nil {
			log.Error().Err(err).Str("flag_id", flag.ID.String()).Msg("AI review failed for flag")
			continue
		}

		if !insight.NewPatternDetected || insight.Confidence <= patternConfidenceFloor {
			continue
		}

		patterns = append(patterns, models.ProposedPattern{
			Pattern:        insight.PatternRegex,
			ScamType:       insight.ScamType,
			Confidence:     insight.Confidence,
			ExampleMessage: truncate(flag.MessageText, exampleMaxLen),
		})
		log.Info().Str("scam_type", insight.ScamType).Msg("new pattern proposed")
	}

	return patterns
}

// falsePositiveRate returns the share of reviewed flags judged to be
// false positives, as a 0-100 percentage. Zero when nothing has been
// reviewed yet.
func falsePositiveRate(flags []*models.ScamFlag) float64 {
	reviewed := 0
	falsePositives := 0
	for _, f := range flags {
		if !f.Reviewed {
			continue
		}
		reviewed++
		if f.ReviewStatus == models.ReviewStatusFalsePositive {
			falsePositives++
		}
	}
	if reviewed == 0 {
		return 0
	}
	return float64(falsePositives) / float64(reviewed) * 100
}

// actionItems derives operator recommendations from report metrics
func actionItems(totalScams int, falsePositiveRate float64, newPatterns int) []models.ActionItem {
	items := []models.ActionItem{}

	if totalScams > 100 {
		items = append(items, models.ActionItem{
			Priority:       "high",
			Action:         "High volume of scams detected",
			Recommendation: "Review detection patterns and consider additional filters",
		})
	}
	if falsePositiveRate > 0.5 {
		items = append(items, models.ActionItem{
			Priority:       "high",
			Action:         "High false positive rate",
			Recommendation: "Review and tune detection thresholds",
		})
	}
	if newPatterns > 0 {
		items = append(items, models.ActionItem{
			Priority:       "medium",
			Action:         fmt.Sprintf("%d new patterns identified", newPatterns),
			Recommendation: "Review and integrate new patterns into detector",
		})
	}
	return items
}

// countBy groups flags by a key, skipping empty keys
func countBy(flags []*models.ScamFlag, key func(*models.ScamFlag) string) map[string]int {
	counts := make(map[string]int)
	for _, f := range flags {
		k := key(f)
		if k == "" {
			continue
		}
		counts[k]++
	}
	return counts
}

// truncate shortens s to at most max runes
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
