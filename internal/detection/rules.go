package detection

import (
	"fmt"
	"regexp"
	"sync/atomic"

	"scamwatch/pkg/logger"
)

// Rule is a single regex scam signature with a static confidence weight
type Rule struct {
	Pattern     *regexp.Regexp
	Confidence  float64 // 0-1, reflects the specificity of the pattern
	Description string
}

// RuleMatch is the outcome of evaluating a rule library against a text
type RuleMatch struct {
	Matched      bool     `json:"is_match"`
	Category     string   `json:"category,omitempty"`
	Confidence   float64  `json:"confidence"`
	Descriptions []string `json:"patterns,omitempty"`
}

// ruleTable is an immutable snapshot of the rule set. Categories keep
// their first-registration order so evaluation is deterministic.
type ruleTable struct {
	categories []string
	rules      map[string][]Rule
}

// RuleLibrary holds regex scam signatures grouped by category.
//
// The rule set is shared read-heavy state: evaluations run on every
// scanned message while RegisterRule is called rarely, between batches.
// Updates build a new table and atomically swap it, so an in-flight
// evaluation always sees a consistent snapshot.
type RuleLibrary struct {
	table  atomic.Pointer[ruleTable]
	logger *logger.Logger
}

// NewRuleLibrary creates a rule library preloaded with the default
// scam signatures.
func NewRuleLibrary(log *logger.Logger) *RuleLibrary {
	lib := &RuleLibrary{
		logger: log.WithComponent("rule-library"),
	}
	lib.table.Store(defaultRuleTable())
	return lib
}

// Evaluate tests every rule against the text, case-insensitively.
// It collects the description of every matching rule in registration
// order and reports the category and confidence of the single
// highest-confidence match (first registered wins on ties).
func (l *RuleLibrary) Evaluate(text string) RuleMatch {
	t := l.table.Load()

	var match RuleMatch
	for _, cat := range t.categories {
		for _, rule := range t.rules[cat] {
			if !rule.Pattern.MatchString(text) {
				continue
			}
			match.Descriptions = append(match.Descriptions, rule.Description)
			if rule.Confidence > match.Confidence {
				match.Confidence = rule.Confidence
				match.Category = cat
			}
		}
	}
	match.Matched = len(match.Descriptions) > 0

	if match.Matched {
		l.logger.Debug().
			Str("category", match.Category).
			Float64("confidence", match.Confidence).
			Int("patterns", len(match.Descriptions)).
			Msg("pattern match found")
	}

	return match
}

// RegisterRule appends a rule to a category, creating the category if
// absent. This is the feedback path for externally proposed patterns.
// Safe to call concurrently with Evaluate: readers keep the snapshot
// they loaded.
func (l *RuleLibrary) RegisterRule(category, pattern string, confidence float64, description string) error {
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("rule confidence must be in [0,1], got %v", confidence)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid rule pattern %q: %w", pattern, err)
	}

	old := l.table.Load()
	next := &ruleTable{
		categories: make([]string, len(old.categories)),
		rules:      make(map[string][]Rule, len(old.rules)+1),
	}
	copy(next.categories, old.categories)
	for cat, rules := range old.rules {
		next.rules[cat] = rules
	}
	if _, ok := next.rules[category]; !ok {
		next.categories = append(next.categories, category)
	}
	existing := next.rules[category]
	next.rules[category] = append(existing[:len(existing):len(existing)], Rule{
		Pattern:     re,
		Confidence:  confidence,
		Description: description,
	})

	l.table.Store(next)

	l.logger.Info().
		Str("category", category).
		Str("description", description).
		Float64("confidence", confidence).
		Msg("registered new rule")
	return nil
}

// RuleCount returns the total number of registered rules
func (l *RuleLibrary) RuleCount() int {
	t := l.table.Load()
	n := 0
	for _, rules := range t.rules {
		n += len(rules)
	}
	return n
}

// Categories returns the category names in registration order
func (l *RuleLibrary) Categories() []string {
	t := l.table.Load()
	out := make([]string, len(t.categories))
	copy(out, t.categories)
	return out
}

func mustRule(pattern string, confidence float64, description string) Rule {
	return Rule{
		Pattern:     regexp.MustCompile("(?i)" + pattern),
		Confidence:  confidence,
		Description: description,
	}
}

// defaultRuleTable returns the built-in scam signatures
func defaultRuleTable() *ruleTable {
	return &ruleTable{
		categories: []string{
			"phishing",
			"financial_fraud",
			"social_engineering",
			"authentication_theft",
			"package_delivery",
		},
		rules: map[string][]Rule{
			"phishing": {
				mustRule(`(verify|confirm|update).*account`, 0.7, "Account verification request"),
				mustRule(`click.*link|click.*here`, 0.6, "Suspicious link request"),
				mustRule(`suspend(ed)?.*account`, 0.8, "Account suspension threat"),
			},
			"financial_fraud": {
				mustRule(`(won|win|prize|lottery|claim)`, 0.7, "Prize/lottery scam"),
				mustRule(`(urgent|immediate).*payment`, 0.8, "Urgent payment request"),
				mustRule(`(refund|owe|owed).*(\$|dollar|money)`, 0.7, "Fake refund/owed money"),
				mustRule(`(bank|credit card).*expir`, 0.8, "Banking credential expiry"),
			},
			"social_engineering": {
				mustRule(`(act now|limited time|expires soon)`, 0.6, "Urgency tactics"),
				mustRule(`(free|gift|offer).*claim`, 0.5, "Free offer claim"),
				mustRule(`(tax|IRS|government).*owe`, 0.9, "Government impersonation"),
			},
			"authentication_theft": {
				mustRule(`verification code|one.time.password|OTP|2FA code`, 0.6, "Authentication code request"),
				mustRule(`(enter|provide|send).*code`, 0.5, "Code sharing request"),
			},
			"package_delivery": {
				mustRule(`package.*delivery|parcel.*waiting`, 0.7, "Fake delivery notification"),
				mustRule(`(USPS|UPS|FedEx|DHL).*redelivery`, 0.8, "Courier impersonation"),
			},
		},
	}
}
