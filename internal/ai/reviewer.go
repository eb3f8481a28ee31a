package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scamwatch/internal/config"
	"scamwatch/pkg/logger"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// Reviewer sends messages to the Anthropic API for scam analysis and
// report summarization. Every error it returns is a soft failure to its
// callers: the jobs log it and move on rather than aborting.
type Reviewer struct {
	httpClient *http.Client
	cfg        config.AnthropicConfig
	baseURL    string
	logger     *logger.Logger
}

// NewReviewer creates a reviewer client
func NewReviewer(cfg config.AnthropicConfig, log *logger.Logger) *Reviewer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &Reviewer{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		baseURL:    anthropicBaseURL,
		logger:     log.WithComponent("ai-reviewer"),
	}
}

// Insight is the validated analysis of a single flagged message.
// The raw reviewer payload is loosely typed; parseInsight converts it
// into this strict form at the boundary and rejects malformed payloads.
type Insight struct {
	IsScam             bool     `json:"is_scam"`
	Confidence         float64  `json:"confidence"`
	ScamType           string   `json:"scam_type"`
	RiskIndicators     []string `json:"risk_indicators"`
	NewPatternDetected bool     `json:"new_pattern_detected"`
	PatternRegex       string   `json:"pattern_regex"`
	Reasoning          string   `json:"reasoning"`
}

// completionRequest is the Anthropic Messages API request body
type completionRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionResponse is the Anthropic Messages API response body
type completionResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Review analyzes a flagged message for scam indicators
func (r *Reviewer) Review(ctx context.Context, messageText, currentCategory string) (*Insight, error) {
	if currentCategory == "" {
		currentCategory = "None"
	}

	prompt := fmt.Sprintf(`Analyze this SMS message for scam indicators.

Message: %q
Current Detection Category: %s

Provide a JSON response with:
1. is_scam: boolean - is this likely a scam?
2. confidence: float (0-1) - confidence in the assessment
3. scam_type: string - type of scam (phishing, social engineering, financial fraud, etc.)
4. risk_indicators: array - specific red flags found
5. new_pattern_detected: boolean - is this a new pattern not commonly seen?
6. pattern_regex: string - if new pattern, suggest a regex pattern (or null)
7. reasoning: string - brief explanation

Respond with valid JSON only.`, messageText, currentCategory)

	raw, err := r.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	insight, err := parseInsight(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed reviewer payload: %w", err)
	}

	r.logger.Debug().
		Bool("is_scam", insight.IsScam).
		Float64("confidence", insight.Confidence).
		Str("scam_type", insight.ScamType).
		Msg("message review complete")

	return insight, nil
}

// Summarize produces a narrative daily summary from aggregate metrics.
// falsePositiveRate is a 0-100 percentage.
func (r *Reviewer) Summarize(ctx context.Context, totalScams int, byRisk map[string]int, falsePositiveRate float64) (string, error) {
	risk, err := json.Marshal(byRisk)
	if err != nil {
		return "", fmt.Errorf("failed to marshal risk counts: %w", err)
	}

	prompt := fmt.Sprintf(`Generate a concise daily summary report for scam detection.

Statistics:
- Total scams detected: %d
- By risk level: %s
- False positive rate: %.2f%%

Provide:
1. Key findings (2-3 bullet points)
2. Notable trends
3. Recommended actions (if any)

Keep it brief and actionable.`, totalScams, risk, falsePositiveRate)

	summary, err := r.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return summary, nil
}

// complete makes a single Messages API call and returns the text content
func (r *Reviewer) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:     r.cfg.Model,
		MaxTokens: r.cfg.MaxTokens,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", r.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reviewer request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read reviewer response: %w", err)
	}

	var completion completionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return "", fmt.Errorf("failed to decode reviewer response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("reviewer API error (%s): %s", completion.Error.Type, completion.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reviewer API returned status %d", resp.StatusCode)
	}
	if len(completion.Content) == 0 {
		return "", fmt.Errorf("reviewer response contained no content")
	}

	return completion.Content[0].Text, nil
}

// rawInsight mirrors the loosely typed JSON the model returns. Pointer
// fields distinguish absent from zero-valued.
type rawInsight struct {
	IsScam             *bool    `json:"is_scam"`
	Confidence         *float64 `json:"confidence"`
	ScamType           string   `json:"scam_type"`
	RiskIndicators     []string `json:"risk_indicators"`
	NewPatternDetected bool     `json:"new_pattern_detected"`
	PatternRegex       *string  `json:"pattern_regex"`
	Reasoning          string   `json:"reasoning"`
}

// parseInsight validates the reviewer output. Models sometimes wrap the
// JSON in prose or code fences, so the first decode attempt is preceded
// by extracting the outermost JSON object.
func parseInsight(text string) (*Insight, error) {
	jsonText := extractJSON(text)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON object in reviewer output")
	}

	var raw rawInsight
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode insight: %w", err)
	}

	if raw.IsScam == nil {
		return nil, fmt.Errorf("insight missing required field is_scam")
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("insight missing required field confidence")
	}

	confidence := *raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	insight := &Insight{
		IsScam:             *raw.IsScam,
		Confidence:         confidence,
		ScamType:           raw.ScamType,
		RiskIndicators:     raw.RiskIndicators,
		NewPatternDetected: raw.NewPatternDetected,
		Reasoning:          raw.Reasoning,
	}
	if raw.PatternRegex != nil {
		insight.PatternRegex = *raw.PatternRegex
	}
	if insight.NewPatternDetected && insight.PatternRegex == "" {
		return nil, fmt.Errorf("insight reports new pattern but carries no pattern_regex")
	}
	return insight, nil
}

// extractJSON returns the outermost {...} object in the text
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
