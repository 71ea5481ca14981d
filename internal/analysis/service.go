package analysis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/calibrae/testflow/internal/validate"
)

// DefaultTimeout bounds a single analysis call.
const DefaultTimeout = 30 * time.Second

// Service judges task outcomes against free-form expectations using Claude.
// It implements validate.Analyzer.
type Service struct {
	client  *Client
	timeout time.Duration
}

// NewService creates an analysis service on top of the given client. A zero
// timeout falls back to DefaultTimeout.
func NewService(client *Client, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{client: client, timeout: timeout}
}

var _ validate.Analyzer = (*Service)(nil)

// Analyze asks the model whether the output satisfies the expectation.
func (s *Service) Analyze(ctx context.Context, output, expectation string) (*validate.Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := buildAnalysisPrompt(output, expectation)

	resp, err := s.client.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.client.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}

	s.client.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	analysis, err := parseAnalysisResponse(extractText(resp))
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// buildAnalysisPrompt constructs the judgment prompt.
func buildAnalysisPrompt(output, expectation string) string {
	var sb strings.Builder

	sb.WriteString("You are validating the outcome of an automated test task. ")
	sb.WriteString("Decide whether the observed output satisfies the expected result.\n\n")

	sb.WriteString("## Expected Result\n\n")
	sb.WriteString(expectation)
	sb.WriteString("\n\n")

	sb.WriteString("## Observed Output\n\n```\n")
	sb.WriteString(output)
	sb.WriteString("\n```\n\n")

	sb.WriteString("Respond in EXACTLY the following format:\n\n")
	sb.WriteString("VERDICT: [ACCEPT/REJECT]\n")
	sb.WriteString("CONFIDENCE: [a number between 0.0 and 1.0]\n")
	sb.WriteString("EXPLANATION: [explain your verdict in 1-2 sentences]\n")
	sb.WriteString("SUGGESTIONS: [semicolon-separated remediation hints, or 'None']\n\n")

	sb.WriteString("Be strict but fair. ACCEPT only if the output clearly satisfies the expectation. ")
	sb.WriteString("REJECT if the output contradicts it or is too incomplete to tell.\n")

	return sb.String()
}

// parseAnalysisResponse parses the model's structured response. An
// unparseable response is an error; the caller degrades to a rule-only
// verdict rather than guessing.
func parseAnalysisResponse(response string) (*validate.Analysis, error) {
	analysis := &validate.Analysis{}
	sawVerdict := false

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "VERDICT:"):
			verdict := strings.TrimSpace(strings.TrimPrefix(line, "VERDICT:"))
			analysis.Accepted = strings.EqualFold(verdict, "ACCEPT")
			sawVerdict = true
		case strings.HasPrefix(line, "CONFIDENCE:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			conf, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("unparseable confidence %q", raw)
			}
			analysis.Confidence = clamp(conf, 0, 1)
		case strings.HasPrefix(line, "EXPLANATION:"):
			analysis.Explanation = strings.TrimSpace(strings.TrimPrefix(line, "EXPLANATION:"))
		case strings.HasPrefix(line, "SUGGESTIONS:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "SUGGESTIONS:"))
			if raw != "" && !strings.EqualFold(raw, "none") {
				for _, s := range strings.Split(raw, ";") {
					if s = strings.TrimSpace(s); s != "" {
						analysis.Suggestions = append(analysis.Suggestions, s)
					}
				}
			}
		}
	}

	if !sawVerdict {
		return nil, fmt.Errorf("response missing verdict: %.80s", response)
	}
	return analysis, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
