// Package validate decides, per task, whether the observed outcome satisfies
// the declared expectation. Cheap deterministic rules run first; ambiguous
// cases escalate to an external analysis service.
package validate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/calibrae/testflow/pkg/models"
)

// DefaultConfidenceThreshold is the minimum analysis confidence required for
// a passing verdict when the analysis service is consulted.
const DefaultConfidenceThreshold = 0.7

// degradedConfidenceCap bounds the confidence reported when the analysis
// service fails and the verdict falls back to rules alone.
const degradedConfidenceCap = 0.5

// Analysis is the analysis service's judgment on one task outcome.
type Analysis struct {
	// Accepted indicates whether the output satisfies the expectation.
	Accepted bool
	// Confidence is the service's confidence in [0,1].
	Confidence float64
	// Explanation is the service's reasoning.
	Explanation string
	// Suggestions lists remediation hints for a rejected outcome.
	Suggestions []string
}

// Analyzer is the external analysis service consumed for ambiguous verdicts.
// It may be called zero or more times per task. Errors are non-fatal: the
// validator degrades to a rule-only verdict.
type Analyzer interface {
	Analyze(ctx context.Context, output, expectation string) (*Analysis, error)
}

// Validator combines deterministic rule checks with on-demand analysis
// escalation. It never mutates the results it inspects.
type Validator struct {
	mu        sync.RWMutex
	rules     map[string]Rule
	analyzer  Analyzer
	threshold float64
}

// Option configures a Validator.
type Option func(*Validator)

// WithAnalyzer sets the analysis service used for ambiguous verdicts. Without
// one the validator runs rules only.
func WithAnalyzer(a Analyzer) Option {
	return func(v *Validator) { v.analyzer = a }
}

// WithConfidenceThreshold overrides the minimum analysis confidence for a
// passing verdict.
func WithConfidenceThreshold(t float64) Option {
	return func(v *Validator) { v.threshold = t }
}

// NewValidator creates a validator preloaded with the execution-status rule.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		rules:     make(map[string]Rule),
		threshold: DefaultConfidenceThreshold,
	}
	v.AddRule(StatusRule())
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AddRule registers a rule. Rules are keyed by name; registering a rule with
// an existing name replaces it.
func (v *Validator) AddRule(r Rule) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[r.Name] = r
}

// RemoveRule unregisters a rule by name.
func (v *Validator) RemoveRule(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.rules, name)
}

// Rules returns the registered rule names in sorted order.
func (v *Validator) Rules() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.rules))
	for name := range v.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate evaluates every registered rule against the result, then decides
// whether to escalate to the analysis service.
//
// A critical violation short-circuits: verdict false, confidence 1.0, and the
// analysis service is never invoked. Otherwise, a non-empty expectation or
// any warning-level violation escalates to the analyzer; the final verdict is
// false if the analyzer rejects or its confidence falls below the threshold.
// An analyzer failure degrades to a rule-only verdict with confidence capped
// at 0.5 rather than aborting.
func (v *Validator) Validate(ctx context.Context, result *models.TaskResult, expectation string) *models.ValidationResult {
	vr := &models.ValidationResult{
		TaskID:     result.TaskID,
		Verdict:    true,
		Confidence: 1.0,
	}

	violations := v.evaluateRules(result)
	vr.Violations = violations

	if vr.HasCritical() {
		vr.Verdict = false
		vr.Confidence = 1.0
		vr.Explanation = "critical rule violation; analysis skipped"
		return vr
	}

	ambiguous := expectation != "" || len(violations) > 0
	if !ambiguous {
		return vr
	}

	v.mu.RLock()
	analyzer := v.analyzer
	threshold := v.threshold
	v.mu.RUnlock()
	if analyzer == nil {
		// Rule-only mode: no critical violations means the verdict holds.
		return vr
	}

	analysis, err := analyzer.Analyze(ctx, result.Output, expectation)
	if err != nil {
		vr.Verdict = len(violations) == 0
		vr.Confidence = degradedConfidenceCap
		vr.Explanation = fmt.Sprintf("analysis unavailable: %v", err)
		vr.Suggestions = append(vr.Suggestions,
			"analysis service failed; verdict is rule-only and should be reviewed manually")
		return vr
	}

	vr.Confidence = analysis.Confidence
	vr.Explanation = analysis.Explanation
	vr.Suggestions = append(vr.Suggestions, analysis.Suggestions...)
	if !analysis.Accepted || analysis.Confidence < threshold {
		vr.Verdict = false
	}
	return vr
}

// evaluateRules runs every rule independently and collects violations in
// sorted rule-name order so the report is stable across runs.
func (v *Validator) evaluateRules(result *models.TaskResult) []models.RuleViolation {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.rules))
	for name := range v.rules {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []models.RuleViolation
	for _, name := range names {
		rule := v.rules[name]
		if ok, msg := rule.Check(result); !ok {
			violations = append(violations, models.RuleViolation{
				Rule:     rule.Name,
				Severity: rule.Severity,
				Message:  msg,
			})
		}
	}
	return violations
}
