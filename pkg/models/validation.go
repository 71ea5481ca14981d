package models

// Severity grades how serious a rule violation is.
type Severity string

const (
	// SeverityCritical violations are unambiguous failures; they fail the
	// verdict outright and skip the analysis escalation.
	SeverityCritical Severity = "critical"
	// SeverityWarning violations are suspicious but not conclusive.
	SeverityWarning Severity = "warning"
	// SeverityInfo violations are informational only.
	SeverityInfo Severity = "info"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// RuleViolation records a single failed validation rule.
type RuleViolation struct {
	// Rule is the name of the violated rule.
	Rule string `json:"rule"`
	// Severity grades the violation.
	Severity Severity `json:"severity"`
	// Message describes what the rule observed.
	Message string `json:"message,omitempty"`
}

// ValidationResult is the validator's verdict on whether a task result
// satisfies its declared expectation. It is a derived artifact attached to
// the task result for reporting, never part of the session's execution
// identity.
type ValidationResult struct {
	// TaskID identifies the validated task.
	TaskID string `json:"task_id"`
	// Verdict is true when the outcome satisfies the expectation.
	Verdict bool `json:"verdict"`
	// Confidence is the verdict confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Violations lists every rule that did not pass.
	Violations []RuleViolation `json:"violations,omitempty"`
	// Explanation is the analysis service's reasoning, when it was consulted.
	Explanation string `json:"explanation,omitempty"`
	// Suggestions lists remediation hints.
	Suggestions []string `json:"suggestions,omitempty"`
}

// HasCritical returns true if any violation is critical.
func (v *ValidationResult) HasCritical() bool {
	for _, viol := range v.Violations {
		if viol.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
