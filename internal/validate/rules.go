package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/calibrae/testflow/pkg/models"
)

// CheckFunc evaluates one rule against a task result. It returns whether the
// result satisfies the rule, plus a message describing the violation when it
// does not.
type CheckFunc func(r *models.TaskResult) (ok bool, message string)

// Rule is a named deterministic check applied to every task result. Rules are
// independent of each other: evaluation order never affects the outcome.
type Rule struct {
	// Name identifies the rule. Registering a second rule with the same
	// name replaces the first.
	Name string
	// Severity classifies a violation of this rule.
	Severity models.Severity
	// Check evaluates the rule.
	Check CheckFunc
}

// StatusRule fails when the result's execution status is not succeeded.
// Execution failures are unambiguous, so the rule is critical.
func StatusRule() Rule {
	return Rule{
		Name:     "execution-status",
		Severity: models.SeverityCritical,
		Check: func(r *models.TaskResult) (bool, string) {
			if r.Status == models.TaskStatusSucceeded {
				return true, ""
			}
			msg := fmt.Sprintf("task ended %s", r.Status)
			if r.ErrorDetail != "" {
				msg += ": " + r.ErrorDetail
			}
			return false, msg
		},
	}
}

// OutputContainsRule fails when the output does not contain the given
// substring. Matching is case-insensitive.
func OutputContainsRule(name, substr string, severity models.Severity) Rule {
	return Rule{
		Name:     name,
		Severity: severity,
		Check: func(r *models.TaskResult) (bool, string) {
			if strings.Contains(strings.ToLower(r.Output), strings.ToLower(substr)) {
				return true, ""
			}
			return false, fmt.Sprintf("output does not contain %q", substr)
		},
	}
}

// OutputExcludesRule fails when the output contains the given substring,
// typically an error marker. Matching is case-insensitive.
func OutputExcludesRule(name, substr string, severity models.Severity) Rule {
	return Rule{
		Name:     name,
		Severity: severity,
		Check: func(r *models.TaskResult) (bool, string) {
			if !strings.Contains(strings.ToLower(r.Output), strings.ToLower(substr)) {
				return true, ""
			}
			return false, fmt.Sprintf("output contains %q", substr)
		},
	}
}

// OutputMatchesRule fails when the output does not match the given regular
// expression. The pattern is compiled once at registration time.
func OutputMatchesRule(name, pattern string, severity models.Severity) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compile pattern for rule %s: %w", name, err)
	}
	return Rule{
		Name:     name,
		Severity: severity,
		Check: func(r *models.TaskResult) (bool, string) {
			if re.MatchString(r.Output) {
				return true, ""
			}
			return false, fmt.Sprintf("output does not match %q", pattern)
		},
	}, nil
}

// MaxDurationRule fails when the task took longer than the given bound.
func MaxDurationRule(name string, max time.Duration, severity models.Severity) Rule {
	return Rule{
		Name:     name,
		Severity: severity,
		Check: func(r *models.TaskResult) (bool, string) {
			d := r.Duration()
			if d <= max {
				return true, ""
			}
			return false, fmt.Sprintf("took %s, limit is %s", d.Round(time.Millisecond), max)
		},
	}
}
