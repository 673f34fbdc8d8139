package policy

import (
	"time"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that make the file unfit to apply.
	SeverityError Severity = "error"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Findings are read from the
	// package's deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for findings.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Finding is one policy match against a provisioning file.
type Finding struct {
	// Policy is the name of the policy that matched.
	Policy string `json:"policy"`

	// Severity is the finding severity level.
	Severity Severity `json:"severity"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Field is the configuration path the finding is about.
	Field string `json:"field,omitempty"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Findings lists every match, most severe first.
	Findings []Finding `json:"findings,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Blocking reports whether any finding has error severity.
func (r *Result) Blocking() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ByPolicy returns the findings of one policy.
func (r *Result) ByPolicy(name string) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Policy == name {
			out = append(out, f)
		}
	}
	return out
}
