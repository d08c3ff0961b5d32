package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the apply.
	SeverityError Severity = "error"

	// SeverityCritical blocks the apply and is reported first.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies the plan.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code. The module must
// define a "deny" set in its package.
type Policy struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Rego        string   `json:"rego"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
	Tags        []string `json:"tags,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource names the offending role, category, channel or overwrite.
	Resource string `json:"resource,omitempty"`

	Message  string                 `json:"message"`
	Severity Severity               `json:"severity"`
	Details  map[string]interface{} `json:"details,omitempty"`

	// Remediation provides suggested fixes.
	Remediation string `json:"remediation,omitempty"`
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedAt       time.Time     `json:"evaluated_at"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// Blocking returns the violations that deny the plan.
func (r *PolicyResult) Blocking() []PolicyViolation {
	var out []PolicyViolation
	for _, v := range r.Violations {
		if v.Severity.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// PolicyInput is the document policies see as input.
type PolicyInput struct {
	GuildID string         `json:"guild_id"`
	Summary InputSummary   `json:"summary"`
	Changes []Change       `json:"changes"`
	Context *PolicyContext `json:"context"`
}

// InputSummary counts actionable operations.
type InputSummary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
}

// Change is one actionable diff operation flattened for Rego.
type Change struct {
	Operation    string `json:"operation"`
	ResourceType string `json:"resource_type"`
	Name         string `json:"name"`

	// Managed is set when the remote object (or, for creates, the desired
	// name) carries the management marker.
	Managed bool `json:"managed"`

	// Fields lists the changed field names of an update.
	Fields []string `json:"fields,omitempty"`

	// Permissions are the desired flags of a role or the allowed flags of
	// an overwrite. Granted are the ones not held before.
	Permissions []string `json:"permissions,omitempty"`
	Granted     []string `json:"granted,omitempty"`

	// Target and Subject are set for permission overwrites.
	Target  string `json:"target,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Operation is "diff" or "apply".
	Operation   string    `json:"operation"`
	Environment string    `json:"environment,omitempty"`
	DryRun      bool      `json:"dry_run"`
	Timestamp   time.Time `json:"timestamp"`

	// Params tune built-in policies, e.g. "max_deletes".
	Params map[string]interface{} `json:"params,omitempty"`
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Policies    []Policy  `json:"policies"`
	CreatedAt   time.Time `json:"created_at"`
}
