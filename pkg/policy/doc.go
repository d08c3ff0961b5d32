// Package policy guards applies with Open Policy Agent (OPA) policies.
//
// A planned engine.ServerDiff is flattened by BuildInput into a PolicyInput:
// one Change per create, update or delete, with the permission flags a change
// newly grants precomputed so that policies never handle raw bitsets. Every
// enabled policy is a Rego module defining a "deny" set in its package. Each
// entry is either a message string or an object with "message", "severity",
// "resource", "remediation" and "details" keys.
//
// # Built-in policies
//
//   - delete-limit blocks plans deleting more than params.max_deletes resources
//   - administrator-grant blocks new ADMINISTRATOR grants
//   - everyone-permissions reviews @everyone changes and blocks moderation grants
//   - unmanaged-deletes warns about deletes of objects without the marker
//
// Violations of severity error or critical deny the plan:
//
//	eng, err := policy.NewEngine(logger, policy.WithMetrics(metrics))
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//	result, err := eng.Check(ctx, diff, &policy.PolicyContext{Operation: "apply"})
//
// # Custom policies
//
// A .rego file becomes a policy named after the file. Its leading comment is
// the description and a "# severity: error" line sets the default severity:
//
//	# Keep webhook management with admins.
//	# severity: error
//	package guildform.custom.webhooks
//
//	deny contains msg if {
//	    some change in input.changes
//	    "MANAGE_WEBHOOKS" in change.granted
//	    msg := sprintf("%s grants MANAGE_WEBHOOKS", [change.name])
//	}
//
// JSON files hold a serialized Policy and bundles a PolicyBundle. Loader.Watch
// reloads a policy directory on change; pass Engine.ReplacePolicies wrapped
// in a closure as the reload callback.
package policy
