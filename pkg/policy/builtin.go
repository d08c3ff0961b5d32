package policy

import (
	"time"
)

// DefaultMaxDeletes is the delete-limit policy threshold when the context
// does not set params.max_deletes.
const DefaultMaxDeletes = 5

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		deleteLimitPolicy(),
		administratorGrantPolicy(),
		everyonePermissionsPolicy(),
		unmanagedDeletesPolicy(),
	}
}

func builtin(name, description string, severity Severity, tags []string, rego string) Policy {
	now := time.Now()
	return Policy{
		Name:        name,
		Description: description,
		Severity:    severity,
		Enabled:     true,
		Tags:        tags,
		Metadata:    map[string]interface{}{"source": "builtin"},
		CreatedAt:   now,
		UpdatedAt:   now,
		Rego:        rego,
	}
}

// deleteLimitPolicy blocks plans that delete too much at once.
func deleteLimitPolicy() Policy {
	return builtin("delete-limit",
		"Blocks plans that delete more resources than params.max_deletes (default 5)",
		SeverityError, []string{"safety", "deletes"}, `package guildform.policies.deletes

max_deletes := object.get(input.context, ["params", "max_deletes"], 5)

deny contains violation if {
	n := input.summary.delete
	n > max_deletes
	violation := {
		"message": sprintf("plan deletes %d resources, more than the limit of %d", [n, max_deletes]),
		"severity": "error",
	}
}`)
}

// administratorGrantPolicy flags any new ADMINISTRATOR grant.
func administratorGrantPolicy() Policy {
	return builtin("administrator-grant",
		"Blocks plans that grant the ADMINISTRATOR permission",
		SeverityCritical, []string{"permissions", "security"}, `package guildform.policies.administrator

deny contains violation if {
	some change in input.changes
	"ADMINISTRATOR" in change.granted
	violation := {
		"message": sprintf("%s %q grants ADMINISTRATOR", [change.resource_type, change.name]),
		"severity": "critical",
		"resource": change.name,
	}
}`)
}

// everyonePermissionsPolicy reviews changes that reach every member.
func everyonePermissionsPolicy() Policy {
	return builtin("everyone-permissions",
		"Reviews @everyone permission changes and blocks moderation grants to @everyone",
		SeverityWarning, []string{"permissions", "everyone"}, `package guildform.policies.everyone

risky := {
	"BAN_MEMBERS",
	"KICK_MEMBERS",
	"MANAGE_CHANNELS",
	"MANAGE_GUILD",
	"MANAGE_MESSAGES",
	"MANAGE_ROLES",
	"MANAGE_WEBHOOKS",
	"MENTION_EVERYONE",
}

touches_everyone(change) if {
	change.resource_type == "role"
	change.name == "@everyone"
}

touches_everyone(change) if {
	change.subject == "@everyone"
}

deny contains violation if {
	some change in input.changes
	touches_everyone(change)
	change.operation != "delete"
	violation := {
		"message": sprintf("%s changes permissions of @everyone", [change.resource_type]),
		"severity": "warning",
		"resource": change.name,
	}
}

deny contains violation if {
	some change in input.changes
	touches_everyone(change)
	some flag in change.granted
	flag in risky
	violation := {
		"message": sprintf("%s %q grants %s to @everyone", [change.resource_type, change.name, flag]),
		"severity": "error",
		"resource": change.name,
	}
}`)
}

// unmanagedDeletesPolicy warns when a plan removes objects the tool did
// not create. This only happens with managed-only mode off.
func unmanagedDeletesPolicy() Policy {
	return builtin("unmanaged-deletes",
		"Warns about deletes of resources without the management marker",
		SeverityWarning, []string{"safety", "ownership"}, `package guildform.policies.unmanaged

deny contains violation if {
	some change in input.changes
	change.operation == "delete"
	not change.managed
	violation := {
		"message": sprintf("deletes unmanaged %s %q", [change.resource_type, change.name]),
		"severity": "warning",
		"resource": change.name,
	}
}`)
}
