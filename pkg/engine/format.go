package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
)

// DiffEntry is one rendered line of a diff.
type DiffEntry struct {
	Operation    OperationType
	ResourceType ResourceType
	Label        string
	Changes      []FieldChange
}

// Entries flattens diff into apply order, noops included.
func (d *ServerDiff) Entries() []DiffEntry {
	var out []DiffEntry
	for _, r := range d.Roles {
		out = append(out, DiffEntry{r.Operation, ResourceRole, fmt.Sprintf("%q", r.Name), r.Changes})
	}
	for _, c := range d.Categories {
		out = append(out, DiffEntry{c.Operation, ResourceCategory, fmt.Sprintf("%q", c.Name), c.Changes})
	}
	for _, c := range d.Channels {
		out = append(out, DiffEntry{c.Operation, ResourceChannel, channelLabel(c), c.Changes})
	}
	for _, p := range d.Permissions {
		out = append(out, DiffEntry{p.Operation, ResourcePermission, permissionLabel(p), p.Changes})
	}
	return out
}

func channelLabel(c ChannelDiff) string {
	label := fmt.Sprintf("%q", c.Name)
	if c.Operation == OperationCreate && c.Desired != nil {
		if t, err := c.Desired.ChannelType(); err == nil {
			label += " (" + t.String() + ")"
		}
		if c.Desired.Parent != "" {
			label += fmt.Sprintf(" in %q", c.Desired.Parent)
		}
	}
	return label
}

func permissionLabel(p PermissionDiff) string {
	subject := p.SubjectName
	if subject == "" {
		subject = p.SubjectID
	}
	label := fmt.Sprintf("%s on %s %q", subject, p.TargetType, p.TargetName)
	if p.Operation == OperationCreate {
		label += fmt.Sprintf(" (allow: %s; deny: %s)", discord.FormatPermissions(p.Allow), discord.FormatPermissions(p.Deny))
	}
	return label
}

// FormatDiff renders diff grouped by operation. The final line always
// carries the operation counts.
func FormatDiff(diff *ServerDiff) string {
	var b strings.Builder
	if diff == nil {
		diff = &ServerDiff{}
	}

	if !diff.HasChanges {
		b.WriteString("No changes. Guild matches configuration.\n")
	} else {
		if diff.GuildID != "" {
			fmt.Fprintf(&b, "Changes for guild %s:\n", diff.GuildID)
		}
		entries := diff.Entries()
		for _, op := range []OperationType{OperationCreate, OperationUpdate, OperationDelete} {
			var group []DiffEntry
			for _, e := range entries {
				if e.Operation == op {
					group = append(group, e)
				}
			}
			if len(group) == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n%s (%d):\n", groupTitle(op), len(group))
			for _, e := range group {
				fmt.Fprintf(&b, "  %s %s %s\n", op.Symbol(), e.ResourceType, e.Label)
				for _, c := range e.Changes {
					fmt.Fprintf(&b, "      %s: %v -> %v\n", c.Field, formatValue(c.From), formatValue(c.To))
				}
			}
		}
		b.WriteString("\n")
	}

	s := diff.Summary
	fmt.Fprintf(&b, "Plan: %d to create, %d to update, %d to delete, %d unchanged.\n",
		s.Create, s.Update, s.Delete, s.Noop)
	return b.String()
}

func groupTitle(op OperationType) string {
	switch op {
	case OperationCreate:
		return "Create"
	case OperationUpdate:
		return "Update"
	case OperationDelete:
		return "Delete"
	default:
		return "Unchanged"
	}
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		if x == "" {
			return `""`
		}
		return x
	default:
		return fmt.Sprint(x)
	}
}

// FormatApplyResult renders one line per operation and a summary line.
func FormatApplyResult(result *ApplyBatchResult) string {
	var b strings.Builder
	if result == nil {
		return "No operations.\n"
	}

	for _, r := range result.Results {
		mark := "ok"
		if !r.Success {
			mark = "FAILED"
		}
		fmt.Fprintf(&b, "%-6s %s %s %q", mark, r.Operation, r.ResourceType, r.ResourceName)
		if r.ResourceID != "" {
			fmt.Fprintf(&b, " [%s]", r.ResourceID)
		}
		if !result.DryRun {
			fmt.Fprintf(&b, " (%s)", r.Duration.Round(time.Millisecond))
		}
		if r.Error != "" {
			fmt.Fprintf(&b, ": %s", r.Error)
		}
		b.WriteString("\n")
	}

	verb := "Applied"
	if result.DryRun {
		verb = "Dry run:"
	}
	fmt.Fprintf(&b, "%s %d operations, %d succeeded, %d failed",
		verb, result.Summary.Total, result.Summary.Succeeded, result.Summary.Failed)
	if !result.DryRun {
		fmt.Fprintf(&b, " in %s", result.TotalDuration.Round(time.Millisecond))
	}
	b.WriteString(".\n")

	switch {
	case result.Cancelled:
		b.WriteString("Apply was cancelled; remaining operations were not run.\n")
	case result.Truncated:
		b.WriteString("Apply stopped at the first failure; remaining operations were not run.\n")
	}
	return b.String()
}
