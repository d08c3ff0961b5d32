package policy

import (
	"time"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
)

// BuildInput flattens the actionable operations of diff into the document
// policies evaluate. A nil context becomes an empty "diff" context.
func BuildInput(diff *engine.ServerDiff, pctx *PolicyContext) *PolicyInput {
	if pctx == nil {
		pctx = &PolicyContext{Operation: "diff"}
	}
	if pctx.Timestamp.IsZero() {
		pctx.Timestamp = time.Now()
	}

	in := &PolicyInput{Context: pctx, Changes: []Change{}}
	if diff == nil {
		return in
	}
	in.GuildID = diff.GuildID

	managedTargets := make(map[string]bool)

	for _, r := range diff.Roles {
		if r.Operation == engine.OperationNoop {
			continue
		}
		var current, desired discord.Permissions
		managed := engine.IsManagedName(r.Name)
		if r.Current != nil {
			current = r.Current.Permissions
			managed = r.Current.Ownership == engine.OwnershipOwned
		}
		if r.Desired != nil {
			// Unparseable flags fail validation before a diff exists.
			desired, _ = discord.ParsePermissions(r.Desired.Permissions)
		} else {
			desired = current
		}
		in.add(Change{
			Operation:    string(r.Operation),
			ResourceType: string(engine.ResourceRole),
			Name:         r.Name,
			Managed:      managed,
			Fields:       fieldNames(r.Changes),
			Permissions:  desired.Names(),
			Granted:      granted(r.Operation, current, desired),
		})
	}

	for _, c := range diff.Categories {
		managed := engine.IsManagedName(c.Name)
		if c.Current != nil {
			managed = c.Current.Ownership == engine.OwnershipOwned
		}
		managedTargets[c.Name] = managed
		if c.Operation == engine.OperationNoop {
			continue
		}
		in.add(Change{
			Operation:    string(c.Operation),
			ResourceType: string(engine.ResourceCategory),
			Name:         c.Name,
			Managed:      managed,
			Fields:       fieldNames(c.Changes),
		})
	}

	for _, c := range diff.Channels {
		managed := engine.IsManagedName(c.Name)
		switch {
		case c.Current != nil:
			managed = c.Current.Ownership == engine.OwnershipOwned
		case c.Desired != nil:
			managed = managed || engine.IsManagedName(c.Desired.Topic)
		}
		managedTargets[c.Name] = managed
		if c.Operation == engine.OperationNoop {
			continue
		}
		in.add(Change{
			Operation:    string(c.Operation),
			ResourceType: string(engine.ResourceChannel),
			Name:         c.Name,
			Managed:      managed,
			Fields:       fieldNames(c.Changes),
		})
	}

	for _, p := range diff.Permissions {
		if p.Operation == engine.OperationNoop {
			continue
		}
		var current discord.Permissions
		if p.Current != nil {
			current = p.Current.Allow
		}
		managed, ok := managedTargets[p.TargetName]
		if !ok {
			managed = engine.IsManagedName(p.TargetName)
		}
		in.add(Change{
			Operation:    string(p.Operation),
			ResourceType: string(engine.ResourcePermission),
			Name:         p.SubjectName + " on " + p.TargetName,
			Managed:      managed,
			Fields:       fieldNames(p.Changes),
			Permissions:  p.Allow.Names(),
			Granted:      granted(p.Operation, current, p.Allow),
			Target:       p.TargetName,
			Subject:      p.SubjectName,
		})
	}

	return in
}

func (in *PolicyInput) add(c Change) {
	switch engine.OperationType(c.Operation) {
	case engine.OperationCreate:
		in.Summary.Create++
	case engine.OperationUpdate:
		in.Summary.Update++
	case engine.OperationDelete:
		in.Summary.Delete++
	}
	in.Changes = append(in.Changes, c)
}

func fieldNames(changes []engine.FieldChange) []string {
	if len(changes) == 0 {
		return nil
	}
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Field
	}
	return out
}

func granted(op engine.OperationType, current, desired discord.Permissions) []string {
	if op == engine.OperationDelete {
		return nil
	}
	return (desired &^ current).Names()
}
