package engine

import (
	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
)

// DiffOptions controls which operations CalculateDiff may emit.
type DiffOptions struct {
	// ManagedOnly restricts deletions to objects carrying ManagedMarker.
	ManagedOnly bool

	// IncludePermissions emits permission overwrite operations.
	IncludePermissions bool
}

// DefaultDiffOptions returns the safe defaults: only owned objects are
// deleted and overwrites are reconciled.
func DefaultDiffOptions() DiffOptions {
	return DiffOptions{ManagedOnly: true, IncludePermissions: true}
}

// CalculateDiff computes the operations that bring state to cfg. It performs
// no I/O and does not modify its arguments; the same inputs always yield the
// same diff. A nil state is an empty guild. The only errors are validation
// errors for values that cannot be normalized.
func CalculateDiff(cfg *ServerConfig, state *ServerState, guildID string, opts DiffOptions) (*ServerDiff, error) {
	if cfg == nil {
		return nil, NewValidationError("configuration is nil")
	}
	if state == nil {
		state = &ServerState{ID: guildID}
	}
	if guildID == "" {
		guildID = state.ID
	}

	d := &differ{cfg: cfg, state: state, guildID: guildID, opts: opts}
	diff := &ServerDiff{GuildID: guildID}

	var err error
	if diff.Roles, err = d.roles(); err != nil {
		return nil, err
	}
	diff.Categories = d.categories()
	if diff.Channels, err = d.channels(); err != nil {
		return nil, err
	}
	if opts.IncludePermissions {
		if diff.Permissions, err = d.permissions(); err != nil {
			return nil, err
		}
	}

	diff.Summary = summarize(diff)
	diff.HasChanges = diff.Summary.Create+diff.Summary.Update+diff.Summary.Delete > 0
	return diff, nil
}

type differ struct {
	cfg     *ServerConfig
	state   *ServerState
	guildID string
	opts    DiffOptions

	// channelMatch maps a configured channel index to its state index.
	// Filled by channels.
	channelMatch map[int]int
}

// deletable applies the ownership rules shared by every resource kind.
func (d *differ) deletable(o Ownership) bool {
	return !d.opts.ManagedOnly || o == OwnershipOwned
}

func (d *differ) everyoneID() string {
	for _, r := range d.state.Roles {
		if r.IsEveryone {
			return r.ID
		}
	}
	return d.guildID
}

func (d *differ) roles() ([]RoleDiff, error) {
	byName := make(map[string]int, len(d.state.Roles))
	everyone := -1
	for i, r := range d.state.Roles {
		if r.IsEveryone {
			everyone = i
			continue
		}
		if _, dup := byName[r.Name]; !dup {
			byName[r.Name] = i
		}
	}

	matched := make(map[int]bool)
	diffs := make([]RoleDiff, 0, len(d.cfg.Roles))

	for i := range d.cfg.Roles {
		desired := d.cfg.Roles[i]
		want, err := normalizeRole(&desired)
		if err != nil {
			return nil, err
		}

		if desired.Name == EveryoneRole {
			var cur RoleState
			if everyone >= 0 {
				cur = d.state.Roles[everyone]
				matched[everyone] = true
			} else {
				cur = RoleState{ID: d.guildID, Name: EveryoneRole, IsEveryone: true, Ownership: OwnershipUnmanaged}
			}
			var changes []FieldChange
			if cur.Permissions != want.perms {
				changes = append(changes, FieldChange{"permissions", discord.FormatPermissions(cur.Permissions), discord.FormatPermissions(want.perms)})
			}
			diffs = append(diffs, RoleDiff{Operation: opFor(changes), Name: desired.Name, Current: &cur, Desired: &desired, Changes: changes})
			continue
		}

		idx, ok := byName[desired.Name]
		if !ok {
			diffs = append(diffs, RoleDiff{Operation: OperationCreate, Name: desired.Name, Desired: &desired})
			continue
		}
		matched[idx] = true
		cur := d.state.Roles[idx]

		var changes []FieldChange
		if cur.Color != want.color {
			changes = append(changes, FieldChange{"color", FormatColor(cur.Color), FormatColor(want.color)})
		}
		if cur.Permissions != want.perms {
			changes = append(changes, FieldChange{"permissions", discord.FormatPermissions(cur.Permissions), discord.FormatPermissions(want.perms)})
		}
		if cur.Hoist != desired.Hoist {
			changes = append(changes, FieldChange{"hoist", cur.Hoist, desired.Hoist})
		}
		if cur.Mentionable != desired.Mentionable {
			changes = append(changes, FieldChange{"mentionable", cur.Mentionable, desired.Mentionable})
		}
		if desired.Position != nil && *desired.Position != cur.Position {
			changes = append(changes, FieldChange{"position", cur.Position, *desired.Position})
		}
		diffs = append(diffs, RoleDiff{Operation: opFor(changes), Name: desired.Name, Current: &cur, Desired: &desired, Changes: changes})
	}

	for i, r := range d.state.Roles {
		if matched[i] || r.IsEveryone || r.Integration || !d.deletable(r.Ownership) {
			continue
		}
		cur := r
		diffs = append(diffs, RoleDiff{Operation: OperationDelete, Name: r.Name, Current: &cur})
	}
	return diffs, nil
}

func (d *differ) categories() []CategoryDiff {
	byName := make(map[string]int, len(d.state.Categories))
	for i, c := range d.state.Categories {
		if _, dup := byName[c.Name]; !dup {
			byName[c.Name] = i
		}
	}

	matched := make(map[int]bool)
	diffs := make([]CategoryDiff, 0, len(d.cfg.Categories))

	for i := range d.cfg.Categories {
		desired := d.cfg.Categories[i]
		idx, ok := byName[desired.Name]
		if !ok {
			diffs = append(diffs, CategoryDiff{Operation: OperationCreate, Name: desired.Name, Desired: &desired})
			continue
		}
		matched[idx] = true
		cur := d.state.Categories[idx]

		var changes []FieldChange
		if desired.Position != nil && *desired.Position != cur.Position {
			changes = append(changes, FieldChange{"position", cur.Position, *desired.Position})
		}
		diffs = append(diffs, CategoryDiff{Operation: opFor(changes), Name: desired.Name, Current: &cur, Desired: &desired, Changes: changes})
	}

	for i, c := range d.state.Categories {
		if matched[i] || !d.deletable(c.Ownership) {
			continue
		}
		cur := c
		diffs = append(diffs, CategoryDiff{Operation: OperationDelete, Name: c.Name, Current: &cur})
	}
	return diffs
}

func (d *differ) channels() ([]ChannelDiff, error) {
	byName := make(map[string]int, len(d.state.Channels))
	for i, c := range d.state.Channels {
		if _, dup := byName[c.Name]; !dup {
			byName[c.Name] = i
		}
	}

	matched := make(map[int]bool)
	diffs := make([]ChannelDiff, 0, len(d.cfg.Channels))
	d.channelMatch = make(map[int]int, len(d.cfg.Channels))

	for i := range d.cfg.Channels {
		desired := d.cfg.Channels[i]
		wantType, err := desired.ChannelType()
		if err != nil {
			return nil, err
		}

		idx, ok := byName[CanonicalChannelName(desired.Name, wantType)]
		if !ok {
			diffs = append(diffs, ChannelDiff{Operation: OperationCreate, Name: desired.Name, Desired: &desired})
			continue
		}
		matched[idx] = true
		d.channelMatch[i] = idx
		cur := d.state.Channels[idx]

		var changes []FieldChange
		if cur.Type != wantType {
			changes = append(changes, FieldChange{"type", cur.Type.String(), wantType.String()})
		}
		if cur.ParentName != desired.Parent {
			changes = append(changes, FieldChange{"parent", cur.ParentName, desired.Parent})
		}
		if desired.Position != nil && *desired.Position != cur.Position {
			changes = append(changes, FieldChange{"position", cur.Position, *desired.Position})
		}
		if cur.NSFW != desired.NSFW {
			changes = append(changes, FieldChange{"nsfw", cur.NSFW, desired.NSFW})
		}
		if wantType.IsVoice() {
			if desired.Bitrate > 0 && cur.Bitrate != desired.Bitrate {
				changes = append(changes, FieldChange{"bitrate", cur.Bitrate, desired.Bitrate})
			}
			if cur.UserLimit != desired.UserLimit {
				changes = append(changes, FieldChange{"user_limit", cur.UserLimit, desired.UserLimit})
			}
		} else {
			if cur.Topic != desired.Topic {
				changes = append(changes, FieldChange{"topic", cur.Topic, desired.Topic})
			}
			if cur.Slowmode != desired.Slowmode {
				changes = append(changes, FieldChange{"slowmode", cur.Slowmode, desired.Slowmode})
			}
		}
		diffs = append(diffs, ChannelDiff{Operation: opFor(changes), Name: desired.Name, Current: &cur, Desired: &desired, Changes: changes})
	}

	for i, c := range d.state.Channels {
		if matched[i] || !d.deletable(c.Ownership) {
			continue
		}
		cur := c
		diffs = append(diffs, ChannelDiff{Operation: OperationDelete, Name: c.Name, Current: &cur})
	}
	return diffs, nil
}

// overwriteTarget is a category or channel that declares overwrites.
type overwriteTarget struct {
	name      string
	kind      ResourceType
	desired   []PermissionOverwriteConfig
	id        string
	current   []OverwriteState
	ownership Ownership
	exists    bool
}

func (d *differ) overwriteTargets() []overwriteTarget {
	var targets []overwriteTarget

	for _, c := range d.cfg.Categories {
		t := overwriteTarget{name: c.Name, kind: ResourceCategory, desired: c.Permissions}
		for _, s := range d.state.Categories {
			if s.Name == c.Name {
				t.id, t.current, t.ownership, t.exists = s.ID, s.PermissionOverwrites, s.Ownership, true
				break
			}
		}
		targets = append(targets, t)
	}

	for i, c := range d.cfg.Channels {
		t := overwriteTarget{name: c.Name, kind: ResourceChannel, desired: c.Permissions}
		if idx, ok := d.channelMatch[i]; ok {
			s := d.state.Channels[idx]
			t.id, t.current, t.ownership, t.exists = s.ID, s.PermissionOverwrites, s.Ownership, true
		}
		targets = append(targets, t)
	}
	return targets
}

// subjectID resolves a role name to its remote id. Roles that do not exist
// yet resolve to "" and are looked up by name when applied.
func (d *differ) subjectID(name string) (string, bool) {
	if name == EveryoneRole {
		return d.everyoneID(), true
	}
	for _, r := range d.state.Roles {
		if r.Name == name && !r.IsEveryone {
			return r.ID, true
		}
	}
	for _, r := range d.cfg.Roles {
		if r.Name == name {
			return "", true
		}
	}
	return "", false
}

func (d *differ) permissions() ([]PermissionDiff, error) {
	var diffs []PermissionDiff

	for _, t := range d.overwriteTargets() {
		declared := make(map[string]bool, len(t.desired))

		for i := range t.desired {
			desired := t.desired[i]
			allow, deny, err := normalizeOverwrite(t.name, &desired)
			if err != nil {
				return nil, err
			}
			subjectID, ok := d.subjectID(desired.Role)
			if !ok {
				return nil, NewValidationError("%s %q: overwrite references unknown role %q", t.kind, t.name, desired.Role).
					WithResource(t.name)
			}
			if subjectID != "" {
				declared[subjectID] = true
			}

			pd := PermissionDiff{
				TargetID:    t.id,
				TargetName:  t.name,
				TargetType:  t.kind,
				SubjectID:   subjectID,
				SubjectName: desired.Role,
				SubjectType: discord.OverwriteRole,
				Allow:       allow,
				Deny:        deny,
				Desired:     &desired,
			}

			var cur *OverwriteState
			if subjectID != "" {
				for j := range t.current {
					if t.current[j].SubjectID == subjectID {
						c := t.current[j]
						cur = &c
						break
					}
				}
			}
			if cur == nil {
				pd.Operation = OperationCreate
				diffs = append(diffs, pd)
				continue
			}

			pd.Current = cur
			if cur.Allow != allow {
				pd.Changes = append(pd.Changes, FieldChange{"allow", discord.FormatPermissions(cur.Allow), discord.FormatPermissions(allow)})
			}
			if cur.Deny != deny {
				pd.Changes = append(pd.Changes, FieldChange{"deny", discord.FormatPermissions(cur.Deny), discord.FormatPermissions(deny)})
			}
			pd.Operation = opFor(pd.Changes)
			diffs = append(diffs, pd)
		}

		// A target that declares overwrites owns its role overwrite list.
		// Member overwrites are never touched.
		if !t.exists || len(t.desired) == 0 || !d.deletable(t.ownership) {
			continue
		}
		for j := range t.current {
			c := t.current[j]
			if c.SubjectType != discord.OverwriteRole || declared[c.SubjectID] {
				continue
			}
			diffs = append(diffs, PermissionDiff{
				Operation:   OperationDelete,
				TargetID:    t.id,
				TargetName:  t.name,
				TargetType:  t.kind,
				SubjectID:   c.SubjectID,
				SubjectName: c.SubjectName,
				SubjectType: c.SubjectType,
				Current:     &c,
			})
		}
	}
	return diffs, nil
}

func opFor(changes []FieldChange) OperationType {
	if len(changes) > 0 {
		return OperationUpdate
	}
	return OperationNoop
}

func summarize(diff *ServerDiff) DiffSummary {
	var s DiffSummary
	count := func(op OperationType) {
		s.Total++
		switch op {
		case OperationCreate:
			s.Create++
		case OperationUpdate:
			s.Update++
		case OperationDelete:
			s.Delete++
		case OperationNoop:
			s.Noop++
		}
	}
	for _, r := range diff.Roles {
		count(r.Operation)
	}
	for _, c := range diff.Categories {
		count(c.Operation)
	}
	for _, c := range diff.Channels {
		count(c.Operation)
	}
	for _, p := range diff.Permissions {
		count(p.Operation)
	}
	return s
}

// GetActionableChanges returns a copy of diff without noop entries.
func GetActionableChanges(diff *ServerDiff) *ServerDiff {
	if diff == nil {
		return nil
	}
	out := &ServerDiff{GuildID: diff.GuildID}
	for _, r := range diff.Roles {
		if r.Operation != OperationNoop {
			out.Roles = append(out.Roles, r)
		}
	}
	for _, c := range diff.Categories {
		if c.Operation != OperationNoop {
			out.Categories = append(out.Categories, c)
		}
	}
	for _, c := range diff.Channels {
		if c.Operation != OperationNoop {
			out.Channels = append(out.Channels, c)
		}
	}
	for _, p := range diff.Permissions {
		if p.Operation != OperationNoop {
			out.Permissions = append(out.Permissions, p)
		}
	}
	out.Summary = summarize(out)
	out.HasChanges = out.Summary.Total > 0
	return out
}
