package engine

import (
	"strings"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
)

// roleValues is a RoleConfig reduced to comparable values.
type roleValues struct {
	color int
	perms discord.Permissions
}

func normalizeRole(rc *RoleConfig) (roleValues, error) {
	color, err := rc.Color.Value()
	if err != nil {
		return roleValues{}, NewValidationError("role %q: %v", rc.Name, err).WithResource(rc.Name)
	}
	perms, err := discord.ParsePermissions(rc.Permissions)
	if err != nil {
		return roleValues{}, NewValidationError("role %q: %v", rc.Name, err).WithResource(rc.Name)
	}
	return roleValues{color: color, perms: perms}, nil
}

func normalizeOverwrite(target string, pc *PermissionOverwriteConfig) (allow, deny discord.Permissions, err error) {
	allow, err = discord.ParsePermissions(pc.Allow)
	if err != nil {
		return 0, 0, NewValidationError("%s: overwrite for %q: %v", target, pc.Role, err).WithResource(target)
	}
	deny, err = discord.ParsePermissions(pc.Deny)
	if err != nil {
		return 0, 0, NewValidationError("%s: overwrite for %q: %v", target, pc.Role, err).WithResource(target)
	}
	return allow, deny, nil
}

// CanonicalChannelName applies the platform's text channel naming rules:
// lower case with spaces replaced by hyphens. Voice and stage channels keep
// their name.
func CanonicalChannelName(name string, t discord.ChannelType) string {
	name = strings.TrimSpace(name)
	if t.IsVoice() {
		return name
	}
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

// IsManagedName reports whether s carries the management marker.
func IsManagedName(s string) bool {
	return strings.Contains(s, ManagedMarker)
}

func roleOwnership(name string) Ownership {
	if IsManagedName(name) {
		return OwnershipOwned
	}
	return OwnershipUnmanaged
}

func channelOwnership(name, topic string) Ownership {
	if IsManagedName(name) || IsManagedName(topic) {
		return OwnershipOwned
	}
	return OwnershipUnmanaged
}
