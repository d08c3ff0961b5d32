package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
)

// FetchState reads a guild's roles and channels and converts them to a
// ServerState. Ownership is computed here once; the diff engine only reads
// it.
func FetchState(ctx context.Context, reader discord.StateReader, guildID string) (*ServerState, error) {
	if reader == nil {
		return nil, NewPermanentError("no platform reader configured", nil).WithCode(ErrCodeInternal)
	}
	if guildID == "" {
		return nil, NewValidationError("guild id is required")
	}

	var (
		guild    *discord.Guild
		roles    []discord.Role
		channels []discord.Channel
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		guild, err = reader.GetGuild(gctx, guildID)
		if err != nil {
			return fmt.Errorf("failed to fetch guild: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		roles, err = reader.ListRoles(gctx, guildID)
		if err != nil {
			return fmt.Errorf("failed to list roles: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		channels, err = reader.ListChannels(gctx, guildID)
		if err != nil {
			return fmt.Errorf("failed to list channels: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return BuildState(guild, roles, channels, time.Now())
}

// BuildState converts platform objects to a ServerState. Roles are ordered
// by position, categories and channels by position then id.
func BuildState(guild *discord.Guild, roles []discord.Role, channels []discord.Channel, fetchedAt time.Time) (*ServerState, error) {
	if guild == nil {
		return nil, NewPermanentError("guild is nil", nil).WithCode(ErrCodeInternal)
	}

	state := &ServerState{
		ID:        guild.ID,
		Name:      guild.Name,
		FetchedAt: fetchedAt,
	}

	roleNames := make(map[string]string, len(roles))
	for _, r := range roles {
		perms, err := discord.ParseBitfield(r.Permissions)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", r.ID, err)
		}
		isEveryone := r.ID == guild.ID
		name := r.Name
		if isEveryone {
			name = EveryoneRole
		}
		roleNames[r.ID] = name
		state.Roles = append(state.Roles, RoleState{
			ID:          r.ID,
			Name:        name,
			Color:       r.Color,
			Permissions: perms,
			Hoist:       r.Hoist,
			Mentionable: r.Mentionable,
			Position:    r.Position,
			Integration: r.Managed,
			IsEveryone:  isEveryone,
			Ownership:   roleOwnership(name),
		})
	}
	sort.SliceStable(state.Roles, func(i, j int) bool {
		return state.Roles[i].Position < state.Roles[j].Position
	})

	sorted := append([]discord.Channel(nil), channels...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].ID < sorted[j].ID
	})

	categoryNames := make(map[string]string)
	for _, c := range sorted {
		if c.Type == discord.ChannelTypeCategory {
			categoryNames[c.ID] = c.Name
		}
	}

	for _, c := range sorted {
		overwrites, err := convertOverwrites(c.PermissionOverwrites, roleNames)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", c.ID, err)
		}

		if c.Type == discord.ChannelTypeCategory {
			state.Categories = append(state.Categories, CategoryState{
				ID:                   c.ID,
				Name:                 c.Name,
				Position:             c.Position,
				PermissionOverwrites: overwrites,
				Ownership:            roleOwnership(c.Name),
			})
			continue
		}

		state.Channels = append(state.Channels, ChannelState{
			ID:                   c.ID,
			Name:                 c.Name,
			Type:                 c.Type,
			Topic:                c.Topic,
			ParentID:             c.ParentID,
			ParentName:           categoryNames[c.ParentID],
			Position:             c.Position,
			NSFW:                 c.NSFW,
			Slowmode:             c.RateLimitPerUser,
			Bitrate:              c.Bitrate,
			UserLimit:            c.UserLimit,
			PermissionOverwrites: overwrites,
			Ownership:            channelOwnership(c.Name, c.Topic),
		})
	}
	return state, nil
}

func convertOverwrites(in []discord.Overwrite, roleNames map[string]string) ([]OverwriteState, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]OverwriteState, 0, len(in))
	for _, o := range in {
		allow, err := discord.ParseBitfield(o.Allow)
		if err != nil {
			return nil, err
		}
		deny, err := discord.ParseBitfield(o.Deny)
		if err != nil {
			return nil, err
		}
		out = append(out, OverwriteState{
			SubjectID:   o.ID,
			SubjectName: roleNames[o.ID],
			SubjectType: o.Type,
			Allow:       allow,
			Deny:        deny,
		})
	}
	return out, nil
}
