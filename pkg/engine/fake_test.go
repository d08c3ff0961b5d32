package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/ratelimit"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/retry"
)

// fakeGuild is an in-memory guild implementing discord.API.
type fakeGuild struct {
	mu       sync.Mutex
	guild    discord.Guild
	roles    []discord.Role
	channels []discord.Channel
	nextID   int

	calls    []string
	failures map[string][]error

	lastChannelParams map[string]discord.ChannelParams
	lastOverwrites    map[string]discord.OverwriteParams
	lastRoleParams    map[string]discord.RoleParams
}

func newFakeGuild(id string) *fakeGuild {
	return &fakeGuild{
		guild:             discord.Guild{ID: id, Name: "test guild"},
		roles:             []discord.Role{{ID: id, Name: "@everyone", Permissions: "0"}},
		nextID:            1000,
		failures:          make(map[string][]error),
		lastChannelParams: make(map[string]discord.ChannelParams),
		lastOverwrites:    make(map[string]discord.OverwriteParams),
		lastRoleParams:    make(map[string]discord.RoleParams),
	}
}

// failNext queues errors returned by the call with the given label, one per
// invocation.
func (f *fakeGuild) failNext(call string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[call] = append(f.failures[call], errs...)
}

func (f *fakeGuild) record(call string) error {
	f.calls = append(f.calls, call)
	if queued := f.failures[call]; len(queued) > 0 {
		f.failures[call] = queued[1:]
		return queued[0]
	}
	return nil
}

func (f *fakeGuild) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGuild) newID() string {
	f.nextID++
	return fmt.Sprintf("%d", f.nextID)
}

func (f *fakeGuild) GetGuild(ctx context.Context, guildID string) (*discord.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetGuild"); err != nil {
		return nil, err
	}
	g := f.guild
	return &g, nil
}

func (f *fakeGuild) ListRoles(ctx context.Context, guildID string) ([]discord.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListRoles"); err != nil {
		return nil, err
	}
	return append([]discord.Role(nil), f.roles...), nil
}

func (f *fakeGuild) ListChannels(ctx context.Context, guildID string) ([]discord.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListChannels"); err != nil {
		return nil, err
	}
	out := make([]discord.Channel, len(f.channels))
	for i, c := range f.channels {
		c.PermissionOverwrites = append([]discord.Overwrite(nil), c.PermissionOverwrites...)
		out[i] = c
	}
	return out, nil
}

func (f *fakeGuild) CreateRole(ctx context.Context, guildID string, params discord.RoleParams) (*discord.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRole " + params.Name); err != nil {
		return nil, err
	}
	role := discord.Role{
		ID:          f.newID(),
		Name:        params.Name,
		Color:       params.Color,
		Permissions: params.Permissions,
		Hoist:       params.Hoist,
		Mentionable: params.Mentionable,
		Position:    len(f.roles),
	}
	f.roles = append(f.roles, role)
	f.lastRoleParams[role.ID] = params
	return &role, nil
}

func (f *fakeGuild) UpdateRole(ctx context.Context, guildID, roleID string, params discord.RoleParams) (*discord.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateRole " + params.Name); err != nil {
		return nil, err
	}
	f.lastRoleParams[roleID] = params
	for i := range f.roles {
		if f.roles[i].ID != roleID {
			continue
		}
		r := &f.roles[i]
		if r.ID != f.guild.ID {
			r.Name = params.Name
		}
		r.Color, r.Permissions, r.Hoist, r.Mentionable = params.Color, params.Permissions, params.Hoist, params.Mentionable
		out := *r
		return &out, nil
	}
	return nil, discord.NewStatusError(404, "Unknown Role")
}

func (f *fakeGuild) SetRolePosition(ctx context.Context, guildID, roleID string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := roleID
	for _, r := range f.roles {
		if r.ID == roleID {
			name = r.Name
		}
	}
	if err := f.record("SetRolePosition " + name); err != nil {
		return err
	}
	for i := range f.roles {
		if f.roles[i].ID == roleID {
			f.roles[i].Position = position
			return nil
		}
	}
	return discord.NewStatusError(404, "Unknown Role")
}

func (f *fakeGuild) DeleteRole(ctx context.Context, guildID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := roleID
	for _, r := range f.roles {
		if r.ID == roleID {
			name = r.Name
		}
	}
	if err := f.record("DeleteRole " + name); err != nil {
		return err
	}
	for i, r := range f.roles {
		if r.ID == roleID {
			f.roles = append(f.roles[:i], f.roles[i+1:]...)
			return nil
		}
	}
	return discord.NewStatusError(404, "Unknown Role")
}

func (f *fakeGuild) applyChannelParams(c *discord.Channel, params discord.ChannelParams) {
	c.Name = CanonicalChannelName(params.Name, params.Type)
	if params.Type == discord.ChannelTypeCategory {
		c.Name = params.Name
	}
	c.Type = params.Type
	c.Topic = params.Topic
	c.ParentID = params.ParentID
	c.NSFW = params.NSFW
	c.RateLimitPerUser = params.RateLimitPerUser
	c.Bitrate = params.Bitrate
	c.UserLimit = params.UserLimit
	if params.Position != nil {
		c.Position = *params.Position
	}
}

func (f *fakeGuild) CreateChannel(ctx context.Context, guildID string, params discord.ChannelParams) (*discord.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateChannel " + params.Name); err != nil {
		return nil, err
	}
	c := discord.Channel{ID: f.newID(), GuildID: guildID, Position: len(f.channels)}
	f.applyChannelParams(&c, params)
	f.channels = append(f.channels, c)
	f.lastChannelParams[c.ID] = params
	return &c, nil
}

func (f *fakeGuild) UpdateChannel(ctx context.Context, channelID string, params discord.ChannelParams) (*discord.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateChannel " + params.Name); err != nil {
		return nil, err
	}
	f.lastChannelParams[channelID] = params
	for i := range f.channels {
		if f.channels[i].ID == channelID {
			f.applyChannelParams(&f.channels[i], params)
			out := f.channels[i]
			return &out, nil
		}
	}
	return nil, discord.NewStatusError(404, "Unknown Channel")
}

func (f *fakeGuild) channelName(id string) string {
	for _, c := range f.channels {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}

func (f *fakeGuild) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteChannel " + f.channelName(channelID)); err != nil {
		return err
	}
	for i, c := range f.channels {
		if c.ID == channelID {
			f.channels = append(f.channels[:i], f.channels[i+1:]...)
			return nil
		}
	}
	return discord.NewStatusError(404, "Unknown Channel")
}

func (f *fakeGuild) SetChannelPermission(ctx context.Context, channelID string, params discord.OverwriteParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetChannelPermission " + f.channelName(channelID)); err != nil {
		return err
	}
	f.lastOverwrites[channelID+"/"+params.ID] = params
	for i := range f.channels {
		c := &f.channels[i]
		if c.ID != channelID {
			continue
		}
		ow := discord.Overwrite{ID: params.ID, Type: params.Type, Allow: params.Allow, Deny: params.Deny}
		for j := range c.PermissionOverwrites {
			if c.PermissionOverwrites[j].ID == params.ID {
				c.PermissionOverwrites[j] = ow
				return nil
			}
		}
		c.PermissionOverwrites = append(c.PermissionOverwrites, ow)
		return nil
	}
	return discord.NewStatusError(404, "Unknown Channel")
}

func (f *fakeGuild) DeleteChannelPermission(ctx context.Context, channelID, overwriteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteChannelPermission " + f.channelName(channelID)); err != nil {
		return err
	}
	for i := range f.channels {
		c := &f.channels[i]
		if c.ID != channelID {
			continue
		}
		for j := range c.PermissionOverwrites {
			if c.PermissionOverwrites[j].ID == overwriteID {
				c.PermissionOverwrites = append(c.PermissionOverwrites[:j], c.PermissionOverwrites[j+1:]...)
				return nil
			}
		}
	}
	return discord.NewStatusError(404, "Unknown Overwrite")
}

// instantClock reports real time but never makes callers wait.
type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// newTestWriter returns a writer whose limiter and retrier never sleep.
func newTestWriter(client discord.Client, opts ...WriterOption) *StateWriter {
	limiter := ratelimit.New(ratelimit.Options{
		MaxTokens:  1000,
		RefillRate: 1000,
		Clock:      instantClock{},
	})
	retrier := retry.New(retry.Options{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Jitter:      -1,
		Clock:       instantClock{},
	})
	return NewStateWriter(client, limiter, retrier, opts...)
}

func intPtr(v int) *int { return &v }
