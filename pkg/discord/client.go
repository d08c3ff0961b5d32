// Package discord is the boundary between guildform and the chat platform's
// REST API. It defines the Client and StateReader interfaces the engine
// depends on, the wire types they exchange, and a net/http implementation.
package discord

import (
	"context"
	"encoding/json"
)

// ChannelType is the platform's numeric channel type.
type ChannelType int

const (
	ChannelTypeText         ChannelType = 0
	ChannelTypeVoice        ChannelType = 2
	ChannelTypeCategory     ChannelType = 4
	ChannelTypeAnnouncement ChannelType = 5
	ChannelTypeStage        ChannelType = 13
	ChannelTypeForum        ChannelType = 15
)

// String returns the configuration name of the channel type.
func (t ChannelType) String() string {
	switch t {
	case ChannelTypeText:
		return "text"
	case ChannelTypeVoice:
		return "voice"
	case ChannelTypeCategory:
		return "category"
	case ChannelTypeAnnouncement:
		return "announcement"
	case ChannelTypeStage:
		return "stage"
	case ChannelTypeForum:
		return "forum"
	default:
		return "unknown"
	}
}

// IsVoice reports whether the channel carries audio settings.
func (t ChannelType) IsVoice() bool {
	return t == ChannelTypeVoice || t == ChannelTypeStage
}

// ParseChannelType maps a configuration name to a ChannelType.
func ParseChannelType(name string) (ChannelType, bool) {
	switch name {
	case "text", "":
		return ChannelTypeText, true
	case "voice":
		return ChannelTypeVoice, true
	case "category":
		return ChannelTypeCategory, true
	case "announcement", "news":
		return ChannelTypeAnnouncement, true
	case "stage":
		return ChannelTypeStage, true
	case "forum":
		return ChannelTypeForum, true
	default:
		return 0, false
	}
}

// OverwriteType says whether a permission overwrite targets a role or a member.
type OverwriteType int

const (
	OverwriteRole   OverwriteType = 0
	OverwriteMember OverwriteType = 1
)

// Guild is the subset of guild fields guildform reads.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Role is a guild role as returned by the API. Permissions is a decimal
// bit-set string.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Hoist       bool   `json:"hoist"`
	Position    int    `json:"position"`
	Permissions string `json:"permissions"`
	Managed     bool   `json:"managed"`
	Mentionable bool   `json:"mentionable"`
}

// Overwrite is a permission overwrite on a channel or category.
type Overwrite struct {
	ID    string        `json:"id"`
	Type  OverwriteType `json:"type"`
	Allow string        `json:"allow"`
	Deny  string        `json:"deny"`
}

// Channel is a guild channel or category as returned by the API.
type Channel struct {
	ID                   string      `json:"id"`
	Type                 ChannelType `json:"type"`
	GuildID              string      `json:"guild_id,omitempty"`
	Name                 string      `json:"name"`
	Topic                string      `json:"topic,omitempty"`
	ParentID             string      `json:"parent_id,omitempty"`
	Position             int         `json:"position"`
	NSFW                 bool        `json:"nsfw"`
	RateLimitPerUser     int         `json:"rate_limit_per_user"`
	Bitrate              int         `json:"bitrate,omitempty"`
	UserLimit            int         `json:"user_limit"`
	PermissionOverwrites []Overwrite `json:"permission_overwrites,omitempty"`
}

// UnmarshalJSON tolerates null topic and parent_id.
func (c *Channel) UnmarshalJSON(data []byte) error {
	type rawChannel Channel
	var raw struct {
		rawChannel
		Topic    *string `json:"topic"`
		ParentID *string `json:"parent_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Channel(raw.rawChannel)
	if raw.Topic != nil {
		c.Topic = *raw.Topic
	}
	if raw.ParentID != nil {
		c.ParentID = *raw.ParentID
	}
	return nil
}

// RoleParams is the body for role creation and modification.
type RoleParams struct {
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Permissions string `json:"permissions"`
	Hoist       bool   `json:"hoist"`
	Mentionable bool   `json:"mentionable"`
}

// ChannelParams is the body for channel creation and modification.
// Only fields meaningful for Type are sent.
type ChannelParams struct {
	Name             string
	Type             ChannelType
	Topic            string
	ParentID         string
	Position         *int
	NSFW             bool
	RateLimitPerUser int
	Bitrate          int
	UserLimit        int
}

// MarshalJSON encodes the fields the API accepts for the channel type. An
// empty ParentID is sent as null so updates can detach a channel.
func (p ChannelParams) MarshalJSON() ([]byte, error) {
	body := map[string]interface{}{
		"name": p.Name,
		"type": p.Type,
	}
	if p.Position != nil {
		body["position"] = *p.Position
	}
	if p.Type != ChannelTypeCategory {
		if p.ParentID != "" {
			body["parent_id"] = p.ParentID
		} else {
			body["parent_id"] = nil
		}
		body["nsfw"] = p.NSFW
	}
	switch {
	case p.Type.IsVoice():
		if p.Bitrate > 0 {
			body["bitrate"] = p.Bitrate
		}
		body["user_limit"] = p.UserLimit
	case p.Type != ChannelTypeCategory:
		body["topic"] = p.Topic
		body["rate_limit_per_user"] = p.RateLimitPerUser
	}
	return json.Marshal(body)
}

// OverwriteParams sets one permission overwrite on a channel.
type OverwriteParams struct {
	ID    string        `json:"-"`
	Type  OverwriteType `json:"type"`
	Allow string        `json:"allow"`
	Deny  string        `json:"deny"`
}

// Client performs the writes the engine needs. Implementations return
// *APIError for every remote failure.
type Client interface {
	CreateRole(ctx context.Context, guildID string, params RoleParams) (*Role, error)
	UpdateRole(ctx context.Context, guildID, roleID string, params RoleParams) (*Role, error)
	SetRolePosition(ctx context.Context, guildID, roleID string, position int) error
	DeleteRole(ctx context.Context, guildID, roleID string) error

	CreateChannel(ctx context.Context, guildID string, params ChannelParams) (*Channel, error)
	UpdateChannel(ctx context.Context, channelID string, params ChannelParams) (*Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error

	SetChannelPermission(ctx context.Context, channelID string, params OverwriteParams) error
	DeleteChannelPermission(ctx context.Context, channelID, overwriteID string) error
}

// StateReader performs the reads needed to observe a guild.
type StateReader interface {
	GetGuild(ctx context.Context, guildID string) (*Guild, error)
	ListRoles(ctx context.Context, guildID string) ([]Role, error)
	ListChannels(ctx context.Context, guildID string) ([]Channel, error)
}

// API is the full platform surface.
type API interface {
	Client
	StateReader
}
