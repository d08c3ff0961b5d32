package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
)

// ManagedMarker tags remote objects owned by this tool. It is matched in a
// role or category name, or in a channel name or topic.
const ManagedMarker = "[managed-by:iac]"

// EveryoneRole is the configuration name of the guild's default role.
const EveryoneRole = "@everyone"

// ServerConfig is the desired state of a guild.
type ServerConfig struct {
	// Version is the configuration schema version.
	Version string `yaml:"version" json:"version" validate:"required"`

	// Server carries guild-level metadata.
	Server ServerInfo `yaml:"server" json:"server"`

	Roles      []RoleConfig     `yaml:"roles,omitempty" json:"roles,omitempty" validate:"dive"`
	Categories []CategoryConfig `yaml:"categories,omitempty" json:"categories,omitempty" validate:"dive"`
	Channels   []ChannelConfig  `yaml:"channels,omitempty" json:"channels,omitempty" validate:"dive"`
}

// ServerInfo identifies the guild a configuration targets.
type ServerInfo struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty" validate:"omitempty,max=100"`

	// ID optionally pins the guild; the CLI falls back to DISCORD_GUILD_ID.
	ID string `yaml:"id,omitempty" json:"id,omitempty" validate:"omitempty,numeric"`
}

// RoleConfig is the desired state of a role.
type RoleConfig struct {
	Name string `yaml:"name" json:"name" validate:"required,max=100"`

	// Color is "#RRGGBB", "0xRRGGBB" or a decimal integer.
	Color ColorSpec `yaml:"color,omitempty" json:"color,omitempty"`

	// Permissions lists permission flag names, or a single numeric bitset.
	Permissions []string `yaml:"permissions,omitempty" json:"permissions,omitempty"`

	Hoist       bool `yaml:"hoist,omitempty" json:"hoist,omitempty"`
	Mentionable bool `yaml:"mentionable,omitempty" json:"mentionable,omitempty"`

	// Position is compared only when set.
	Position *int `yaml:"position,omitempty" json:"position,omitempty" validate:"omitempty,min=0"`
}

// CategoryConfig is the desired state of a channel category.
type CategoryConfig struct {
	Name        string                      `yaml:"name" json:"name" validate:"required,max=100"`
	Position    *int                        `yaml:"position,omitempty" json:"position,omitempty" validate:"omitempty,min=0"`
	Permissions []PermissionOverwriteConfig `yaml:"permissions,omitempty" json:"permissions,omitempty" validate:"dive"`
}

// ChannelConfig is the desired state of a channel.
type ChannelConfig struct {
	Name string `yaml:"name" json:"name" validate:"required,max=100"`

	// Type is text, voice, announcement, stage or forum. Empty means text.
	Type string `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,oneof=text voice announcement news stage forum"`

	// Parent is the name of a declared category.
	Parent string `yaml:"parent,omitempty" json:"parent,omitempty"`

	Topic    string `yaml:"topic,omitempty" json:"topic,omitempty" validate:"max=1024"`
	Position *int   `yaml:"position,omitempty" json:"position,omitempty" validate:"omitempty,min=0"`
	NSFW     bool   `yaml:"nsfw,omitempty" json:"nsfw,omitempty"`

	// Slowmode is the per-user message interval in seconds.
	Slowmode int `yaml:"slowmode,omitempty" json:"slowmode,omitempty" validate:"min=0,max=21600"`

	// Bitrate and UserLimit apply to voice and stage channels.
	Bitrate   int `yaml:"bitrate,omitempty" json:"bitrate,omitempty" validate:"omitempty,min=8000,max=384000"`
	UserLimit int `yaml:"user_limit,omitempty" json:"user_limit,omitempty" validate:"min=0,max=99"`

	Permissions []PermissionOverwriteConfig `yaml:"permissions,omitempty" json:"permissions,omitempty" validate:"dive"`
}

// ChannelType resolves the configured type name.
func (c ChannelConfig) ChannelType() (discord.ChannelType, error) {
	t, ok := discord.ParseChannelType(c.Type)
	if !ok || t == discord.ChannelTypeCategory {
		return 0, NewValidationError("channel %q has unknown type %q", c.Name, c.Type)
	}
	return t, nil
}

// PermissionOverwriteConfig grants or denies flags to one role on a channel
// or category.
type PermissionOverwriteConfig struct {
	// Role is the subject role name, or "@everyone".
	Role  string   `yaml:"role" json:"role" validate:"required"`
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// ColorSpec is a role color as written in configuration.
type ColorSpec string

// UnmarshalJSON accepts a JSON string or number.
func (c *ColorSpec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ColorSpec(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("color must be a string or integer: %w", err)
	}
	*c = ColorSpec(n.String())
	return nil
}

// UnmarshalYAML accepts any scalar.
func (c *ColorSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: color must be a scalar", node.Line)
	}
	*c = ColorSpec(node.Value)
	return nil
}

// Value returns the color as a 24-bit integer. An empty color is 0.
func (c ColorSpec) Value() (int, error) {
	s := strings.TrimSpace(string(c))
	if s == "" {
		return 0, nil
	}

	var (
		v   int64
		err error
	)
	switch {
	case strings.HasPrefix(s, "#"):
		v, err = strconv.ParseInt(s[1:], 16, 64)
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v, err = strconv.ParseInt(s[2:], 16, 64)
	default:
		v, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil || v < 0 || v > 0xFFFFFF {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	return int(v), nil
}

// FormatColor renders a color integer as #RRGGBB.
func FormatColor(v int) string {
	return fmt.Sprintf("#%06X", v)
}

// ServerState is the observed state of a guild.
type ServerState struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Roles      []RoleState     `json:"roles"`
	Categories []CategoryState `json:"categories"`
	Channels   []ChannelState  `json:"channels"`

	// FetchedAt is when the state was read from the platform.
	FetchedAt time.Time `json:"fetched_at"`
}

// RoleState is an observed role.
type RoleState struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Color       int                 `json:"color"`
	Permissions discord.Permissions `json:"permissions"`
	Hoist       bool                `json:"hoist"`
	Mentionable bool                `json:"mentionable"`
	Position    int                 `json:"position"`

	// Integration is set for roles owned by a bot or integration. They can
	// never be deleted through the API.
	Integration bool `json:"integration,omitempty"`

	IsEveryone bool      `json:"is_everyone,omitempty"`
	Ownership  Ownership `json:"ownership"`
}

// CategoryState is an observed channel category.
type CategoryState struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Position             int              `json:"position"`
	PermissionOverwrites []OverwriteState `json:"permission_overwrites,omitempty"`
	Ownership            Ownership        `json:"ownership"`
}

// ChannelState is an observed non-category channel.
type ChannelState struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Type       discord.ChannelType `json:"type"`
	Topic      string              `json:"topic,omitempty"`
	ParentID   string              `json:"parent_id,omitempty"`
	ParentName string              `json:"parent_name,omitempty"`
	Position   int                 `json:"position"`
	NSFW       bool                `json:"nsfw,omitempty"`
	Slowmode   int                 `json:"slowmode,omitempty"`
	Bitrate    int                 `json:"bitrate,omitempty"`
	UserLimit  int                 `json:"user_limit,omitempty"`

	PermissionOverwrites []OverwriteState `json:"permission_overwrites,omitempty"`
	Ownership            Ownership        `json:"ownership"`
}

// OverwriteState is an observed permission overwrite.
type OverwriteState struct {
	SubjectID   string                `json:"subject_id"`
	SubjectName string                `json:"subject_name,omitempty"`
	SubjectType discord.OverwriteType `json:"subject_type"`
	Allow       discord.Permissions   `json:"allow"`
	Deny        discord.Permissions   `json:"deny"`
}

// FieldChange is one differing field of a matched resource.
type FieldChange struct {
	Field string      `json:"field"`
	From  interface{} `json:"from"`
	To    interface{} `json:"to"`
}

// RoleDiff is the planned operation for one role.
type RoleDiff struct {
	Operation OperationType `json:"operation"`
	Name      string        `json:"name"`
	Current   *RoleState    `json:"current,omitempty"`
	Desired   *RoleConfig   `json:"desired,omitempty"`
	Changes   []FieldChange `json:"changes,omitempty"`
}

// CategoryDiff is the planned operation for one category.
type CategoryDiff struct {
	Operation OperationType   `json:"operation"`
	Name      string          `json:"name"`
	Current   *CategoryState  `json:"current,omitempty"`
	Desired   *CategoryConfig `json:"desired,omitempty"`
	Changes   []FieldChange   `json:"changes,omitempty"`
}

// ChannelDiff is the planned operation for one channel.
type ChannelDiff struct {
	Operation OperationType  `json:"operation"`
	Name      string         `json:"name"`
	Current   *ChannelState  `json:"current,omitempty"`
	Desired   *ChannelConfig `json:"desired,omitempty"`
	Changes   []FieldChange  `json:"changes,omitempty"`
}

// PermissionDiff is the planned operation for one (target, subject) pair.
// TargetID or SubjectID is empty when the object is created earlier in the
// same apply; the writer resolves it by name.
type PermissionDiff struct {
	Operation  OperationType `json:"operation"`
	TargetID   string        `json:"target_id,omitempty"`
	TargetName string        `json:"target_name"`
	TargetType ResourceType  `json:"target_type"`

	SubjectID   string                `json:"subject_id,omitempty"`
	SubjectName string                `json:"subject_name"`
	SubjectType discord.OverwriteType `json:"subject_type"`

	// Allow and Deny are the desired bitsets.
	Allow discord.Permissions `json:"allow"`
	Deny  discord.Permissions `json:"deny"`

	Current *OverwriteState            `json:"current,omitempty"`
	Desired *PermissionOverwriteConfig `json:"desired,omitempty"`
	Changes []FieldChange              `json:"changes,omitempty"`
}

// DiffSummary counts operations across every resource kind.
type DiffSummary struct {
	Total  int `json:"total"`
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
	Noop   int `json:"noop"`
}

// ServerDiff is the full operation set reconciling a guild.
type ServerDiff struct {
	GuildID     string           `json:"guild_id"`
	Roles       []RoleDiff       `json:"roles"`
	Categories  []CategoryDiff   `json:"categories"`
	Channels    []ChannelDiff    `json:"channels"`
	Permissions []PermissionDiff `json:"permissions"`
	Summary     DiffSummary      `json:"summary"`
	HasChanges  bool             `json:"has_changes"`
}

// ApplyResult is the outcome of one operation.
type ApplyResult struct {
	Success      bool          `json:"success"`
	Operation    OperationType `json:"operation"`
	ResourceType ResourceType  `json:"resource_type"`
	ResourceName string        `json:"resource_name"`
	ResourceID   string        `json:"resource_id,omitempty"`
	Error        string        `json:"error,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	Attempts     int           `json:"attempts"`
	Duration     time.Duration `json:"duration"`
}

// ApplySummary counts operation outcomes.
type ApplySummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ApplyBatchResult is the outcome of an apply.
type ApplyBatchResult struct {
	RunID   string        `json:"run_id"`
	GuildID string        `json:"guild_id"`
	DryRun  bool          `json:"dry_run"`
	Success bool          `json:"success"`
	Results []ApplyResult `json:"results"`
	Summary ApplySummary  `json:"summary"`

	TotalDuration time.Duration `json:"total_duration"`

	// Truncated is set when the apply stopped with operations left unrun.
	Truncated bool `json:"truncated"`

	// Cancelled is set when the context ended the apply.
	Cancelled bool `json:"cancelled"`
}

// Status derives the run status from the outcome.
func (r *ApplyBatchResult) Status() RunStatus {
	switch {
	case r.Cancelled:
		return RunStatusCancelled
	case r.Summary.Failed == 0 && !r.Truncated:
		return RunStatusSucceeded
	case r.Summary.Succeeded > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}
