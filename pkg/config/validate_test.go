package config

import (
	"strings"
	"testing"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
)

func validConfig() *engine.ServerConfig {
	return &engine.ServerConfig{
		Version: "1.0",
		Server:  engine.ServerInfo{Name: "Guild"},
		Roles: []engine.RoleConfig{
			{Name: "Mod", Color: "#00FF00", Permissions: []string{"KICK_MEMBERS"}},
		},
		Categories: []engine.CategoryConfig{
			{Name: "General"},
		},
		Channels: []engine.ChannelConfig{
			{Name: "chat", Parent: "General", Permissions: []engine.PermissionOverwriteConfig{
				{Role: "Mod", Allow: []string{"MANAGE_MESSAGES"}},
				{Role: engine.EveryoneRole, Deny: []string{"SEND_MESSAGES"}},
			}},
			{Name: "Lobby", Type: "voice", Bitrate: 64000},
		},
	}
}

func TestValidator_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if findings := NewValidator().Check(validConfig()); len(findings) != 0 {
		t.Errorf("expected no findings, got %v", findings)
	}
}

func TestValidator_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*engine.ServerConfig)
		wantPath string
		wantMsg  string
	}{
		{
			name:     "missing version",
			mutate:   func(c *engine.ServerConfig) { c.Version = "" },
			wantPath: "version",
			wantMsg:  "required",
		},
		{
			name:     "unparseable version",
			mutate:   func(c *engine.ServerConfig) { c.Version = "latest" },
			wantPath: "version",
			wantMsg:  "invalid version",
		},
		{
			name:     "unsupported version",
			mutate:   func(c *engine.ServerConfig) { c.Version = "2.0.0" },
			wantPath: "version",
			wantMsg:  "not supported",
		},
		{
			name:     "missing role name",
			mutate:   func(c *engine.ServerConfig) { c.Roles[0].Name = "" },
			wantPath: "roles[0].name",
			wantMsg:  "required",
		},
		{
			name: "duplicate role",
			mutate: func(c *engine.ServerConfig) {
				c.Roles = append(c.Roles, engine.RoleConfig{Name: "Mod"})
			},
			wantPath: "roles[1].name",
			wantMsg:  "duplicate role",
		},
		{
			name:     "bad color",
			mutate:   func(c *engine.ServerConfig) { c.Roles[0].Color = "#GGGGGG" },
			wantPath: "roles[0].color",
			wantMsg:  "invalid color",
		},
		{
			name:     "unknown permission",
			mutate:   func(c *engine.ServerConfig) { c.Roles[0].Permissions = []string{"FLY"} },
			wantPath: "roles[0].permissions",
			wantMsg:  "unknown permission",
		},
		{
			name: "duplicate category",
			mutate: func(c *engine.ServerConfig) {
				c.Categories = append(c.Categories, engine.CategoryConfig{Name: "General"})
			},
			wantPath: "categories[1].name",
			wantMsg:  "duplicate category",
		},
		{
			name: "channel names collide after canonicalization",
			mutate: func(c *engine.ServerConfig) {
				c.Channels = append(c.Channels, engine.ChannelConfig{Name: "Chat"})
			},
			wantPath: "channels[2].name",
			wantMsg:  "collides",
		},
		{
			name:     "unknown parent",
			mutate:   func(c *engine.ServerConfig) { c.Channels[0].Parent = "Nowhere" },
			wantPath: "channels[0].parent",
			wantMsg:  "not a declared category",
		},
		{
			name:     "unknown channel type",
			mutate:   func(c *engine.ServerConfig) { c.Channels[0].Type = "category" },
			wantPath: "channels[0].type",
			wantMsg:  "oneof",
		},
		{
			name:     "slowmode out of range",
			mutate:   func(c *engine.ServerConfig) { c.Channels[0].Slowmode = 30000 },
			wantPath: "channels[0].slowmode",
			wantMsg:  "max",
		},
		{
			name:     "bitrate out of range",
			mutate:   func(c *engine.ServerConfig) { c.Channels[1].Bitrate = 100 },
			wantPath: "channels[1].bitrate",
			wantMsg:  "min",
		},
		{
			name: "same subject twice",
			mutate: func(c *engine.ServerConfig) {
				c.Channels[0].Permissions = append(c.Channels[0].Permissions,
					engine.PermissionOverwriteConfig{Role: "Mod", Deny: []string{"VIEW_CHANNEL"}})
			},
			wantPath: "channels[0].permissions[2].role",
			wantMsg:  "more than one overwrite",
		},
		{
			name: "flag allowed and denied",
			mutate: func(c *engine.ServerConfig) {
				c.Channels[0].Permissions[0].Deny = []string{"manage messages"}
			},
			wantPath: "channels[0].permissions[0]",
			wantMsg:  "MANAGE_MESSAGES both allowed and denied",
		},
		{
			name:     "bad guild id",
			mutate:   func(c *engine.ServerConfig) { c.Server.ID = "abc" },
			wantPath: "server.id",
			wantMsg:  "numeric",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			errs := NewValidator().Check(cfg).Errors()
			found := false
			for _, e := range errs {
				if e.Path == tt.wantPath && strings.Contains(e.Message, tt.wantMsg) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error at %s containing %q, got %v", tt.wantPath, tt.wantMsg, errs)
			}

			err := Validate(cfg)
			if !engine.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidator_Warnings(t *testing.T) {
	cfg := validConfig()
	cfg.Channels[0].Permissions = append(cfg.Channels[0].Permissions,
		engine.PermissionOverwriteConfig{Role: "Existing Role", Allow: []string{"VIEW_CHANNEL"}})
	cfg.Channels[1].Topic = "ignored"

	findings := NewValidator().Check(cfg)
	if len(findings.Errors()) != 0 {
		t.Fatalf("expected no errors, got %v", findings.Errors())
	}
	if len(findings.Warnings()) != 2 {
		t.Errorf("expected 2 warnings, got %v", findings.Warnings())
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("warnings should not fail validation: %v", err)
	}
}

func TestValidator_Nil(t *testing.T) {
	if err := Validate(nil); !engine.IsValidation(err) {
		t.Errorf("expected validation error for nil config, got %v", err)
	}
}
