package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSettings_Defaults(t *testing.T) {
	for _, key := range []string{
		"DISCORD_BOT_TOKEN", "DISCORD_GUILD_ID", "GUILDFORM_RATE_MAX_TOKENS",
		"GUILDFORM_CREATE_COOLDOWN", "GUILDFORM_MAX_ATTEMPTS", "GUILDFORM_DB_PATH", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.RateMaxTokens != 50 || s.CreateCooldown != time.Second || s.MaxAttempts != 3 {
		t.Errorf("unexpected defaults %+v", s)
	}
	if s.DBPath != "guildform.db" || s.LogLevel != "info" {
		t.Errorf("unexpected defaults %+v", s)
	}
}

func TestLoadSettings_Environment(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "secret")
	t.Setenv("DISCORD_GUILD_ID", "42")
	t.Setenv("GUILDFORM_RATE_MAX_TOKENS", "5")
	t.Setenv("GUILDFORM_RATE_REFILL", "2.5")
	t.Setenv("GUILDFORM_CREATE_COOLDOWN", "10")
	t.Setenv("GUILDFORM_MIN_INTERVAL", "250ms")
	t.Setenv("GUILDFORM_MAX_ATTEMPTS", "4")
	t.Chdir(t.TempDir())

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.CreateCooldown != 10*time.Second || s.MinRequestInterval != 250*time.Millisecond {
		t.Errorf("unexpected durations %v %v", s.CreateCooldown, s.MinRequestInterval)
	}

	w := s.Writer()
	if w.Token != "secret" || w.MaxTokens != 5 || w.RefillRate != 2.5 || w.MaxAttempts != 4 {
		t.Errorf("unexpected writer settings %+v", w)
	}
	if s.GuildID != "42" {
		t.Errorf("GuildID = %q", s.GuildID)
	}
}

func TestLoadSettings_EnvFile(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "")
	os.Unsetenv("DISCORD_BOT_TOKEN")
	t.Setenv("DISCORD_GUILD_ID", "from-env")

	path := filepath.Join(t.TempDir(), "test.env")
	content := "DISCORD_BOT_TOKEN=file-token\nDISCORD_GUILD_ID=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.Token != "file-token" {
		t.Errorf("Token = %q, want value from file", s.Token)
	}
	if s.GuildID != "from-env" {
		t.Errorf("GuildID = %q, environment should win", s.GuildID)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"GUILDFORM_RATE_MAX_TOKENS", "many"},
		{"GUILDFORM_RATE_MAX_TOKENS", "0"},
		{"GUILDFORM_CREATE_COOLDOWN", "soon"},
		{"GUILDFORM_MAX_ATTEMPTS", "-1"},
		{"GUILDFORM_RATE_REFILL", "fast"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadSettings(); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadSettings(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for a missing env file")
	}
}

func TestSettings_Telemetry(t *testing.T) {
	s := &Settings{LogLevel: "debug", LogFormat: "json", TracingEndpoint: "collector:4317"}
	cfg := s.Telemetry("1.2.3")
	if cfg.ServiceVersion != "1.2.3" || cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "otlp" || cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("unexpected tracing %+v", cfg.Tracing)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSettings_TelemetryProfiles(t *testing.T) {
	tests := []struct {
		name       string
		settings   Settings
		wantFormat string
		wantEnv    string
		wantTraces bool
	}{
		{
			name:       "development defaults",
			settings:   Settings{Environment: "development"},
			wantFormat: "console",
			wantEnv:    "development",
		},
		{
			name:       "production logs json",
			settings:   Settings{Environment: "production"},
			wantFormat: "json",
			wantEnv:    "production",
		},
		{
			name:       "explicit format wins",
			settings:   Settings{Environment: "production", LogFormat: "console"},
			wantFormat: "console",
			wantEnv:    "production",
		},
		{
			name:       "production exports with endpoint",
			settings:   Settings{Environment: "production", TracingEndpoint: "collector:4317"},
			wantFormat: "json",
			wantEnv:    "production",
			wantTraces: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.settings.Telemetry("")
			if cfg.Logging.Format != tt.wantFormat || cfg.Environment != tt.wantEnv {
				t.Errorf("format=%q env=%q, want %q %q", cfg.Logging.Format, cfg.Environment, tt.wantFormat, tt.wantEnv)
			}
			if cfg.Tracing.Enabled != tt.wantTraces {
				t.Errorf("tracing enabled = %v, want %v", cfg.Tracing.Enabled, tt.wantTraces)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}
