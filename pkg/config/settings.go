package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/engine"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/ratelimit"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/retry"
	"github.com/0xHoneyJar/arrakis-sub001/pkg/telemetry"
)

// Settings are the process settings read from the environment.
type Settings struct {
	Token   string
	GuildID string
	APIBase string

	RateMaxTokens      int
	RateRefill         float64
	CreateCooldown     time.Duration
	MinRequestInterval time.Duration
	MaxAttempts        int

	DBPath string

	// StarlarkTimeout bounds .star configuration scripts.
	StarlarkTimeout time.Duration

	// Environment selects the telemetry profile: "production" logs JSON
	// and exports traces when an endpoint is set.
	Environment string
	LogLevel    string
	LogFormat   string

	// TracingEndpoint enables OTLP export when set.
	TracingEndpoint string
	MetricsAddress  string
}

// LoadSettings reads .env files (if present) and the environment. Values
// already in the environment win over .env entries.
func LoadSettings(envFiles ...string) (*Settings, error) {
	if len(envFiles) == 0 {
		// A missing .env is normal.
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	s := &Settings{
		Token:           os.Getenv("DISCORD_BOT_TOKEN"),
		GuildID:         os.Getenv("DISCORD_GUILD_ID"),
		APIBase:         os.Getenv("DISCORD_API_BASE"),
		DBPath:          getEnv("GUILDFORM_DB_PATH", "guildform.db"),
		Environment:     getEnv("GUILDFORM_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       os.Getenv("LOG_FORMAT"),
		TracingEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MetricsAddress:  os.Getenv("GUILDFORM_METRICS_ADDR"),
	}

	var err error
	if s.RateMaxTokens, err = getEnvAsInt("GUILDFORM_RATE_MAX_TOKENS", ratelimit.DefaultMaxTokens); err != nil {
		return nil, err
	}
	if s.RateRefill, err = getEnvAsFloat("GUILDFORM_RATE_REFILL", 0); err != nil {
		return nil, err
	}
	if s.CreateCooldown, err = getEnvAsDuration("GUILDFORM_CREATE_COOLDOWN", ratelimit.DefaultCreateCooldown); err != nil {
		return nil, err
	}
	if s.MinRequestInterval, err = getEnvAsDuration("GUILDFORM_MIN_INTERVAL", 0); err != nil {
		return nil, err
	}
	if s.StarlarkTimeout, err = getEnvAsDuration("GUILDFORM_STARLARK_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if s.MaxAttempts, err = getEnvAsInt("GUILDFORM_MAX_ATTEMPTS", retry.DefaultMaxAttempts); err != nil {
		return nil, err
	}

	if s.RateMaxTokens <= 0 {
		return nil, fmt.Errorf("GUILDFORM_RATE_MAX_TOKENS must be positive")
	}
	if s.MaxAttempts <= 0 {
		return nil, fmt.Errorf("GUILDFORM_MAX_ATTEMPTS must be positive")
	}
	return s, nil
}

// Writer returns the settings consumed by engine.NewWriterFromEnv.
func (s *Settings) Writer() engine.WriterSettings {
	return engine.WriterSettings{
		Token:              s.Token,
		APIBase:            s.APIBase,
		AuditReason:        "guildform apply",
		MaxTokens:          s.RateMaxTokens,
		RefillRate:         s.RateRefill,
		CreateCooldown:     s.CreateCooldown,
		MinRequestInterval: s.MinRequestInterval,
		MaxAttempts:        s.MaxAttempts,
	}
}

// Telemetry returns the telemetry configuration for the CLI.
func (s *Settings) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if s.Environment == "production" {
		cfg = telemetry.ProductionConfig()
		cfg.Tracing.Enabled = false
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	if s.LogLevel != "" {
		cfg.Logging.Level = s.LogLevel
	}
	if s.LogFormat != "" {
		cfg.Logging.Format = s.LogFormat
	}
	if s.TracingEndpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "otlp"
		cfg.Tracing.Endpoint = s.TracingEndpoint
	}
	cfg.Metrics.ListenAddress = s.MetricsAddress
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getEnvAsDuration accepts Go durations ("10s") or plain seconds ("10").
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	v, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
