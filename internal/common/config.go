package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bloom/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment   string              `toml:"environment"` // "development" or "production"
	Server        ServerConfig        `toml:"server"`
	Storage       StorageConfig       `toml:"storage"`
	Logging       LoggingConfig       `toml:"logging"`
	Variables     KeysDirConfig       `toml:"variables"` // variables.toml location, seeded into the KV store
	Fitbit        FitbitConfig        `toml:"fitbit"`
	Questionnaire QuestionnaireConfig `toml:"questionnaire"`
	WebSocket     WebSocketConfig     `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Type   string       `toml:"type"` // only "badger" is supported
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
}

// KeysDirConfig contains configuration for key/value file loading
type KeysDirConfig struct {
	Dir string `toml:"dir"` // Directory containing variables.toml
}

// FitbitConfig holds the OAuth client registration and API endpoints for the Fitbit link
type FitbitConfig struct {
	ClientID           string   `toml:"client_id"`
	ClientSecret       string   `toml:"client_secret"` // usually "{fitbit-client-secret}", resolved from the KV store
	RedirectURI        string   `toml:"redirect_uri"`
	AuthURL            string   `toml:"auth_url"`
	TokenURL           string   `toml:"token_url"`
	RevokeURL          string   `toml:"revoke_url"`
	APIBaseURL         string   `toml:"api_base_url"`
	Scopes             []string `toml:"scopes"`
	Browser            string   `toml:"browser"`              // "chrome" or "loopback"
	ConsentTimeout     string   `toml:"consent_timeout"`      // e.g. "5m"
	RequestTimeout     string   `toml:"request_timeout"`      // e.g. "30s"
	RateLimitPerHour   int      `toml:"rate_limit_per_hour"`  // Fitbit allows 150 per user per hour
	RevokeOnDisconnect bool     `toml:"revoke_on_disconnect"` // also revoke the token with Fitbit on disconnect
	SyncEnabled        bool     `toml:"sync_enabled"`
	SyncSchedule       string   `toml:"sync_schedule"` // 5-field cron expression
}

// QuestionnaireConfig configures the wellbeing check-in
type QuestionnaireConfig struct {
	CatalogFile   string `toml:"catalog_file"`   // optional replacement for the embedded domain catalog
	FallbackTitle string `toml:"fallback_title"` // shown when the cursor does not resolve to a domain
}

// WebSocketConfig contains configuration for the event stream
type WebSocketConfig struct {
	AllowedEvents []string `toml:"allowed_events"` // empty allows all
	WriteTimeout  string   `toml:"write_timeout"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Variables: KeysDirConfig{
			Dir: "./",
		},
		Fitbit: FitbitConfig{
			RedirectURI:      "http://127.0.0.1:8765/fitbit/callback",
			AuthURL:          "https://www.fitbit.com/oauth2/authorize",
			TokenURL:         "https://api.fitbit.com/oauth2/token",
			RevokeURL:        "https://api.fitbit.com/oauth2/revoke",
			APIBaseURL:       "https://api.fitbit.com",
			Scopes:           []string{"activity", "heartrate", "weight", "profile", "settings", "sleep"},
			Browser:          "loopback",
			ConsentTimeout:   "5m",
			RequestTimeout:   "30s",
			RateLimitPerHour: 150,
			SyncEnabled:      false,
			SyncSchedule:     "30 6 * * *", // 06:30 daily
		},
		Questionnaire: QuestionnaireConfig{
			FallbackTitle: "Questionnaire",
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
			WriteTimeout:  "10s",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// kvStorage can be nil (replacement will be skipped)
func LoadFromFile(kvStorage interfaces.KeyValueStorage, path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles(kvStorage)
	}
	return LoadFromFiles(kvStorage, path)
}

// LoadFromFiles loads configuration from multiple files; later files override earlier ones.
// Priority: CLI flags > environment > last config file > ... > first config file > defaults
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if kvStorage != nil {
		ApplyKVReplacements(context.Background(), config, kvStorage, arbor.NewLogger())
	}

	applyEnvOverrides(config)

	return config, nil
}

// ApplyKVReplacements resolves {key-name} references in config against the KV store.
// Failures are logged and the config is left as-is.
func ApplyKVReplacements(ctx context.Context, config *Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) {
	kvMap, err := kvStorage.GetAll(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		return
	}

	if err := ReplaceInStruct(config, kvMap, logger); err != nil {
		logger.Warn().Err(err).Msg("Failed to replace key references in config")
		return
	}

	logger.Debug().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("BLOOM_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("BLOOM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("BLOOM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage
	if badgerPath := os.Getenv("BLOOM_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("BLOOM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("BLOOM_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Fitbit
	if clientID := os.Getenv("BLOOM_FITBIT_CLIENT_ID"); clientID != "" {
		config.Fitbit.ClientID = clientID
	}
	if secret := os.Getenv("BLOOM_FITBIT_CLIENT_SECRET"); secret != "" {
		config.Fitbit.ClientSecret = secret
	}
	if redirect := os.Getenv("BLOOM_FITBIT_REDIRECT_URI"); redirect != "" {
		config.Fitbit.RedirectURI = redirect
	}
	if browser := os.Getenv("BLOOM_FITBIT_BROWSER"); browser != "" {
		config.Fitbit.Browser = browser
	}
	if syncEnabled := os.Getenv("BLOOM_FITBIT_SYNC_ENABLED"); syncEnabled != "" {
		if b, err := strconv.ParseBool(syncEnabled); err == nil {
			config.Fitbit.SyncEnabled = b
		}
	}
	if schedule := os.Getenv("BLOOM_FITBIT_SYNC_SCHEDULE"); schedule != "" {
		config.Fitbit.SyncSchedule = schedule
	}

	// Questionnaire
	if catalog := os.Getenv("BLOOM_QUESTIONNAIRE_CATALOG"); catalog != "" {
		config.Questionnaire.CatalogFile = catalog
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveSecret resolves a secret with priority: environment -> KV store -> config value.
func ResolveSecret(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, envVar string, configFallback string) (string, error) {
	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return v, nil
		}
	}

	if kvStorage != nil {
		value, err := kvStorage.Get(ctx, name)
		if err == nil && value != "" {
			return value, nil
		}
	}

	// An unresolved {reference} is not a usable secret
	if configFallback != "" && !keyRefPattern.MatchString(configFallback) {
		return configFallback, nil
	}

	return "", fmt.Errorf("secret '%s' not found in environment, KV store, or config", name)
}

// ParseDurationOr parses a duration string, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidateSchedule validates a 5-field cron expression. Every-minute schedules are rejected.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) != 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err != nil {
			return fmt.Errorf("invalid minute interval: %w", err)
		}
		if interval < 5 {
			return fmt.Errorf("schedule must have minimum 5-minute interval (got */%d)", interval)
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
