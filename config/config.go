// Package config loads Cliparino's configuration from environment
// variables, a local .env file, and an optional YAML settings file for
// the nested OBS/Player/Shoutout/ClipSearch sections.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Environment string
	LogLevel    string

	Twitch     TwitchConfig
	OBS        OBSConfig
	Player     PlayerConfig
	Shoutout   ShoutoutConfig
	ClipSearch ClipSearchConfig
	Sentry     SentryConfig
}

// TwitchConfig holds Twitch API and chat transport configuration.
type TwitchConfig struct {
	ClientID      string
	ClientSecret  string
	BroadcasterID string
	BroadcasterLogin string
}

// OBSConfig holds OBS-WebSocket connection targets.
type OBSConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

// PlayerConfig holds the desired OBS browser-source state.
type PlayerConfig struct {
	SceneName  string `yaml:"scene_name"`
	SourceName string `yaml:"source_name"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	URL        string `yaml:"url"`
}

// ShoutoutConfig holds `!so` pipeline behavior.
type ShoutoutConfig struct {
	EnableMessage      bool    `yaml:"enable_message"`
	MessageTemplate    string  `yaml:"message_template"`
	UseFeaturedClips   bool    `yaml:"use_featured_clips"`
	MaxClipLength      float64 `yaml:"max_clip_length_seconds"`
	MaxClipAgeDays     int     `yaml:"max_clip_age_days"`
	SendTwitchShoutout bool    `yaml:"send_twitch_shoutout"`
}

// ClipSearchConfig holds the fuzzy-search and approval-gate behavior.
type ClipSearchConfig struct {
	SearchWindowDays      int      `yaml:"search_window_days"`
	FuzzyMatchThreshold   float64  `yaml:"fuzzy_match_threshold"`
	RequireApproval       bool     `yaml:"require_approval"`
	ApprovalTimeoutSeconds int     `yaml:"approval_timeout_seconds"`
	ExemptRoles           []string `yaml:"exempt_roles"`
}

// SentryConfig holds error-tracking configuration.
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Enabled          bool
}

// settingsFile mirrors the YAML document shape for Player/OBS/Shoutout/
// ClipSearch — the fields a desktop settings UI would persist. The
// out-of-scope settings UI owns writing this file; Load only reads it.
type settingsFile struct {
	OBS        OBSConfig        `yaml:"obs"`
	Player     PlayerConfig     `yaml:"player"`
	Shoutout   ShoutoutConfig   `yaml:"shoutout"`
	ClipSearch ClipSearchConfig `yaml:"clip_search"`
}

// Load reads configuration from environment variables (secrets, identity)
// and an optional YAML settings file (behavioral knobs), in that order,
// with the YAML file able to override env-derived defaults for the
// fields it declares.
func Load(settingsPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("CLIPARINO_ENV", "development"),
		LogLevel:    getEnv("CLIPARINO_LOG_LEVEL", "info"),
		Twitch: TwitchConfig{
			ClientID:         getEnv("TWITCH_CLIENT_ID", ""),
			ClientSecret:     getEnv("TWITCH_CLIENT_SECRET", ""),
			BroadcasterID:    getEnv("TWITCH_BROADCASTER_ID", ""),
			BroadcasterLogin: getEnv("TWITCH_BROADCASTER_LOGIN", ""),
		},
		OBS: OBSConfig{
			Host:     getEnv("OBS_HOST", "localhost"),
			Port:     getEnvInt("OBS_PORT", 4455),
			Password: getEnv("OBS_PASSWORD", ""),
		},
		Player: PlayerConfig{
			SceneName:  "Cliparino",
			SourceName: "CliparinoPlayer",
			Width:      1920,
			Height:     1080,
			URL:        getEnv("PLAYER_BASE_URL", "http://localhost:8080/player"),
		},
		Shoutout: ShoutoutConfig{
			EnableMessage:      true,
			MessageTemplate:    "Check out {broadcaster}, they were last seen playing {game}!",
			UseFeaturedClips:   true,
			MaxClipLength:      60,
			MaxClipAgeDays:     365,
			SendTwitchShoutout: true,
		},
		ClipSearch: ClipSearchConfig{
			SearchWindowDays:       90,
			FuzzyMatchThreshold:    0.4,
			RequireApproval:        true,
			ApprovalTimeoutSeconds: 30,
			ExemptRoles:            []string{"broadcaster", "moderator"},
		},
		Sentry: SentryConfig{
			DSN:              getEnv("SENTRY_DSN", ""),
			Environment:      getEnv("SENTRY_ENVIRONMENT", "development"),
			Release:          getEnv("SENTRY_RELEASE", ""),
			TracesSampleRate: getEnvFloat("SENTRY_TRACES_SAMPLE_RATE", 0.1),
			Enabled:          getEnvBool("SENTRY_ENABLED", false),
		},
	}

	if settingsPath != "" {
		if err := applySettingsFile(cfg, settingsPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Reload re-reads only the YAML settings file and returns a fresh Config
// seeded from the current one — env-derived secrets and identity are
// untouched, only the OBS/Player/Shoutout/ClipSearch knobs can change.
func (c *Config) Reload(settingsPath string) (*Config, error) {
	next := *c
	if settingsPath == "" {
		return &next, nil
	}
	if err := applySettingsFile(&next, settingsPath); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

func applySettingsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read settings file: %w", err)
	}

	var doc settingsFile
	// Seed the decode target with current values so a partial YAML file
	// only overrides the keys it actually declares.
	doc.OBS = cfg.OBS
	doc.Player = cfg.Player
	doc.Shoutout = cfg.Shoutout
	doc.ClipSearch = cfg.ClipSearch

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}

	cfg.OBS = doc.OBS
	cfg.Player = doc.Player
	cfg.Shoutout = doc.Shoutout
	cfg.ClipSearch = doc.ClipSearch
	return nil
}

// Validate range-checks settings that would otherwise fail lazily deep
// inside a supervisor once the process is already running.
func (c *Config) Validate() error {
	if c.Player.Width <= 0 || c.Player.Height <= 0 {
		return fmt.Errorf("player width/height must be positive, got %dx%d", c.Player.Width, c.Player.Height)
	}
	if c.Shoutout.MaxClipLength < 0 {
		return fmt.Errorf("shoutout max clip length must be >= 0, got %f", c.Shoutout.MaxClipLength)
	}
	if c.ClipSearch.FuzzyMatchThreshold < 0 || c.ClipSearch.FuzzyMatchThreshold > 1 {
		return fmt.Errorf("fuzzy match threshold must be in [0,1], got %f", c.ClipSearch.FuzzyMatchThreshold)
	}
	if c.ClipSearch.ApprovalTimeoutSeconds <= 0 {
		return fmt.Errorf("approval timeout must be positive, got %d", c.ClipSearch.ApprovalTimeoutSeconds)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
